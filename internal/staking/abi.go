package staking

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ABI surface of the staking contract actually consumed by the operator
// tools. The contract exposes more; only these entrypoints matter here.
const stakingABIJSON = `[
	{"type":"function","name":"pools","stateMutability":"view",
	 "inputs":[{"name":"","type":"uint256"}],
	 "outputs":[
		{"name":"rewardToken","type":"address"},
		{"name":"totalStakedAmount","type":"uint256"},
		{"name":"rewardRate","type":"uint256"},
		{"name":"periodFinish","type":"uint256"},
		{"name":"lastUpdateTime","type":"uint256"},
		{"name":"rewardsDuration","type":"uint256"},
		{"name":"active","type":"bool"}]},
	{"type":"function","name":"getPoolInfo","stateMutability":"view",
	 "inputs":[{"name":"poolIndex","type":"uint256"}],
	 "outputs":[
		{"name":"rewardToken","type":"address"},
		{"name":"totalStakedAmount","type":"uint256"},
		{"name":"rewardRate","type":"uint256"},
		{"name":"periodFinish","type":"uint256"},
		{"name":"active","type":"bool"}]},
	{"type":"function","name":"notifyRewardAmount","stateMutability":"nonpayable",
	 "inputs":[{"name":"poolIndex","type":"uint256"},{"name":"reward","type":"uint256"}],
	 "outputs":[]},
	{"type":"function","name":"emergencyWithdrawReward","stateMutability":"nonpayable",
	 "inputs":[{"name":"poolIndex","type":"uint256"},{"name":"amount","type":"uint256"}],
	 "outputs":[]},
	{"type":"function","name":"owner","stateMutability":"view",
	 "inputs":[],
	 "outputs":[{"name":"","type":"address"}]}
]`

const erc20ABIJSON = `[
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]}
]`

// parseABIs parses both embedded ABI definitions. Failure here is a
// programming error, surfaced at constructor time rather than panicking at
// package init.
func parseABIs() (staking abi.ABI, erc20 abi.ABI, err error) {
	staking, err = abi.JSON(strings.NewReader(stakingABIJSON))
	if err != nil {
		return
	}
	erc20, err = abi.JSON(strings.NewReader(erc20ABIJSON))
	return
}
