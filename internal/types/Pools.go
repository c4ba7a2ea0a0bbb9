/*

This file contains the static pool descriptor and the live on-chain pool state
read back from the staking contract each cycle.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// PoolConfig is the immutable per-reward-token descriptor. One entry per pool
// in the staking contract's pool array, loaded at process start.
type PoolConfig struct {
	Symbol       string              `json:"symbol"`         // Canonical symbol, e.g. "BTC"
	PoolIndex    uint64              `json:"pool_index"`     // Stable index into the contract's pool array
	TokenAddress common.Address      `json:"token_address"`  // Reward token ERC-20 address
	Decimals     uint8               `json:"decimals"`       // Reward token decimals (6, 8 or 18)
	ProviderSyms map[Provider]string `json:"provider_syms"`  // Per-provider ticker alias, e.g. okx -> "BTC-USDT"
}

// PoolLiveState is the current on-chain state of one pool. Fetched fresh every
// cycle and never cached across cycles; stale state would corrupt the
// threshold comparison.
type PoolLiveState struct {
	RewardToken     common.Address `json:"reward_token"`
	TotalStaked     sdkmath.Int    `json:"total_staked"`     // Base-asset wei
	RewardRate      sdkmath.Int    `json:"reward_rate"`      // Reward-token wei per second
	PeriodFinish    int64          `json:"period_finish"`    // Unix seconds
	LastUpdateTime  int64          `json:"last_update_time"` // Unix seconds
	RewardsDuration int64          `json:"rewards_duration"` // Seconds in one reward epoch
	Active          bool           `json:"active"`

	// DurationAssumed is set when the contract did not expose rewardsDuration
	// and a 1-year default was substituted.
	DurationAssumed bool `json:"duration_assumed,omitempty"`
	// DurationSuspect is set when the on-chain rewardsDuration failed the
	// sanity bound and was replaced. The raw value is kept in RawDuration.
	DurationSuspect bool  `json:"duration_suspect,omitempty"`
	RawDuration     int64 `json:"raw_duration,omitempty"`
}

// RemainingReward returns the reward still scheduled to accrue between now and
// periodFinish. Zero once the period has expired.
func (s PoolLiveState) RemainingReward(now int64) sdkmath.Int {
	if now >= s.PeriodFinish || s.RewardRate.IsNil() {
		return sdkmath.ZeroInt()
	}
	return s.RewardRate.MulRaw(s.PeriodFinish - now)
}
