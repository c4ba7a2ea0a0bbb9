/*

Read-only view over the staking contract and the reward-token ERC-20s.

The contract is treated as an external collaborator: every value read from it
is validated before entering the rate math, and rewardsDuration in particular
is untrusted. Deployments have been observed carrying a nonsense duration
(decades long) from a historical unit mix-up, so values beyond the sanity
bound are replaced with the configured default unless the caller explicitly
asks to trust the chain.

*/

package staking

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/nbcex/reward-operator/internal/logger"
	"github.com/nbcex/reward-operator/internal/rewardmath"
	"github.com/nbcex/reward-operator/internal/types"
)

// maxSaneDuration rejects reward epochs longer than five years as data
// corruption rather than intent.
const maxSaneDuration = 5 * rewardmath.SecondsPerYear

var (
	ErrChainRead      = errors.New("chain read failed")
	ErrMalformedState = errors.New("contract returned malformed state")
)

// Reader reads live pool state, token balances and ownership from the chain.
type Reader struct {
	client     *ethclient.Client
	contract   common.Address
	stakingABI abi.ABI
	erc20ABI   abi.ABI

	// defaultDuration substitutes for an unavailable or insane on-chain
	// rewardsDuration.
	defaultDuration int64
	// trustChainDuration disables the sanity bound and propagates whatever
	// duration the contract reports.
	trustChainDuration bool

	logger zerolog.Logger
}

// NewReader builds a reader for the staking contract at contractHex.
func NewReader(client *ethclient.Client, contractHex string, defaultDuration int64, trustChainDuration bool) (*Reader, error) {
	if client == nil {
		return nil, errors.New("eth client cannot be nil")
	}
	if !common.IsHexAddress(contractHex) {
		return nil, fmt.Errorf("invalid staking contract address: %q", contractHex)
	}
	if defaultDuration <= 0 {
		return nil, fmt.Errorf("default rewards duration must be positive, got %d", defaultDuration)
	}

	stakingABI, erc20ABI, err := parseABIs()
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract ABIs: %w", err)
	}

	return &Reader{
		client:             client,
		contract:           common.HexToAddress(contractHex),
		stakingABI:         stakingABI,
		erc20ABI:           erc20ABI,
		defaultDuration:    defaultDuration,
		trustChainDuration: trustChainDuration,
		logger:             logger.GetForComponent("contract_reader"),
	}, nil
}

// Contract returns the staking contract address.
func (r *Reader) Contract() common.Address {
	return r.contract
}

// call performs an eth_call against the given contract and unpacks the result.
func (r *Reader) call(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	raw, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, errors.Join(ErrChainRead, fmt.Errorf("%s: %w", method, err))
	}

	outs, err := contractABI.Unpack(method, raw)
	if err != nil {
		return nil, errors.Join(ErrMalformedState, fmt.Errorf("%s: %w", method, err))
	}
	return outs, nil
}

// PoolState reads one pool's live state. The rich pools(i) accessor is
// preferred; deployments without it fall back to getPoolInfo(i) with an
// assumed default duration, flagged on the returned state.
func (r *Reader) PoolState(ctx context.Context, poolIndex uint64) (types.PoolLiveState, error) {
	index := new(big.Int).SetUint64(poolIndex)

	outs, err := r.call(ctx, r.contract, r.stakingABI, "pools", index)
	if err == nil {
		state, decodeErr := decodeRichPool(outs)
		if decodeErr == nil {
			return r.sanitizeDuration(poolIndex, state), nil
		}
		r.logger.Warn().
			Err(decodeErr).
			Uint64("poolIndex", poolIndex).
			Msg("pools(i) returned undecodable data, falling back to getPoolInfo")
	} else {
		r.logger.Warn().
			Err(err).
			Uint64("poolIndex", poolIndex).
			Msg("pools(i) unavailable, falling back to getPoolInfo")
	}

	outs, err = r.call(ctx, r.contract, r.stakingABI, "getPoolInfo", index)
	if err != nil {
		return types.PoolLiveState{}, fmt.Errorf("pool %d unreadable via pools and getPoolInfo: %w", poolIndex, err)
	}

	state, err := decodeNarrowPool(outs)
	if err != nil {
		return types.PoolLiveState{}, fmt.Errorf("pool %d: %w", poolIndex, err)
	}

	// The narrow accessor does not expose rewardsDuration. Substituting the
	// default is a known data-quality gap; surface it, don't hide it.
	state.RewardsDuration = r.defaultDuration
	state.DurationAssumed = true
	r.logger.Warn().
		Uint64("poolIndex", poolIndex).
		Int64("assumedDuration", r.defaultDuration).
		Msg("rewardsDuration not exposed by contract, assuming default")

	return state, nil
}

// sanitizeDuration enforces the duration sanity bound on a fully decoded
// pool state.
func (r *Reader) sanitizeDuration(poolIndex uint64, state types.PoolLiveState) types.PoolLiveState {
	if state.RewardsDuration > 0 && state.RewardsDuration <= maxSaneDuration {
		return state
	}
	if r.trustChainDuration {
		r.logger.Warn().
			Uint64("poolIndex", poolIndex).
			Int64("rewardsDuration", state.RewardsDuration).
			Msg("On-chain rewardsDuration fails the sanity bound but chain value is trusted by request")
		return state
	}

	r.logger.Warn().
		Uint64("poolIndex", poolIndex).
		Int64("rewardsDuration", state.RewardsDuration).
		Int64("replacement", r.defaultDuration).
		Msg("On-chain rewardsDuration is outside the sane bound, replacing with default")

	state.RawDuration = state.RewardsDuration
	state.DurationSuspect = true
	state.RewardsDuration = r.defaultDuration
	return state
}

// OperatorBalance reads the operator's balance of a reward token.
func (r *Reader) OperatorBalance(ctx context.Context, token, operator common.Address) (sdkmath.Int, error) {
	outs, err := r.call(ctx, token, r.erc20ABI, "balanceOf", operator)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	balance, ok := outs[0].(*big.Int)
	if !ok || balance == nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: balanceOf returned %T", ErrMalformedState, outs[0])
	}
	return sdkmath.NewIntFromBigInt(balance), nil
}

// Owner reads the contract owner used for the pre-submission authorization
// check.
func (r *Reader) Owner(ctx context.Context) (common.Address, error) {
	outs, err := r.call(ctx, r.contract, r.stakingABI, "owner")
	if err != nil {
		return common.Address{}, err
	}
	owner, ok := outs[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: owner returned %T", ErrMalformedState, outs[0])
	}
	return owner, nil
}

// decodeRichPool maps the 7-tuple pools(i) return values onto PoolLiveState.
func decodeRichPool(outs []interface{}) (types.PoolLiveState, error) {
	if len(outs) != 7 {
		return types.PoolLiveState{}, fmt.Errorf("%w: pools returned %d values", ErrMalformedState, len(outs))
	}

	rewardToken, ok := outs[0].(common.Address)
	if !ok {
		return types.PoolLiveState{}, fmt.Errorf("%w: rewardToken is %T", ErrMalformedState, outs[0])
	}
	fields, err := bigIntFields(outs[1:6], []string{"totalStakedAmount", "rewardRate", "periodFinish", "lastUpdateTime", "rewardsDuration"})
	if err != nil {
		return types.PoolLiveState{}, err
	}
	active, ok := outs[6].(bool)
	if !ok {
		return types.PoolLiveState{}, fmt.Errorf("%w: active is %T", ErrMalformedState, outs[6])
	}

	return types.PoolLiveState{
		RewardToken:     rewardToken,
		TotalStaked:     sdkmath.NewIntFromBigInt(fields[0]),
		RewardRate:      sdkmath.NewIntFromBigInt(fields[1]),
		PeriodFinish:    fields[2].Int64(),
		LastUpdateTime:  fields[3].Int64(),
		RewardsDuration: fields[4].Int64(),
		Active:          active,
	}, nil
}

// decodeNarrowPool maps the 5-tuple getPoolInfo(i) return values onto
// PoolLiveState, leaving duration fields unset.
func decodeNarrowPool(outs []interface{}) (types.PoolLiveState, error) {
	if len(outs) != 5 {
		return types.PoolLiveState{}, fmt.Errorf("%w: getPoolInfo returned %d values", ErrMalformedState, len(outs))
	}

	rewardToken, ok := outs[0].(common.Address)
	if !ok {
		return types.PoolLiveState{}, fmt.Errorf("%w: rewardToken is %T", ErrMalformedState, outs[0])
	}
	fields, err := bigIntFields(outs[1:4], []string{"totalStakedAmount", "rewardRate", "periodFinish"})
	if err != nil {
		return types.PoolLiveState{}, err
	}
	active, ok := outs[4].(bool)
	if !ok {
		return types.PoolLiveState{}, fmt.Errorf("%w: active is %T", ErrMalformedState, outs[4])
	}

	return types.PoolLiveState{
		RewardToken:    rewardToken,
		TotalStaked:    sdkmath.NewIntFromBigInt(fields[0]),
		RewardRate:     sdkmath.NewIntFromBigInt(fields[1]),
		PeriodFinish:   fields[2].Int64(),
		LastUpdateTime: 0,
		Active:         active,
	}, nil
}

// bigIntFields asserts a run of unpacked outputs as non-nil *big.Int.
func bigIntFields(outs []interface{}, names []string) ([]*big.Int, error) {
	fields := make([]*big.Int, len(outs))
	for i, out := range outs {
		value, ok := out.(*big.Int)
		if !ok || value == nil {
			return nil, fmt.Errorf("%w: %s is %T", ErrMalformedState, names[i], out)
		}
		fields[i] = value
	}
	return fields, nil
}
