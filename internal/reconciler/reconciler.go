/*

Reconciler compares a pool's live reward rate against the rate implied by the
target APR at current prices and decides whether a notifyRewardAmount is
warranted.

The decision is pure: prices, live state and the operator balance come in,
a RewardUpdateDecision comes out. Everything that touches the network lives
in the oracle and staking packages, which keeps this logic testable without a
node.

*/

package reconciler

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/nbcex/reward-operator/internal/rewardmath"
	"github.com/nbcex/reward-operator/internal/types"
)

var (
	ErrMissingQuote      = errors.New("required price quote unavailable")
	ErrInvalidParams     = errors.New("invalid reconciliation parameters")
	ErrInactivePool      = errors.New("pool is not active")
	ErrInvalidRewardRate = errors.New("live reward rate is malformed")
)

// Verdict classifies how far a live rate sits from its target, for the
// read-only verification report.
type Verdict string

const (
	VerdictPass Verdict = "PASS" // within 1%
	VerdictWarn Verdict = "WARN" // within 5%
	VerdictFail Verdict = "FAIL" // beyond 5%
)

// Params carries the operator-level knobs for one reconciliation.
type Params struct {
	// TargetAPR is the annual percentage rate the pools should pay,
	// denominated in the base asset.
	TargetAPR float64

	// ExpectedStakedWei overrides the on-chain total stake when positive.
	// The contract's totalStakedAmount lags reality right after launch, so
	// the rate is computed against the projected stake instead.
	ExpectedStakedWei sdkmath.Int

	// MinChangePercent is the hysteresis band: live and target rates within
	// this percentage of each other produce no update. Zero disables the
	// band and every divergence proposes an update.
	MinChangePercent float64

	// PriceMultiplier scales the conversion rate, normally 1.0.
	PriceMultiplier float64

	// BaseSymbol is the staked asset's canonical symbol.
	BaseSymbol string
}

func (p Params) validate() error {
	if p.TargetAPR < 0 {
		return fmt.Errorf("%w: target APR %f is negative", ErrInvalidParams, p.TargetAPR)
	}
	if p.PriceMultiplier <= 0 {
		return fmt.Errorf("%w: price multiplier %f must be positive", ErrInvalidParams, p.PriceMultiplier)
	}
	if p.MinChangePercent < 0 {
		return fmt.Errorf("%w: min change percent %f is negative", ErrInvalidParams, p.MinChangePercent)
	}
	if p.BaseSymbol == "" {
		return fmt.Errorf("%w: base symbol is empty", ErrInvalidParams)
	}
	return nil
}

// ConversionRate derives how many base-asset units one reward token is worth
// from the two USD quotes, scaled by the configured multiplier.
func ConversionRate(rewardQuote, baseQuote types.PriceQuote, multiplier float64) (float64, error) {
	if rewardQuote.USDPrice <= 0 {
		return 0, fmt.Errorf("%w: %s priced at %f", ErrMissingQuote, rewardQuote.Symbol, rewardQuote.USDPrice)
	}
	if baseQuote.USDPrice <= 0 {
		return 0, fmt.Errorf("%w: %s priced at %f", ErrMissingQuote, baseQuote.Symbol, baseQuote.USDPrice)
	}
	return rewardQuote.USDPrice / baseQuote.USDPrice * multiplier, nil
}

// Reconcile computes the update decision for one pool. It never mutates
// anything; callers decide whether to act on ShouldUpdate.
//
// operatorBalance may be nil when no signer is configured; balance gating is
// then skipped and InsufficientBalance stays false.
func Reconcile(
	pool types.PoolConfig,
	live types.PoolLiveState,
	params Params,
	quotes map[string]types.PriceQuote,
	operatorBalance sdkmath.Int,
) (types.RewardUpdateDecision, error) {
	if err := params.validate(); err != nil {
		return types.RewardUpdateDecision{}, err
	}
	if !live.Active {
		return types.RewardUpdateDecision{}, fmt.Errorf("%w: %s (pool %d)", ErrInactivePool, pool.Symbol, pool.PoolIndex)
	}
	if live.RewardRate.IsNil() || live.RewardRate.IsNegative() {
		return types.RewardUpdateDecision{}, fmt.Errorf("%w: %s", ErrInvalidRewardRate, pool.Symbol)
	}

	rewardQuote, ok := quotes[pool.Symbol]
	if !ok {
		return types.RewardUpdateDecision{}, fmt.Errorf("%w: no quote for reward token %s", ErrMissingQuote, pool.Symbol)
	}
	baseQuote, ok := quotes[params.BaseSymbol]
	if !ok {
		return types.RewardUpdateDecision{}, fmt.Errorf("%w: no quote for base asset %s", ErrMissingQuote, params.BaseSymbol)
	}

	conversionRate, err := ConversionRate(rewardQuote, baseQuote, params.PriceMultiplier)
	if err != nil {
		return types.RewardUpdateDecision{}, err
	}

	staked := live.TotalStaked
	if !params.ExpectedStakedWei.IsNil() && params.ExpectedStakedWei.IsPositive() {
		staked = params.ExpectedStakedWei
	}

	newRate, totalNotify, err := rewardmath.RateFromAPR(
		params.TargetAPR, staked, conversionRate, pool.Decimals, live.RewardsDuration)
	if err != nil {
		return types.RewardUpdateDecision{}, fmt.Errorf("rate computation for %s: %w", pool.Symbol, err)
	}

	decision := types.RewardUpdateDecision{
		Symbol:              pool.Symbol,
		PoolIndex:           pool.PoolIndex,
		CurrentRewardRate:   live.RewardRate,
		NewRewardRate:       newRate,
		TotalRewardToNotify: totalNotify,
		OperatorBalance:     operatorBalance,
		ConversionRate:      conversionRate,
		CurrentAPR:          rewardmath.APRFromRate(live.RewardRate, staked, conversionRate, pool.Decimals),
		TargetAPR:           params.TargetAPR,
	}

	switch {
	case live.RewardRate.IsZero() && newRate.IsPositive():
		// Bootstrap: a pool that has never paid rewards always gets its
		// first rate, regardless of the hysteresis band.
		decision.ShouldUpdate = true
		decision.ChangePercent = 100
	case live.RewardRate.IsZero():
		// Both zero, nothing to do.
	case newRate.IsZero():
		// notifyRewardAmount cannot drive a live rate to zero; the contract
		// rejects a zero reward. Draining a paying pool takes
		// emergencyWithdrawReward, so no update is proposed here.
		decision.ChangePercent = changePercent(live.RewardRate, newRate)
	default:
		decision.ChangePercent = changePercent(live.RewardRate, newRate)
		magnitude := decision.ChangePercent
		if magnitude < 0 {
			magnitude = -magnitude
		}
		decision.ShouldUpdate = magnitude >= params.MinChangePercent && !newRate.Equal(live.RewardRate)
	}

	if decision.ShouldUpdate && !operatorBalance.IsNil() {
		decision.InsufficientBalance = totalNotify.GT(operatorBalance)
	}

	return decision, nil
}

// changePercent returns the signed relative difference of newRate against
// liveRate, in percent. liveRate must be positive.
func changePercent(liveRate, newRate sdkmath.Int) float64 {
	diff := sdkmath.LegacyNewDecFromInt(newRate.Sub(liveRate)).
		QuoInt(liveRate).
		MulInt64(100)
	value, err := diff.Float64()
	if err != nil {
		return 0
	}
	return value
}

// PlanExcessWithdrawal builds the two-step repair for a pool holding more
// unexpired reward than the target epoch needs. Step order matters: the
// excess must leave before the notify, or the contract folds the leftover
// into the new rate.
func PlanExcessWithdrawal(pool types.PoolConfig, live types.PoolLiveState, targetTotal sdkmath.Int, now int64) types.ExcessPlan {
	remaining := live.RemainingReward(now)

	withdraw := sdkmath.ZeroInt()
	if remaining.GT(targetTotal) {
		withdraw = remaining.Sub(targetTotal)
	}

	return types.ExcessPlan{
		Symbol:          pool.Symbol,
		PoolIndex:       pool.PoolIndex,
		RemainingReward: remaining,
		TargetTotal:     targetTotal,
		WithdrawAmount:  withdraw,
		NotifyAmount:    targetTotal,
	}
}

// Classify maps an APR divergence percentage onto a verification verdict.
func Classify(diffPercent float64) Verdict {
	if diffPercent < 0 {
		diffPercent = -diffPercent
	}
	switch {
	case diffPercent < 1:
		return VerdictPass
	case diffPercent < 5:
		return VerdictWarn
	default:
		return VerdictFail
	}
}
