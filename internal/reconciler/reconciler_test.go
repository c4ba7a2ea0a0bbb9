package reconciler

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/nbcex/reward-operator/internal/rewardmath"
	"github.com/nbcex/reward-operator/internal/types"
)

func btcPool() types.PoolConfig {
	return types.PoolConfig{Symbol: "BTC", PoolIndex: 0, Decimals: 8}
}

func quotesAt(btcUSD, nbcUSD float64) map[string]types.PriceQuote {
	now := time.Now()
	return map[string]types.PriceQuote{
		"BTC": {Symbol: "BTC", USDPrice: btcUSD, Source: types.ProviderBinance, FetchedAt: now},
		"NBC": {Symbol: "NBC", USDPrice: nbcUSD, Source: types.ProviderNBCEX, FetchedAt: now},
	}
}

func defaultParams() Params {
	// Stake is large enough that the integer rate has thousands of wei of
	// resolution; tiny stakes truncate percentage drift away entirely.
	return Params{
		TargetAPR:         100,
		ExpectedStakedWei: stake(1_000_000_000),
		MinChangePercent:  5,
		PriceMultiplier:   1,
		BaseSymbol:        "NBC",
	}
}

// stake returns an NBC amount in 18-decimal wei.
func stake(nbc int64) sdkmath.Int {
	return sdkmath.NewInt(nbc).Mul(sdkmath.NewIntWithDecimal(1, 18))
}

func liveState(rate int64) types.PoolLiveState {
	return types.PoolLiveState{
		RewardRate:      sdkmath.NewInt(rate),
		TotalStaked:     stake(1_000_000),
		RewardsDuration: rewardmath.SecondsPerYear,
		PeriodFinish:    time.Now().Unix() + rewardmath.SecondsPerYear,
		Active:          true,
	}
}

func TestHysteresisSuppressesSmallDrift(t *testing.T) {
	// Compute the exact target rate first, then present a live rate 3% away.
	// 3% is inside the 5% band, so no update.
	params := defaultParams()
	quotes := quotesAt(93_464, 0.11)

	rate, _, err := rewardmath.RateFromAPR(params.TargetAPR, params.ExpectedStakedWei, 93_464/0.11, 8, rewardmath.SecondsPerYear)
	require.NoError(t, err)

	drifted := rate.MulRaw(103).QuoRaw(100)
	decision, err := Reconcile(btcPool(), liveState(drifted.Int64()), params, quotes, sdkmath.Int{})
	require.NoError(t, err)
	require.False(t, decision.ShouldUpdate)
	require.InDelta(t, -2.9, decision.ChangePercent, 1.0)
}

func TestHysteresisAllowsLargeDrift(t *testing.T) {
	params := defaultParams()
	quotes := quotesAt(93_464, 0.11)

	rate, _, err := rewardmath.RateFromAPR(params.TargetAPR, params.ExpectedStakedWei, 93_464/0.11, 8, rewardmath.SecondsPerYear)
	require.NoError(t, err)

	// Live rate 50% above target, as after a large price move.
	drifted := rate.MulRaw(150).QuoRaw(100)
	decision, err := Reconcile(btcPool(), liveState(drifted.Int64()), params, quotes, sdkmath.Int{})
	require.NoError(t, err)
	require.True(t, decision.ShouldUpdate)
	require.Less(t, decision.ChangePercent, -5.0)
	require.True(t, decision.NewRewardRate.Equal(rate))
}

func TestZeroBandAlwaysProposes(t *testing.T) {
	params := defaultParams()
	params.MinChangePercent = 0
	quotes := quotesAt(93_464, 0.11)

	rate, _, err := rewardmath.RateFromAPR(params.TargetAPR, params.ExpectedStakedWei, 93_464/0.11, 8, rewardmath.SecondsPerYear)
	require.NoError(t, err)

	decision, err := Reconcile(btcPool(), liveState(rate.Int64()+1), params, quotes, sdkmath.Int{})
	require.NoError(t, err)
	require.True(t, decision.ShouldUpdate)
}

func TestIdenticalRateNeverProposes(t *testing.T) {
	params := defaultParams()
	params.MinChangePercent = 0
	quotes := quotesAt(93_464, 0.11)

	rate, _, err := rewardmath.RateFromAPR(params.TargetAPR, params.ExpectedStakedWei, 93_464/0.11, 8, rewardmath.SecondsPerYear)
	require.NoError(t, err)

	decision, err := Reconcile(btcPool(), liveState(rate.Int64()), params, quotes, sdkmath.Int{})
	require.NoError(t, err)
	require.False(t, decision.ShouldUpdate)
}

func TestBootstrapBypassesHysteresis(t *testing.T) {
	params := defaultParams()
	params.MinChangePercent = 50

	decision, err := Reconcile(btcPool(), liveState(0), params, quotesAt(93_464, 0.11), sdkmath.Int{})
	require.NoError(t, err)
	require.True(t, decision.ShouldUpdate)
	require.Equal(t, float64(100), decision.ChangePercent)
	require.True(t, decision.NewRewardRate.IsPositive())
}

func TestZeroAPRZeroRateIsQuiescent(t *testing.T) {
	params := defaultParams()
	params.TargetAPR = 0

	decision, err := Reconcile(btcPool(), liveState(0), params, quotesAt(93_464, 0.11), sdkmath.Int{})
	require.NoError(t, err)
	require.False(t, decision.ShouldUpdate)
}

func TestZeroTargetRateAgainstLiveRateNeverProposes(t *testing.T) {
	// A positive live rate cannot be zeroed via notify; proposing one would
	// make every cycle submit a reward the contract rejects.
	params := defaultParams()
	params.TargetAPR = 0
	params.MinChangePercent = 0

	decision, err := Reconcile(btcPool(), liveState(3_732), params, quotesAt(93_464, 0.11), sdkmath.Int{})
	require.NoError(t, err)
	require.False(t, decision.ShouldUpdate)
	require.True(t, decision.NewRewardRate.IsZero())
	require.InDelta(t, -100, decision.ChangePercent, 1e-9)
}

func TestInsufficientBalanceFlagged(t *testing.T) {
	params := defaultParams()
	decision, err := Reconcile(btcPool(), liveState(0), params, quotesAt(93_464, 0.11), sdkmath.OneInt())
	require.NoError(t, err)
	require.True(t, decision.ShouldUpdate)
	require.True(t, decision.InsufficientBalance)
	require.True(t, decision.TotalRewardToNotify.GT(sdkmath.OneInt()))
}

func TestSufficientBalanceNotFlagged(t *testing.T) {
	params := defaultParams()
	balance := stake(1_000_000) // far more than ~1.2 BTC in sats
	decision, err := Reconcile(btcPool(), liveState(0), params, quotesAt(93_464, 0.11), balance)
	require.NoError(t, err)
	require.True(t, decision.ShouldUpdate)
	require.False(t, decision.InsufficientBalance)
}

func TestNilBalanceSkipsGating(t *testing.T) {
	decision, err := Reconcile(btcPool(), liveState(0), defaultParams(), quotesAt(93_464, 0.11), sdkmath.Int{})
	require.NoError(t, err)
	require.True(t, decision.ShouldUpdate)
	require.False(t, decision.InsufficientBalance)
}

func TestExpectedStakeOverridesChain(t *testing.T) {
	params := defaultParams()
	live := liveState(0)
	live.TotalStaked = stake(1) // launch lag, nearly nothing staked yet

	decision, err := Reconcile(btcPool(), live, params, quotesAt(93_464, 0.11), sdkmath.Int{})
	require.NoError(t, err)

	wantRate, _, err := rewardmath.RateFromAPR(params.TargetAPR, stake(1_000_000_000), 93_464/0.11, 8, rewardmath.SecondsPerYear)
	require.NoError(t, err)
	require.True(t, decision.NewRewardRate.Equal(wantRate))
}

func TestChainStakeUsedWhenNoOverride(t *testing.T) {
	params := defaultParams()
	params.ExpectedStakedWei = sdkmath.Int{}
	live := liveState(0)
	live.TotalStaked = stake(250_000)

	decision, err := Reconcile(btcPool(), live, params, quotesAt(93_464, 0.11), sdkmath.Int{})
	require.NoError(t, err)

	wantRate, _, err := rewardmath.RateFromAPR(params.TargetAPR, stake(250_000), 93_464/0.11, 8, rewardmath.SecondsPerYear)
	require.NoError(t, err)
	require.True(t, decision.NewRewardRate.Equal(wantRate))
}

func TestMissingQuoteFails(t *testing.T) {
	quotes := quotesAt(93_464, 0.11)
	delete(quotes, "NBC")
	_, err := Reconcile(btcPool(), liveState(0), defaultParams(), quotes, sdkmath.Int{})
	require.ErrorIs(t, err, ErrMissingQuote)

	quotes = quotesAt(93_464, 0.11)
	delete(quotes, "BTC")
	_, err = Reconcile(btcPool(), liveState(0), defaultParams(), quotes, sdkmath.Int{})
	require.ErrorIs(t, err, ErrMissingQuote)
}

func TestInactivePoolRejected(t *testing.T) {
	live := liveState(0)
	live.Active = false
	_, err := Reconcile(btcPool(), live, defaultParams(), quotesAt(93_464, 0.11), sdkmath.Int{})
	require.ErrorIs(t, err, ErrInactivePool)
}

func TestConversionRateMultiplier(t *testing.T) {
	reward := types.PriceQuote{Symbol: "BTC", USDPrice: 100}
	base := types.PriceQuote{Symbol: "NBC", USDPrice: 0.5}

	rate, err := ConversionRate(reward, base, 1)
	require.NoError(t, err)
	require.InDelta(t, 200, rate, 1e-9)

	rate, err = ConversionRate(reward, base, 1.1)
	require.NoError(t, err)
	require.InDelta(t, 220, rate, 1e-9)

	_, err = ConversionRate(types.PriceQuote{Symbol: "BTC"}, base, 1)
	require.ErrorIs(t, err, ErrMissingQuote)
}

func TestPlanExcessWithdrawal(t *testing.T) {
	now := time.Now().Unix()
	live := types.PoolLiveState{
		RewardRate:   sdkmath.NewInt(10),
		PeriodFinish: now + 1000, // 10_000 wei still scheduled
	}
	target := sdkmath.NewInt(4_000)

	plan := PlanExcessWithdrawal(btcPool(), live, target, now)
	require.True(t, plan.RemainingReward.Equal(sdkmath.NewInt(10_000)))
	require.True(t, plan.WithdrawAmount.Equal(sdkmath.NewInt(6_000)))
	require.True(t, plan.NotifyAmount.Equal(target))
	require.True(t, plan.NeedsWithdraw())
}

func TestPlanExcessWithdrawalNoExcess(t *testing.T) {
	now := time.Now().Unix()
	live := types.PoolLiveState{
		RewardRate:   sdkmath.NewInt(10),
		PeriodFinish: now + 100, // only 1_000 wei remaining
	}
	target := sdkmath.NewInt(4_000)

	plan := PlanExcessWithdrawal(btcPool(), live, target, now)
	require.True(t, plan.WithdrawAmount.IsZero())
	require.False(t, plan.NeedsWithdraw())
	require.True(t, plan.NotifyAmount.Equal(target))
}

func TestPlanExcessExpiredPeriod(t *testing.T) {
	now := time.Now().Unix()
	live := types.PoolLiveState{
		RewardRate:   sdkmath.NewInt(10),
		PeriodFinish: now - 1,
	}
	plan := PlanExcessWithdrawal(btcPool(), live, sdkmath.NewInt(4_000), now)
	require.True(t, plan.RemainingReward.IsZero())
	require.False(t, plan.NeedsWithdraw())
}

func TestClassify(t *testing.T) {
	require.Equal(t, VerdictPass, Classify(0))
	require.Equal(t, VerdictPass, Classify(0.99))
	require.Equal(t, VerdictPass, Classify(-0.5))
	require.Equal(t, VerdictWarn, Classify(1))
	require.Equal(t, VerdictWarn, Classify(-4.9))
	require.Equal(t, VerdictFail, Classify(5))
	require.Equal(t, VerdictFail, Classify(-250))
}
