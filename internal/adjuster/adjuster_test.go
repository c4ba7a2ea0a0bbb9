package adjuster

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/nbcex/reward-operator/internal/logger"
	"github.com/nbcex/reward-operator/internal/oracle"
	"github.com/nbcex/reward-operator/internal/reconciler"
	"github.com/nbcex/reward-operator/internal/rewardmath"
	"github.com/nbcex/reward-operator/internal/types"
)

func init() {
	logger.Initialize("error")
}

// fakeReader serves canned pool state and operator balances.
type fakeReader struct {
	state   types.PoolLiveState
	balance sdkmath.Int
}

func (f *fakeReader) PoolState(ctx context.Context, poolIndex uint64) (types.PoolLiveState, error) {
	return f.state, nil
}

func (f *fakeReader) OperatorBalance(ctx context.Context, token, operator common.Address) (sdkmath.Int, error) {
	return f.balance, nil
}

// fakeMutator records every mutation instead of broadcasting.
type fakeMutator struct {
	notifyCalls   int
	withdrawCalls int
	lastReward    sdkmath.Int
}

func (f *fakeMutator) Address() common.Address {
	return common.HexToAddress("0x00000000000000000000000000000000000000A1")
}

func (f *fakeMutator) NotifyRewardAmount(ctx context.Context, poolIndex uint64, reward sdkmath.Int) (types.TransactionResult, error) {
	f.notifyCalls++
	f.lastReward = reward
	return types.TransactionResult{TxHash: "0xfake", GasUsed: 21000, Success: true}, nil
}

func (f *fakeMutator) EmergencyWithdrawReward(ctx context.Context, poolIndex uint64, amount sdkmath.Int) (types.TransactionResult, error) {
	f.withdrawCalls++
	return types.TransactionResult{TxHash: "0xfake", Success: true}, nil
}

func btcPool() types.PoolConfig {
	return types.PoolConfig{Symbol: "BTC", PoolIndex: 0, Decimals: 8}
}

func stake(nbc int64) sdkmath.Int {
	return sdkmath.NewInt(nbc).Mul(sdkmath.NewIntWithDecimal(1, 18))
}

func testQuotes() map[string]types.PriceQuote {
	now := time.Now()
	return map[string]types.PriceQuote{
		"BTC": {Symbol: "BTC", USDPrice: 93_464, Source: types.ProviderBinance, FetchedAt: now},
		"NBC": {Symbol: "NBC", USDPrice: 0.11, Source: types.ProviderNBCEX, FetchedAt: now},
	}
}

func testParams() reconciler.Params {
	return reconciler.Params{
		TargetAPR:         100,
		ExpectedStakedWei: stake(1_000_000),
		MinChangePercent:  5,
		PriceMultiplier:   1,
		BaseSymbol:        "NBC",
	}
}

// bootstrapState is a live, never-notified pool: reconciliation always
// proposes an update for it.
func bootstrapState() types.PoolLiveState {
	return types.PoolLiveState{
		RewardRate:      sdkmath.ZeroInt(),
		TotalStaked:     stake(1_000_000),
		RewardsDuration: rewardmath.SecondsPerYear,
		Active:          true,
	}
}

func newTestAdjuster(t *testing.T, reader *fakeReader, mutator *fakeMutator) *Adjuster {
	t.Helper()
	cfg := Config{
		Oracle: oracle.NewClient(false),
		Reader: reader,
		Pools:  []types.PoolConfig{btcPool()},
		Params: testParams(),
	}
	if mutator != nil {
		cfg.Mutator = mutator
	}
	a, err := New(cfg)
	require.NoError(t, err)
	return a
}

func TestInsufficientBalanceNeverSubmits(t *testing.T) {
	reader := &fakeReader{state: bootstrapState(), balance: sdkmath.OneInt()}
	mutator := &fakeMutator{}
	a := newTestAdjuster(t, reader, mutator)

	decision, result, err := a.processPool(context.Background(), a.logger, btcPool(), testQuotes())
	require.NoError(t, err)
	require.NotNil(t, decision)
	require.True(t, decision.ShouldUpdate)
	require.True(t, decision.InsufficientBalance)
	require.Nil(t, result)
	require.Zero(t, mutator.notifyCalls, "an unfunded update must never be broadcast")
	require.Zero(t, mutator.withdrawCalls)
}

func TestObserveModeNeverSubmits(t *testing.T) {
	reader := &fakeReader{state: bootstrapState(), balance: sdkmath.ZeroInt()}
	a := newTestAdjuster(t, reader, nil)

	decision, result, err := a.processPool(context.Background(), a.logger, btcPool(), testQuotes())
	require.NoError(t, err)
	require.NotNil(t, decision)
	require.True(t, decision.ShouldUpdate)
	require.Nil(t, result)
}

func TestFundedUpdateSubmitsNotifyTotal(t *testing.T) {
	reader := &fakeReader{state: bootstrapState(), balance: stake(1)}
	mutator := &fakeMutator{}
	a := newTestAdjuster(t, reader, mutator)

	decision, result, err := a.processPool(context.Background(), a.logger, btcPool(), testQuotes())
	require.NoError(t, err)
	require.True(t, decision.ShouldUpdate)
	require.NotNil(t, result)
	require.Equal(t, 1, mutator.notifyCalls)
	require.True(t, mutator.lastReward.Equal(decision.TotalRewardToNotify))
}

func TestWithinBandSkipsSubmission(t *testing.T) {
	state := bootstrapState()
	// Live rate exactly at target: no drift, no tx.
	rate, _, err := rewardmath.RateFromAPR(100, stake(1_000_000), 93_464/0.11, 8, rewardmath.SecondsPerYear)
	require.NoError(t, err)
	state.RewardRate = rate

	reader := &fakeReader{state: state, balance: stake(1)}
	mutator := &fakeMutator{}
	a := newTestAdjuster(t, reader, mutator)

	decision, result, err := a.processPool(context.Background(), a.logger, btcPool(), testQuotes())
	require.NoError(t, err)
	require.False(t, decision.ShouldUpdate)
	require.Nil(t, result)
	require.Zero(t, mutator.notifyCalls)
}

func TestInactivePoolSkipped(t *testing.T) {
	state := bootstrapState()
	state.Active = false
	reader := &fakeReader{state: state, balance: stake(1)}
	mutator := &fakeMutator{}
	a := newTestAdjuster(t, reader, mutator)

	decision, result, err := a.processPool(context.Background(), a.logger, btcPool(), testQuotes())
	require.NoError(t, err)
	require.Nil(t, decision)
	require.Nil(t, result)
	require.Zero(t, mutator.notifyCalls)
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	valid := func() Config {
		return Config{
			Oracle: oracle.NewClient(false),
			Reader: &fakeReader{},
			Pools:  []types.PoolConfig{btcPool()},
			Params: testParams(),
		}
	}

	cfg := valid()
	cfg.Oracle = nil
	_, err := New(cfg)
	require.Error(t, err)

	cfg = valid()
	cfg.Reader = nil
	_, err = New(cfg)
	require.Error(t, err)

	cfg = valid()
	cfg.Pools = nil
	_, err = New(cfg)
	require.Error(t, err)

	cfg = valid()
	cfg.Params.BaseSymbol = ""
	_, err = New(cfg)
	require.Error(t, err)
}

func TestNewAcceptsObserveMode(t *testing.T) {
	// A nil mutator is a valid configuration: observe-only.
	a := newTestAdjuster(t, &fakeReader{}, nil)
	require.Nil(t, a.mutator)
}
