package adjuster

import (
	"context"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nbcex/reward-operator/internal/config"
	"github.com/nbcex/reward-operator/internal/logger"
	"github.com/nbcex/reward-operator/internal/oracle"
	"github.com/nbcex/reward-operator/internal/reconciler"
	"github.com/nbcex/reward-operator/internal/staking"
	"github.com/nbcex/reward-operator/internal/state"
	"github.com/nbcex/reward-operator/internal/types"
	"github.com/nbcex/reward-operator/internal/utils"
)

// interPoolDelay spaces out sequential pool processing so one cycle does not
// hammer the RPC endpoint and price vendors.
const interPoolDelay = 2 * time.Second

// Adjuster is the continuous reward-rate reconciliation daemon. It reads live
// pool state and prices every cycle and submits rate updates when the drift
// exceeds the hysteresis band.
type Adjuster struct {
	logger zerolog.Logger
	oracle *oracle.Client
	reader staking.ContractReader
	// mutator is nil in observe mode; decisions are computed and logged but
	// never submitted.
	mutator staking.ContractMutator

	pools  []types.PoolConfig
	params reconciler.Params

	// persistHistory enables adjustment records in Postgres.
	persistHistory bool

	cycleCount int
}

// Config holds the dependencies for creating a new Adjuster instance
type Config struct {
	Oracle  *oracle.Client
	Reader  staking.ContractReader
	Mutator staking.ContractMutator // nil means observe-only

	Pools  []types.PoolConfig
	Params reconciler.Params

	PersistHistory bool
}

// New creates an Adjuster with dependency injection
func New(cfg Config) (*Adjuster, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("adjuster configuration validation failed: %w", err)
	}

	a := &Adjuster{
		logger:         logger.GetForComponent("adjuster_core"),
		oracle:         cfg.Oracle,
		reader:         cfg.Reader,
		mutator:        cfg.Mutator,
		pools:          cfg.Pools,
		params:         cfg.Params,
		persistHistory: cfg.PersistHistory,
	}

	a.logger.Info().
		Int("pools", len(a.pools)).
		Bool("live", a.mutator != nil).
		Float64("targetAPR", a.params.TargetAPR).
		Float64("minChangePercent", a.params.MinChangePercent).
		Msg("Adjuster instance created")

	return a, nil
}

func validateConfig(cfg Config) error {
	if cfg.Oracle == nil {
		return fmt.Errorf("price oracle cannot be nil")
	}
	if cfg.Reader == nil {
		return fmt.Errorf("contract reader cannot be nil")
	}
	if len(cfg.Pools) == 0 {
		return fmt.Errorf("at least one pool must be configured")
	}
	if cfg.Params.BaseSymbol == "" {
		return fmt.Errorf("base asset symbol cannot be empty")
	}
	if cfg.Params.TargetAPR < 0 {
		return fmt.Errorf("target APR cannot be negative")
	}
	return nil
}

// RunLoop starts the main adjustment loop with the specified interval
func (a *Adjuster) RunLoop(ctx context.Context, interval time.Duration) {
	a.logger.Info().
		Dur("interval", interval).
		Msg("Starting adjuster main loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run first cycle immediately
	a.cycleCount++
	a.logger.Info().Int("cycle", a.cycleCount).Msg("Initiating adjustment cycle")
	a.RunCycle(ctx)
	a.logger.Info().Int("cycle", a.cycleCount).Msg("Adjustment cycle completed")

	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("Adjuster loop stopped due to context cancellation")
			return
		case <-ticker.C:
			a.cycleCount++
			a.logger.Info().Int("cycle", a.cycleCount).Msg("Initiating adjustment cycle")
			a.RunCycle(ctx)
			a.logger.Info().Int("cycle", a.cycleCount).Msg("Adjustment cycle completed")
		}
	}
}

// RunCycle executes one complete reconciliation pass over every configured
// pool. Per-pool failures are logged and skipped; one broken pool or vendor
// must not stall the others.
func (a *Adjuster) RunCycle(ctx context.Context) {
	cycleStartTime := time.Now()

	// Unique cycle ID for tracing logs across the whole cycle
	cycleID := uuid.New().String()
	cycleLogger := a.logger.With().Str("cycle_id", cycleID).Logger()

	cycleLogger.Info().Msg("--- Starting adjustment cycle ---")

	cycleNumber := a.cycleCount
	if a.persistHistory {
		if n, err := state.IncrementCycleNumber(); err != nil {
			cycleLogger.Error().Err(err).Msg("Failed to increment persistent cycle counter, using in-memory count")
		} else {
			cycleNumber = n
		}
	}

	// One price fan-out per cycle. Every pool in the cycle sees the same
	// quotes, so two pools never disagree about what the base asset costs.
	assets := make([]oracle.Asset, 0, len(a.pools)+1)
	assets = append(assets, oracle.Asset{Symbol: a.params.BaseSymbol, Aliases: config.BaseAssetAliases})
	for _, pool := range a.pools {
		assets = append(assets, oracle.AssetForPool(pool))
	}
	quotes := a.oracle.GetPrices(ctx, assets)

	if _, ok := quotes[a.params.BaseSymbol]; !ok {
		cycleLogger.Error().
			Str("baseSymbol", a.params.BaseSymbol).
			Msg("Base asset price unavailable, aborting cycle: no conversion rate can be computed")
		return
	}

	updated, skipped, failed := 0, 0, 0
	for i, pool := range a.pools {
		if i > 0 {
			select {
			case <-ctx.Done():
				cycleLogger.Warn().Msg("Cycle interrupted by context cancellation")
				return
			case <-time.After(interPoolDelay):
			}
		}

		poolLogger := cycleLogger.With().Str("pool", pool.Symbol).Uint64("poolIndex", pool.PoolIndex).Logger()

		decision, result, err := a.processPool(ctx, poolLogger, pool, quotes)
		if a.persistHistory && decision != nil {
			a.recordAdjustment(poolLogger, cycleID, cycleNumber, *decision, result, err)
		}

		switch {
		case err != nil:
			poolLogger.Error().Err(err).Msg("Pool reconciliation failed")
			failed++
		case decision != nil && decision.ShouldUpdate && result != nil:
			updated++
		default:
			skipped++
		}
	}

	cycleLogger.Info().
		Int("updated", updated).
		Int("skipped", skipped).
		Int("failed", failed).
		Dur("duration", time.Since(cycleStartTime)).
		Msg("--- Adjustment cycle finished ---")
}

// processPool reconciles one pool and submits the resulting update when
// running live. The returned result is nil when nothing was broadcast.
func (a *Adjuster) processPool(
	ctx context.Context,
	poolLogger zerolog.Logger,
	pool types.PoolConfig,
	quotes map[string]types.PriceQuote,
) (*types.RewardUpdateDecision, *types.TransactionResult, error) {
	live, err := a.reader.PoolState(ctx, pool.PoolIndex)
	if err != nil {
		return nil, nil, err
	}
	if !live.Active {
		poolLogger.Info().Msg("Pool inactive on-chain, skipping")
		return nil, nil, nil
	}

	operatorBalance := sdkmath.Int{}
	if a.mutator != nil {
		operatorBalance, err = a.reader.OperatorBalance(ctx, live.RewardToken, a.mutator.Address())
		if err != nil {
			return nil, nil, fmt.Errorf("operator balance check: %w", err)
		}
	}

	decision, err := reconciler.Reconcile(pool, live, a.params, quotes, operatorBalance)
	if err != nil {
		return nil, nil, err
	}

	poolLogger.Info().
		Bool("shouldUpdate", decision.ShouldUpdate).
		Float64("changePercent", decision.ChangePercent).
		Float64("currentAPR", decision.CurrentAPR).
		Float64("targetAPR", decision.TargetAPR).
		Str("currentRate", decision.CurrentRewardRate.String()).
		Str("newRate", decision.NewRewardRate.String()).
		Msg("Reconciliation decision computed")

	if !decision.ShouldUpdate {
		return &decision, nil, nil
	}

	if decision.InsufficientBalance {
		needed, _ := utils.WeiToFloat64(decision.TotalRewardToNotify, pool.Decimals)
		have, _ := utils.WeiToFloat64(decision.OperatorBalance, pool.Decimals)
		poolLogger.Error().
			Float64("needed", needed).
			Float64("available", have).
			Msg("Operator balance cannot fund the notify amount, update withheld")
		return &decision, nil, nil
	}

	if a.mutator == nil {
		poolLogger.Info().Msg("Observe mode: update proposed but not submitted")
		return &decision, nil, nil
	}

	result, err := a.mutator.NotifyRewardAmount(ctx, pool.PoolIndex, decision.TotalRewardToNotify)
	if err != nil {
		return &decision, nil, fmt.Errorf("notifyRewardAmount submission: %w", err)
	}

	poolLogger.Info().
		Str("txHash", result.TxHash).
		Uint64("gasUsed", result.GasUsed).
		Msg("Reward rate updated on-chain")

	return &decision, &result, nil
}

// recordAdjustment persists one decision to the history store. Persistence
// failures are logged, never fatal; history is an audit trail, not a
// dependency of the control loop.
func (a *Adjuster) recordAdjustment(
	poolLogger zerolog.Logger,
	cycleID string,
	cycleNumber int,
	decision types.RewardUpdateDecision,
	result *types.TransactionResult,
	procErr error,
) {
	record := types.AdjustmentRecord{
		CycleID:     cycleID,
		CycleNumber: cycleNumber,
		Timestamp:   time.Now().UTC(),
		Decision:    decision,
	}
	if result != nil {
		record.Submitted = true
		record.TxHash = result.TxHash
		record.GasUsed = result.GasUsed
	}
	if procErr != nil {
		record.Error = procErr.Error()
	}

	if _, err := state.SaveAdjustmentRecord(record); err != nil {
		poolLogger.Error().Err(err).Msg("Failed to persist adjustment record")
	}
}
