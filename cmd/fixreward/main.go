// fixreward repairs a pool whose contract holds more unexpired reward than
// the target rate needs, usually after a notify was sent against a broken
// rewardsDuration. The repair is two strictly ordered transactions: withdraw
// the excess first, then notify the correct epoch total. Dry-run by default.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/nbcex/reward-operator/internal/config"
	"github.com/nbcex/reward-operator/internal/logger"
	"github.com/nbcex/reward-operator/internal/oracle"
	"github.com/nbcex/reward-operator/internal/reconciler"
	"github.com/nbcex/reward-operator/internal/rewardmath"
	"github.com/nbcex/reward-operator/internal/staking"
	"github.com/nbcex/reward-operator/internal/utils"
)

func main() {
	poolFlag := flag.String("pool", "", "pool symbol to repair (required)")
	targetAPR := flag.Float64("target-apr", -1, "target APR percent (default: TARGET_APR env)")
	expectedStaked := flag.String("expected-staked", "", "expected total stake in NBC (default: TOTAL_STAKED_NBC env)")
	execute := flag.Bool("execute", false, "broadcast transactions (default: dry run)")
	dryRun := flag.Bool("dry-run", false, "force dry run even when --execute is set")
	flag.Parse()

	if *dryRun {
		*execute = false
	}

	if *poolFlag == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Initialize(os.Getenv("LOG_LEVEL"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := config.PoolBySymbol(*poolFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Unknown pool")
	}

	apr := config.TargetAPR
	if *targetAPR >= 0 {
		apr = *targetAPR
	}

	stakedStr := config.TotalStakedNBC
	if *expectedStaked != "" {
		stakedStr = *expectedStaked
	}
	stakedWei, err := utils.DecimalStringToWei(stakedStr, config.BaseAssetDecimals)
	if err != nil {
		log.Fatal().Err(err).Str("expectedStaked", stakedStr).Msg("Invalid expected stake")
	}

	ethClient, err := ethclient.Dial(config.RPCURL)
	if err != nil {
		log.Fatal().Err(err).Str("rpc", config.RPCURL).Msg("Failed to connect to RPC endpoint")
	}
	defer ethClient.Close()

	reader, err := staking.NewReader(ethClient, config.StakingContractAddress, config.RewardsDuration, false)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize contract reader")
	}

	live, err := reader.PoolState(ctx, pool.PoolIndex)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read pool state")
	}

	priceOracle := oracle.NewClient(config.AllowStaticPriceFallback)
	quotes := priceOracle.GetPrices(ctx, []oracle.Asset{
		{Symbol: config.BaseAssetSymbol, Aliases: config.BaseAssetAliases},
		oracle.AssetForPool(pool),
	})
	rewardQuote, ok := quotes[pool.Symbol]
	if !ok {
		log.Fatal().Str("symbol", pool.Symbol).Msg("Reward token price unavailable")
	}
	baseQuote, ok := quotes[config.BaseAssetSymbol]
	if !ok {
		log.Fatal().Str("symbol", config.BaseAssetSymbol).Msg("Base asset price unavailable")
	}

	conversionRate, err := reconciler.ConversionRate(rewardQuote, baseQuote, config.PriceMultiplier)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to derive conversion rate")
	}

	_, targetTotal, err := rewardmath.RateFromAPR(apr, stakedWei, conversionRate, pool.Decimals, live.RewardsDuration)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to compute target epoch total")
	}

	plan := reconciler.PlanExcessWithdrawal(pool, live, targetTotal, time.Now().Unix())

	log.Info().
		Str("pool", pool.Symbol).
		Str("remainingReward", plan.RemainingReward.String()).
		Str("targetTotal", plan.TargetTotal.String()).
		Str("withdrawAmount", plan.WithdrawAmount.String()).
		Str("notifyAmount", plan.NotifyAmount.String()).
		Int64("rewardsDuration", live.RewardsDuration).
		Bool("durationSuspect", live.DurationSuspect).
		Msg("Repair plan")

	if !plan.NeedsWithdraw() {
		// Without an excess to remove there is nothing for this tool to
		// repair, and notifying targetTotal against a pool that holds less
		// would revert. Rate-only drift is resetrate's job.
		log.Info().Msg("No excess to withdraw, nothing to repair; use resetrate if only the rate is wrong")
		return
	}

	if !*execute {
		log.Info().Msg("Dry run: pass --execute to broadcast.")
		return
	}

	log.Warn().Msg("Execute mode: transactions WILL be broadcast.")
	if err := config.RequireSigner(); err != nil {
		log.Fatal().Err(err).Msg("Cannot execute without a signing key")
	}
	mutator, err := staking.NewMutator(ctx, ethClient, config.StakingContractAddress, config.PrivateKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize transaction signer")
	}
	if err := mutator.EnsureOwner(ctx, reader); err != nil {
		log.Fatal().Err(err).Msg("Signer authorization check failed")
	}

	// Withdraw must land before the notify. If the withdraw fails, stop:
	// notifying on top of the excess would bake it into the new rate.
	withdrawResult, err := mutator.EmergencyWithdrawReward(ctx, pool.PoolIndex, plan.WithdrawAmount)
	if err != nil {
		log.Fatal().Err(err).Msg("Excess withdrawal failed, aborting before notify")
	}
	log.Info().
		Str("txHash", withdrawResult.TxHash).
		Uint64("gasUsed", withdrawResult.GasUsed).
		Msg("Excess reward withdrawn")

	result, err := mutator.NotifyRewardAmount(ctx, pool.PoolIndex, plan.NotifyAmount)
	if err != nil {
		log.Fatal().Err(err).Msg("Notify failed; pool is withdrawn but not re-notified, rerun fixreward")
	}
	log.Info().
		Str("txHash", result.TxHash).
		Uint64("gasUsed", result.GasUsed).
		Msg("Pool reward repaired")
}
