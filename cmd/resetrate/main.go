// resetrate recomputes each pool's reward rate from the target APR at current
// prices and pushes it on-chain, ignoring the hysteresis band the continuous
// adjuster applies. Dry-run by default; pass --execute to broadcast.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/nbcex/reward-operator/internal/config"
	"github.com/nbcex/reward-operator/internal/logger"
	"github.com/nbcex/reward-operator/internal/oracle"
	"github.com/nbcex/reward-operator/internal/reconciler"
	"github.com/nbcex/reward-operator/internal/rewardmath"
	"github.com/nbcex/reward-operator/internal/staking"
	"github.com/nbcex/reward-operator/internal/types"
	"github.com/nbcex/reward-operator/internal/utils"
)

func main() {
	poolFlag := flag.String("pool", "all", "pool symbol to reset, or 'all'")
	targetAPR := flag.Float64("target-apr", -1, "target APR percent (default: TARGET_APR env)")
	expectedStaked := flag.String("expected-staked", "", "expected total stake in NBC (default: TOTAL_STAKED_NBC env)")
	execute := flag.Bool("execute", false, "broadcast transactions (default: dry run)")
	dryRun := flag.Bool("dry-run", false, "force dry run even when --execute is set")
	useOneYear := flag.Bool("use-one-year", false, "force a 1-year rewards duration regardless of chain state")
	useRemixDuration := flag.Bool("use-remix-duration", false, "trust the on-chain rewardsDuration even when it fails the sanity bound")
	flag.Parse()

	if *dryRun {
		*execute = false
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

	pools := config.RewardPools
	if *poolFlag != "all" {
		pool, err := config.PoolBySymbol(*poolFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Unknown pool")
		}
		pools = []types.PoolConfig{pool}
	}

	ethClient, err := ethclient.Dial(config.RPCURL)
	if err != nil {
		log.Fatal().Err(err).Str("rpc", config.RPCURL).Msg("Failed to connect to RPC endpoint")
	}
	defer ethClient.Close()

	reader, err := staking.NewReader(ethClient, config.StakingContractAddress, config.RewardsDuration, *useRemixDuration)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize contract reader")
	}

	var mutator *staking.Mutator
	if *execute {
		log.Warn().Msg("Execute mode: transactions WILL be broadcast.")
		if err := config.RequireSigner(); err != nil {
			log.Fatal().Err(err).Msg("Cannot execute without a signing key")
		}
		mutator, err = staking.NewMutator(ctx, ethClient, config.StakingContractAddress, config.PrivateKey)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize transaction signer")
		}
		if err := mutator.EnsureOwner(ctx, reader); err != nil {
			log.Fatal().Err(err).Msg("Signer authorization check failed")
		}
	} else {
		log.Info().Msg("Dry run: pass --execute to broadcast.")
	}

	priceOracle := oracle.NewClient(config.AllowStaticPriceFallback)
	assets := []oracle.Asset{{Symbol: config.BaseAssetSymbol, Aliases: config.BaseAssetAliases}}
	for _, pool := range pools {
		assets = append(assets, oracle.AssetForPool(pool))
	}
	quotes := priceOracle.GetPrices(ctx, assets)
	if _, ok := quotes[config.BaseAssetSymbol]; !ok {
		log.Fatal().Str("symbol", config.BaseAssetSymbol).Msg("Base asset price unavailable")
	}

	params := reconciler.Params{
		TargetAPR:         apr,
		ExpectedStakedWei: stakedWei,
		MinChangePercent:  0, // a reset always proposes
		PriceMultiplier:   config.PriceMultiplier,
		BaseSymbol:        config.BaseAssetSymbol,
	}

	failures := 0
	for _, pool := range pools {
		if err := resetPool(ctx, reader, mutator, pool, params, quotes, *useOneYear); err != nil {
			log.Error().Err(err).Str("pool", pool.Symbol).Msg("Pool reset failed")
			failures++
		}
	}

	if failures > 0 {
		log.Error().Int("failures", failures).Msg("Some pools failed")
		os.Exit(1)
	}
	log.Info().Msg("All pools processed")
}

func resetPool(
	ctx context.Context,
	reader *staking.Reader,
	mutator *staking.Mutator,
	pool types.PoolConfig,
	params reconciler.Params,
	quotes map[string]types.PriceQuote,
	useOneYear bool,
) error {
	live, err := reader.PoolState(ctx, pool.PoolIndex)
	if err != nil {
		return err
	}
	if useOneYear {
		live.RewardsDuration = rewardmath.SecondsPerYear
	}

	operatorBalance := sdkmath.Int{}
	if mutator != nil {
		operatorBalance, err = reader.OperatorBalance(ctx, live.RewardToken, mutator.Address())
		if err != nil {
			return fmt.Errorf("operator balance check: %w", err)
		}
	}

	decision, err := reconciler.Reconcile(pool, live, params, quotes, operatorBalance)
	if err != nil {
		return err
	}

	log.Info().
		Str("pool", pool.Symbol).
		Str("currentRate", decision.CurrentRewardRate.String()).
		Str("newRate", decision.NewRewardRate.String()).
		Str("notifyAmount", decision.TotalRewardToNotify.String()).
		Float64("currentAPR", decision.CurrentAPR).
		Float64("targetAPR", decision.TargetAPR).
		Float64("conversionRate", decision.ConversionRate).
		Int64("rewardsDuration", live.RewardsDuration).
		Msg("Reset proposal")

	if !decision.ShouldUpdate {
		log.Info().Str("pool", pool.Symbol).Msg("Live rate already matches target, nothing to do")
		return nil
	}
	if decision.InsufficientBalance {
		return fmt.Errorf("operator balance %s cannot fund notify amount %s",
			decision.OperatorBalance.String(), decision.TotalRewardToNotify.String())
	}
	if mutator == nil {
		return nil
	}

	result, err := mutator.NotifyRewardAmount(ctx, pool.PoolIndex, decision.TotalRewardToNotify)
	if err != nil {
		return err
	}
	log.Info().
		Str("pool", pool.Symbol).
		Str("txHash", result.TxHash).
		Uint64("gasUsed", result.GasUsed).
		Msg("Reward rate reset on-chain")
	return nil
}
