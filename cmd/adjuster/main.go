package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/nbcex/reward-operator/internal/adjuster"
	"github.com/nbcex/reward-operator/internal/config"
	"github.com/nbcex/reward-operator/internal/logger"
	"github.com/nbcex/reward-operator/internal/oracle"
	"github.com/nbcex/reward-operator/internal/reconciler"
	"github.com/nbcex/reward-operator/internal/staking"
	"github.com/nbcex/reward-operator/internal/state"
	"github.com/nbcex/reward-operator/internal/utils"
)

// main is the entry point for the continuous reward-rate adjuster daemon.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("Reward adjuster starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Adjustment history is optional; without a database the daemon still
	// runs, it just keeps no audit trail.
	persistHistory := false
	if os.Getenv("DB_HOST") != "" {
		dbCfg := state.DBConfig{
			Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
			User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
			DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
		}
		if err := state.InitDB(dbCfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
		if cycle, err := state.GetCurrentCycleNumber(); err != nil {
			log.Warn().Err(err).Msg("Could not read persistent cycle counter")
		} else {
			log.Info().Int("lastCycle", cycle).Msg("Resuming adjustment history")
		}
		persistHistory = true
	} else {
		log.Warn().Msg("DB_HOST not set, running without adjustment history")
	}

	// --- 2. Chain and Oracle Clients ---
	ethClient, err := ethclient.Dial(config.RPCURL)
	if err != nil {
		log.Fatal().Err(err).Str("rpc", config.RPCURL).Msg("Failed to connect to RPC endpoint")
	}
	defer ethClient.Close()
	log.Info().Str("endpoint", config.RPCURL).Msg("RPC connected")

	reader, err := staking.NewReader(ethClient, config.StakingContractAddress, config.RewardsDuration, false)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize contract reader")
	}

	priceOracle := oracle.NewClient(config.AllowStaticPriceFallback)

	// --- 3. Transaction Signer (with Safety Switch) ---
	// Left nil outside live mode so the adjuster stays in observe mode; a
	// typed-nil *staking.Mutator in the interface field would pass the nil
	// check and panic on use.
	var mutator staking.ContractMutator
	if config.OperatorMode == "live" {
		log.Warn().Msg("Initializing adjuster in LIVE mode. Real transactions will be broadcast.")
		if err := config.RequireSigner(); err != nil {
			log.Fatal().Err(err).Msg("Cannot run live without a signing key")
		}
		liveMutator, err := staking.NewMutator(ctx, ethClient, config.StakingContractAddress, config.PrivateKey)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize transaction signer")
		}
		if err := liveMutator.EnsureOwner(ctx, reader); err != nil {
			log.Fatal().Err(err).Msg("Signer authorization check failed")
		}
		mutator = liveMutator
	} else {
		log.Warn().Msg("OPERATOR_MODE is not 'live'. Running in observe mode: decisions are computed but never submitted.")
	}

	expectedStaked, err := utils.DecimalStringToWei(config.TotalStakedNBC, config.BaseAssetDecimals)
	if err != nil {
		log.Fatal().Err(err).Str("TOTAL_STAKED_NBC", config.TotalStakedNBC).Msg("Invalid expected stake")
	}

	// --- 4. Create Adjuster Instance with Dependency Injection ---
	adjusterInstance, err := adjuster.New(adjuster.Config{
		Oracle:  priceOracle,
		Reader:  reader,
		Mutator: mutator,
		Pools:   config.RewardPools,
		Params: reconciler.Params{
			TargetAPR:         config.TargetAPR,
			ExpectedStakedWei: expectedStaked,
			MinChangePercent:  config.MinPriceChange,
			PriceMultiplier:   config.PriceMultiplier,
			BaseSymbol:        config.BaseAssetSymbol,
		},
		PersistHistory: persistHistory,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create adjuster instance")
	}

	// --- 5. Start Main Loop ---
	log.Info().Str("interval", config.UpdateInterval.String()).Msg("Starting adjustment loop")
	adjusterInstance.RunLoop(ctx, config.UpdateInterval)

	log.Info().Msg("Reward adjuster stopped")
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
