package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// RPCURL is the EVM JSON-RPC endpoint.
	RPCURL string
	// StakingContractAddress is the hex address of the staking contract.
	StakingContractAddress string
	// PrivateKey is the operator's signing key (hex, 0x prefix optional).
	// Optional at load time; mutating tools must call RequireSigner.
	PrivateKey string

	// TotalStakedNBC is the expected total stake, as a human-readable NBC
	// decimal string. Used when a tool targets an expected stake rather
	// than the live on-chain total.
	TotalStakedNBC string
	// TargetAPR is the default target APR percentage.
	TargetAPR float64
	// RewardsDuration is the default reward epoch length in seconds, used
	// when the chain value is unavailable or untrusted.
	RewardsDuration int64
	// UpdateInterval is the continuous adjuster's cycle interval.
	UpdateInterval time.Duration
	// PriceMultiplier scales the reward-token/base-asset conversion rate.
	PriceMultiplier float64
	// MinPriceChange is the hysteresis threshold in percent below which a
	// rate change is not worth a transaction.
	MinPriceChange float64
	// AllowStaticPriceFallback enables the hard-coded degraded price table
	// when every live provider fails. Off by default; quotes served from it
	// are loudly logged and marked with ProviderFallback.
	AllowStaticPriceFallback bool
	// OperatorMode gates real transaction broadcast in the continuous
	// adjuster. Must be "live" for mutations to be submitted.
	OperatorMode string
)

// ErrInvalidInput marks configuration or flag values that fail validation
// before any network call is made.
var ErrInvalidInput = errors.New("invalid input")

// LoadConfig loads configuration from environment variables and sets the
// global config vars. RPC_URL and STAKING_CONTRACT_ADDRESS are required;
// everything else has an operational default.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	RPCURL, err = getEnv("RPC_URL")
	if err != nil {
		return err
	}

	StakingContractAddress, err = getEnv("STAKING_CONTRACT_ADDRESS")
	if err != nil {
		return err
	}

	PrivateKey = os.Getenv("PRIVATE_KEY")

	TotalStakedNBC = getEnvOr("TOTAL_STAKED_NBC", "1000000")

	TargetAPR, err = getEnvAsFloat64("TARGET_APR", 100)
	if err != nil {
		return err
	}
	if TargetAPR < 0 {
		return errors.Join(ErrInvalidInput, errors.New("TARGET_APR cannot be negative"))
	}

	RewardsDuration, err = getEnvAsInt64("REWARDS_DURATION", 31536000)
	if err != nil {
		return err
	}
	if RewardsDuration <= 0 {
		return errors.Join(ErrInvalidInput, errors.New("REWARDS_DURATION must be positive"))
	}

	intervalSec, err := getEnvAsInt64("UPDATE_INTERVAL", 300)
	if err != nil {
		return err
	}
	if intervalSec <= 0 {
		return errors.Join(ErrInvalidInput, errors.New("UPDATE_INTERVAL must be positive"))
	}
	UpdateInterval = time.Duration(intervalSec) * time.Second

	PriceMultiplier, err = getEnvAsFloat64("PRICE_MULTIPLIER", 1.0)
	if err != nil {
		return err
	}
	if PriceMultiplier <= 0 {
		return errors.Join(ErrInvalidInput, errors.New("PRICE_MULTIPLIER must be positive"))
	}

	MinPriceChange, err = getEnvAsFloat64("MIN_PRICE_CHANGE", 5.0)
	if err != nil {
		return err
	}
	if MinPriceChange < 0 {
		return errors.Join(ErrInvalidInput, errors.New("MIN_PRICE_CHANGE cannot be negative"))
	}

	AllowStaticPriceFallback = os.Getenv("ALLOW_STATIC_PRICE_FALLBACK") == "true"
	OperatorMode = os.Getenv("OPERATOR_MODE")

	log.Debug().
		Str("RPCURL", RPCURL).
		Str("StakingContract", StakingContractAddress).
		Float64("TargetAPR", TargetAPR).
		Int64("RewardsDuration", RewardsDuration).
		Dur("UpdateInterval", UpdateInterval).
		Float64("MinPriceChange", MinPriceChange).
		Bool("AllowStaticPriceFallback", AllowStaticPriceFallback).
		Msg("Configuration loaded successfully.")

	return nil
}

// RequireSigner verifies that a private key was provided. Mutating tools call
// this before constructing a transaction signer.
func RequireSigner() error {
	if PrivateKey == "" {
		return errors.Join(ErrInvalidInput, errors.New("environment variable PRIVATE_KEY is required for this operation"))
	}
	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOr retrieves a string environment variable with a default.
func getEnvOr(key, def string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return def
}

// getEnvAsFloat64 retrieves an environment variable as float64 with a default.
func getEnvAsFloat64(key string, def float64) (float64, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return def, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " is not a valid number: " + valueStr)
	}
	return value, nil
}

// getEnvAsInt64 retrieves an environment variable as int64 with a default.
func getEnvAsInt64(key string, def int64) (int64, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return def, nil
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " is not a valid integer: " + valueStr)
	}
	return value, nil
}
