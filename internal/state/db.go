package state

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(10)
	DB.SetMaxIdleConns(10)
	DB.SetConnMaxLifetime(5 * time.Minute)

	if err := DB.Ping(); err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the DDL for the adjustment history tables. Safe to run
// on every start.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS reward_adjustments (
			record_id BIGSERIAL PRIMARY KEY,
			cycle_id VARCHAR(64) NOT NULL,
			cycle_number INTEGER NOT NULL,
			adjusted_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			pool_symbol VARCHAR(16) NOT NULL,
			pool_index INTEGER NOT NULL,
			should_update BOOLEAN NOT NULL,
			change_percent DECIMAL(12, 4) NOT NULL,
			current_reward_rate NUMERIC(78, 0) NOT NULL,
			new_reward_rate NUMERIC(78, 0) NOT NULL,
			total_reward_to_notify NUMERIC(78, 0) NOT NULL,
			insufficient_balance BOOLEAN NOT NULL DEFAULT FALSE,
			conversion_rate DECIMAL(30, 10) NOT NULL,
			current_apr DECIMAL(12, 4) NOT NULL,
			target_apr DECIMAL(12, 4) NOT NULL,
			submitted BOOLEAN NOT NULL DEFAULT FALSE,
			tx_hash VARCHAR(66),
			gas_used BIGINT,
			error_message TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_reward_adjustments_cycle ON reward_adjustments(cycle_number DESC);
		CREATE INDEX IF NOT EXISTS idx_reward_adjustments_pool ON reward_adjustments(pool_symbol, adjusted_at DESC);
	`
	if _, err := DB.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure reward_adjustments schema: %w", err)
	}

	if err := ensureCycleCounterTable(); err != nil {
		return err
	}

	log.Info().Msg("Database schema ensured")
	return nil
}
