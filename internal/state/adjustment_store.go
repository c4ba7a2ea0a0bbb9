package state

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nbcex/reward-operator/internal/types"
)

// SaveAdjustmentRecord persists one reconciliation outcome. Called for every
// decision, submitted or not, so the history shows the hysteresis band
// suppressing updates as well as the updates themselves.
func SaveAdjustmentRecord(record types.AdjustmentRecord) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO reward_adjustments (
			cycle_id, cycle_number, adjusted_at,
			pool_symbol, pool_index,
			should_update, change_percent,
			current_reward_rate, new_reward_rate, total_reward_to_notify,
			insufficient_balance, conversion_rate, current_apr, target_apr,
			submitted, tx_hash, gas_used, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING record_id;
	`

	d := record.Decision
	var recordID int64
	err := DB.QueryRow(
		query,
		record.CycleID, record.CycleNumber, record.Timestamp,
		d.Symbol, d.PoolIndex,
		d.ShouldUpdate, d.ChangePercent,
		d.CurrentRewardRate.String(), d.NewRewardRate.String(), d.TotalRewardToNotify.String(),
		d.InsufficientBalance, d.ConversionRate, d.CurrentAPR, d.TargetAPR,
		record.Submitted, nullable(record.TxHash), record.GasUsed, nullable(record.Error),
	).Scan(&recordID)
	if err != nil {
		return 0, fmt.Errorf("failed to save adjustment record: %w", err)
	}

	log.Debug().
		Int64("recordID", recordID).
		Str("pool", d.Symbol).
		Bool("submitted", record.Submitted).
		Msg("Adjustment record saved")

	return recordID, nil
}

// nullable converts an empty string to NULL for optional text columns.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
