/*

This file contains the types produced by the reconciler and the transaction
layer: the per-pool update decision, the two-step excess-reward repair plan,
and the result of a mined transaction.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// RewardUpdateDecision is the outcome of reconciling one pool's live state
// against the target APR. Computed at most once per cycle per pool and drives
// at most one mutating call.
type RewardUpdateDecision struct {
	Symbol    string `json:"symbol"`
	PoolIndex uint64 `json:"pool_index"`

	ShouldUpdate  bool    `json:"should_update"`
	ChangePercent float64 `json:"change_percent"` // Signed; 100 on bootstrap

	CurrentRewardRate   sdkmath.Int `json:"current_reward_rate"`
	NewRewardRate       sdkmath.Int `json:"new_reward_rate"`
	TotalRewardToNotify sdkmath.Int `json:"total_reward_to_notify"`

	// InsufficientBalance is set when the operator's token balance cannot
	// cover TotalRewardToNotify. The decision must never be submitted.
	InsufficientBalance bool        `json:"insufficient_balance"`
	OperatorBalance     sdkmath.Int `json:"operator_balance"`

	ConversionRate float64 `json:"conversion_rate"` // 1 reward unit in base-asset units
	CurrentAPR     float64 `json:"current_apr"`
	TargetAPR      float64 `json:"target_apr"`
}

// ExcessPlan describes the withdraw-then-notify repair of a pool whose
// contract balance exceeds the reward needed for the target rate. The step
// order is a hard requirement: notifying while the excess remains would not
// fix the rate.
type ExcessPlan struct {
	Symbol          string      `json:"symbol"`
	PoolIndex       uint64      `json:"pool_index"`
	RemainingReward sdkmath.Int `json:"remaining_reward"` // Unexpired reward at plan time
	TargetTotal     sdkmath.Int `json:"target_total"`     // Total the pool should hold
	WithdrawAmount  sdkmath.Int `json:"withdraw_amount"`  // Step 1: emergencyWithdrawReward
	NotifyAmount    sdkmath.Int `json:"notify_amount"`    // Step 2: notifyRewardAmount
}

// NeedsWithdraw reports whether step 1 has anything to do.
func (p ExcessPlan) NeedsWithdraw() bool {
	return !p.WithdrawAmount.IsNil() && p.WithdrawAmount.IsPositive()
}

// TransactionResult holds the details of a mined transaction for logging and
// history records.
type TransactionResult struct {
	TxHash      string      `json:"tx_hash"`
	BlockNumber uint64      `json:"block_number"`
	GasUsed     uint64      `json:"gas_used"`
	GasCostWei  sdkmath.Int `json:"gas_cost_wei"`
	Success     bool        `json:"success"`
}

// AdjustmentRecord is one row of the optional Postgres adjustment history:
// a decision plus whatever transaction it produced.
type AdjustmentRecord struct {
	RecordID    int64     `json:"record_id,omitempty"`
	CycleID     string    `json:"cycle_id"`
	CycleNumber int       `json:"cycle_number"`
	Timestamp   time.Time `json:"timestamp"`

	Decision RewardUpdateDecision `json:"decision"`

	Submitted bool   `json:"submitted"`
	TxHash    string `json:"tx_hash,omitempty"`
	GasUsed   uint64 `json:"gas_used,omitempty"`
	Error     string `json:"error,omitempty"`
}
