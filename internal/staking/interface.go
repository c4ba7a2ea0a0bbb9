package staking

import (
	"context"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/nbcex/reward-operator/internal/types"
)

// ContractReader defines the read-only view of the staking contract consumed
// by the orchestration layer. Implemented by Reader; test doubles implement
// it without a node.
type ContractReader interface {
	// PoolState reads one pool's live state.
	PoolState(ctx context.Context, poolIndex uint64) (types.PoolLiveState, error)

	// OperatorBalance reads the operator's balance of a reward token.
	OperatorBalance(ctx context.Context, token, operator common.Address) (sdkmath.Int, error)
}

// ContractMutator defines the state-changing calls against the staking
// contract. Implemented by Mutator.
type ContractMutator interface {
	// Address returns the signing address.
	Address() common.Address

	// NotifyRewardAmount submits notifyRewardAmount and waits for inclusion.
	NotifyRewardAmount(ctx context.Context, poolIndex uint64, reward sdkmath.Int) (types.TransactionResult, error)

	// EmergencyWithdrawReward submits emergencyWithdrawReward and waits for
	// inclusion.
	EmergencyWithdrawReward(ctx context.Context, poolIndex uint64, amount sdkmath.Int) (types.TransactionResult, error)
}

var (
	_ ContractReader  = (*Reader)(nil)
	_ ContractMutator = (*Mutator)(nil)
)
