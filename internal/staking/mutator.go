/*

Transaction submission against the staking contract.

One signer, strictly sequential mutations. Every mutating call is preceded by
a client-side owner check; the contract enforces ownership anyway, but failing
fast avoids paying gas for a guaranteed revert. Confirmation waits carry an
overall deadline so a stuck transaction cannot hang the adjuster loop.

*/

package staking

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum"
	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/nbcex/reward-operator/internal/logger"
	"github.com/nbcex/reward-operator/internal/types"
)

const (
	// defaultConfirmTimeout bounds the whole mined-receipt wait.
	defaultConfirmTimeout = 5 * time.Minute

	// gasHeadroomPercent pads the gas estimate so close estimates do not
	// revert with out-of-gas.
	gasHeadroomPercent = 20

	receiptPollBase = 2 * time.Second
	receiptPollMax  = 15 * time.Second
)

var (
	ErrNotOwner   = errors.New("signer is not the contract owner")
	ErrTxBuild    = errors.New("transaction build failed")
	ErrTxSend     = errors.New("transaction broadcast failed")
	ErrTxReverted = errors.New("transaction reverted on-chain")
	ErrTxTimeout  = errors.New("transaction confirmation timed out")
)

// Mutator signs and submits state-changing calls to the staking contract.
type Mutator struct {
	client     *ethclient.Client
	contract   common.Address
	stakingABI gethabi.ABI
	key        *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int

	confirmTimeout time.Duration
	logger         zerolog.Logger
}

// NewMutator builds a mutator from the operator's hex private key. The chain
// ID is read from the connected node.
func NewMutator(ctx context.Context, client *ethclient.Client, contractHex, privateKeyHex string) (*Mutator, error) {
	if client == nil {
		return nil, errors.New("eth client cannot be nil")
	}
	if !common.IsHexAddress(contractHex) {
		return nil, fmt.Errorf("invalid staking contract address: %q", contractHex)
	}

	key, err := gethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid operator private key: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, errors.Join(ErrChainRead, fmt.Errorf("failed to read chain ID: %w", err))
	}

	stakingABI, _, err := parseABIs()
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract ABIs: %w", err)
	}

	m := &Mutator{
		client:         client,
		contract:       common.HexToAddress(contractHex),
		stakingABI:     stakingABI,
		key:            key,
		address:        gethcrypto.PubkeyToAddress(key.PublicKey),
		chainID:        chainID,
		confirmTimeout: defaultConfirmTimeout,
		logger:         logger.GetForComponent("contract_mutator"),
	}

	m.logger.Info().
		Str("operator", m.address.Hex()).
		Str("contract", m.contract.Hex()).
		Str("chainID", chainID.String()).
		Msg("Transaction signer initialized")

	return m, nil
}

// Address returns the operator's signing address.
func (m *Mutator) Address() common.Address {
	return m.address
}

// EnsureOwner verifies the signer is the contract owner. Fatal for the whole
// run when it fails; there is no point reconciling pools a signer cannot
// update.
func (m *Mutator) EnsureOwner(ctx context.Context, reader *Reader) error {
	owner, err := reader.Owner(ctx)
	if err != nil {
		return err
	}
	if owner != m.address {
		return errors.Join(ErrNotOwner,
			fmt.Errorf("contract owner is %s, signer is %s", owner.Hex(), m.address.Hex()))
	}
	return nil
}

// NotifyRewardAmount submits notifyRewardAmount(poolIndex, reward) and waits
// for it to be mined.
func (m *Mutator) NotifyRewardAmount(ctx context.Context, poolIndex uint64, reward sdkmath.Int) (types.TransactionResult, error) {
	if reward.IsNil() || !reward.IsPositive() {
		return types.TransactionResult{}, errors.Join(ErrTxBuild, errors.New("reward amount must be positive"))
	}
	return m.submit(ctx, "notifyRewardAmount", new(big.Int).SetUint64(poolIndex), reward.BigInt())
}

// EmergencyWithdrawReward submits emergencyWithdrawReward(poolIndex, amount)
// and waits for it to be mined.
func (m *Mutator) EmergencyWithdrawReward(ctx context.Context, poolIndex uint64, amount sdkmath.Int) (types.TransactionResult, error) {
	if amount.IsNil() || !amount.IsPositive() {
		return types.TransactionResult{}, errors.Join(ErrTxBuild, errors.New("withdraw amount must be positive"))
	}
	return m.submit(ctx, "emergencyWithdrawReward", new(big.Int).SetUint64(poolIndex), amount.BigInt())
}

// submit builds, signs, broadcasts and confirms one contract call.
func (m *Mutator) submit(ctx context.Context, method string, args ...interface{}) (types.TransactionResult, error) {
	data, err := m.stakingABI.Pack(method, args...)
	if err != nil {
		return types.TransactionResult{}, errors.Join(ErrTxBuild, fmt.Errorf("%s: %w", method, err))
	}

	nonce, err := m.client.PendingNonceAt(ctx, m.address)
	if err != nil {
		return types.TransactionResult{}, errors.Join(ErrTxBuild, fmt.Errorf("failed to read nonce: %w", err))
	}

	gasPrice, err := m.client.SuggestGasPrice(ctx)
	if err != nil {
		return types.TransactionResult{}, errors.Join(ErrTxBuild, fmt.Errorf("failed to read gas price: %w", err))
	}

	gasLimit, err := m.client.EstimateGas(ctx, ethereum.CallMsg{
		From: m.address,
		To:   &m.contract,
		Data: data,
	})
	if err != nil {
		// Estimation failing usually means the call would revert. Do not
		// broadcast a doomed transaction.
		return types.TransactionResult{}, errors.Join(ErrTxBuild, fmt.Errorf("%s gas estimation failed: %w", method, err))
	}
	gasLimit = gasLimit * (100 + gasHeadroomPercent) / 100

	tx := gethtypes.NewTransaction(nonce, m.contract, big.NewInt(0), gasLimit, gasPrice, data)
	signedTx, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(m.chainID), m.key)
	if err != nil {
		return types.TransactionResult{}, errors.Join(ErrTxBuild, fmt.Errorf("signing failed: %w", err))
	}

	if err := m.client.SendTransaction(ctx, signedTx); err != nil {
		return types.TransactionResult{}, errors.Join(ErrTxSend, fmt.Errorf("%s: %w", method, err))
	}

	txHash := signedTx.Hash()
	m.logger.Info().
		Str("method", method).
		Str("txHash", txHash.Hex()).
		Uint64("nonce", nonce).
		Uint64("gasLimit", gasLimit).
		Str("gasPrice", gasPrice.String()).
		Msg("Transaction broadcast, waiting for confirmation")

	receipt, err := m.waitMined(ctx, txHash)
	if err != nil {
		return types.TransactionResult{TxHash: txHash.Hex()}, err
	}

	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return types.TransactionResult{
			TxHash:      txHash.Hex(),
			BlockNumber: receipt.BlockNumber.Uint64(),
			GasUsed:     receipt.GasUsed,
		}, errors.Join(ErrTxReverted, fmt.Errorf("%s tx %s reverted in block %s", method, txHash.Hex(), receipt.BlockNumber))
	}

	gasCost := new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), gasPrice)
	result := types.TransactionResult{
		TxHash:      txHash.Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
		GasCostWei:  sdkmath.NewIntFromBigInt(gasCost),
		Success:     true,
	}

	m.logger.Info().
		Str("method", method).
		Str("txHash", result.TxHash).
		Uint64("blockNumber", result.BlockNumber).
		Uint64("gasUsed", result.GasUsed).
		Str("gasCostWei", result.GasCostWei.String()).
		Msg("Transaction confirmed")

	return result, nil
}

// waitMined polls for the transaction receipt with capped backoff until the
// confirmation deadline.
func (m *Mutator) waitMined(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error) {
	deadline := time.Now().Add(m.confirmTimeout)
	delay := receiptPollBase

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrTxTimeout, fmt.Errorf("tx %s: %w", txHash.Hex(), ctx.Err()))
		case <-time.After(delay):
		}

		receipt, err := m.client.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			m.logger.Debug().
				Err(err).
				Str("txHash", txHash.Hex()).
				Int("attempt", attempt).
				Msg("Receipt query failed, will retry")
		}

		if time.Now().After(deadline) {
			return nil, errors.Join(ErrTxTimeout,
				fmt.Errorf("tx %s not mined within %s; investigate manually before resubmitting", txHash.Hex(), m.confirmTimeout))
		}

		delay = time.Duration(float64(delay) * 1.5)
		if delay > receiptPollMax {
			delay = receiptPollMax
		}
	}
}
