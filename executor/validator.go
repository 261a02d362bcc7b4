package executor

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/params"

	"github.com/hearthlabs/hearth/state"
	"github.com/hearthlabs/hearth/txcontext"
)

//go:generate mockgen -source validator.go -destination validator_mocks.go -package executor

// Validator is consulted before every transaction execution. A returned
// error excludes the transaction from the block as permanently invalid in
// its current form.
type Validator interface {
	Validate(tx *txcontext.PendingTransaction, sender state.Account, env *txcontext.BlockEnv) error
}

var (
	ErrNonceTooLow      = errors.New("nonce too low")
	ErrNonceTooHigh     = errors.New("nonce too high")
	ErrInsufficientFunds = errors.New("insufficient funds for gas * price + value")
	ErrIntrinsicGas     = errors.New("intrinsic gas too low")
	ErrFeeCapTooLow     = errors.New("max fee per gas less than block base fee")
)

// NewBaseValidator provides the default admission rules of a dev node:
// exact nonce match, fee cap at or above the block base fee, a balance
// covering the worst case cost, and a gas limit covering the intrinsic gas.
func NewBaseValidator() Validator {
	return baseValidator{}
}

type baseValidator struct{}

func (baseValidator) Validate(tx *txcontext.PendingTransaction, sender state.Account, env *txcontext.BlockEnv) error {
	nonce := tx.Transaction.Nonce()
	if nonce < sender.Nonce {
		return fmt.Errorf("%w: address %v, tx nonce %d, state nonce %d", ErrNonceTooLow, tx.Sender, nonce, sender.Nonce)
	}
	if nonce > sender.Nonce {
		return fmt.Errorf("%w: address %v, tx nonce %d, state nonce %d", ErrNonceTooHigh, tx.Sender, nonce, sender.Nonce)
	}

	feeCap := tx.Transaction.GasFeeCap()
	if env.IsLondon() && feeCap.Cmp(env.BaseFee) < 0 {
		return fmt.Errorf("%w: address %v, fee cap %v, base fee %v", ErrFeeCapTooLow, tx.Sender, feeCap, env.BaseFee)
	}

	cost := new(big.Int).Mul(feeCap, new(big.Int).SetUint64(tx.Gas()))
	cost.Add(cost, tx.Transaction.Value())
	balance := sender.Balance
	if balance == nil {
		balance = new(big.Int)
	}
	if balance.Cmp(cost) < 0 {
		return fmt.Errorf("%w: address %v, have %v, want %v", ErrInsufficientFunds, tx.Sender, balance, cost)
	}

	if intrinsic := intrinsicGas(tx); tx.Gas() < intrinsic {
		return fmt.Errorf("%w: address %v, have %d, want %d", ErrIntrinsicGas, tx.Sender, tx.Gas(), intrinsic)
	}
	return nil
}

// intrinsicGas computes the gas consumed before any byte of code runs:
// the base transaction cost, the calldata cost and the access list cost.
func intrinsicGas(tx *txcontext.PendingTransaction) uint64 {
	gas := params.TxGas
	if tx.To() == nil {
		gas = params.TxGasContractCreation
	}
	for _, b := range tx.Transaction.Data() {
		if b == 0 {
			gas += params.TxDataZeroGas
		} else {
			gas += params.TxDataNonZeroGasEIP2028
		}
	}
	for _, tuple := range tx.Transaction.AccessList() {
		gas += params.TxAccessListAddressGas
		gas += uint64(len(tuple.StorageKeys)) * params.TxAccessListStorageKeyGas
	}
	return gas
}
