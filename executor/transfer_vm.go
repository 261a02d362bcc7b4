package executor

import (
	"fmt"
	"math/big"

	"github.com/hearthlabs/hearth/state"
	"github.com/hearthlabs/hearth/txcontext"
)

// NewTransferVM provides a minimal VirtualMachine handling plain value
// transfers: balance movement, nonce bump and gas payment to the coinbase.
// It carries no interpreter; transactions that would need one (contract
// creations or calls into code) finish with a failed status. Useful for
// benchmarks and for driving the executor without an external VM.
func NewTransferVM() VirtualMachine {
	return transferVM{}
}

type transferVM struct{}

func (transferVM) Execute(env *txcontext.BlockEnv, tx *txcontext.PendingTransaction, db state.StateDB, trace bool) (*txcontext.ExecutionResult, error) {
	sender, _, err := db.GetAccount(tx.Sender)
	if err != nil {
		return nil, fmt.Errorf("cannot read sender account; %w", err)
	}

	gasUsed := intrinsicGas(tx)
	gasPrice := effectiveGasPrice(env, tx)
	fee := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasUsed))

	nonce := sender.Nonce + 1
	balance := new(big.Int).Set(sender.Balance)
	balance.Sub(balance, fee)

	result := &txcontext.ExecutionResult{GasUsed: gasUsed}
	feeCharged := true

	to := tx.To()
	switch {
	case balance.Sign() < 0:
		// The validator admits against the worst case cost, so a negative
		// balance here means the queue raced a balance change. Charge
		// nothing beyond the nonce and report a failed execution.
		result.Reason = txcontext.ExitOutOfGas
		feeCharged = false
		result.Changes = state.Changes{
			tx.Sender: {Nonce: &nonce},
		}
	case to == nil || len(tx.Transaction.Data()) > 0:
		// No interpreter on board.
		result.Reason = txcontext.ExitInvalidOpcode
		result.Changes = state.Changes{
			tx.Sender: {Nonce: &nonce, Balance: balance},
		}
	default:
		value := tx.Transaction.Value()
		balance.Sub(balance, value)
		if balance.Sign() < 0 {
			result.Reason = txcontext.ExitRevert
			balance.Add(balance, value)
			result.Changes = state.Changes{
				tx.Sender: {Nonce: &nonce, Balance: balance},
			}
			break
		}
		recipient, _, err := db.GetAccount(*to)
		if err != nil {
			return nil, fmt.Errorf("cannot read recipient account; %w", err)
		}
		received := new(big.Int).Add(recipient.Balance, value)

		result.Reason = txcontext.ExitStop
		if tx.Sender == *to {
			// Self transfer; the value never leaves the account.
			balance.Add(balance, value)
			result.Changes = state.Changes{
				tx.Sender: {Nonce: &nonce, Balance: balance},
			}
		} else {
			result.Changes = state.Changes{
				tx.Sender: {Nonce: &nonce, Balance: balance},
				*to:       {Balance: received},
			}
		}
	}

	// The coinbase collects the priority part of the fee, but only when the
	// fee was actually charged. When the sender or the recipient is the
	// coinbase, the reward nets against the balance change already recorded
	// for it.
	tip := new(big.Int).Set(gasPrice)
	if env.IsLondon() {
		tip.Sub(tip, env.BaseFee)
	}
	if feeCharged && tip.Sign() > 0 {
		reward := new(big.Int).Mul(tip, new(big.Int).SetUint64(gasUsed))
		if change, exists := result.Changes[env.Coinbase]; exists && change.Balance != nil {
			change.Balance.Add(change.Balance, reward)
		} else if env.Coinbase != tx.Sender {
			coinbase, _, err := db.GetAccount(env.Coinbase)
			if err != nil {
				return nil, fmt.Errorf("cannot read coinbase account; %w", err)
			}
			result.Changes[env.Coinbase] = &state.AccountChange{
				Balance: new(big.Int).Add(coinbase.Balance, reward),
			}
		}
	}

	if trace {
		frame := &txcontext.CallFrame{
			Kind:    "call",
			From:    tx.Sender,
			Value:   tx.Transaction.Value(),
			GasUsed: gasUsed,
		}
		if to != nil {
			frame.To = *to
		}
		if !result.Succeeded() {
			frame.Err = result.Reason.String()
		}
		result.Trace = frame
	}
	return result, nil
}

// effectiveGasPrice computes the per-gas price actually paid: the fee cap
// for pre-London blocks, otherwise base fee plus the capped tip.
func effectiveGasPrice(env *txcontext.BlockEnv, tx *txcontext.PendingTransaction) *big.Int {
	if !env.IsLondon() {
		return tx.Transaction.GasPrice()
	}
	tip := new(big.Int).Sub(tx.Transaction.GasFeeCap(), env.BaseFee)
	if cap := tx.Transaction.GasTipCap(); tip.Cmp(cap) > 0 {
		tip.Set(cap)
	}
	if tip.Sign() < 0 {
		tip.SetInt64(0)
	}
	return tip.Add(tip, env.BaseFee)
}
