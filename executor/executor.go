// Package executor turns a queue of pending transactions into a mined block.
// It validates and executes the transactions in order against a state
// backend, collects a typed outcome per transaction and assembles the block
// header, body and receipts.
package executor

import (
	"errors"
	"fmt"
	"math"

	"github.com/hearthlabs/hearth/logger"
	"github.com/hearthlabs/hearth/state"
	"github.com/hearthlabs/hearth/txcontext"
)

// BlockExecutor consumes pending transactions one by one and produces a
// BlockAssemblyResult. It runs single threaded and synchronous: transaction
// N+1 never starts before the outcome of transaction N, including its commit
// to the backend, is fully resolved.
type BlockExecutor struct {
	db        state.StateDB
	vm        VirtualMachine
	validator Validator
	trace     bool
	log       logger.Logger
}

// NewBlockExecutor creates an executor mining on top of the given backend.
// With trace enabled, every execution requests a call trace from the VM.
func NewBlockExecutor(db state.StateDB, vm VirtualMachine, validator Validator, trace bool, logLevel string) *BlockExecutor {
	return &BlockExecutor{
		db:        db,
		vm:        vm,
		validator: validator,
		trace:     trace,
		log:       logger.NewLogger(logLevel, "BlockExec"),
	}
}

// ExecuteBlock replays the given pending transactions in order against the
// backend and assembles the resulting block. Per-transaction failures are
// captured as outcomes and never abort the cycle; the only fatal condition
// is a virtual machine reply violating its contract.
func (e *BlockExecutor) ExecuteBlock(env *txcontext.BlockEnv, pending []*txcontext.PendingTransaction) (*BlockAssemblyResult, error) {
	var (
		gasUsed  uint64
		outcomes = make([]Outcome, 0, len(pending))
	)

	for _, tx := range pending {
		sender, _, err := e.db.GetAccount(tx.Sender)
		if err != nil {
			// Expected in forking mode when the remote node is briefly
			// unreachable; the transaction is skipped, not the block.
			e.log.Warningf("skipping transaction %v, backend unavailable; %v", tx.Hash(), err)
			outcomes = append(outcomes, &BackendFailure{Tx: tx, Err: err})
			continue
		}

		if projected := saturatingAdd(gasUsed, tx.Gas()); projected > env.GasLimit {
			e.log.Debugf("transaction %v does not fit remaining gas budget of %d", tx.Hash(), env.GasLimit-gasUsed)
			outcomes = append(outcomes, &Exhausted{Tx: tx})
			continue
		}

		if err := e.validator.Validate(tx, sender, env); err != nil {
			outcomes = append(outcomes, &Invalid{Tx: tx, Reason: err})
			continue
		}

		result, err := e.vm.Execute(env, tx, e.db, e.trace)
		if err != nil {
			var backendErr *state.BackendError
			if errors.As(err, &backendErr) {
				e.log.Warningf("skipping transaction %v, backend failed during execution; %v", tx.Hash(), err)
				outcomes = append(outcomes, &BackendFailure{Tx: tx, Err: err})
				continue
			}
			return nil, fmt.Errorf("vm violated its execution contract for transaction %v; %v", tx.Hash(), err)
		}
		if result.Changes == nil {
			return nil, fmt.Errorf("vm reported no state changes for executed transaction %v", tx.Hash())
		}

		if err := e.db.Apply(result.Changes); err != nil {
			e.log.Warningf("skipping transaction %v, cannot commit changes; %v", tx.Hash(), err)
			outcomes = append(outcomes, &BackendFailure{Tx: tx, Err: err})
			continue
		}

		gasUsed = saturatingAdd(gasUsed, result.GasUsed)
		outcomes = append(outcomes, &Executed{Tx: tx, Result: result})
	}

	res := e.assemble(env, outcomes, gasUsed)
	e.log.Noticef("mined block %v: %d included, %d excluded, gas used %d",
		env.Number, len(res.Included), len(res.Excluded), gasUsed)
	return res, nil
}

// saturatingAdd adds two gas amounts without ever wrapping past the maximum
// representable value.
func saturatingAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}
