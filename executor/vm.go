package executor

import (
	"github.com/hearthlabs/hearth/state"
	"github.com/hearthlabs/hearth/txcontext"
)

//go:generate mockgen -source vm.go -destination vm_mocks.go -package executor

// VirtualMachine is the execution boundary the block executor drives. An
// implementation interprets one transaction in the given block environment,
// reading state through the provided backend, and reports the outcome
// including the state deltas to commit. The executor treats the
// implementation as opaque and deterministic.
//
// Backend read failures during execution must be surfaced as a wrapped
// *state.BackendError; any other error is treated as a violation of this
// contract and aborts the whole mining cycle.
type VirtualMachine interface {
	Execute(env *txcontext.BlockEnv, tx *txcontext.PendingTransaction, db state.StateDB, trace bool) (*txcontext.ExecutionResult, error)
}
