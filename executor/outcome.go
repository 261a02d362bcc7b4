package executor

import (
	"fmt"

	"github.com/hearthlabs/hearth/txcontext"
)

// Outcome classifies what happened to one pending transaction during a
// mining cycle. Exactly one outcome exists per transaction per attempt, so
// no transaction ever disappears silently: it is either Executed, Invalid,
// Exhausted or a BackendFailure.
type Outcome interface {
	// Transaction returns the pending transaction this outcome belongs to.
	Transaction() *txcontext.PendingTransaction

	// Included reports whether the transaction made it into the block.
	Included() bool

	fmt.Stringer
}

// Executed marks a transaction that ran on the virtual machine, successfully
// or not, and is included in the block.
type Executed struct {
	Tx     *txcontext.PendingTransaction
	Result *txcontext.ExecutionResult
}

func (o *Executed) Transaction() *txcontext.PendingTransaction { return o.Tx }
func (o *Executed) Included() bool                             { return true }
func (o *Executed) String() string {
	return fmt.Sprintf("executed %v (%v, gas %d)", o.Tx.Hash(), o.Result.Reason, o.Result.GasUsed)
}

// Invalid marks a transaction the validator rejected. Permanent for the
// transaction in its current form.
type Invalid struct {
	Tx     *txcontext.PendingTransaction
	Reason error
}

func (o *Invalid) Transaction() *txcontext.PendingTransaction { return o.Tx }
func (o *Invalid) Included() bool                             { return false }
func (o *Invalid) String() string {
	return fmt.Sprintf("invalid %v; %v", o.Tx.Hash(), o.Reason)
}

// Exhausted marks a transaction whose gas limit does not fit into the
// remaining gas budget of this block. Not an error; the transaction may fit
// into a later block.
type Exhausted struct {
	Tx *txcontext.PendingTransaction
}

func (o *Exhausted) Transaction() *txcontext.PendingTransaction { return o.Tx }
func (o *Exhausted) Included() bool                             { return false }
func (o *Exhausted) String() string {
	return fmt.Sprintf("exhausted %v (gas limit %d)", o.Tx.Hash(), o.Tx.Gas())
}

// BackendFailure marks a transaction skipped because the state backend was
// unavailable, typically an unreachable remote node in forking mode.
// Transient; the caller may re-queue the transaction.
type BackendFailure struct {
	Tx  *txcontext.PendingTransaction
	Err error
}

func (o *BackendFailure) Transaction() *txcontext.PendingTransaction { return o.Tx }
func (o *BackendFailure) Included() bool                             { return false }
func (o *BackendFailure) String() string {
	return fmt.Sprintf("backend failure for %v; %v", o.Tx.Hash(), o.Err)
}
