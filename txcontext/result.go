package txcontext

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/hearthlabs/hearth/state"
)

// ExitReason is the ordered status enumeration reported by the virtual
// machine. All values at or below ExitSelfDestruct indicate a graceful stop;
// everything beyond it is a failed execution.
type ExitReason uint8

const (
	ExitStop ExitReason = iota
	ExitReturn
	ExitSelfDestruct

	ExitRevert
	ExitOutOfGas
	ExitInvalidOpcode
	ExitStackUnderflow
	ExitStackOverflow
	ExitInvalidJump
	ExitCallTooDeep
	ExitCreateCollision
	ExitPrecompileError
)

// Succeeded reports whether the exit reason lies at or below the graceful
// stop boundary of the enumeration.
func (r ExitReason) Succeeded() bool {
	return r <= ExitSelfDestruct
}

func (r ExitReason) String() string {
	switch r {
	case ExitStop:
		return "stop"
	case ExitReturn:
		return "return"
	case ExitSelfDestruct:
		return "self-destruct"
	case ExitRevert:
		return "revert"
	case ExitOutOfGas:
		return "out-of-gas"
	case ExitInvalidOpcode:
		return "invalid-opcode"
	case ExitStackUnderflow:
		return "stack-underflow"
	case ExitStackOverflow:
		return "stack-overflow"
	case ExitInvalidJump:
		return "invalid-jump"
	case ExitCallTooDeep:
		return "call-too-deep"
	case ExitCreateCollision:
		return "create-collision"
	case ExitPrecompileError:
		return "precompile-error"
	}
	return fmt.Sprintf("unknown(%d)", uint8(r))
}

// CallFrame is one node of the call trace tree optionally produced by the
// virtual machine for an executed transaction.
type CallFrame struct {
	Kind    string // "call", "staticcall", "delegatecall", "create", ...
	From    common.Address
	To      common.Address
	Value   *big.Int
	Input   []byte
	Output  []byte
	GasUsed uint64
	Err     string
	Calls   []*CallFrame
}

// ExecutionResult is the outcome the virtual machine reports for a single
// executed transaction. The executor treats it as opaque apart from the exit
// reason, the gas accounting and the state changes to commit.
type ExecutionResult struct {
	Reason  ExitReason
	Output  []byte
	GasUsed uint64
	Logs    []*types.Log
	Trace   *CallFrame

	// CreatedContract is set when the transaction deployed a contract.
	CreatedContract *common.Address

	// Changes holds the state deltas produced by the execution. They must be
	// present even for reverted transactions since gas payment and nonce
	// bumps still take place.
	Changes state.Changes
}

// Succeeded reports whether the transaction finished at or below the graceful
// stop boundary.
func (r *ExecutionResult) Succeeded() bool {
	return r.Reason.Succeeded()
}

// ReceiptStatus translates the exit reason into the status code recorded in
// the transaction receipt.
func (r *ExecutionResult) ReceiptStatus() uint64 {
	if r.Succeeded() {
		return types.ReceiptStatusSuccessful
	}
	return types.ReceiptStatusFailed
}
