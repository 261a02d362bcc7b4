// Package state provides the backend storage layer driven by the block
// executor: an abstract key-value contract over accounts, storage slots and
// block hashes, with an in-memory implementation and a forking implementation
// that materializes state lazily from a remote node.
package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// emptyCodeHash is the hash of an account without code.
var emptyCodeHash = crypto.Keccak256Hash(nil)

// Account is the value stored per address: balance, nonce, code hash and,
// for contract accounts, the code body itself.
type Account struct {
	Nonce    uint64
	Balance  *big.Int
	CodeHash common.Hash
	Code     []byte
}

// NewEmptyAccount provides a fresh account with a zero balance and no code.
func NewEmptyAccount() Account {
	return Account{Balance: new(big.Int), CodeHash: emptyCodeHash}
}

// Copy provides an independently mutable copy of the account. Code bodies
// are immutable by convention and stay shared between copies.
func (a Account) Copy() Account {
	c := a
	if a.Balance != nil {
		c.Balance = new(big.Int).Set(a.Balance)
	}
	return c
}

// Empty reports whether the account carries no nonce, no balance and no code.
func (a Account) Empty() bool {
	return a.Nonce == 0 && (a.Balance == nil || a.Balance.Sign() == 0) &&
		(a.CodeHash == common.Hash{} || a.CodeHash == emptyCodeHash)
}

// AccountChange describes the delta to apply to a single account. Nil fields
// leave the respective part of the account untouched.
type AccountChange struct {
	Balance *big.Int
	Nonce   *uint64
	Code    []byte
	CodeSet bool
	Storage map[common.Hash]common.Hash

	// Destroyed removes the account and its storage before any other part
	// of the change is applied.
	Destroyed bool
}

// Changes is a batch of account deltas committed atomically to the mutable
// layer of a backend.
type Changes map[common.Address]*AccountChange

// StateDB is the narrow contract between the block executor, the virtual
// machine and a backend implementation. Implementations are free to resolve
// reads from local memory or from a remote chain; all failures are reported
// as typed errors, never as panics.
type StateDB interface {
	// GetAccount retrieves the account stored under the given address. The
	// second return value reports whether the backend knows the address at
	// all; the forking implementation always reports true since probing an
	// address materializes it (see ForkedStateDB.GetAccount).
	GetAccount(common.Address) (Account, bool, error)

	// GetStorage retrieves the value of one storage slot of an account.
	GetStorage(common.Address, common.Hash) (common.Hash, error)

	// GetBlockHash retrieves the hash of the block with the given number.
	GetBlockHash(uint64) (common.Hash, error)

	// Apply commits a batch of account deltas to the mutable layer.
	Apply(Changes) error

	// StateRoot reports the root hash of the current state. Backends that
	// do not track a root report the zero hash.
	StateRoot() common.Hash

	// Close releases all resources held by the backend. No operations are
	// allowed after this call.
	Close() error
}

// BackendError wraps a failure of the backing data source, typically a failed
// remote fetch in forking mode. The executor treats these as transient and
// skips the affected transaction instead of aborting the block.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("state backend: %s; %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
