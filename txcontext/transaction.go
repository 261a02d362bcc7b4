// Package txcontext holds the shared data model passed between the pending
// transaction pool, the block executor and the virtual machine boundary.
package txcontext

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// PendingTransaction is an externally signed transaction together with its
// recovered sender. The pool owns the canonical instance; the executor only
// holds a shared read-only reference for the duration of one mining cycle.
type PendingTransaction struct {
	Transaction *types.Transaction
	Sender      common.Address
}

// NewPendingTransaction recovers the sender of the given transaction using the
// signer appropriate for the given chain id.
func NewPendingTransaction(tx *types.Transaction, chainID *big.Int) (*PendingTransaction, error) {
	sender, err := types.Sender(types.LatestSignerForChainID(chainID), tx)
	if err != nil {
		return nil, err
	}
	return &PendingTransaction{Transaction: tx, Sender: sender}, nil
}

// Hash returns the hash of the underlying transaction.
func (p *PendingTransaction) Hash() common.Hash {
	return p.Transaction.Hash()
}

// Gas returns the gas limit of the underlying transaction.
func (p *PendingTransaction) Gas() uint64 {
	return p.Transaction.Gas()
}

// To returns the recipient of the underlying transaction, or nil for a
// contract creation.
func (p *PendingTransaction) To() *common.Address {
	return p.Transaction.To()
}
