package executor

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/trie"

	"github.com/hearthlabs/hearth/txcontext"
)

// TransactionInfo is the per-transaction record handed to the caller along
// with the mined block.
type TransactionInfo struct {
	Hash            common.Hash
	Index           uint
	Sender          common.Address
	To              *common.Address
	CreatedContract *common.Address
	Logs            []*types.Log
	Trace           *txcontext.CallFrame
}

// BlockAssemblyResult is the product of one mining cycle. Ownership passes
// to the caller; the executor keeps no reference to it.
type BlockAssemblyResult struct {
	Block    *types.Block
	Infos    []*TransactionInfo
	Receipts types.Receipts

	// Included lists the transactions that made it into the block, in
	// block order. Excluded holds the outcome of every transaction that
	// did not, in queue order. Outcomes holds all outcomes in queue order.
	Included []*txcontext.PendingTransaction
	Excluded []Outcome
	Outcomes []Outcome
}

// assemble derives the receipts of all executed outcomes, folds their logs
// into the block bloom and builds the final block. Receipts and transactions
// appear in inclusion order, which matches their relative queue order.
func (e *BlockExecutor) assemble(env *txcontext.BlockEnv, outcomes []Outcome, gasUsed uint64) *BlockAssemblyResult {
	res := &BlockAssemblyResult{Outcomes: outcomes}

	var (
		txs        []*types.Transaction
		cumulative uint64
		logIndex   uint
	)
	for _, outcome := range outcomes {
		exec, ok := outcome.(*Executed)
		if !ok {
			res.Excluded = append(res.Excluded, outcome)
			continue
		}
		index := uint(len(txs))
		cumulative = saturatingAdd(cumulative, exec.Result.GasUsed)

		for _, l := range exec.Result.Logs {
			l.TxHash = exec.Tx.Hash()
			l.TxIndex = index
			l.BlockNumber = env.Number.Uint64()
			l.Index = logIndex
			logIndex++
		}

		res.Receipts = append(res.Receipts, deriveReceipt(exec, env, index, cumulative))
		res.Infos = append(res.Infos, &TransactionInfo{
			Hash:            exec.Tx.Hash(),
			Index:           index,
			Sender:          exec.Tx.Sender,
			To:              exec.Tx.To(),
			CreatedContract: exec.Result.CreatedContract,
			Logs:            exec.Result.Logs,
			Trace:           exec.Result.Trace,
		})
		res.Included = append(res.Included, exec.Tx)
		txs = append(txs, exec.Tx.Transaction)
	}

	header := &types.Header{
		ParentHash: env.ParentHash,
		Coinbase:   env.Coinbase,
		Root:       e.db.StateRoot(),
		Number:     new(big.Int).Set(env.Number),
		GasLimit:   env.GasLimit,
		GasUsed:    gasUsed,
		Time:       env.Timestamp,
		Difficulty: new(big.Int),
	}
	if env.Difficulty != nil {
		header.Difficulty.Set(env.Difficulty)
	}
	if env.IsLondon() {
		header.BaseFee = new(big.Int).Set(env.BaseFee)
	}

	// NewBlock computes the transaction root, the receipt root and the
	// block bloom from the given lists.
	res.Block = types.NewBlock(header, txs, nil, res.Receipts, trie.NewStackTrie(nil))

	hash := res.Block.Hash()
	for _, receipt := range res.Receipts {
		receipt.BlockHash = hash
		for _, l := range receipt.Logs {
			l.BlockHash = hash
		}
	}
	return res
}

// deriveReceipt builds the typed receipt of an executed transaction. The
// status is successful iff the VM exit reason lies at or below the graceful
// stop boundary.
func deriveReceipt(exec *Executed, env *txcontext.BlockEnv, index uint, cumulative uint64) *types.Receipt {
	receipt := &types.Receipt{
		Type:              exec.Tx.Transaction.Type(),
		Status:            exec.Result.ReceiptStatus(),
		CumulativeGasUsed: cumulative,
		Logs:              exec.Result.Logs,
		TxHash:            exec.Tx.Hash(),
		GasUsed:           exec.Result.GasUsed,
		BlockNumber:       new(big.Int).Set(env.Number),
		TransactionIndex:  index,
	}
	if exec.Result.CreatedContract != nil {
		receipt.ContractAddress = *exec.Result.CreatedContract
	}
	receipt.Bloom = types.CreateBloom(types.Receipts{receipt})
	return receipt
}
