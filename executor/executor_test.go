package executor

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/trie"
	"go.uber.org/mock/gomock"

	"github.com/hearthlabs/hearth/state"
	"github.com/hearthlabs/hearth/txcontext"
)

var (
	senderA  = common.HexToAddress("0xa0")
	senderB  = common.HexToAddress("0xb0")
	coinbase = common.HexToAddress("0xc0")
)

// londonConfig activates all upgrades including the fee market at genesis.
func londonConfig() *params.ChainConfig {
	return &params.ChainConfig{
		ChainID:             big.NewInt(1337),
		HomesteadBlock:      big.NewInt(0),
		EIP150Block:         big.NewInt(0),
		EIP155Block:         big.NewInt(0),
		EIP158Block:         big.NewInt(0),
		ByzantiumBlock:      big.NewInt(0),
		ConstantinopleBlock: big.NewInt(0),
		PetersburgBlock:     big.NewInt(0),
		IstanbulBlock:       big.NewInt(0),
		BerlinBlock:         big.NewInt(0),
		LondonBlock:         big.NewInt(0),
	}
}

// preLondonConfig has no fee market.
func preLondonConfig() *params.ChainConfig {
	cfg := londonConfig()
	cfg.LondonBlock = nil
	return cfg
}

func makeEnv(gasLimit uint64) *txcontext.BlockEnv {
	return &txcontext.BlockEnv{
		ChainConfig: londonConfig(),
		Number:      big.NewInt(1),
		ParentHash:  common.HexToHash("0x11"),
		Coinbase:    coinbase,
		Timestamp:   1700000000,
		Difficulty:  big.NewInt(1),
		GasLimit:    gasLimit,
		BaseFee:     big.NewInt(1_000_000_000),
	}
}

// makeTx builds a pending transaction with a directly assigned sender, so
// tests do not need to produce valid signatures.
func makeTx(sender common.Address, nonce, gas uint64) *txcontext.PendingTransaction {
	to := common.HexToAddress("0xee")
	return &txcontext.PendingTransaction{
		Transaction: types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: big.NewInt(2_000_000_000),
			Gas:      gas,
			To:       &to,
			Value:    big.NewInt(1),
		}),
		Sender: sender,
	}
}

// gasBurningVM configures the VM mock to consume exactly the gas limit of
// every transaction and report an empty change set.
func gasBurningVM(vm *MockVirtualMachine) {
	vm.EXPECT().Execute(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ *txcontext.BlockEnv, tx *txcontext.PendingTransaction, _ state.StateDB, _ bool) (*txcontext.ExecutionResult, error) {
			return &txcontext.ExecutionResult{
				Reason:  txcontext.ExitStop,
				GasUsed: tx.Gas(),
				Changes: state.Changes{},
			}, nil
		}).AnyTimes()
}

func approveAll(validator *MockValidator) {
	validator.EXPECT().Validate(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
}

func TestBlockExecutor_GasExhaustionScenario(t *testing.T) {
	ctrl := gomock.NewController(t)
	vm := NewMockVirtualMachine(ctrl)
	validator := NewMockValidator(ctrl)
	gasBurningVM(vm)
	approveAll(validator)

	db := state.MakeInMemoryStateDB(nil)
	exec := NewBlockExecutor(db, vm, validator, false, "critical")

	pending := []*txcontext.PendingTransaction{
		makeTx(senderA, 0, 21_000),
		makeTx(senderA, 1, 29_990_000),
		makeTx(senderA, 2, 21_000),
	}
	res, err := exec.ExecuteBlock(makeEnv(30_000_000), pending)
	if err != nil {
		t.Fatalf("mining failed; %v", err)
	}

	if got, want := len(res.Included), 2; got != want {
		t.Fatalf("unexpected number of included transactions, got %d, want %d", got, want)
	}
	if res.Included[0] != pending[0] || res.Included[1] != pending[2] {
		t.Errorf("wrong transactions included")
	}
	if got, want := len(res.Excluded), 1; got != want {
		t.Fatalf("unexpected number of excluded transactions, got %d, want %d", got, want)
	}
	if exhausted, ok := res.Excluded[0].(*Exhausted); !ok || exhausted.Tx != pending[1] {
		t.Errorf("second transaction must be excluded as exhausted, got %v", res.Excluded[0])
	}
	if got, want := res.Block.GasUsed(), uint64(42_000); got != want {
		t.Errorf("unexpected block gas used, got %d, want %d", got, want)
	}
}

func TestBlockExecutor_GasAccountingInvariantsHold(t *testing.T) {
	ctrl := gomock.NewController(t)
	vm := NewMockVirtualMachine(ctrl)
	validator := NewMockValidator(ctrl)
	gasBurningVM(vm)
	approveAll(validator)

	exec := NewBlockExecutor(state.MakeInMemoryStateDB(nil), vm, validator, false, "critical")

	var pending []*txcontext.PendingTransaction
	for i := uint64(0); i < 10; i++ {
		pending = append(pending, makeTx(senderA, i, 21_000+i*1000))
	}
	env := makeEnv(100_000)
	res, err := exec.ExecuteBlock(env, pending)
	if err != nil {
		t.Fatalf("mining failed; %v", err)
	}

	var sum uint64
	for _, receipt := range res.Receipts {
		sum += receipt.GasUsed
	}
	if sum != res.Block.GasUsed() {
		t.Errorf("receipt gas sum %d differs from header gas used %d", sum, res.Block.GasUsed())
	}
	if res.Block.GasUsed() > env.GasLimit {
		t.Errorf("block gas used %d exceeds the limit %d", res.Block.GasUsed(), env.GasLimit)
	}
	if last := len(res.Receipts) - 1; last >= 0 && res.Receipts[last].CumulativeGasUsed != res.Block.GasUsed() {
		t.Errorf("last cumulative gas %d differs from header gas used %d",
			res.Receipts[last].CumulativeGasUsed, res.Block.GasUsed())
	}
}

func TestBlockExecutor_InputOrderIsPreserved(t *testing.T) {
	ctrl := gomock.NewController(t)
	vm := NewMockVirtualMachine(ctrl)
	validator := NewMockValidator(ctrl)
	gasBurningVM(vm)

	// Every third transaction is rejected; the rest must keep their
	// relative order.
	count := 0
	validator.EXPECT().Validate(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(*txcontext.PendingTransaction, state.Account, *txcontext.BlockEnv) error {
			count++
			if count%3 == 0 {
				return fmt.Errorf("rejected")
			}
			return nil
		}).AnyTimes()

	exec := NewBlockExecutor(state.MakeInMemoryStateDB(nil), vm, validator, false, "critical")

	var pending []*txcontext.PendingTransaction
	for i := uint64(0); i < 9; i++ {
		pending = append(pending, makeTx(senderA, i, 21_000))
	}
	res, err := exec.ExecuteBlock(makeEnv(30_000_000), pending)
	if err != nil {
		t.Fatalf("mining failed; %v", err)
	}

	next := 0
	for _, tx := range res.Included {
		found := false
		for ; next < len(pending); next++ {
			if pending[next] == tx {
				found = true
				next++
				break
			}
		}
		if !found {
			t.Fatalf("included transactions are not in input order")
		}
	}
	for i, tx := range res.Block.Transactions() {
		if tx != res.Included[i].Transaction {
			t.Errorf("block body order differs from the included list at %d", i)
		}
	}
}

func TestBlockExecutor_OversizedTransactionIsAlwaysExhausted(t *testing.T) {
	ctrl := gomock.NewController(t)
	vm := NewMockVirtualMachine(ctrl)
	validator := NewMockValidator(ctrl)
	gasBurningVM(vm)
	approveAll(validator)

	for _, position := range []int{0, 1, 2} {
		exec := NewBlockExecutor(state.MakeInMemoryStateDB(nil), vm, validator, false, "critical")

		var pending []*txcontext.PendingTransaction
		for i := 0; i < 3; i++ {
			if i == position {
				pending = append(pending, makeTx(senderA, uint64(i), 2_000_000))
			} else {
				pending = append(pending, makeTx(senderA, uint64(i), 21_000))
			}
		}
		res, err := exec.ExecuteBlock(makeEnv(1_000_000), pending)
		if err != nil {
			t.Fatalf("mining failed; %v", err)
		}
		found := false
		for _, outcome := range res.Excluded {
			if exhausted, ok := outcome.(*Exhausted); ok && exhausted.Tx == pending[position] {
				found = true
			}
		}
		if !found {
			t.Errorf("oversized transaction at position %d was not excluded as exhausted", position)
		}
	}
}

func TestBlockExecutor_RejectedTransactionIsExcludedAsInvalid(t *testing.T) {
	ctrl := gomock.NewController(t)
	vm := NewMockVirtualMachine(ctrl)
	validator := NewMockValidator(ctrl)
	gasBurningVM(vm)

	reason := fmt.Errorf("nonce gap")
	bad := makeTx(senderB, 5, 21_000)
	good := makeTx(senderA, 0, 21_000)
	validator.EXPECT().Validate(bad, gomock.Any(), gomock.Any()).Return(reason)
	validator.EXPECT().Validate(good, gomock.Any(), gomock.Any()).Return(nil)

	exec := NewBlockExecutor(state.MakeInMemoryStateDB(nil), vm, validator, false, "critical")
	res, err := exec.ExecuteBlock(makeEnv(30_000_000), []*txcontext.PendingTransaction{bad, good})
	if err != nil {
		t.Fatalf("mining failed; %v", err)
	}

	if len(res.Included) != 1 || res.Included[0] != good {
		t.Fatalf("valid transaction was not included")
	}
	invalid, ok := res.Excluded[0].(*Invalid)
	if !ok {
		t.Fatalf("rejected transaction not excluded as invalid, got %v", res.Excluded[0])
	}
	if invalid.Reason != reason {
		t.Errorf("validation error was not preserved, got %v", invalid.Reason)
	}
}

// flakyDB reports a backend error for one specific address.
type flakyDB struct {
	*state.InMemoryStateDB
	bad common.Address
}

func (db *flakyDB) GetAccount(addr common.Address) (state.Account, bool, error) {
	if addr == db.bad {
		return state.Account{}, false, &state.BackendError{Op: "fetch account", Err: fmt.Errorf("remote unreachable")}
	}
	return db.InMemoryStateDB.GetAccount(addr)
}

func TestBlockExecutor_BackendFailureSkipsTheTransactionOnly(t *testing.T) {
	ctrl := gomock.NewController(t)
	vm := NewMockVirtualMachine(ctrl)
	validator := NewMockValidator(ctrl)
	gasBurningVM(vm)
	approveAll(validator)

	db := &flakyDB{InMemoryStateDB: state.MakeInMemoryStateDB(nil), bad: senderB}
	exec := NewBlockExecutor(db, vm, validator, false, "critical")

	affected := makeTx(senderB, 0, 21_000)
	pending := []*txcontext.PendingTransaction{
		makeTx(senderA, 0, 21_000),
		affected,
		makeTx(senderA, 1, 21_000),
	}
	res, err := exec.ExecuteBlock(makeEnv(30_000_000), pending)
	if err != nil {
		t.Fatalf("a backend failure must not abort the block; %v", err)
	}
	if len(res.Included) != 2 {
		t.Fatalf("unaffected transactions were not mined, included %d", len(res.Included))
	}
	failure, ok := res.Excluded[0].(*BackendFailure)
	if !ok || failure.Tx != affected {
		t.Errorf("affected transaction not excluded as backend failure, got %v", res.Excluded[0])
	}
}

func TestBlockExecutor_BackendErrorFromTheVMSkipsTheTransaction(t *testing.T) {
	ctrl := gomock.NewController(t)
	vm := NewMockVirtualMachine(ctrl)
	validator := NewMockValidator(ctrl)
	approveAll(validator)

	tx := makeTx(senderA, 0, 21_000)
	vm.EXPECT().Execute(gomock.Any(), tx, gomock.Any(), gomock.Any()).Return(nil,
		fmt.Errorf("cannot read storage; %w", &state.BackendError{Op: "fetch storage", Err: fmt.Errorf("timeout")}))

	exec := NewBlockExecutor(state.MakeInMemoryStateDB(nil), vm, validator, false, "critical")
	res, err := exec.ExecuteBlock(makeEnv(30_000_000), []*txcontext.PendingTransaction{tx})
	if err != nil {
		t.Fatalf("a backend failure during execution must not abort the block; %v", err)
	}
	if _, ok := res.Excluded[0].(*BackendFailure); !ok {
		t.Errorf("transaction not excluded as backend failure, got %v", res.Excluded[0])
	}
}

func TestBlockExecutor_MissingChangeSetAbortsTheCycle(t *testing.T) {
	ctrl := gomock.NewController(t)
	vm := NewMockVirtualMachine(ctrl)
	validator := NewMockValidator(ctrl)
	approveAll(validator)

	vm.EXPECT().Execute(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(
		&txcontext.ExecutionResult{Reason: txcontext.ExitStop, GasUsed: 21_000}, nil)

	exec := NewBlockExecutor(state.MakeInMemoryStateDB(nil), vm, validator, false, "critical")
	if _, err := exec.ExecuteBlock(makeEnv(30_000_000), []*txcontext.PendingTransaction{makeTx(senderA, 0, 21_000)}); err == nil {
		t.Errorf("a vm reply without a change set must abort the mining cycle")
	}
}

func TestBlockExecutor_EveryTransactionHasExactlyOneOutcome(t *testing.T) {
	ctrl := gomock.NewController(t)
	vm := NewMockVirtualMachine(ctrl)
	validator := NewMockValidator(ctrl)
	gasBurningVM(vm)

	count := 0
	validator.EXPECT().Validate(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(*txcontext.PendingTransaction, state.Account, *txcontext.BlockEnv) error {
			count++
			if count%2 == 0 {
				return fmt.Errorf("rejected")
			}
			return nil
		}).AnyTimes()

	exec := NewBlockExecutor(state.MakeInMemoryStateDB(nil), vm, validator, false, "critical")
	var pending []*txcontext.PendingTransaction
	for i := uint64(0); i < 6; i++ {
		pending = append(pending, makeTx(senderA, i, 21_000))
	}
	res, err := exec.ExecuteBlock(makeEnv(100_000), pending)
	if err != nil {
		t.Fatalf("mining failed; %v", err)
	}

	if got, want := len(res.Outcomes), len(pending); got != want {
		t.Fatalf("unexpected number of outcomes, got %d, want %d", got, want)
	}
	for i, outcome := range res.Outcomes {
		if outcome.Transaction() != pending[i] {
			t.Errorf("outcome %d does not belong to input transaction %d", i, i)
		}
	}
	if got, want := len(res.Included)+len(res.Excluded), len(pending); got != want {
		t.Errorf("included and excluded do not add up, got %d, want %d", got, want)
	}
}

func TestBlockExecutor_BaseFeeIsOnlySetOnceLondonIsActive(t *testing.T) {
	ctrl := gomock.NewController(t)
	vm := NewMockVirtualMachine(ctrl)
	validator := NewMockValidator(ctrl)
	gasBurningVM(vm)
	approveAll(validator)

	exec := NewBlockExecutor(state.MakeInMemoryStateDB(nil), vm, validator, false, "critical")

	env := makeEnv(30_000_000)
	res, err := exec.ExecuteBlock(env, nil)
	if err != nil {
		t.Fatalf("mining failed; %v", err)
	}
	if res.Block.BaseFee() == nil || res.Block.BaseFee().Cmp(env.BaseFee) != 0 {
		t.Errorf("post-london header misses the base fee")
	}

	env = makeEnv(30_000_000)
	env.ChainConfig = preLondonConfig()
	res, err = exec.ExecuteBlock(env, nil)
	if err != nil {
		t.Fatalf("mining failed; %v", err)
	}
	if res.Block.BaseFee() != nil {
		t.Errorf("pre-london header must not carry a base fee")
	}
}

func TestBlockExecutor_ReceiptsRootAndBloomAreDerivedFromTheReceipts(t *testing.T) {
	ctrl := gomock.NewController(t)
	vm := NewMockVirtualMachine(ctrl)
	validator := NewMockValidator(ctrl)
	approveAll(validator)

	logAddr := common.HexToAddress("0x1055")
	topic := common.HexToHash("0x70")
	vm.EXPECT().Execute(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ *txcontext.BlockEnv, tx *txcontext.PendingTransaction, _ state.StateDB, _ bool) (*txcontext.ExecutionResult, error) {
			reason := txcontext.ExitStop
			if tx.Transaction.Nonce() == 1 {
				reason = txcontext.ExitRevert
			}
			return &txcontext.ExecutionResult{
				Reason:  reason,
				GasUsed: tx.Gas(),
				Logs:    []*types.Log{{Address: logAddr, Topics: []common.Hash{topic}}},
				Changes: state.Changes{},
			}, nil
		}).Times(2)

	exec := NewBlockExecutor(state.MakeInMemoryStateDB(nil), vm, validator, false, "critical")
	pending := []*txcontext.PendingTransaction{
		makeTx(senderA, 0, 21_000),
		makeTx(senderA, 1, 30_000),
	}
	res, err := exec.ExecuteBlock(makeEnv(30_000_000), pending)
	if err != nil {
		t.Fatalf("mining failed; %v", err)
	}

	if got, want := res.Block.ReceiptHash(), types.DeriveSha(res.Receipts, trie.NewStackTrie(nil)); got != want {
		t.Errorf("receipts root mismatch, got %v, want %v", got, want)
	}
	if !types.BloomLookup(res.Block.Bloom(), logAddr) {
		t.Errorf("block bloom misses the log address")
	}
	if !types.BloomLookup(res.Block.Bloom(), topic) {
		t.Errorf("block bloom misses the log topic")
	}

	if got, want := res.Receipts[0].Status, types.ReceiptStatusSuccessful; got != want {
		t.Errorf("graceful stop must yield a successful receipt, got %d", got)
	}
	if got, want := res.Receipts[1].Status, types.ReceiptStatusFailed; got != want {
		t.Errorf("revert must yield a failed receipt, got %d", got)
	}

	// Log metadata is filled in during assembly.
	log := res.Receipts[1].Logs[0]
	if log.TxIndex != 1 || log.Index != 1 || log.BlockHash != res.Block.Hash() || log.TxHash != pending[1].Hash() {
		t.Errorf("log metadata not assigned: %+v", log)
	}
}
