package main

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/hearthlabs/hearth/executor"
	"github.com/hearthlabs/hearth/logger"
	"github.com/hearthlabs/hearth/state"
	"github.com/hearthlabs/hearth/txcontext"
	"github.com/hearthlabs/hearth/utils"
)

var MineCmd = cli.Command{
	Action: mine,
	Name:   "mine",
	Usage:  "mines one block of synthetic transfer transactions and prints a summary",
	Flags: []cli.Flag{
		&utils.ChainIDFlag,
		&utils.DbImplementationFlag,
		&utils.DbLoggingFlag,
		&utils.ForkURLFlag,
		&utils.ForkBlockFlag,
		&utils.CacheDirFlag,
		&utils.CodeCacheSizeFlag,
		&utils.BlockGasLimitFlag,
		&utils.TraceCallsFlag,
		&numTxsFlag,
		&logger.LogLevelFlag,
	},
}

var numTxsFlag = cli.IntFlag{
	Name:  "num-txs",
	Usage: "number of synthetic transactions to mine",
	Value: 10,
}

// devBalance funds every synthetic account with 1000 native tokens.
var devBalance = new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18))

func mine(ctx *cli.Context) error {
	cfg, err := utils.NewConfig(ctx)
	if err != nil {
		return err
	}
	log := logger.NewLogger(cfg.LogLevel, "Mine")

	numTxs := ctx.Int(numTxsFlag.Name)
	keys := make([]*ecdsa.PrivateKey, numTxs)
	genesis := map[common.Address]state.Account{}
	for i := range keys {
		key, err := crypto.GenerateKey()
		if err != nil {
			return fmt.Errorf("cannot generate key; %v", err)
		}
		keys[i] = key
		acc := state.NewEmptyAccount()
		acc.Balance = devBalance
		genesis[crypto.PubkeyToAddress(key.PublicKey)] = acc
	}

	var db state.StateDB
	if cfg.DbImpl == "memory" {
		db = state.MakeInMemoryStateDB(genesis)
		if cfg.DbLogging {
			db = state.MakeLoggingStateDB(db, logger.NewLogger(cfg.LogLevel, "StateDb"))
		}
	} else {
		// In forking mode the synthetic senders are unfunded on the remote
		// chain; their transactions demonstrate the invalid outcome path.
		db, err = utils.MakeStateDB(cfg)
		if err != nil {
			return err
		}
	}
	defer db.Close()

	env := &txcontext.BlockEnv{
		ChainConfig: utils.GetChainConfig(cfg.ChainID),
		Number:      big.NewInt(1),
		Coinbase:    common.HexToAddress("0xc0ffee00000000000000000000000000c0ffee00"),
		Timestamp:   uint64(time.Now().Unix()),
		Difficulty:  big.NewInt(1),
		GasLimit:    cfg.BlockGasLimit,
		BaseFee:     big.NewInt(1e9),
	}

	chainID := big.NewInt(int64(cfg.ChainID))
	signer := types.LatestSignerForChainID(chainID)
	pending := make([]*txcontext.PendingTransaction, 0, numTxs)
	for i, key := range keys {
		recipient := crypto.PubkeyToAddress(keys[(i+1)%len(keys)].PublicKey)
		tx, err := types.SignNewTx(key, signer, &types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     0,
			GasTipCap: big.NewInt(1),
			GasFeeCap: big.NewInt(2e9),
			Gas:       21_000,
			To:        &recipient,
			Value:     big.NewInt(1e15),
		})
		if err != nil {
			return fmt.Errorf("cannot sign transaction; %v", err)
		}
		ptx, err := txcontext.NewPendingTransaction(tx, chainID)
		if err != nil {
			return fmt.Errorf("cannot recover sender; %v", err)
		}
		pending = append(pending, ptx)
	}

	exec := executor.NewBlockExecutor(db, executor.NewTransferVM(), executor.NewBaseValidator(), cfg.TraceCalls, cfg.LogLevel)
	start := time.Now()
	res, err := exec.ExecuteBlock(env, pending)
	if err != nil {
		return fmt.Errorf("mining failed; %v", err)
	}
	log.Noticef("mined block %v in %v", res.Block.Hash(), time.Since(start).Round(time.Microsecond))

	printSummary(res)

	// The logging proxy forwards the flush to the fork underneath.
	if fork, ok := db.(interface{ FlushCache() error }); ok {
		if err := fork.FlushCache(); err != nil {
			return err
		}
	}
	return nil
}

func printSummary(res *executor.BlockAssemblyResult) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Tx", "Outcome", "Gas", "Status"})
	for _, outcome := range res.Outcomes {
		hash := outcome.Transaction().Hash().Hex()
		switch o := outcome.(type) {
		case *executor.Executed:
			table.Append([]string{hash, "executed", fmt.Sprint(o.Result.GasUsed), o.Result.Reason.String()})
		case *executor.Invalid:
			table.Append([]string{hash, "invalid", "-", o.Reason.Error()})
		case *executor.Exhausted:
			table.Append([]string{hash, "exhausted", "-", "-"})
		case *executor.BackendFailure:
			table.Append([]string{hash, "backend failure", "-", o.Err.Error()})
		}
	}
	table.SetFooter([]string{"", "", fmt.Sprint(res.Block.GasUsed()), fmt.Sprintf("%d receipts", len(res.Receipts))})
	table.Render()
}
