package utils

import (
	"github.com/urfave/cli/v2"
)

// Command line options shared by the node commands.
var (
	ChainIDFlag = cli.Int64Flag{
		Name:  "chainid",
		Usage: "ChainID of the chain being mined, or of the remote chain in forking mode",
		Value: int64(DevChainID),
	}
	DbImplementationFlag = cli.StringFlag{
		Name:  "db-impl",
		Usage: "backend implementation to mine on (\"memory\", \"fork\")",
		Value: "memory",
	}
	DbLoggingFlag = cli.BoolFlag{
		Name:  "db-logging",
		Usage: "log the individual state backend calls",
	}
	ForkURLFlag = cli.StringFlag{
		Name:    "fork-url",
		Aliases: []string{"f"},
		Usage:   "JSON-RPC endpoint of the remote node to fork from",
	}
	ForkBlockFlag = cli.Uint64Flag{
		Name:  "fork-block",
		Usage: "remote block number to pin the fork to",
	}
	CacheDirFlag = cli.PathFlag{
		Name:  "cache-dir",
		Usage: "directory the fetched remote state is flushed to; disabled if empty",
	}
	CodeCacheSizeFlag = cli.StringFlag{
		Name:  "code-cache-size",
		Usage: "memory budget of the shared contract code cache",
		Value: "25 MB",
	}
	BlockGasLimitFlag = cli.Uint64Flag{
		Name:  "block-gas-limit",
		Usage: "gas limit of mined blocks",
		Value: 30_000_000,
	}
	TraceCallsFlag = cli.BoolFlag{
		Name:  "trace-calls",
		Usage: "request a call trace from the VM for every executed transaction",
	}
)
