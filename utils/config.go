// Package utils holds the configuration surface shared by the command line
// front end and the library constructors.
package utils

import (
	"fmt"
	"math/big"

	"github.com/c2h5oh/datasize"
	"github.com/ethereum/go-ethereum/params"
	"github.com/urfave/cli/v2"

	"github.com/hearthlabs/hearth/logger"
)

type ChainID int64

const (
	UnknownChainID  ChainID = 0
	EthereumChainID ChainID = 1
	DevChainID      ChainID = 1337
)

// Config collects all settings of a node core instance.
type Config struct {
	ChainID  ChainID
	LogLevel string

	// DbImpl selects the backend: "memory" or "fork".
	DbImpl    string
	DbLogging bool

	// Forking mode settings.
	ForkURL       string
	ForkBlock     uint64
	CacheDir      string
	CodeCacheSize int

	// Mining settings.
	BlockGasLimit uint64
	TraceCalls    bool
}

// NewConfig reads all settings from the given cli context.
func NewConfig(ctx *cli.Context) (*Config, error) {
	cfg := &Config{
		ChainID:       ChainID(ctx.Int64(ChainIDFlag.Name)),
		LogLevel:      ctx.String(logger.LogLevelFlag.Name),
		DbImpl:        ctx.String(DbImplementationFlag.Name),
		DbLogging:     ctx.Bool(DbLoggingFlag.Name),
		ForkURL:       ctx.String(ForkURLFlag.Name),
		ForkBlock:     ctx.Uint64(ForkBlockFlag.Name),
		CacheDir:      ctx.Path(CacheDirFlag.Name),
		BlockGasLimit: ctx.Uint64(BlockGasLimitFlag.Name),
		TraceCalls:    ctx.Bool(TraceCallsFlag.Name),
	}

	// The code cache flag is a human readable size; one cached contract is
	// budgeted at roughly the maximum deployed code size.
	var size datasize.ByteSize
	if err := size.UnmarshalText([]byte(ctx.String(CodeCacheSizeFlag.Name))); err != nil {
		return nil, fmt.Errorf("invalid --%s value %q; %v", CodeCacheSizeFlag.Name, ctx.String(CodeCacheSizeFlag.Name), err)
	}
	cfg.CodeCacheSize = int(size.Bytes() / params.MaxCodeSize)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings for consistency.
func (cfg *Config) Validate() error {
	switch cfg.DbImpl {
	case "memory":
	case "fork":
		if cfg.ForkURL == "" {
			return fmt.Errorf("fork backend requires --%s", ForkURLFlag.Name)
		}
	default:
		return fmt.Errorf("unknown DB implementation (--%s): %v", DbImplementationFlag.Name, cfg.DbImpl)
	}
	if cfg.BlockGasLimit == 0 {
		return fmt.Errorf("block gas limit must not be zero")
	}
	return nil
}

// GetChainConfig provides the chain rule set for the given chain id. The dev
// chain activates all upgrades including the fee market from genesis.
func GetChainConfig(chainID ChainID) *params.ChainConfig {
	switch chainID {
	case EthereumChainID:
		return params.MainnetChainConfig
	default:
		cfg := &params.ChainConfig{
			ChainID:             big.NewInt(int64(chainID)),
			HomesteadBlock:      big.NewInt(0),
			EIP150Block:         big.NewInt(0),
			EIP155Block:         big.NewInt(0),
			EIP158Block:         big.NewInt(0),
			ByzantiumBlock:      big.NewInt(0),
			ConstantinopleBlock: big.NewInt(0),
			PetersburgBlock:     big.NewInt(0),
			IstanbulBlock:       big.NewInt(0),
			MuirGlacierBlock:    big.NewInt(0),
			BerlinBlock:         big.NewInt(0),
			LondonBlock:         big.NewInt(0),
		}
		return cfg
	}
}
