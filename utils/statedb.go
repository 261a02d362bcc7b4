package utils

import (
	"fmt"

	"github.com/hearthlabs/hearth/logger"
	"github.com/hearthlabs/hearth/state"
)

// MakeStateDB creates a backend instance based on the configuration. The
// executor is written against the state.StateDB interface and never needs to
// know which implementation is active.
func MakeStateDB(cfg *Config) (state.StateDB, error) {
	db, err := makeStateDBInternal(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.DbLogging {
		db = state.MakeLoggingStateDB(db, logger.NewLogger(cfg.LogLevel, "StateDb"))
	}
	return db, nil
}

func makeStateDBInternal(cfg *Config) (state.StateDB, error) {
	switch cfg.DbImpl {
	case "memory":
		return state.MakeInMemoryStateDB(nil), nil
	case "fork":
		fetcher, err := state.NewRPCFetcher(cfg.ForkURL)
		if err != nil {
			return nil, fmt.Errorf("cannot create remote fetcher; %v", err)
		}
		return state.NewForkedStateDB(fetcher, state.ForkConfig{
			ChainID:       uint64(cfg.ChainID),
			Block:         cfg.ForkBlock,
			CacheDir:      cfg.CacheDir,
			CodeCacheSize: cfg.CodeCacheSize,
			LogLevel:      cfg.LogLevel,
		})
	}
	return nil, fmt.Errorf("unknown DB implementation (--%s): %v", DbImplementationFlag.Name, cfg.DbImpl)
}
