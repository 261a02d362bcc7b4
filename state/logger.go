package state

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/hearthlabs/hearth/logger"
)

// MakeLoggingStateDB wraps the given backend into a proxy logging every call
// and its outcome. Intended for debugging a misbehaving fork or VM.
func MakeLoggingStateDB(db StateDB, log logger.Logger) StateDB {
	return &loggingStateDB{db: db, log: log}
}

type loggingStateDB struct {
	db  StateDB
	log logger.Logger
}

func (l *loggingStateDB) GetAccount(addr common.Address) (Account, bool, error) {
	acc, exists, err := l.db.GetAccount(addr)
	l.log.Debugf("GetAccount, %v, nonce %d, balance %v, exists %v, error %v", addr, acc.Nonce, acc.Balance, exists, err)
	return acc, exists, err
}

func (l *loggingStateDB) GetStorage(addr common.Address, key common.Hash) (common.Hash, error) {
	value, err := l.db.GetStorage(addr, key)
	l.log.Debugf("GetStorage, %v, %v, %v, error %v", addr, key, value, err)
	return value, err
}

func (l *loggingStateDB) GetBlockHash(number uint64) (common.Hash, error) {
	hash, err := l.db.GetBlockHash(number)
	l.log.Debugf("GetBlockHash, %d, %v, error %v", number, hash, err)
	return hash, err
}

func (l *loggingStateDB) Apply(changes Changes) error {
	err := l.db.Apply(changes)
	l.log.Debugf("Apply, %d accounts, error %v", len(changes), err)
	return err
}

func (l *loggingStateDB) StateRoot() common.Hash {
	root := l.db.StateRoot()
	l.log.Debugf("StateRoot, %v", root)
	return root
}

// FlushCache forwards to the wrapped backend when it supports persistence,
// so a logged fork can still be flushed through the proxy.
func (l *loggingStateDB) FlushCache() error {
	flusher, ok := l.db.(interface{ FlushCache() error })
	if !ok {
		return nil
	}
	err := flusher.FlushCache()
	l.log.Debugf("FlushCache, error %v", err)
	return err
}

func (l *loggingStateDB) Close() error {
	err := l.db.Close()
	l.log.Debugf("Close, error %v", err)
	return err
}
