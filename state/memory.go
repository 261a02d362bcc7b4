package state

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// MakeInMemoryStateDB creates a StateDB instance holding all state in local
// maps. The optional genesis allocation seeds the account set.
func MakeInMemoryStateDB(genesis map[common.Address]Account) *InMemoryStateDB {
	db := &InMemoryStateDB{
		accounts: map[common.Address]Account{},
		storage:  map[common.Address]map[common.Hash]common.Hash{},
		hashes:   map[uint64]common.Hash{},
	}
	for addr, acc := range genesis {
		db.accounts[addr] = acc.Copy()
	}
	return db
}

// InMemoryStateDB is a map backed StateDB without any remote layer. Unlike
// the forking implementation, an address that was never written to is
// reported as unknown.
type InMemoryStateDB struct {
	accounts map[common.Address]Account
	storage  map[common.Address]map[common.Hash]common.Hash
	hashes   map[uint64]common.Hash
}

func (db *InMemoryStateDB) GetAccount(addr common.Address) (Account, bool, error) {
	acc, exists := db.accounts[addr]
	if !exists {
		return NewEmptyAccount(), false, nil
	}
	return acc.Copy(), true, nil
}

func (db *InMemoryStateDB) GetStorage(addr common.Address, key common.Hash) (common.Hash, error) {
	return db.storage[addr][key], nil
}

func (db *InMemoryStateDB) GetBlockHash(number uint64) (common.Hash, error) {
	return db.hashes[number], nil
}

// RecordBlockHash registers the hash of a locally mined block so later
// transactions can resolve it through GetBlockHash.
func (db *InMemoryStateDB) RecordBlockHash(number uint64, hash common.Hash) {
	db.hashes[number] = hash
}

func (db *InMemoryStateDB) Apply(changes Changes) error {
	for addr, change := range changes {
		applyChange(db.accounts, db.storage, addr, change)
	}
	return nil
}

func (db *InMemoryStateDB) StateRoot() common.Hash {
	// An in-memory backend tracks no trie; the header of a block mined on
	// top of it carries the zero root.
	return common.Hash{}
}

func (db *InMemoryStateDB) Close() error {
	return nil
}

// applyChange folds one account delta into the given account and storage
// maps. Shared between the in-memory backend and the fork overlay.
func applyChange(accounts map[common.Address]Account, storage map[common.Address]map[common.Hash]common.Hash, addr common.Address, change *AccountChange) {
	if change == nil {
		return
	}
	if change.Destroyed {
		delete(accounts, addr)
		delete(storage, addr)
	}
	acc, exists := accounts[addr]
	if !exists {
		acc = NewEmptyAccount()
	}
	if change.Balance != nil {
		acc.Balance = new(big.Int).Set(change.Balance)
	}
	if change.Nonce != nil {
		acc.Nonce = *change.Nonce
	}
	if change.CodeSet {
		acc.Code = change.Code
		acc.CodeHash = crypto.Keccak256Hash(change.Code)
	}
	accounts[addr] = acc

	if len(change.Storage) > 0 {
		slots := storage[addr]
		if slots == nil {
			slots = map[common.Hash]common.Hash{}
			storage[addr] = slots
		}
		for key, value := range change.Storage {
			slots[key] = value
		}
	}
}
