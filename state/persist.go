package state

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/klauspost/compress/gzip"
	"github.com/syndtr/goleveldb/leveldb"
)

// Key prefixes separating the three cached maps inside one LevelDB instance.
const (
	accountPrefix   = 0x0a
	storagePrefix   = 0x0b
	blockHashPrefix = 0x0c
)

// accountRLP is the RLP shape of a cached account.
type accountRLP struct {
	Nonce    uint64
	Balance  *big.Int
	CodeHash common.Hash
	Code     []byte
}

// cacheStore persists the fetched remote data to a LevelDB instance per
// (chain id, pinned block) pair, so a later process can resume the same fork
// without re-fetching.
type cacheStore struct {
	dir string
}

func (s *cacheStore) path(chainID, block uint64) string {
	return filepath.Join(s.dir, fmt.Sprintf("fork-%d-%d", chainID, block))
}

// flush writes the current content of the cache. The target database is
// rewritten as one batch, so a partially written cache is never observed.
// Keys of a previous flush that no longer exist in the cache, e.g. after a
// revert, are dropped in the same batch.
func (s *cacheStore) flush(c *remoteCache, chainID, block uint64) error {
	accounts, storage, hashes := c.copyMaps()

	db, err := leveldb.OpenFile(s.path(chainID, block), nil)
	if err != nil {
		return fmt.Errorf("cannot open cache db; %v", err)
	}
	defer db.Close()

	batch := new(leveldb.Batch)
	iter := db.NewIterator(nil, nil)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return fmt.Errorf("cannot scan cache db; %v", err)
	}
	for addr, acc := range accounts {
		data, err := rlp.EncodeToBytes(&accountRLP{
			Nonce:    acc.Nonce,
			Balance:  acc.Balance,
			CodeHash: acc.CodeHash,
			Code:     acc.Code,
		})
		if err != nil {
			return fmt.Errorf("cannot encode account %v; %v", addr, err)
		}
		batch.Put(accountKey(addr), data)
	}
	for addr, slots := range storage {
		for key, value := range slots {
			batch.Put(storageKey(addr, key), value.Bytes())
		}
	}
	for number, hash := range hashes {
		batch.Put(blockHashKey(number), hash.Bytes())
	}
	if err := db.Write(batch, nil); err != nil {
		return fmt.Errorf("cannot write cache db; %v", err)
	}
	return nil
}

// load reads a previously flushed cache back into the given cache instance.
// A missing database is not an error; the fork simply starts cold.
func (s *cacheStore) load(c *remoteCache, chainID, block uint64) error {
	path := s.path(chainID, block)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return fmt.Errorf("cannot open cache db; %v", err)
	}
	defer db.Close()

	iter := db.NewIterator(nil, nil)
	defer iter.Release()
	for iter.Next() {
		key, value := iter.Key(), iter.Value()
		if len(key) == 0 {
			continue
		}
		switch key[0] {
		case accountPrefix:
			if len(key) != 1+common.AddressLength {
				return fmt.Errorf("malformed account key of length %d", len(key))
			}
			var acc accountRLP
			if err := rlp.DecodeBytes(value, &acc); err != nil {
				return fmt.Errorf("cannot decode account; %v", err)
			}
			c.setAccount(common.BytesToAddress(key[1:]), Account{
				Nonce:    acc.Nonce,
				Balance:  acc.Balance,
				CodeHash: acc.CodeHash,
				Code:     acc.Code,
			})
		case storagePrefix:
			if len(key) != 1+common.AddressLength+common.HashLength {
				return fmt.Errorf("malformed storage key of length %d", len(key))
			}
			addr := common.BytesToAddress(key[1 : 1+common.AddressLength])
			slot := common.BytesToHash(key[1+common.AddressLength:])
			c.setStorage(addr, slot, common.BytesToHash(value))
		case blockHashPrefix:
			if len(key) != 1+8 {
				return fmt.Errorf("malformed block hash key of length %d", len(key))
			}
			c.setBlockHash(binary.BigEndian.Uint64(key[1:]), common.BytesToHash(value))
		default:
			return fmt.Errorf("unknown key prefix 0x%02x in cache db", key[0])
		}
	}
	return iter.Error()
}

func accountKey(addr common.Address) []byte {
	key := make([]byte, 1+common.AddressLength)
	key[0] = accountPrefix
	copy(key[1:], addr.Bytes())
	return key
}

func storageKey(addr common.Address, slot common.Hash) []byte {
	key := make([]byte, 1+common.AddressLength+common.HashLength)
	key[0] = storagePrefix
	copy(key[1:], addr.Bytes())
	copy(key[1+common.AddressLength:], slot.Bytes())
	return key
}

func blockHashKey(number uint64) []byte {
	key := make([]byte, 1+8)
	key[0] = blockHashPrefix
	binary.BigEndian.PutUint64(key[1:], number)
	return key
}

// The single-file exchange format used by ExportCache and ImportCache.
type cacheFileRLP struct {
	ChainID  uint64
	Block    uint64
	Accounts []accountEntryRLP
	Storage  []storageEntryRLP
	Hashes   []hashEntryRLP
}

type accountEntryRLP struct {
	Addr    common.Address
	Account accountRLP
}

type storageEntryRLP struct {
	Addr  common.Address
	Key   common.Hash
	Value common.Hash
}

type hashEntryRLP struct {
	Number uint64
	Hash   common.Hash
}

// ExportCache writes the fetched remote data as one gzip-compressed RLP
// stream, e.g. to hand a warmed fork cache to another machine.
func (db *ForkedStateDB) ExportCache(w io.Writer) error {
	accounts, storage, hashes := db.cache.copyMaps()

	file := cacheFileRLP{ChainID: db.chainID, Block: db.pin}
	for addr, acc := range accounts {
		file.Accounts = append(file.Accounts, accountEntryRLP{
			Addr: addr,
			Account: accountRLP{
				Nonce:    acc.Nonce,
				Balance:  acc.Balance,
				CodeHash: acc.CodeHash,
				Code:     acc.Code,
			},
		})
	}
	for addr, slots := range storage {
		for key, value := range slots {
			file.Storage = append(file.Storage, storageEntryRLP{Addr: addr, Key: key, Value: value})
		}
	}
	for number, hash := range hashes {
		file.Hashes = append(file.Hashes, hashEntryRLP{Number: number, Hash: hash})
	}

	out := gzip.NewWriter(w)
	if err := rlp.Encode(out, &file); err != nil {
		return fmt.Errorf("cannot encode cache; %v", err)
	}
	return out.Close()
}

// ImportCache merges a previously exported cache into this fork. Data
// recorded for a different chain or pin is rejected.
func (db *ForkedStateDB) ImportCache(r io.Reader) error {
	in, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("not a gzip stream; %v", err)
	}
	defer in.Close()

	var file cacheFileRLP
	if err := rlp.Decode(in, &file); err != nil {
		return fmt.Errorf("cannot decode cache; %v", err)
	}
	if file.ChainID != db.chainID || file.Block != db.pin {
		return fmt.Errorf("cache was recorded for chain %d at block %d, fork is pinned to chain %d at block %d",
			file.ChainID, file.Block, db.chainID, db.pin)
	}
	for _, entry := range file.Accounts {
		db.cache.setAccount(entry.Addr, Account{
			Nonce:    entry.Account.Nonce,
			Balance:  entry.Account.Balance,
			CodeHash: entry.Account.CodeHash,
			Code:     entry.Account.Code,
		})
	}
	for _, entry := range file.Storage {
		db.cache.setStorage(entry.Addr, entry.Key, entry.Value)
	}
	for _, entry := range file.Hashes {
		db.cache.setBlockHash(entry.Number, entry.Hash)
	}
	return nil
}
