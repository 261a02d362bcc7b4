package state

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// remoteCache accumulates the results of remote fetches: accounts, storage
// slots and block hashes as of the pinned fork block. Each map carries its
// own lock so concurrent readers of unrelated maps never serialize on each
// other. The cached data represents the immutable as-of-fork-point truth and
// is never touched by commits; only a reset or a snapshot revert replaces it.
type remoteCache struct {
	accountsMu sync.RWMutex
	accounts   map[common.Address]Account

	storageMu sync.RWMutex
	storage   map[common.Address]map[common.Hash]common.Hash

	hashesMu sync.RWMutex
	hashes   map[uint64]common.Hash
}

func newRemoteCache() *remoteCache {
	return &remoteCache{
		accounts: map[common.Address]Account{},
		storage:  map[common.Address]map[common.Hash]common.Hash{},
		hashes:   map[uint64]common.Hash{},
	}
}

func (c *remoteCache) getAccount(addr common.Address) (Account, bool) {
	c.accountsMu.RLock()
	defer c.accountsMu.RUnlock()
	acc, exists := c.accounts[addr]
	if !exists {
		return Account{}, false
	}
	return acc.Copy(), true
}

func (c *remoteCache) setAccount(addr common.Address, acc Account) {
	c.accountsMu.Lock()
	defer c.accountsMu.Unlock()
	c.accounts[addr] = acc.Copy()
}

func (c *remoteCache) getStorage(addr common.Address, key common.Hash) (common.Hash, bool) {
	c.storageMu.RLock()
	defer c.storageMu.RUnlock()
	value, exists := c.storage[addr][key]
	return value, exists
}

func (c *remoteCache) setStorage(addr common.Address, key, value common.Hash) {
	c.storageMu.Lock()
	defer c.storageMu.Unlock()
	slots := c.storage[addr]
	if slots == nil {
		slots = map[common.Hash]common.Hash{}
		c.storage[addr] = slots
	}
	slots[key] = value
}

func (c *remoteCache) getBlockHash(number uint64) (common.Hash, bool) {
	c.hashesMu.RLock()
	defer c.hashesMu.RUnlock()
	hash, exists := c.hashes[number]
	return hash, exists
}

func (c *remoteCache) setBlockHash(number uint64, hash common.Hash) {
	c.hashesMu.Lock()
	defer c.hashesMu.Unlock()
	c.hashes[number] = hash
}

// numAccounts reports the number of cached accounts.
func (c *remoteCache) numAccounts() int {
	c.accountsMu.RLock()
	defer c.accountsMu.RUnlock()
	return len(c.accounts)
}

// copyMaps captures a deep copy of all three maps. Used for snapshots and
// for flushing the cache to disk.
func (c *remoteCache) copyMaps() (map[common.Address]Account, map[common.Address]map[common.Hash]common.Hash, map[uint64]common.Hash) {
	c.accountsMu.RLock()
	accounts := make(map[common.Address]Account, len(c.accounts))
	for addr, acc := range c.accounts {
		accounts[addr] = acc.Copy()
	}
	c.accountsMu.RUnlock()

	c.storageMu.RLock()
	storage := make(map[common.Address]map[common.Hash]common.Hash, len(c.storage))
	for addr, slots := range c.storage {
		inner := make(map[common.Hash]common.Hash, len(slots))
		for key, value := range slots {
			inner[key] = value
		}
		storage[addr] = inner
	}
	c.storageMu.RUnlock()

	c.hashesMu.RLock()
	hashes := make(map[uint64]common.Hash, len(c.hashes))
	for number, hash := range c.hashes {
		hashes[number] = hash
	}
	c.hashesMu.RUnlock()

	return accounts, storage, hashes
}

// restore replaces all three maps with copies of the given ones. The three
// locks are taken together so a concurrent reader never observes a mix of
// old and new data.
func (c *remoteCache) restore(accounts map[common.Address]Account, storage map[common.Address]map[common.Hash]common.Hash, hashes map[uint64]common.Hash) {
	c.accountsMu.Lock()
	c.storageMu.Lock()
	c.hashesMu.Lock()
	defer c.hashesMu.Unlock()
	defer c.storageMu.Unlock()
	defer c.accountsMu.Unlock()

	c.accounts = make(map[common.Address]Account, len(accounts))
	for addr, acc := range accounts {
		c.accounts[addr] = acc.Copy()
	}
	c.storage = make(map[common.Address]map[common.Hash]common.Hash, len(storage))
	for addr, slots := range storage {
		inner := make(map[common.Hash]common.Hash, len(slots))
		for key, value := range slots {
			inner[key] = value
		}
		c.storage[addr] = inner
	}
	c.hashes = make(map[uint64]common.Hash, len(hashes))
	for number, hash := range hashes {
		c.hashes[number] = hash
	}
}

// clear drops all cached remote data. Called on a reset to a new pin.
func (c *remoteCache) clear() {
	c.restore(nil, nil, nil)
}
