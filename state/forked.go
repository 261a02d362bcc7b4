package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"

	"github.com/hearthlabs/hearth/logger"
	"github.com/hearthlabs/hearth/snapshot"
)

// ForkConfig collects the parameters of a forked backend instance.
type ForkConfig struct {
	// ChainID of the remote chain, used to key the persisted cache.
	ChainID uint64

	// Block is the pinned remote block the fork reads from.
	Block uint64

	// CacheDir is the directory the fetched remote data is flushed to.
	// An empty value disables persistence and makes FlushCache a no-op.
	CacheDir string

	// CodeCacheSize is the number of distinct contract code bodies kept in
	// the shared code cache.
	CodeCacheSize int

	LogLevel string
}

// overlay is the local mutable layer of state changes applied since the fork
// point or since the last reset.
type overlay struct {
	accounts map[common.Address]Account
	storage  map[common.Address]map[common.Hash]common.Hash
	hashes   map[uint64]common.Hash

	// destroyed masks the remote layer for addresses whose account was
	// destroyed locally; their old remote slots must read as zero.
	destroyed map[common.Address]struct{}
}

func newOverlay() *overlay {
	return &overlay{
		accounts:  map[common.Address]Account{},
		storage:   map[common.Address]map[common.Hash]common.Hash{},
		hashes:    map[uint64]common.Hash{},
		destroyed: map[common.Address]struct{}{},
	}
}

func (o *overlay) copy() *overlay {
	c := newOverlay()
	for addr, acc := range o.accounts {
		c.accounts[addr] = acc.Copy()
	}
	for addr, slots := range o.storage {
		inner := make(map[common.Hash]common.Hash, len(slots))
		for key, value := range slots {
			inner[key] = value
		}
		c.storage[addr] = inner
	}
	for number, hash := range o.hashes {
		c.hashes[number] = hash
	}
	for addr := range o.destroyed {
		c.destroyed[addr] = struct{}{}
	}
	return c
}

// ForkSnapshot is a point-in-time copy of the fork overlay together with the
// three cached remote maps. Capturing all four at once is what makes a later
// revert consistent.
type ForkSnapshot struct {
	overlay  *overlay
	accounts map[common.Address]Account
	storage  map[common.Address]map[common.Hash]common.Hash
	hashes   map[uint64]common.Hash
}

// Copy provides an owned deep copy of the snapshot.
func (s *ForkSnapshot) Copy() *ForkSnapshot {
	accounts := make(map[common.Address]Account, len(s.accounts))
	for addr, acc := range s.accounts {
		accounts[addr] = acc.Copy()
	}
	storage := make(map[common.Address]map[common.Hash]common.Hash, len(s.storage))
	for addr, slots := range s.storage {
		inner := make(map[common.Hash]common.Hash, len(slots))
		for key, value := range slots {
			inner[key] = value
		}
		storage[addr] = inner
	}
	hashes := make(map[uint64]common.Hash, len(s.hashes))
	for number, hash := range s.hashes {
		hashes[number] = hash
	}
	return &ForkSnapshot{
		overlay:  s.overlay.copy(),
		accounts: accounts,
		storage:  storage,
		hashes:   hashes,
	}
}

// ForkedStateDB implements StateDB by layering a local mutable overlay over
// remote state pinned to a specific block number. Reads check the overlay
// first, then the shared cache of already fetched remote data, and only then
// issue a round trip to the remote node through the fetch worker. Commits
// touch the overlay exclusively; the cached remote data stays an immutable
// image of the fork point until a reset.
type ForkedStateDB struct {
	pin       uint64
	chainID   uint64
	overlay   *overlay
	cache     *remoteCache
	worker    *fetchWorker
	codes     *lru.Cache
	snapshots *snapshot.Registry[*ForkSnapshot]
	store     *cacheStore
	log       logger.Logger
}

// NewForkedStateDB creates a forked backend reading through the given
// fetcher. If a cache directory is configured and holds a flushed cache for
// the same chain and pin, it is loaded so the fork resumes without
// re-fetching.
func NewForkedStateDB(fetcher Fetcher, cfg ForkConfig) (*ForkedStateDB, error) {
	log := logger.NewLogger(cfg.LogLevel, "ForkDb")

	size := cfg.CodeCacheSize
	if size <= 0 {
		size = 1024
	}
	codes, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("cannot create code cache; %v", err)
	}

	db := &ForkedStateDB{
		pin:       cfg.Block,
		chainID:   cfg.ChainID,
		overlay:   newOverlay(),
		cache:     newRemoteCache(),
		codes:     codes,
		snapshots: snapshot.NewRegistry[*ForkSnapshot](),
		log:       log,
	}
	if cfg.CacheDir != "" {
		db.store = &cacheStore{dir: cfg.CacheDir}
		if err := db.store.load(db.cache, cfg.ChainID, cfg.Block); err != nil {
			return nil, fmt.Errorf("cannot load persisted fork cache; %v", err)
		}
		if n := db.cache.numAccounts(); n > 0 {
			log.Noticef("resumed fork cache with %d accounts for chain %d at block %d", n, cfg.ChainID, cfg.Block)
		}
	}
	db.worker = startFetchWorker(fetcher, db.cache, log)
	return db, nil
}

// GetAccount retrieves the account stored under the given address. A probe
// for an address not yet in the overlay warms the overlay from the remote
// layer as a side effect, so the forked backend always reports an account
// for any probed address. Use CachedAccount to distinguish a never fetched
// address from one that exists with empty content.
func (db *ForkedStateDB) GetAccount(addr common.Address) (Account, bool, error) {
	if acc, exists := db.overlay.accounts[addr]; exists {
		return acc.Copy(), true, nil
	}
	acc, err := db.worker.accountAt(addr, db.pin)
	if err != nil {
		return Account{}, false, &BackendError{Op: fmt.Sprintf("fetch account %v", addr), Err: err}
	}
	db.shareCode(&acc)
	db.overlay.accounts[addr] = acc.Copy()
	return acc, true, nil
}

// CachedAccount answers from the cache of fetched remote data only, without
// triggering a remote round trip or touching the overlay.
func (db *ForkedStateDB) CachedAccount(addr common.Address) (Account, bool) {
	return db.cache.getAccount(addr)
}

// shareCode replaces the code body of the account with the instance already
// held in the code cache, so identical contracts deployed under many
// addresses share one body.
func (db *ForkedStateDB) shareCode(acc *Account) {
	if len(acc.Code) == 0 {
		return
	}
	if cached, exists := db.codes.Get(acc.CodeHash); exists {
		acc.Code = cached.([]byte)
		return
	}
	db.codes.Add(acc.CodeHash, acc.Code)
}

func (db *ForkedStateDB) GetStorage(addr common.Address, key common.Hash) (common.Hash, error) {
	if slots, exists := db.overlay.storage[addr]; exists {
		if value, exists := slots[key]; exists {
			return value, nil
		}
	}
	if _, destroyed := db.overlay.destroyed[addr]; destroyed {
		return common.Hash{}, nil
	}
	value, err := db.worker.storageAt(addr, key, db.pin)
	if err != nil {
		return common.Hash{}, &BackendError{Op: fmt.Sprintf("fetch storage %v %v", addr, key), Err: err}
	}
	return value, nil
}

func (db *ForkedStateDB) GetBlockHash(number uint64) (common.Hash, error) {
	if hash, exists := db.overlay.hashes[number]; exists {
		return hash, nil
	}
	hash, err := db.worker.blockHash(number)
	if err != nil {
		return common.Hash{}, &BackendError{Op: fmt.Sprintf("fetch block hash %d", number), Err: err}
	}
	return hash, nil
}

// RecordBlockHash registers the hash of a locally mined block in the overlay.
func (db *ForkedStateDB) RecordBlockHash(number uint64, hash common.Hash) {
	db.overlay.hashes[number] = hash
}

// Apply commits a batch of account deltas to the overlay. The cached remote
// data is never mutated by a commit. A destruction additionally marks the
// address so the remote layer stops answering for its storage.
func (db *ForkedStateDB) Apply(changes Changes) error {
	for addr, change := range changes {
		if change != nil && change.Destroyed {
			db.overlay.destroyed[addr] = struct{}{}
		}
		applyChange(db.overlay.accounts, db.overlay.storage, addr, change)
	}
	return nil
}

func (db *ForkedStateDB) StateRoot() common.Hash {
	// The fork tracks no state trie of its own; see the in-memory backend.
	return common.Hash{}
}

// Snapshot captures the overlay and the three cached remote maps together
// and registers them under a fresh id.
func (db *ForkedStateDB) Snapshot() int {
	accounts, storage, hashes := db.cache.copyMaps()
	snap := &ForkSnapshot{
		overlay:  db.overlay.copy(),
		accounts: accounts,
		storage:  storage,
		hashes:   hashes,
	}
	id := db.snapshots.Create(snap)
	db.log.Debugf("created snapshot %d", id)
	return id
}

// RevertToSnapshot restores the state captured under the given id: the
// overlay and the cached remote maps are replaced together. With keep set the
// snapshot stays available for further reverts to the same id; otherwise the
// id is consumed. Reverting to an unknown id is a no-op and reports false.
func (db *ForkedStateDB) RevertToSnapshot(id int, keep bool) bool {
	snap, exists := db.snapshots.Revert(id, keep)
	if !exists {
		db.log.Warningf("no snapshot with id %d, revert skipped", id)
		return false
	}
	db.overlay = snap.overlay
	db.cache.restore(snap.accounts, snap.storage, snap.hashes)
	db.log.Debugf("reverted to snapshot %d (keep: %v)", id, keep)
	return true
}

// Reset repoints the fork at a new remote block. The overlay is discarded and
// the cached remote data of the old pin is cleared, so every following read
// resolves against the new pin. Must not be called while a transaction is
// being executed.
func (db *ForkedStateDB) Reset(block uint64) {
	db.overlay = newOverlay()
	db.cache.clear()
	db.pin = block
	db.log.Noticef("fork reset to block %d", block)
}

// PinnedBlock reports the remote block the fork currently reads from.
func (db *ForkedStateDB) PinnedBlock() uint64 {
	return db.pin
}

// FlushCache persists the accumulated remote data to the configured cache
// directory, keyed by chain id and pinned block. Without a configured
// directory this is a no-op.
func (db *ForkedStateDB) FlushCache() error {
	if db.store == nil {
		return nil
	}
	if err := db.store.flush(db.cache, db.chainID, db.pin); err != nil {
		return fmt.Errorf("cannot flush fork cache; %v", err)
	}
	db.log.Infof("flushed fork cache for chain %d at block %d", db.chainID, db.pin)
	return nil
}

func (db *ForkedStateDB) Close() error {
	db.worker.close()
	return nil
}
