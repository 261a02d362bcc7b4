package state

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/hearthlabs/hearth/logger"
)

//go:generate mockgen -source remote.go -destination remote_mocks.go -package state

// Fetcher retrieves state data from a remote node. All calls are blocking
// round trips; failures are reported as plain errors and wrapped into
// BackendError values by the caller.
type Fetcher interface {
	// FetchAccount retrieves balance, nonce and code of the given address
	// as of the given block.
	FetchAccount(ctx context.Context, addr common.Address, block uint64) (Account, error)

	// FetchStorage retrieves the value of one storage slot as of the given
	// block.
	FetchStorage(ctx context.Context, addr common.Address, key common.Hash, block uint64) (common.Hash, error)

	// FetchBlockHash retrieves the hash of the block with the given number.
	FetchBlockHash(ctx context.Context, number uint64) (common.Hash, error)

	// Close releases the underlying connection.
	Close()
}

// NewRPCFetcher connects to the given JSON-RPC endpoint and provides a
// Fetcher reading from it.
func NewRPCFetcher(url string) (Fetcher, error) {
	client, err := rpc.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to %v; %v", url, err)
	}
	return &rpcFetcher{client: client}, nil
}

type rpcFetcher struct {
	client *rpc.Client
}

func (f *rpcFetcher) FetchAccount(ctx context.Context, addr common.Address, block uint64) (Account, error) {
	tag := hexutil.EncodeUint64(block)

	var balance hexutil.Big
	if err := f.client.CallContext(ctx, &balance, "eth_getBalance", addr, tag); err != nil {
		return Account{}, fmt.Errorf("eth_getBalance failed; %v", err)
	}
	var nonce hexutil.Uint64
	if err := f.client.CallContext(ctx, &nonce, "eth_getTransactionCount", addr, tag); err != nil {
		return Account{}, fmt.Errorf("eth_getTransactionCount failed; %v", err)
	}
	var code hexutil.Bytes
	if err := f.client.CallContext(ctx, &code, "eth_getCode", addr, tag); err != nil {
		return Account{}, fmt.Errorf("eth_getCode failed; %v", err)
	}

	return Account{
		Nonce:    uint64(nonce),
		Balance:  balance.ToInt(),
		CodeHash: crypto.Keccak256Hash(code),
		Code:     code,
	}, nil
}

func (f *rpcFetcher) FetchStorage(ctx context.Context, addr common.Address, key common.Hash, block uint64) (common.Hash, error) {
	var value hexutil.Bytes
	if err := f.client.CallContext(ctx, &value, "eth_getStorageAt", addr, key, hexutil.EncodeUint64(block)); err != nil {
		return common.Hash{}, fmt.Errorf("eth_getStorageAt failed; %v", err)
	}
	return common.BytesToHash(value), nil
}

func (f *rpcFetcher) FetchBlockHash(ctx context.Context, number uint64) (common.Hash, error) {
	var head *struct {
		Hash common.Hash `json:"hash"`
	}
	if err := f.client.CallContext(ctx, &head, "eth_getBlockByNumber", hexutil.EncodeUint64(number), false); err != nil {
		return common.Hash{}, fmt.Errorf("eth_getBlockByNumber failed; %v", err)
	}
	if head == nil {
		return common.Hash{}, fmt.Errorf("block %d not known by the remote node", number)
	}
	return head.Hash, nil
}

func (f *rpcFetcher) Close() {
	f.client.Close()
}

// defaultFetchTimeout bounds a single remote round trip.
const defaultFetchTimeout = 30 * time.Second

type fetchKind int

const (
	fetchAccount fetchKind = iota
	fetchStorage
	fetchBlockHash
)

type fetchRequest struct {
	kind   fetchKind
	addr   common.Address
	key    common.Hash
	number uint64
	block  uint64
	reply  chan fetchReply
}

type fetchReply struct {
	account Account
	value   common.Hash
	hash    common.Hash
	err     error
}

// fetchWorker owns the network connection to the remote node. Callers send a
// request and block on the reply channel, so the public contract stays
// synchronous while all network I/O lives in one goroutine. Requests are
// served strictly in order and each one consults the cache first, which also
// coalesces duplicate probes that queued up behind the same uncached key.
type fetchWorker struct {
	fetcher  Fetcher
	cache    *remoteCache
	requests chan fetchRequest
	quit     chan struct{}
	done     chan struct{}
	timeout  time.Duration
	log      logger.Logger
}

func startFetchWorker(fetcher Fetcher, cache *remoteCache, log logger.Logger) *fetchWorker {
	w := &fetchWorker{
		fetcher:  fetcher,
		cache:    cache,
		requests: make(chan fetchRequest),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		timeout:  defaultFetchTimeout,
		log:      log,
	}
	go w.run()
	return w
}

func (w *fetchWorker) run() {
	defer close(w.done)
	for {
		select {
		case req := <-w.requests:
			req.reply <- w.handle(req)
		case <-w.quit:
			return
		}
	}
}

func (w *fetchWorker) handle(req fetchRequest) fetchReply {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	switch req.kind {
	case fetchAccount:
		if acc, exists := w.cache.getAccount(req.addr); exists {
			return fetchReply{account: acc}
		}
		acc, err := w.fetcher.FetchAccount(ctx, req.addr, req.block)
		if err != nil {
			return fetchReply{err: err}
		}
		w.cache.setAccount(req.addr, acc)
		return fetchReply{account: acc}

	case fetchStorage:
		if value, exists := w.cache.getStorage(req.addr, req.key); exists {
			return fetchReply{value: value}
		}
		value, err := w.fetcher.FetchStorage(ctx, req.addr, req.key, req.block)
		if err != nil {
			return fetchReply{err: err}
		}
		w.cache.setStorage(req.addr, req.key, value)
		return fetchReply{value: value}

	case fetchBlockHash:
		if hash, exists := w.cache.getBlockHash(req.number); exists {
			return fetchReply{hash: hash}
		}
		hash, err := w.fetcher.FetchBlockHash(ctx, req.number)
		if err != nil {
			return fetchReply{err: err}
		}
		w.cache.setBlockHash(req.number, hash)
		return fetchReply{hash: hash}
	}
	return fetchReply{err: fmt.Errorf("unknown fetch request kind %d", req.kind)}
}

func (w *fetchWorker) send(req fetchRequest) fetchReply {
	req.reply = make(chan fetchReply, 1)
	select {
	case w.requests <- req:
		return <-req.reply
	case <-w.quit:
		return fetchReply{err: fmt.Errorf("fetch worker has been shut down")}
	}
}

// accountAt resolves an account through the cache and, on a miss, the remote
// node pinned to the given block.
func (w *fetchWorker) accountAt(addr common.Address, block uint64) (Account, error) {
	reply := w.send(fetchRequest{kind: fetchAccount, addr: addr, block: block})
	return reply.account, reply.err
}

// storageAt resolves one storage slot the same way.
func (w *fetchWorker) storageAt(addr common.Address, key common.Hash, block uint64) (common.Hash, error) {
	reply := w.send(fetchRequest{kind: fetchStorage, addr: addr, key: key, block: block})
	return reply.value, reply.err
}

// blockHash resolves the hash of the block with the given number.
func (w *fetchWorker) blockHash(number uint64) (common.Hash, error) {
	reply := w.send(fetchRequest{kind: fetchBlockHash, number: number})
	return reply.hash, reply.err
}

func (w *fetchWorker) close() {
	close(w.quit)
	<-w.done
	w.fetcher.Close()
}
