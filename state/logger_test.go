package state

import (
	"math/big"
	"testing"

	"github.com/hearthlabs/hearth/logger"
)

func TestLoggingStateDB_FlushReachesTheWrappedFork(t *testing.T) {
	dir := t.TempDir()

	fetcher := newFakeFetcher()
	fetcher.accounts[addrA] = Account{Nonce: 3, Balance: big.NewInt(30)}
	fork := makePersistentFork(t, fetcher, dir)

	db := MakeLoggingStateDB(fork, logger.NewLogger("critical", "StateDb"))
	if _, _, err := db.GetAccount(addrA); err != nil {
		t.Fatalf("read through the proxy failed; %v", err)
	}
	flusher, ok := db.(interface{ FlushCache() error })
	if !ok {
		t.Fatalf("logged fork lost its flush path")
	}
	if err := flusher.FlushCache(); err != nil {
		t.Fatalf("flush through the proxy failed; %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close failed; %v", err)
	}

	resumed := makePersistentFork(t, newFakeFetcher(), dir)
	defer resumed.Close()
	if acc, cached := resumed.CachedAccount(addrA); !cached || acc.Nonce != 3 {
		t.Errorf("flush did not reach the wrapped fork, cached %v, account %+v", cached, acc)
	}
}

func TestLoggingStateDB_FlushOfAMemoryBackendIsANoOp(t *testing.T) {
	db := MakeLoggingStateDB(MakeInMemoryStateDB(nil), logger.NewLogger("critical", "StateDb"))
	flusher, ok := db.(interface{ FlushCache() error })
	if !ok {
		t.Fatalf("proxy does not expose a flush path")
	}
	if err := flusher.FlushCache(); err != nil {
		t.Errorf("flush of a memory backend reported an error; %v", err)
	}
}
