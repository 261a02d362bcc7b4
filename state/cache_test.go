package state

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestRemoteCache_CopyMapsAreIndependentOfTheLiveCache(t *testing.T) {
	cache := newRemoteCache()
	cache.setAccount(addrA, Account{Nonce: 1, Balance: big.NewInt(10)})
	cache.setStorage(addrA, keyK, common.HexToHash("0x01"))
	cache.setBlockHash(5, common.HexToHash("0x05"))

	accounts, storage, hashes := cache.copyMaps()

	cache.setAccount(addrA, Account{Nonce: 2, Balance: big.NewInt(20)})
	cache.setStorage(addrA, keyK, common.HexToHash("0x02"))
	cache.setBlockHash(5, common.HexToHash("0x06"))

	if got := accounts[addrA]; got.Nonce != 1 || got.Balance.Cmp(big.NewInt(10)) != 0 {
		t.Errorf("account copy tracks the live cache: %+v", got)
	}
	if got := storage[addrA][keyK]; got != common.HexToHash("0x01") {
		t.Errorf("storage copy tracks the live cache: %v", got)
	}
	if got := hashes[5]; got != common.HexToHash("0x05") {
		t.Errorf("hash copy tracks the live cache: %v", got)
	}
}

func TestRemoteCache_RestoreReplacesAllThreeMaps(t *testing.T) {
	cache := newRemoteCache()
	cache.setAccount(addrA, Account{Nonce: 1, Balance: big.NewInt(1)})

	accounts, storage, hashes := cache.copyMaps()

	cache.setAccount(addrB, Account{Nonce: 9, Balance: big.NewInt(9)})
	cache.setStorage(addrB, keyK, common.HexToHash("0xff"))
	cache.setBlockHash(1, common.HexToHash("0x01"))

	cache.restore(accounts, storage, hashes)

	if _, exists := cache.getAccount(addrB); exists {
		t.Errorf("restore kept an account that postdates the copy")
	}
	if _, exists := cache.getStorage(addrB, keyK); exists {
		t.Errorf("restore kept a storage slot that postdates the copy")
	}
	if _, exists := cache.getBlockHash(1); exists {
		t.Errorf("restore kept a block hash that postdates the copy")
	}
	if acc, exists := cache.getAccount(addrA); !exists || acc.Nonce != 1 {
		t.Errorf("restore lost the copied account")
	}
}

func TestRemoteCache_ReturnedAccountsAreCopies(t *testing.T) {
	cache := newRemoteCache()
	cache.setAccount(addrA, Account{Balance: big.NewInt(7)})

	acc, _ := cache.getAccount(addrA)
	acc.Balance.SetInt64(100)

	fresh, _ := cache.getAccount(addrA)
	if fresh.Balance.Cmp(big.NewInt(7)) != 0 {
		t.Errorf("cache leaked a mutable reference, balance %v", fresh.Balance)
	}
}

func TestRemoteCache_ClearDropsEverything(t *testing.T) {
	cache := newRemoteCache()
	cache.setAccount(addrA, Account{})
	cache.setStorage(addrA, keyK, common.Hash{1})
	cache.setBlockHash(1, common.Hash{2})

	cache.clear()

	if cache.numAccounts() != 0 {
		t.Errorf("accounts survived a clear")
	}
	if _, exists := cache.getStorage(addrA, keyK); exists {
		t.Errorf("storage survived a clear")
	}
	if _, exists := cache.getBlockHash(1); exists {
		t.Errorf("block hash survived a clear")
	}
}
