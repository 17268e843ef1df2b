package wallet

import (
	"sync"

	"github.com/google/uuid"
)

// walletLocks hands out one mutex per wallet id so all balance mutations for a
// wallet serialize within the process. Entries are refcounted and removed when
// the last holder releases, keeping the map bounded by in-flight wallets.
type walletLocks struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newWalletLocks() *walletLocks {
	return &walletLocks{entries: make(map[uuid.UUID]*lockEntry)}
}

// Lock blocks until the wallet's mutex is held and returns the release func.
func (l *walletLocks) Lock(walletID uuid.UUID) func() {
	l.mu.Lock()
	entry, ok := l.entries[walletID]
	if !ok {
		entry = &lockEntry{}
		l.entries[walletID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, walletID)
		}
		l.mu.Unlock()
	}
}
