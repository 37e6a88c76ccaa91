package ledger

import "sync"

// lockTable hands out one mutex per account, created lazily. Locks are never
// evicted; the account population of this service is tiny.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

func (t *lockTable) lockFor(accountID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[accountID] = l
	}
	return l
}
