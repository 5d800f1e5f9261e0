package ledger

import "sync"

// accountLocks serializes writers of one account within this process.
// Entries are dropped once no goroutine holds or waits for them.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*accountLock
}

type accountLock struct {
	mu   sync.Mutex
	refs int
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[string]*accountLock)}
}

// lock acquires the lock for customerID and returns its release func.
func (l *accountLocks) lock(customerID string) func() {
	l.mu.Lock()
	al, ok := l.locks[customerID]
	if !ok {
		al = &accountLock{}
		l.locks[customerID] = al
	}
	al.refs++
	l.mu.Unlock()

	al.mu.Lock()

	return func() {
		al.mu.Unlock()

		l.mu.Lock()
		al.refs--
		if al.refs == 0 {
			delete(l.locks, customerID)
		}
		l.mu.Unlock()
	}
}
