package reconcile

import "sync"

// keyLocks hands out one mutex per code. Entries are dropped once no goroutine
// holds or waits for them, so the map only grows with concurrently active codes.
type keyLocks struct {
	mu    sync.Mutex
	locks map[int]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[int]*keyLock)}
}

// Lock blocks until the lock for code is held and returns its release func.
func (k *keyLocks) Lock(code int) func() {
	k.mu.Lock()
	l, ok := k.locks[code]
	if !ok {
		l = &keyLock{}
		k.locks[code] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, code)
		}
		k.mu.Unlock()
	}
}
