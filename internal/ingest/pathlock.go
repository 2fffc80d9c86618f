package ingest

import "sync"

// pathLocks hands out one mutex per key. Entries are dropped once no
// goroutine holds or waits on them.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

func newPathLocks() *pathLocks {
	return &pathLocks{locks: make(map[string]*pathLock)}
}

// lock blocks until key is free and returns the matching unlock.
func (l *pathLocks) lock(key string) func() {
	l.mu.Lock()
	pl, ok := l.locks[key]
	if !ok {
		pl = &pathLock{}
		l.locks[key] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()

	return func() {
		pl.mu.Unlock()

		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

func (l *pathLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
