package chat

import "sync"

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// sessionLocker serialises work per session ID. Entries are dropped once
// no goroutine holds or waits on them.
type sessionLocker struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

func newSessionLocker() *sessionLocker {
	return &sessionLocker{locks: make(map[string]*lockEntry)}
}

// lock blocks until the caller owns id and returns the matching unlock.
func (l *sessionLocker) lock(id string) func() {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &lockEntry{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *sessionLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
