package usecase

import "sync"

// sessionLocks serializes transcript read-modify-write per session key.
// Without it two near-simultaneous requests for the same key can race and
// the last full-sequence write wins; enabling serialization strengthens
// that to strict per-key ordering within one process.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the mutex for key and returns the release function.
func (l *sessionLocks) acquire(key string) func() {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
