package chat

import (
	"sync"

	"github.com/m-mizutani/lectern/pkg/model"
)

// sessionLocks serializes turns per session. Entries are dropped when no turn holds or waits for them.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[model.SessionID]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[model.SessionID]*sessionLock)}
}

// lock blocks until the session is free and returns the release function
func (x *sessionLocks) lock(id model.SessionID) func() {
	x.mu.Lock()
	l, ok := x.locks[id]
	if !ok {
		l = &sessionLock{}
		x.locks[id] = l
	}
	l.refs++
	x.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		x.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(x.locks, id)
		}
		x.mu.Unlock()
	}
}

func (x *sessionLocks) size() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.locks)
}
