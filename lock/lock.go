/*
Package lock serializes work on shared balances.

PURPOSE:
  Two transitions on different applications of the same employee and
  category both read and write the same balance pair. The store transaction
  makes each one atomic; a Locker keeps them from queueing inside the
  database and lets several service instances agree on who goes first.

IMPLEMENTATIONS:
  Local: keyed mutexes, one process
  Redis: SET NX PX with a random token, compare-and-delete release
*/
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrNotAcquired is returned when a lock could not be taken before ctx ended.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker acquires an exclusive lock on key. The returned release func must be
// called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// =============================================================================
// LOCAL - keyed mutexes
// =============================================================================

type Local struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{} // buffered(1): holding the token means holding the lock
	refs int
}

func NewLocal() *Local {
	return &Local{locks: make(map[string]*entry)}
}

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, e)
		return nil, errors.Join(ErrNotAcquired, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.unref(key, e)
		})
	}, nil
}

func (l *Local) unref(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// Held reports how many callers hold or wait on key.
func (l *Local) Held(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.locks[key]; ok {
		return e.refs
	}
	return 0
}

var _ Locker = (*Local)(nil)
