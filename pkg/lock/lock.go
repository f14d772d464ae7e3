// Package lock defines the try-lock contract used by batch jobs to make sure
// a customer or invoice is processed by one worker at a time.
//
// Postgres advisory locks (pkg/pg) and Redis SET NX locks (pkg/redis) satisfy
// Locker for multi-replica deployments; Local covers single-process runs and
// tests.
package lock

import (
	"context"
	"sync"
)

// Locker acquires a named lock without blocking. When ok is true the caller
// must invoke release exactly once.
type Locker interface {
	TryLock(ctx context.Context, key string) (release func(), ok bool, err error)
}

// Local is an in-process Locker.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (l *Local) TryLock(_ context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true, nil
}

// Noop grants every lock. Use it only where a unique constraint already
// guards the work.
type Noop struct{}

func (Noop) TryLock(context.Context, string) (func(), bool, error) {
	return func() {}, true, nil
}
