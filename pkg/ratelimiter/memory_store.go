package ratelimiter

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	tokens     int
	lastRefill time.Time
	lastAccess time.Time
}

// MemoryStore keeps buckets in process. Idle buckets are dropped during
// later takes, so no background goroutine is needed.
type MemoryStore struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	idleAfter time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type MemoryStoreOption func(*MemoryStore)

// WithIdleTimeout sets how long an untouched bucket is kept. Defaults to an hour.
func WithIdleTimeout(d time.Duration) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if d > 0 {
			ms.idleAfter = d
		}
	}
}

func WithClock(now func() time.Time) MemoryStoreOption {
	return func(ms *MemoryStore) {
		if now != nil {
			ms.now = now
		}
	}
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	ms := &MemoryStore{
		buckets:   make(map[string]*bucket),
		idleAfter: time.Hour,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(ms)
	}
	return ms
}

func (ms *MemoryStore) Take(_ context.Context, key string, n int, cfg Config) (int, time.Time, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	ms.sweep(now)

	b, ok := ms.buckets[key]
	if !ok {
		b = &bucket{tokens: cfg.Capacity, lastRefill: now}
		ms.buckets[key] = b
	}
	b.lastAccess = now

	// cap the interval count so a long idle key cannot overflow
	maxIntervals := int64(cfg.Capacity/cfg.RefillRate + 1)
	intervals := int(min(int64(now.Sub(b.lastRefill)/cfg.RefillInterval), maxIntervals))
	if intervals > 0 {
		b.tokens = min(b.tokens+intervals*cfg.RefillRate, cfg.Capacity)
		b.lastRefill = now
	}

	resetAt := b.lastRefill.Add(cfg.RefillInterval)
	if b.tokens < n {
		return b.tokens - n, resetAt, nil
	}
	b.tokens -= n
	return b.tokens, resetAt, nil
}

func (ms *MemoryStore) sweep(now time.Time) {
	if now.Sub(ms.lastSweep) < ms.idleAfter {
		return
	}
	ms.lastSweep = now
	for key, b := range ms.buckets {
		if now.Sub(b.lastAccess) > ms.idleAfter {
			delete(ms.buckets, key)
		}
	}
}
