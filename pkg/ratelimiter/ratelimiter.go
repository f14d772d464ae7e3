// Package ratelimiter throttles callers with a token bucket per key. The
// payment link endpoints use it to slow down token guessing from one client
// address.
package ratelimiter

import (
	"context"
	"fmt"
	"time"
)

// Config is the bucket shape: Capacity requests in a burst, then RefillRate
// more every RefillInterval.
type Config struct {
	Capacity       int           `env:"RATE_LIMIT_CAPACITY" envDefault:"30"`
	RefillRate     int           `env:"RATE_LIMIT_REFILL_RATE" envDefault:"10"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL" envDefault:"1m"`
}

func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidConfig, c.Capacity)
	}
	if c.RefillRate <= 0 {
		return fmt.Errorf("%w: refill rate must be positive, got %d", ErrInvalidConfig, c.RefillRate)
	}
	if c.RefillInterval <= 0 {
		return fmt.Errorf("%w: refill interval must be positive, got %v", ErrInvalidConfig, c.RefillInterval)
	}
	return nil
}

// Result is the bucket state after a take.
type Result struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Allowed reports whether the take fitted in the bucket.
func (r *Result) Allowed() bool {
	return r.Remaining >= 0
}

// RetryAfter is zero for allowed results.
func (r *Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed() || !r.ResetAt.After(now) {
		return 0
	}
	return r.ResetAt.Sub(now)
}

// Store keeps bucket state. Take removes n tokens after refilling and
// returns what is left; a negative remainder means the take was refused and
// nothing was removed.
type Store interface {
	Take(ctx context.Context, key string, n int, cfg Config) (remaining int, resetAt time.Time, err error)
}

// Bucket applies one Config to many keys.
type Bucket struct {
	store  Store
	config Config
}

func NewBucket(store Store, cfg Config) (*Bucket, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Bucket{store: store, config: cfg}, nil
}

func (b *Bucket) Allow(ctx context.Context, key string) (*Result, error) {
	return b.AllowN(ctx, key, 1)
}

func (b *Bucket) AllowN(ctx context.Context, key string, n int) (*Result, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: must be positive, got %d", ErrInvalidTokenCount, n)
	}

	remaining, resetAt, err := b.store.Take(ctx, key, n, b.config)
	if err != nil {
		return nil, err
	}
	return &Result{Limit: b.config.Capacity, Remaining: remaining, ResetAt: resetAt}, nil
}
