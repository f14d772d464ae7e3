package ratelimiter_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linehub/billing/pkg/ratelimiter"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newBucket(t *testing.T, c *clock, cfg ratelimiter.Config) *ratelimiter.Bucket {
	t.Helper()
	b, err := ratelimiter.NewBucket(ratelimiter.NewMemoryStore(ratelimiter.WithClock(c.now)), cfg)
	require.NoError(t, err)
	return b
}

func TestBucket(t *testing.T) {
	t.Parallel()

	cfg := ratelimiter.Config{Capacity: 3, RefillRate: 1, RefillInterval: time.Minute}

	t.Run("burst then refuse", func(t *testing.T) {
		t.Parallel()

		c := &clock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
		b := newBucket(t, c, cfg)
		ctx := context.Background()

		for i := 2; i >= 0; i-- {
			res, err := b.Allow(ctx, "203.0.113.7")
			require.NoError(t, err)
			assert.True(t, res.Allowed())
			assert.Equal(t, i, res.Remaining)
			assert.Equal(t, 3, res.Limit)
		}

		res, err := b.Allow(ctx, "203.0.113.7")
		require.NoError(t, err)
		assert.False(t, res.Allowed())
		assert.Equal(t, time.Minute, res.RetryAfter(c.now()))

		other, err := b.Allow(ctx, "198.51.100.1")
		require.NoError(t, err)
		assert.True(t, other.Allowed())
	})

	t.Run("refused take keeps tokens", func(t *testing.T) {
		t.Parallel()

		c := &clock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
		b := newBucket(t, c, cfg)
		ctx := context.Background()

		res, err := b.AllowN(ctx, "k", 2)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Remaining)

		res, err = b.AllowN(ctx, "k", 2)
		require.NoError(t, err)
		assert.False(t, res.Allowed())

		res, err = b.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, res.Allowed())
		assert.Equal(t, 0, res.Remaining)
	})

	t.Run("refills per interval up to capacity", func(t *testing.T) {
		t.Parallel()

		c := &clock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
		b := newBucket(t, c, cfg)
		ctx := context.Background()

		_, err := b.AllowN(ctx, "k", 3)
		require.NoError(t, err)

		c.advance(90 * time.Second)
		res, err := b.Allow(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, 0, res.Remaining)

		c.advance(24 * time.Hour)
		res, err = b.Allow(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, 2, res.Remaining)
	})
}

func TestNewBucketValidates(t *testing.T) {
	t.Parallel()

	store := ratelimiter.NewMemoryStore()
	for _, cfg := range []ratelimiter.Config{
		{Capacity: 0, RefillRate: 1, RefillInterval: time.Second},
		{Capacity: 1, RefillRate: 0, RefillInterval: time.Second},
		{Capacity: 1, RefillRate: 1},
	} {
		_, err := ratelimiter.NewBucket(store, cfg)
		assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)
	}

	_, err := ratelimiter.NewBucket(nil, ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Second})
	assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)

	b, err := ratelimiter.NewBucket(store, ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Second})
	require.NoError(t, err)
	_, err = b.AllowN(context.Background(), "k", 0)
	assert.ErrorIs(t, err, ratelimiter.ErrInvalidTokenCount)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (*ratelimiter.Result, error) {
	return nil, ratelimiter.ErrStoreUnavailable
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	byHeader := func(r *http.Request) string { return r.Header.Get("X-Client") }

	t.Run("limits per key", func(t *testing.T) {
		t.Parallel()

		c := &clock{t: time.Now()}
		b := newBucket(t, c, ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Hour})

		var denied int
		h := ratelimiter.Middleware(b, byHeader, func(w http.ResponseWriter, _ *http.Request, res *ratelimiter.Result) {
			denied++
			assert.False(t, res.Allowed())
			w.WriteHeader(http.StatusTooManyRequests)
		}, nil)(ok)

		req := httptest.NewRequest(http.MethodGet, "/pay", nil)
		req.Header.Set("X-Client", "a")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		assert.Equal(t, 1, denied)
	})

	t.Run("empty key is not limited", func(t *testing.T) {
		t.Parallel()

		h := ratelimiter.Middleware(failingLimiter{}, byHeader, nil, nil)(ok)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/pay", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	})

	t.Run("store errors fail open", func(t *testing.T) {
		t.Parallel()

		var got error
		h := ratelimiter.Middleware(failingLimiter{}, byHeader, nil, func(_ *http.Request, err error) { got = err })(ok)

		req := httptest.NewRequest(http.MethodGet, "/pay", nil)
		req.Header.Set("X-Client", "a")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.True(t, errors.Is(got, ratelimiter.ErrStoreUnavailable))
	})
}
