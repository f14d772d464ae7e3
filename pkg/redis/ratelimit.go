package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linehub/billing/pkg/ratelimiter"
)

// takeScript refills and takes from a bucket hash {tokens, last} in one round
// trip. It mirrors ratelimiter.MemoryStore: whole intervals only, and a
// refused take leaves the tokens untouched.
var takeScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local interval = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local n = tonumber(ARGV[5])

local state = redis.call("HMGET", KEYS[1], "tokens", "last")
local tokens = tonumber(state[1])
local last = tonumber(state[2])
if tokens == nil or last == nil then
	tokens = capacity
	last = now
end

local intervals = math.floor((now - last) / interval)
local cap = math.floor(capacity / rate) + 1
if intervals > cap then intervals = cap end
if intervals > 0 then
	tokens = math.min(tokens + intervals * rate, capacity)
	last = now
end

local remaining
if tokens < n then
	remaining = tokens - n
else
	tokens = tokens - n
	remaining = tokens
end

redis.call("HSET", KEYS[1], "tokens", tokens, "last", last)
redis.call("PEXPIRE", KEYS[1], ARGV[6])
return {remaining, last + interval}
`)

// RateLimitStore keeps token buckets in Redis so every instance shares them.
type RateLimitStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRateLimitStore(client redis.UniversalClient, cfg Config) *RateLimitStore {
	return &RateLimitStore{client: client, prefix: cfg.RateLimitPrefix, now: time.Now}
}

func (s *RateLimitStore) Take(ctx context.Context, key string, n int, cfg ratelimiter.Config) (int, time.Time, error) {
	interval := cfg.RefillInterval.Milliseconds()
	// a full bucket is reached after capacity/rate intervals; keep state a little longer
	ttl := interval * int64(cfg.Capacity/cfg.RefillRate+2)

	res, err := takeScript.Run(ctx, s.client, []string{s.prefix + key},
		cfg.Capacity, cfg.RefillRate, interval, s.now().UnixMilli(), n, ttl,
	).Int64Slice()
	if err != nil {
		return 0, time.Time{}, errors.Join(ratelimiter.ErrStoreUnavailable, err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, ratelimiter.ErrStoreUnavailable
	}
	return int(res[0]), time.UnixMilli(res[1]), nil
}
