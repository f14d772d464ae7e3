package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still carries our token, so an
// expired lock re-acquired by another worker is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker implements try-locks with SET NX PX. Locks expire after ttl even if
// the holder dies without releasing.
type Locker struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

func NewLocker(client redis.UniversalClient, cfg Config) *Locker {
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Locker{client: client, ttl: ttl, prefix: cfg.LockPrefix}
}

func (l *Locker) TryLock(ctx context.Context, key string) (release func(), ok bool, err error) {
	token := uuid.NewString()
	fullKey := l.prefix + key

	ok, err = l.client.SetNX(ctx, fullKey, token, l.ttl).Result()
	if err != nil {
		return nil, false, errors.Join(ErrLockUnavailable, err)
	}
	if !ok {
		return nil, false, nil
	}

	return func() {
		_ = releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{fullKey}, token).Err()
	}, true, nil
}
