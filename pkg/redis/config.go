package redis

import "time"

type Config struct {
	ConnectionURL   string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RetryAttempts   int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval   time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout  time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
	LockTTL         time.Duration `env:"REDIS_LOCK_TTL" envDefault:"2m"` // upper bound on a crashed holder keeping a lock
	LockPrefix      string        `env:"REDIS_LOCK_PREFIX" envDefault:"billing:lock:"`
	RateLimitPrefix string        `env:"REDIS_RATE_LIMIT_PREFIX" envDefault:"billing:rl:"`
}
