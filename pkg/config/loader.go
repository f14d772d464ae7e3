// Package config loads environment-driven configuration structs.
//
// Values come from the process environment, optionally seeded from a .env
// file in the working directory. Each struct type is parsed once and cached;
// later calls for the same type return the cached copy.
//
//	type Config struct {
//		ConnectionString string `env:"PG_CONN_URL,required"`
//	}
//
//	var cfg Config
//	config.MustLoad(&cfg)
package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type entry struct {
	once  sync.Once
	value any
	err   error
}

var (
	cache     sync.Map // reflect.Type -> *entry
	dotenvRun sync.Once
)

// Load populates v from the environment. Parsing errors are cached along
// with successful values so a misconfigured type fails consistently.
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}

	dotenvRun.Do(func() {
		// a missing .env is normal outside local development
		_ = godotenv.Load()
	})

	key := reflect.TypeOf(v).Elem()
	raw, _ := cache.LoadOrStore(key, &entry{})
	e := raw.(*entry)

	e.once.Do(func() {
		var parsed T
		if err := env.Parse(&parsed); err != nil {
			e.err = errors.Join(ErrParsingConfig, err)
			return
		}
		e.value = parsed
	})

	if e.err != nil {
		return e.err
	}
	cached, ok := e.value.(T)
	if !ok {
		return ErrConfigNotLoaded
	}
	*v = cached
	return nil
}

// MustLoad works like Load but panics on failure. Use it for configuration
// the process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration %T: %v", *v, err))
	}
}

// Reset drops every cached configuration. Intended for tests that change
// the environment between cases.
func Reset() {
	cache.Range(func(k, _ any) bool {
		cache.Delete(k)
		return true
	})
}
