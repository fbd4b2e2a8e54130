// Package refcache stores reference images (fixture sprites, prompt
// references) by name. One cache is built in main and passed down.
package refcache

import (
	"context"
	"fmt"
	"time"
)

const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Cache is safe for concurrent use.
type Cache interface {
	// Get reports ok=false for a missing key; err is only for backend failures.
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Put(ctx context.Context, key string, data []byte) error
	Close() error
}

type Config struct {
	Driver     string
	MaxEntries int
	TTL        time.Duration
	Redis      *RedisConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// New picks the backend named by cfg.Driver; empty means memory.
func New(cfg Config) (Cache, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemoryTTL(cfg.MaxEntries, cfg.TTL), nil
	case DriverRedis:
		return NewRedis(cfg)
	default:
		return nil, fmt.Errorf("unsupported cache driver: %s", cfg.Driver)
	}
}

// Loader produces the value for a key on a cache miss.
type Loader func(ctx context.Context) ([]byte, error)

// GetOrLoad returns the cached value for key or loads and stores it. A failing
// cache backend does not fail the call; the value is loaded instead.
func GetOrLoad(ctx context.Context, c Cache, key string, load Loader) ([]byte, error) {
	if c != nil {
		if data, ok, err := c.Get(ctx, key); err == nil && ok {
			return data, nil
		}
	}

	data, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if c != nil {
		_ = c.Put(ctx, key, data)
	}
	return data, nil
}
