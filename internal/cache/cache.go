// Package cache is a small byte cache for rendered API responses, backed by
// Redis when configured and an in-process map otherwise.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache: miss")

type Cacher interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// New selects the cache backend. An unreachable Redis downgrades to the
// in-memory cache instead of failing startup; the cache is an optimization,
// never a dependency.
func New(redisURL string) Cacher {
	if redisURL == "" {
		return NewMemory()
	}

	c, err := NewRedis(redisURL)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, falling back to in-memory cache")
		return NewMemory()
	}
	return c
}
