// Package cache provides the key/value cache in front of the audit store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrMiss is returned by Get when the key is absent or expired.
	ErrMiss = errors.New("cache: miss")
	// ErrConflict is returned by Update when concurrent writers kept winning.
	ErrConflict = errors.New("cache: update conflict")
)

// Cache stores opaque values under string keys. A ttl of 0 means the entry
// never expires.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// Update replaces the value at key with fn(current) as one atomic step.
	// current is nil when the key is absent. No write happens if fn fails.
	Update(ctx context.Context, key string, ttl time.Duration, fn func(current []byte) ([]byte, error)) error
	Ping(ctx context.Context) error
	Close() error
}

// MemoryURL selects the in-process cache in Open.
const MemoryURL = "memory"

// Open returns an in-process cache for "memory" and a Redis cache for any
// redis:// or rediss:// URL.
func Open(url string) (Cache, error) {
	if url == MemoryURL {
		return NewMemory(), nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing REDIS_URL: %w", err)
	}
	return NewRedis(redis.NewClient(opts), DefaultMaxAttempts), nil
}
