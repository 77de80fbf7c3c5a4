package domain

import (
	"context"
	"time"
)

// Cache stores serialized run results so repeated retrievals of an alert log
// do not hit the repository or re-run evaluation.
type Cache interface {
	// Get retrieves a raw value. Returns nil, nil if the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a raw value with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, key string) error

	// GetRun retrieves a cached run result. Returns nil, nil on miss.
	GetRun(ctx context.Context, runID string) (*RunResult, error)

	// SetRun caches a run result.
	SetRun(ctx context.Context, runID string, result *RunResult, ttl time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// If true with the redis type, check the local LRU first and fall
	// back to Redis on miss.
	EnableTwoPhase bool
}
