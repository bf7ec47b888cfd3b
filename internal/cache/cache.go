// Package cache provides a key-value store plus append-only message queue
// behind one contract, with two interchangeable backends: Redis (durable,
// consumer-group semantics) and an in-process fallback (zero dependencies,
// no cross-process durability). The backend is selected once at startup.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/161043261/ai-agent-go/internal/config"
	"github.com/161043261/ai-agent-go/internal/domain"
)

// ErrCacheMiss is returned by Get when the key is absent.
var ErrCacheMiss = errors.New("cache: miss")

// Handler consumes one queued message. The message is acknowledged (or
// removed) only after the handler returns nil.
type Handler func(ctx context.Context, msg domain.QueueMessage) error

// Cache is the backend-neutral cache and message-queue contract. Publish must
// never block the caller on consumer progress; persistence of published
// messages is the consumer's concern.
type Cache interface {
	// Get returns the value stored under key, or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A zero ttl means the backend default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// InitQueue performs idempotent queue setup (stream and consumer group
	// creation on backends that require it).
	InitQueue(ctx context.Context) error

	// Publish appends a message to the queue. Fire-and-forget with respect
	// to the calling request's latency.
	Publish(ctx context.Context, msg domain.QueueMessage) error

	// StartConsumer begins the asynchronous consume loop feeding handler.
	// Safe to call once per Cache; the loop stops when ctx is canceled.
	StartConsumer(ctx context.Context, handler Handler)

	// Provider reports which backend is in use ("redis" or "memory").
	Provider() string

	// Close releases backend resources.
	Close() error
}

// Backend provider names.
const (
	ProviderRedis  = "redis"
	ProviderMemory = "memory"
)

const (
	connectAttempts = 3
	connectBackoff  = 500 * time.Millisecond
)

// New selects and initializes the cache backend. If Redis is enabled it is
// attempted with bounded retry; on exhaustion the in-process backend is used
// instead. Startup never fails because Redis is unreachable.
func New(cfg config.RedisConfig, defaultTTL time.Duration) (Cache, error) {
	if cfg.Enabled {
		var lastErr error
		for attempt := 1; attempt <= connectAttempts; attempt++ {
			rc, err := newRedisCache(cfg)
			if err == nil {
				slog.Info("cache initialized", "provider", ProviderRedis, "addr", cfg.Addr())
				return rc, nil
			}
			lastErr = err
			time.Sleep(time.Duration(attempt) * connectBackoff)
		}
		slog.Warn("redis unreachable, falling back to in-process cache", "error", lastErr)
	}

	mc, err := newMemoryCache(defaultTTL)
	if err != nil {
		return nil, err
	}
	slog.Info("cache initialized", "provider", ProviderMemory)
	return mc, nil
}
