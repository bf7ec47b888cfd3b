package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/161043261/ai-agent-go/internal/domain"
)

// memoryCache implements Cache in-process: bigcache for the KV contract and
// an ordered in-memory list for the queue contract. State is lost on restart.
//
// The queue drain is non-reentrant: the draining flag guarantees at most one
// drain pass at a time, so each message reaches the handler exactly once and
// in FIFO order. A publish during an active drain is picked up by that same
// pass, which rechecks the queue under the lock before exiting.
type memoryCache struct {
	store *bigcache.BigCache

	mu       sync.Mutex
	queue    []domain.QueueMessage
	handler  Handler
	ctx      context.Context
	draining bool
}

func newMemoryCache(defaultTTL time.Duration) (*memoryCache, error) {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}

	cfg := bigcache.DefaultConfig(defaultTTL)
	cfg.CleanWindow = 5 * time.Minute
	cfg.Verbose = false

	store, err := bigcache.New(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("init bigcache: %w", err)
	}

	return &memoryCache{
		store: store,
		ctx:   context.Background(),
	}, nil
}

// Provider reports the backend name.
func (c *memoryCache) Provider() string {
	return ProviderMemory
}

// Get returns the value stored under key, or ErrCacheMiss.
func (c *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	val, err := c.store.Get(key)
	if err == bigcache.ErrEntryNotFound {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("bigcache get: %w", err)
	}
	return val, nil
}

// Set stores value under key. bigcache applies one cache-wide TTL, so the
// per-key ttl argument is ignored here; entries expire at the default.
func (c *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if err := c.store.Set(key, value); err != nil {
		return fmt.Errorf("bigcache set: %w", err)
	}
	return nil
}

// Delete removes key. An absent key is not an error.
func (c *memoryCache) Delete(_ context.Context, key string) error {
	err := c.store.Delete(key)
	if err != nil && err != bigcache.ErrEntryNotFound {
		return fmt.Errorf("bigcache delete: %w", err)
	}
	return nil
}

// InitQueue is a no-op for the in-process queue.
func (c *memoryCache) InitQueue(_ context.Context) error {
	return nil
}

// Publish appends the message and triggers a drain. Never blocks on the
// handler: the drain runs on its own goroutine.
func (c *memoryCache) Publish(_ context.Context, msg domain.QueueMessage) error {
	c.mu.Lock()
	c.queue = append(c.queue, msg)
	c.mu.Unlock()

	go c.drain()
	return nil
}

// StartConsumer registers the handler and drains anything already queued.
func (c *memoryCache) StartConsumer(ctx context.Context, handler Handler) {
	c.mu.Lock()
	c.handler = handler
	c.ctx = ctx
	c.mu.Unlock()

	go c.drain()
}

// drain feeds queued messages to the handler one at a time, FIFO. Handler
// errors are logged and the message is dropped; the in-process path does not
// retry.
func (c *memoryCache) drain() {
	c.mu.Lock()
	if c.draining || c.handler == nil {
		c.mu.Unlock()
		return
	}
	c.draining = true

	for len(c.queue) > 0 {
		msg := c.queue[0]
		c.queue = c.queue[1:]
		handler, ctx := c.handler, c.ctx
		c.mu.Unlock()

		if err := handler(ctx, msg); err != nil {
			slog.Error("queue message processing failed, dropping",
				"session_id", msg.SessionID, "error", err)
		}

		c.mu.Lock()
	}

	c.draining = false
	c.mu.Unlock()
}

// Close releases the underlying cache.
func (c *memoryCache) Close() error {
	return c.store.Close()
}
