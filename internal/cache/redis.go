package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/161043261/ai-agent-go/internal/config"
	"github.com/161043261/ai-agent-go/internal/domain"
)

// Redis Stream constants. The group and consumer names are fixed: the service
// runs one logical consumer per process.
const (
	messageStreamKey    = "ai-agent:message:stream"
	messageGroupName    = "message_consumer_group"
	messageConsumerName = "message_consumer_1"

	consumerReadCount = 10
	consumerBlock     = 5 * time.Second
	consumerBackoff   = time.Second
)

// redisCache implements Cache on a Redis server, using plain keys for the KV
// contract and a stream with a consumer group for the queue contract.
type redisCache struct {
	client *redis.Client
}

func newRedisCache(cfg config.RedisConfig) (*redisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &redisCache{client: client}, nil
}

// Provider reports the backend name.
func (c *redisCache) Provider() string {
	return ProviderRedis
}

// Get returns the value stored under key, or ErrCacheMiss.
func (c *redisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

// Set stores value under key with the given ttl.
func (c *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes key.
func (c *redisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// InitQueue creates the message stream and its consumer group. Idempotent: an
// already-existing group is not an error.
func (c *redisCache) InitQueue(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, messageStreamKey, messageGroupName, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// isBusyGroup reports whether err is the BUSYGROUP reply, meaning the
// consumer group already exists.
func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// Publish appends the message to the stream.
func (c *redisCache) Publish(ctx context.Context, msg domain.QueueMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal queue message: %w", err)
	}

	err = c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: messageStreamKey,
		Values: map[string]any{"data": string(data)},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd: %w", err)
	}
	return nil
}

// StartConsumer begins reading the stream via the consumer group. Messages
// are acknowledged only after handler success; unacknowledged messages remain
// pending for redelivery.
func (c *redisCache) StartConsumer(ctx context.Context, handler Handler) {
	go c.consumeLoop(ctx, handler)
}

func (c *redisCache) consumeLoop(ctx context.Context, handler Handler) {
	for {
		if ctx.Err() != nil {
			return
		}

		chunks, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    messageGroupName,
			Consumer: messageConsumerName,
			Streams:  []string{messageStreamKey, ">"},
			Count:    consumerReadCount,
			Block:    consumerBlock,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // block timeout, nothing new
			}
			if ctx.Err() != nil {
				return
			}
			slog.Error("redis stream read failed, backing off", "error", err)
			time.Sleep(consumerBackoff)
			continue
		}

		for _, chunk := range chunks {
			for _, streamMsg := range chunk.Messages {
				if err := c.handleStreamMessage(ctx, handler, streamMsg); err != nil {
					slog.Error("queue message processing failed",
						"message_id", streamMsg.ID, "error", err)
					continue // not acked; left pending for redelivery
				}
				if err := c.client.XAck(ctx, messageStreamKey, messageGroupName, streamMsg.ID).Err(); err != nil {
					slog.Error("xack failed", "message_id", streamMsg.ID, "error", err)
				}
			}
		}
	}
}

func (c *redisCache) handleStreamMessage(ctx context.Context, handler Handler, streamMsg redis.XMessage) error {
	data, ok := streamMsg.Values["data"].(string)
	if !ok {
		slog.Warn("discarding malformed stream entry", "message_id", streamMsg.ID)
		return nil // ack and drop; retrying cannot help
	}

	var msg domain.QueueMessage
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		slog.Warn("discarding undecodable stream entry", "message_id", streamMsg.ID, "error", err)
		return nil
	}

	return handler(ctx, msg)
}

// Close closes the Redis connection.
func (c *redisCache) Close() error {
	return c.client.Close()
}
