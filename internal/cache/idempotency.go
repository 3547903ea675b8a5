package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	keyPrefix  = "blertcoin:idem:"
	DefaultTTL = 24 * time.Hour
)

// IdempotencyCache stores posted transaction results in Redis keyed by
// their idempotency key.
type IdempotencyCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewIdempotencyCache(client redis.Cmdable, ttl time.Duration) *IdempotencyCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &IdempotencyCache{client: client, ttl: ttl}
}

func Key(idempotencyKey string) string {
	return keyPrefix + idempotencyKey
}

// Load decodes the cached value for key into dest. found is false on a miss.
func (c *IdempotencyCache) Load(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.client.Get(ctx, Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("decode cached result: %w", err)
	}
	return true, nil
}

func (c *IdempotencyCache) Store(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := c.client.Set(ctx, Key(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Connect opens a client from a redis:// URL and checks it responds.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
