package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/msaedi/instructly-sub003/middleware/ratelimit/domain"
)

// RedisIdempotencyCache implementa domain.IdempotencyCache com GET/SETEX de JSON.
type RedisIdempotencyCache struct {
	rdb       redis.Cmdable
	namespace string
}

func NewRedisIdempotencyCache(rdb redis.Cmdable, namespace string) *RedisIdempotencyCache {
	return &RedisIdempotencyCache{rdb: rdb, namespace: namespace}
}

func (c *RedisIdempotencyCache) Get(ctx context.Context, rawKey string, dst any) (bool, error) {
	b, err := c.rdb.Get(ctx, domain.IdempotencyKey(c.namespace, rawKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, fmt.Errorf("decode idempotency payload: %w", err)
	}
	return true, nil
}

func (c *RedisIdempotencyCache) Set(ctx context.Context, rawKey string, payload any, ttl time.Duration) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode idempotency payload: %w", err)
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	return c.rdb.SetEx(ctx, domain.IdempotencyKey(c.namespace, rawKey), b, ttl).Err()
}
