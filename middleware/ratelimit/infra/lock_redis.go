package infra

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/msaedi/instructly-sub003/middleware/ratelimit/domain"
)

// RedisLocker implementa domain.Locker com SET NX EX e DEL.
type RedisLocker struct {
	rdb       redis.Cmdable
	namespace string
	now       func() time.Time
}

func NewRedisLocker(rdb redis.Cmdable, namespace string) *RedisLocker {
	return &RedisLocker{rdb: rdb, namespace: namespace, now: time.Now}
}

// Acquire grava o timestamp atual em {namespace}:lock:{key} se a chave não existir.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl < time.Second {
		ttl = time.Second
	}
	ts := strconv.FormatInt(l.now().Unix(), 10)
	return l.rdb.SetNX(ctx, domain.LockKey(l.namespace, key), ts, ttl.Truncate(time.Second)).Result()
}

// Release apaga o lock sem checar o dono.
func (l *RedisLocker) Release(ctx context.Context, key string) error {
	return l.rdb.Del(ctx, domain.LockKey(l.namespace, key)).Err()
}
