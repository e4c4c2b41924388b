package infra

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/msaedi/instructly-sub003/middleware/ratelimit/domain"
)

// RedisRecorder agrega decisões em hashes do Redis, compartilhados entre réplicas.
//
// Chaves:
//   - {prefix}:total                   hash action -> contagem (cumulativo, não expira)
//   - {prefix}:minute:{yyyymmddhhmm}   hash action -> contagem (expira em ttl)
//   - {prefix}:bucket                  hash "{bucket}:{action}" -> contagem
//   - {prefix}:retry_after             hash "{bucket}:count" / "{bucket}:sum"
//
// É best-effort: erros viram log, nunca sobem para a request.
type RedisRecorder struct {
	rdb redis.Cmdable

	prefix string
	// ttl aplica apenas em chaves de série temporal.
	ttl time.Duration

	bucket  string // "minute" (padrão) ou "none"
	timeout time.Duration
	log     *zap.Logger
	now     func() time.Time
}

type RedisStatsOption func(*RedisRecorder)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisRecorder) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisRecorder) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisRecorder) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTimeout(d time.Duration) RedisStatsOption {
	return func(s *RedisRecorder) { s.timeout = d }
}

func WithStatsLogger(l *zap.Logger) RedisStatsOption {
	return func(s *RedisRecorder) { s.log = l }
}

func NewRedisRecorder(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisRecorder {
	s := &RedisRecorder{
		rdb:     rdb,
		prefix:  "ratelimit:stats",
		ttl:     24 * time.Hour,
		bucket:  "minute",
		timeout: 50 * time.Millisecond,
		log:     zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisRecorder) RecordDecision(bucket string, action domain.Action, shadow bool) {
	if s == nil || s.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	field := string(action)
	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	if s.bucket == "minute" {
		minuteKey := fmt.Sprintf("%s:minute:%s", s.prefix, s.now().UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, minuteKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, minuteKey, s.ttl)
		}
	}

	if b := strings.TrimSpace(bucket); b != "" {
		pipe.HIncrBy(ctx, s.prefix+":bucket", b+":"+field, 1)
		if shadow {
			pipe.HIncrBy(ctx, s.prefix+":bucket", b+":shadow_mode", 1)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn("rate limit stats write failed", zap.String("bucket", bucket), zap.Error(err))
	}
}

func (s *RedisRecorder) RecordRetryAfter(bucket string, _ bool, seconds float64) {
	if s == nil || s.rdb == nil || math.IsInf(seconds, 0) || math.IsNaN(seconds) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	key := s.prefix + ":retry_after"
	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, key, bucket+":count", 1)
	pipe.HIncrByFloat(ctx, key, bucket+":sum", seconds)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn("rate limit stats write failed", zap.String("bucket", bucket),
			zap.String("retry_after", strconv.FormatFloat(seconds, 'f', -1, 64)), zap.Error(err))
	}
}
