package infra

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/msaedi/instructly-sub003/middleware/ratelimit/domain"
)

//go:embed gcra.lua
var gcraSource string

// EVALSHA com fallback automático para EVAL quando o cache de scripts foi limpo.
var gcraScript = redis.NewScript(gcraSource)

// RedisStateStore implementa domain.StateStore com um script Lua.
//
// O Redis executa o script inteiro sem intercalar outros comandos, então duas
// requests concorrentes para a mesma chave nunca leem o mesmo TAT.
type RedisStateStore struct {
	rdb redis.Scripter
}

func NewRedisStateStore(rdb redis.Scripter) *RedisStateStore {
	return &RedisStateStore{rdb: rdb}
}

// Apply implementa domain.StateStore. Qualquer erro (rede, timeout, script)
// volta embrulhado em domain.ErrStoreUnavailable.
func (s *RedisStateStore) Apply(ctx context.Context, key string, nowMs, intervalMs, burst, ttlMs int64) (domain.StateResult, error) {
	if s == nil || s.rdb == nil {
		return domain.StateResult{}, domain.ErrStoreUnavailable
	}

	raw, err := gcraScript.Run(ctx, s.rdb, []string{key}, nowMs, intervalMs, burst, ttlMs).Int64Slice()
	if err != nil {
		return domain.StateResult{}, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	if len(raw) != 6 {
		return domain.StateResult{}, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable,
			errors.New("unexpected gcra script reply"))
	}

	return domain.StateResult{
		Allowed:      raw[0] == 1,
		RetryAfterMs: raw[1],
		Remaining:    raw[2],
		Limit:        raw[3],
		ResetMs:      raw[4],
		TATMs:        raw[5],
	}, nil
}
