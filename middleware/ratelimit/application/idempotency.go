package application

import (
	"context"
	"fmt"
	"time"

	"github.com/msaedi/instructly-sub003/middleware/ratelimit/domain"
)

// DefaultIdempotencyTTL é o tempo padrão de vida de um registro de idempotência.
const DefaultIdempotencyTTL = 24 * time.Hour

// RunIdempotent devolve o payload já cacheado para rawKey em dst ou, se não houver,
// executa fn e cacheia o resultado de sucesso.
//
// replayed=true indica que fn não foi executada. Falhas de leitura do cache não
// bloqueiam a operação (o cache é consultivo); falha ao gravar é retornada junto
// com o resultado já produzido.
func RunIdempotent[T any](ctx context.Context, cache domain.IdempotencyCache, rawKey string, ttl time.Duration, fn func(ctx context.Context) (T, error)) (result T, replayed bool, err error) {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	if cache != nil {
		var cached T
		found, getErr := cache.Get(ctx, rawKey, &cached)
		if getErr == nil && found {
			return cached, true, nil
		}
	}

	result, err = fn(ctx)
	if err != nil {
		return result, false, err
	}
	if cache != nil {
		if setErr := cache.Set(ctx, rawKey, result, ttl); setErr != nil {
			return result, false, fmt.Errorf("cache idempotent result: %w", setErr)
		}
	}
	return result, false, nil
}
