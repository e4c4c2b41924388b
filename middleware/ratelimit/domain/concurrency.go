package domain

import (
	"context"
	"time"
)

// Locker é uma exclusão mútua best-effort entre processos (set-if-absent com TTL).
//
// Acquire retorna (false, nil) quando o lock já tem dono; isso não é erro.
// O lock pode ser perdido silenciosamente se o TTL expirar antes do Release,
// então não serve como mutex estrito para invariantes críticas.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// IdempotencyCache guarda o payload de sucesso de uma operação não idempotente
// para que retries devolvam o mesmo resultado sem repetir o efeito colateral.
//
// É consultivo, não transacional.
type IdempotencyCache interface {
	// Get decodifica o payload em dst. found=false quando não há registro.
	Get(ctx context.Context, rawKey string, dst any) (found bool, err error)
	Set(ctx context.Context, rawKey string, payload any, ttl time.Duration) error
}
