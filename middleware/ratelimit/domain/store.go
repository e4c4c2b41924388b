package domain

import (
	"context"
	"errors"
)

// ErrStoreUnavailable sinaliza falha de infraestrutura (store fora do ar, timeout,
// erro de script). É distinta de uma negação legítima: quem chama decide entre
// fail-open e fail-closed.
var ErrStoreUnavailable = errors.New("ratelimit: state store unavailable")

// StateStore executa o read-modify-write do GCRA como uma única operação atômica
// para a chave informada. O TAT só é gravado quando o pedido é permitido.
type StateStore interface {
	Apply(ctx context.Context, key string, nowMs, intervalMs, burst, ttlMs int64) (StateResult, error)
}
