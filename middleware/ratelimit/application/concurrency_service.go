package application

import (
	"context"
	"errors"
	"time"

	"github.com/msaedi/instructly-sub003/middleware/ratelimit/domain"
)

// ErrLockHeld é retornado por WithLock quando outro processo já segura o lock.
var ErrLockHeld = errors.New("lock already held")

// WithLock executa fn segurando o lock distribuído de key, sem saber nada sobre HTTP.
//
// O Release roda em qualquer saída de fn (sucesso, erro ou panic). Ele usa um
// contexto próprio para que um ctx já cancelado não deixe o lock preso até o TTL.
// Retorna ErrLockHeld sem chamar fn quando o lock já tem dono.
func WithLock(ctx context.Context, locker domain.Locker, key string, ttl time.Duration, fn func(ctx context.Context) error) (err error) {
	if locker == nil {
		return fn(ctx)
	}

	ok, err := locker.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockHeld
	}
	defer func() {
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if relErr := locker.Release(relCtx, key); relErr != nil && err == nil {
			err = relErr
		}
	}()

	return fn(ctx)
}
