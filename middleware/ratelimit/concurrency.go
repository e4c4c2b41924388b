package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/msaedi/instructly-sub003/middleware/ratelimit/application"
	"github.com/msaedi/instructly-sub003/middleware/ratelimit/domain"
)

// SingleFlightOptions configura o middleware de uma operação em voo por identidade.
type SingleFlightOptions struct {
	Locker     domain.Locker
	IdentityFn IdentityFunc
	// KeyFn monta a chave do lock; padrão: "{identidade}:{método} {path}".
	KeyFn        func(r *http.Request, identity string) string
	TTL          time.Duration
	RejectStatus int
	Logger       *zap.Logger
}

// SingleFlightMiddleware serializa requests da mesma identidade na mesma rota
// através do lock distribuído. Enquanto uma está em voo, as outras recebem 409.
//
// Falha do store ao adquirir o lock não bloqueia: a request segue sem lock.
func SingleFlightMiddleware(opts SingleFlightOptions) func(next http.Handler) http.Handler {
	if opts.Locker == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusConflict
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.IdentityFn == nil {
		opts.IdentityFn = DefaultIdentity
	}
	if opts.KeyFn == nil {
		opts.KeyFn = func(r *http.Request, identity string) string {
			return identity + ":" + r.Method + " " + r.URL.Path
		}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r, opts.IdentityFn(r))

			ran := false
			err := application.WithLock(r.Context(), opts.Locker, key, opts.TTL, func(context.Context) error {
				ran = true
				next.ServeHTTP(w, r)
				return nil
			})
			switch {
			case errors.Is(err, application.ErrLockHeld):
				http.Error(w, "another request for this resource is in progress", opts.RejectStatus)
			case err != nil && !ran:
				opts.Logger.Warn("single-flight lock unavailable, continuing without lock", zap.Error(err))
				next.ServeHTTP(w, r)
			case err != nil:
				opts.Logger.Warn("single-flight lock release failed", zap.String("key", key), zap.Error(err))
			}
		})
	}
}
