package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/msaedi/instructly-sub003/middleware/ratelimit"
	"github.com/msaedi/instructly-sub003/middleware/ratelimit/application"
	"github.com/msaedi/instructly-sub003/middleware/ratelimit/config"
	"github.com/msaedi/instructly-sub003/middleware/ratelimit/domain"
	"github.com/msaedi/instructly-sub003/middleware/ratelimit/infra"
)

// Exemplo: injetando o middleware diretamente no seu webserver (sem proxy).
// EXAMPLE_BACKEND=redis usa o REDIS_URL; o padrão é tudo em memória.

type backends struct {
	store  domain.StateStore
	locker domain.Locker
	cache  domain.IdempotencyCache
}

type chargeRequest struct {
	AmountCents int    `json:"amount_cents"`
	Currency    string `json:"currency"`
}

type chargeReceipt struct {
	ID          string    `json:"id"`
	AmountCents int       `json:"amount_cents"`
	Currency    string    `json:"currency"`
	CreatedAt   time.Time `json:"created_at"`
}

func main() {
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := cfg.Logger()
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	b, closeFn, err := openBackends(ctx, cfg, config.Env(os.Getenv).String("EXAMPLE_BACKEND", "memory"))
	if err != nil {
		logger.Fatal("backend error", zap.Error(err))
	}
	defer closeFn()

	stats := infra.NewMemoryRecorder()
	eval := application.NewEvaluator(application.EvaluatorOptions{
		Registry:     cfg.Registry(logger),
		Store:        b.store,
		Namespace:    cfg.Namespace,
		StoreTimeout: cfg.StoreTimeout,
		Logger:       logger,
	})
	limit := func(bucket string, h http.Handler) http.Handler {
		return ratelimit.Middleware(ratelimit.Options{
			Evaluator:  eval,
			Recorder:   stats,
			Logger:     logger,
			Bucket:     bucket,
			IdentityFn: ratelimit.HeaderIdentity("X-Api-Key"),
			Disabled:   !cfg.Enabled,
			Testing:    cfg.Testing,
		})(h)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /items", limit("read", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []string{"apple", "banana"})
	})))
	mux.Handle("POST /items", limit("write", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
	})))

	charge := ratelimit.SingleFlightMiddleware(ratelimit.SingleFlightOptions{
		Locker:     b.locker,
		IdentityFn: ratelimit.HeaderIdentity("X-Api-Key"),
		Logger:     logger,
	})(chargeHandler(b.cache, cfg.IdempotencyTTL, logger))
	mux.Handle("POST /charge", limit("financial", charge))

	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"total": stats.Total(), "buckets": stats.ByBucket()})
	})

	addr := config.Env(os.Getenv).String("LISTEN_ADDR", ":8081")
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

func openBackends(ctx context.Context, cfg config.Config, kind string) (backends, func(), error) {
	switch kind {
	case "memory":
		store := infra.NewMemoryStateStore()
		store.StartJanitor(ctx)
		return backends{
			store:  store,
			locker: infra.NewMemoryLocker(),
			cache:  infra.NewMemoryIdempotencyCache(),
		}, func() {}, nil
	case "redis":
		opts, err := cfg.RedisOptions()
		if err != nil {
			return backends{}, nil, err
		}
		rdb := redis.NewClient(opts)
		return backends{
			store:  infra.NewRedisStateStore(rdb),
			locker: infra.NewRedisLocker(rdb, cfg.Namespace),
			cache:  infra.NewRedisIdempotencyCache(rdb, cfg.Namespace),
		}, func() { _ = rdb.Close() }, nil
	default:
		return backends{}, nil, errors.New("EXAMPLE_BACKEND must be memory or redis")
	}
}

// chargeHandler repete a mesma resposta para a mesma Idempotency-Key.
func chargeHandler(cache domain.IdempotencyCache, ttl time.Duration, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chargeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AmountCents <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid charge"})
			return
		}
		if req.Currency == "" {
			req.Currency = "usd"
		}

		run := func(context.Context) (chargeReceipt, error) {
			return chargeReceipt{
				ID:          "ch_" + uuid.NewString(),
				AmountCents: req.AmountCents,
				Currency:    strings.ToLower(req.Currency),
				CreatedAt:   time.Now().UTC(),
			}, nil
		}

		idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		if idemKey == "" {
			receipt, _ := run(r.Context())
			writeJSON(w, http.StatusCreated, receipt)
			return
		}

		rawKey := ratelimit.HeaderIdentity("X-Api-Key")(r) + ":" + r.URL.Path + ":" + idemKey
		receipt, replayed, err := application.RunIdempotent(r.Context(), cache, rawKey, ttl, run)
		if err != nil {
			// a cobrança aconteceu; só o registro de replay falhou
			logger.Warn("idempotency cache write failed", zap.Error(err))
		}
		if replayed {
			w.Header().Set("Idempotent-Replayed", "true")
		}
		writeJSON(w, http.StatusCreated, receipt)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
