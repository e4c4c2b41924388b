package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/msaedi/instructly-sub003/middleware/ratelimit"
	"github.com/msaedi/instructly-sub003/middleware/ratelimit/application"
	"github.com/msaedi/instructly-sub003/middleware/ratelimit/config"
	"github.com/msaedi/instructly-sub003/middleware/ratelimit/domain"
	"github.com/msaedi/instructly-sub003/middleware/ratelimit/infra"
)

func main() {
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	gw, err := readGatewayConfig(config.Env(os.Getenv))
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := cfg.Logger()
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	target, err := url.Parse(gw.upstreamURL)
	if err != nil {
		logger.Fatal("invalid UPSTREAM_URL", zap.Error(err))
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("proxy error", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Redis só é necessário com o limiter ligado e fora do modo de teste.
	var rdb *redis.Client
	if cfg.Enabled && !cfg.Testing {
		opts, err := cfg.RedisOptions()
		if err != nil {
			logger.Fatal("redis config error", zap.Error(err))
		}
		opts.PoolSize = gw.redisPoolSize
		rdb = redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()

		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		err = rdb.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			// fail-open: o limiter continua respondendo mesmo com o Redis fora
			logger.Warn("redis ping failed, rate limit will fail open until it recovers", zap.Error(err))
		}
	}

	var store domain.StateStore
	if rdb != nil {
		store = infra.NewRedisStateStore(rdb)
	} else {
		mem := infra.NewMemoryStateStore()
		mem.StartJanitor(ctx)
		store = mem
		logger.Info("using in-memory rate limit store", zap.Duration("cleanup_every", mem.CleanupEvery()))
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promRec, err := infra.NewPrometheusRecorder(promReg)
	if err != nil {
		logger.Fatal("prometheus recorder error", zap.Error(err))
	}
	recorders := infra.MultiRecorder{promRec}
	if gw.statsEnabled && rdb != nil {
		recorders = append(recorders, infra.NewRedisRecorder(
			rdb,
			infra.WithStatsPrefix(gw.statsPrefix),
			infra.WithStatsTTL(gw.statsTTL),
			infra.WithStatsBucket(gw.statsBucket),
			infra.WithStatsLogger(logger),
		))
	}

	eval := application.NewEvaluator(application.EvaluatorOptions{
		Registry:     cfg.Registry(logger),
		Store:        store,
		Namespace:    cfg.Namespace,
		StoreTimeout: cfg.StoreTimeout,
		Logger:       logger,
	})

	h := ratelimit.Middleware(ratelimit.Options{
		Evaluator:  eval,
		Recorder:   recorders,
		Logger:     logger,
		BucketFn:   methodBucket,
		IdentityFn: ratelimit.HeaderIdentity(gw.identityHeader),
		Disabled:   !cfg.Enabled,
		Testing:    cfg.Testing,
	})(proxy)

	srv := &http.Server{
		Addr:              gw.listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
	servers := []*http.Server{srv}
	if gw.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		servers = append(servers, &http.Server{
			Addr:              gw.metricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	logger.Info("gateway listening",
		zap.String("addr", gw.listenAddr),
		zap.String("upstream", target.String()),
		zap.String("metrics_addr", gw.metricsAddr),
		zap.Bool("enabled", cfg.Enabled),
		zap.Bool("shadow", cfg.Shadow),
		zap.Bool("testing", cfg.Testing),
		zap.Strings("buckets", eval.Registry().Buckets()),
		zap.Bool("stats", gw.statsEnabled))

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range servers {
		s := s
		g.Go(func() error {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, s := range servers {
			_ = s.Shutdown(shutdownCtx)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

// methodBucket: leitura idempotente no bucket "read", o resto em "write".
func methodBucket(r *http.Request) string {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return "read"
	default:
		return "write"
	}
}

type gatewayConfig struct {
	listenAddr     string
	upstreamURL    string
	metricsAddr    string
	identityHeader string

	// 0 mantém o padrão do go-redis (10 por CPU)
	redisPoolSize int

	statsEnabled bool
	statsPrefix  string
	statsTTL     time.Duration
	statsBucket  string
}

func readGatewayConfig(env config.Env) (gatewayConfig, error) {
	cfg := gatewayConfig{
		listenAddr:     env.String("LISTEN_ADDR", ":8080"),
		upstreamURL:    env.String("UPSTREAM_URL", ""),
		metricsAddr:    env.String("METRICS_ADDR", ":9090"),
		identityHeader: env.String("RATE_KEY_HEADER", ""),
		statsEnabled:   env.Bool("RATE_STATS_ENABLED", false),
		statsPrefix:    env.String("RATE_STATS_PREFIX", "ratelimit:stats"),
		statsTTL:       env.Duration("RATE_STATS_TTL", 24*time.Hour),
		statsBucket:    env.String("RATE_STATS_BUCKET", "minute"),
		redisPoolSize:  env.Int("REDIS_POOL_SIZE", 0),
	}
	if cfg.upstreamURL == "" {
		return gatewayConfig{}, errors.New("UPSTREAM_URL is required")
	}
	if cfg.redisPoolSize < 0 {
		return gatewayConfig{}, errors.New("REDIS_POOL_SIZE must be >= 0")
	}
	if b := strings.ToLower(cfg.statsBucket); b != "minute" && b != "none" {
		return gatewayConfig{}, errors.New("RATE_STATS_BUCKET must be minute or none")
	}
	return cfg, nil
}
