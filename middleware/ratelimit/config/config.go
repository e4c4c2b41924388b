// Package config carrega a configuração imutável do rate limit a partir de
// variáveis de ambiente e valida tudo no start do processo.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/msaedi/instructly-sub003/middleware/ratelimit/application"
	"github.com/msaedi/instructly-sub003/middleware/ratelimit/domain"
)

// BucketConfig é uma linha da tabela de buckets (RATE_LIMIT_BUCKETS, em JSON).
type BucketConfig struct {
	RatePerMinute int `json:"rate_per_minute"`
	Burst         int `json:"burst"`
	WindowSeconds int `json:"window_seconds"`
}

// Config é lida uma vez no start e tratada como somente leitura depois disso.
type Config struct {
	Enabled bool
	Shadow  bool
	Testing bool

	RedisURL      string
	Namespace     string
	DefaultBucket string

	Buckets         map[string]BucketConfig
	ShadowOverrides map[string]bool

	StoreTimeout   time.Duration
	IdempotencyTTL time.Duration
	LogLevel       string
}

// DefaultBuckets é usada quando RATE_LIMIT_BUCKETS não está definida.
func DefaultBuckets() map[string]BucketConfig {
	return map[string]BucketConfig{
		"default":   {RatePerMinute: 60, Burst: 10, WindowSeconds: 60},
		"read":      {RatePerMinute: 120, Burst: 30, WindowSeconds: 60},
		"write":     {RatePerMinute: 20, Burst: 3, WindowSeconds: 60},
		"financial": {RatePerMinute: 5, Burst: 1, WindowSeconds: 60},
	}
}

// Load lê a configuração via getenv (normalmente os.Getenv) e valida.
func Load(getenv func(string) string) (Config, error) {
	env := Env(getenv)

	cfg := Config{
		Enabled:        env.Bool("RATE_LIMIT_ENABLED", true),
		Shadow:         env.Bool("RATE_LIMIT_SHADOW", false),
		Testing:        env.Bool("RATE_LIMIT_TESTING", false),
		RedisURL:       env.String("REDIS_URL", "redis://localhost:6379/0"),
		Namespace:      env.String("RATE_LIMIT_NAMESPACE", "rl"),
		DefaultBucket:  env.String("RATE_LIMIT_DEFAULT_BUCKET", "default"),
		StoreTimeout:   env.Duration("RATE_LIMIT_STORE_TIMEOUT", application.DefaultStoreTimeout),
		IdempotencyTTL: env.Duration("RATE_LIMIT_IDEMPOTENCY_TTL", application.DefaultIdempotencyTTL),
		LogLevel:       env.String("RATE_LIMIT_LOG_LEVEL", "info"),
	}

	cfg.Buckets = DefaultBuckets()
	if raw := strings.TrimSpace(getenv("RATE_LIMIT_BUCKETS")); raw != "" {
		buckets, err := ParseBuckets(raw)
		if err != nil {
			return Config{}, err
		}
		cfg.Buckets = buckets
	}

	overrides, err := ParseShadowOverrides(getenv("RATE_LIMIT_SHADOW_BUCKETS"))
	if err != nil {
		return Config{}, err
	}
	cfg.ShadowOverrides = overrides

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checa erros estruturais. Taxa zero ou negativa não é erro aqui:
// o registry trata como "sempre nega" só para aquele bucket.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Namespace) == "" {
		return errors.New("RATE_LIMIT_NAMESPACE must not be empty")
	}
	if _, ok := c.Buckets[c.DefaultBucket]; !ok {
		return fmt.Errorf("RATE_LIMIT_DEFAULT_BUCKET %q is not in the bucket table", c.DefaultBucket)
	}
	for name, b := range c.Buckets {
		if strings.TrimSpace(name) == "" {
			return errors.New("bucket name must not be empty")
		}
		if strings.Contains(name, ":") {
			return fmt.Errorf("bucket name %q must not contain ':'", name)
		}
		if b.WindowSeconds < 0 {
			return fmt.Errorf("bucket %q: window_seconds must be >= 0", name)
		}
	}
	if c.StoreTimeout <= 0 {
		return errors.New("RATE_LIMIT_STORE_TIMEOUT must be > 0")
	}
	if c.IdempotencyTTL <= 0 {
		return errors.New("RATE_LIMIT_IDEMPOTENCY_TTL must be > 0")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("RATE_LIMIT_LOG_LEVEL: %w", err)
	}
	if !c.Testing && c.Enabled {
		if _, err := c.RedisOptions(); err != nil {
			return err
		}
	}
	return nil
}

// Policies retorna a tabela como políticas, ordenadas por nome.
func (c Config) Policies() []domain.Policy {
	out := make([]domain.Policy, 0, len(c.Buckets))
	for name, b := range c.Buckets {
		out = append(out, domain.Policy{
			Bucket:        name,
			RatePerMinute: b.RatePerMinute,
			Burst:         b.Burst,
			WindowSeconds: b.WindowSeconds,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bucket < out[j].Bucket })
	return out
}

// Registry constrói o registry imutável de políticas.
func (c Config) Registry(log *zap.Logger) *application.Registry {
	return application.NewRegistry(application.RegistryOptions{
		Policies:        c.Policies(),
		DefaultBucket:   c.DefaultBucket,
		Shadow:          c.Shadow,
		ShadowOverrides: c.ShadowOverrides,
		Logger:          log,
	})
}

// RedisOptions converte REDIS_URL para opções do go-redis.
func (c Config) RedisOptions() (*redis.Options, error) {
	opts, err := redis.ParseURL(c.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return opts, nil
}

// Logger monta o logger de produção do zap no nível configurado.
func (c Config) Logger() (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	return zc.Build()
}

// ParseBuckets lê {"write":{"rate_per_minute":20,"burst":3,"window_seconds":60}, ...}.
func ParseBuckets(raw string) (map[string]BucketConfig, error) {
	var out map[string]BucketConfig
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BUCKETS: %w", err)
	}
	if len(out) == 0 {
		return nil, errors.New("RATE_LIMIT_BUCKETS must define at least one bucket")
	}
	return out, nil
}

// ParseShadowOverrides lê "read=true,financial=false".
func ParseShadowOverrides(raw string) (map[string]bool, error) {
	out := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, val, ok := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid RATE_LIMIT_SHADOW_BUCKETS entry %q", part)
		}
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_SHADOW_BUCKETS entry %q: %w", part, err)
		}
		out[name] = b
	}
	return out, nil
}
