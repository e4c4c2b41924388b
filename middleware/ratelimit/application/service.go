package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/msaedi/instructly-sub003/middleware/ratelimit/domain"
)

// DefaultStoreTimeout é o orçamento de uma ida ao store.
const DefaultStoreTimeout = 50 * time.Millisecond

// Evaluator concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// Não guarda estado mutável próprio (todo o estado vive no store), então é
// seguro chamar Evaluate de várias goroutines.
type Evaluator struct {
	registry  *Registry
	store     domain.StateStore
	namespace string
	timeout   time.Duration
	now       func() time.Time
	log       *zap.Logger
	// limita os warnings de store degradado; com o Redis fora, toda request falharia.
	warnEvery *rate.Limiter
}

type EvaluatorOptions struct {
	Registry     *Registry
	Store        domain.StateStore
	Namespace    string
	StoreTimeout time.Duration
	Now          func() time.Time
	Logger       *zap.Logger
}

func NewEvaluator(opts EvaluatorOptions) *Evaluator {
	e := &Evaluator{
		registry:  opts.Registry,
		store:     opts.Store,
		namespace: opts.Namespace,
		timeout:   opts.StoreTimeout,
		now:       opts.Now,
		log:       opts.Logger,
		warnEvery: rate.NewLimiter(rate.Every(time.Second), 1),
	}
	if e.registry == nil {
		e.registry = NewRegistry(RegistryOptions{})
	}
	if e.timeout <= 0 {
		e.timeout = DefaultStoreTimeout
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	return e
}

// Registry expõe o registro usado pelo evaluator (o middleware precisa dele para shadow mode).
func (e *Evaluator) Registry() *Registry { return e.registry }

// Evaluate decide se a identidade pode consumir uma unidade do bucket.
//
// Falha do store nunca vira erro: a decisão cai para o fallback permissivo
// (fail-open) e um warning é logado.
func (e *Evaluator) Evaluate(ctx context.Context, bucket, identity string) domain.Decision {
	p := e.registry.ResolvePolicy(bucket)
	now := e.now()

	if p.RatePerMinute <= 0 {
		_, d := domain.Decide(float64(now.UnixMilli())/1000, nil, 0, p.Burst)
		return d
	}

	intervalMs := int64(60000 / p.RatePerMinute)
	if intervalMs <= 0 {
		// mais de 60000/min: resolução de 1ms
		intervalMs = 1
	}
	burst := int64(p.Burst)

	if e.store == nil {
		return e.fallback(p, now)
	}

	key := domain.RateKey(e.namespace, bucket, identity)
	storeCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res, err := e.store.Apply(storeCtx, key, now.UnixMilli(), intervalMs, burst, keyTTL(p, intervalMs))
	if err != nil {
		if e.warnEvery.Allow() {
			e.log.Warn("rate limit store degraded, failing open",
				zap.String("bucket", bucket),
				zap.Bool("store_unavailable", errors.Is(err, domain.ErrStoreUnavailable)),
				zap.Error(err))
		}
		return e.fallback(p, now)
	}
	return res.Decision()
}

func (e *Evaluator) fallback(p domain.Policy, now time.Time) domain.Decision {
	d := domain.FallbackDecision(p)
	d.ResetEpochSeconds = float64(now.Unix())
	return d
}

// keyTTL mantém a chave viva por alguns múltiplos do tempo de recarga completa,
// com piso em WindowSeconds.
func keyTTL(p domain.Policy, intervalMs int64) int64 {
	ttl := 2 * (int64(p.Burst) + 1) * intervalMs
	if w := int64(p.WindowSeconds) * 1000; w > ttl {
		ttl = w
	}
	return ttl
}
