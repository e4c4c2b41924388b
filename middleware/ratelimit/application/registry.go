package application

import (
	"sort"

	"go.uber.org/zap"

	"github.com/msaedi/instructly-sub003/middleware/ratelimit/domain"
)

// Registry é o mapa imutável bucket -> política, construído uma vez no start.
// Não há mutação depois de NewRegistry, então leituras concorrentes dispensam lock.
type Registry struct {
	policies      map[string]domain.Policy
	defaultBucket string
	shadow        bool
	overrides     map[string]bool
}

// RegistryOptions agrupa a entrada de NewRegistry.
type RegistryOptions struct {
	Policies      []domain.Policy
	DefaultBucket string
	// Shadow é o modo global; ShadowOverrides tem precedência por bucket.
	Shadow          bool
	ShadowOverrides map[string]bool
	Logger          *zap.Logger
}

// NewRegistry normaliza as políticas: taxa ou burst negativos viram 0
// (taxa 0 = bucket que sempre nega) e geram um warning, sem derrubar o processo.
func NewRegistry(opts RegistryOptions) *Registry {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := &Registry{
		policies:      make(map[string]domain.Policy, len(opts.Policies)),
		defaultBucket: opts.DefaultBucket,
		shadow:        opts.Shadow,
		overrides:     make(map[string]bool, len(opts.ShadowOverrides)),
	}
	for _, p := range opts.Policies {
		if p.RatePerMinute <= 0 {
			log.Warn("rate limit bucket configured to always deny",
				zap.String("bucket", p.Bucket), zap.Int("rate_per_minute", p.RatePerMinute))
			p.RatePerMinute = 0
		}
		if p.Burst < 0 {
			log.Warn("negative burst clamped to zero", zap.String("bucket", p.Bucket), zap.Int("burst", p.Burst))
			p.Burst = 0
		}
		if p.WindowSeconds < 0 {
			p.WindowSeconds = 0
		}
		r.policies[p.Bucket] = p
	}
	for k, v := range opts.ShadowOverrides {
		r.overrides[k] = v
	}
	return r
}

// ResolvePolicy retorna a política do bucket ou a do bucket default.
// Se nem o default existir, retorna uma política de taxa zero (nega tudo).
func (r *Registry) ResolvePolicy(bucket string) domain.Policy {
	if p, ok := r.policies[bucket]; ok {
		return p
	}
	if p, ok := r.policies[r.defaultBucket]; ok {
		return p
	}
	return domain.Policy{Bucket: r.defaultBucket}
}

// IsShadowMode resolve shadow/enforce: override do bucket, senão flag global.
func (r *Registry) IsShadowMode(bucket string) bool {
	if v, ok := r.overrides[bucket]; ok {
		return v
	}
	return r.shadow
}

// Buckets lista os buckets configurados em ordem alfabética.
func (r *Registry) Buckets() []string {
	out := make([]string, 0, len(r.policies))
	for k := range r.policies {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
