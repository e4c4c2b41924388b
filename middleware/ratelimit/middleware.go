package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/msaedi/instructly-sub003/middleware/ratelimit/application"
	"github.com/msaedi/instructly-sub003/middleware/ratelimit/domain"
)

type Options struct {
	// Evaluator nil desliga o limite (passthrough), com um warning no start.
	Evaluator *application.Evaluator
	Recorder  domain.Recorder
	Logger    *zap.Logger

	// Bucket fixo da rota; BucketFn, se definido, tem precedência.
	Bucket   string
	BucketFn func(r *http.Request) string

	IdentityFn   IdentityFunc
	RejectStatus int

	// Disabled desliga tudo (passthrough puro).
	Disabled bool
	// Testing não chama o store e escreve headers permissivos determinísticos.
	Testing bool
}

// gate é a máquina de estados compartilhada pelos adapters HTTP e gRPC.
type gate struct {
	eval    *application.Evaluator
	rec     domain.Recorder
	log     *zap.Logger
	testing bool
}

type outcome struct {
	decision domain.Decision
	bucket   string
	shadow   bool
	action   domain.Action
}

// newGate devolve nil quando não há Evaluator: sem políticas não há o que
// limitar, e os adapters viram passthrough em vez de negar tudo.
func newGate(eval *application.Evaluator, rec domain.Recorder, log *zap.Logger, testing bool) *gate {
	if log == nil {
		log = zap.NewNop()
	}
	if eval == nil {
		log.Warn("rate limit middleware built without an evaluator, passing all requests through")
		return nil
	}
	if rec == nil {
		rec = domain.NopRecorder{}
	}
	return &gate{eval: eval, rec: rec, log: log, testing: testing}
}

func (g *gate) check(ctx context.Context, bucket, identity string) outcome {
	reg := g.eval.Registry()
	out := outcome{bucket: bucket, shadow: reg.IsShadowMode(bucket)}
	p := reg.ResolvePolicy(bucket)

	if g.testing {
		burst := p.Burst
		if burst < 0 {
			burst = 0
		}
		out.decision = domain.Decision{Allowed: true, Remaining: burst, Limit: burst + 1}
		out.action = domain.ActionAllow
		return out
	}

	out.decision = g.eval.Evaluate(ctx, bucket, identity)
	switch {
	case out.decision.Allowed:
		out.action = domain.ActionAllow
	case out.shadow:
		out.action = domain.ActionShadowBlock
		g.log.Info("rate limit exceeded in shadow mode",
			zap.String("bucket", bucket),
			zap.String("identity", identity),
			zap.Duration("retry_after", out.decision.RetryAfter()))
	default:
		out.action = domain.ActionBlock
	}

	// métricas usam o bucket resolvido: o conjunto fica fechado no que está configurado
	g.rec.RecordDecision(p.Bucket, out.action, out.shadow)
	if !out.decision.Allowed {
		g.rec.RecordRetryAfter(p.Bucket, out.shadow, out.decision.RetryAfterSeconds)
	}
	return out
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Disabled {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.IdentityFn == nil {
		opts.IdentityFn = DefaultIdentity
	}
	g := newGate(opts.Evaluator, opts.Recorder, opts.Logger, opts.Testing)
	if g == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bucket := opts.Bucket
			if opts.BucketFn != nil {
				bucket = opts.BucketFn(r)
			}
			identity := opts.IdentityFn(r)

			out := g.check(r.Context(), bucket, identity)

			WriteHeaders(w.Header(), out.decision)
			WritePolicyHeaders(w.Header(), bucket, out.shadow)

			if out.action == domain.ActionBlock {
				writeRateLimited(w, opts.RejectStatus, out.decision)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeRateLimited(w http.ResponseWriter, status int, d domain.Decision) {
	detail := "Rate limit exceeded."
	if s := retryAfterSeconds(d.RetryAfterSeconds); s > 0 {
		detail = "Rate limit exceeded. Try again in " + formatInt(s) + " seconds."
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
