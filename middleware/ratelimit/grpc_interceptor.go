package ratelimit

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/msaedi/instructly-sub003/middleware/ratelimit/application"
	"github.com/msaedi/instructly-sub003/middleware/ratelimit/domain"
)

// GRPCOptions configura o interceptor unário. A semântica é a mesma do Middleware HTTP.
type GRPCOptions struct {
	Evaluator *application.Evaluator
	Recorder  domain.Recorder
	Logger    *zap.Logger

	Bucket string
	// BucketFn recebe o full method (ex: "/payments.v1.Payments/Charge").
	// Nomes fora do registry caem na política default; as métricas registram
	// o bucket resolvido, nunca o full method.
	BucketFn func(fullMethod string) string

	Disabled bool
	Testing  bool
}

// UnaryServerInterceptor aplica o rate limit a chamadas unárias. Os headers de
// rate limit vão como header metadata (nomes em minúsculas) e a negação
// imposta vira codes.ResourceExhausted.
func UnaryServerInterceptor(opts GRPCOptions) grpc.UnaryServerInterceptor {
	if opts.Disabled {
		return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			return handler(ctx, req)
		}
	}
	g := newGate(opts.Evaluator, opts.Recorder, opts.Logger, opts.Testing)
	if g == nil {
		return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			return handler(ctx, req)
		}
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		bucket := opts.Bucket
		if opts.BucketFn != nil {
			bucket = opts.BucketFn(info.FullMethod)
		}

		out := g.check(ctx, bucket, grpcIdentity(ctx))
		// fora de um stream real (ex: testes) SetHeader falha; headers são best-effort
		_ = grpc.SetHeader(ctx, decisionMetadata(out))

		if out.action == domain.ActionBlock {
			msg := "rate limit exceeded"
			if s := retryAfterSeconds(out.decision.RetryAfterSeconds); s > 0 {
				msg += ", retry after " + formatInt(s) + "s"
			}
			return nil, status.Error(codes.ResourceExhausted, msg)
		}
		return handler(ctx, req)
	}
}

func grpcIdentity(ctx context.Context) string {
	if id, ok := IdentityFromContext(ctx); ok {
		return id
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		if host := hostOnly(p.Addr.String()); host != "" {
			return host
		}
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		for _, v := range md.Get("x-forwarded-for") {
			if ip := firstForwarded(v); ip != "" {
				return ip
			}
		}
	}
	return UnknownIdentity
}

func decisionMetadata(out outcome) metadata.MD {
	h := http.Header{}
	WriteHeaders(h, out.decision)
	WritePolicyHeaders(h, out.bucket, out.shadow)

	md := metadata.MD{}
	for k, v := range h {
		md[strings.ToLower(k)] = v
	}
	return md
}
