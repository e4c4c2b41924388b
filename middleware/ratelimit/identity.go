package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// UnknownIdentity é o sentinela quando nada identifica o cliente.
const UnknownIdentity = "unknown"

type identityKey struct{}

// WithIdentity anexa uma identidade já resolvida (ex: user id autenticado)
// ao contexto da request. Ela tem prioridade sobre IP e headers.
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext retorna a identidade anexada por WithIdentity.
func IdentityFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(identityKey{}).(string)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// IdentityFunc resolve a identidade de uma request. Nunca falha.
type IdentityFunc func(r *http.Request) string

// DefaultIdentity: identidade do contexto, depois o IP do cliente (RemoteAddr),
// depois o primeiro IP do X-Forwarded-For e por fim "unknown".
func DefaultIdentity(r *http.Request) string {
	if id, ok := IdentityFromContext(r.Context()); ok {
		return id
	}
	if host := hostOnly(r.RemoteAddr); host != "" {
		return host
	}
	if ip := firstForwarded(r.Header.Get("X-Forwarded-For")); ip != "" {
		return ip
	}
	return UnknownIdentity
}

// HeaderIdentity prefere o valor do header informado (ex: X-Api-Key) e cai
// para DefaultIdentity quando ele está vazio.
func HeaderIdentity(header string) IdentityFunc {
	return func(r *http.Request) string {
		if header != "" {
			if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
				return v
			}
		}
		return DefaultIdentity(r)
	}
}

func hostOnly(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(addr)
	if err == nil {
		return host
	}
	return addr
}

// pega o primeiro IP do X-Forwarded-For (cliente original)
func firstForwarded(xff string) string {
	if xff == "" {
		return ""
	}
	first, _, _ := strings.Cut(xff, ",")
	return strings.TrimSpace(first)
}
