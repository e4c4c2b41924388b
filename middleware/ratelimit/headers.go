package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/msaedi/instructly-sub003/middleware/ratelimit/domain"
)

const (
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
	HeaderPolicy     = "X-RateLimit-Policy"
	HeaderShadow     = "X-RateLimit-Shadow"
)

// WriteHeaders escreve os headers padrão de rate limit a partir da decisão.
// Retry-After só aparece quando negado e com espera positiva.
func WriteHeaders(h http.Header, d domain.Decision) {
	remaining := d.Remaining
	if remaining < 0 {
		remaining = 0
	}
	h.Set(HeaderRemaining, formatInt(remaining))
	h.Set(HeaderLimit, formatInt(d.Limit))
	h.Set(HeaderReset, formatEpoch(d.ResetEpochSeconds))

	h.Del(HeaderRetryAfter)
	if !d.Allowed {
		if s := retryAfterSeconds(d.RetryAfterSeconds); s > 0 {
			h.Set(HeaderRetryAfter, formatInt(s))
		}
	}
}

// WritePolicyHeaders expõe o bucket e o modo (para operadores).
func WritePolicyHeaders(h http.Header, bucket string, shadow bool) {
	h.Set(HeaderPolicy, bucket)
	h.Set(HeaderShadow, strconv.FormatBool(shadow))
}
