package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"math"
	"time"
)

// Policy descreve um bucket nomeado (ex: "read", "write", "financial").
type Policy struct {
	Bucket        string
	RatePerMinute int
	Burst         int
	// WindowSeconds é o piso do TTL das chaves de estado no store.
	WindowSeconds int
}

// Interval retorna o intervalo entre unidades permitidas, em milissegundos.
// Retorna 0 quando RatePerMinute <= 0 (bucket que sempre nega).
func (p Policy) Interval() time.Duration {
	if p.RatePerMinute <= 0 {
		return 0
	}
	return time.Duration(60000/p.RatePerMinute) * time.Millisecond
}

// Decision é o resultado de uma avaliação. Nunca é persistida.
//
// Invariantes: Remaining >= 0; se Allowed == false então Remaining == 0.
type Decision struct {
	Allowed bool
	// RetryAfterSeconds é +Inf para buckets com taxa zero.
	RetryAfterSeconds float64
	Remaining         int
	Limit             int
	ResetEpochSeconds float64
	// Degraded indica a decisão permissiva usada quando o store falhou.
	Degraded bool
}

// RetryAfter converte RetryAfterSeconds para time.Duration.
// Valores infinitos (ou grandes demais) saturam em math.MaxInt64.
func (d Decision) RetryAfter() time.Duration {
	if d.RetryAfterSeconds <= 0 {
		return 0
	}
	if math.IsInf(d.RetryAfterSeconds, 1) || d.RetryAfterSeconds >= float64(math.MaxInt64)/float64(time.Second) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d.RetryAfterSeconds * float64(time.Second))
}

// FallbackDecision é a decisão permissiva (fail-open) para a política.
func FallbackDecision(p Policy) Decision {
	burst := p.Burst
	if burst < 0 {
		burst = 0
	}
	return Decision{
		Allowed:   true,
		Remaining: burst,
		Limit:     burst + 1,
		Degraded:  true,
	}
}
