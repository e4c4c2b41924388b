// utilitário pequeno para formatação rápida/consistente de valores numéricos em headers/logs.
//    Evita puxar fmt (que é mais “pesado” e genérico) só para formatação simples

package ratelimit

import (
	"math"
	"strconv"
)

// teto do Retry-After quando o bucket nunca libera (taxa zero)
const maxRetryAfterSeconds = 86400

func formatInt(v int) string { return strconv.Itoa(v) }

func formatInt64(v int64) string { return strconv.FormatInt(v, 10) }

// formatEpoch trunca para segundos inteiros; valores não finitos viram "0".
func formatEpoch(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0"
	}
	return formatInt64(int64(v))
}

// retryAfterSeconds arredonda para cima: voltar antes do prazo seria negado de novo.
func retryAfterSeconds(v float64) int {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if math.IsInf(v, 1) || v > maxRetryAfterSeconds {
		return maxRetryAfterSeconds
	}
	return int(math.Ceil(v))
}
