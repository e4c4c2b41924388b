// Package application contém os casos de uso (regras de aplicação) do rate limit
// distribuído, do lock e do cache de idempotência.
//
// Ele depende apenas do pacote domain e não conhece net/http nem Redis.
// Ex.: Evaluator.Evaluate(ctx, bucket, identity) retorna uma domain.Decision.
package application
