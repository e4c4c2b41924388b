// Package ratelimit fornece adapters (net/http e gRPC) para o rate limit GCRA
// distribuído, o lock de single-flight e os headers de rate limit.
//
// Visão geral (camadas):
//
//   - domain: contratos, tipos e o GCRA puro (sem net/http, sem Redis)
//   - application: casos de uso (registry de políticas, evaluator, lock, idempotência)
//   - infra: implementações concretas (script Lua no Redis, memória, métricas)
//   - config: configuração imutável lida do ambiente
//   - ratelimit (este pacote): middlewares HTTP/gRPC + identidade + headers
//
// Fluxo por request (máquina de estados):
//
//  1. IDENTIFY: identidade do contexto, IP do cliente, X-Forwarded-For ou "unknown"
//  2. EVALUATE: Evaluator.Evaluate(bucket, identidade); headers sempre escritos
//  3. ALLOW: segue para o próximo handler
//  4. SHADOW_BLOCK: bucket em shadow mode; registra e segue mesmo assim
//  5. ENFORCE_BLOCK: responde 429 com Retry-After e não chama o handler
//
// Se o store estiver fora, o Evaluator devolve uma decisão permissiva (fail-open).
package ratelimit
