// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RedisStateStore: GCRA atômico via script Lua (uma ida ao Redis, sem lock)
//   - MemoryStateStore: mesmo algoritmo em memória, para rodar sem Redis
//   - RedisLocker / RedisIdempotencyCache: SET NX EX, DEL e SETEX no mesmo Redis
//   - MemoryRecorder / RedisRecorder / PrometheusRecorder: sinks de métricas
package infra
