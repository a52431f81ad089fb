// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RedisCounterStore: janela fixa atômica via script Lua (go-redis)
//   - MemoryCounterStore: janela fixa em memória, para dev e testes
//   - BreakerCounterStore: circuit breaker (sony/gobreaker) na frente de outro store
//   - Memory/Redis/PrometheusStatsStore: estatísticas das decisões
//   - ChanPool: semáforo simples para limite de concorrência
package infra
