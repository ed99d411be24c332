// Package infra contém as implementações concretas do core.
//
//   - Pool, Submit/Future, Bridge: execução bloqueante em pool limitado
//   - Slot: cache read-through de posição única com TTL
//   - WindowStore / RedisWindowStore: uma ação por chave por janela
//   - Store: token bucket por chave usando golang.org/x/time/rate
//   - Translations, SnapshotFiles, HTTPTranslator: memo de traduções com write-back
//   - HTTPTrigger: self-ping que dispara o sweep via HTTP
//   - SlotPool: semáforo do limite de concorrência HTTP, com gauge de requests em andamento
//   - MemoryStatsStore / RedisStatsStore: estatísticas de decisões
//   - Metrics: coletores Prometheus
package infra
