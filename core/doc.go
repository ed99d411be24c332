// Package core junta as peças de concorrência e cache do sahyog-sutra e
// expõe os adapters net/http que as usam.
//
// Camadas:
//
//   - domain: contratos e tipos (sem net/http, sem storage concreto)
//   - application: casos de uso (token bucket, janela por chave, sweep de expiração, scheduler)
//   - infra: pool de workers, futures, bridge, slot TTL, stores de janela, traduções, métricas
//   - core (este pacote): Runtime (ciclo de vida) + middlewares HTTP
//
// Fluxo típico no servidor:
//
//  1. New cria o Runtime (pool, limiter, traduções, sweeper/scheduler)
//  2. Start carrega as traduções do disco e sobe o scheduler e o flusher
//  3. handlers chamam recursos bloqueantes via infra.Call/Submit e leem via Slot
//  4. WindowGuard protege rotas de uma ação por janela (OTP, geração por IA)
//  5. Close fecha o pool e faz o flush final
package core
