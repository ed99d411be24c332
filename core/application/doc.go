// Package application contém os casos de uso do core, sem net/http:
//
//   - Service: decisão allow/deny do token bucket (suavização geral de tráfego)
//   - WindowService: uma ação por chave por janela (OTP, geração por IA)
//   - ConcurrencyService: aquisição de vaga com timeout
//   - Sweeper/Scheduler: expiração periódica de itens com término no tempo
//
// Depende apenas do pacote domain (e de logr/multierr para log e agregação de erros).
package application
