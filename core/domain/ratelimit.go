package domain

// Camada de domínio do rate limit.
//
// Dois sabores convivem aqui:
//   - Limiter/LimiterStore: token bucket para suavizar tráfego HTTP em geral
//   - WindowStore: janela de slot único por chave (OTP, geração por IA)

import (
	"context"
	"math"
	"time"
)

type Key string

// Limiter representa algo que pode decidir se uma ação é permitida agora.
//
// A camada de infra usa golang.org/x/time/rate.
type Limiter interface {
	Allow() bool
}

// LimiterStore obtém um limiter por chave (ex: IP, API key, usuário).
type LimiterStore interface {
	Get(Key) Limiter
}

// WindowStore permite no máximo uma ação por chave a cada `window`,
// medido a partir da última ação permitida.
//
// Quando nega, wait é o número de segundos (arredondado para cima) até a
// próxima ação ser aceita. Não é um limitador de taxa genérico.
type WindowStore interface {
	CheckAndRecord(ctx context.Context, key Key, window time.Duration) (allowed bool, wait int, err error)
}

type Decision struct {
	Allowed bool
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	RetryAfter time.Duration
}

// RetryAfterSeconds é a espera em segundos inteiros, arredondada para cima.
// Uma recusa nunca anuncia menos de 1.
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed {
		return 0
	}
	s := int(math.Ceil(d.RetryAfter.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// ScopedKey prefixa a chave com o escopo, para limiters diferentes
// dividirem o mesmo store sem colidir. Escopo vazio devolve a chave crua.
func ScopedKey(scope string, key Key) Key {
	if scope == "" {
		return key
	}
	return Key(scope + ":" + string(key))
}
