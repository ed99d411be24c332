package application

import (
	"time"

	"sahyog-sutra/core/domain"
)

// RejectObserver recebe cada recusa com o motivo (ex: *infra.Metrics).
type RejectObserver interface {
	Rejected(reason string)
}

// Service aplica o token bucket que suaviza o tráfego do servidor todo.
//
// Não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// Para limites de uma ação por janela, use WindowService.
type Service struct {
	Store domain.LimiterStore
	// Scope prefixa as chaves no store; vazio usa a chave crua.
	Scope      string
	RetryAfter time.Duration
	Observer   RejectObserver
}

func (s Service) Decide(key domain.Key) domain.Decision {
	if s.Store == nil {
		return domain.Decision{Allowed: true}
	}
	if s.RetryAfter <= 0 {
		s.RetryAfter = 1 * time.Second
	}

	lim := s.Store.Get(domain.ScopedKey(s.Scope, key))
	if lim == nil || lim.Allow() {
		return domain.Decision{Allowed: true}
	}
	if s.Observer != nil {
		s.Observer.Rejected("rate")
	}
	return domain.Decision{Allowed: false, RetryAfter: s.RetryAfter}
}
