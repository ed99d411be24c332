package application

import (
	"context"
	"time"

	"sahyog-sutra/core/domain"

	"github.com/go-logr/logr"
)

// WindowService decide ações limitadas a uma por chave por janela
// (envio de OTP, geração por IA).
//
// Erro do store não bloqueia o usuário: a decisão é "permitido" e o erro
// vai para o log. Recusas chegam ao Observer com o Scope como motivo
// ("window" quando vazio).
type WindowService struct {
	Store  domain.WindowStore
	Window time.Duration
	// Scope separa guards diferentes no mesmo store ("otp", "ai").
	Scope    string
	Observer RejectObserver
	Log      logr.Logger
}

func (s WindowService) Decide(ctx context.Context, key domain.Key) domain.Decision {
	if s.Store == nil {
		return domain.Decision{Allowed: true}
	}
	if s.Window <= 0 {
		s.Window = 30 * time.Second
	}

	allowed, wait, err := s.Store.CheckAndRecord(ctx, domain.ScopedKey(s.Scope, key), s.Window)
	if err != nil {
		s.Log.Error(err, "window limiter unavailable, allowing", "scope", s.Scope, "key", string(key))
		return domain.Decision{Allowed: true}
	}
	if allowed {
		return domain.Decision{Allowed: true}
	}
	if s.Observer != nil {
		reason := s.Scope
		if reason == "" {
			reason = "window"
		}
		s.Observer.Rejected(reason)
	}
	return domain.Decision{Allowed: false, RetryAfter: time.Duration(wait) * time.Second}
}
