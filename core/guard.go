package core

import (
	"fmt"
	"net/http"
	"time"

	"sahyog-sutra/core/application"
	"sahyog-sutra/core/domain"
	"sahyog-sutra/core/infra"

	"github.com/go-logr/logr"
)

// GuardOptions configura um WindowGuard: no máximo uma ação por chave a cada Window.
type GuardOptions struct {
	Store  domain.WindowStore
	Window time.Duration
	Stats  domain.StatsStore
	KeyFn  KeyFunc
	// Scope identifica o guard nas estatísticas e no prefixo da chave ("otp", "ai").
	Scope string
	// Message monta o corpo da resposta 429 a partir da espera em segundos.
	Message func(wait int) string
	Metrics *infra.Metrics
	Log     logr.Logger
}

// OTPMessage é a resposta padrão quando um OTP é pedido cedo demais.
func OTPMessage(wait int) string {
	return fmt.Sprintf("Please wait %d seconds before requesting another OTP.", wait)
}

// WindowGuard responde 429 (text/plain, com Retry-After) quando a chave
// já teve uma ação permitida dentro da janela.
func WindowGuard(opts GuardOptions) func(next http.Handler) http.Handler {
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc("", false)
	}
	if opts.Message == nil {
		opts.Message = func(wait int) string {
			return fmt.Sprintf("Please wait %d seconds before trying again.", wait)
		}
	}

	svc := application.WindowService{
		Store:    opts.Store,
		Window:   opts.Window,
		Scope:    opts.Scope,
		Observer: opts.Metrics,
		Log:      opts.Log,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := domain.Key(opts.KeyFn(r))

			dec := svc.Decide(r.Context(), key)
			recordStats(opts.Log, opts.Stats, r, domain.StatsEvent{
				Scope:   opts.Scope,
				Key:     key,
				Allowed: dec.Allowed,
			})
			if !dec.Allowed {
				wait := dec.RetryAfterSeconds()
				w.Header().Set("Retry-After", formatInt(wait))
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(opts.Message(wait)))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
