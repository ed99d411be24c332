package core

import (
	"net"
	"net/http"
	"strings"
	"time"

	"sahyog-sutra/core/application"
	"sahyog-sutra/core/domain"
	"sahyog-sutra/core/infra"

	"github.com/go-logr/logr"
)

type KeyFunc func(r *http.Request) string

// Options configura o token bucket global (suavização de tráfego em todas
// as rotas). Para uma ação por janela, veja GuardOptions.
type Options struct {
	Store               domain.LimiterStore
	// Scope prefixa as chaves no store e rotula as estatísticas (padrão "http").
	Scope               string
	Stats               domain.StatsStore
	KeyFn               KeyFunc
	KeyHeader           string
	TrustXForwardedFor  bool
	RejectStatus        int
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
	Metrics             *infra.Metrics
	Log                 logr.Logger
}

type rateInfo interface {
	RPS() float64
	Burst() int
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				ip, _, _ := strings.Cut(xff, ",")
				if ip = strings.TrimSpace(ip); ip != "" {
					return ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// recordStats é best-effort: erro do store vai para o log e o request segue.
func recordStats(log logr.Logger, stats domain.StatsStore, r *http.Request, ev domain.StatsEvent) {
	if stats == nil {
		return
	}
	ev.Method = r.Method
	ev.Path = r.URL.Path
	ev.At = time.Now()
	if err := stats.Record(r.Context(), ev); err != nil {
		log.V(1).Info("stats record failed", "scope", ev.Scope, "err", err)
	}
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.RetryAfter == 0 {
		opts.RetryAfter = 1 * time.Second
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.Scope == "" {
		opts.Scope = "http"
	}

	svc := application.Service{
		Store:      opts.Store,
		Scope:      opts.Scope,
		RetryAfter: opts.RetryAfter,
		Observer:   opts.Metrics,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Key", key)
				if ri, ok := opts.Store.(rateInfo); ok {
					w.Header().Set("X-RateLimit-RPS", formatFloat(ri.RPS()))
					w.Header().Set("X-RateLimit-Burst", formatInt(ri.Burst()))
				}
			}

			dec := svc.Decide(domain.Key(key))
			recordStats(opts.Log, opts.Stats, r, domain.StatsEvent{
				Scope:   opts.Scope,
				Key:     domain.Key(key),
				Allowed: dec.Allowed,
			})
			if !dec.Allowed {
				w.Header().Set("Retry-After", formatInt(dec.RetryAfterSeconds()))
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
