package core

import (
	"errors"
	"net/http"
	"time"

	"sahyog-sutra/core/application"
	"sahyog-sutra/core/infra"
)

// ConcurrencyOptions limita quantos requests o servidor atende ao mesmo
// tempo. É independente do pool de workers: aqui o recurso é o handler.
type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	Metrics        *infra.Metrics
}

func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}

	svc := application.ConcurrencyService{
		Pool:           infra.NewSlotPool(opts.Max, opts.Metrics),
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, err := svc.Acquire(r.Context())
			if errors.Is(err, application.ErrNoSlot) {
				opts.Metrics.Rejected("busy")
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}
			if err != nil {
				// cliente desistiu enquanto esperava
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
