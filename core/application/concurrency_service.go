package application

import (
	"context"
	"errors"
	"time"

	"sahyog-sutra/core/domain"
)

// ErrNoSlot indica que o tempo de espera por uma vaga acabou.
var ErrNoSlot = errors.New("no concurrency slot available")

// ConcurrencyService concentra a regra de aquisição/liberação de vagas com timeout,
// sem saber nada sobre HTTP.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir uma vaga.
//   - AcquireTimeout <= 0: espera até ctx encerrar
//   - AcquireTimeout > 0: espera no máximo isso e devolve ErrNoSlot
//
// Se o próprio ctx encerrou (cliente foi embora), o erro é ctx.Err(), não
// ErrNoSlot: quem chama não precisa responder nada.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), error) {
	if s.Pool == nil {
		return func() {}, nil
	}

	acqCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, ok := s.Pool.Acquire(acqCtx)
	if ok {
		return release, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, ErrNoSlot
}
