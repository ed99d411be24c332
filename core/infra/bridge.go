package infra

import (
	"context"
	"io"

	"go.uber.org/multierr"
)

// Future é o resultado de um trabalho despachado ao Pool.
type Future[T any] struct {
	ready chan struct{}
	val   T
	err   error
}

// Submit despacha fn ao pool e devolve imediatamente.
func Submit[T any](p *Pool, ctx context.Context, name string, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{ready: make(chan struct{})}
	p.submit(ctx, name, func(ctx context.Context) error {
		v, err := fn(ctx)
		f.val = v
		return err
	}, func(err error) {
		f.err = err
		close(f.ready)
	})
	return f
}

// Done fecha quando o trabalho termina (com sucesso ou não).
func (f *Future[T]) Done() <-chan struct{} { return f.ready }

// Await suspende só a goroutine chamadora. Se ctx encerrar antes, devolve
// ctx.Err(); o trabalho em si segue até o fim.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.ready:
		if f.err != nil {
			var zero T
			return zero, f.err
		}
		return f.val, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// AwaitAll espera vários Futures e devolve os valores na ordem recebida.
// Os erros são agregados; a posição de quem falhou fica com o valor zero.
func AwaitAll[T any](ctx context.Context, fs ...*Future[T]) ([]T, error) {
	out := make([]T, len(fs))
	var errs error
	for i, f := range fs {
		v, err := f.Await(ctx)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		out[i] = v
	}
	return out, errs
}

// Opener abre uma conexão com o recurso bloqueante. O formato do recurso é
// opaco: só interessa abrir, chamar e fechar.
type Opener[C io.Closer] func(ctx context.Context) (C, error)

// Bridge liga handlers HTTP a um recurso bloqueante orientado a conexão.
// Cada chamada abre, usa e fecha a conexão dentro de um worker do pool.
type Bridge[C io.Closer] struct {
	pool *Pool
	open Opener[C]
}

func NewBridge[C io.Closer](pool *Pool, open Opener[C]) *Bridge[C] {
	return &Bridge[C]{pool: pool, open: open}
}

func (b *Bridge[C]) Pool() *Pool { return b.pool }

// Call executa fn com uma conexão nova. Falhas de abertura, da chamada e do
// fechamento chegam ao Future como *domain.ResourceError.
func Call[C io.Closer, T any](b *Bridge[C], ctx context.Context, op string, fn func(context.Context, C) (T, error)) *Future[T] {
	return Submit(b.pool, ctx, op, func(ctx context.Context) (res T, err error) {
		conn, err := b.open(ctx)
		if err != nil {
			return res, err
		}
		defer func() { err = multierr.Append(err, conn.Close()) }()
		return fn(ctx, conn)
	})
}
