package domain

import "context"

// SlotPool representa um recurso com capacidade finita (ex: conexões concorrentes).
//
// A semântica é: Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar.
// Ao adquirir, retorna uma função de release que deve ser chamada exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}

// Executor executa trabalho bloqueante fora da goroutine chamadora.
//
// O canal devolvido recebe exatamente um valor (nil em caso de sucesso) e
// é fechado em seguida.
type Executor interface {
	Go(ctx context.Context, name string, fn func(context.Context) error) <-chan error
}
