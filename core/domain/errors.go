package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrPoolClosed é entregue a trabalhos submetidos (ou ainda na fila) após o encerramento.
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrQueueFull só aparece quando a fila foi limitada explicitamente.
	ErrQueueFull = errors.New("worker pool queue is full")
)

// ResourceError embrulha uma falha ocorrida dentro de uma chamada bloqueante.
// Não há retry automático: a decisão fica com quem chamou.
type ResourceError struct {
	Op  string
	Err error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource call %q failed: %v", e.Op, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }
