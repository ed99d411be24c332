package infra

import (
	"context"
	"sync"

	"sahyog-sutra/core/domain"
)

// slotPool limita os requests HTTP em andamento. O trabalho bloqueante
// em si vai para o Pool; aqui a vaga é do handler.
type slotPool struct {
	sem     chan struct{}
	metrics *Metrics
}

// NewSlotPool cria um semáforo de capacidade max. O gauge de requests em
// andamento acompanha cada aquisição e liberação.
func NewSlotPool(max int, m *Metrics) domain.SlotPool {
	return &slotPool{sem: make(chan struct{}, max), metrics: m}
}

// Acquire implementa domain.SlotPool. A função de release pode ser chamada
// mais de uma vez; só a primeira devolve a vaga.
func (p *slotPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, false
	}
	p.metrics.setInFlight(len(p.sem))

	var once sync.Once
	return func() {
		once.Do(func() {
			<-p.sem
			p.metrics.setInFlight(len(p.sem))
		})
	}, true
}

