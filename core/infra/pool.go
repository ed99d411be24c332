package infra

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sahyog-sutra/core/domain"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

// Pool é o pool limitado de workers compartilhado pelo bridge, pelo sweep e
// pelas traduções. Número fixo de goroutines, fila FIFO.
//
// Por padrão a fila não tem limite: sob sobrecarga sustentada ela cresce
// sem avisar quem submete. WithMaxQueue troca isso por rejeição imediata
// (domain.ErrQueueFull).
type Pool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    *list.List // *workItem
	closed   bool
	workers  int
	maxQueue int
	wg       sync.WaitGroup

	log     logr.Logger
	metrics *Metrics
}

// workItem fica sob posse exclusiva do pool até ser resolvido.
type workItem struct {
	id         string
	name       string
	ctx        context.Context
	fn         func(context.Context) error
	onDone     func(error)
	enqueuedAt time.Time
}

type PoolOption func(*Pool)

// WithWorkers define a concorrência máxima (padrão 50).
func WithWorkers(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithMaxQueue limita a fila de espera. n <= 0 mantém a fila ilimitada.
func WithMaxQueue(n int) PoolOption {
	return func(p *Pool) { p.maxQueue = n }
}

func WithPoolLogger(l logr.Logger) PoolOption {
	return func(p *Pool) { p.log = l }
}

func WithPoolMetrics(m *Metrics) PoolOption {
	return func(p *Pool) { p.metrics = m }
}

// NewPool cria o pool e já sobe os workers. Pare com Close.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		queue:   list.New(),
		workers: 50,
		log:     logr.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) Workers() int { return p.workers }

// Pending devolve quantos itens aguardam worker livre.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}

// Go implementa domain.Executor.
func (p *Pool) Go(ctx context.Context, name string, fn func(context.Context) error) <-chan error {
	ch := make(chan error, 1)
	p.submit(ctx, name, fn, func(err error) {
		ch <- err
		close(ch)
	})
	return ch
}

func (p *Pool) submit(ctx context.Context, name string, fn func(context.Context) error, onDone func(error)) {
	it := &workItem{
		id:         uuid.NewString()[:8],
		name:       name,
		ctx:        ctx,
		fn:         fn,
		onDone:     onDone,
		enqueuedAt: time.Now(),
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.metrics.taskDropped("closed")
		onDone(domain.ErrPoolClosed)
		return
	}
	if p.maxQueue > 0 && p.queue.Len() >= p.maxQueue {
		p.mu.Unlock()
		p.metrics.taskDropped("rejected")
		onDone(domain.ErrQueueFull)
		return
	}
	p.queue.PushBack(it)
	depth := p.queue.Len()
	p.cond.Signal()
	p.mu.Unlock()

	p.metrics.setQueueDepth(depth)
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for p.queue.Len() == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.queue.Len() == 0 {
			p.mu.Unlock()
			return
		}
		it := p.queue.Remove(p.queue.Front()).(*workItem)
		depth := p.queue.Len()
		p.mu.Unlock()

		p.metrics.setQueueDepth(depth)
		p.execute(it)
	}
}

func (p *Pool) execute(it *workItem) {
	// Ainda na fila quando quem submeteu desistiu: não vale a pena começar.
	if err := it.ctx.Err(); err != nil {
		p.metrics.taskDropped("canceled")
		it.onDone(err)
		return
	}

	start := time.Now()
	err := p.call(it)
	p.metrics.taskDone(time.Since(start), err)
	if err != nil {
		p.log.V(1).Info("work item failed", "id", it.id, "op", it.name, "waited", start.Sub(it.enqueuedAt), "err", err)
	}
	it.onDone(err)
}

// call roda fn sem herdar o cancelamento de quem submeteu: uma chamada já
// despachada ao recurso termina mesmo que o request vá embora.
func (p *Pool) call(it *workItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error(fmt.Errorf("%v", r), "work item panicked", "id", it.id, "op", it.name)
			err = &domain.ResourceError{Op: it.name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if err := it.fn(context.WithoutCancel(it.ctx)); err != nil {
		var re *domain.ResourceError
		if errors.As(err, &re) {
			return err
		}
		return &domain.ResourceError{Op: it.name, Err: err}
	}
	return nil
}

// Close recusa novos itens, resolve os pendentes com domain.ErrPoolClosed e
// espera os que já estão executando. Pode ser chamado mais de uma vez.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	var dropped []*workItem
	for e := p.queue.Front(); e != nil; e = e.Next() {
		dropped = append(dropped, e.Value.(*workItem))
	}
	p.queue.Init()
	p.cond.Broadcast()
	p.mu.Unlock()

	p.metrics.setQueueDepth(0)
	for _, it := range dropped {
		p.metrics.taskDropped("closed")
		it.onDone(domain.ErrPoolClosed)
	}
	p.wg.Wait()
}
