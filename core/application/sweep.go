package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sahyog-sutra/core/domain"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"
)

var ErrSweepNotConfigured = errors.New("expiry sweep needs a candidate source and a removal action")

// SweepObserver recebe os eventos do sweep (ex: métricas).
type SweepObserver interface {
	SweepDone(err error)
	Removed()
}

// Report resume um ciclo de sweep.
type Report struct {
	Checked  int
	Removed  []string
	Notified int
}

// Sweeper remove os itens cujo término (no fuso fixo) já passou.
//
// A aplicação registra como enumerar, remover e notificar; o core não conhece
// nenhuma consulta de domínio. Falha em um item não interrompe os outros:
// tudo é agregado no erro devolvido.
type Sweeper struct {
	mu         sync.Mutex
	source     domain.CandidateSource
	remove     domain.RemovalAction
	notify     domain.NotifyAction
	invalidate func()

	exec domain.Executor
	loc  *time.Location
	now  func() time.Time
	log  logr.Logger
	obs  SweepObserver
}

type SweeperOption func(*Sweeper)

// WithLocation define o fuso civil usado para interpretar o término.
func WithLocation(loc *time.Location) SweeperOption {
	return func(s *Sweeper) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithSweepClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) { s.now = now }
}

// WithExecutor despacha as notificações no pool compartilhado.
// Sem executor, notifica na própria goroutine do sweep.
func WithExecutor(e domain.Executor) SweeperOption {
	return func(s *Sweeper) { s.exec = e }
}

func WithSweepLogger(l logr.Logger) SweeperOption {
	return func(s *Sweeper) { s.log = l }
}

func WithSweepObserver(o SweepObserver) SweeperOption {
	return func(s *Sweeper) { s.obs = o }
}

func NewSweeper(opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		loc: time.UTC,
		now: time.Now,
		log: logr.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sweeper) RegisterCandidateSource(fn domain.CandidateSource) {
	s.mu.Lock()
	s.source = fn
	s.mu.Unlock()
}

func (s *Sweeper) RegisterRemovalAction(fn domain.RemovalAction) {
	s.mu.Lock()
	s.remove = fn
	s.mu.Unlock()
}

func (s *Sweeper) RegisterNotifyAction(fn domain.NotifyAction) {
	s.mu.Lock()
	s.notify = fn
	s.mu.Unlock()
}

// RegisterInvalidate liga o sweep à invalidação do cache de leitura.
func (s *Sweeper) RegisterInvalidate(fn func()) {
	s.mu.Lock()
	s.invalidate = fn
	s.mu.Unlock()
}

func (s *Sweeper) Location() *time.Location { return s.loc }

type pendingNotify struct {
	id   string
	done <-chan error
}

// Sweep executa um ciclo: lista, remove vencidos, notifica e invalida o cache.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	s.mu.Lock()
	source, remove, notify, invalidate := s.source, s.remove, s.notify, s.invalidate
	s.mu.Unlock()

	if source == nil || remove == nil {
		s.observe(ErrSweepNotConfigured)
		return Report{}, ErrSweepNotConfigured
	}

	cands, err := source(ctx)
	if err != nil {
		err = fmt.Errorf("listing candidates: %w", err)
		s.observe(err)
		return Report{}, err
	}

	now := s.now().In(s.loc)
	rep := Report{Checked: len(cands)}
	var errs error
	var pending []pendingNotify

	// remoção despachada vai até o fim mesmo se o chamador desistir; o
	// cancelamento só impede que novas remoções comecem
	work := context.WithoutCancel(ctx)

	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("sweep interrupted: %w", err))
			break
		}
		end, err := c.EndsAt(s.loc)
		if err != nil {
			s.log.Error(err, "skipping candidate", "id", c.ID)
			errs = multierr.Append(errs, err)
			continue
		}
		if end.After(now) {
			continue
		}

		if err := remove(work, c); err != nil {
			s.log.Error(err, "removing expired item", "id", c.ID)
			errs = multierr.Append(errs, fmt.Errorf("removing %s: %w", c.ID, err))
			continue
		}
		s.log.Info("expired item removed", "id", c.ID, "endedAt", end.Format(time.DateTime))
		rep.Removed = append(rep.Removed, c.ID)
		if s.obs != nil {
			s.obs.Removed()
		}

		if notify != nil {
			pending = append(pending, pendingNotify{id: c.ID, done: s.dispatch(work, notify, c)})
		}
		if invalidate != nil {
			invalidate()
		}
	}

	for _, p := range pending {
		if err := <-p.done; err != nil {
			s.log.Error(err, "notifying removal", "id", p.id)
			errs = multierr.Append(errs, fmt.Errorf("notifying %s: %w", p.id, err))
			continue
		}
		rep.Notified++
	}

	s.observe(errs)
	return rep, errs
}

func (s *Sweeper) dispatch(ctx context.Context, notify domain.NotifyAction, c domain.Candidate) <-chan error {
	if s.exec != nil {
		return s.exec.Go(ctx, "notify", func(ctx context.Context) error { return notify(ctx, c) })
	}
	ch := make(chan error, 1)
	ch <- notify(ctx, c)
	close(ch)
	return ch
}

func (s *Sweeper) observe(err error) {
	if s.obs != nil {
		s.obs.SweepDone(err)
	}
}
