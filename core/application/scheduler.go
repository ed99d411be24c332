package application

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
)

type State int32

const (
	Sleeping State = iota
	Sweeping
)

func (s State) String() string {
	if s == Sweeping {
		return "sweeping"
	}
	return "sleeping"
}

// Trigger dispara um ciclo de sweep. O padrão chama Sweeper.Sweep direto;
// em produção pode ser um self-ping HTTP (ver infra.HTTPTrigger).
type Trigger func(ctx context.Context) error

// Scheduler acorda em intervalos com jitter (base + [0, jitter]) e dispara o
// sweep. Erro, inclusive panic, só é logado: o próximo sono dura o dobro e o
// loop continua. Só o cancelamento do ctx encerra.
type Scheduler struct {
	*Sweeper

	base    time.Duration
	jitter  time.Duration
	trigger Trigger
	log     logr.Logger

	state  atomic.Int32
	cycles atomic.Int64
	fails  atomic.Int64
}

type SchedulerOption func(*Scheduler)

// WithInterval define o intervalo base e o jitter máximo (padrão 30s + 10s).
func WithInterval(base, jitter time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if base > 0 {
			s.base = base
		}
		if jitter >= 0 {
			s.jitter = jitter
		}
	}
}

func WithTrigger(t Trigger) SchedulerOption {
	return func(s *Scheduler) { s.trigger = t }
}

func WithSchedulerLogger(l logr.Logger) SchedulerOption {
	return func(s *Scheduler) { s.log = l }
}

func NewScheduler(sw *Sweeper, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		Sweeper: sw,
		base:    30 * time.Second,
		jitter:  10 * time.Second,
		log:     logr.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.trigger == nil {
		s.trigger = func(ctx context.Context) error {
			_, err := s.Sweep(ctx)
			return err
		}
	}
	return s
}

func (s *Scheduler) State() State { return State(s.state.Load()) }

// Cycles e Failures contam ciclos disparados e ciclos com erro.
func (s *Scheduler) Cycles() int64   { return s.cycles.Load() }
func (s *Scheduler) Failures() int64 { return s.fails.Load() }

// Start roda o loop em uma goroutine própria.
func (s *Scheduler) Start(ctx context.Context) {
	go s.Run(ctx)
}

// Run bloqueia até ctx encerrar.
func (s *Scheduler) Run(ctx context.Context) {
	failed := false
	for {
		s.state.Store(int32(Sleeping))
		t := time.NewTimer(s.delay(failed))
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}

		s.state.Store(int32(Sweeping))
		s.cycles.Add(1)
		err := s.fire(ctx)
		failed = err != nil
		if failed {
			s.fails.Add(1)
			s.log.Error(err, "expiry sweep failed, backing off")
		}
	}
}

func (s *Scheduler) delay(afterFailure bool) time.Duration {
	d := s.base
	if s.jitter > 0 {
		d += time.Duration(rand.Int64N(int64(s.jitter) + 1))
	}
	if afterFailure {
		d *= 2
	}
	return d
}

func (s *Scheduler) fire(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweep panicked: %v", r)
		}
	}()
	return s.trigger(ctx)
}
