package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"sahyog-sutra/core/application"
	"sahyog-sutra/core/domain"
	"sahyog-sutra/core/infra"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
)

// Invalidator é qualquer cache que pode ser marcado como velho (ex: *infra.Slot).
type Invalidator interface {
	Invalidate()
}

// Config reúne o que o Runtime precisa para montar as peças. Zero values
// caem nos padrões de cada componente.
type Config struct {
	Workers  int
	MaxQueue int

	// Limiter é o store das janelas por chave; nil usa infra.WindowStore em memória.
	Limiter domain.WindowStore
	Stats   domain.StatsStore

	// Translator nil usa infra.HTTPTranslator com a URL padrão.
	Translator       domain.Translator
	TranslationFiles *infra.SnapshotFiles
	FlushEvery       time.Duration
	TranslateTimeout time.Duration

	Location    *time.Location
	SweepBase   time.Duration
	SweepJitter time.Duration
	// SweepTrigger nil roda o sweep direto no scheduler.
	SweepTrigger application.Trigger

	Registerer prometheus.Registerer
	Log        logr.Logger
}

// Runtime é o objeto de ciclo de vida do core: um pool compartilhado, o
// limiter de janela, o memo de traduções e o scheduler de expiração.
// Crie com New, suba com Start e encerre com Close.
type Runtime struct {
	Pool         *infra.Pool
	Limiter      domain.WindowStore
	Translations *infra.Translations
	Sweeper      *application.Sweeper
	Scheduler    *application.Scheduler
	Stats        domain.StatsStore
	Metrics      *infra.Metrics
	Log          logr.Logger

	mu      sync.Mutex
	caches  []Invalidator
	cancel  context.CancelFunc
	started bool
	closed  bool
}

var ErrRuntimeClosed = errors.New("runtime closed")

func New(cfg Config) *Runtime {
	log := cfg.Log

	var metrics *infra.Metrics
	if cfg.Registerer != nil {
		metrics = infra.NewMetrics(cfg.Registerer)
	}

	pool := infra.NewPool(
		infra.WithWorkers(cfg.Workers),
		infra.WithMaxQueue(cfg.MaxQueue),
		infra.WithPoolLogger(log.WithName("pool")),
		infra.WithPoolMetrics(metrics),
	)

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = infra.NewWindowStore(infra.WithWindowMetrics(metrics))
	}

	tr := cfg.Translator
	if tr == nil {
		tr = infra.NewHTTPTranslator("", nil)
	}
	topts := []infra.TranslationsOption{
		infra.WithTranslationsLogger(log.WithName("translations")),
		infra.WithTranslationsMetrics(metrics),
		infra.WithTranslateTimeout(cfg.TranslateTimeout),
	}
	if cfg.TranslationFiles != nil {
		topts = append(topts, infra.WithSnapshotFiles(*cfg.TranslationFiles))
	}
	if cfg.FlushEvery > 0 {
		topts = append(topts, infra.WithFlushEvery(cfg.FlushEvery))
	}

	rt := &Runtime{
		Pool:         pool,
		Limiter:      limiter,
		Translations: infra.NewTranslations(tr, pool, topts...),
		Stats:        cfg.Stats,
		Metrics:      metrics,
		Log:          log,
	}

	sopts := []application.SweeperOption{
		application.WithExecutor(pool),
		application.WithSweepLogger(log.WithName("sweep")),
	}
	if cfg.Location != nil {
		sopts = append(sopts, application.WithLocation(cfg.Location))
	}
	if metrics != nil {
		sopts = append(sopts, application.WithSweepObserver(metrics))
	}
	rt.Sweeper = application.NewSweeper(sopts...)
	rt.Sweeper.RegisterInvalidate(rt.InvalidateCaches)

	schopts := []application.SchedulerOption{
		application.WithSchedulerLogger(log.WithName("scheduler")),
	}
	if cfg.SweepBase > 0 || cfg.SweepJitter > 0 {
		schopts = append(schopts, application.WithInterval(cfg.SweepBase, cfg.SweepJitter))
	}
	if cfg.SweepTrigger != nil {
		schopts = append(schopts, application.WithTrigger(cfg.SweepTrigger))
	}
	rt.Scheduler = application.NewScheduler(rt.Sweeper, schopts...)

	return rt
}

// RegisterCache inclui c na lista invalidada quando o sweep remove algo
// (e em InvalidateCaches).
func (rt *Runtime) RegisterCache(c Invalidator) {
	rt.mu.Lock()
	rt.caches = append(rt.caches, c)
	rt.mu.Unlock()
}

func (rt *Runtime) InvalidateCaches() {
	rt.mu.Lock()
	caches := append([]Invalidator(nil), rt.caches...)
	rt.mu.Unlock()

	for _, c := range caches {
		c.Invalidate()
	}
}

// NewCache cria um Slot já registrado no Runtime.
func NewCache[T any](rt *Runtime, name string, opts ...infra.SlotOption) *infra.Slot[T] {
	s := infra.NewSlot[T](name, append([]infra.SlotOption{infra.WithSlotMetrics(rt.Metrics)}, opts...)...)
	rt.RegisterCache(s)
	return s
}

// Start carrega a tabela durable de traduções e sobe o scheduler e o
// flusher. Os dois param quando ctx encerra ou em Close.
func (rt *Runtime) Start(ctx context.Context) error {
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return ErrRuntimeClosed
	}
	if rt.started {
		rt.mu.Unlock()
		return nil
	}
	rt.started = true
	ctx, rt.cancel = context.WithCancel(ctx)
	rt.mu.Unlock()

	if err := rt.Translations.Load(); err != nil {
		// memória vazia ainda funciona; o próximo flush reescreve os arquivos
		rt.Log.Error(err, "loading translations, starting empty")
	}

	rt.Scheduler.Start(ctx)
	rt.Translations.StartFlusher(ctx)
	rt.Log.Info("runtime started", "workers", rt.Pool.Workers())
	return nil
}

// Close para os loops, fecha o pool (pendentes recebem domain.ErrPoolClosed,
// os em execução terminam) e grava as traduções uma última vez.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return nil
	}
	rt.closed = true
	cancel := rt.cancel
	rt.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	rt.Pool.Close()

	err := rt.Translations.Flush()
	rt.Log.Info("runtime closed", "flushErr", err != nil)
	return err
}
