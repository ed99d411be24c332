package infra

import (
	"context"
	"sync"
	"time"
)

// Slot é um cache read-through de posição única, tipado pela view que guarda.
// Uma Slot por consulta cacheada; "evicção" é só sobrescrever ao recalcular.
type Slot[T any] struct {
	name string
	ttl  time.Duration
	now  func() time.Time

	mu        sync.RWMutex
	payload   T
	writtenAt time.Time // zero = inválido
	gen       uint64

	metrics *Metrics
}

type SlotOption func(*slotConfig)

type slotConfig struct {
	ttl     time.Duration
	now     func() time.Time
	metrics *Metrics
}

// WithTTL define a idade máxima (padrão 30s).
func WithTTL(d time.Duration) SlotOption {
	return func(c *slotConfig) {
		if d > 0 {
			c.ttl = d
		}
	}
}

func WithSlotClock(now func() time.Time) SlotOption {
	return func(c *slotConfig) { c.now = now }
}

func WithSlotMetrics(m *Metrics) SlotOption {
	return func(c *slotConfig) { c.metrics = m }
}

func NewSlot[T any](name string, opts ...SlotOption) *Slot[T] {
	cfg := slotConfig{ttl: 30 * time.Second, now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Slot[T]{name: name, ttl: cfg.ttl, now: cfg.now, metrics: cfg.metrics}
}

func (s *Slot[T]) Name() string { return s.name }

// GetOrCompute devolve o payload se ainda fresco; senão roda compute na
// goroutine de quem chamou, fora do lock, e publica o resultado.
//
// Erro de compute é devolvido e nada é guardado. Um Invalidate que aconteça
// durante o compute impede a publicação (o valor ainda volta para quem chamou).
func (s *Slot[T]) GetOrCompute(ctx context.Context, compute func(context.Context) (T, error)) (T, error) {
	s.mu.RLock()
	if !s.writtenAt.IsZero() && s.now().Sub(s.writtenAt) < s.ttl {
		v := s.payload
		s.mu.RUnlock()
		s.metrics.cacheLookup(s.name, true)
		return v, nil
	}
	gen := s.gen
	s.mu.RUnlock()
	s.metrics.cacheLookup(s.name, false)

	v, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	s.mu.Lock()
	if s.gen == gen {
		s.payload = v
		s.writtenAt = s.now()
	}
	s.mu.Unlock()
	return v, nil
}

// Invalidate força o próximo GetOrCompute a recalcular.
func (s *Slot[T]) Invalidate() {
	s.mu.Lock()
	s.writtenAt = time.Time{}
	s.gen++
	s.mu.Unlock()
}
