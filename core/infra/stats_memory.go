package infra

import (
	"context"
	"sync"

	"sahyog-sutra/core/domain"
)

type Counters struct {
	Allowed int64
	Denied  int64
}

// MemoryStatsStore guarda contadores de decisões em memória, por escopo
// (token bucket "http", janela "otp"/"ai"...), por rota e, opcionalmente, por chave.
//
// Não faz expiração: é o padrão quando não há Redis configurado.
type MemoryStatsStore struct {
	mu      sync.Mutex
	total   Counters
	byScope map[string]Counters
	byRoute map[string]Counters
	byKey   map[string]Counters

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byScope: make(map[string]Counters),
		byRoute: make(map[string]Counters),
		byKey:   make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	scope := ev.Scope
	if scope == "" {
		scope = "http"
	}
	route := ev.Method + " " + ev.Path

	s.mu.Lock()
	defer s.mu.Unlock()

	bump(&s.total, ev.Allowed)
	bumpIn(s.byScope, scope, ev.Allowed)
	bumpIn(s.byRoute, route, ev.Allowed)
	if s.trackKeys {
		bumpIn(s.byKey, scope+":"+string(ev.Key), ev.Allowed)
	}
	return nil
}

func bump(c *Counters, allowed bool) {
	if allowed {
		c.Allowed++
		return
	}
	c.Denied++
}

func bumpIn(m map[string]Counters, k string, allowed bool) {
	c := m[k]
	bump(&c, allowed)
	m[k] = c
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByScope() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCounters(s.byScope)
}

func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCounters(s.byRoute)
}

func (s *MemoryStatsStore) ByKey() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCounters(s.byKey)
}

func copyCounters(src map[string]Counters) map[string]Counters {
	out := make(map[string]Counters, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
