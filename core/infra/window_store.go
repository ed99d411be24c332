package infra

import (
	"context"
	"math"
	"sync"
	"time"

	"sahyog-sutra/core/domain"
)

// WindowStore é o limitador de janela em memória: uma ação permitida por
// chave a cada janela, contada a partir da última ação permitida.
//
// Não há janitor: toda checagem poda as chaves paradas há mais de 2×window,
// então a memória fica limitada mesmo com muitas chaves distintas.
type WindowStore struct {
	mu      sync.Mutex
	entries map[string]time.Time // key -> lastAllowedAt
	now     func() time.Time
	metrics *Metrics
}

type WindowStoreOption func(*WindowStore)

func WithWindowClock(now func() time.Time) WindowStoreOption {
	return func(s *WindowStore) { s.now = now }
}

func WithWindowMetrics(m *Metrics) WindowStoreOption {
	return func(s *WindowStore) { s.metrics = m }
}

func NewWindowStore(opts ...WindowStoreOption) *WindowStore {
	s := &WindowStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckAndRecord implementa domain.WindowStore. Nunca falha.
func (s *WindowStore) CheckAndRecord(_ context.Context, key domain.Key, window time.Duration) (bool, int, error) {
	allowed, wait := s.checkAndRecord(string(key), window)
	s.metrics.limiterDecision(allowed)
	return allowed, wait, nil
}

func (s *WindowStore) checkAndRecord(key string, window time.Duration) (bool, int) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, at := range s.entries {
		if now.Sub(at) > 2*window {
			delete(s.entries, k)
		}
	}

	if at, ok := s.entries[key]; ok {
		if elapsed := now.Sub(at); elapsed < window {
			return false, int(math.Ceil((window - elapsed).Seconds()))
		}
	}

	s.entries[key] = now
	return true, 0
}

// Len devolve o número de chaves retidas.
func (s *WindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
