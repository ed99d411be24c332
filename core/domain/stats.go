package domain

import (
	"context"
	"time"
)

// StatsEvent representa uma decisão de limite (token bucket ou janela).
//
// Scope separa as origens ("http", "otp", "ai"...). Method/Path são strings
// genéricas, sem acoplamento com net/http.
//
// Cuidado com cardinalidade ao registrar Key/Path.
type StatsEvent struct {
	Scope   string
	Key     Key
	Allowed bool

	Method string
	Path   string

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas de limite.
// Quem chama trata erro como best-effort (não derruba request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
