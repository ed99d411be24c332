package infra

import (
	"context"
	"testing"

	"sahyog-sutra/core/domain"
)

func TestMemoryStatsStore_CountsByScopeAndRoute(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackKeys(true))
	ctx := context.Background()

	_ = s.Record(ctx, domain.StatsEvent{Key: "1.2.3.4", Allowed: true, Method: "GET", Path: "/campaigns"})
	_ = s.Record(ctx, domain.StatsEvent{Scope: "otp", Key: "1.2.3.4", Allowed: true, Method: "POST", Path: "/sendotp"})
	_ = s.Record(ctx, domain.StatsEvent{Scope: "otp", Key: "1.2.3.4", Allowed: false, Method: "POST", Path: "/sendotp"})

	if got := s.Total(); got != (Counters{Allowed: 2, Denied: 1}) {
		t.Fatalf("unexpected total %+v", got)
	}
	scopes := s.ByScope()
	if scopes["http"] != (Counters{Allowed: 1}) {
		t.Fatalf("expected empty scope to count as http, got %+v", scopes)
	}
	if scopes["otp"] != (Counters{Allowed: 1, Denied: 1}) {
		t.Fatalf("unexpected otp counters %+v", scopes["otp"])
	}
	if got := s.ByRoute()["POST /sendotp"]; got != (Counters{Allowed: 1, Denied: 1}) {
		t.Fatalf("unexpected route counters %+v", got)
	}
	if got := s.ByKey()["otp:1.2.3.4"]; got != (Counters{Allowed: 1, Denied: 1}) {
		t.Fatalf("unexpected key counters %+v", got)
	}
}

func TestMemoryStatsStore_KeysOffByDefault(t *testing.T) {
	s := NewMemoryStatsStore()
	_ = s.Record(context.Background(), domain.StatsEvent{Key: "k", Allowed: true})
	if len(s.ByKey()) != 0 {
		t.Fatalf("expected no per-key tracking by default")
	}
}

func TestMemoryStatsStore_SnapshotsAreCopies(t *testing.T) {
	s := NewMemoryStatsStore()
	_ = s.Record(context.Background(), domain.StatsEvent{Scope: "ai", Allowed: true})

	snap := s.ByScope()
	snap["ai"] = Counters{Denied: 99}
	if s.ByScope()["ai"] != (Counters{Allowed: 1}) {
		t.Fatalf("mutating a snapshot must not leak into the store")
	}
}
