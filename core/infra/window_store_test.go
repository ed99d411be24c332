package infra

import (
	"context"
	"fmt"
	"testing"
	"time"

	"sahyog-sutra/core/domain"
)

func TestWindowStore_AllowDenyAllow(t *testing.T) {
	clk := newFakeClock()
	s := NewWindowStore(WithWindowClock(clk.Now))
	ctx := context.Background()
	window := 30 * time.Second

	allowed, wait, err := s.CheckAndRecord(ctx, "K", window)
	if err != nil || !allowed || wait != 0 {
		t.Fatalf("expected (true, 0), got (%v, %d, %v)", allowed, wait, err)
	}

	clk.Advance(100 * time.Millisecond)
	allowed, wait, _ = s.CheckAndRecord(ctx, "K", window)
	if allowed || wait != 30 {
		t.Fatalf("expected (false, 30), got (%v, %d)", allowed, wait)
	}

	clk.Advance(10 * time.Second)
	_, wait, _ = s.CheckAndRecord(ctx, "K", window)
	if wait != 20 {
		t.Fatalf("expected wait 20, got %d", wait)
	}

	clk.Advance(21 * time.Second)
	allowed, wait, _ = s.CheckAndRecord(ctx, "K", window)
	if !allowed || wait != 0 {
		t.Fatalf("expected (true, 0) after window, got (%v, %d)", allowed, wait)
	}
}

func TestWindowStore_DeniedCallsDoNotExtendWindow(t *testing.T) {
	clk := newFakeClock()
	s := NewWindowStore(WithWindowClock(clk.Now))
	ctx := context.Background()

	s.CheckAndRecord(ctx, "K", time.Minute)
	for i := 0; i < 59; i++ {
		clk.Advance(time.Second)
		if ok, _, _ := s.CheckAndRecord(ctx, "K", time.Minute); ok {
			t.Fatalf("unexpected allow at %ds", i+1)
		}
	}
	clk.Advance(time.Second)
	if ok, _, _ := s.CheckAndRecord(ctx, "K", time.Minute); !ok {
		t.Fatalf("expected allow exactly one window after the last allowed call")
	}
}

func TestWindowStore_KeysAreIndependent(t *testing.T) {
	s := NewWindowStore()
	ctx := context.Background()

	if ok, _, _ := s.CheckAndRecord(ctx, "a@example.com", time.Minute); !ok {
		t.Fatalf("expected allow for first key")
	}
	if ok, _, _ := s.CheckAndRecord(ctx, "b@example.com", time.Minute); !ok {
		t.Fatalf("expected allow for second key")
	}
}

func TestWindowStore_PrunesIdleKeys(t *testing.T) {
	clk := newFakeClock()
	s := NewWindowStore(WithWindowClock(clk.Now))
	ctx := context.Background()
	window := 30 * time.Second

	s.CheckAndRecord(ctx, "K", window)
	clk.Advance(60 * time.Second)
	s.CheckAndRecord(ctx, "other", window)
	if s.Len() != 2 {
		t.Fatalf("entry at exactly 2×window must be kept, len=%d", s.Len())
	}

	clk.Advance(time.Second)
	s.CheckAndRecord(ctx, "other", window)
	if s.Len() != 1 {
		t.Fatalf("expected K pruned after 61s idle, len=%d", s.Len())
	}
}

func TestWindowStore_MemoryBoundedUnderChurn(t *testing.T) {
	clk := newFakeClock()
	s := NewWindowStore(WithWindowClock(clk.Now))
	ctx := context.Background()

	for i := 0; i < 10_000; i++ {
		s.CheckAndRecord(ctx, domain.Key(fmt.Sprintf("10.0.%d.%d", i/256, i%256)), time.Second)
		clk.Advance(100 * time.Millisecond)
	}
	// só sobrevivem chaves vistas nos últimos 2s: ~20
	if s.Len() > 21 {
		t.Fatalf("expected bounded memory, got %d entries", s.Len())
	}
}
