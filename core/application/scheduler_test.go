package application

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_KeepsRunningAfterFailures(t *testing.T) {
	var calls atomic.Int32
	trigger := func(context.Context) error {
		n := calls.Add(1)
		if n == 1 {
			return errors.New("connection refused")
		}
		if n == 2 {
			panic("boom")
		}
		return nil
	}

	s := NewScheduler(NewSweeper(), WithInterval(time.Millisecond, time.Millisecond), WithTrigger(trigger))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	require.Eventually(t, func() bool { return calls.Load() >= 4 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, int64(2), s.Failures())
	assert.GreaterOrEqual(t, s.Cycles(), int64(4))
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	var calls atomic.Int32
	s := NewScheduler(NewSweeper(),
		WithInterval(time.Millisecond, 0),
		WithTrigger(func(context.Context) error { calls.Add(1); return nil }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return calls.Load() > 0 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("scheduler did not stop after cancel")
	}
	assert.Equal(t, Sleeping, s.State())
}

func TestScheduler_DefaultTriggerRunsSweep(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, ist)
	f := &fakeItems{}
	f.items = append(f.items, fakeCandidate("gone", "2024-03-01", "08:00"))
	sw, _ := newTestSweeper(f, now)

	s := NewScheduler(sw, WithInterval(time.Millisecond, 0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.notified) == 1
	}, time.Second, time.Millisecond)
}

func TestScheduler_DelayDoublesAfterFailure(t *testing.T) {
	s := NewScheduler(NewSweeper(), WithInterval(10*time.Second, 0))
	if got := s.delay(false); got != 10*time.Second {
		t.Fatalf("expected 10s, got %s", got)
	}
	if got := s.delay(true); got != 20*time.Second {
		t.Fatalf("expected 20s after failure, got %s", got)
	}

	s = NewScheduler(NewSweeper(), WithInterval(30*time.Second, 10*time.Second))
	for i := 0; i < 100; i++ {
		d := s.delay(false)
		if d < 30*time.Second || d > 40*time.Second {
			t.Fatalf("delay out of range: %s", d)
		}
	}
}
