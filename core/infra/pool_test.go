package infra

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"sahyog-sutra/core/domain"
)

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for work item")
		return nil
	}
}

// blockOne ocupa o único worker até release ser fechado.
func blockOne(t *testing.T, p *Pool) (release chan struct{}, done <-chan error) {
	t.Helper()
	started := make(chan struct{})
	release = make(chan struct{})
	done = p.Go(context.Background(), "blocker", func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatalf("blocker did not start")
	}
	return release, done
}

func TestPool_RunsWork(t *testing.T) {
	p := NewPool(WithWorkers(2))
	defer p.Close()

	ran := false
	if err := waitErr(t, p.Go(context.Background(), "ok", func(context.Context) error { ran = true; return nil })); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Fatalf("expected work to run")
	}
}

func TestPool_BoundedConcurrency(t *testing.T) {
	p := NewPool(WithWorkers(2))
	defer p.Close()

	var running, peak atomic.Int32
	gate := make(chan struct{})
	var dones []<-chan error
	for i := 0; i < 6; i++ {
		dones = append(dones, p.Go(context.Background(), "slow", func(context.Context) error {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			<-gate
			running.Add(-1)
			return nil
		}))
	}

	deadline := time.Now().Add(time.Second)
	for p.Pending() != 4 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 4 queued items, got %d", p.Pending())
		}
		time.Sleep(time.Millisecond)
	}

	close(gate)
	for _, d := range dones {
		if err := waitErr(t, d); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if peak.Load() > 2 {
		t.Fatalf("expected at most 2 concurrent items, saw %d", peak.Load())
	}
}

func TestPool_ErrorsBecomeResourceErrors(t *testing.T) {
	p := NewPool(WithWorkers(1))
	defer p.Close()

	base := errors.New("no such table")
	err := waitErr(t, p.Go(context.Background(), "query", func(context.Context) error { return base }))

	var re *domain.ResourceError
	if !errors.As(err, &re) {
		t.Fatalf("expected ResourceError, got %T %v", err, err)
	}
	if re.Op != "query" || !errors.Is(err, base) {
		t.Fatalf("unexpected error contents: %v", err)
	}
}

func TestPool_RecoversPanic(t *testing.T) {
	p := NewPool(WithWorkers(1))
	defer p.Close()

	err := waitErr(t, p.Go(context.Background(), "boom", func(context.Context) error { panic("kaput") }))
	var re *domain.ResourceError
	if !errors.As(err, &re) {
		t.Fatalf("expected ResourceError from panic, got %v", err)
	}

	// o worker continua vivo
	if err := waitErr(t, p.Go(context.Background(), "after", func(context.Context) error { return nil })); err != nil {
		t.Fatalf("expected pool to keep working, got %v", err)
	}
}

func TestPool_MaxQueueRejects(t *testing.T) {
	p := NewPool(WithWorkers(1), WithMaxQueue(1))
	defer p.Close()

	release, first := blockOne(t, p)
	second := p.Go(context.Background(), "queued", func(context.Context) error { return nil })
	third := p.Go(context.Background(), "rejected", func(context.Context) error { return nil })

	if err := waitErr(t, third); !errors.Is(err, domain.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	close(release)
	if err := waitErr(t, first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := waitErr(t, second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPool_UnboundedQueueByDefault(t *testing.T) {
	p := NewPool(WithWorkers(1))
	defer p.Close()

	release, _ := blockOne(t, p)
	var dones []<-chan error
	for i := 0; i < 200; i++ {
		dones = append(dones, p.Go(context.Background(), "queued", func(context.Context) error { return nil }))
	}
	if got := p.Pending(); got != 200 {
		t.Fatalf("expected 200 pending, got %d", got)
	}
	close(release)
	for _, d := range dones {
		if err := waitErr(t, d); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

func TestPool_CloseDropsPendingAndWaitsInFlight(t *testing.T) {
	p := NewPool(WithWorkers(1))

	var finished atomic.Bool
	started := make(chan struct{})
	release := make(chan struct{})
	inflight := p.Go(context.Background(), "inflight", func(context.Context) error {
		close(started)
		<-release
		finished.Store(true)
		return nil
	})
	<-started
	pending := p.Go(context.Background(), "pending", func(context.Context) error {
		t.Errorf("pending item must not run after Close")
		return nil
	})

	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()

	if err := waitErr(t, pending); !errors.Is(err, domain.ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed for pending item, got %v", err)
	}
	select {
	case <-closed:
		t.Fatalf("Close returned before in-flight item finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-closed
	if err := waitErr(t, inflight); err != nil || !finished.Load() {
		t.Fatalf("expected in-flight item to complete, err=%v finished=%v", err, finished.Load())
	}

	if err := waitErr(t, p.Go(context.Background(), "late", func(context.Context) error { return nil })); !errors.Is(err, domain.ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed after Close, got %v", err)
	}
	p.Close()
}

func TestPool_SkipsQueuedWorkWhenCallerGaveUp(t *testing.T) {
	p := NewPool(WithWorkers(1))
	defer p.Close()

	release, _ := blockOne(t, p)
	ctx, cancel := context.WithCancel(context.Background())
	ran := false
	done := p.Go(ctx, "abandoned", func(context.Context) error { ran = true; return nil })
	cancel()
	close(release)

	if err := waitErr(t, done); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if ran {
		t.Fatalf("abandoned item must not run")
	}
}

func TestPool_DispatchedWorkIsNotInterrupted(t *testing.T) {
	p := NewPool(WithWorkers(1))
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	release := make(chan struct{})
	done := p.Go(ctx, "long", func(ctx context.Context) error {
		close(started)
		<-release
		return ctx.Err()
	})
	<-started
	cancel()
	close(release)

	if err := waitErr(t, done); err != nil {
		t.Fatalf("expected dispatched call to finish untouched, got %v", err)
	}
}
