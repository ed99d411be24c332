package infra

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sahyog-sutra/core/domain"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedTranslator segura as chamadas até gate fechar e conta quantas chegaram.
type gatedTranslator struct {
	calls atomic.Int32
	gate  chan struct{}
	mu    sync.Mutex
	fail  error
}

func newGatedTranslator() *gatedTranslator { return &gatedTranslator{gate: make(chan struct{})} }

func (g *gatedTranslator) Translate(ctx context.Context, text, lang string) (string, error) {
	g.calls.Add(1)
	select {
	case <-g.gate:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail != nil {
		return "", g.fail
	}
	return "[" + lang + "] " + text, nil
}

func (g *gatedTranslator) open() { close(g.gate) }

func (g *gatedTranslator) setFail(err error) {
	g.mu.Lock()
	g.fail = err
	g.mu.Unlock()
}

func TestTranslations_EnglishPassthrough(t *testing.T) {
	tr := newGatedTranslator()
	p := NewPool(WithWorkers(2))
	defer p.Close()
	m := NewTranslations(tr, p)

	for _, lang := range []string{"en", ""} {
		if got := m.Translate(context.Background(), "Hello", lang, true); got != "Hello" {
			t.Fatalf("expected passthrough for %q, got %q", lang, got)
		}
	}
	if p.Pending() != 0 || tr.calls.Load() != 0 {
		t.Fatalf("passthrough must not schedule work")
	}
}

func TestTranslations_FirstCallReturnsSourceThenTranslated(t *testing.T) {
	tr := newGatedTranslator()
	tr.open()
	p := NewPool(WithWorkers(2))
	defer p.Close()
	m := NewTranslations(tr, p)
	ctx := context.Background()

	require.Equal(t, "Campaigns", m.Translate(ctx, "Campaigns", "hi", true))
	require.Eventually(t, func() bool {
		return m.Translate(ctx, "Campaigns", "hi", true) == "[hi] Campaigns"
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), tr.calls.Load())
}

func TestTranslations_ConcurrentCallsShareOneExternalCall(t *testing.T) {
	tr := newGatedTranslator()
	p := NewPool(WithWorkers(8))
	defer p.Close()
	m := NewTranslations(tr, p)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := m.Translate(ctx, "Hello", "fr", true); got != "Hello" {
				t.Errorf("expected source text while pending, got %q", got)
			}
		}()
	}
	wg.Wait()
	tr.open()

	require.Eventually(t, func() bool {
		return m.Translate(ctx, "Hello", "fr", true) == "[fr] Hello"
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), tr.calls.Load())

	for i := 0; i < 10; i++ {
		assert.Equal(t, "[fr] Hello", m.Translate(ctx, "Hello", "fr", true))
	}
	assert.Equal(t, int32(1), tr.calls.Load())
}

func TestTranslations_FailureIsNotCached(t *testing.T) {
	tr := newGatedTranslator()
	tr.setFail(errors.New("429 from upstream"))
	tr.open()
	p := NewPool(WithWorkers(1))
	defer p.Close()
	m := NewTranslations(tr, p)
	ctx := context.Background()

	assert.Equal(t, "Hello", m.Translate(ctx, "Hello", "de", true))
	require.Eventually(t, func() bool { return tr.calls.Load() == 1 && m.Pending() == 0 }, 2*time.Second, time.Millisecond)
	assert.Empty(t, m.Snapshot(true))

	tr.setFail(nil)
	assert.Equal(t, "Hello", m.Translate(ctx, "Hello", "de", true))
	require.Eventually(t, func() bool {
		return m.Translate(ctx, "Hello", "de", true) == "[de] Hello"
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), tr.calls.Load())
}

func TestTranslations_DurabilitySelectsTable(t *testing.T) {
	tr := newGatedTranslator()
	tr.open()
	p := NewPool(WithWorkers(2))
	defer p.Close()
	m := NewTranslations(tr, p)
	ctx := context.Background()

	m.Translate(ctx, "Alice", "fr", false)
	require.Eventually(t, func() bool { return len(m.Snapshot(false)) == 1 }, 2*time.Second, time.Millisecond)
	assert.Empty(t, m.Snapshot(true))

	// o valor efêmero é o melhor conhecido, mesmo pedindo durable
	assert.Equal(t, "[fr] Alice", m.Translate(ctx, "Alice", "fr", true))
	assert.Equal(t, int32(1), tr.calls.Load())
}

func TestTranslations_ClosedPoolReleasesMarker(t *testing.T) {
	tr := newGatedTranslator()
	tr.open()
	p := NewPool(WithWorkers(1))
	p.Close()
	m := NewTranslations(tr, p)

	assert.Equal(t, "Hello", m.Translate(context.Background(), "Hello", "fr", true))
	assert.Equal(t, 0, m.Pending())
}

func TestTranslations_TranslateFields(t *testing.T) {
	tr := newGatedTranslator()
	tr.open()
	p := NewPool(WithWorkers(4))
	defer p.Close()
	m := NewTranslations(tr, p)

	got, err := m.TranslateFields(context.Background(), map[string]string{
		"eventname": "Beach cleanup",
		"location":  "Juhu",
	}, "mr")
	require.NoError(t, err)
	want := map[string]string{"eventname": "[mr] Beach cleanup", "location": "[mr] Juhu"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected fields (-want +got):\n%s", diff)
	}
}

func TestTranslations_TranslateFieldsKeepsSourceOnFailure(t *testing.T) {
	tr := newGatedTranslator()
	tr.setFail(errors.New("boom"))
	tr.open()
	p := NewPool(WithWorkers(2))
	defer p.Close()
	m := NewTranslations(tr, p)

	got, err := m.TranslateFields(context.Background(), map[string]string{"eventname": "Beach cleanup"}, "mr")
	require.Error(t, err)
	assert.Equal(t, "Beach cleanup", got["eventname"])
}

func TestTranslations_FlushAndLoad(t *testing.T) {
	dir := t.TempDir()
	files := SnapshotFiles{
		Primary: filepath.Join(dir, "translations.json"),
		Backup:  filepath.Join(dir, "translations_backup.json"),
	}
	tr := newGatedTranslator()
	tr.open()
	p := NewPool(WithWorkers(2))
	defer p.Close()

	m := NewTranslations(tr, p, WithSnapshotFiles(files))
	ctx := context.Background()
	m.Translate(ctx, "Hello", "fr", true)
	m.Translate(ctx, "Secret", "fr", false)
	require.Eventually(t, func() bool {
		return len(m.Snapshot(true)) == 1 && len(m.Snapshot(false)) == 1
	}, 2*time.Second, time.Millisecond)
	require.NoError(t, m.Flush())

	for _, path := range []string{files.Primary, files.Backup} {
		_, err := os.Stat(path)
		require.NoError(t, err, path)
	}

	fresh := NewTranslations(tr, p, WithSnapshotFiles(files))
	require.NoError(t, fresh.Load())
	want := domain.Table{"Hello": {"fr": "[fr] Hello"}}
	if diff := cmp.Diff(want, fresh.Snapshot(true)); diff != "" {
		t.Fatalf("ephemeral entries must not be flushed (-want +got):\n%s", diff)
	}
	assert.Equal(t, "[fr] Hello", fresh.Translate(ctx, "Hello", "fr", true))
}

func TestTranslations_FlusherRunsPeriodically(t *testing.T) {
	dir := t.TempDir()
	files := SnapshotFiles{Primary: filepath.Join(dir, "t.json")}
	p := NewPool(WithWorkers(1))
	defer p.Close()
	m := NewTranslations(newGatedTranslator(), p, WithSnapshotFiles(files), WithFlushEvery(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartFlusher(ctx)

	require.Eventually(t, func() bool {
		_, err := os.Stat(files.Primary)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)
}
