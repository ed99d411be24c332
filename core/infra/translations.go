package infra

import (
	"context"
	"errors"
	"sync"
	"time"

	"sahyog-sutra/core/domain"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"
)

// Translations memoriza traduções em duas tabelas: durable (gravada em disco
// periodicamente) e ephemeral (só memória). A escolha é por chamada.
//
// Translate nunca espera a chamada externa: devolve o melhor valor conhecido
// e agenda no pool, no máximo, um job por (text, lang). A marca de "em voo"
// é gravada sob o mesmo lock que publica o resultado; o singleflight junta
// qualquer chamada redundante que ainda escape.
type Translations struct {
	mu        sync.Mutex
	durable   domain.Table
	ephemeral domain.Table
	inflight  map[flightKey]struct{}

	sf         singleflight.Group
	translator domain.Translator
	exec       domain.Executor
	files      *SnapshotFiles
	flushEvery time.Duration
	timeout    time.Duration

	log     logr.Logger
	metrics *Metrics
}

type flightKey struct {
	text string
	lang string
}

func (k flightKey) String() string { return k.lang + "\x00" + k.text }

type TranslationsOption func(*Translations)

// WithSnapshotFiles liga a persistência da tabela durable.
func WithSnapshotFiles(f SnapshotFiles) TranslationsOption {
	return func(t *Translations) { t.files = &f }
}

// WithFlushEvery define o intervalo do flusher (padrão 60s).
func WithFlushEvery(d time.Duration) TranslationsOption {
	return func(t *Translations) { t.flushEvery = d }
}

// WithTranslateTimeout limita cada chamada externa (padrão 15s).
func WithTranslateTimeout(d time.Duration) TranslationsOption {
	return func(t *Translations) {
		if d > 0 {
			t.timeout = d
		}
	}
}

func WithTranslationsLogger(l logr.Logger) TranslationsOption {
	return func(t *Translations) { t.log = l }
}

func WithTranslationsMetrics(m *Metrics) TranslationsOption {
	return func(t *Translations) { t.metrics = m }
}

func NewTranslations(tr domain.Translator, exec domain.Executor, opts ...TranslationsOption) *Translations {
	t := &Translations{
		durable:    domain.Table{},
		ephemeral:  domain.Table{},
		inflight:   make(map[flightKey]struct{}),
		translator: tr,
		exec:       exec,
		flushEvery: 60 * time.Second,
		timeout:    15 * time.Second,
		log:        logr.Discard(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func isPassthrough(lang string) bool { return lang == "" || lang == "en" }

func (t *Translations) tables(durable bool) (selected, other domain.Table) {
	if durable {
		return t.durable, t.ephemeral
	}
	return t.ephemeral, t.durable
}

// Translate devolve a tradução conhecida de text para lang, ou o próprio
// text enquanto ela não existe. "en" e idioma vazio nunca agendam trabalho.
func (t *Translations) Translate(ctx context.Context, text, lang string, durable bool) string {
	if isPassthrough(lang) {
		t.metrics.translationLookup("passthrough")
		return text
	}
	k := flightKey{text: text, lang: lang}

	t.mu.Lock()
	selected, other := t.tables(durable)
	if v, ok := selected.Lookup(text, lang); ok {
		t.mu.Unlock()
		t.metrics.translationLookup("hit")
		return v
	}
	if v, ok := other.Lookup(text, lang); ok {
		t.mu.Unlock()
		t.metrics.translationLookup("hit")
		return v
	}
	if _, busy := t.inflight[k]; busy {
		t.mu.Unlock()
		t.metrics.translationLookup("pending")
		return text
	}
	t.inflight[k] = struct{}{}
	t.mu.Unlock()

	t.metrics.translationLookup("miss")
	t.schedule(ctx, k, durable)
	return text
}

func (t *Translations) schedule(ctx context.Context, k flightKey, durable bool) {
	t.log.V(1).Info("scheduling translation", "lang", k.lang, "durable", durable)

	done := t.exec.Go(context.WithoutCancel(ctx), "translate", func(ctx context.Context) error {
		return t.fill(ctx, k, durable)
	})

	// Pool fechado ou fila cheia respondem na hora; sem isso a marca ficaria
	// presa e a chave nunca mais seria traduzida.
	select {
	case err := <-done:
		if errors.Is(err, domain.ErrPoolClosed) || errors.Is(err, domain.ErrQueueFull) {
			t.release(k)
			t.log.Info("translation not scheduled", "lang", k.lang, "reason", err.Error())
		}
	default:
	}
}

func (t *Translations) fill(ctx context.Context, k flightKey, durable bool) error {
	v, err, _ := t.sf.Do(k.String(), func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, t.timeout)
		defer cancel()
		return t.translator.Translate(ctx, k.text, k.lang)
	})
	t.metrics.translationJob(err)
	if err != nil {
		// nada é cacheado: a próxima chamada tenta de novo
		t.release(k)
		t.log.Error(err, "translation failed", "lang", k.lang)
		return err
	}

	t.mu.Lock()
	selected, _ := t.tables(durable)
	selected.Put(k.text, k.lang, v.(string))
	delete(t.inflight, k)
	t.mu.Unlock()
	return nil
}

func (t *Translations) release(k flightKey) {
	t.mu.Lock()
	delete(t.inflight, k)
	t.mu.Unlock()
}

// TranslateFields traduz vários campos de uma vez e espera o resultado,
// espalhando as chamadas pelo pool. Campo que falha volta com o texto original.
func (t *Translations) TranslateFields(ctx context.Context, fields map[string]string, lang string) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	if isPassthrough(lang) {
		for k, v := range fields {
			out[k] = v
		}
		return out, nil
	}

	for field, text := range fields {
		out[field] = text
	}

	var mu sync.Mutex
	waits := make(map[string]<-chan error, len(fields))
	for field, text := range fields {
		waits[field] = t.exec.Go(ctx, "translate-field", func(ctx context.Context) error {
			tctx, cancel := context.WithTimeout(ctx, t.timeout)
			defer cancel()
			v, err := t.translator.Translate(tctx, text, lang)
			if err != nil {
				return err
			}
			mu.Lock()
			out[field] = v
			mu.Unlock()
			return nil
		})
	}

	var errs error
	for field, done := range waits {
		select {
		case err := <-done:
			if err != nil {
				errs = multierr.Append(errs, err)
				t.log.V(1).Info("field translation failed", "field", field, "err", err)
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	mu.Lock()
	defer mu.Unlock()
	return out, errs
}

// Pending devolve quantas traduções estão em voo.
func (t *Translations) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}

// Snapshot devolve uma cópia de uma das tabelas.
func (t *Translations) Snapshot(durable bool) domain.Table {
	t.mu.Lock()
	defer t.mu.Unlock()
	selected, _ := t.tables(durable)
	return selected.Clone()
}

// Load carrega a tabela durable do disco (primário, com fallback no backup).
func (t *Translations) Load() error {
	if t.files == nil {
		return nil
	}
	tb, err := t.files.Load()
	if err != nil {
		return err
	}

	t.mu.Lock()
	for text, byLang := range tb {
		for lang, v := range byLang {
			t.durable.Put(text, lang, v)
		}
	}
	n := len(t.durable)
	t.mu.Unlock()

	t.log.Info("translations loaded", "texts", n, "path", t.files.Primary)
	return nil
}

// Flush grava a tabela durable. A cópia é feita sob lock; o disco, fora dele.
func (t *Translations) Flush() error {
	if t.files == nil {
		return nil
	}
	t.mu.Lock()
	snap := t.durable.Clone()
	t.mu.Unlock()

	err := t.files.Save(snap)
	t.metrics.flush(err)
	if err != nil {
		t.log.Error(err, "flushing translations")
	}
	return err
}

// StartFlusher inicia uma goroutine que grava a tabela durable periodicamente.
// Falha de gravação só é logada; a memória continua valendo. Pare cancelando o contexto.
func (t *Translations) StartFlusher(ctx DoneContext) {
	if t.files == nil || t.flushEvery <= 0 {
		return
	}

	tk := time.NewTicker(t.flushEvery)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				_ = t.Flush()
			}
		}
	}()
}
