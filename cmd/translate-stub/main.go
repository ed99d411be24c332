package main

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Servidor de tradução falso para desenvolvimento local. Responde no mesmo
// formato do translate_a/single ("[lang] texto"), com latência e taxa de
// falha configuráveis para exercitar o memo de traduções.
func main() {
	z, _ := zap.NewDevelopment()
	defer func() { _ = z.Sync() }()

	addr := getenvDefault("LISTEN_ADDR", ":8081")
	delay := getenvDurationDefault("STUB_DELAY", 200*time.Millisecond)
	failRate := getenvFloatDefault("STUB_FAIL_RATE", 0)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mux := http.NewServeMux()
	mux.Handle("GET /translate_a/single", stubHandler(z, delay, func() bool { return rand.Float64() < failRate }))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	z.Info("translate stub listening", zap.String("addr", addr), zap.Duration("delay", delay), zap.Float64("failRate", failRate))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		z.Fatal("server error", zap.Error(err))
	}
}

func stubHandler(z *zap.Logger, delay time.Duration, fail func() bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		text, lang := q.Get("q"), q.Get("tl")
		if text == "" || lang == "" {
			http.Error(w, "q and tl are required", http.StatusBadRequest)
			return
		}

		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
		if fail != nil && fail() {
			z.Info("simulated failure", zap.String("tl", lang))
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}

		translated := "[" + lang + "] " + text
		payload := []any{
			[]any{[]any{translated, text, nil, nil}},
			nil,
			"en",
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(payload)
		z.Debug("translated", zap.String("tl", lang), zap.Int("chars", len(text)))
	})
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvFloatDefault(k string, def float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(k), 64)
	if err != nil {
		return def
	}
	return f
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(k))
	if err != nil {
		return def
	}
	return d
}
