package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"sahyog-sutra/core"
	"sahyog-sutra/core/domain"
	"sahyog-sutra/core/infra"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	cfg, err := readConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}
	if err := newRootCmd(&cfg).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg *config) *cobra.Command {
	root := &cobra.Command{
		Use:          "sahyog-server",
		Short:        "Sahyog Sutra volunteer campaigns server",
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&cfg.devLog, "dev-log", cfg.devLog, "human-readable development logging")

	root.AddCommand(newServeCmd(cfg), newTranslationsCmd(cfg))
	return root
}

func newServeCmd(cfg *config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server, expiry scheduler and translation flusher",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			log, flush, err := newLogger(cfg.devLog)
			if err != nil {
				return err
			}
			defer flush()
			return serve(cmd.Context(), *cfg, log)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.listenAddr, "listen", cfg.listenAddr, "listen address")
	f.IntVar(&cfg.workers, "workers", cfg.workers, "worker pool size")
	f.IntVar(&cfg.maxQueue, "max-queue", cfg.maxQueue, "max queued work items (0 = unbounded)")
	f.DurationVar(&cfg.cacheTTL, "cache-ttl", cfg.cacheTTL, "campaigns cache TTL")
	f.DurationVar(&cfg.sweepBase, "sweep-base", cfg.sweepBase, "expiry sweep base interval")
	f.DurationVar(&cfg.sweepJitter, "sweep-jitter", cfg.sweepJitter, "expiry sweep max jitter")
	f.StringVar(&cfg.sweepTZ, "sweep-tz", cfg.sweepTZ, "time zone of event end dates")
	f.BoolVar(&cfg.sweepSelfPing, "sweep-self-ping", cfg.sweepSelfPing, "trigger sweeps through GET /checkeventloop")
	f.StringVar(&cfg.translationsFile, "translations-file", cfg.translationsFile, "durable translations file")
	f.StringVar(&cfg.translationsBackup, "translations-backup", cfg.translationsBackup, "durable translations backup file")
	f.DurationVar(&cfg.translationsFlush, "translations-flush", cfg.translationsFlush, "translations flush interval")
	f.StringVar(&cfg.translateURL, "translate-url", cfg.translateURL, "translation API base URL")
	f.Float64Var(&cfg.rateRPS, "rate-rps", cfg.rateRPS, "token bucket refill rate per client")
	f.IntVar(&cfg.rateBurst, "rate-burst", cfg.rateBurst, "token bucket burst per client")
	f.DurationVar(&cfg.otpWindow, "otp-window", cfg.otpWindow, "one OTP per client per window")
	f.DurationVar(&cfg.aiWindow, "ai-window", cfg.aiWindow, "one AI description per client per window")
	f.StringVar(&cfg.redisAddr, "redis-addr", cfg.redisAddr, "redis address for shared window limiter and stats")
	f.BoolVar(&cfg.seedDemo, "seed-demo", cfg.seedDemo, "insert demo events at startup")
	return cmd
}

func newTranslationsCmd(cfg *config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "translations",
		Short: "Print the durable translation table as stored on disk",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tb, err := infra.SnapshotFiles{Primary: cfg.translationsFile, Backup: cfg.translationsBackup}.Load()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetEscapeHTML(false)
			enc.SetIndent("", "    ")
			return enc.Encode(tb)
		},
	}
	cmd.Flags().StringVar(&cfg.translationsFile, "translations-file", cfg.translationsFile, "durable translations file")
	cmd.Flags().StringVar(&cfg.translationsBackup, "translations-backup", cfg.translationsBackup, "durable translations backup file")
	return cmd
}

func newLogger(dev bool) (logr.Logger, func(), error) {
	var (
		z   *zap.Logger
		err error
	)
	if dev {
		z, err = zap.NewDevelopment()
	} else {
		z, err = zap.NewProduction()
	}
	if err != nil {
		return logr.Discard(), func() {}, fmt.Errorf("building logger: %w", err)
	}
	return zapr.NewLogger(z), func() { _ = z.Sync() }, nil
}

func serve(parent context.Context, cfg config, log logr.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	loc, err := time.LoadLocation(cfg.sweepTZ)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var (
		limiter domain.WindowStore
		stats   domain.StatsStore
	)
	if cfg.redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.redisAddr, Password: cfg.redisPassword, DB: cfg.redisDB})
		defer func() { _ = rdb.Close() }()

		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		pingCancel()
		if err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		limiter = infra.NewRedisWindowStore(rdb)
		if cfg.rateStatsEnabled {
			stats = infra.NewRedisStatsStore(
				rdb,
				infra.WithStatsPrefix(cfg.rateStatsPrefix),
				infra.WithStatsTTL(cfg.rateStatsTTL),
				infra.WithStatsBucket(cfg.rateStatsBucket),
				infra.WithStatsTrackKeys(cfg.rateStatsTrackKeys),
			)
		}
	}
	if stats == nil {
		stats = infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.rateStatsTrackKeys))
	}

	rcfg := core.Config{
		Workers:    cfg.workers,
		MaxQueue:   cfg.maxQueue,
		Limiter:    limiter,
		Stats:      stats,
		Translator: infra.NewHTTPTranslator(cfg.translateURL, &http.Client{Timeout: cfg.translateTimeout}),
		TranslationFiles: &infra.SnapshotFiles{
			Primary: cfg.translationsFile,
			Backup:  cfg.translationsBackup,
		},
		FlushEvery:       cfg.translationsFlush,
		TranslateTimeout: cfg.translateTimeout,
		Location:         loc,
		SweepBase:        cfg.sweepBase,
		SweepJitter:      cfg.sweepJitter,
		Registerer:       reg,
		Log:              log,
	}
	if cfg.sweepSelfPing {
		rcfg.SweepTrigger = infra.HTTPTrigger(&http.Client{Timeout: 30 * time.Second}, selfURL(cfg.listenAddr)+"/checkeventloop")
	}
	rt := core.New(rcfg)
	defer func() {
		if err := rt.Close(); err != nil {
			log.Error(err, "closing runtime")
		}
	}()

	db := newEventDB(cfg.dbLatency)
	if cfg.seedDemo {
		seedDemo(db, loc)
	}
	srv := newServer(rt, db, logMailer{log: log.WithName("mail")}, serverOptions{
		cacheTTL:  cfg.cacheTTL,
		otpWindow: cfg.otpWindow,
		aiWindow:  cfg.aiWindow,
		trustXFF:  cfg.trustXFF,
	})

	tokens := infra.NewStore(cfg.rateRPS, cfg.rateBurst)
	tokens.StartJanitor(ctx)

	h := srv.handler(reg)
	h = core.ConcurrencyMiddleware(core.ConcurrencyOptions{
		Max:            cfg.concurrencyMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.concurrencyTimeout,
		Metrics:        rt.Metrics,
	})(h)
	if cfg.rateEnabled {
		h = core.Middleware(core.Options{
			Store:              tokens,
			Stats:              stats,
			TrustXForwardedFor: cfg.trustXFF,
			RejectStatus:       http.StatusTooManyRequests,
			Metrics:            rt.Metrics,
			Log:                log,
		})(h)
	}

	hs := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	if err := rt.Start(ctx); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = hs.Shutdown(shutdownCtx)
	}()

	log.Info("server listening", "addr", cfg.listenAddr, "workers", cfg.workers, "tz", loc.String(),
		"sweepSelfPing", cfg.sweepSelfPing, "redis", cfg.redisAddr != "")

	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// selfURL monta a URL local a partir do endereço de escuta (":8000" -> http://127.0.0.1:8000).
func selfURL(listen string) string {
	if len(listen) > 0 && listen[0] == ':' {
		return "http://127.0.0.1" + listen
	}
	return "http://" + listen
}

func seedDemo(db *eventDB, loc *time.Location) {
	conn, _ := db.open(context.Background())
	defer func() { _ = conn.Close() }()

	soon := time.Now().In(loc).Add(2 * time.Minute)
	later := time.Now().In(loc).Add(72 * time.Hour)
	conn.insert(event{
		Name: "Beach cleanup", Location: "Juhu", Email: "organiser@example.com",
		Description: "Cleaning the shore before monsoon.",
		EndDate:     soon.Format("2006-01-02"), EndTime: soon.Format("15:04"),
	})
	conn.insert(event{
		Name: "Tree plantation", Location: "Aarey", Email: "green@example.com",
		Description: "Planting 500 saplings.",
		EndDate:     later.Format("2006-01-02"), EndTime: later.Format("15:04"),
	})
}
