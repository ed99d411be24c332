package main

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type config struct {
	listenAddr string
	devLog     bool
	seedDemo   bool
	dbLatency  time.Duration

	workers  int
	maxQueue int
	cacheTTL time.Duration

	sweepBase     time.Duration
	sweepJitter   time.Duration
	sweepTZ       string
	sweepSelfPing bool

	translationsFile   string
	translationsBackup string
	translationsFlush  time.Duration
	translateURL       string
	translateTimeout   time.Duration

	rateEnabled        bool
	rateRPS            float64
	rateBurst          int
	trustXFF           bool
	otpWindow          time.Duration
	aiWindow           time.Duration
	concurrencyMax     int
	concurrencyTimeout time.Duration

	redisAddr     string
	redisPassword string
	redisDB       int

	rateStatsEnabled   bool
	rateStatsPrefix    string
	rateStatsTTL       time.Duration
	rateStatsBucket    string
	rateStatsTrackKeys bool
}

// readConfig lê as variáveis de ambiente. As flags do cobra usam esses
// valores como padrão e validate roda de novo depois do parse.
func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8000")
	cfg.devLog = getenvBoolDefault("DEV_LOG", false)
	cfg.seedDemo = getenvBoolDefault("SEED_DEMO", false)
	cfg.dbLatency = getenvDurationDefault("DB_LATENCY", 5*time.Millisecond)

	cfg.workers = getenvIntDefault("WORKERS", 50)
	cfg.maxQueue = getenvIntDefault("MAX_QUEUE", 0)
	cfg.cacheTTL = getenvDurationDefault("CACHE_TTL", 30*time.Second)

	cfg.sweepBase = getenvDurationDefault("SWEEP_BASE", 30*time.Second)
	cfg.sweepJitter = getenvDurationDefault("SWEEP_JITTER", 10*time.Second)
	cfg.sweepTZ = getenvDefault("SWEEP_TZ", "Asia/Kolkata")
	cfg.sweepSelfPing = getenvBoolDefault("SWEEP_SELF_PING", true)

	cfg.translationsFile = getenvDefault("TRANSLATIONS_FILE", "translations.json")
	cfg.translationsBackup = getenvDefault("TRANSLATIONS_BACKUP", "translations_backup.json")
	cfg.translationsFlush = getenvDurationDefault("TRANSLATIONS_FLUSH", 60*time.Second)
	cfg.translateURL = os.Getenv("TRANSLATE_URL")
	cfg.translateTimeout = getenvDurationDefault("TRANSLATE_TIMEOUT", 15*time.Second)

	cfg.rateEnabled = getenvBoolDefault("RATE_ENABLED", true)
	cfg.rateRPS = getenvFloatDefault("RATE_RPS", 10)
	// burst baixo com RPS baixo; senão as primeiras requisições passam todas
	if burst, ok := getenvInt("RATE_BURST"); ok {
		cfg.rateBurst = burst
	} else {
		cfg.rateBurst = 20
		if getenvIsSet("RATE_RPS") && cfg.rateRPS > 0 && cfg.rateRPS < 1 {
			cfg.rateBurst = 1
		}
	}
	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", false)
	cfg.otpWindow = getenvDurationDefault("OTP_WINDOW", 60*time.Second)
	cfg.aiWindow = getenvDurationDefault("AI_WINDOW", 60*time.Second)
	cfg.concurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 200)
	cfg.concurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)

	cfg.redisAddr = os.Getenv("REDIS_ADDR")
	cfg.redisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.redisDB = getenvIntDefault("REDIS_DB", 0)

	cfg.rateStatsEnabled = getenvBoolDefault("RATE_STATS_ENABLED", false)
	cfg.rateStatsPrefix = getenvDefault("RATE_STATS_PREFIX", "sahyog:stats")
	cfg.rateStatsTTL = getenvDurationDefault("RATE_STATS_TTL", 24*time.Hour)
	cfg.rateStatsBucket = getenvDefault("RATE_STATS_BUCKET", "minute")
	cfg.rateStatsTrackKeys = getenvBoolDefault("RATE_STATS_TRACK_KEYS", false)

	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (cfg config) validate() error {
	if cfg.workers <= 0 {
		return errors.New("WORKERS must be > 0")
	}
	if cfg.maxQueue < 0 {
		return errors.New("MAX_QUEUE must be >= 0")
	}
	if cfg.cacheTTL <= 0 {
		return errors.New("CACHE_TTL must be > 0")
	}
	if cfg.sweepBase <= 0 || cfg.sweepJitter < 0 {
		return errors.New("SWEEP_BASE must be > 0 and SWEEP_JITTER >= 0")
	}
	if _, err := time.LoadLocation(cfg.sweepTZ); err != nil {
		return errors.New("SWEEP_TZ: unknown time zone " + strconv.Quote(cfg.sweepTZ))
	}
	if strings.TrimSpace(cfg.translationsFile) == "" {
		return errors.New("TRANSLATIONS_FILE is required")
	}
	if cfg.rateRPS <= 0 {
		return errors.New("RATE_RPS must be > 0")
	}
	if cfg.rateBurst <= 0 {
		return errors.New("RATE_BURST must be > 0")
	}
	if cfg.otpWindow <= 0 || cfg.aiWindow <= 0 {
		return errors.New("OTP_WINDOW and AI_WINDOW must be > 0")
	}
	if cfg.concurrencyMax < 0 {
		return errors.New("CONCURRENCY_MAX must be >= 0")
	}
	if cfg.rateStatsEnabled && strings.TrimSpace(cfg.redisAddr) == "" {
		return errors.New("REDIS_ADDR is required when RATE_STATS_ENABLED=true")
	}
	return nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvInt(k string) (int, bool) {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

func getenvIsSet(k string) bool {
	v, ok := os.LookupEnv(k)
	return ok && v != ""
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
