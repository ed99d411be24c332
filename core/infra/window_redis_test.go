package infra

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"sahyog-sutra/core/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Precisa de um Redis de verdade: REDIS_ADDR=localhost:6379 go test ./core/infra -run Redis
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}
	return rdb
}

func TestRedisWindowStore_OneActionPerWindow(t *testing.T) {
	rdb := newTestRedis(t)
	s := NewRedisWindowStore(rdb, WithWindowPrefix("test:"+uuid.NewString()))
	ctx := context.Background()
	key := domain.Key("203.0.113.7")

	ok, _, err := s.CheckAndRecord(ctx, key, 2*time.Second)
	if err != nil || !ok {
		t.Fatalf("expected first call allowed, got ok=%v err=%v", ok, err)
	}
	ok, wait, err := s.CheckAndRecord(ctx, key, 2*time.Second)
	if err != nil || ok {
		t.Fatalf("expected second call denied, got ok=%v err=%v", ok, err)
	}
	if wait < 1 || wait > 2 {
		t.Fatalf("expected wait in [1,2], got %d", wait)
	}

	time.Sleep(2100 * time.Millisecond)
	if ok, _, err := s.CheckAndRecord(ctx, key, 2*time.Second); err != nil || !ok {
		t.Fatalf("expected allowed after window, got ok=%v err=%v", ok, err)
	}
}

// expireBeforePTTL apaga a chave logo antes do primeiro PTTL, simulando a
// expiração entre os dois comandos.
type expireBeforePTTL struct {
	rdb  *redis.Client
	once sync.Once
}

func (h *expireBeforePTTL) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *expireBeforePTTL) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == "pttl" {
			h.once.Do(func() { h.rdb.Del(ctx, cmd.Args()[1].(string)) })
		}
		return next(ctx, cmd)
	}
}

func (h *expireBeforePTTL) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestRedisWindowStore_KeyExpiringBetweenCommandsIsAllowed(t *testing.T) {
	rdb := newTestRedis(t)
	s := NewRedisWindowStore(rdb, WithWindowPrefix("test:"+uuid.NewString()))
	ctx := context.Background()
	key := domain.Key("203.0.113.9")

	if ok, _, err := s.CheckAndRecord(ctx, key, time.Minute); err != nil || !ok {
		t.Fatalf("expected first call allowed, got ok=%v err=%v", ok, err)
	}

	rdb.AddHook(&expireBeforePTTL{rdb: rdb})
	ok, wait, err := s.CheckAndRecord(ctx, key, time.Minute)
	if err != nil || !ok || wait != 0 {
		t.Fatalf("expected allowed after expiry, got ok=%v wait=%d err=%v", ok, wait, err)
	}
}

func TestRedisStatsStore_CountsPerScope(t *testing.T) {
	rdb := newTestRedis(t)
	prefix := "test:" + uuid.NewString()
	s := NewRedisStatsStore(rdb, WithStatsPrefix(prefix), WithStatsBucket("none"))
	ctx := context.Background()

	_ = s.Record(ctx, domain.StatsEvent{Scope: "otp", Key: "k", Allowed: true, Method: "POST", Path: "/sendotp"})
	_ = s.Record(ctx, domain.StatsEvent{Scope: "otp", Key: "k", Allowed: false, Method: "POST", Path: "/sendotp"})
	t.Cleanup(func() { _ = rdb.Del(context.Background(), prefix+":otp:total", prefix+":otp:route").Err() })

	got, err := rdb.HGetAll(ctx, prefix+":otp:total").Result()
	if err != nil {
		t.Fatalf("hgetall: %v", err)
	}
	if got["allowed"] != "1" || got["denied"] != "1" {
		t.Fatalf("unexpected totals %v", got)
	}
}
