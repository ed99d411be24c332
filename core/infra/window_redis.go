package infra

import (
	"context"
	"math"
	"strings"
	"time"

	"sahyog-sutra/core/domain"

	"github.com/redis/go-redis/v9"
)

// RedisWindowStore aplica a mesma janela de slot único entre várias
// instâncias. SET NX PX grava a chave só se não existir; o TTL da chave faz
// o papel da poda.
type RedisWindowStore struct {
	rdb     *redis.Client
	prefix  string
	metrics *Metrics
}

type RedisWindowOption func(*RedisWindowStore)

func WithWindowPrefix(prefix string) RedisWindowOption {
	return func(s *RedisWindowStore) { s.prefix = strings.Trim(prefix, ":") }
}

func WithRedisWindowMetrics(m *Metrics) RedisWindowOption {
	return func(s *RedisWindowStore) { s.metrics = m }
}

func NewRedisWindowStore(rdb *redis.Client, opts ...RedisWindowOption) *RedisWindowStore {
	s := &RedisWindowStore{rdb: rdb, prefix: "sahyog:window"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisWindowStore) key(k domain.Key, window time.Duration) string {
	return s.prefix + ":" + window.String() + ":" + string(k)
}

// CheckAndRecord implementa domain.WindowStore.
func (s *RedisWindowStore) CheckAndRecord(ctx context.Context, key domain.Key, window time.Duration) (bool, int, error) {
	rk := s.key(key, window)

	// se a chave expira entre SETNX e PTTL, a janela já acabou: tenta de novo
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.rdb.SetNX(ctx, rk, time.Now().UnixMilli(), window).Result()
		if err != nil {
			return false, 0, err
		}
		if ok {
			s.metrics.limiterDecision(true)
			return true, 0, nil
		}

		ttl, err := s.rdb.PTTL(ctx, rk).Result()
		if err != nil {
			return false, 0, err
		}
		if ttl > 0 {
			s.metrics.limiterDecision(false)
			return false, int(math.Ceil(ttl.Seconds())), nil
		}
	}
	s.metrics.limiterDecision(false)
	return false, 1, nil
}
