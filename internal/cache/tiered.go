package cache

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/symptom-likelihood-server/internal/domain"
)

// Stats counts cache lookups per tier.
type Stats struct {
	MemoryHits  int64 `json:"memory_hits"`
	RedisHits   int64 `json:"redis_hits"`
	Misses      int64 `json:"misses"`
	RedisErrors int64 `json:"redis_errors"`
}

// TieredCache checks memory first and then Redis, back-filling memory on a
// Redis hit. Without Redis, or when Redis fails, it serves from memory only.
type TieredCache struct {
	memory *MemoryCache
	redis  domain.ResultCache
	logger *logrus.Logger

	mu    sync.Mutex
	stats Stats
}

// NewTieredCache creates a tiered cache. redis may be nil.
func NewTieredCache(memory *MemoryCache, redis domain.ResultCache, logger *logrus.Logger) *TieredCache {
	return &TieredCache{
		memory: memory,
		redis:  redis,
		logger: logger,
	}
}

// Get implements domain.ResultCache.
func (t *TieredCache) Get(ctx context.Context, key string) ([]domain.ScoreResult, bool) {
	if results, ok := t.memory.Get(ctx, key); ok {
		t.record(func(s *Stats) { s.MemoryHits++ })
		return results, true
	}

	if t.redis != nil {
		if results, ok := t.redis.Get(ctx, key); ok {
			t.record(func(s *Stats) { s.RedisHits++ })
			_ = t.memory.Set(ctx, key, results)
			return results, true
		}
	}

	t.record(func(s *Stats) { s.Misses++ })
	return nil, false
}

// Set implements domain.ResultCache. Redis write failures are logged and
// do not fail the call.
func (t *TieredCache) Set(ctx context.Context, key string, results []domain.ScoreResult) error {
	if err := t.memory.Set(ctx, key, results); err != nil {
		return err
	}
	if t.redis == nil {
		return nil
	}
	if err := t.redis.Set(ctx, key, results); err != nil {
		t.record(func(s *Stats) { s.RedisErrors++ })
		t.logger.WithError(err).Warn("Redis cache unavailable, serving from memory")
	}
	return nil
}

// Stats returns a snapshot of the lookup counters.
func (t *TieredCache) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

func (t *TieredCache) record(update func(*Stats)) {
	t.mu.Lock()
	update(&t.stats)
	t.mu.Unlock()
}
