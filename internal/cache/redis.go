package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/symptom-likelihood-server/internal/domain"
)

const defaultKeyPrefix = "symptom:"

// cachedResults is the Redis value layout.
type cachedResults struct {
	Results  []domain.ScoreResult `json:"results"`
	CachedAt time.Time            `json:"cached_at"`
}

// RedisCache stores ranked results in Redis as JSON. Calls go through a
// circuit breaker so an unavailable Redis fails fast.
type RedisCache struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	ttl     time.Duration
	prefix  string
	logger  *logrus.Logger
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client, ttl time.Duration, prefix string, logger *logrus.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-cache",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
	})

	return &RedisCache{
		client:  client,
		breaker: breaker,
		ttl:     ttl,
		prefix:  prefix,
		logger:  logger,
	}
}

// NewRedisCacheFromConfig connects to the configured Redis and verifies the
// connection.
func NewRedisCacheFromConfig(ctx context.Context, config domain.CacheConfig, logger *logrus.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	if config.MaxRetries != 0 {
		opts.MaxRetries = config.MaxRetries
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisCache(client, config.DefaultTTL, config.KeyPrefix, logger), nil
}

// Get returns cached results. Misses, decode failures and Redis errors all
// report a miss; errors are logged.
func (r *RedisCache) Get(ctx context.Context, key string) ([]domain.ScoreResult, bool) {
	raw, err := r.breaker.Execute(func() (interface{}, error) {
		return r.client.Get(ctx, r.prefix+key).Bytes()
	})
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		r.logger.WithError(err).WithField("key", key).Debug("Redis cache read failed")
		return nil, false
	}

	var cached cachedResults
	if err := json.Unmarshal(raw.([]byte), &cached); err != nil {
		r.logger.WithError(err).WithField("key", key).Warn("Dropping corrupted cache entry")
		r.client.Del(ctx, r.prefix+key)
		return nil, false
	}
	return cached.Results, true
}

// Set stores results with the cache TTL.
func (r *RedisCache) Set(ctx context.Context, key string, results []domain.ScoreResult) error {
	data, err := json.Marshal(cachedResults{Results: results, CachedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal cached results: %w", err)
	}

	_, err = r.breaker.Execute(func() (interface{}, error) {
		return nil, r.client.Set(ctx, r.prefix+key, data, r.ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Ping checks Redis connectivity.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// State returns the circuit breaker state.
func (r *RedisCache) State() gobreaker.State {
	return r.breaker.State()
}

// Close releases the Redis client.
func (r *RedisCache) Close() error {
	return r.client.Close()
}
