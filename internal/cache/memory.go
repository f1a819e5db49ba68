package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/symptom-likelihood-server/internal/domain"
)

const (
	defaultMaxItems = 1000
	defaultTTL      = 15 * time.Minute
)

// MemoryCache is an in-process LRU of ranked results with per-entry expiry.
type MemoryCache struct {
	lru *expirable.LRU[string, []domain.ScoreResult]
}

// NewMemoryCache creates a memory cache holding at most maxItems entries,
// each living for ttl.
func NewMemoryCache(maxItems int, ttl time.Duration) *MemoryCache {
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &MemoryCache{
		lru: expirable.NewLRU[string, []domain.ScoreResult](maxItems, nil, ttl),
	}
}

// Get returns a copy of the cached results for key.
func (m *MemoryCache) Get(_ context.Context, key string) ([]domain.ScoreResult, bool) {
	results, ok := m.lru.Get(key)
	if !ok {
		return nil, false
	}
	return cloneResults(results), true
}

// Set stores a copy of results under key.
func (m *MemoryCache) Set(_ context.Context, key string, results []domain.ScoreResult) error {
	m.lru.Add(key, cloneResults(results))
	return nil
}

// Remove evicts key.
func (m *MemoryCache) Remove(key string) {
	m.lru.Remove(key)
}

// Len returns the number of live entries.
func (m *MemoryCache) Len() int {
	return m.lru.Len()
}

// Purge drops every entry.
func (m *MemoryCache) Purge() {
	m.lru.Purge()
}

// cloneResults copies results so callers cannot mutate cached slices.
func cloneResults(results []domain.ScoreResult) []domain.ScoreResult {
	out := make([]domain.ScoreResult, len(results))
	for i, r := range results {
		out[i] = r
		out[i].MatchedNodes = append([]string{}, r.MatchedNodes...)
	}
	return out
}
