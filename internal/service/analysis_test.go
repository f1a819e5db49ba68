package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symptom-likelihood-server/internal/domain"
)

type mapCache struct {
	mu      sync.Mutex
	entries map[string][]domain.ScoreResult
	setErr  error
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string][]domain.ScoreResult)}
}

func (c *mapCache) Get(_ context.Context, key string) ([]domain.ScoreResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return append([]domain.ScoreResult(nil), r...), true
}

func (c *mapCache) Set(_ context.Context, key string, results []domain.ScoreResult) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = append([]domain.ScoreResult(nil), results...)
	return nil
}

type memoryRecorder struct {
	records map[string]*domain.AnalysisRecord
	order   []string
	err     error
}

func newMemoryRecorder() *memoryRecorder {
	return &memoryRecorder{records: make(map[string]*domain.AnalysisRecord)}
}

func (r *memoryRecorder) Create(_ context.Context, record *domain.AnalysisRecord) error {
	if r.err != nil {
		return r.err
	}
	r.records[record.ID] = record
	r.order = append(r.order, record.ID)
	return nil
}

func (r *memoryRecorder) GetByID(_ context.Context, id string) (*domain.AnalysisRecord, error) {
	record, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("analysis %s: %w", id, domain.ErrNotFound)
	}
	return record, nil
}

func (r *memoryRecorder) ListRecent(_ context.Context, clientID string, limit int) ([]*domain.AnalysisRecord, error) {
	out := make([]*domain.AnalysisRecord, 0)
	for i := len(r.order) - 1; i >= 0; i-- {
		record := r.records[r.order[i]]
		if clientID != "" && record.ClientID != clientID {
			continue
		}
		out = append(out, record)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func categorisedDataset() *domain.Dataset {
	return domain.NewDataset("v1",
		[]domain.Category{{ID: "respiratory", Name: "Respiratory"}, {ID: "digestive", Name: "Digestive"}},
		[]domain.Condition{
			{
				Name:     "Bronchitis",
				Category: "respiratory",
				Nodes: []domain.SymptomNode{
					{ID: "wheeze_localised"}, {ID: "cough_productive"}, {ID: "sob_exertion"},
				},
				Edges: []domain.ConditionEdge{
					{From: "wheeze_localised", To: "cough_productive"},
					{From: "cough_productive", To: "sob_exertion"},
				},
			},
			{
				Name:     "Acid Reflux",
				Category: "digestive",
				Nodes:    []domain.SymptomNode{{ID: "heartburn"}, {ID: "cough_productive"}},
				Edges:    []domain.ConditionEdge{{From: "heartburn", To: "cough_productive"}},
			},
			{
				Name:     "Gastroenteritis",
				Category: "digestive",
				Nodes:    []domain.SymptomNode{{ID: "nausea"}, {ID: "diarrhoea"}},
			},
		},
	)
}

func newTestService(t *testing.T, opts ...AnalysisOption) (*AnalysisService, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	return NewAnalysisService(logger, categorisedDataset(), newTestScorer(t), opts...), hook
}

func TestAnalyzeRanksAndFiltersZeros(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.Analyze(context.Background(), &AnalyzeParams{
		Selection: []string{"wheeze_localised", "cough_productive"},
	})
	require.NoError(t, err)

	require.Len(t, result.Results, 2)
	assert.Equal(t, "Bronchitis", result.Results[0].Condition)
	assert.InDelta(t, 60.0, result.Results[0].Score, 1e-9)
	assert.Equal(t, "Acid Reflux", result.Results[1].Condition)
	assert.InDelta(t, 30.0, result.Results[1].Score, 1e-9)
	assert.Equal(t, "v1", result.DatasetVersion)
	assert.Equal(t, domain.DefaultWeights(), result.Weights)
	assert.Empty(t, result.UnknownSymptoms)
	assert.False(t, result.CacheHit)
	assert.Empty(t, result.AnalysisID)
}

func TestAnalyzeEmptySelection(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.Analyze(context.Background(), &AnalyzeParams{})
	require.NoError(t, err)
	assert.Empty(t, result.Results)
	assert.NotNil(t, result.Results)

	withZeros, err := svc.Analyze(context.Background(), &AnalyzeParams{IncludeZero: true})
	require.NoError(t, err)
	require.Len(t, withZeros.Results, 3)
	for _, r := range withZeros.Results {
		assert.Zero(t, r.Score)
	}
}

func TestAnalyzeReportsUnknownSymptoms(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.Analyze(context.Background(), &AnalyzeParams{
		Selection: []string{"heartburn", "made_up", " heartburn ", "made_up"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"heartburn", "made_up"}, result.Selection)
	assert.Equal(t, []string{"made_up"}, result.UnknownSymptoms)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "Acid Reflux", result.Results[0].Condition)
}

func TestAnalyzeCategoryScope(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.Analyze(context.Background(), &AnalyzeParams{
		Selection: []string{"cough_productive"},
		Category:  "digestive",
	})
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "Acid Reflux", result.Results[0].Condition)

	_, err = svc.Analyze(context.Background(), &AnalyzeParams{Category: "dermatology"})
	var validationErr *domain.ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "category", validationErr.Field)
}

func TestAnalyzeLimit(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.Analyze(context.Background(), &AnalyzeParams{
		Selection: []string{"cough_productive"},
		Limit:     1,
	})
	require.NoError(t, err)
	require.Len(t, result.Results, 1)

	_, err = svc.Analyze(context.Background(), &AnalyzeParams{Limit: -1})
	assert.Error(t, err)
}

func TestAnalyzeUsesCache(t *testing.T) {
	cache := newMapCache()
	svc, _ := newTestService(t, WithResultCache(cache))
	params := &AnalyzeParams{Selection: []string{"cough_productive", "heartburn"}}

	first, err := svc.Analyze(context.Background(), params)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.Len(t, cache.entries, 1)

	// Same set in a different order hits the same entry.
	second, err := svc.Analyze(context.Background(), &AnalyzeParams{Selection: []string{"heartburn", "cough_productive"}})
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Results, second.Results)

	// A category scope is a different key.
	_, err = svc.Analyze(context.Background(), &AnalyzeParams{Selection: params.Selection, Category: "digestive"})
	require.NoError(t, err)
	assert.Len(t, cache.entries, 2)
}

func TestAnalyzeCacheKeyTracksScorerParameters(t *testing.T) {
	cache := newMapCache()
	logger, _ := test.NewNullLogger()
	ds := categorisedDataset()

	weighted, err := NewLikelihoodScorer(domain.Weights{Node: 0.7, Edge: 0.3})
	require.NoError(t, err)

	a := NewAnalysisService(logger, ds, newTestScorer(t), WithResultCache(cache))
	b := NewAnalysisService(logger, ds, weighted, WithResultCache(cache))

	sel := &AnalyzeParams{Selection: []string{"wheeze_localised", "cough_productive"}}
	ra, err := a.Analyze(context.Background(), sel)
	require.NoError(t, err)
	rb, err := b.Analyze(context.Background(), sel)
	require.NoError(t, err)

	assert.False(t, rb.CacheHit)
	assert.NotEqual(t, ra.Results[0].Score, rb.Results[0].Score)
}

func TestAnalyzeCacheWriteFailureIsNotFatal(t *testing.T) {
	cache := newMapCache()
	cache.setErr = errors.New("redis down")
	svc, hook := newTestService(t, WithResultCache(cache))

	_, err := svc.Analyze(context.Background(), &AnalyzeParams{Selection: []string{"heartburn"}})
	require.NoError(t, err)

	warned := false
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestAnalyzePersist(t *testing.T) {
	recorder := newMemoryRecorder()
	svc, _ := newTestService(t, WithAnalysisRecorder(recorder))

	result, err := svc.Analyze(context.Background(), &AnalyzeParams{
		Selection: []string{"heartburn"},
		Persist:   true,
		ClientID:  "client-1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.AnalysisID)

	record, err := svc.GetAnalysis(context.Background(), "client-1", result.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, "client-1", record.ClientID)

	_, err = svc.GetAnalysis(context.Background(), "client-2", result.AnalysisID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, []string{"heartburn"}, record.Selection)
	assert.Equal(t, result.Results, record.Results)
	assert.Equal(t, "v1", record.DatasetVersion)
}

func TestAnalyzePersistErrors(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Analyze(context.Background(), &AnalyzeParams{Persist: true})
	var validationErr *domain.ValidationError
	assert.True(t, errors.As(err, &validationErr))

	recorder := newMemoryRecorder()
	recorder.err = errors.New("db down")
	svc, _ = newTestService(t, WithAnalysisRecorder(recorder))
	_, err = svc.Analyze(context.Background(), &AnalyzeParams{Persist: true})
	assert.ErrorContains(t, err, "saving analysis")
}

func TestGetAnalysis(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GetAnalysis(context.Background(), "c", "3f0e8c36-6c0b-4a57-9d8b-8d0f8f3c9a10")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	svc, _ = newTestService(t, WithAnalysisRecorder(newMemoryRecorder()))
	_, err = svc.GetAnalysis(context.Background(), "c", "not-a-uuid")
	var validationErr *domain.ValidationError
	assert.True(t, errors.As(err, &validationErr))

	_, err = svc.GetAnalysis(context.Background(), "c", "3f0e8c36-6c0b-4a57-9d8b-8d0f8f3c9a10")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListAnalyses(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.ListAnalyses(context.Background(), "", 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	svc, _ = newTestService(t, WithAnalysisRecorder(newMemoryRecorder()))
	ctx := context.Background()
	for _, client := range []string{"a", "b", "a"} {
		_, err := svc.Analyze(ctx, &AnalyzeParams{Selection: []string{"nausea"}, Persist: true, ClientID: client})
		require.NoError(t, err)
	}

	records, err := svc.ListAnalyses(ctx, "a", 0)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	records, err = svc.ListAnalyses(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].ClientID)

	_, err = svc.ListAnalyses(ctx, "", maxHistoryLimit+1)
	var validationErr *domain.ValidationError
	assert.True(t, errors.As(err, &validationErr))
}

func TestAnalyzeConcurrentCallers(t *testing.T) {
	svc, _ := newTestService(t, WithResultCache(newMapCache()))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.Analyze(context.Background(), &AnalyzeParams{
				Selection: []string{"wheeze_localised", "cough_productive"},
			})
			assert.NoError(t, err)
			assert.Equal(t, "Bronchitis", result.Results[0].Condition)
		}()
	}
	wg.Wait()
}
