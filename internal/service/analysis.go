package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/symptom-likelihood-server/internal/domain"
)

// AnalysisService runs likelihood analyses over the loaded dataset, with
// optional result caching and analysis history.
type AnalysisService struct {
	logger   *logrus.Logger
	dataset  *domain.Dataset
	scorer   *LikelihoodScorer
	cache    domain.ResultCache
	recorder domain.AnalysisRecorder
}

// AnalysisOption configures an AnalysisService.
type AnalysisOption func(*AnalysisService)

// WithResultCache caches ranked results per dataset, weights and selection.
func WithResultCache(cache domain.ResultCache) AnalysisOption {
	return func(s *AnalysisService) {
		s.cache = cache
	}
}

// WithAnalysisRecorder enables persisting analyses on request.
func WithAnalysisRecorder(recorder domain.AnalysisRecorder) AnalysisOption {
	return func(s *AnalysisService) {
		s.recorder = recorder
	}
}

// NewAnalysisService creates an analysis service.
func NewAnalysisService(logger *logrus.Logger, dataset *domain.Dataset, scorer *LikelihoodScorer, opts ...AnalysisOption) *AnalysisService {
	s := &AnalysisService{
		logger:  logger,
		dataset: dataset,
		scorer:  scorer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AnalyzeParams describes one analysis request.
type AnalyzeParams struct {
	Selection   []string `json:"selection"`
	Category    string   `json:"category,omitempty"`
	IncludeZero bool     `json:"include_zero,omitempty"`
	Limit       int      `json:"limit,omitempty"`
	Persist     bool     `json:"persist,omitempty"`
	ClientID    string   `json:"client_id,omitempty"`
}

// AnalyzeResult is the ranked outcome of an analysis.
type AnalyzeResult struct {
	AnalysisID      string               `json:"analysis_id,omitempty"`
	Selection       []string             `json:"selection"`
	UnknownSymptoms []string             `json:"unknown_symptoms"`
	Results         []domain.ScoreResult `json:"results"`
	Weights         domain.Weights       `json:"weights"`
	DatasetVersion  string               `json:"dataset_version"`
	CacheHit        bool                 `json:"cache_hit"`
	ProcessingTime  time.Duration        `json:"-"`
	ProcessingMs    int64                `json:"processing_time_ms"`
}

// Dataset returns the dataset the service scores against.
func (s *AnalysisService) Dataset() *domain.Dataset { return s.dataset }

// Weights returns the scorer's node/edge split.
func (s *AnalysisService) Weights() domain.Weights { return s.scorer.Weights() }

// Analyze scores the selection. Unknown ids are reported, never rejected.
// An empty selection yields no results unless IncludeZero is set, in which
// case every condition is returned with a zero score.
func (s *AnalysisService) Analyze(ctx context.Context, params *AnalyzeParams) (*AnalyzeResult, error) {
	start := time.Now()

	if params.Limit < 0 {
		return nil, domain.NewValidationError("limit", "must not be negative", params.Limit)
	}
	if params.Category != "" {
		if _, ok := s.dataset.Category(params.Category); !ok {
			return nil, domain.NewValidationError("category", "unknown category", params.Category)
		}
	}

	selection := domain.NewSelection(params.Selection...)
	unknown := make([]string, 0)
	for _, id := range selection {
		if !s.dataset.HasSymptom(id) {
			unknown = append(unknown, id)
		}
	}

	key := s.cacheKey(params.Category, selection)
	results, hit := s.lookup(ctx, key)
	if !hit {
		if params.Category != "" {
			results = s.scorer.ScoreConditions(s.dataset.ConditionsInCategory(params.Category), selection)
		} else {
			results = s.scorer.Score(s.dataset, selection)
		}
		s.store(ctx, key, results)
	}

	if !params.IncludeZero {
		results = FilterNonZero(results)
	}
	results = TopN(results, params.Limit)

	elapsed := time.Since(start)
	result := &AnalyzeResult{
		Selection:       selection,
		UnknownSymptoms: unknown,
		Results:         results,
		Weights:         s.scorer.Weights(),
		DatasetVersion:  s.dataset.Version(),
		CacheHit:        hit,
		ProcessingTime:  elapsed,
		ProcessingMs:    elapsed.Milliseconds(),
	}

	if params.Persist {
		if err := s.persist(ctx, params, result); err != nil {
			return nil, err
		}
	}

	fields := logrus.Fields{
		"selection_size": len(selection),
		"unknown_ids":    len(unknown),
		"result_count":   len(results),
		"category":       params.Category,
		"cache_hit":      hit,
		"processing_ms":  result.ProcessingMs,
	}
	if len(results) > 0 {
		fields["top_condition"] = results[0].Condition
		fields["top_score"] = results[0].Score
	}
	s.logger.WithFields(fields).Info("Symptom analysis completed")

	return result, nil
}

// GetAnalysis returns a persisted analysis owned by clientID. Records of
// other clients are reported as not found.
func (s *AnalysisService) GetAnalysis(ctx context.Context, clientID, id string) (*domain.AnalysisRecord, error) {
	if s.recorder == nil {
		return nil, fmt.Errorf("analysis history is not configured: %w", domain.ErrNotFound)
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.NewValidationError("id", "must be a UUID", id)
	}
	record, err := s.recorder.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.ClientID != clientID {
		return nil, fmt.Errorf("analysis %s not found: %w", id, domain.ErrNotFound)
	}
	return record, nil
}

// maxHistoryLimit caps one history listing.
const maxHistoryLimit = 200

// ListAnalyses returns the newest persisted analyses, optionally for one
// client. An empty clientID lists every client and is meant for operator
// tooling, never for request handlers. A zero limit selects the repository
// default.
func (s *AnalysisService) ListAnalyses(ctx context.Context, clientID string, limit int) ([]*domain.AnalysisRecord, error) {
	if s.recorder == nil {
		return nil, fmt.Errorf("analysis history is not configured: %w", domain.ErrNotFound)
	}
	if limit < 0 || limit > maxHistoryLimit {
		return nil, domain.NewValidationError("limit", fmt.Sprintf("must be between 0 and %d", maxHistoryLimit), limit)
	}
	return s.recorder.ListRecent(ctx, clientID, limit)
}

func (s *AnalysisService) persist(ctx context.Context, params *AnalyzeParams, result *AnalyzeResult) error {
	if s.recorder == nil {
		return domain.NewValidationError("persist", "analysis history is not configured", true)
	}

	record := &domain.AnalysisRecord{
		ID:               uuid.New().String(),
		ClientID:         params.ClientID,
		Selection:        result.Selection,
		Category:         params.Category,
		Results:          result.Results,
		Weights:          result.Weights,
		DatasetVersion:   result.DatasetVersion,
		ProcessingTimeMs: int(result.ProcessingTime.Milliseconds()),
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.recorder.Create(ctx, record); err != nil {
		return fmt.Errorf("saving analysis: %w", err)
	}
	result.AnalysisID = record.ID
	return nil
}

func (s *AnalysisService) cacheKey(category string, selection domain.Selection) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s",
		s.dataset.Version(), s.scorer.Fingerprint(), category, selection.Key())))
	return "analysis:" + hex.EncodeToString(sum[:])
}

func (s *AnalysisService) lookup(ctx context.Context, key string) ([]domain.ScoreResult, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(ctx, key)
}

func (s *AnalysisService) store(ctx context.Context, key string, results []domain.ScoreResult) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, results); err != nil {
		s.logger.WithError(err).Warn("Failed to cache analysis results")
	}
}
