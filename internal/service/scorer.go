package service

import (
	"fmt"
	"math"
	"sort"

	"github.com/symptom-likelihood-server/internal/domain"
)

// LikelihoodScorer ranks conditions by how well their symptom graphs match a
// selection. It holds only configuration and is safe for concurrent use.
type LikelihoodScorer struct {
	weights          domain.Weights
	severityWeighted bool
}

// ScorerOption configures a LikelihoodScorer.
type ScorerOption func(*LikelihoodScorer)

// WithSeverityWeighting weights node evidence by node severity
// (low=1, medium=2, high=3) instead of counting nodes equally.
func WithSeverityWeighting(enabled bool) ScorerOption {
	return func(s *LikelihoodScorer) {
		s.severityWeighted = enabled
	}
}

// NewLikelihoodScorer creates a scorer with the given node/edge split.
func NewLikelihoodScorer(weights domain.Weights, opts ...ScorerOption) (*LikelihoodScorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	s := &LikelihoodScorer{weights: weights}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Weights returns the scorer's node/edge split.
func (s *LikelihoodScorer) Weights() domain.Weights { return s.weights }

// SeverityWeighted reports whether node evidence is severity weighted.
func (s *LikelihoodScorer) SeverityWeighted() bool { return s.severityWeighted }

// Fingerprint identifies the scoring parameters for cache keys.
func (s *LikelihoodScorer) Fingerprint() string {
	return fmt.Sprintf("n%g:e%g:s%t", s.weights.Node, s.weights.Edge, s.severityWeighted)
}

// Score returns one result per condition in the dataset, sorted by score
// descending with ties kept in dataset order. Unknown ids match nothing.
func (s *LikelihoodScorer) Score(ds *domain.Dataset, selection []string) []domain.ScoreResult {
	set := domain.NewSelection(selection...).Set()
	results := make([]domain.ScoreResult, 0, ds.Len())
	for i := 0; i < ds.Len(); i++ {
		results = append(results, s.scoreCondition(ds.Condition(i), set))
	}
	Rank(results)
	return results
}

// ScoreConditions scores an explicit subset of conditions, for example one
// category, with the same ranking rules as Score.
func (s *LikelihoodScorer) ScoreConditions(conditions []domain.Condition, selection []string) []domain.ScoreResult {
	set := domain.NewSelection(selection...).Set()
	results := make([]domain.ScoreResult, 0, len(conditions))
	for i := range conditions {
		results = append(results, s.scoreCondition(&conditions[i], set))
	}
	Rank(results)
	return results
}

func (s *LikelihoodScorer) scoreCondition(c *domain.Condition, selected map[string]struct{}) domain.ScoreResult {
	result := domain.ScoreResult{
		Condition:      c.Name,
		Category:       c.Category,
		TotalNodeCount: len(c.Nodes),
		TotalEdgeCount: len(c.Edges),
		MatchedNodes:   []string{},
	}

	var matchedWeight, totalWeight float64
	for _, n := range c.Nodes {
		w := 1.0
		if s.severityWeighted {
			w = n.Severity.Weight()
		}
		totalWeight += w
		if _, ok := selected[n.ID]; ok {
			matchedWeight += w
			result.MatchedNodeCount++
			result.MatchedNodes = append(result.MatchedNodes, n.ID)
		}
	}

	for _, e := range c.Edges {
		_, from := selected[e.From]
		_, to := selected[e.To]
		if from && to {
			result.MatchedEdgeCount++
		}
	}

	// Without node evidence there is nothing to rank on; the neutral edge
	// term must not lift an edgeless condition above zero.
	if result.MatchedNodeCount == 0 || totalWeight == 0 {
		return result
	}

	nodeScore := matchedWeight / totalWeight
	edgeScore := 1.0
	if result.TotalEdgeCount > 0 {
		edgeScore = float64(result.MatchedEdgeCount) / float64(result.TotalEdgeCount)
	}

	score := (nodeScore*s.weights.Node + edgeScore*s.weights.Edge) * 100
	result.Score = math.Max(0, math.Min(100, score))
	return result
}

// Rank sorts results by score descending; equal scores keep their order.
func Rank(results []domain.ScoreResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

// FilterNonZero drops results with a zero score.
func FilterNonZero(results []domain.ScoreResult) []domain.ScoreResult {
	out := make([]domain.ScoreResult, 0, len(results))
	for _, r := range results {
		if r.Score > 0 {
			out = append(out, r)
		}
	}
	return out
}

// TopN returns at most n results; n <= 0 returns all of them.
func TopN(results []domain.ScoreResult, n int) []domain.ScoreResult {
	if n <= 0 || n >= len(results) {
		return results
	}
	return results[:n]
}
