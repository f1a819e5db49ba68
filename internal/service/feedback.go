package service

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/symptom-likelihood-server/internal/domain"
	"github.com/symptom-likelihood-server/internal/feedback"
)

const (
	defaultFeedbackPageSize = 50
	maxFeedbackPageSize     = 500
)

// FeedbackService records user verdicts on analyses against the dataset
// they were made with.
type FeedbackService struct {
	logger  *logrus.Logger
	dataset *domain.Dataset
	store   feedback.Store
}

// NewFeedbackService creates a feedback service over store.
func NewFeedbackService(logger *logrus.Logger, dataset *domain.Dataset, store feedback.Store) *FeedbackService {
	return &FeedbackService{logger: logger, dataset: dataset, store: store}
}

// FeedbackPage is one page of stored feedback.
type FeedbackPage struct {
	Total    int64                `json:"total"`
	Limit    int                  `json:"limit"`
	Offset   int                  `json:"offset"`
	Feedback []*feedback.Feedback `json:"feedback"`
}

// ImportRejection names an export entry that failed validation.
type ImportRejection struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// ImportSummary reports the outcome of a feedback import.
type ImportSummary struct {
	Imported int               `json:"imported"`
	Skipped  int               `json:"skipped"`
	Rejected []ImportRejection `json:"rejected"`
}

// Submit validates fb against the dataset and stores it, replacing any
// earlier verdict for the same selection and category.
func (s *FeedbackService) Submit(ctx context.Context, fb *feedback.Feedback) error {
	if err := s.validate(fb); err != nil {
		return err
	}
	fb.DatasetVersion = s.dataset.Version()

	if err := s.store.Save(ctx, fb); err != nil {
		return fmt.Errorf("saving feedback: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"feedback_id":    fb.ID,
		"selection_size": len(fb.Selection),
		"user_agreed":    fb.UserAgreed,
	}).Info("Feedback recorded")
	return nil
}

// validate normalises fb and checks it against the loaded dataset.
func (s *FeedbackService) validate(fb *feedback.Feedback) error {
	if err := fb.Normalize(); err != nil {
		return err
	}
	if fb.Category != "" {
		if _, ok := s.dataset.Category(fb.Category); !ok {
			return domain.NewValidationError("category", "unknown category", fb.Category)
		}
	}
	if !s.dataset.HasCondition(fb.SuggestedCondition) {
		return domain.NewValidationError("suggested_condition", "unknown condition", fb.SuggestedCondition)
	}
	if !s.dataset.HasCondition(fb.ConfirmedCondition) {
		return domain.NewValidationError("confirmed_condition", "unknown condition", fb.ConfirmedCondition)
	}
	if fb.TopScore < 0 || fb.TopScore > 100 || math.IsNaN(fb.TopScore) {
		return domain.NewValidationError("top_score", "must be between 0 and 100", fb.TopScore)
	}
	return nil
}

// List returns a page of feedback, newest first. A zero limit selects the
// default page size.
func (s *FeedbackService) List(ctx context.Context, limit, offset int) (*FeedbackPage, error) {
	if limit < 0 || limit > maxFeedbackPageSize {
		return nil, domain.NewValidationError("limit", fmt.Sprintf("must be between 0 and %d", maxFeedbackPageSize), limit)
	}
	if offset < 0 {
		return nil, domain.NewValidationError("offset", "must not be negative", offset)
	}
	if limit == 0 {
		limit = defaultFeedbackPageSize
	}

	entries, err := s.store.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing feedback: %w", err)
	}
	total, err := s.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting feedback: %w", err)
	}
	return &FeedbackPage{Total: total, Limit: limit, Offset: offset, Feedback: entries}, nil
}

// Delete removes one feedback entry.
func (s *FeedbackService) Delete(ctx context.Context, id int64) error {
	return s.store.Delete(ctx, id)
}

// Export writes every stored entry as a feedback export document.
func (s *FeedbackService) Export(ctx context.Context, w io.Writer) error {
	return s.store.ExportJSON(ctx, w)
}

// ExportFile writes the export document to path. The file is removed again
// when the export or the final close fails.
func (s *FeedbackService) ExportFile(ctx context.Context, path string) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(path)
		}
	}()

	if err := s.Export(ctx, file); err != nil {
		file.Close()
		return fmt.Errorf("exporting feedback: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing export file: %w", err)
	}
	return nil
}

// Lookup returns the verdict recorded for a selection and category, or nil.
func (s *FeedbackService) Lookup(ctx context.Context, selection []string, category string) (*feedback.Feedback, error) {
	if len(domain.NewSelection(selection...)) == 0 {
		return nil, domain.NewValidationError("selection", "at least one symptom id is required", selection)
	}
	return s.store.Get(ctx, selection, category)
}

// Import loads a feedback export document. Every entry is validated like a
// submission; invalid entries are rejected and the rest still load. Entries
// already present are skipped.
func (s *FeedbackService) Import(ctx context.Context, r io.Reader) (*ImportSummary, error) {
	export, err := feedback.DecodeExport(r)
	if err != nil {
		return nil, fmt.Errorf("importing feedback: %w", err)
	}

	summary := &ImportSummary{Rejected: make([]ImportRejection, 0)}
	for i, fb := range export.Feedback {
		if fb == nil {
			summary.Rejected = append(summary.Rejected, ImportRejection{Index: i, Reason: "empty entry"})
			continue
		}
		if err := s.validate(fb); err != nil {
			summary.Rejected = append(summary.Rejected, ImportRejection{Index: i, Reason: err.Error()})
			continue
		}

		existing, err := s.store.Get(ctx, fb.Selection, fb.Category)
		if err != nil {
			return summary, fmt.Errorf("importing feedback: checking entry %d: %w", i, err)
		}
		if existing != nil {
			summary.Skipped++
			continue
		}

		fb.ID = 0
		if fb.DatasetVersion == "" {
			fb.DatasetVersion = s.dataset.Version()
		}
		if err := s.store.Save(ctx, fb); err != nil {
			return summary, fmt.Errorf("importing feedback: saving entry %d: %w", i, err)
		}
		summary.Imported++
	}

	s.logger.WithFields(logrus.Fields{
		"imported": summary.Imported,
		"skipped":  summary.Skipped,
		"rejected": len(summary.Rejected),
	}).Info("Feedback imported")
	return summary, nil
}
