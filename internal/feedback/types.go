// Package feedback stores clinician feedback on likelihood analyses: which
// condition the system suggested for a symptom selection and which one the
// user confirmed.
package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/symptom-likelihood-server/internal/domain"
)

// Feedback records a user's verdict on the top suggestion for a selection.
type Feedback struct {
	ID                 int64     `json:"id,omitempty"`
	Selection          []string  `json:"selection"`
	SelectionKey       string    `json:"selection_key"`
	Category           string    `json:"category,omitempty"`
	SuggestedCondition string    `json:"suggested_condition"`
	ConfirmedCondition string    `json:"confirmed_condition"`
	UserAgreed         bool      `json:"user_agreed"`
	TopScore           float64   `json:"top_score,omitempty"`
	DatasetVersion     string    `json:"dataset_version,omitempty"`
	Notes              string    `json:"notes,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Normalize dedupes the selection, derives the selection key and checks the
// required fields. An agreed entry without a confirmed condition confirms
// the suggestion.
func (f *Feedback) Normalize() error {
	selection := domain.NewSelection(f.Selection...)
	if len(selection) == 0 {
		return domain.NewValidationError("selection", "at least one symptom id is required", f.Selection)
	}
	if f.SuggestedCondition == "" {
		return domain.NewValidationError("suggested_condition", "is required", f.SuggestedCondition)
	}
	if f.UserAgreed && f.ConfirmedCondition == "" {
		f.ConfirmedCondition = f.SuggestedCondition
	}
	if f.ConfirmedCondition == "" {
		return domain.NewValidationError("confirmed_condition", "is required unless the user agreed", f.ConfirmedCondition)
	}

	f.Selection = selection
	f.SelectionKey = selection.Key()
	return nil
}

// Store defines the interface for feedback storage operations.
type Store interface {
	// Save stores or updates feedback. Entries are unique per selection
	// (order-independent) and category.
	Save(ctx context.Context, feedback *Feedback) error

	// Get returns the feedback for a selection and category, or nil if none.
	Get(ctx context.Context, selection []string, category string) (*Feedback, error)

	// List returns feedback entries, newest first.
	List(ctx context.Context, limit, offset int) ([]*Feedback, error)

	// Count returns the total number of feedback entries.
	Count(ctx context.Context) (int64, error)

	// Delete removes a feedback entry by ID.
	Delete(ctx context.Context, id int64) error

	// ExportJSON writes all feedback as a FeedbackExport document.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON reads a FeedbackExport document. Entries that already
	// exist or fail Normalize are skipped.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Close closes the store and releases resources.
	Close() error
}

// FeedbackExport represents the JSON export format.
type FeedbackExport struct {
	Version    string      `json:"version"`
	ExportedAt time.Time   `json:"exported_at"`
	Count      int         `json:"count"`
	Feedback   []*Feedback `json:"feedback"`
}

const (
	exportVersion = "1.0"

	// maxExportLimit is the maximum number of entries to export at once.
	maxExportLimit = 1000000
)

func writeExport(ctx context.Context, store Store, writer io.Writer) error {
	all, err := store.List(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list feedback: %w", err)
	}

	export := &FeedbackExport{
		Version:    exportVersion,
		ExportedAt: time.Now().UTC(),
		Count:      len(all),
		Feedback:   all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// DecodeExport reads a FeedbackExport document without storing it.
func DecodeExport(reader io.Reader) (*FeedbackExport, error) {
	var export FeedbackExport
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	return &export, nil
}

func readImport(ctx context.Context, store Store, reader io.Reader) (imported int, skipped int, err error) {
	export, err := DecodeExport(reader)
	if err != nil {
		return 0, 0, err
	}

	for _, fb := range export.Feedback {
		if fb == nil || fb.Normalize() != nil {
			skipped++
			continue
		}
		existing, err := store.Get(ctx, fb.Selection, fb.Category)
		if err != nil {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}
		if existing != nil {
			skipped++
			continue
		}

		fb.ID = 0
		if err := store.Save(ctx, fb); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

const feedbackColumns = `id, selection, selection_key, category,
	suggested_condition, confirmed_condition, user_agreed,
	top_score, dataset_version, notes, created_at, updated_at`

// scanFeedback scans a row selected with feedbackColumns.
func scanFeedback(s scanner) (*Feedback, error) {
	fb := &Feedback{}
	var selection []byte

	err := s.Scan(
		&fb.ID, &selection, &fb.SelectionKey, &fb.Category,
		&fb.SuggestedCondition, &fb.ConfirmedCondition, &fb.UserAgreed,
		&fb.TopScore, &fb.DatasetVersion, &fb.Notes, &fb.CreatedAt, &fb.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(selection, &fb.Selection); err != nil {
		return nil, fmt.Errorf("failed to decode selection: %w", err)
	}
	return fb, nil
}
