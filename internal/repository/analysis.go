package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/symptom-likelihood-server/internal/domain"
)

const defaultListLimit = 20

// AnalysisRepository persists analysis records in PostgreSQL.
type AnalysisRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewAnalysisRepository creates a new analysis repository
func NewAnalysisRepository(db *pgxpool.Pool, logger *logrus.Logger) *AnalysisRepository {
	return &AnalysisRepository{
		db:  db,
		log: logger,
	}
}

// Create inserts a new analysis record
func (r *AnalysisRepository) Create(ctx context.Context, record *domain.AnalysisRecord) error {
	id, err := uuid.Parse(record.ID)
	if err != nil {
		return domain.NewValidationError("id", "must be a UUID", record.ID)
	}
	selection, err := json.Marshal(record.Selection)
	if err != nil {
		return fmt.Errorf("encoding selection: %w", err)
	}
	results, err := json.Marshal(record.Results)
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}

	query := `
		INSERT INTO analyses (
			id, client_id, selection, category, results,
			node_weight, edge_weight, dataset_version, processing_time_ms, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)`

	_, err = r.db.Exec(ctx, query,
		id,
		record.ClientID,
		selection,
		record.Category,
		results,
		record.Weights.Node,
		record.Weights.Edge,
		record.DatasetVersion,
		record.ProcessingTimeMs,
		record.CreatedAt,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"analysis_id": record.ID,
			"error":       err,
		}).Error("Failed to create analysis")
		return fmt.Errorf("creating analysis: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"analysis_id":  record.ID,
		"selection":    len(record.Selection),
		"result_count": len(record.Results),
	}).Info("Analysis stored")

	return nil
}

const analysisColumns = `id, client_id, selection, category, results,
	node_weight, edge_weight, dataset_version, processing_time_ms, created_at`

// GetByID retrieves an analysis by its ID
func (r *AnalysisRepository) GetByID(ctx context.Context, id string) (*domain.AnalysisRecord, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, domain.NewValidationError("id", "must be a UUID", id)
	}
	row := r.db.QueryRow(ctx, "SELECT "+analysisColumns+" FROM analyses WHERE id = $1", parsed)

	record, err := scanAnalysis(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("analysis %s not found: %w", id, domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"analysis_id": id,
			"error":       err,
		}).Error("Failed to get analysis by ID")
		return nil, fmt.Errorf("getting analysis by ID: %w", err)
	}

	return record, nil
}

// ListRecent returns the newest analyses, optionally for one client.
func (r *AnalysisRepository) ListRecent(ctx context.Context, clientID string, limit int) ([]*domain.AnalysisRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := "SELECT " + analysisColumns + " FROM analyses"
	args := []interface{}{}
	if clientID != "" {
		query += " WHERE client_id = $1 ORDER BY created_at DESC LIMIT $2"
		args = append(args, clientID, limit)
	} else {
		query += " ORDER BY created_at DESC LIMIT $1"
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing analyses: %w", err)
	}
	defer rows.Close()

	records := make([]*domain.AnalysisRecord, 0)
	for rows.Next() {
		record, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning analysis: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating analyses: %w", err)
	}

	return records, nil
}

// DeleteOlderThan removes analyses created before the cutoff number of days
// ago and returns how many were removed.
func (r *AnalysisRepository) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	tag, err := r.db.Exec(ctx,
		"DELETE FROM analyses WHERE created_at < NOW() - make_interval(days => $1)", days)
	if err != nil {
		return 0, fmt.Errorf("pruning analyses: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanAnalysis(row pgx.Row) (*domain.AnalysisRecord, error) {
	var record domain.AnalysisRecord
	var id uuid.UUID
	var selection, results []byte

	err := row.Scan(
		&id,
		&record.ClientID,
		&selection,
		&record.Category,
		&results,
		&record.Weights.Node,
		&record.Weights.Edge,
		&record.DatasetVersion,
		&record.ProcessingTimeMs,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.ID = id.String()
	if err := json.Unmarshal(selection, &record.Selection); err != nil {
		return nil, fmt.Errorf("decoding selection: %w", err)
	}
	if err := json.Unmarshal(results, &record.Results); err != nil {
		return nil, fmt.Errorf("decoding results: %w", err)
	}
	return &record, nil
}
