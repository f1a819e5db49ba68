package domain

import (
	"context"
)

// ResultCache stores ranked results keyed by an analysis fingerprint.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]ScoreResult, bool)
	Set(ctx context.Context, key string, results []ScoreResult) error
}

// AnalysisRecorder persists analyses for later retrieval.
type AnalysisRecorder interface {
	Create(ctx context.Context, record *AnalysisRecord) error
	GetByID(ctx context.Context, id string) (*AnalysisRecord, error)
	ListRecent(ctx context.Context, clientID string, limit int) ([]*AnalysisRecord, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	GetScoringConfig() *ScoringConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetDatabaseURL() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
