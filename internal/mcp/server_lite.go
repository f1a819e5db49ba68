package mcp

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/symptom-likelihood-server/internal/cache"
	litecfg "github.com/symptom-likelihood-server/internal/config"
	"github.com/symptom-likelihood-server/internal/dataset"
	"github.com/symptom-likelihood-server/internal/domain"
	"github.com/symptom-likelihood-server/internal/feedback"
	"github.com/symptom-likelihood-server/internal/logging"
	"github.com/symptom-likelihood-server/internal/service"
)

// LiteServer is a lightweight MCP server that requires no external databases.
// It uses in-memory caching and SQLite for persistence.
type LiteServer struct {
	config        *litecfg.LiteConfig
	server        *Server
	dataset       *domain.Dataset
	feedbackStore feedback.Store
	cache         *cache.MemoryCache
	logger        *logrus.Logger
}

// LiteServerOption is a functional option for LiteServer.
type LiteServerOption func(*LiteServer) error

// WithFeedbackStore sets a custom feedback store.
func WithFeedbackStore(store feedback.Store) LiteServerOption {
	return func(s *LiteServer) error {
		s.feedbackStore = store
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteServerOption {
	return func(s *LiteServer) error {
		s.logger = logger
		return nil
	}
}

// WithDataset serves ds instead of loading one from the configuration.
func WithDataset(ds *domain.Dataset) LiteServerOption {
	return func(s *LiteServer) error {
		if ds == nil || ds.Len() == 0 {
			return fmt.Errorf("dataset has no conditions")
		}
		s.dataset = ds
		return nil
	}
}

// NewLiteServer creates a new lightweight MCP server instance.
func NewLiteServer(cfg *litecfg.LiteConfig, opts ...LiteServerOption) (*LiteServer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	server := &LiteServer{config: cfg}
	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.logger == nil {
		logger, err := logging.New(cfg.Logging())
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		server.logger = logger
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if server.dataset == nil {
		loader := dataset.NewLoader(server.logger, dataset.WithLenient(cfg.Lenient))
		ds, err := loader.LoadPath(cfg.DatasetPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load dataset: %w", err)
		}
		server.dataset = ds
	}

	scorer, err := service.NewLikelihoodScorer(cfg.Weights(), service.WithSeverityWeighting(cfg.SeverityWeighted))
	if err != nil {
		return nil, fmt.Errorf("failed to create scorer: %w", err)
	}

	server.cache = cache.NewMemoryCache(cfg.CacheMaxItems, cfg.CacheTTL)

	// Initialize feedback store if not provided
	if server.feedbackStore == nil {
		store, err := feedback.NewSQLiteStore(cfg.FeedbackDBPath())
		if err != nil {
			return nil, fmt.Errorf("failed to create feedback store: %w", err)
		}
		server.feedbackStore = store
	}

	analysis := service.NewAnalysisService(server.logger, server.dataset, scorer, service.WithResultCache(server.cache))
	feedbackSvc := service.NewFeedbackService(server.logger, server.dataset, server.feedbackStore)

	server.server = NewServer(
		domain.MCPConfig{ServerName: "symptom-likelihood-server-lite", ServerVersion: "v0.1.0"},
		server.logger,
		analysis,
		WithFeedbackService(feedbackSvc),
		WithExportDir(cfg.ExportDir()),
	)

	server.logger.WithFields(logrus.Fields{
		"dataset_version": server.dataset.Version(),
		"conditions":      server.dataset.Len(),
		"data_dir":        cfg.DataDir,
	}).Info("Lite server initialized successfully")
	return server, nil
}

// Start serves MCP over stdio until ctx is cancelled.
func (s *LiteServer) Start(ctx context.Context) error {
	s.logger.Info("Starting Symptom Likelihood MCP Server (Lite)...")
	return s.server.Run(ctx)
}

// Close cleans up server resources.
func (s *LiteServer) Close() error {
	if s.feedbackStore != nil {
		if err := s.feedbackStore.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close feedback store")
			return err
		}
	}
	return nil
}

// MCPServer returns the wrapped tool server.
func (s *LiteServer) MCPServer() *Server {
	return s.server
}

// GetFeedbackStore returns the feedback store for external access.
func (s *LiteServer) GetFeedbackStore() feedback.Store {
	return s.feedbackStore
}

// GetCache returns the memory cache for external access.
func (s *LiteServer) GetCache() *cache.MemoryCache {
	return s.cache
}
