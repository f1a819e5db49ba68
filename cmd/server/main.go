package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/symptom-likelihood-server/internal/api"
	"github.com/symptom-likelihood-server/internal/cache"
	"github.com/symptom-likelihood-server/internal/config"
	"github.com/symptom-likelihood-server/internal/database"
	"github.com/symptom-likelihood-server/internal/dataset"
	"github.com/symptom-likelihood-server/internal/domain"
	"github.com/symptom-likelihood-server/internal/feedback"
	"github.com/symptom-likelihood-server/internal/logging"
	"github.com/symptom-likelihood-server/internal/repository"
	"github.com/symptom-likelihood-server/internal/service"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	if err := run(ctx, configManager, logger); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
	logger.Info("Server stopped")
}

func run(ctx context.Context, configManager *config.Manager, logger *logrus.Logger) error {
	cfg := configManager.GetConfig()

	loader := dataset.NewLoader(logger, dataset.WithLenient(cfg.Scoring.Lenient))
	ds, err := loader.LoadPath(cfg.Scoring.DatasetPath)
	if err != nil {
		return err
	}

	scorer, err := service.NewLikelihoodScorer(cfg.Scoring.Weights(), service.WithSeverityWeighting(cfg.Scoring.SeverityWeighted))
	if err != nil {
		return err
	}

	// Schema first, so both the pool and the feedback store see current tables.
	migrator, err := database.NewMigrationRunner(configManager.GetDatabaseURL(), cfg.Database.MigrationsPath, logger)
	if err != nil {
		return err
	}
	if err := migrator.Up(ctx); err != nil {
		migrator.Close()
		return err
	}
	migrator.Close()

	db, err := database.NewConnection(ctx, database.ConfigFromDomain(cfg.Database), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	feedbackStore, err := feedback.NewPostgresStoreFromURL(configManager.GetDatabaseURL())
	if err != nil {
		return err
	}
	defer feedbackStore.Close()

	analyses := repository.NewAnalysisRepository(db.Pool, logger)
	healthChecks := []api.Option{api.WithHealthCheck("database", db.Health)}

	resultCache, redisCache := buildCache(ctx, cfg.Cache, logger)
	if redisCache != nil {
		defer redisCache.Close()
		healthChecks = append(healthChecks, api.WithHealthCheck("redis", redisCache.Ping))
	}

	analysis := service.NewAnalysisService(logger, ds, scorer,
		service.WithResultCache(resultCache),
		service.WithAnalysisRecorder(analyses),
	)
	feedbackSvc := service.NewFeedbackService(logger, ds, feedbackStore)

	if cfg.Database.RetentionDays > 0 {
		go pruneAnalyses(ctx, analyses, cfg.Database.RetentionDays, logger)
	}

	logger.WithFields(logrus.Fields{
		"host":            cfg.Server.Host,
		"port":            cfg.Server.Port,
		"dataset_version": ds.Version(),
		"conditions":      ds.Len(),
	}).Info("Starting Symptom Likelihood Server")

	server := api.NewServer(configManager, logger, analysis,
		append(healthChecks, api.WithFeedbackService(feedbackSvc))...)
	return server.Start(ctx)
}

// buildCache returns the memory cache, tiered over Redis when one is
// configured and reachable.
func buildCache(ctx context.Context, cfg domain.CacheConfig, logger *logrus.Logger) (domain.ResultCache, *cache.RedisCache) {
	memory := cache.NewMemoryCache(cfg.MaxItems, cfg.DefaultTTL)
	if cfg.RedisURL == "" {
		return cache.NewTieredCache(memory, nil, logger), nil
	}

	redisCache, err := cache.NewRedisCacheFromConfig(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, caching in memory only")
		return cache.NewTieredCache(memory, nil, logger), nil
	}
	return cache.NewTieredCache(memory, redisCache, logger), redisCache
}

func pruneAnalyses(ctx context.Context, repo *repository.AnalysisRepository, days int, logger *logrus.Logger) {
	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()

	for {
		removed, err := repo.DeleteOlderThan(ctx, days)
		if err != nil {
			logger.WithError(err).Warn("Failed to prune analyses")
		} else if removed > 0 {
			logger.WithField("removed", removed).Info("Pruned old analyses")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
