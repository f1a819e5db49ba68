// Package config provides configuration management for the servers.
// This file contains the lightweight configuration for standalone operation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/symptom-likelihood-server/internal/domain"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external databases and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir string // Base directory for data files

	// Cache settings
	CacheMaxItems int           // Maximum items in memory cache
	CacheTTL      time.Duration // Default cache TTL

	// Scoring
	NodeWeight       float64
	EdgeWeight       float64
	SeverityWeighted bool
	DatasetPath      string // Empty means the embedded dataset
	Lenient          bool   // Skip malformed conditions instead of failing

	// Transport settings
	Transport string // Transport type: stdio

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".symptom-likelihood")

	return &LiteConfig{
		DataDir:       dataDir,
		CacheMaxItems: 1000,
		CacheTTL:      15 * time.Minute,
		NodeWeight:    domain.DefaultNodeWeight,
		EdgeWeight:    domain.DefaultEdgeWeight,
		Transport:     "stdio",
		LogLevel:      "info",
		LogFormat:     "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("SYMPTOM_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := os.Getenv("SYMPTOM_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("SYMPTOM_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}

	if v := os.Getenv("SYMPTOM_NODE_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.NodeWeight = f
		}
	}
	if v := os.Getenv("SYMPTOM_EDGE_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.EdgeWeight = f
		}
	}
	if v := os.Getenv("SYMPTOM_SEVERITY_WEIGHTED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.SeverityWeighted = b
		}
	}
	if v := os.Getenv("SYMPTOM_LENIENT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Lenient = b
		}
	}
	cfg.DatasetPath = os.Getenv("SYMPTOM_DATASET")

	if v := os.Getenv("SYMPTOM_TRANSPORT"); v != "" {
		cfg.Transport = v
	}

	if v := os.Getenv("SYMPTOM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SYMPTOM_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// Weights returns the configured node/edge split.
func (c *LiteConfig) Weights() domain.Weights {
	return domain.Weights{Node: c.NodeWeight, Edge: c.EdgeWeight}
}

// Validate checks the settings that would otherwise fail later at startup.
func (c *LiteConfig) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data directory is required")
	}
	if c.Transport != "stdio" {
		return fmt.Errorf("unsupported transport: %s", c.Transport)
	}
	if err := c.Weights().Validate(); err != nil {
		return fmt.Errorf("scoring: %w", err)
	}
	return nil
}

// Logging returns the logging settings in the shared form.
func (c *LiteConfig) Logging() domain.LoggingConfig {
	// stdout carries the MCP stdio stream, so logs go to stderr.
	return domain.LoggingConfig{Level: c.LogLevel, Format: c.LogFormat, Output: "stderr"}
}

// FeedbackDBPath returns the path to the feedback SQLite database.
func (c *LiteConfig) FeedbackDBPath() string {
	return filepath.Join(c.DataDir, "feedback.db")
}

// ExportDir returns the directory for JSON exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}
