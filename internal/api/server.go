package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/symptom-likelihood-server/internal/domain"
	"github.com/symptom-likelihood-server/internal/middleware"
	"github.com/symptom-likelihood-server/internal/service"
)

// HealthCheck probes one dependency for the health endpoint.
type HealthCheck func(ctx context.Context) error

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	logger        *logrus.Logger
	analysis      *service.AnalysisService
	feedback      *service.FeedbackService
	checks        map[string]HealthCheck
	router        *gin.Engine
	server        *http.Server
	upgrader      websocket.Upgrader
	version       string
}

// Option configures a Server.
type Option func(*Server)

// WithFeedbackService enables the feedback routes.
func WithFeedbackService(feedback *service.FeedbackService) Option {
	return func(s *Server) {
		s.feedback = feedback
	}
}

// WithHealthCheck adds a named dependency probe to /health.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) {
		s.checks[name] = check
	}
}

// WithVersion sets the version reported by /health.
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, logger *logrus.Logger, analysis *service.AnalysisService, opts ...Option) *Server {
	cfg := configManager.GetConfig()

	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	// Client IPs key the rate limiter, so forwarded headers are only
	// honoured from configured proxies.
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		logger.WithError(err).Warn("Invalid trusted proxies, ignoring forwarded headers")
		_ = router.SetTrustedProxies(nil)
	}

	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger())
	router.Use(middleware.CORS())
	if cfg.Server.RateLimit > 0 {
		router.Use(middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst).Middleware())
	}

	server := &Server{
		configManager: configManager,
		logger:        logger,
		analysis:      analysis,
		checks:        make(map[string]HealthCheck),
		router:        router,
		version:       cfg.MCP.ServerVersion,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(server)
	}

	server.setupRoutes(cfg.Server.RequestTimeout)

	return server
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		var err error
		if cfg.TLSEnabled {
			err = s.server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err, ok := <-serverErr:
		if ok {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes(requestTimeout time.Duration) {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")

	// The stack socket is long-lived and sits outside the request timeout.
	v1.GET("/stack/ws", s.handleStackSocket)

	api := v1.Group("", middleware.RequestTimeout(requestTimeout))
	{
		api.GET("/categories", s.handleListCategories)
		api.GET("/conditions", s.handleListConditions)
		api.GET("/symptoms", s.handleListSymptoms)
		api.POST("/analyze", s.handleAnalyze)
		api.GET("/analyses", s.handleListAnalyses)
		api.GET("/analyses/:id", s.handleGetAnalysis)

		api.POST("/feedback", s.requireFeedback, s.handleSubmitFeedback)
		api.GET("/feedback", s.requireFeedback, s.handleListFeedback)
		api.GET("/feedback/export", s.requireFeedback, s.handleExportFeedback)
		api.DELETE("/feedback/:id", s.requireFeedback, s.handleDeleteFeedback)
	}
}
