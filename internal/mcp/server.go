// Package mcp exposes the likelihood scorer and feedback store as MCP tools.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/symptom-likelihood-server/internal/domain"
	"github.com/symptom-likelihood-server/internal/service"
)

// Server wraps the MCP SDK server with the symptom tools registered.
type Server struct {
	MCPServer *mcp.Server
	analysis  *service.AnalysisService
	feedback  *service.FeedbackService
	exportDir string
	logger    *logrus.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithFeedbackService registers the feedback tools.
func WithFeedbackService(feedback *service.FeedbackService) Option {
	return func(s *Server) {
		s.feedback = feedback
	}
}

// WithExportDir sets where export_feedback writes its files.
func WithExportDir(dir string) Option {
	return func(s *Server) {
		s.exportDir = dir
	}
}

// NewServer creates an MCP server. Feedback tools are only registered when
// a feedback service is configured.
func NewServer(info domain.MCPConfig, logger *logrus.Logger, analysis *service.AnalysisService, opts ...Option) *Server {
	name := info.ServerName
	if name == "" {
		name = "symptom-likelihood-server"
	}
	version := info.ServerVersion
	if version == "" {
		version = "v0.1.0"
	}

	s := &Server{
		MCPServer: mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil),
		analysis:  analysis,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerCatalogTools()
	s.registerAnalysisTools()
	if s.feedback != nil {
		s.registerFeedbackTools()
	}
	return s
}

// Run serves MCP over stdin/stdout until ctx is cancelled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting MCP server on stdio")
	if err := s.MCPServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}
