package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/symptom-likelihood-server/internal/domain"
	"github.com/symptom-likelihood-server/internal/feedback"
	"github.com/symptom-likelihood-server/internal/middleware"
	"github.com/symptom-likelihood-server/internal/service"
)

// AnalyzeRequest is the body of POST /api/v1/analyze.
type AnalyzeRequest struct {
	Selection   []string `json:"selection"`
	Category    string   `json:"category"`
	IncludeZero bool     `json:"include_zero"`
	Limit       int      `json:"limit"`
	Persist     bool     `json:"persist"`
}

// FeedbackRequest is the body of POST /api/v1/feedback.
type FeedbackRequest struct {
	Selection          []string `json:"selection" binding:"required"`
	Category           string   `json:"category"`
	SuggestedCondition string   `json:"suggested_condition" binding:"required"`
	ConfirmedCondition string   `json:"confirmed_condition"`
	UserAgreed         bool     `json:"user_agreed"`
	TopScore           float64  `json:"top_score"`
	Notes              string   `json:"notes"`
}

// handleHealth reports dataset identity and the state of each dependency.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	components := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			components[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	ds := s.analysis.Dataset()
	c.JSON(code, gin.H{
		"status":          status,
		"timestamp":       time.Now().UTC(),
		"version":         s.version,
		"dataset_version": ds.Version(),
		"conditions":      ds.Len(),
		"components":      components,
	})
}

func (s *Server) handleListCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": s.analysis.Dataset().Categories()})
}

func (s *Server) handleListConditions(c *gin.Context) {
	ds := s.analysis.Dataset()

	category := c.Query("category")
	if category == "" {
		c.JSON(http.StatusOK, gin.H{"conditions": ds.Conditions()})
		return
	}
	if _, ok := ds.Category(category); !ok {
		s.respondError(c, domain.NewValidationError("category", "unknown category", category))
		return
	}
	conditions := ds.ConditionsInCategory(category)
	if conditions == nil {
		conditions = []domain.Condition{}
	}
	c.JSON(http.StatusOK, gin.H{"category": category, "conditions": conditions})
}

func (s *Server) handleListSymptoms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"symptoms": s.analysis.Dataset().Symptoms()})
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid analysis request", err)
		return
	}

	result, err := s.analysis.Analyze(c.Request.Context(), &service.AnalyzeParams{
		Selection:   req.Selection,
		Category:    req.Category,
		IncludeZero: req.IncludeZero,
		Limit:       req.Limit,
		Persist:     req.Persist,
		ClientID:    middleware.ClientKey(c),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetAnalysis(c *gin.Context) {
	record, err := s.analysis.GetAnalysis(c.Request.Context(), middleware.ClientKey(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// handleListAnalyses lists the caller's recent analyses.
func (s *Server) handleListAnalyses(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		s.badRequest(c, "Invalid limit", err)
		return
	}

	records, err := s.analysis.ListAnalyses(c.Request.Context(), middleware.ClientKey(c), limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"analyses": records})
}

// requireFeedback answers 404 when no feedback store is configured.
func (s *Server) requireFeedback(c *gin.Context) {
	if s.feedback == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, domain.NewAPIError(
			domain.ErrNotFoundCode, "Feedback is not enabled", "", c.GetString(middleware.CorrelationIDKey)))
		return
	}
	c.Next()
}

func (s *Server) handleSubmitFeedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid feedback request", err)
		return
	}

	fb := &feedback.Feedback{
		Selection:          req.Selection,
		Category:           req.Category,
		SuggestedCondition: req.SuggestedCondition,
		ConfirmedCondition: req.ConfirmedCondition,
		UserAgreed:         req.UserAgreed,
		TopScore:           req.TopScore,
		Notes:              req.Notes,
	}
	if err := s.feedback.Submit(c.Request.Context(), fb); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, fb)
}

func (s *Server) handleListFeedback(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		s.badRequest(c, "Invalid limit", err)
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		s.badRequest(c, "Invalid offset", err)
		return
	}

	page, err := s.feedback.List(c.Request.Context(), limit, offset)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) handleDeleteFeedback(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		s.respondError(c, domain.NewValidationError("id", "must be a positive integer", c.Param("id")))
		return
	}
	if err := s.feedback.Delete(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleExportFeedback(c *gin.Context) {
	var buf bytes.Buffer
	if err := s.feedback.Export(c.Request.Context(), &buf); err != nil {
		s.respondError(c, err)
		return
	}

	filename := fmt.Sprintf("feedback-%s.json", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/json", buf.Bytes())
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
