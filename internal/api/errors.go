package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/symptom-likelihood-server/internal/domain"
	"github.com/symptom-likelihood-server/internal/logging"
	"github.com/symptom-likelihood-server/internal/middleware"
)

// respondError maps service errors onto status codes and the APIError body.
func (s *Server) respondError(c *gin.Context, err error) {
	requestID := c.GetString(middleware.CorrelationIDKey)

	var validationErr *domain.ValidationError
	var apiErr *domain.APIError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"code":       domain.ErrValidation,
			"message":    validationErr.Error(),
			"field":      validationErr.Field,
			"value":      validationErr.Value,
			"request_id": requestID,
		})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, domain.NewAPIError(domain.ErrNotFoundCode, "Resource not found", err.Error(), requestID))
	case errors.As(err, &apiErr):
		apiErr.RequestID = requestID
		c.JSON(statusForCode(apiErr.Code), apiErr)
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, domain.NewAPIError(domain.ErrTimeout, "Request timeout", "", requestID))
	default:
		logging.FromContext(c.Request.Context(), s.logger).WithError(err).Error("Request failed")
		c.JSON(http.StatusInternalServerError, domain.NewAPIError(domain.ErrInternalServer, "Internal server error", "", requestID))
	}
}

func (s *Server) badRequest(c *gin.Context, message string, err error) {
	details := ""
	if err != nil {
		details = err.Error()
	}
	c.JSON(http.StatusBadRequest, domain.NewAPIError(domain.ErrInvalidInput, message, details, c.GetString(middleware.CorrelationIDKey)))
}

func statusForCode(code string) int {
	switch code {
	case domain.ErrInvalidInput, domain.ErrValidation, domain.ErrMalformedDataset:
		return http.StatusBadRequest
	case domain.ErrNotFoundCode:
		return http.StatusNotFound
	case domain.ErrRateLimit:
		return http.StatusTooManyRequests
	case domain.ErrTimeout:
		return http.StatusGatewayTimeout
	case domain.ErrDatabaseError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
