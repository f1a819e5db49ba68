package domain

import (
	"fmt"
	"strings"
	"time"
)

// APIError represents a standardized error response
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrInvalidInput     = "INVALID_INPUT"
	ErrDatabaseError    = "DATABASE_ERROR"
	ErrRateLimit        = "RATE_LIMIT_EXCEEDED"
	ErrInternalServer   = "INTERNAL_SERVER_ERROR"
	ErrValidation       = "VALIDATION_ERROR"
	ErrNotFoundCode     = "NOT_FOUND"
	ErrMalformedDataset = "MALFORMED_DATASET"
	ErrTimeout          = "REQUEST_TIMEOUT"
)

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// DatasetProblem is one authoring defect found while validating a dataset.
type DatasetProblem struct {
	Condition string `json:"condition,omitempty"`
	Category  string `json:"category,omitempty"`
	Message   string `json:"message"`
}

func (p DatasetProblem) String() string {
	switch {
	case p.Condition != "":
		return fmt.Sprintf("condition %q: %s", p.Condition, p.Message)
	case p.Category != "":
		return fmt.Sprintf("category %q: %s", p.Category, p.Message)
	default:
		return p.Message
	}
}

// MalformedDatasetError is returned at load time when conditions violate the
// dataset invariants (non-empty nodes, edge endpoints among the nodes, ...).
type MalformedDatasetError struct {
	Source   string           `json:"source,omitempty"`
	Problems []DatasetProblem `json:"problems"`
}

func (e *MalformedDatasetError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.String()
	}
	prefix := "malformed dataset"
	if e.Source != "" {
		prefix = fmt.Sprintf("malformed dataset %s", e.Source)
	}
	return fmt.Sprintf("%s: %s", prefix, strings.Join(msgs, "; "))
}

// Add records a problem.
func (e *MalformedDatasetError) Add(condition, format string, args ...interface{}) {
	e.Problems = append(e.Problems, DatasetProblem{Condition: condition, Message: fmt.Sprintf(format, args...)})
}

// AddCategory records a problem with a category definition.
func (e *MalformedDatasetError) AddCategory(category, format string, args ...interface{}) {
	e.Problems = append(e.Problems, DatasetProblem{Category: category, Message: fmt.Sprintf(format, args...)})
}

// HasProblems reports whether any problem was recorded.
func (e *MalformedDatasetError) HasProblems() bool {
	return len(e.Problems) > 0
}
