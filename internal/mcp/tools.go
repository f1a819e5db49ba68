package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/symptom-likelihood-server/internal/domain"
	"github.com/symptom-likelihood-server/internal/feedback"
	"github.com/symptom-likelihood-server/internal/logging"
	"github.com/symptom-likelihood-server/internal/service"
)

func (s *Server) registerCatalogTools() {
	mcp.AddTool(s.MCPServer, &mcp.Tool{
		Name:        "list_categories",
		Description: "List the condition categories used to group conditions.",
	}, s.handleListCategories)

	mcp.AddTool(s.MCPServer, &mcp.Tool{
		Name:        "list_conditions",
		Description: "List conditions with their symptom nodes and relationships, optionally for one category.",
	}, s.handleListConditions)

	mcp.AddTool(s.MCPServer, &mcp.Tool{
		Name:        "list_symptoms",
		Description: "List every selectable symptom id with the conditions that reference it.",
	}, s.handleListSymptoms)
}

func (s *Server) registerAnalysisTools() {
	mcp.AddTool(s.MCPServer, &mcp.Tool{
		Name:        "analyze_symptoms",
		Description: "Rank conditions by likelihood for a set of selected symptom ids. Scores are 0-100; unknown ids are reported but not rejected.",
	}, s.handleAnalyze)
}

func (s *Server) registerFeedbackTools() {
	mcp.AddTool(s.MCPServer, &mcp.Tool{
		Name:        "submit_feedback",
		Description: "Record whether the suggested condition for a symptom selection was confirmed. Replaces earlier feedback for the same selection and category.",
	}, s.handleSubmitFeedback)

	mcp.AddTool(s.MCPServer, &mcp.Tool{
		Name:        "query_feedback",
		Description: "Look up the feedback recorded for a symptom selection.",
	}, s.handleQueryFeedback)

	mcp.AddTool(s.MCPServer, &mcp.Tool{
		Name:        "list_feedback",
		Description: "List recorded feedback, newest first.",
	}, s.handleListFeedback)

	mcp.AddTool(s.MCPServer, &mcp.Tool{
		Name:        "export_feedback",
		Description: "Export all feedback to a JSON file for backup.",
	}, s.handleExportFeedback)

	mcp.AddTool(s.MCPServer, &mcp.Tool{
		Name:        "import_feedback",
		Description: "Import feedback from a JSON export file. Existing entries are skipped and entries that fail validation are rejected.",
	}, s.handleImportFeedback)
}

// --- Tool input/output types ---

type emptyInput struct{}

type listCategoriesOutput struct {
	Categories []domain.Category `json:"categories"`
}

type listConditionsInput struct {
	Category string `json:"category,omitempty" jsonschema:"category id to filter by"`
}

type conditionView struct {
	Name     string                 `json:"name"`
	Category string                 `json:"category,omitempty"`
	Nodes    []domain.SymptomNode   `json:"nodes"`
	Edges    []domain.ConditionEdge `json:"edges"`
}

type listConditionsOutput struct {
	Conditions []conditionView `json:"conditions"`
}

type listSymptomsOutput struct {
	Symptoms []domain.Symptom `json:"symptoms"`
}

type analyzeInput struct {
	Selection   []string `json:"selection" jsonschema:"selected symptom node ids"`
	Category    string   `json:"category,omitempty" jsonschema:"only rank conditions of this category"`
	IncludeZero bool     `json:"include_zero,omitempty" jsonschema:"also return conditions with a zero score"`
	Limit       int      `json:"limit,omitempty" jsonschema:"maximum number of results (0 means all)"`
}

type analyzeOutput struct {
	Selection       []string             `json:"selection"`
	UnknownSymptoms []string             `json:"unknown_symptoms"`
	Results         []domain.ScoreResult `json:"results"`
	NodeWeight      float64              `json:"node_weight"`
	EdgeWeight      float64              `json:"edge_weight"`
	DatasetVersion  string               `json:"dataset_version"`
	CacheHit        bool                 `json:"cache_hit"`
}

type submitFeedbackInput struct {
	Selection          []string `json:"selection" jsonschema:"symptom ids the analysis was run for"`
	Category           string   `json:"category,omitempty" jsonschema:"category the analysis was scoped to"`
	SuggestedCondition string   `json:"suggested_condition" jsonschema:"condition ranked first by analyze_symptoms"`
	ConfirmedCondition string   `json:"confirmed_condition,omitempty" jsonschema:"condition the user confirmed; defaults to the suggestion when user_agreed is set"`
	UserAgreed         bool     `json:"user_agreed" jsonschema:"whether the user agreed with the suggestion"`
	TopScore           float64  `json:"top_score,omitempty" jsonschema:"score of the suggested condition"`
	Notes              string   `json:"notes,omitempty" jsonschema:"free-text notes"`
}

// feedbackView is the tool representation of a stored entry; timestamps are
// RFC 3339 strings.
type feedbackView struct {
	ID                 int64    `json:"id"`
	Selection          []string `json:"selection"`
	Category           string   `json:"category,omitempty"`
	SuggestedCondition string   `json:"suggested_condition"`
	ConfirmedCondition string   `json:"confirmed_condition"`
	UserAgreed         bool     `json:"user_agreed"`
	TopScore           float64  `json:"top_score"`
	DatasetVersion     string   `json:"dataset_version,omitempty"`
	Notes              string   `json:"notes,omitempty"`
	CreatedAt          string   `json:"created_at"`
	UpdatedAt          string   `json:"updated_at"`
}

type submitFeedbackOutput struct {
	Success  bool         `json:"success"`
	Feedback feedbackView `json:"feedback"`
}

type queryFeedbackInput struct {
	Selection []string `json:"selection" jsonschema:"symptom ids to look up"`
	Category  string   `json:"category,omitempty" jsonschema:"category the feedback was recorded under"`
}

type queryFeedbackOutput struct {
	Found    bool          `json:"found"`
	Feedback *feedbackView `json:"feedback,omitempty"`
}

type listFeedbackInput struct {
	Limit  int `json:"limit,omitempty" jsonschema:"page size (default 50)"`
	Offset int `json:"offset,omitempty" jsonschema:"entries to skip"`
}

type listFeedbackOutput struct {
	Total    int64          `json:"total"`
	Feedback []feedbackView `json:"feedback"`
}

type exportFeedbackOutput struct {
	FilePath string `json:"file_path"`
	Count    int64  `json:"count"`
	Message  string `json:"message"`
}

type importFeedbackInput struct {
	FilePath string `json:"file_path" jsonschema:"path of a file written by export_feedback"`
}

type importFeedbackOutput struct {
	Imported int                       `json:"imported"`
	Skipped  int                       `json:"skipped"`
	Rejected []service.ImportRejection `json:"rejected"`
	Message  string                    `json:"message"`
}

// --- Tool handlers ---

func (s *Server) handleListCategories(_ context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, listCategoriesOutput, error) {
	return nil, listCategoriesOutput{Categories: s.analysis.Dataset().Categories()}, nil
}

func (s *Server) handleListConditions(_ context.Context, _ *mcp.CallToolRequest, input listConditionsInput) (*mcp.CallToolResult, listConditionsOutput, error) {
	ds := s.analysis.Dataset()

	conditions := ds.Conditions()
	if input.Category != "" {
		if _, ok := ds.Category(input.Category); !ok {
			return nil, listConditionsOutput{}, fmt.Errorf("unknown category %q", input.Category)
		}
		conditions = ds.ConditionsInCategory(input.Category)
	}

	out := listConditionsOutput{Conditions: make([]conditionView, 0, len(conditions))}
	for _, c := range conditions {
		view := conditionView{
			Name:     c.Name,
			Category: c.Category,
			Nodes:    append([]domain.SymptomNode{}, c.Nodes...),
			Edges:    append([]domain.ConditionEdge{}, c.Edges...),
		}
		out.Conditions = append(out.Conditions, view)
	}
	return nil, out, nil
}

func (s *Server) handleListSymptoms(_ context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, listSymptomsOutput, error) {
	return nil, listSymptomsOutput{Symptoms: s.analysis.Dataset().Symptoms()}, nil
}

func (s *Server) handleAnalyze(ctx context.Context, _ *mcp.CallToolRequest, input analyzeInput) (*mcp.CallToolResult, analyzeOutput, error) {
	ctx, _ = logging.EnsureCorrelationID(ctx)

	result, err := s.analysis.Analyze(ctx, &service.AnalyzeParams{
		Selection:   input.Selection,
		Category:    input.Category,
		IncludeZero: input.IncludeZero,
		Limit:       input.Limit,
	})
	if err != nil {
		return nil, analyzeOutput{}, toolError(err)
	}

	return nil, analyzeOutput{
		Selection:       result.Selection,
		UnknownSymptoms: result.UnknownSymptoms,
		Results:         result.Results,
		NodeWeight:      result.Weights.Node,
		EdgeWeight:      result.Weights.Edge,
		DatasetVersion:  result.DatasetVersion,
		CacheHit:        result.CacheHit,
	}, nil
}

func (s *Server) handleSubmitFeedback(ctx context.Context, _ *mcp.CallToolRequest, input submitFeedbackInput) (*mcp.CallToolResult, submitFeedbackOutput, error) {
	fb := &feedback.Feedback{
		Selection:          input.Selection,
		Category:           input.Category,
		SuggestedCondition: input.SuggestedCondition,
		ConfirmedCondition: input.ConfirmedCondition,
		UserAgreed:         input.UserAgreed,
		TopScore:           input.TopScore,
		Notes:              input.Notes,
	}
	if err := s.feedback.Submit(ctx, fb); err != nil {
		return nil, submitFeedbackOutput{}, toolError(err)
	}
	return nil, submitFeedbackOutput{Success: true, Feedback: viewOf(fb)}, nil
}

func (s *Server) handleQueryFeedback(ctx context.Context, _ *mcp.CallToolRequest, input queryFeedbackInput) (*mcp.CallToolResult, queryFeedbackOutput, error) {
	fb, err := s.feedback.Lookup(ctx, input.Selection, input.Category)
	if err != nil {
		return nil, queryFeedbackOutput{}, toolError(err)
	}
	if fb == nil {
		return nil, queryFeedbackOutput{Found: false}, nil
	}
	view := viewOf(fb)
	return nil, queryFeedbackOutput{Found: true, Feedback: &view}, nil
}

func (s *Server) handleListFeedback(ctx context.Context, _ *mcp.CallToolRequest, input listFeedbackInput) (*mcp.CallToolResult, listFeedbackOutput, error) {
	page, err := s.feedback.List(ctx, input.Limit, input.Offset)
	if err != nil {
		return nil, listFeedbackOutput{}, toolError(err)
	}

	out := listFeedbackOutput{Total: page.Total, Feedback: make([]feedbackView, 0, len(page.Feedback))}
	for _, fb := range page.Feedback {
		out.Feedback = append(out.Feedback, viewOf(fb))
	}
	return nil, out, nil
}

func (s *Server) handleExportFeedback(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, exportFeedbackOutput, error) {
	if s.exportDir == "" {
		return nil, exportFeedbackOutput{}, errors.New("no export directory is configured")
	}
	if err := os.MkdirAll(s.exportDir, 0755); err != nil {
		return nil, exportFeedbackOutput{}, fmt.Errorf("failed to create export directory: %w", err)
	}

	filename := fmt.Sprintf("feedback_export_%s.json", time.Now().Format("20060102_150405.000"))
	filePath := filepath.Join(s.exportDir, filename)

	if err := s.feedback.ExportFile(ctx, filePath); err != nil {
		s.logger.WithError(err).Error("Failed to export feedback")
		return nil, exportFeedbackOutput{}, fmt.Errorf("failed to export feedback: %w", err)
	}

	page, err := s.feedback.List(ctx, 1, 0)
	if err != nil {
		return nil, exportFeedbackOutput{}, toolError(err)
	}
	return nil, exportFeedbackOutput{
		FilePath: filePath,
		Count:    page.Total,
		Message:  fmt.Sprintf("Exported %d feedback entries to %s", page.Total, filePath),
	}, nil
}

func (s *Server) handleImportFeedback(ctx context.Context, _ *mcp.CallToolRequest, input importFeedbackInput) (*mcp.CallToolResult, importFeedbackOutput, error) {
	if input.FilePath == "" {
		return nil, importFeedbackOutput{}, errors.New("file_path is required")
	}

	file, err := os.Open(input.FilePath)
	if err != nil {
		return nil, importFeedbackOutput{}, fmt.Errorf("failed to open import file: %w", err)
	}
	defer file.Close()

	summary, err := s.feedback.Import(ctx, file)
	if err != nil {
		return nil, importFeedbackOutput{}, toolError(err)
	}
	return nil, importFeedbackOutput{
		Imported: summary.Imported,
		Skipped:  summary.Skipped,
		Rejected: summary.Rejected,
		Message: fmt.Sprintf("Imported %d entries, skipped %d existing, rejected %d invalid",
			summary.Imported, summary.Skipped, len(summary.Rejected)),
	}, nil
}

func viewOf(fb *feedback.Feedback) feedbackView {
	selection := fb.Selection
	if selection == nil {
		selection = []string{}
	}
	return feedbackView{
		ID:                 fb.ID,
		Selection:          selection,
		Category:           fb.Category,
		SuggestedCondition: fb.SuggestedCondition,
		ConfirmedCondition: fb.ConfirmedCondition,
		UserAgreed:         fb.UserAgreed,
		TopScore:           fb.TopScore,
		DatasetVersion:     fb.DatasetVersion,
		Notes:              fb.Notes,
		CreatedAt:          fb.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:          fb.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// toolError flattens validation errors into a client-readable message. The
// SDK reports returned errors as IsError results.
func toolError(err error) error {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return fmt.Errorf("invalid %s: %s", verr.Field, verr.Message)
	}
	return err
}
