package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	litecfg "github.com/symptom-likelihood-server/internal/config"
	"github.com/symptom-likelihood-server/internal/domain"
)

func newTestLiteServer(t *testing.T) *LiteServer {
	t.Helper()
	logger, _ := test.NewNullLogger()

	cfg := litecfg.DefaultLiteConfig()
	cfg.DataDir = t.TempDir()

	srv, err := NewLiteServer(cfg, WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv
}

func connectInMemory(t *testing.T, srv *Server) *sdkmcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	t1, t2 := sdkmcp.NewInMemoryTransports()
	_, err := srv.MCPServer.Connect(ctx, t1, nil)
	require.NoError(t, err)

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, t2, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, session *sdkmcp.ClientSession, name string, args map[string]any, out any) {
	t.Helper()
	res, err := session.CallTool(context.Background(), &sdkmcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.False(t, res.IsError, "%s returned error: %s", name, textOf(res))
	require.NoError(t, json.Unmarshal([]byte(textOf(res)), out), textOf(res))
}

func callToolExpectError(t *testing.T, session *sdkmcp.ClientSession, name string, args map[string]any) string {
	t.Helper()
	res, err := session.CallTool(context.Background(), &sdkmcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return err.Error()
	}
	require.True(t, res.IsError, "expected %s to fail", name)
	return textOf(res)
}

func textOf(res *sdkmcp.CallToolResult) string {
	for _, c := range res.Content {
		if tc, ok := c.(*sdkmcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListTools(t *testing.T) {
	srv := newTestLiteServer(t)
	session := connectInMemory(t, srv.MCPServer())

	res, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"list_categories", "list_conditions", "list_symptoms", "analyze_symptoms",
		"submit_feedback", "query_feedback", "list_feedback", "export_feedback", "import_feedback",
	}, names)
}

func TestCatalogTools(t *testing.T) {
	srv := newTestLiteServer(t)
	session := connectInMemory(t, srv.MCPServer())

	var categories listCategoriesOutput
	callTool(t, session, "list_categories", map[string]any{}, &categories)
	assert.NotEmpty(t, categories.Categories)

	var conditions listConditionsOutput
	callTool(t, session, "list_conditions", map[string]any{"category": "respiratory"}, &conditions)
	require.NotEmpty(t, conditions.Conditions)
	for _, c := range conditions.Conditions {
		assert.Equal(t, "respiratory", c.Category)
	}

	msg := callToolExpectError(t, session, "list_conditions", map[string]any{"category": "astrology"})
	assert.Contains(t, msg, "unknown category")

	var symptoms listSymptomsOutput
	callTool(t, session, "list_symptoms", map[string]any{}, &symptoms)
	assert.NotEmpty(t, symptoms.Symptoms)
}

func TestAnalyzeSymptomsTool(t *testing.T) {
	srv := newTestLiteServer(t)
	session := connectInMemory(t, srv.MCPServer())

	args := map[string]any{"selection": []string{"wheeze_localised", "cough_productive", "unheard_of"}}

	var out analyzeOutput
	callTool(t, session, "analyze_symptoms", args, &out)
	require.NotEmpty(t, out.Results)
	assert.Equal(t, "Bronchitis", out.Results[0].Condition)
	assert.InDelta(t, 60.0, out.Results[0].Score, 1e-9)
	assert.Equal(t, []string{"unheard_of"}, out.UnknownSymptoms)
	assert.Equal(t, domain.DefaultNodeWeight, out.NodeWeight)
	assert.False(t, out.CacheHit)

	var again analyzeOutput
	callTool(t, session, "analyze_symptoms", args, &again)
	assert.True(t, again.CacheHit)
	assert.Equal(t, out.Results, again.Results)
	assert.Equal(t, 1, srv.GetCache().Len())

	var empty analyzeOutput
	callTool(t, session, "analyze_symptoms", map[string]any{"selection": []string{}}, &empty)
	assert.Empty(t, empty.Results)

	msg := callToolExpectError(t, session, "analyze_symptoms", map[string]any{"selection": []string{"cough_productive"}, "limit": -1})
	assert.Contains(t, msg, "limit")
}

func TestFeedbackTools(t *testing.T) {
	srv := newTestLiteServer(t)
	session := connectInMemory(t, srv.MCPServer())

	var submitted submitFeedbackOutput
	callTool(t, session, "submit_feedback", map[string]any{
		"selection":           []string{"cough_productive", "wheeze_localised"},
		"suggested_condition": "Bronchitis",
		"user_agreed":         true,
		"top_score":           60,
	}, &submitted)
	assert.True(t, submitted.Success)
	assert.Equal(t, "Bronchitis", submitted.Feedback.ConfirmedCondition)

	msg := callToolExpectError(t, session, "submit_feedback", map[string]any{
		"selection":           []string{"cough_productive"},
		"suggested_condition": "Dragon Pox",
		"user_agreed":         true,
	})
	assert.Contains(t, msg, "suggested_condition")

	var query queryFeedbackOutput
	callTool(t, session, "query_feedback", map[string]any{"selection": []string{"wheeze_localised", "cough_productive"}}, &query)
	require.True(t, query.Found)
	assert.Equal(t, submitted.Feedback.ID, query.Feedback.ID)

	callTool(t, session, "query_feedback", map[string]any{"selection": []string{"sneezing"}}, &query)
	assert.False(t, query.Found)

	var list listFeedbackOutput
	callTool(t, session, "list_feedback", map[string]any{}, &list)
	assert.EqualValues(t, 1, list.Total)
	assert.Len(t, list.Feedback, 1)

	var export exportFeedbackOutput
	callTool(t, session, "export_feedback", map[string]any{}, &export)
	assert.EqualValues(t, 1, export.Count)
	_, err := os.Stat(export.FilePath)
	require.NoError(t, err)

	// Import into a fresh server.
	other := newTestLiteServer(t)
	otherSession := connectInMemory(t, other.MCPServer())

	var imported importFeedbackOutput
	callTool(t, otherSession, "import_feedback", map[string]any{"file_path": export.FilePath}, &imported)
	assert.Equal(t, 1, imported.Imported)
	assert.Equal(t, 0, imported.Skipped)
	assert.Empty(t, imported.Rejected)

	msg = callToolExpectError(t, otherSession, "import_feedback", map[string]any{"file_path": filepath.Join(t.TempDir(), "missing.json")})
	assert.Contains(t, msg, "failed to open")
}

func TestServerWithoutFeedback(t *testing.T) {
	lite := newTestLiteServer(t)
	logger, _ := test.NewNullLogger()

	srv := NewServer(domain.MCPConfig{}, logger, lite.MCPServer().analysis)
	session := connectInMemory(t, srv)

	res, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, res.Tools, 4)
}

func TestNewLiteServerRejectsInvalidConfig(t *testing.T) {
	cfg := litecfg.DefaultLiteConfig()
	cfg.DataDir = t.TempDir()
	cfg.NodeWeight = 0.9

	_, err := NewLiteServer(cfg)
	assert.ErrorContains(t, err, "invalid configuration")

	cfg = litecfg.DefaultLiteConfig()
	cfg.DataDir = t.TempDir()
	_, err = NewLiteServer(cfg, WithDataset(domain.NewDataset("empty", nil, nil)))
	assert.ErrorContains(t, err, "no conditions")
}
