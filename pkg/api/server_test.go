package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/nebulus-edge/intelligence/internal/audit"
	"github.com/nebulus-edge/intelligence/internal/config"
	"github.com/nebulus-edge/intelligence/internal/feedback"
	"github.com/nebulus-edge/intelligence/internal/ingest"
	"github.com/nebulus-edge/intelligence/internal/insight"
	"github.com/nebulus-edge/intelligence/internal/knowledge"
	"github.com/nebulus-edge/intelligence/internal/llm"
	"github.com/nebulus-edge/intelligence/internal/orchestrator"
	"github.com/nebulus-edge/intelligence/internal/relational"
	"github.com/nebulus-edge/intelligence/internal/scoring"
	"github.com/nebulus-edge/intelligence/pkg/api"
)

// fakeBrain stands in for the OpenAI-compatible chat-completions
// endpoint, serving canned responses so handler tests never reach a
// real LLM.
func fakeBrain(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		content := "This is the synthesized answer."
		if len(body.Messages) > 0 && strings.Contains(body.Messages[0].Content, "SQL expert") {
			content = "SELECT make, COUNT(*) as total FROM cars GROUP BY make"
		}
		resp := map[string]any{
			"id": "chatcmpl-test", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"},
			},
			"usage": map[string]any{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func testTemplate() *knowledge.Template {
	return &knowledge.Template{
		Name: "dealership",
		ScoringFactors: map[string][]knowledge.Factor{
			"perfect_sale": {
				{Name: "trade_in", Description: "has a trade-in", Weight: 20, Calculation: "trade_in_vin IS NOT NULL"},
				{Name: "financed", Description: "financed sale", Weight: 10, Calculation: "finance_type = 'finance'"},
			},
		},
		Rules:   []knowledge.Rule{},
		Metrics: map[string]knowledge.Metric{},
	}
}

// testHarness bundles a live gin router plus every underlying store, so
// individual tests can seed data directly and assert on HTTP responses.
type testHarness struct {
	router     *gin.Engine
	relational *relational.Store
	knowledge  *knowledge.Store
	feedback   *feedback.Store
	auditStore *audit.Store
	brain      *httptest.Server
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()

	relStore, err := relational.Open(filepath.Join(dir, "main.db"))
	require.NoError(t, err)
	t.Cleanup(func() { relStore.Close() })

	auditStore, err := audit.Open(filepath.Join(dir, "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { auditStore.Close() })

	feedbackStore, err := feedback.Open(filepath.Join(dir, "feedback.db"))
	require.NoError(t, err)
	t.Cleanup(func() { feedbackStore.Close() })

	kb, err := knowledge.New(testTemplate(), filepath.Join(dir, "knowledge.json"))
	require.NoError(t, err)

	brain := fakeBrain(t)
	t.Cleanup(brain.Close)
	llmClient := llm.New(llm.WithBaseURL(brain.URL), llm.WithAPIKey("test-key"))

	scoringEngine := scoring.New(kb)
	ingestPipeline := ingest.New(relStore, nil)
	insightGen := insight.New(relStore)
	refiner := feedback.NewAnalyzer(kb, feedbackStore)
	orch := orchestrator.New(relStore, nil, kb, llmClient, "dealership")
	templates := config.NewTemplateRegistry()

	srv := api.NewServer(api.Deps{
		Cfg:          &config.Server{Template: "dealership", Audit: config.Audit{Debug: false}},
		Templates:    templates,
		Relational:   relStore,
		Vectors:      nil,
		Knowledge:    kb,
		Audit:        auditStore,
		Feedback:     feedbackStore,
		Refiner:      refiner,
		Ingest:       ingestPipeline,
		Scoring:      scoringEngine,
		Insights:     insightGen,
		Orchestrator: orch,
		LLMClient:    llmClient,
	})

	return &testHarness{
		router: srv.Router(), relational: relStore, knowledge: kb,
		feedback: feedbackStore, auditStore: auditStore, brain: brain,
	}
}

func (h *testHarness) seedCars(t *testing.T) {
	t.Helper()
	require.NoError(t, h.relational.ReplaceTable(context.Background(), "cars", []relational.Column{
		{Name: "vin", Type: relational.TypeText, IsPrimaryKey: true},
		{Name: "make", Type: relational.TypeText},
		{Name: "trade_in_vin", Type: relational.TypeText},
		{Name: "finance_type", Type: relational.TypeText},
	}, [][]any{
		{"VIN1", "Honda", "OLDVIN1", "finance"},
		{"VIN2", "Ford", nil, "cash"},
	}))
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(b))
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthReportsStatus(t *testing.T) {
	h := newHarness(t)
	rec := doJSON(t, h.router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "healthy", resp.Checks["relational"].Status)
	require.Contains(t, resp.Checks, "vector_search")
}
