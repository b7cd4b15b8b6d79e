package orchestrator_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebulus-edge/intelligence/internal/knowledge"
	"github.com/nebulus-edge/intelligence/internal/llm"
	"github.com/nebulus-edge/intelligence/internal/orchestrator"
	"github.com/nebulus-edge/intelligence/internal/relational"
)

// fakeBrain is a minimal OpenAI-compatible chat-completions endpoint that
// picks a canned response based on a marker string in the prompt, so a
// single server can stand in for both the NL->SQL call and the final
// synthesis call a single Ask invocation makes.
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
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"},
			},
			"usage": map[string]any{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func openTestStore(t *testing.T) *relational.Store {
	t.Helper()
	store, err := relational.Open(filepath.Join(t.TempDir(), "main.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testTemplate() *knowledge.Template {
	return &knowledge.Template{
		Name: "dealership",
		ScoringFactors: map[string][]knowledge.Factor{
			"perfect_sale": {
				{Name: "trade_in", Description: "has a trade-in", Weight: 20, Calculation: "trade_in_vin IS NOT NULL"},
			},
		},
	}
}

func TestAskRunsSQLPathAndSynthesizes(t *testing.T) {
	server := fakeBrain(t)
	defer server.Close()

	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.ReplaceTable(ctx, "cars", []relational.Column{
		{Name: "vin", Type: relational.TypeText, IsPrimaryKey: true},
		{Name: "make", Type: relational.TypeText},
	}, [][]any{{"VIN1", "Honda"}, {"VIN2", "Ford"}}))

	kb, err := knowledge.New(testTemplate(), filepath.Join(t.TempDir(), "knowledge.json"))
	require.NoError(t, err)

	client := llm.New(llm.WithBaseURL(server.URL), llm.WithAPIKey("test-key"))
	orch := orchestrator.New(store, nil, kb, client, "dealership")

	response, err := orch.Ask(ctx, "how many cars do we have", true)
	require.NoError(t, err)
	assert.Equal(t, "sql", response.Classification)
	assert.Contains(t, response.SQLUsed, "SELECT")
	assert.Equal(t, "This is the synthesized answer.", response.Answer)
	assert.NotEmpty(t, response.SupportingData)
}

func TestAskWithScoringEnrichesAnswer(t *testing.T) {
	server := fakeBrain(t)
	defer server.Close()

	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.ReplaceTable(ctx, "cars", []relational.Column{
		{Name: "vin", Type: relational.TypeText, IsPrimaryKey: true},
		{Name: "trade_in_vin", Type: relational.TypeText},
	}, [][]any{{"VIN1", "TRADE1"}, {"VIN2", nil}}))

	kb, err := knowledge.New(testTemplate(), filepath.Join(t.TempDir(), "knowledge.json"))
	require.NoError(t, err)

	client := llm.New(llm.WithBaseURL(server.URL), llm.WithAPIKey("test-key"))
	orch := orchestrator.New(store, nil, kb, client, "dealership")

	response, err := orch.AskWithScoring(ctx, "what separates good sales from bad", "cars", "perfect_sale")
	require.NoError(t, err)
	assert.NotEmpty(t, response.Answer)
}
