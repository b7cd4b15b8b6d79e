package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedbackSubmitAndSummary(t *testing.T) {
	h := newHarness(t)

	rec := doJSON(t, h.router, http.MethodPost, "/feedback/submit", map[string]any{
		"type": "QUERY_RESULT", "rating": 1, "query": "how many cars", "response": "2 cars",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var submitted struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	assert.NotZero(t, submitted.ID)

	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/feedback/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var summary struct {
		TotalCount int `json:"TotalCount"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.TotalCount)
}

func TestFeedbackSubmitRejectsMissingType(t *testing.T) {
	h := newHarness(t)
	rec := doJSON(t, h.router, http.MethodPost, "/feedback/submit", map[string]any{
		"rating": 1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeedbackOutcomeUnknownIDIs404(t *testing.T) {
	h := newHarness(t)
	rec := doJSON(t, h.router, http.MethodPost, "/feedback/outcome", map[string]any{
		"id": 999, "outcome": "converted",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFeedbackPatternsAndHistory(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		rec := doJSON(t, h.router, http.MethodPost, "/feedback/submit", map[string]any{
			"type": "QUERY_RESULT", "rating": -1, "query": "bad query", "response": "wrong",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/feedback/patterns", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var patterns struct {
		Patterns []struct {
			Query string `json:"Query"`
			Count int    `json:"Count"`
		} `json:"patterns"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &patterns))
	require.Len(t, patterns.Patterns, 1)
	assert.Equal(t, 3, patterns.Patterns[0].Count)

	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/feedback/history?limit=10", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/feedback/refinement", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
