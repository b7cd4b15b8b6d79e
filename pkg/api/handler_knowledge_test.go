package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKnowledgeFactorsAndCategories(t *testing.T) {
	h := newHarness(t)

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/knowledge/categories", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var cats struct {
		Categories []string `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cats))
	assert.Contains(t, cats.Categories, "perfect_sale")

	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/knowledge/factors/perfect_sale", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateFactorWeight(t *testing.T) {
	h := newHarness(t)
	rec := doJSON(t, h.router, http.MethodPut, "/knowledge/factors/perfect_sale/trade_in", map[string]any{
		"weight": 5,
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, 5, h.knowledge.Factors("perfect_sale")[0].Weight)
}

func TestUpdateFactorUnknownNameIs404(t *testing.T) {
	h := newHarness(t)
	rec := doJSON(t, h.router, http.MethodPut, "/knowledge/factors/perfect_sale/nonexistent", map[string]any{
		"weight": 5,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddRule(t *testing.T) {
	h := newHarness(t)
	rec := doJSON(t, h.router, http.MethodPost, "/knowledge/rules", map[string]any{
		"name": "no_negative_gross", "condition": "front_gross < 0", "severity": "warning",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, h.knowledge.Rules(), 1)
}

func TestSetCustomValue(t *testing.T) {
	h := newHarness(t)
	rec := doJSON(t, h.router, http.MethodPost, "/knowledge/custom", map[string]any{
		"key": "region", "value": "midwest",
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	v, ok := h.knowledge.CustomValue("region")
	require.True(t, ok)
	assert.Equal(t, "midwest", v)
}

func TestKnowledgePromptRendersCard(t *testing.T) {
	h := newHarness(t)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/knowledge/prompt", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.String())
}

func TestRefinementAnalyzeWithNoFeedback(t *testing.T) {
	h := newHarness(t)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/knowledge/refinement/analyze", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
