package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebulus-edge/intelligence/internal/relational"
)

func (h *testHarness) seedInventory(t *testing.T) {
	t.Helper()
	rows := make([][]any, 0, 30)
	for i := 0; i < 30; i++ {
		daysOnLot := int64(5)
		if i < 5 {
			daysOnLot = 120
		}
		rows = append(rows, []any{int64(1000 + i), "Honda", daysOnLot})
	}
	require.NoError(t, h.relational.ReplaceTable(context.Background(), "inventory", []relational.Column{
		{Name: "vin", Type: relational.TypeText, IsPrimaryKey: true},
		{Name: "make", Type: relational.TypeText},
		{Name: "days_on_lot", Type: relational.TypeInteger},
	}, rows))
}

func TestInsightsGenerateFlagsAging(t *testing.T) {
	h := newHarness(t)
	h.seedInventory(t)

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/insights/generate", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Insights []struct {
			Priority string `json:"Priority"`
			Type     string `json:"Type"`
		} `json:"Insights"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Insights)
}

func TestInsightsHighPriority(t *testing.T) {
	h := newHarness(t)
	h.seedInventory(t)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/insights/high-priority", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInsightsByCategoryEmptyDatabase(t *testing.T) {
	h := newHarness(t)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/insights/category/risk", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
