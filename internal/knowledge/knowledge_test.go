package knowledge_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebulus-edge/intelligence/internal/knowledge"
)

func testTemplate() *knowledge.Template {
	return &knowledge.Template{
		Name: "generic",
		ScoringFactors: map[string][]knowledge.Factor{
			"perfect_sale": {
				{Name: "trade_in", Description: "has a trade-in", Weight: 20, Calculation: "trade_in_vin IS NOT NULL"},
				{Name: "quick", Description: "sold quickly", Weight: 10, Calculation: "days_to_sale <= 30"},
			},
		},
		Rules:   []knowledge.Rule{{Name: "r1", Description: "desc", Condition: "x > 0", Severity: "warning"}},
		Metrics: map[string]knowledge.Metric{"days_on_lot": {Name: "days_on_lot", Target: 30, Warning: 60, Critical: 90, LowerIsBetter: true}},
	}
}

func TestOverlayMergeAndPersist(t *testing.T) {
	dir := t.TempDir()
	overlayPath := filepath.Join(dir, "knowledge.json")

	store, err := knowledge.New(testTemplate(), overlayPath)
	require.NoError(t, err)

	newWeight := 25
	ok, err := store.UpdateFactor("perfect_sale", "trade_in", &newWeight, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	// Reload from disk: the overlay should have persisted.
	reloaded, err := knowledge.New(testTemplate(), overlayPath)
	require.NoError(t, err)
	factors := reloaded.Factors("perfect_sale")
	require.Len(t, factors, 2)
	assert.Equal(t, 25, factors[0].Weight)
	assert.Equal(t, "trade_in_vin IS NOT NULL", factors[0].Calculation) // calculation never overwritten
}

func TestUpdateFactorClampsAtZero(t *testing.T) {
	dir := t.TempDir()
	store, err := knowledge.New(testTemplate(), filepath.Join(dir, "knowledge.json"))
	require.NoError(t, err)

	negative := -5
	ok, err := store.UpdateFactor("perfect_sale", "trade_in", &negative, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, store.Factors("perfect_sale")[0].Weight)
}

func TestExportForPrompt(t *testing.T) {
	dir := t.TempDir()
	store, err := knowledge.New(testTemplate(), filepath.Join(dir, "knowledge.json"))
	require.NoError(t, err)

	card := store.ExportForPrompt()
	assert.Contains(t, card, "## Domain Knowledge")
	assert.Contains(t, card, "Business Rules")
	assert.Contains(t, card, "Key Metrics")
}

func TestMissingCategoryReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	store, err := knowledge.New(testTemplate(), filepath.Join(dir, "knowledge.json"))
	require.NoError(t, err)
	assert.Empty(t, store.Factors("does_not_exist"))
}
