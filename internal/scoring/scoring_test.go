package scoring_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebulus-edge/intelligence/internal/knowledge"
	"github.com/nebulus-edge/intelligence/internal/scoring"
)

func testEngine(t *testing.T) *scoring.Engine {
	t.Helper()
	tmpl := &knowledge.Template{
		Name: "generic",
		ScoringFactors: map[string][]knowledge.Factor{
			"perfect_sale": {
				{Name: "trade_in", Description: "has a trade-in", Weight: 20, Calculation: "trade_in_vin IS NOT NULL"},
				{Name: "quick", Description: "sold within 30 days", Weight: 10, Calculation: "days_to_sale <= 30"},
				{Name: "good_margin", Description: "margin over 15%", Weight: 15, Calculation: "profit / sale_price > 0.15"},
			},
		},
	}
	store, err := knowledge.New(tmpl, filepath.Join(t.TempDir(), "knowledge.json"))
	require.NoError(t, err)
	return scoring.New(store)
}

func TestScoreRecordAllFactorsPass(t *testing.T) {
	engine := testEngine(t)
	record := map[string]any{
		"trade_in_vin": "XYZ123",
		"days_to_sale": 12,
		"profit":       3000.0,
		"sale_price":   15000.0,
	}
	result := engine.ScoreRecord("perfect_sale", record)
	assert.Equal(t, 45, result.TotalScore)
	assert.Equal(t, 45, result.MaxPossible)
	assert.InDelta(t, 100.0, result.Percentage, 0.001)
	assert.Len(t, result.Factors, 3)
}

func TestScoreRecordAllFactorsFail(t *testing.T) {
	engine := testEngine(t)
	record := map[string]any{
		"trade_in_vin": nil,
		"days_to_sale": 45,
		"profit":       1000.0,
		"sale_price":   15000.0,
	}
	result := engine.ScoreRecord("perfect_sale", record)
	assert.Equal(t, 0, result.TotalScore)
	assert.Equal(t, 45, result.MaxPossible)
}

func TestScoreRecordsOrdersDescending(t *testing.T) {
	engine := testEngine(t)
	records := []map[string]any{
		{"trade_in_vin": nil, "days_to_sale": 45, "profit": 1000.0, "sale_price": 15000.0},
		{"trade_in_vin": "A", "days_to_sale": 5, "profit": 5000.0, "sale_price": 15000.0},
	}
	scored := engine.ScoreRecords("perfect_sale", records, true, 0)
	require.Len(t, scored, 2)
	assert.True(t, scored[0].Percentage >= scored[1].Percentage)
}

func TestDistributeBucketsAndStats(t *testing.T) {
	engine := testEngine(t)
	records := []map[string]any{
		{"trade_in_vin": "A", "days_to_sale": 5, "profit": 5000.0, "sale_price": 15000.0},  // 100%
		{"trade_in_vin": nil, "days_to_sale": 45, "profit": 1000.0, "sale_price": 15000.0}, // 0%
	}
	scored := engine.ScoreRecords("perfect_sale", records, false, 0)
	dist := scoring.Distribute(scored)
	assert.Equal(t, 2, dist.Count)
	assert.Equal(t, 1, dist.Buckets["excellent"])
	assert.Equal(t, 1, dist.Buckets["poor"])

	stats := scoring.FactorPerformanceStats(scored)
	require.Len(t, stats, 3)
	for _, s := range stats {
		assert.Equal(t, 2, s.Total)
	}
}

func TestRatioPredicateDivideByZeroIsNotEvaluable(t *testing.T) {
	engine := testEngine(t)
	record := map[string]any{
		"trade_in_vin": "A", "days_to_sale": 5, "profit": 100.0, "sale_price": 0.0,
	}
	result := engine.ScoreRecord("perfect_sale", record)
	var goodMargin scoring.FactorDetail
	for _, f := range result.Factors {
		if f.Name == "good_margin" {
			goodMargin = f
		}
	}
	assert.False(t, goodMargin.Passed)
}

func TestUnknownCategoryScoresZero(t *testing.T) {
	engine := testEngine(t)
	result := engine.ScoreRecord("does_not_exist", map[string]any{"a": 1})
	assert.Equal(t, 0, result.MaxPossible)
	assert.Equal(t, float64(0), result.Percentage)
}

func TestEqualsPredicateStripsQuotedLiteral(t *testing.T) {
	tmpl := &knowledge.Template{
		Name: "generic",
		ScoringFactors: map[string][]knowledge.Factor{
			"perfect_sale": {
				{Name: "financed", Description: "financed sale", Weight: 20, Calculation: "finance_type = 'finance'"},
			},
		},
	}
	store, err := knowledge.New(tmpl, filepath.Join(t.TempDir(), "knowledge.json"))
	require.NoError(t, err)
	engine := scoring.New(store)

	matched := engine.ScoreRecord("perfect_sale", map[string]any{"finance_type": "finance"})
	assert.Equal(t, 20, matched.TotalScore)

	unmatched := engine.ScoreRecord("perfect_sale", map[string]any{"finance_type": "cash"})
	assert.Equal(t, 0, unmatched.TotalScore)
}
