package insight_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebulus-edge/intelligence/internal/insight"
	"github.com/nebulus-edge/intelligence/internal/relational"
)

func openTestStore(t *testing.T) *relational.Store {
	t.Helper()
	store, err := relational.Open(filepath.Join(t.TempDir(), "main.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedInventory(t *testing.T, store *relational.Store, agingDays []int64) {
	t.Helper()
	cols := []relational.Column{
		{Name: "vin", Type: relational.TypeText, IsPrimaryKey: true},
		{Name: "make", Type: relational.TypeText},
		{Name: "days_on_lot", Type: relational.TypeInteger},
	}
	rows := make([][]any, len(agingDays))
	makes := []string{"Honda", "Honda", "Honda", "Honda", "Honda", "Honda", "Honda", "Honda", "Honda", "Ford", "Ford"}
	for i, d := range agingDays {
		carMake := "Honda"
		if i < len(makes) {
			carMake = makes[i]
		}
		rows[i] = []any{int64(1000 + i), carMake, d}
	}
	require.NoError(t, store.ReplaceTable(context.Background(), "cars", cols, rows))
}

func TestGenerateInsightsEmptyDatabase(t *testing.T) {
	store := openTestStore(t)
	gen := insight.New(store)
	report, err := gen.GenerateInsights(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "No tables available for analysis.", report.Summary)
}

func TestGenerateInsightsFlagsCriticalAging(t *testing.T) {
	store := openTestStore(t)
	aging := make([]int64, 0, 20)
	for i := 0; i < 5; i++ {
		aging = append(aging, 95)
	}
	for i := 0; i < 15; i++ {
		aging = append(aging, 10)
	}
	seedInventory(t, store, aging)

	gen := insight.New(store)
	report, err := gen.GenerateInsights(context.Background(), []string{"cars"})
	require.NoError(t, err)

	var found bool
	for _, i := range report.Insights {
		if i.Title == "High aged inventory" {
			found = true
			assert.Equal(t, insight.PriorityHigh, i.Priority)
			assert.Equal(t, insight.TypeRisk, i.Type)
		}
	}
	assert.True(t, found, "expected a high aged inventory insight")
}

func TestGenerateInsightsFlagsConcentration(t *testing.T) {
	store := openTestStore(t)
	aging := make([]int64, 11)
	for i := range aging {
		aging[i] = 5
	}
	seedInventory(t, store, aging)

	gen := insight.New(store)
	report, err := gen.GenerateInsights(context.Background(), []string{"cars"})
	require.NoError(t, err)

	var found bool
	for _, i := range report.Insights {
		if i.Type == insight.TypeComparison {
			found = true
		}
	}
	assert.True(t, found, "expected a make-concentration insight")
}

func TestGetHighPriorityInsightsFilters(t *testing.T) {
	store := openTestStore(t)
	aging := make([]int64, 0, 20)
	for i := 0; i < 5; i++ {
		aging = append(aging, 95)
	}
	for i := 0; i < 15; i++ {
		aging = append(aging, 10)
	}
	seedInventory(t, store, aging)

	gen := insight.New(store)
	high, err := gen.GetHighPriorityInsights(context.Background(), []string{"cars"})
	require.NoError(t, err)
	for _, i := range high {
		assert.Contains(t, []insight.Priority{insight.PriorityHigh, insight.PriorityCritical}, i.Priority)
	}
}
