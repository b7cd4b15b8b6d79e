package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseClassificationFromJSON(t *testing.T) {
	resp := `{"query_type": "hybrid", "reasoning": "needs both", "needs_sql": true, "needs_semantic": true, "needs_knowledge": true, "suggested_tables": ["cars"], "confidence": 0.9}`
	c := parseClassification(resp)
	assert.Equal(t, QueryHybrid, c.QueryType)
	assert.Equal(t, []string{"cars"}, c.SuggestedTables)
	assert.InDelta(t, 0.9, c.Confidence, 0.001)
}

func TestParseClassificationStripsCodeFence(t *testing.T) {
	resp := "```json\n{\"query_type\": \"sql\", \"needs_sql\": true}\n```"
	c := parseClassification(resp)
	assert.Equal(t, QuerySQLOnly, c.QueryType)
}

func TestParseClassificationFallsBackToKeywords(t *testing.T) {
	c := parseClassification("this is not json but mentions strategic planning")
	assert.Equal(t, QueryStrategic, c.QueryType)
}

func TestExtractSQLStripsFenceAndSemicolon(t *testing.T) {
	got := extractSQL("```sql\nSELECT * FROM cars;\n```")
	assert.Equal(t, "SELECT * FROM cars", got)
}

func TestExtractSQLPlainStatement(t *testing.T) {
	got := extractSQL("  SELECT 1;  ")
	assert.Equal(t, "SELECT 1", got)
}
