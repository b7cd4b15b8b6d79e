package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nebulus-edge/intelligence/internal/relational"
)

// QueryType is the routing decision for a question (§4.11).
type QueryType string

const (
	QuerySQLOnly      QueryType = "sql"
	QuerySemanticOnly QueryType = "semantic"
	QueryStrategic    QueryType = "strategic"
	QueryHybrid       QueryType = "hybrid"
)

// Classification is the result of routing a question.
type Classification struct {
	QueryType       QueryType
	Reasoning       string
	NeedsSQL        bool
	NeedsSemantic   bool
	NeedsKnowledge  bool
	SuggestedTables []string
	Confidence      float64
}

const classificationPromptTemplate = `You are a query classifier for a business intelligence system.

Analyze this question and determine how to answer it.

Question: "%s"

Available database tables and columns:
%s

Question Types:
1. SQL_ONLY - Can be answered with a database query (counts, sums, filters, joins, aggregations)
2. SEMANTIC_ONLY - Needs similarity or pattern matching, not exact queries
3. STRATEGIC - Requires reasoning about what's "best" or "ideal" using business knowledge
4. HYBRID - Needs data from multiple approaches combined

Respond with JSON only:
{
    "query_type": "sql" | "semantic" | "strategic" | "hybrid",
    "reasoning": "Brief explanation of why this classification",
    "needs_sql": true | false,
    "needs_semantic": true | false,
    "needs_knowledge": true | false,
    "suggested_tables": ["table1", "table2"],
    "confidence": 0.0 to 1.0
}`

var strategicKeywords = []string{
	"ideal", "best", "optimal", "should we", "recommend", "strategy", "what makes", "why do", "perfect",
}

var semanticKeywords = []string{
	"similar", "like this", "find like", "pattern", "common",
}

// ClassifySimple performs rule-based classification without an LLM call,
// used when the caller requests a fast path or the LLM is unavailable.
func ClassifySimple(question string) Classification {
	lower := strings.ToLower(question)

	for _, kw := range strategicKeywords {
		if strings.Contains(lower, kw) {
			return Classification{
				QueryType: QueryStrategic, Reasoning: "Contains strategic keywords",
				NeedsSQL: true, NeedsSemantic: true, NeedsKnowledge: true, Confidence: 0.7,
			}
		}
	}
	for _, kw := range semanticKeywords {
		if strings.Contains(lower, kw) {
			return Classification{
				QueryType: QuerySemanticOnly, Reasoning: "Contains similarity keywords",
				NeedsSQL: false, NeedsSemantic: true, NeedsKnowledge: false, Confidence: 0.7,
			}
		}
	}
	return Classification{
		QueryType: QuerySQLOnly, Reasoning: "Appears to be a data query",
		NeedsSQL: true, NeedsSemantic: false, NeedsKnowledge: false, Confidence: 0.7,
	}
}

// Classify asks the LLM to classify a question within a 30-second bound,
// falling back to SQL_ONLY on any transport failure or timeout, and to
// keyword inference over the reply text when the reply is not valid JSON.
func (c *Client) Classify(ctx context.Context, question string, schema *relational.Schema) Classification {
	prompt := classificationPromptText(question, schema)
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	completion, err := c.Complete(ctx, []Message{{Role: RoleUser, Content: prompt}}, 0.1, 500)
	if err != nil {
		return Classification{
			QueryType: QuerySQLOnly, Reasoning: "Classification failed (" + err.Error() + "), defaulting to SQL",
			NeedsSQL: true, Confidence: 0.5,
		}
	}
	return parseClassification(completion.Content)
}

func classificationPromptText(question string, schema *relational.Schema) string {
	var b strings.Builder
	if schema == nil || len(schema.Tables) == 0 {
		b.WriteString("No tables available")
	} else {
		for _, t := range schema.Tables {
			b.WriteString("- ")
			b.WriteString(t.Name)
			b.WriteString(": ")
			for i, col := range t.Columns {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(col.Name)
				b.WriteString(" (")
				b.WriteString(string(col.Type))
				b.WriteString(")")
			}
			b.WriteString("\n")
		}
	}
	return fmt.Sprintf(classificationPromptTemplate, question, b.String())
}

type classificationJSON struct {
	QueryType       string   `json:"query_type"`
	Reasoning       string   `json:"reasoning"`
	NeedsSQL        bool     `json:"needs_sql"`
	NeedsSemantic   bool     `json:"needs_semantic"`
	NeedsKnowledge  bool     `json:"needs_knowledge"`
	SuggestedTables []string `json:"suggested_tables"`
	Confidence      float64  `json:"confidence"`
}

// parseClassification is JSON-tolerant: it strips markdown code fences
// before parsing, and on any parse failure falls back to keyword matching
// over the raw text response.
func parseClassification(response string) Classification {
	cleaned := stripCodeFence(response)

	var data classificationJSON
	if err := json.Unmarshal([]byte(strings.TrimSpace(cleaned)), &data); err == nil {
		qt := QueryType(strings.ToLower(data.QueryType))
		switch qt {
		case QuerySQLOnly, QuerySemanticOnly, QueryStrategic, QueryHybrid:
		default:
			qt = QuerySQLOnly
		}
		confidence := data.Confidence
		if confidence == 0 {
			confidence = 0.8
		}
		return Classification{
			QueryType: qt, Reasoning: data.Reasoning, NeedsSQL: data.NeedsSQL,
			NeedsSemantic: data.NeedsSemantic, NeedsKnowledge: data.NeedsKnowledge,
			SuggestedTables: data.SuggestedTables, Confidence: confidence,
		}
	}

	lower := strings.ToLower(response)
	switch {
	case strings.Contains(lower, "strategic") || strings.Contains(lower, "ideal"):
		return Classification{QueryType: QueryStrategic, Reasoning: "Parsed from text response", NeedsSQL: true, NeedsSemantic: true, NeedsKnowledge: true, Confidence: 0.6}
	case strings.Contains(lower, "semantic") || strings.Contains(lower, "similar"):
		return Classification{QueryType: QuerySemanticOnly, Reasoning: "Parsed from text response", NeedsSQL: false, NeedsSemantic: true, NeedsKnowledge: false, Confidence: 0.6}
	case strings.Contains(lower, "hybrid"):
		return Classification{QueryType: QueryHybrid, Reasoning: "Parsed from text response", NeedsSQL: true, NeedsSemantic: true, NeedsKnowledge: true, Confidence: 0.6}
	default:
		return Classification{QueryType: QuerySQLOnly, Reasoning: "Parsed from text response", NeedsSQL: true, NeedsSemantic: false, NeedsKnowledge: false, Confidence: 0.6}
	}
}

func stripCodeFence(s string) string {
	if strings.Contains(s, "```json") {
		parts := strings.SplitN(s, "```json", 2)
		if len(parts) == 2 {
			if end := strings.Index(parts[1], "```"); end >= 0 {
				return parts[1][:end]
			}
		}
	}
	if strings.Contains(s, "```") {
		parts := strings.SplitN(s, "```", 3)
		if len(parts) >= 2 {
			return parts[1]
		}
	}
	return s
}
