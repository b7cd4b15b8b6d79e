package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nebulus-edge/intelligence/internal/relational"
)

const naturalToSQLPrompt = `You are a SQL expert. Convert the following natural language question to a SQLite query.

%s

Question: %s

Rules:
1. Return ONLY the SQL query, no explanation
2. Use SQLite syntax
3. Only use SELECT statements (no INSERT, UPDATE, DELETE)
4. Use table and column names exactly as shown in the schema
5. If the question cannot be answered with the available data, return: SELECT 'Cannot answer: <reason>' AS error

SQL Query:`

// NaturalToSQL converts a natural-language question into a SQL query
// string, given a pre-rendered schema card.
func (c *Client) NaturalToSQL(ctx context.Context, question, schemaCard string) (string, error) {
	prompt := fmt.Sprintf(naturalToSQLPrompt, schemaCard, question)
	completion, err := c.Complete(ctx, []Message{{Role: RoleUser, Content: prompt}}, 0.1, 500)
	if err != nil {
		return "", fmt.Errorf("natural to sql: %w", err)
	}
	return extractSQL(completion.Content), nil
}

// extractSQL strips markdown fences and a trailing semicolon from an LLM
// response, leaving a bare SQL statement.
func extractSQL(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		lines = lines[1:]
		if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
			lines = lines[:len(lines)-1]
		}
		content = strings.Join(lines, "\n")
	}
	content = strings.TrimSpace(content)
	content = strings.TrimSuffix(content, ";")
	return content
}

const explainResultsPrompt = `Given the following question, SQL query, and results, provide a clear, concise answer.

Question: %s

SQL Query: %s

Results:
%s

Answer the question directly based on the results. Be specific with numbers and data. Keep the answer to 2-3 sentences.`

// ExplainResults asks the LLM to turn raw query results into a natural
// language answer, showing at most the first 10 rows in the prompt.
func (c *Client) ExplainResults(ctx context.Context, question, sql string, result *relational.QueryResult) (string, error) {
	resultsStr := "No rows returned."
	if result.RowCount > 0 {
		shown := result.Rows
		if len(shown) > 10 {
			shown = shown[:10]
		}
		payload := map[string]any{
			"columns":    result.Columns,
			"rows":       shown,
			"total_rows": result.RowCount,
		}
		b, err := json.MarshalIndent(payload, "", "  ")
		if err == nil {
			resultsStr = string(b)
		}
	}

	prompt := fmt.Sprintf(explainResultsPrompt, question, sql, resultsStr)
	completion, err := c.Complete(ctx, []Message{{Role: RoleUser, Content: prompt}}, 0, 300)
	if err != nil {
		return "", fmt.Errorf("explain results: %w", err)
	}
	return completion.Content, nil
}
