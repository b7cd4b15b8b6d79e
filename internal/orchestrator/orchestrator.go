// Package orchestrator coordinates the classifier, SQL engine, vector
// store, and knowledge store to answer arbitrary questions about the
// ingested data (C12): the single entry point every HTTP /query/ask
// call goes through.
//
// Grounded on original_source/intelligence/core/orchestrator.py for the
// classify -> gather-context -> synthesize pipeline, prompt templates,
// and scoring-enhanced follow-up.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/nebulus-edge/intelligence/internal/knowledge"
	"github.com/nebulus-edge/intelligence/internal/llm"
	"github.com/nebulus-edge/intelligence/internal/relational"
	"github.com/nebulus-edge/intelligence/internal/scoring"
	"github.com/nebulus-edge/intelligence/internal/vector"
)

const synthesisPromptTemplate = `You are an AI business analyst. Based on the context below,
answer the user's question clearly and actionably.

Question: "%s"

%s

Guidelines:
- Be specific and data-driven
- Provide actionable recommendations when appropriate
- Reference the supporting data in your answer
- If the data is insufficient, say so clearly

Answer:`

const strategicPromptTemplate = `You are an AI business strategist for a %s.

Question: "%s"

%s

%s

Based on the domain knowledge and data above, provide strategic recommendations.
Be specific, actionable, and reference both the business rules and the actual data.

Strategic Analysis:`

// Response is the complete answer to a question, with supporting
// evidence for the caller to render alongside the prose answer.
type Response struct {
	Answer          string
	SupportingData  []map[string]any
	Reasoning       string
	SQLUsed         string
	SimilarRecords  []SimilarRecordRef
	Classification  string
	Confidence      float64
}

// SimilarRecordRef names which table a semantically similar record
// came from alongside its payload.
type SimilarRecordRef struct {
	Table  string
	ID     string
	Record map[string]any
}

// Orchestrator wires together every engine needed to answer a
// question end to end.
type Orchestrator struct {
	relational   *relational.Store
	vectors      *vector.Store // nil disables semantic search
	knowledge    *knowledge.Store
	llmClient    *llm.Client
	templateName string
}

// New constructs an Orchestrator. vectors may be nil if semantic search
// is not configured.
func New(rel *relational.Store, vectors *vector.Store, kb *knowledge.Store, client *llm.Client, templateName string) *Orchestrator {
	return &Orchestrator{relational: rel, vectors: vectors, knowledge: kb, llmClient: client, templateName: templateName}
}

// Ask classifies question, gathers whatever context the classification
// calls for, and synthesizes a final natural-language answer.
func (o *Orchestrator) Ask(ctx context.Context, question string, useSimpleClassification bool) (*Response, error) {
	schema, err := o.relational.Schema(ctx)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	var classification llm.Classification
	if useSimpleClassification {
		classification = llm.ClassifySimple(question)
	} else {
		classification = o.llmClient.Classify(ctx, question, schema)
	}

	gathered := o.gatherContext(ctx, question, classification, schema)
	return o.synthesize(ctx, question, gathered, classification)
}

type gatheredContext struct {
	sqlQuery       string
	sqlResults     []map[string]any
	sqlError       string
	similarRecords []SimilarRecordRef
	semanticError  string
	knowledgeCard  string
	tables         []string
}

func (o *Orchestrator) gatherContext(ctx context.Context, question string, classification llm.Classification, schema *relational.Schema) gatheredContext {
	tableNames := make([]string, 0, len(schema.Tables))
	for name := range schema.Tables {
		tableNames = append(tableNames, name)
	}
	sort.Strings(tableNames)

	gc := gatheredContext{tables: tableNames}

	if classification.NeedsSQL {
		card, err := o.relational.SchemaCard(ctx)
		if err != nil {
			gc.sqlError = err.Error()
		} else if sql, err := o.llmClient.NaturalToSQL(ctx, question, card); err != nil {
			gc.sqlError = err.Error()
		} else if result, err := o.relational.Execute(ctx, sql); err != nil {
			gc.sqlError = err.Error()
		} else {
			gc.sqlQuery = sql
			gc.sqlResults = rowsToMaps(result, 50)
		}
	}

	if classification.NeedsSemantic && o.vectors != nil {
		if similar, err := o.searchPrioritizedTables(ctx, question, tableNames); err != nil {
			gc.semanticError = err.Error()
		} else {
			gc.similarRecords = similar
		}
	}

	if classification.NeedsKnowledge && o.knowledge != nil {
		gc.knowledgeCard = o.knowledge.ExportForPrompt()
	}

	return gc
}

func rowsToMaps(result *relational.QueryResult, limit int) []map[string]any {
	n := len(result.Rows)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]map[string]any, n)
	for i := 0; i < n; i++ {
		record := make(map[string]any, len(result.Columns))
		for j, col := range result.Columns {
			if j < len(result.Rows[i]) {
				record[col] = result.Rows[i][j]
			}
		}
		out[i] = record
	}
	return out
}

// searchPrioritizedTables searches tables whose name appears in the
// question first, then falls through to every other vector-indexed
// table, returning the first non-empty hit set.
func (o *Orchestrator) searchPrioritizedTables(ctx context.Context, question string, tableNames []string) ([]SimilarRecordRef, error) {
	collections, err := o.vectors.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	withVectors := make(map[string]bool, len(collections))
	for _, c := range collections {
		withVectors[c] = true
	}

	var prioritized, other []string
	lowerQuestion := strings.ToLower(question)
	for _, t := range tableNames {
		if !withVectors[t] {
			continue
		}
		singular := strings.TrimSuffix(t, "s")
		if strings.Contains(lowerQuestion, t) || strings.Contains(lowerQuestion, singular) {
			prioritized = append(prioritized, t)
		} else {
			other = append(other, t)
		}
	}
	searchOrder := append(prioritized, other...)

	for _, table := range searchOrder {
		similar, err := o.vectors.SearchSimilar(ctx, table, question, 10)
		if err != nil {
			return nil, err
		}
		if len(similar) == 0 {
			continue
		}
		refs := make([]SimilarRecordRef, len(similar))
		for i, s := range similar {
			refs[i] = SimilarRecordRef{Table: table, ID: s.ID, Record: s.Record}
		}
		return refs, nil
	}
	return nil, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, question string, gc gatheredContext, classification llm.Classification) (*Response, error) {
	var parts []string
	if len(gc.sqlResults) > 0 {
		preview := gc.sqlResults
		if len(preview) > 10 {
			preview = preview[:10]
		}
		parts = append(parts, fmt.Sprintf("## Data Results\n```\n%v\n```", preview))
		if gc.sqlQuery != "" {
			parts = append(parts, fmt.Sprintf("SQL Used: `%s`", gc.sqlQuery))
		}
	}
	if len(gc.similarRecords) > 0 {
		preview := gc.similarRecords
		if len(preview) > 5 {
			preview = preview[:5]
		}
		parts = append(parts, fmt.Sprintf("## Similar Records Found\n%v", preview))
	}
	if gc.knowledgeCard != "" {
		parts = append(parts, fmt.Sprintf("## Domain Knowledge\n%s", gc.knowledgeCard))
	}
	if gc.sqlError != "" {
		parts = append(parts, fmt.Sprintf("Note: SQL query failed - %s", gc.sqlError))
	}
	if gc.semanticError != "" {
		parts = append(parts, fmt.Sprintf("Note: semantic search failed - %s", gc.semanticError))
	}

	contextText := "No data found."
	if len(parts) > 0 {
		contextText = strings.Join(parts, "\n\n")
	}

	var prompt string
	if classification.QueryType == llm.QueryStrategic {
		domainKnowledge := gc.knowledgeCard
		if domainKnowledge == "" {
			domainKnowledge = "No domain knowledge."
		}
		prompt = fmt.Sprintf(strategicPromptTemplate, o.templateName, question, domainKnowledge, contextText)
	} else {
		prompt = fmt.Sprintf(synthesisPromptTemplate, question, contextText)
	}

	answer, err := o.callBrain(ctx, prompt)
	if err != nil {
		answer = fmt.Sprintf("I was unable to fully analyze your question: %v", err)
	}

	return &Response{
		Answer:         answer,
		SupportingData: gc.sqlResults,
		Reasoning:      classification.Reasoning,
		SQLUsed:        gc.sqlQuery,
		SimilarRecords: gc.similarRecords,
		Classification: string(classification.QueryType),
		Confidence:     classification.Confidence,
	}, nil
}

func (o *Orchestrator) callBrain(ctx context.Context, prompt string) (string, error) {
	completion, err := o.llmClient.Complete(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, 0.7, 1000)
	if err != nil {
		return "", err
	}
	return completion.Content, nil
}

// AskWithScoring scores the records of table against category, runs Ask,
// then sends a second prompt combining Ask's answer with the top and
// bottom scored records, so the model can reason about what
// distinguishes high- and low-scoring records. If scoring yields nothing,
// Ask's response is returned as is.
func (o *Orchestrator) AskWithScoring(ctx context.Context, question, table, category string) (*Response, error) {
	engine := scoring.New(o.knowledge)

	records, err := o.relational.ExecuteToRecords(ctx, fmt.Sprintf(`SELECT * FROM "%s"`, table))
	var scored []scoring.ScoredRecord
	var distribution scoring.Distribution
	var factorPerf []scoring.FactorPerformance
	if err == nil {
		scored = engine.ScoreRecords(category, records, true, 20)
		distribution = scoring.Distribute(scored)
		factorPerf = scoring.FactorPerformanceStats(scored)
	}

	response, err := o.Ask(ctx, question, false)
	if err != nil {
		return nil, err
	}
	if len(scored) == 0 {
		return response, nil
	}

	top := scored
	if len(top) > 5 {
		top = top[:5]
	}
	bottomStart := len(scored) - 5
	if bottomStart < 0 {
		bottomStart = 0
	}
	bottom := scored[bottomStart:]

	scoreContext := fmt.Sprintf(`
## Score Distribution
%s

## Factor Performance (what criteria are being met/missed)
%v

## Top Scored Records
%v

## Lowest Scored Records
%v
`, formatDistribution(distribution), factorPerf, top, bottom)

	enhancedPrompt := fmt.Sprintf(`Based on this scoring analysis:

%s

And this previous analysis:
%s

Provide enhanced recommendations considering the scoring data.
What patterns distinguish high-scoring from low-scoring records?
`, scoreContext, response.Answer)

	if enhanced, err := o.callBrain(ctx, enhancedPrompt); err == nil {
		response.Answer = enhanced
	}
	return response, nil
}

func formatDistribution(d scoring.Distribution) string {
	return fmt.Sprintf("count=%d mean=%.1f poor=%d below_average=%d average=%d good=%d excellent=%d",
		d.Count, d.Mean, d.Buckets["poor"], d.Buckets["below_average"], d.Buckets["average"],
		d.Buckets["good"], d.Buckets["excellent"])
}
