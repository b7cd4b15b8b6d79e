// Package insight implements automated insight generation (C10):
// numeric-column anomaly detection, inventory-aging risk/opportunity
// analysis, and categorical-concentration flags, synthesized into a
// single report without requiring a user prompt.
//
// Grounded on original_source/intelligence/core/insights.py for the
// exact statistical passes, thresholds, and summary wording.
package insight

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/nebulus-edge/intelligence/internal/relational"
)

// Type is the closed taxonomy of insight kinds.
type Type string

const (
	TypeTrend       Type = "trend"
	TypeAnomaly     Type = "anomaly"
	TypeOpportunity Type = "opportunity"
	TypeRisk        Type = "risk"
	TypeMilestone   Type = "milestone"
	TypeComparison  Type = "comparison"
)

// Priority ranks how urgently an insight needs attention.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Insight is a single automatically generated finding.
type Insight struct {
	Type            Type
	Priority        Priority
	Title           string
	Description     string
	DataPoints      map[string]any
	Recommendations []string
	GeneratedAt     time.Time
	TableName       string
	Category        string
}

// Report collects every insight produced by one analysis run.
type Report struct {
	GeneratedAt    time.Time
	TablesAnalyzed []string
	Insights       []Insight
	Summary        string
}

// ByPriority counts insights per priority level.
func (r *Report) ByPriority() map[Priority]int {
	counts := make(map[Priority]int)
	for _, i := range r.Insights {
		counts[i.Priority]++
	}
	return counts
}

// ByType counts insights per insight type.
func (r *Report) ByType() map[Type]int {
	counts := make(map[Type]int)
	for _, i := range r.Insights {
		counts[i.Type]++
	}
	return counts
}

// Generator produces insight reports from a relational store.
type Generator struct {
	store *relational.Store
}

// New constructs a Generator over the given relational store.
func New(store *relational.Store) *Generator {
	return &Generator{store: store}
}

// GenerateInsights analyzes the given tables (or every table, if tables
// is nil) and returns a synthesized report.
func (g *Generator) GenerateInsights(ctx context.Context, tables []string) (Report, error) {
	report := Report{GeneratedAt: time.Now().UTC()}

	if tables == nil {
		all, err := g.store.ListTables(ctx)
		if err != nil {
			return Report{}, err
		}
		tables = all
	}
	report.TablesAnalyzed = tables

	if len(tables) == 0 {
		report.Summary = "No tables available for analysis."
		return report, nil
	}

	for _, table := range tables {
		if err := g.analyzeTable(ctx, table, &report); err != nil {
			return Report{}, fmt.Errorf("analyze table %q: %w", table, err)
		}
	}

	report.Summary = generateSummary(report)
	return report, nil
}

func (g *Generator) analyzeTable(ctx context.Context, table string, report *Report) error {
	schema, err := g.store.TableSchema(ctx, table)
	if err != nil {
		return err
	}
	if schema.RowCount == 0 {
		return nil
	}

	var numericCols, dateCols, textCols []string
	hasDaysOnLot := false
	for _, c := range schema.Columns {
		switch c.Type {
		case relational.TypeInteger, relational.TypeReal:
			numericCols = append(numericCols, c.Name)
		case relational.TypeText:
			textCols = append(textCols, c.Name)
		}
		if strings.Contains(strings.ToLower(c.Name), "date") || strings.Contains(strings.ToLower(c.Name), "time") {
			dateCols = append(dateCols, c.Name)
		}
		if c.Name == "days_on_lot" {
			hasDaysOnLot = true
		}
	}
	_ = dateCols // date-trend analysis is a deliberate no-op upstream too

	for _, col := range numericCols {
		if err := g.analyzeNumericColumn(ctx, table, col, schema.RowCount, report); err != nil {
			return err
		}
	}

	if hasDaysOnLot {
		if err := g.analyzeInventoryAging(ctx, table, report); err != nil {
			return err
		}
	}

	if err := g.analyzeDistributions(ctx, table, textCols, report); err != nil {
		return err
	}

	return nil
}

func (g *Generator) analyzeNumericColumn(ctx context.Context, table, column string, totalRows int64, report *Report) error {
	result, err := g.store.Execute(ctx, fmt.Sprintf(
		`SELECT AVG("%s"), COUNT(*) FROM "%s" WHERE "%s" IS NOT NULL`, column, table, column))
	if err != nil {
		return err
	}
	if len(result.Rows) == 0 {
		return nil
	}
	avg, _ := asFloat(result.Rows[0][0])
	count, _ := asFloat(result.Rows[0][1])
	if count == 0 {
		return nil
	}

	varResult, err := g.store.Execute(ctx, fmt.Sprintf(
		`SELECT AVG("%s" * "%s") - AVG("%s") * AVG("%s") FROM "%s" WHERE "%s" IS NOT NULL`,
		column, column, column, column, table, column))
	if err != nil {
		return err
	}
	variance := 0.0
	if len(varResult.Rows) > 0 {
		variance, _ = asFloat(varResult.Rows[0][0])
	}
	if variance <= 0 {
		return nil
	}
	stddev := math.Sqrt(variance)
	threshold := avg + (3 * stddev)

	countResult, err := g.store.Execute(ctx, fmt.Sprintf(
		`SELECT COUNT(*) FROM "%s" WHERE "%s" > %f`, table, column, threshold))
	if err != nil {
		return err
	}
	outlierCount, _ := asFloat(countResult.Rows[0][0])
	if outlierCount == 0 || float64(totalRows) == 0 {
		return nil
	}
	if outlierCount/float64(totalRows) <= 0.01 {
		return nil
	}

	report.Insights = append(report.Insights, Insight{
		Type: TypeAnomaly, Priority: PriorityMedium,
		Title:       fmt.Sprintf("Outliers detected in %s", column),
		Description: fmt.Sprintf("Found %.0f records with %s values significantly above average (%.2f)", outlierCount, column, threshold),
		DataPoints: map[string]any{
			"column": column, "outlier_count": outlierCount, "threshold": threshold, "average": avg,
		},
		Recommendations: []string{
			fmt.Sprintf("Review records with %s > %.2f", column, threshold),
			"Check if these represent data quality issues",
		},
		TableName: table, GeneratedAt: time.Now().UTC(),
	})
	return nil
}

func (g *Generator) analyzeInventoryAging(ctx context.Context, table string, report *Report) error {
	result, err := g.store.Execute(ctx, fmt.Sprintf(
		`SELECT
			COUNT(*) as total,
			SUM(CASE WHEN days_on_lot <= 30 THEN 1 ELSE 0 END) as fresh,
			SUM(CASE WHEN days_on_lot > 30 AND days_on_lot <= 60 THEN 1 ELSE 0 END) as aged,
			SUM(CASE WHEN days_on_lot > 60 AND days_on_lot <= 90 THEN 1 ELSE 0 END) as stale,
			SUM(CASE WHEN days_on_lot > 90 THEN 1 ELSE 0 END) as critical
		 FROM "%s"`, table))
	if err != nil {
		return err
	}
	if len(result.Rows) == 0 {
		return nil
	}
	row := result.Rows[0]
	total, _ := asFloat(row[0])
	fresh, _ := asFloat(row[1])
	stale, _ := asFloat(row[3])
	critical, _ := asFloat(row[4])
	if total == 0 {
		return nil
	}

	criticalPct := critical / total
	stalePct := stale / total
	freshPct := fresh / total
	now := time.Now().UTC()

	switch {
	case criticalPct > 0.1:
		report.Insights = append(report.Insights, Insight{
			Type: TypeRisk, Priority: PriorityHigh,
			Title: "High aged inventory",
			Description: fmt.Sprintf(
				"%.0f vehicles (%.0f%%) have been on lot for over 90 days. This represents significant carrying costs.",
				critical, criticalPct*100),
			DataPoints: map[string]any{
				"total_vehicles": total, "critical_count": critical, "critical_percentage": criticalPct, "stale_count": stale,
			},
			Recommendations: []string{
				"Consider price reductions on 90+ day vehicles",
				"Review acquisition strategy to avoid slow-moving inventory",
				"Analyze characteristics of aged vehicles for patterns",
			},
			TableName: table, Category: "inventory_health", GeneratedAt: now,
		})
	case stalePct > 0.15:
		report.Insights = append(report.Insights, Insight{
			Type: TypeRisk, Priority: PriorityMedium,
			Title: "Growing stale inventory",
			Description: fmt.Sprintf(
				"%.0f vehicles (%.0f%%) are between 60-90 days. Monitor closely to prevent aging further.",
				stale, stalePct*100),
			DataPoints: map[string]any{"stale_count": stale, "stale_percentage": stalePct},
			Recommendations: []string{
				"Proactively market 60-90 day vehicles",
				"Consider targeted promotions",
			},
			TableName: table, Category: "inventory_health", GeneratedAt: now,
		})
	}

	if freshPct > 0.7 {
		report.Insights = append(report.Insights, Insight{
			Type: TypeOpportunity, Priority: PriorityLow,
			Title:       "Healthy inventory turnover",
			Description: fmt.Sprintf("%.0f%% of inventory is under 30 days old. Good inventory velocity!", freshPct*100),
			DataPoints:  map[string]any{"fresh_count": fresh, "fresh_percentage": freshPct},
			Recommendations: []string{
				"Maintain current acquisition strategy",
				"Consider expanding inventory if demand supports it",
			},
			TableName: table, Category: "inventory_health", GeneratedAt: now,
		})
	}
	return nil
}

func (g *Generator) analyzeDistributions(ctx context.Context, table string, textCols []string, report *Report) error {
	limit := len(textCols)
	if limit > 5 {
		limit = 5
	}
	now := time.Now().UTC()
	for _, col := range textCols[:limit] {
		result, err := g.store.Execute(ctx, fmt.Sprintf(
			`SELECT "%s", COUNT(*) as cnt FROM "%s" WHERE "%s" IS NOT NULL GROUP BY "%s" ORDER BY cnt DESC LIMIT 5`,
			col, table, col, col))
		if err != nil {
			return err
		}
		if len(result.Rows) < 2 {
			continue
		}
		var total float64
		for _, row := range result.Rows {
			n, _ := asFloat(row[1])
			total += n
		}
		if total == 0 {
			continue
		}
		topVal := result.Rows[0][0]
		topCount, _ := asFloat(result.Rows[0][1])
		topPct := topCount / total

		if topPct > 0.6 && total >= 10 {
			report.Insights = append(report.Insights, Insight{
				Type: TypeComparison, Priority: PriorityLow,
				Title: fmt.Sprintf("Concentration in %s", col),
				Description: fmt.Sprintf(
					"%v represents %.0f%% of values in %s. Consider if this represents opportunity or risk.",
					topVal, topPct*100, col),
				DataPoints: map[string]any{
					"column": col, "dominant_value": topVal, "percentage": topPct, "total_records": total,
				},
				TableName: table, GeneratedAt: now,
			})
		}
	}
	return nil
}

func generateSummary(report Report) string {
	if len(report.Insights) == 0 {
		return "No significant insights found in the current data."
	}

	var highPriority int
	for _, i := range report.Insights {
		if i.Priority == PriorityHigh || i.Priority == PriorityCritical {
			highPriority++
		}
	}

	summary := fmt.Sprintf("Generated %d insights from %d tables.", len(report.Insights), len(report.TablesAnalyzed))
	if highPriority > 0 {
		summary += fmt.Sprintf(" %d high-priority items require attention.", highPriority)
	}

	byType := report.ByType()
	if n, ok := byType[TypeRisk]; ok {
		summary += fmt.Sprintf(" Found %d risk indicators.", n)
	}
	if n, ok := byType[TypeOpportunity]; ok {
		summary += fmt.Sprintf(" Identified %d opportunities.", n)
	}
	return summary
}

// GetHighPriorityInsights returns only HIGH/CRITICAL insights.
func (g *Generator) GetHighPriorityInsights(ctx context.Context, tables []string) ([]Insight, error) {
	report, err := g.GenerateInsights(ctx, tables)
	if err != nil {
		return nil, err
	}
	var out []Insight
	for _, i := range report.Insights {
		if i.Priority == PriorityHigh || i.Priority == PriorityCritical {
			out = append(out, i)
		}
	}
	return out, nil
}

// GetInsightsByCategory returns insights tagged with the given category.
func (g *Generator) GetInsightsByCategory(ctx context.Context, category string, tables []string) ([]Insight, error) {
	report, err := g.GenerateInsights(ctx, tables)
	if err != nil {
		return nil, err
	}
	var out []Insight
	for _, i := range report.Insights {
		if i.Category == category {
			out = append(out, i)
		}
	}
	return out, nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case nil:
		return 0, false
	default:
		return 0, false
	}
}
