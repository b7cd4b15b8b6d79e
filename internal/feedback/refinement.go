package feedback

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nebulus-edge/intelligence/internal/knowledge"
)

// Thresholds controlling when refinement.go proposes a change,
// grounded on original_source/intelligence/core/refinement.py's
// KnowledgeRefiner class constants.
const (
	minFeedbackForAnalysis  = 10
	lowSatisfactionThreshold = 0.5
	weightAdjustmentThreshold = 0.3 // 30% negative feedback rate triggers review
)

// WeightAdjustment is a suggested change to a scoring factor's weight.
type WeightAdjustment struct {
	Category       string
	FactorName     string
	CurrentWeight  int
	SuggestedWeight int
	Confidence     float64
	Reasoning      string
}

// Report is the output of one refinement analysis pass.
type Report struct {
	GeneratedAt        time.Time
	FeedbackAnalyzed   int
	SatisfactionRate   float64
	WeightAdjustments  []WeightAdjustment
	GeneralSuggestions []string
	MetricsReview      map[string]any
}

// Analyzer turns accumulated feedback into refinement suggestions
// against a knowledge store.
type Analyzer struct {
	knowledge *knowledge.Store
	feedback  *Store
}

// NewAnalyzer constructs a refinement Analyzer.
func NewAnalyzer(k *knowledge.Store, f *Store) *Analyzer {
	return &Analyzer{knowledge: k, feedback: f}
}

// AnalyzeAndSuggest analyzes the trailing window of days of feedback
// and proposes weight adjustments and general suggestions. Suggestions
// below minConfidence are omitted from WeightAdjustments.
func (a *Analyzer) AnalyzeAndSuggest(ctx context.Context, days int, minConfidence float64) (Report, error) {
	summary, err := a.feedback.GetSummary(ctx, "", days)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		GeneratedAt:      time.Now().UTC(),
		FeedbackAnalyzed: summary.TotalCount,
		MetricsReview:    make(map[string]any),
	}
	if summary.TotalCount > 0 {
		report.SatisfactionRate = float64(summary.PositiveCount) / float64(summary.TotalCount)
	}

	if summary.TotalCount < minFeedbackForAnalysis {
		report.GeneralSuggestions = append(report.GeneralSuggestions,
			fmt.Sprintf("Insufficient feedback for detailed analysis. Need at least %d entries, currently have %d.",
				minFeedbackForAnalysis, summary.TotalCount))
		return report, nil
	}

	if err := a.analyzeScoringFeedback(ctx, &report, minConfidence); err != nil {
		return Report{}, err
	}
	if err := a.analyzeOutcomes(ctx, &report); err != nil {
		return Report{}, err
	}

	if report.SatisfactionRate < lowSatisfactionThreshold {
		report.GeneralSuggestions = append(report.GeneralSuggestions,
			fmt.Sprintf("Overall satisfaction rate (%.0f%%) is below threshold (%.0f%%). "+
				"Review negative feedback patterns for improvement opportunities.",
				report.SatisfactionRate*100, lowSatisfactionThreshold*100))
	}

	a.reviewMetrics(&report)

	return report, nil
}

func (a *Analyzer) analyzeScoringFeedback(ctx context.Context, report *Report, minConfidence float64) error {
	scoringFeedback, err := a.feedback.GetFeedback(ctx, Filter{Type: TypeScoring, Limit: 1000})
	if err != nil {
		return err
	}
	if len(scoringFeedback) == 0 {
		return nil
	}

	// category -> factor name -> raw ratings
	byCategory := make(map[string]map[string][]int)
	for _, fb := range scoringFeedback {
		if fb.Context == nil {
			continue
		}
		category, _ := fb.Context["category"].(string)
		if category == "" {
			category = "unknown"
		}
		rawFactors, _ := fb.Context["factors"].([]any)
		if byCategory[category] == nil {
			byCategory[category] = make(map[string][]int)
		}
		for _, rf := range rawFactors {
			name, ok := rf.(string)
			if !ok {
				continue
			}
			byCategory[category][name] = append(byCategory[category][name], int(fb.Rating))
		}
	}

	for category, factors := range byCategory {
		existing := a.knowledge.Factors(category)
		for factorName, ratings := range factors {
			if len(ratings) < 3 {
				continue
			}
			negative := 0
			for _, r := range ratings {
				if r < 0 {
					negative++
				}
			}
			negativeRate := float64(negative) / float64(len(ratings))
			if negativeRate <= weightAdjustmentThreshold {
				continue
			}

			currentWeight := 0
			for _, f := range existing {
				if f.Name == factorName {
					currentWeight = f.Weight
					break
				}
			}

			adjustmentFactor := 1 - (negativeRate * 0.5)
			suggestedWeight := int(float64(currentWeight) * adjustmentFactor)

			confidence := float64(len(ratings)) / 20
			if confidence > 1.0 {
				confidence = 1.0
			}
			if confidence < minConfidence {
				continue
			}

			report.WeightAdjustments = append(report.WeightAdjustments, WeightAdjustment{
				Category:        category,
				FactorName:      factorName,
				CurrentWeight:   currentWeight,
				SuggestedWeight: suggestedWeight,
				Confidence:      confidence,
				Reasoning: fmt.Sprintf("%.0f%% negative feedback rate based on %d ratings",
					negativeRate*100, len(ratings)),
			})
		}
	}

	sort.SliceStable(report.WeightAdjustments, func(i, j int) bool {
		if report.WeightAdjustments[i].Category != report.WeightAdjustments[j].Category {
			return report.WeightAdjustments[i].Category < report.WeightAdjustments[j].Category
		}
		return report.WeightAdjustments[i].FactorName < report.WeightAdjustments[j].FactorName
	})
	return nil
}

func (a *Analyzer) analyzeOutcomes(ctx context.Context, report *Report) error {
	hasOutcome := true
	feedbackWithOutcomes, err := a.feedback.GetFeedback(ctx, Filter{Type: TypeRecommendation, HasOutcome: &hasOutcome, Limit: 1000})
	if err != nil {
		return err
	}
	if len(feedbackWithOutcomes) == 0 {
		return nil
	}

	positiveKeywords := []string{"success", "helped", "good", "improved", "increase"}
	negativeKeywords := []string{"failed", "worse", "bad", "decrease", "wrong"}

	var positive, negative int
	for _, fb := range feedbackWithOutcomes {
		if fb.Outcome == "" {
			continue
		}
		outcome := strings.ToLower(fb.Outcome)
		switch {
		case containsAny(outcome, positiveKeywords):
			positive++
		case containsAny(outcome, negativeKeywords):
			negative++
		}
	}

	total := positive + negative
	if total > 0 {
		successRate := float64(positive) / float64(total)
		report.MetricsReview["recommendation_success_rate"] = successRate
		report.MetricsReview["recommendations_with_outcomes"] = total
		if successRate < 0.5 {
			report.GeneralSuggestions = append(report.GeneralSuggestions,
				fmt.Sprintf("Recommendation success rate (%.0f%%) is below 50%%. "+
					"Consider reviewing the factors used for recommendations.", successRate*100))
		}
	}
	return nil
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func (a *Analyzer) reviewMetrics(report *Report) {
	for name, metric := range a.knowledge.Metrics() {
		report.MetricsReview[name+"_target"] = metric.Target
		report.MetricsReview[name+"_warning"] = metric.Warning
		report.MetricsReview[name+"_critical"] = metric.Critical
	}
}

// ApplyAdjustments writes suggested weight adjustments whose confidence
// meets minConfidence into the knowledge store, returning per-factor
// success status.
func (a *Analyzer) ApplyAdjustments(adjustments []WeightAdjustment, minConfidence float64) map[string]bool {
	results := make(map[string]bool, len(adjustments))
	for _, adj := range adjustments {
		if adj.Confidence < minConfidence {
			results[adj.FactorName] = false
			continue
		}
		weight := adj.SuggestedWeight
		ok, err := a.knowledge.UpdateFactor(adj.Category, adj.FactorName, &weight, nil)
		results[adj.FactorName] = ok && err == nil
	}
	return results
}

// ImprovementPriority is a prioritized area needing attention.
type ImprovementPriority struct {
	Area       string
	Issue      string
	Frequency  int
	Priority   float64
	Suggestion string
}

// GetImprovementPriorities ranks recurring negative-feedback query
// patterns and scoring-category imbalance by priority, highest first.
func (a *Analyzer) GetImprovementPriorities(ctx context.Context) ([]ImprovementPriority, error) {
	var priorities []ImprovementPriority

	patterns, err := a.feedback.GetNegativeFeedbackPatterns(ctx, 5)
	if err != nil {
		return nil, err
	}
	for _, p := range patterns {
		priority := float64(p.Count) / 10
		if priority > 1.0 {
			priority = 1.0
		}
		priorities = append(priorities, ImprovementPriority{
			Area:       "query_handling",
			Issue:      p.Query,
			Frequency:  p.Count,
			Priority:   priority,
			Suggestion: "Review query handling for this pattern",
		})
	}

	summary, err := a.feedback.GetSummary(ctx, TypeScoring, 30)
	if err != nil {
		return nil, err
	}
	if summary.NegativeCount > summary.PositiveCount {
		priorities = append(priorities, ImprovementPriority{
			Area:       "scoring",
			Issue:      "More negative than positive feedback on scoring",
			Frequency:  summary.NegativeCount,
			Priority:   0.8,
			Suggestion: "Review scoring factor weights and calculations",
		})
	}

	sort.SliceStable(priorities, func(i, j int) bool { return priorities[i].Priority > priorities[j].Priority })
	return priorities, nil
}

// GenerateSummaryReport renders a human-readable refinement report
// over the trailing 30 days.
func (a *Analyzer) GenerateSummaryReport(ctx context.Context) (string, error) {
	report, err := a.AnalyzeAndSuggest(ctx, 30, 0.5)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Knowledge Refinement Report\n")
	b.WriteString(strings.Repeat("=", 40) + "\n")
	b.WriteString(fmt.Sprintf("Generated: %s\n", report.GeneratedAt.Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("Feedback Analyzed: %d\n", report.FeedbackAnalyzed))
	b.WriteString(fmt.Sprintf("Satisfaction Rate: %.1f%%\n\n", report.SatisfactionRate*100))

	if len(report.WeightAdjustments) > 0 {
		b.WriteString("Suggested Weight Adjustments:\n")
		b.WriteString(strings.Repeat("-", 30) + "\n")
		for _, adj := range report.WeightAdjustments {
			b.WriteString(fmt.Sprintf("  %s/%s: %d -> %d (confidence: %.0f%%)\n",
				adj.Category, adj.FactorName, adj.CurrentWeight, adj.SuggestedWeight, adj.Confidence*100))
			b.WriteString(fmt.Sprintf("    Reason: %s\n", adj.Reasoning))
		}
		b.WriteString("\n")
	}

	if len(report.GeneralSuggestions) > 0 {
		b.WriteString("General Suggestions:\n")
		b.WriteString(strings.Repeat("-", 30) + "\n")
		for _, s := range report.GeneralSuggestions {
			b.WriteString(fmt.Sprintf("  - %s\n", s))
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n"), nil
}
