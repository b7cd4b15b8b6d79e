// Package scoring implements the rule-driven scoring engine (C8):
// predicate evaluation against rows, weighted totals, distributions, and
// per-factor performance stats.
//
// Grounded on original_source/intelligence/core/scoring.py for the
// predicate grammar and parsing priority, and on this system's
// internal/knowledge for factor storage.
//
// Per §9's re-architecture note, each factor's calculation string is
// parsed into a predicate once per scoring call (once per batch in
// ScoreRecords) rather than re-parsed per row. Parsed predicates are not
// cached across calls.
package scoring

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nebulus-edge/intelligence/internal/knowledge"
)

// predicateKind tags the parsed form of a factor's calculation string.
type predicateKind int

const (
	kindUnparseable predicateKind = iota
	kindIsNotNull
	kindEquals
	kindLessEqual
	kindLess
	kindGreaterEqual
	kindGreater
	kindRatioGreater
)

type predicate struct {
	kind      predicateKind
	column    string
	numerator string // ratio form only
	value     string
	threshold float64
	raw       string
}

// parsePredicate mirrors scoring.py's _evaluate_factor parsing order:
// IS NOT NULL suffix, then " = ", then " <= "/" < ", then " >= "/" > ",
// then the ratio form, else unparseable.
func parsePredicate(calc string) predicate {
	c := strings.TrimSpace(calc)
	switch {
	case strings.HasSuffix(strings.ToUpper(c), "IS NOT NULL"):
		col := strings.TrimSpace(c[:len(c)-len("IS NOT NULL")])
		return predicate{kind: kindIsNotNull, column: col, raw: calc}

	case strings.Contains(c, " = "):
		parts := strings.SplitN(c, " = ", 2)
		value := strings.Trim(strings.TrimSpace(parts[1]), `'"`)
		return predicate{kind: kindEquals, column: strings.TrimSpace(parts[0]), value: value, raw: calc}

	case strings.Contains(c, " <= "):
		parts := strings.SplitN(c, " <= ", 2)
		if v, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err == nil {
			return predicate{kind: kindLessEqual, column: strings.TrimSpace(parts[0]), threshold: v, raw: calc}
		}
		return predicate{kind: kindUnparseable, raw: calc}

	case strings.Contains(c, " < "):
		parts := strings.SplitN(c, " < ", 2)
		if v, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err == nil {
			return predicate{kind: kindLess, column: strings.TrimSpace(parts[0]), threshold: v, raw: calc}
		}
		return predicate{kind: kindUnparseable, raw: calc}

	case strings.Contains(c, " >= "):
		parts := strings.SplitN(c, " >= ", 2)
		if v, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err == nil {
			return predicate{kind: kindGreaterEqual, column: strings.TrimSpace(parts[0]), threshold: v, raw: calc}
		}
		return predicate{kind: kindUnparseable, raw: calc}

	case strings.Contains(c, " > ") && strings.Contains(c, " / "):
		// "a / b > v"
		gtParts := strings.SplitN(c, " > ", 2)
		v, err := strconv.ParseFloat(strings.TrimSpace(gtParts[1]), 64)
		if err != nil {
			return predicate{kind: kindUnparseable, raw: calc}
		}
		ratioParts := strings.SplitN(gtParts[0], " / ", 2)
		if len(ratioParts) != 2 {
			return predicate{kind: kindUnparseable, raw: calc}
		}
		return predicate{
			kind: kindRatioGreater, numerator: strings.TrimSpace(ratioParts[0]),
			column: strings.TrimSpace(ratioParts[1]), threshold: v, raw: calc,
		}

	case strings.Contains(c, " > "):
		parts := strings.SplitN(c, " > ", 2)
		if v, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err == nil {
			return predicate{kind: kindGreater, column: strings.TrimSpace(parts[0]), threshold: v, raw: calc}
		}
		return predicate{kind: kindUnparseable, raw: calc}

	default:
		return predicate{kind: kindUnparseable, raw: calc}
	}
}

// evaluate applies a parsed predicate to a record, returning pass/fail and
// a human-readable detail.
func (p predicate) evaluate(record map[string]any) (bool, string) {
	switch p.kind {
	case kindIsNotNull:
		v, ok := record[p.column]
		if !ok || v == nil {
			return false, fmt.Sprintf("%s is null or absent", p.column)
		}
		if s, isStr := v.(string); isStr && s == "" {
			return false, fmt.Sprintf("%s is empty", p.column)
		}
		return true, fmt.Sprintf("%s is present", p.column)

	case kindEquals:
		v, ok := record[p.column]
		if !ok {
			return false, fmt.Sprintf("%s not present", p.column)
		}
		switch strings.ToLower(p.value) {
		case "true":
			return asBool(v), fmt.Sprintf("%s == true", p.column)
		case "false":
			return !asBool(v), fmt.Sprintf("%s == false", p.column)
		default:
			return strings.EqualFold(fmt.Sprint(v), p.value), fmt.Sprintf("%s == %s", p.column, p.value)
		}

	case kindLessEqual:
		n, ok := asNumber(record[p.column])
		if !ok {
			return false, fmt.Sprintf("%s is not numeric", p.column)
		}
		return n <= p.threshold, fmt.Sprintf("%s <= %g", p.column, p.threshold)

	case kindLess:
		n, ok := asNumber(record[p.column])
		if !ok {
			return false, fmt.Sprintf("%s is not numeric", p.column)
		}
		return n < p.threshold, fmt.Sprintf("%s < %g", p.column, p.threshold)

	case kindGreaterEqual:
		n, ok := asNumber(record[p.column])
		if !ok {
			return false, fmt.Sprintf("%s is not numeric", p.column)
		}
		return n >= p.threshold, fmt.Sprintf("%s >= %g", p.column, p.threshold)

	case kindGreater:
		n, ok := asNumber(record[p.column])
		if !ok {
			return false, fmt.Sprintf("%s is not numeric", p.column)
		}
		return n > p.threshold, fmt.Sprintf("%s > %g", p.column, p.threshold)

	case kindRatioGreater:
		num, okN := asNumber(record[p.numerator])
		den, okD := asNumber(record[p.column])
		if !okN || !okD || den == 0 {
			return false, fmt.Sprintf("%s / %s not evaluable", p.numerator, p.column)
		}
		return num/den > p.threshold, fmt.Sprintf("%s / %s > %g", p.numerator, p.column, p.threshold)

	default:
		return false, "unable to evaluate"
	}
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(t) {
		case "true", "1", "yes":
			return true
		}
		return false
	case int64:
		return t != 0
	case float64:
		return t != 0
	default:
		return false
	}
}

func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// FactorDetail pairs a factor with its evaluation for one record.
type FactorDetail struct {
	Name    string
	Passed  bool
	Detail  string
	Weight  int
}

// ScoredRecord is one row's scoring result.
type ScoredRecord struct {
	Record      map[string]any
	TotalScore  int
	MaxPossible int
	Percentage  float64
	Factors     []FactorDetail
}

// Distribution buckets percentages at {0,20,40,60,80}.
type Distribution struct {
	Count        int
	Min          float64
	Max          float64
	Mean         float64
	Buckets      map[string]int // poor/below_average/average/good/excellent
}

// FactorPerformance is per-factor achieved/total/rate across a scored set.
type FactorPerformance struct {
	Name        string
	Description string
	Weight      int
	Achieved    int
	Total       int
	Rate        float64
}

// Engine scores records against a category's factors, read from the
// knowledge store and parsed into predicates at the start of each
// ScoreRecord or ScoreRecords call.
type Engine struct {
	store *knowledge.Store
}

// New constructs a scoring engine bound to a knowledge store.
func New(store *knowledge.Store) *Engine { return &Engine{store: store} }

type compiledFactor struct {
	factor    knowledge.Factor
	predicate predicate
}

func (e *Engine) compile(category string) []compiledFactor {
	factors := e.store.Factors(category)
	out := make([]compiledFactor, len(factors))
	for i, f := range factors {
		out[i] = compiledFactor{factor: f, predicate: parsePredicate(f.Calculation)}
	}
	return out
}

// ScoreRecord scores a single record against a category's factors.
func (e *Engine) ScoreRecord(category string, record map[string]any) ScoredRecord {
	return scoreCompiled(e.compile(category), record)
}

func scoreCompiled(compiled []compiledFactor, record map[string]any) ScoredRecord {
	result := ScoredRecord{Record: record}
	for _, cf := range compiled {
		passed, detail := cf.predicate.evaluate(record)
		result.MaxPossible += cf.factor.Weight
		if passed {
			result.TotalScore += cf.factor.Weight
		}
		result.Factors = append(result.Factors, FactorDetail{
			Name: cf.factor.Name, Passed: passed, Detail: detail, Weight: cf.factor.Weight,
		})
	}
	if result.MaxPossible > 0 {
		result.Percentage = float64(result.TotalScore) / float64(result.MaxPossible) * 100
	}
	return result
}

// ScoreRecords scores a batch, optionally sorted descending by percentage.
func (e *Engine) ScoreRecords(category string, records []map[string]any, orderByScore bool, limit int) []ScoredRecord {
	compiled := e.compile(category)
	out := make([]ScoredRecord, len(records))
	for i, r := range records {
		out[i] = scoreCompiled(compiled, r)
	}
	if orderByScore {
		sortByPercentageDesc(out)
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

func sortByPercentageDesc(records []ScoredRecord) {
	for i := 1; i < len(records); i++ {
		j := i
		for j > 0 && records[j-1].Percentage < records[j].Percentage {
			records[j-1], records[j] = records[j], records[j-1]
			j--
		}
	}
}

// Distribute computes count/min/max/mean and the bucket histogram over
// already-scored records.
func Distribute(scored []ScoredRecord) Distribution {
	d := Distribution{Buckets: map[string]int{
		"poor": 0, "below_average": 0, "average": 0, "good": 0, "excellent": 0,
	}}
	if len(scored) == 0 {
		return d
	}
	d.Count = len(scored)
	d.Min = scored[0].Percentage
	d.Max = scored[0].Percentage
	sum := 0.0
	for _, r := range scored {
		if r.Percentage < d.Min {
			d.Min = r.Percentage
		}
		if r.Percentage > d.Max {
			d.Max = r.Percentage
		}
		sum += r.Percentage
		d.Buckets[bucketLabel(r.Percentage)]++
	}
	d.Mean = sum / float64(len(scored))
	return d
}

func bucketLabel(pct float64) string {
	switch {
	case pct < 20:
		return "poor"
	case pct < 40:
		return "below_average"
	case pct < 60:
		return "average"
	case pct < 80:
		return "good"
	default:
		return "excellent"
	}
}

// FactorPerformanceStats aggregates per-factor achieved/total/rate across
// already-scored records.
func FactorPerformanceStats(scored []ScoredRecord) []FactorPerformance {
	stats := make(map[string]*FactorPerformance)
	order := make([]string, 0)
	for _, r := range scored {
		for _, f := range r.Factors {
			s, ok := stats[f.Name]
			if !ok {
				s = &FactorPerformance{Name: f.Name, Weight: f.Weight}
				stats[f.Name] = s
				order = append(order, f.Name)
			}
			s.Total++
			if f.Passed {
				s.Achieved++
			}
		}
	}
	out := make([]FactorPerformance, 0, len(order))
	for _, name := range order {
		s := stats[name]
		if s.Total > 0 {
			s.Rate = float64(s.Achieved) / float64(s.Total)
		}
		out = append(out, *s)
	}
	return out
}
