// Package knowledge implements the knowledge store (C4): a template of
// default scoring factors/rules/metrics overlaid with a persisted JSON
// document, plus a compact "knowledge card" renderer for LLM prompts.
//
// Grounded on original_source/intelligence/core/knowledge.py for the exact
// overlay-merge and card-rendering semantics.
package knowledge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Factor is a single scoring factor (§3).
type Factor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Weight      int    `json:"weight"`
	Calculation string `json:"calculation"`
}

// Rule is a declarative business rule (§3).
type Rule struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"` // info | warning | error
}

// Metric is a named target/warning/critical threshold (§3).
type Metric struct {
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	Target        float64 `json:"target"`
	Warning       float64 `json:"warning"`
	Critical      float64 `json:"critical"`
	LowerIsBetter bool    `json:"lower_is_better"`
}

// state is the fully merged, serializable knowledge snapshot.
type state struct {
	ScoringFactors map[string][]Factor `json:"scoring_factors"`
	Rules          []Rule              `json:"rules"`
	Metrics        map[string]Metric   `json:"metrics"`
	Custom         map[string]any      `json:"custom"`
}

// Template is a vertical's default knowledge, loaded at startup (never
// mutated thereafter).
type Template struct {
	Name           string
	ScoringFactors map[string][]Factor
	Rules          []Rule
	Metrics        map[string]Metric
}

// Store is the knowledge store: template defaults merged with a
// file-backed overlay. Safe for concurrent use (§5).
type Store struct {
	mu          sync.RWMutex
	overlayPath string
	current     state
}

// New constructs a Store from a template plus whatever overlay already
// exists on disk at overlayPath. Malformed overlay JSON is ignored, not
// fatal (matches original's except/pass behavior).
func New(tmpl *Template, overlayPath string) (*Store, error) {
	s := &Store{
		overlayPath: overlayPath,
		current: state{
			ScoringFactors: cloneFactorMap(tmpl.ScoringFactors),
			Rules:          append([]Rule(nil), tmpl.Rules...),
			Metrics:        cloneMetricMap(tmpl.Metrics),
			Custom:         make(map[string]any),
		},
	}
	s.loadOverlay()
	return s, nil
}

func cloneFactorMap(m map[string][]Factor) map[string][]Factor {
	out := make(map[string][]Factor, len(m))
	for k, v := range m {
		out[k] = append([]Factor(nil), v...)
	}
	return out
}

func cloneMetricMap(m map[string]Metric) map[string]Metric {
	out := make(map[string]Metric, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *Store) loadOverlay() {
	data, err := os.ReadFile(s.overlayPath)
	if err != nil {
		return // no overlay yet; defaults stand
	}
	var overlay state
	if err := json.Unmarshal(data, &overlay); err != nil {
		slog.Warn("ignoring malformed knowledge overlay", "path", s.overlayPath, "error", err)
		return
	}
	for category, factors := range overlay.ScoringFactors {
		for _, of := range factors {
			s.mergeFactor(category, of)
		}
	}
	for _, rule := range overlay.Rules {
		s.appendRuleIfAbsent(rule)
	}
	if overlay.Custom != nil {
		for k, v := range overlay.Custom {
			s.current.Custom[k] = v
		}
	}
}

// mergeFactor overwrites weight/description only when a factor of the same
// name exists (I4); otherwise appends.
func (s *Store) mergeFactor(category string, overlay Factor) {
	factors := s.current.ScoringFactors[category]
	for i, f := range factors {
		if f.Name == overlay.Name {
			factors[i].Weight = overlay.Weight
			factors[i].Description = overlay.Description
			s.current.ScoringFactors[category] = factors
			return
		}
	}
	s.current.ScoringFactors[category] = append(factors, overlay)
}

func (s *Store) appendRuleIfAbsent(rule Rule) {
	for _, r := range s.current.Rules {
		if r.Name == rule.Name {
			return
		}
	}
	s.current.Rules = append(s.current.Rules, rule)
}

// saveOverlay persists the entire current merged state as the new overlay
// baseline (never a diff).
func (s *Store) saveOverlay() error {
	if err := os.MkdirAll(filepath.Dir(s.overlayPath), 0o755); err != nil {
		return fmt.Errorf("create overlay directory: %w", err)
	}
	data, err := json.MarshalIndent(s.current, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal overlay: %w", err)
	}
	return os.WriteFile(s.overlayPath, data, 0o644)
}

// Factors returns the ordered factor list for a category. An unknown
// category returns an empty slice, never an error.
func (s *Store) Factors(category string) []Factor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Factor(nil), s.current.ScoringFactors[category]...)
}

// Categories returns every known scoring category name.
func (s *Store) Categories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.current.ScoringFactors))
	for c := range s.current.ScoringFactors {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// UpdateFactor overwrites a factor's weight and/or description (I4: never
// calculation or name). Returns false if the factor was not found.
func (s *Store) UpdateFactor(category, name string, weight *int, description *string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	factors := s.current.ScoringFactors[category]
	for i, f := range factors {
		if f.Name != name {
			continue
		}
		if weight != nil {
			w := *weight
			if w < 0 {
				w = 0
			}
			factors[i].Weight = w
		}
		if description != nil {
			factors[i].Description = *description
		}
		s.current.ScoringFactors[category] = factors
		if err := s.saveOverlay(); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Rules returns every business rule.
func (s *Store) Rules() []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Rule(nil), s.current.Rules...)
}

// AddRule appends a new rule (or no-ops if one of that name exists) and
// persists.
func (s *Store) AddRule(rule Rule) (Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendRuleIfAbsent(rule)
	return rule, s.saveOverlay()
}

// Metrics returns all configured metrics.
func (s *Store) Metrics() map[string]Metric {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMetricMap(s.current.Metrics)
}

// Metric returns a single metric by name.
func (s *Store) Metric(name string) (Metric, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.current.Metrics[name]
	return m, ok
}

// CustomValue reads an opaque custom-knowledge entry.
func (s *Store) CustomValue(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.current.Custom[key]
	return v, ok
}

// SetCustomValue writes an opaque custom-knowledge entry and persists.
func (s *Store) SetCustomValue(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Custom[key] = value
	return s.saveOverlay()
}

// ExportForPrompt renders the knowledge card: a compact Markdown summary
// suitable for inclusion in an LLM prompt.
func (s *Store) ExportForPrompt() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var b strings.Builder
	b.WriteString("## Domain Knowledge\n\n")

	if len(s.current.ScoringFactors) > 0 {
		b.WriteString("### What Makes a Good Outcome\n\n")
		categories := make([]string, 0, len(s.current.ScoringFactors))
		for c := range s.current.ScoringFactors {
			categories = append(categories, c)
		}
		sort.Strings(categories)
		for _, category := range categories {
			factors := append([]Factor(nil), s.current.ScoringFactors[category]...)
			sort.SliceStable(factors, func(i, j int) bool { return factors[i].Weight > factors[j].Weight })
			b.WriteString(fmt.Sprintf("**%s**\n", titleCase(category)))
			for _, f := range factors {
				b.WriteString(fmt.Sprintf("- %s (weight %d): %s\n", f.Name, f.Weight, f.Description))
			}
			b.WriteString("\n")
		}
	}

	if len(s.current.Rules) > 0 {
		b.WriteString("### Business Rules\n\n")
		for _, r := range s.current.Rules {
			b.WriteString(fmt.Sprintf("- **%s**: %s\n", r.Name, r.Description))
		}
		b.WriteString("\n")
	}

	if len(s.current.Metrics) > 0 {
		b.WriteString("### Key Metrics\n\n")
		names := make([]string, 0, len(s.current.Metrics))
		for n := range s.current.Metrics {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			m := s.current.Metrics[n]
			direction := "lower is better"
			if !m.LowerIsBetter {
				direction = "higher is better"
			}
			b.WriteString(fmt.Sprintf("- **%s**: target %g, warning at %g, critical at %g (%s)\n",
				m.Name, m.Target, m.Warning, m.Critical, direction))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func titleCase(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	words := strings.Fields(s)
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
