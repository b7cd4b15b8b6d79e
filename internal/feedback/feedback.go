// Package feedback implements the feedback store (C9): capture of
// user ratings on query results, recommendations, scoring, and
// insights, plus summary/pattern queries used by the refinement
// analyzer.
//
// Grounded on this system's internal/audit for the embedded-migrations
// bootstrap pattern (golang-migrate + go:embed + iofs source driver)
// and on original_source/intelligence/core/feedback.py for the table
// shape, filters, and summary/pattern-detection semantics.
package feedback

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/nebulus-edge/intelligence/internal/apierr"
)

//go:embed migrations
var migrationsFS embed.FS

// Type is a closed taxonomy of what a piece of feedback is about.
type Type string

const (
	TypeQueryResult    Type = "QUERY_RESULT"
	TypeRecommendation Type = "RECOMMENDATION"
	TypeScoring        Type = "SCORING"
	TypeInsight        Type = "INSIGHT"
)

// Rating is a five-point sentiment scale, matching original_source's
// FeedbackRating IntEnum.
type Rating int

const (
	RatingVeryNegative Rating = -2
	RatingNegative     Rating = -1
	RatingNeutral      Rating = 0
	RatingPositive     Rating = 1
	RatingVeryPositive Rating = 2
)

// Feedback is a single submitted rating.
type Feedback struct {
	ID               int64
	Type             Type
	Rating           Rating
	Query            string
	Response         string
	Context          map[string]any
	Comment          string
	UserID           string
	Outcome          string
	OutcomeTimestamp time.Time
	Timestamp        time.Time
	CreatedAt        time.Time
}

// Filter narrows a GetFeedback call. Zero-value fields are ignored.
type Filter struct {
	Type       Type
	MinRating  *Rating
	MaxRating  *Rating
	Start      time.Time
	End        time.Time
	HasOutcome *bool
	Limit      int
	Offset     int
}

// Summary aggregates feedback counts and recent comments over a window.
type Summary struct {
	TotalCount    int
	PositiveCount int
	NegativeCount int
	NeutralCount  int
	AverageRating float64
	ByType        map[Type]int
	RecentComments []string
}

// Store is the feedback log, backed by its own sqlite file distinct
// from the relational business-data and audit stores (§6).
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and migrates the feedback database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open feedback database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migration driver: %w", err)
	}
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "feedback", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply feedback migrations: %w", err)
	}
	// Do not call m.Close(): it would close the shared *sql.DB.
	return sourceDriver.Close()
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// Health mirrors the relational store's health check shape.
func (s *Store) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

// SubmitFeedback records a new piece of feedback and returns its id.
func (s *Store) SubmitFeedback(ctx context.Context, f Feedback) (int64, error) {
	if f.UserID == "" {
		f.UserID = "anonymous"
	}
	contextJSON := "{}"
	if f.Context != nil {
		b, err := json.Marshal(f.Context)
		if err != nil {
			return 0, &apierr.StorageError{Op: "feedback.SubmitFeedback", Err: err}
		}
		contextJSON = string(b)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (feedback_type, rating, query, response, context, comment, user_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(f.Type), int(f.Rating), f.Query, f.Response, contextJSON, f.Comment, f.UserID,
	)
	if err != nil {
		return 0, &apierr.StorageError{Op: "feedback.SubmitFeedback", Err: err}
	}
	return res.LastInsertId()
}

// RecordOutcome attaches a later-observed outcome to existing feedback.
func (s *Store) RecordOutcome(ctx context.Context, id int64, outcome string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE feedback SET outcome = ?, outcome_timestamp = CURRENT_TIMESTAMP WHERE id = ?`,
		outcome, id,
	)
	if err != nil {
		return &apierr.StorageError{Op: "feedback.RecordOutcome", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &apierr.StorageError{Op: "feedback.RecordOutcome", Err: err}
	}
	if n == 0 {
		return apierr.ErrNotFound
	}
	return nil
}

// GetFeedback returns feedback matching filter, newest first.
func (s *Store) GetFeedback(ctx context.Context, f Filter) ([]Feedback, error) {
	clauses := "WHERE 1=1"
	args := []any{}
	if f.Type != "" {
		clauses += " AND feedback_type = ?"
		args = append(args, string(f.Type))
	}
	if f.MinRating != nil {
		clauses += " AND rating >= ?"
		args = append(args, int(*f.MinRating))
	}
	if f.MaxRating != nil {
		clauses += " AND rating <= ?"
		args = append(args, int(*f.MaxRating))
	}
	if !f.Start.IsZero() {
		clauses += " AND timestamp >= ?"
		args = append(args, f.Start.UTC().Format("2006-01-02 15:04:05"))
	}
	if !f.End.IsZero() {
		clauses += " AND timestamp <= ?"
		args = append(args, f.End.UTC().Format("2006-01-02 15:04:05"))
	}
	if f.HasOutcome != nil {
		if *f.HasOutcome {
			clauses += " AND outcome IS NOT NULL AND outcome != ''"
		} else {
			clauses += " AND (outcome IS NULL OR outcome = '')"
		}
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(
		`SELECT id, feedback_type, rating, query, response, context, comment, user_id,
		        outcome, outcome_timestamp, timestamp, created_at
		 FROM feedback %s ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`, clauses)
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &apierr.StorageError{Op: "feedback.GetFeedback", Err: err}
	}
	defer rows.Close()
	return scanFeedback(rows)
}

// GetSummary aggregates feedback counts over the trailing window of
// days, optionally scoped to a single feedback type.
func (s *Store) GetSummary(ctx context.Context, feedbackType Type, days int) (Summary, error) {
	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02 15:04:05")

	clauses := "WHERE timestamp >= ?"
	args := []any{cutoff}
	if feedbackType != "" {
		clauses += " AND feedback_type = ?"
		args = append(args, string(feedbackType))
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT feedback_type, rating, comment FROM feedback %s ORDER BY timestamp DESC`, clauses),
		args...,
	)
	if err != nil {
		return Summary{}, &apierr.StorageError{Op: "feedback.GetSummary", Err: err}
	}
	defer rows.Close()

	summary := Summary{ByType: make(map[Type]int)}
	var ratingSum int
	for rows.Next() {
		var t string
		var rating int
		var comment string
		if err := rows.Scan(&t, &rating, &comment); err != nil {
			return Summary{}, &apierr.StorageError{Op: "feedback.GetSummary", Err: err}
		}
		summary.TotalCount++
		ratingSum += rating
		summary.ByType[Type(t)]++
		switch {
		case rating > 0:
			summary.PositiveCount++
		case rating < 0:
			summary.NegativeCount++
		default:
			summary.NeutralCount++
		}
		if comment != "" && len(summary.RecentComments) < 5 {
			summary.RecentComments = append(summary.RecentComments, comment)
		}
	}
	if err := rows.Err(); err != nil {
		return Summary{}, &apierr.StorageError{Op: "feedback.GetSummary", Err: err}
	}
	if summary.TotalCount > 0 {
		summary.AverageRating = float64(ratingSum) / float64(summary.TotalCount)
	}
	return summary, nil
}

// NegativePattern is a recurring query that drew negative feedback.
type NegativePattern struct {
	Query         string
	Count         int
	AverageRating float64
	Comments      []string
}

// GetNegativeFeedbackPatterns groups negative-rated feedback by query
// text, most frequent first.
func (s *Store) GetNegativeFeedbackPatterns(ctx context.Context, limit int) ([]NegativePattern, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT query, COUNT(*) as cnt, AVG(rating) as avg_rating, GROUP_CONCAT(comment, ' | ')
		 FROM feedback
		 WHERE rating < 0
		 GROUP BY query
		 HAVING cnt >= 1
		 ORDER BY cnt DESC, avg_rating ASC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, &apierr.StorageError{Op: "feedback.GetNegativeFeedbackPatterns", Err: err}
	}
	defer rows.Close()

	var out []NegativePattern
	for rows.Next() {
		var p NegativePattern
		var comments sql.NullString
		if err := rows.Scan(&p.Query, &p.Count, &p.AverageRating, &comments); err != nil {
			return nil, &apierr.StorageError{Op: "feedback.GetNegativeFeedbackPatterns", Err: err}
		}
		if comments.Valid && comments.String != "" {
			p.Comments = strings.Split(comments.String, " | ")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RefinementData is the aggregate view consumed by the refinement
// analyzer: overall satisfaction rate, total count, per-category scoring
// ratings, and suggestions. It carries no outcome data.
type RefinementData struct {
	SatisfactionRate float64
	TotalFeedback    int
	CategoryRatings  map[string][]int // category -> raw rating values
	Suggestions      []string
}

// GetFeedbackForRefinement gathers scoring feedback grouped by
// category (via context.category) and generates plain-language
// suggestions the way the reference implementation's
// _generate_suggestions does. Outcome-tracking feedback is not read and
// no outcome success rate is computed.
func (s *Store) GetFeedbackForRefinement(ctx context.Context, days int, minFeedbackCount int) (RefinementData, error) {
	if minFeedbackCount <= 0 {
		minFeedbackCount = 3
	}
	summary, err := s.GetSummary(ctx, "", days)
	if err != nil {
		return RefinementData{}, err
	}

	data := RefinementData{TotalFeedback: summary.TotalCount, CategoryRatings: make(map[string][]int)}
	if summary.TotalCount > 0 {
		data.SatisfactionRate = float64(summary.PositiveCount) / float64(summary.TotalCount)
	}

	scoringFeedback, err := s.GetFeedback(ctx, Filter{Type: TypeScoring, Limit: 1000})
	if err != nil {
		return RefinementData{}, err
	}
	for _, fb := range scoringFeedback {
		category, _ := fb.Context["category"].(string)
		if category == "" {
			category = "unknown"
		}
		data.CategoryRatings[category] = append(data.CategoryRatings[category], int(fb.Rating))
	}

	if data.SatisfactionRate < 0.6 {
		data.Suggestions = append(data.Suggestions,
			fmt.Sprintf("Overall satisfaction rate (%.0f%%) is low - review recent negative feedback patterns.", data.SatisfactionRate*100))
	}
	for category, ratings := range data.CategoryRatings {
		if len(ratings) < minFeedbackCount {
			continue
		}
		sum := 0
		for _, r := range ratings {
			sum += r
		}
		avg := float64(sum) / float64(len(ratings))
		if avg < 0 {
			data.Suggestions = append(data.Suggestions,
				fmt.Sprintf("Category %q has negative average scoring feedback (%.2f) - consider reviewing factor weights.", category, avg))
		} else {
			data.Suggestions = append(data.Suggestions,
				fmt.Sprintf("Category %q scoring feedback is trending positive (%.2f) - continue monitoring.", category, avg))
		}
	}

	return data, nil
}

// ExportFeedback returns every stored record as a plain slice, with
// context stripped when includeContext is false.
func (s *Store) ExportFeedback(ctx context.Context, includeContext bool) ([]Feedback, error) {
	all, err := s.GetFeedback(ctx, Filter{Limit: 1000000})
	if err != nil {
		return nil, err
	}
	if !includeContext {
		for i := range all {
			all[i].Context = nil
		}
	}
	return all, nil
}

func scanFeedback(rows *sql.Rows) ([]Feedback, error) {
	var out []Feedback
	for rows.Next() {
		var (
			f                Feedback
			typ              string
			rating           int
			contextJSON      string
			outcomeTimestamp sql.NullString
			timestamp        string
			createdAt        string
		)
		if err := rows.Scan(&f.ID, &typ, &rating, &f.Query, &f.Response, &contextJSON, &f.Comment,
			&f.UserID, &f.Outcome, &outcomeTimestamp, &timestamp, &createdAt); err != nil {
			return nil, &apierr.StorageError{Op: "feedback.scanFeedback", Err: err}
		}
		f.Type = Type(typ)
		f.Rating = Rating(rating)
		_ = json.Unmarshal([]byte(contextJSON), &f.Context)
		f.Timestamp = parseTimestamp(timestamp)
		f.CreatedAt = parseTimestamp(createdAt)
		if outcomeTimestamp.Valid && outcomeTimestamp.String != "" {
			f.OutcomeTimestamp = parseTimestamp(outcomeTimestamp.String)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func parseTimestamp(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}
