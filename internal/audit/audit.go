// Package audit implements the tamper-evident audit log (C3): an
// append-only event store backed by its own sqlite file, with CSV+HMAC
// export and verification.
//
// Grounded on the teacher repo's pkg/database/client.go for the
// embedded-migrations bootstrap pattern (golang-migrate + go:embed +
// iofs source driver), retargeted from postgres to sqlite3, and on
// original_source/shared/audit/export.py + intelligence/core/audit.py
// for the exact event taxonomy and export/verify byte mechanics.
package audit

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nebulus-edge/intelligence/internal/apierr"
)

//go:embed migrations
var migrationsFS embed.FS

// EventType is a closed taxonomy of audit-worthy actions, matching
// original_source's AuditEventType.
type EventType string

const (
	EventDataUpload       EventType = "DATA_UPLOAD"
	EventDataDelete       EventType = "DATA_DELETE"
	EventDataExport       EventType = "DATA_EXPORT"
	EventQuerySQL         EventType = "QUERY_SQL"
	EventQueryNatural     EventType = "QUERY_NATURAL"
	EventQuerySemantic    EventType = "QUERY_SEMANTIC"
	EventDataView         EventType = "DATA_VIEW"
	EventSchemaView       EventType = "SCHEMA_VIEW"
	EventKnowledgeUpdate  EventType = "KNOWLEDGE_UPDATE"
	EventKnowledgeView    EventType = "KNOWLEDGE_VIEW"
	EventPIIDetected      EventType = "PII_DETECTED"
	EventAccessDenied     EventType = "ACCESS_DENIED"
	EventValidationFailed EventType = "VALIDATION_FAILED"
)

// Event is a single logged action.
type Event struct {
	ID        int64
	EventID   string
	Type      EventType
	UserID    string
	IPAddress string
	Resource  string
	Detail    map[string]any
	Outcome   string // success | failure | denied
	CreatedAt time.Time
}

// Filter narrows a Query call.
type Filter struct {
	Type      EventType
	UserID    string
	Start     time.Time
	End       time.Time
	Limit     int
	Offset    int
}

// Store is the audit event log, backed by its own sqlite file distinct
// from the relational business-data store (§6).
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and migrates the audit database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
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
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "audit", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply audit migrations: %w", err)
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

// Log appends a new event and returns its generated event ID.
func (s *Store) Log(ctx context.Context, e Event) (string, error) {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.Outcome == "" {
		e.Outcome = "success"
	}
	if e.UserID == "" {
		e.UserID = "anonymous"
	}
	detailJSON := "{}"
	if e.Detail != nil {
		b, err := json.Marshal(e.Detail)
		if err != nil {
			return "", &apierr.StorageError{Op: "audit.Log", Err: err}
		}
		detailJSON = string(b)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events (event_id, event_type, user_id, ip_address, resource, detail, outcome)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.EventID, string(e.Type), e.UserID, e.IPAddress, e.Resource, detailJSON, e.Outcome,
	)
	if err != nil {
		return "", &apierr.StorageError{Op: "audit.Log", Err: err}
	}
	return e.EventID, nil
}

// Query returns events matching filter, newest first.
func (s *Store) Query(ctx context.Context, f Filter) ([]Event, error) {
	clauses := "WHERE 1=1"
	args := []any{}
	if f.Type != "" {
		clauses += " AND event_type = ?"
		args = append(args, string(f.Type))
	}
	if f.UserID != "" {
		clauses += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	if !f.Start.IsZero() {
		clauses += " AND created_at >= ?"
		args = append(args, f.Start.UTC().Format("2006-01-02 15:04:05"))
	}
	if !f.End.IsZero() {
		clauses += " AND created_at <= ?"
		args = append(args, f.End.UTC().Format("2006-01-02 15:04:05"))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(
		`SELECT id, event_id, event_type, user_id, ip_address, resource, detail, outcome, created_at
		 FROM audit_events %s ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, clauses)
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &apierr.StorageError{Op: "audit.Query", Err: err}
	}
	defer rows.Close()
	return scanEvents(rows)
}

// Recent is a convenience wrapper over Query for the N most recent events.
func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	return s.Query(ctx, Filter{Limit: limit})
}

// CountsByType aggregates event counts by type within [start, end].
func (s *Store) CountsByType(ctx context.Context, start, end time.Time) (map[EventType]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_type, COUNT(*) FROM audit_events
		 WHERE created_at >= ? AND created_at <= ?
		 GROUP BY event_type`,
		start.UTC().Format("2006-01-02 15:04:05"), end.UTC().Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		return nil, &apierr.StorageError{Op: "audit.CountsByType", Err: err}
	}
	defer rows.Close()

	out := make(map[EventType]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, &apierr.StorageError{Op: "audit.CountsByType", Err: err}
		}
		out[EventType(t)] = n
	}
	return out, rows.Err()
}

// Purge deletes events older than the given number of days, returning the
// count deleted.
func (s *Store) Purge(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays).Format("2006-01-02 15:04:05")
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_events WHERE created_at <= ?`, cutoff)
	if err != nil {
		return 0, &apierr.StorageError{Op: "audit.Purge", Err: err}
	}
	return res.RowsAffected()
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var out []Event
	for rows.Next() {
		var (
			e          Event
			detailJSON string
			createdAt  string
		)
		if err := rows.Scan(&e.ID, &e.EventID, &e.Type, &e.UserID, &e.IPAddress, &e.Resource, &detailJSON, &e.Outcome, &createdAt); err != nil {
			return nil, &apierr.StorageError{Op: "audit.scanEvents", Err: err}
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			e.CreatedAt = t
		} else if t, err := time.Parse("2006-01-02 15:04:05", createdAt); err == nil {
			e.CreatedAt = t
		}
		_ = json.Unmarshal([]byte(detailJSON), &e.Detail)
		out = append(out, e)
	}
	return out, rows.Err()
}
