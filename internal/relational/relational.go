// Package relational implements the relational store (C5): table
// lifecycle, schema introspection, and safe validated-SELECT execution
// over an embedded SQL engine.
//
// Grounded on original_source/intelligence/core/sql_engine.py (schema
// introspection, schema-card rendering) and
// original_source/intelligence/core/ingest.py (table replace semantics),
// with the handle-lifecycle idiom from the teacher's pkg/database/client.go.
package relational

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nebulus-edge/intelligence/internal/apierr"
	"github.com/nebulus-edge/intelligence/internal/validate"
)

// ColumnType is one of the declared relational column types (§3).
type ColumnType string

const (
	TypeInteger  ColumnType = "INTEGER"
	TypeReal     ColumnType = "REAL"
	TypeText     ColumnType = "TEXT"
	TypeBoolean  ColumnType = "BOOLEAN"
	TypeDatetime ColumnType = "DATETIME"
)

// Column describes one column of a table.
type Column struct {
	Name         string     `json:"name"`
	Type         ColumnType `json:"type"`
	Nullable     bool       `json:"nullable"`
	IsPrimaryKey bool       `json:"primary_key"`
}

// TableSchema is the introspected shape of one stored table.
type TableSchema struct {
	Name       string           `json:"name"`
	Columns    []Column         `json:"columns"`
	RowCount   int64            `json:"row_count"`
	SampleRows []map[string]any `json:"sample_rows"`
}

// Schema is the introspected shape of the whole store.
type Schema struct {
	Tables map[string]TableSchema `json:"tables"`
}

// QueryResult is the result of a validated SELECT (§4.5).
type QueryResult struct {
	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows"`
	RowCount int      `json:"row_count"`
	SQL      string   `json:"sql"`
}

// Store wraps a single embedded SQLite database file — one store instance
// per process, matching §6's "storage/databases/main.db".
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the relational store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &apierr.StorageError{Op: "open relational store", Err: err}
	}
	db.SetMaxOpenConns(1) // single-writer embedded engine; serialize at the pool
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, &apierr.StorageError{Op: "enable WAL mode", Err: err}
	}
	return &Store{db: db}, nil
}

// Close releases the underlying handle.
func (s *Store) Close() error { return s.db.Close() }

// Health reports connectivity, mirroring the teacher's pkg/database.Health
// shape.
func (s *Store) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return &apierr.StorageError{Op: "ping relational store", Err: err}
	}
	return nil
}

// ListTables returns every known table name.
func (s *Store) ListTables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return nil, &apierr.StorageError{Op: "list tables", Err: err}
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &apierr.StorageError{Op: "scan table name", Err: err}
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// TableExists reports whether a table is present.
func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
	if err != nil {
		return false, &apierr.StorageError{Op: "check table existence", Err: err}
	}
	return count > 0, nil
}

// Schema introspects every table: columns (type, nullability, PK flag),
// row count, and a 3-row sample.
func (s *Store) Schema(ctx context.Context) (*Schema, error) {
	names, err := s.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	out := &Schema{Tables: make(map[string]TableSchema, len(names))}
	for _, name := range names {
		ts, err := s.TableSchema(ctx, name)
		if err != nil {
			return nil, err
		}
		out.Tables[name] = *ts
	}
	return out, nil
}

// TableSchema introspects a single table via PRAGMA table_info.
func (s *Store) TableSchema(ctx context.Context, table string) (*TableSchema, error) {
	if err := validate.ValidateTableName(table); err != nil {
		return nil, err
	}
	exists, err := s.TableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apierr.ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", validate.QuoteIdentifier(table)))
	if err != nil {
		return nil, &apierr.StorageError{Op: "introspect table", Err: err}
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var cid int
		var name, declType string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &declType, &notNull, &dflt, &pk); err != nil {
			return nil, &apierr.StorageError{Op: "scan column info", Err: err}
		}
		cols = append(cols, Column{
			Name:         name,
			Type:         normalizeDeclType(declType),
			Nullable:     notNull == 0,
			IsPrimaryKey: pk > 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, &apierr.StorageError{Op: "iterate column info", Err: err}
	}

	var rowCount int64
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s", validate.QuoteIdentifier(table))).Scan(&rowCount)
	if err != nil {
		return nil, &apierr.StorageError{Op: "count rows", Err: err}
	}

	sample, err := s.sampleRows(ctx, table, 3)
	if err != nil {
		return nil, err
	}

	return &TableSchema{Name: table, Columns: cols, RowCount: rowCount, SampleRows: sample}, nil
}

func (s *Store) sampleRows(ctx context.Context, table string, limit int) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT * FROM %s LIMIT ?", validate.QuoteIdentifier(table)), limit)
	if err != nil {
		return nil, &apierr.StorageError{Op: "sample rows", Err: err}
	}
	defer rows.Close()
	return scanRowsToMaps(rows)
}

func scanRowsToMaps(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, &apierr.StorageError{Op: "read columns", Err: err}
	}
	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &apierr.StorageError{Op: "scan row", Err: err}
		}
		m := make(map[string]any, len(cols))
		for i, c := range cols {
			m[c] = vals[i]
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func normalizeDeclType(declType string) ColumnType {
	switch strings.ToUpper(declType) {
	case "INTEGER", "INT":
		return TypeInteger
	case "REAL", "FLOAT", "DOUBLE":
		return TypeReal
	case "BOOLEAN", "BOOL":
		return TypeBoolean
	case "DATETIME", "TIMESTAMP", "DATE":
		return TypeDatetime
	default:
		return TypeText
	}
}

// SchemaCard renders a human-readable summary of the schema for inclusion
// in an LLM prompt (the "schema card" of the glossary).
func (s *Store) SchemaCard(ctx context.Context) (string, error) {
	schema, err := s.Schema(ctx)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("Database Schema:\n\n")
	for name, ts := range schema.Tables {
		b.WriteString(fmt.Sprintf("Table: %s (%d rows)\n", name, ts.RowCount))
		for _, c := range ts.Columns {
			marker := ""
			if c.IsPrimaryKey {
				marker = " (PRIMARY KEY)"
			}
			b.WriteString(fmt.Sprintf("  - %s: %s%s\n", c.Name, c.Type, marker))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// Execute runs a validated, read-only SELECT (I6). All callers outside the
// ingestion pipeline must go through this method.
func (s *Store) Execute(ctx context.Context, query string) (*QueryResult, error) {
	if err := validate.ValidateQuery(query); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &apierr.StorageError{Op: "execute query", Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &apierr.StorageError{Op: "read columns", Err: err}
	}

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &apierr.StorageError{Op: "scan row", Err: err}
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, &apierr.StorageError{Op: "iterate rows", Err: err}
	}

	return &QueryResult{Columns: cols, Rows: out, RowCount: len(out), SQL: query}, nil
}

// ExecuteToRecords runs Execute and zips columns+rows into maps, the shape
// the orchestrator and scoring engine consume.
func (s *Store) ExecuteToRecords(ctx context.Context, query string) ([]map[string]any, error) {
	result, err := s.Execute(ctx, query)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(result.Rows))
	for _, row := range result.Rows {
		m := make(map[string]any, len(result.Columns))
		for i, c := range result.Columns {
			m[c] = row[i]
		}
		out = append(out, m)
	}
	return out, nil
}

// ReplaceTable atomically drops (if present), creates, and bulk-loads a
// table — the only write path, reserved for the ingestion pipeline.
func (s *Store) ReplaceTable(ctx context.Context, table string, cols []Column, rows [][]any) error {
	if err := validate.ValidateTableName(table); err != nil {
		return err
	}
	for _, c := range cols {
		if err := validate.ValidateColumnName(c.Name); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &apierr.StorageError{Op: "begin replace transaction", Err: err}
	}
	defer tx.Rollback() //nolint:errcheck

	quoted := validate.QuoteIdentifier(table)
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", quoted)); err != nil {
		return &apierr.StorageError{Op: "drop existing table", Err: err}
	}

	var colDefs []string
	for _, c := range cols {
		colDefs = append(colDefs, fmt.Sprintf("%s %s", validate.QuoteIdentifier(c.Name), string(c.Type)))
	}
	createSQL := fmt.Sprintf("CREATE TABLE %s (%s)", quoted, strings.Join(colDefs, ", "))
	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		return &apierr.StorageError{Op: "create table", Err: err}
	}

	if len(rows) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",")
		var colNames []string
		for _, c := range cols {
			colNames = append(colNames, validate.QuoteIdentifier(c.Name))
		}
		insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoted, strings.Join(colNames, ", "), placeholders)
		stmt, err := tx.PrepareContext(ctx, insertSQL)
		if err != nil {
			return &apierr.StorageError{Op: "prepare insert", Err: err}
		}
		defer stmt.Close()
		for _, row := range rows {
			if _, err := stmt.ExecContext(ctx, row...); err != nil {
				return &apierr.StorageError{Op: "insert row", Err: err}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return &apierr.StorageError{Op: "commit replace transaction", Err: err}
	}
	return nil
}

// DeleteTable drops a table if present. Returns apierr.ErrNotFound if it
// does not exist (I3: callers also delete the paired vector collection).
func (s *Store) DeleteTable(ctx context.Context, table string) error {
	if err := validate.ValidateTableName(table); err != nil {
		return err
	}
	exists, err := s.TableExists(ctx, table)
	if err != nil {
		return err
	}
	if !exists {
		return apierr.ErrNotFound
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s", validate.QuoteIdentifier(table)))
	if err != nil {
		return &apierr.StorageError{Op: "drop table", Err: err}
	}
	return nil
}

// Preview returns up to limit rows of a table as records.
func (s *Store) Preview(ctx context.Context, table string, limit int) ([]map[string]any, error) {
	if err := validate.ValidateTableName(table); err != nil {
		return nil, err
	}
	exists, err := s.TableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apierr.ErrNotFound
	}
	return s.sampleRows(ctx, table, limit)
}
