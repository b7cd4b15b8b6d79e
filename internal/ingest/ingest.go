// Package ingest implements the CSV ingestion pipeline (C7): parsing,
// column cleaning, type inference, primary-key detection, table
// replacement, PII scanning, and vector indexing.
//
// Grounded on original_source/intelligence/core/ingest.py for the cleaning
// rules, primary-key hint lists per vertical, and type-inference ladder.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nebulus-edge/intelligence/internal/pii"
	"github.com/nebulus-edge/intelligence/internal/relational"
	"github.com/nebulus-edge/intelligence/internal/validate"
	"github.com/nebulus-edge/intelligence/internal/vector"
)

// PrimaryKeyHints lists candidate primary-key column names per vertical
// template, checked in order (§3 vertical templates).
var PrimaryKeyHints = map[string][]string{
	"dealership": {"vin", "VIN", "stock_number", "stocknumber", "stock_no", "StockNumber", "Stock_Number"},
	"medical":    {"patient_id", "patientid", "PatientID", "mrn", "MRN", "Patient_ID"},
	"legal":      {"case_id", "caseid", "CaseID", "matter_id", "MatterID", "Case_ID"},
	"generic":    {"id", "ID", "Id", "key", "KEY"},
}

// Result summarizes a completed ingestion.
type Result struct {
	TableName    string
	RowsImported int
	Columns      []string
	ColumnTypes  map[string]relational.ColumnType
	PrimaryKey   string
	Warnings     []string
	PIIReport    *pii.Report
	VectorCount  int
}

// Pipeline wires together the relational store, PII detector, and
// (optional) vector store for a full ingest-and-index run.
type Pipeline struct {
	relational *relational.Store
	detector   *pii.Detector
	vectors    *vector.Store // nil disables semantic indexing
}

// New constructs a Pipeline. vectors may be nil if semantic indexing is
// not configured.
func New(rel *relational.Store, vectors *vector.Store) *Pipeline {
	return &Pipeline{relational: rel, detector: pii.NewDetector(), vectors: vectors}
}

// IngestCSV parses csvContent, infers a schema, replaces the target table,
// scans for PII, and (if a vector store is configured) indexes every row
// for semantic search.
func (p *Pipeline) IngestCSV(ctx context.Context, csvContent []byte, tableName, template, primaryKeyHint string) (*Result, error) {
	reader := csv.NewReader(strings.NewReader(string(csvContent)))
	reader.FieldsPerRecord = -1

	rawHeader, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("parse csv header: %w", err)
	}
	var rawRows [][]string
	for {
		row, err := reader.Read()
		if err != nil {
			break
		}
		rawRows = append(rawRows, row)
	}
	if len(rawRows) == 0 {
		return nil, fmt.Errorf("csv file is empty")
	}

	var warnings []string
	cleanedColumns := make([]string, len(rawHeader))
	for i, orig := range rawHeader {
		clean := cleanColumnName(orig)
		cleanedColumns[i] = clean
		if clean != orig {
			warnings = append(warnings, fmt.Sprintf("column %q renamed to %q", orig, clean))
		}
	}

	records := rowsToRecords(cleanedColumns, rawRows)
	columnTypes := inferTypes(cleanedColumns, records)

	primaryKey := detectPrimaryKey(cleanedColumns, template, primaryKeyHint)
	if primaryKey != "" {
		if hasDuplicates(records, primaryKey) {
			warnings = append(warnings, fmt.Sprintf("primary key %q has duplicates - may cause issues with joins", primaryKey))
		}
	}

	sanitizedTable := validate.SanitizeTableName(tableName)
	cols := make([]relational.Column, len(cleanedColumns))
	for i, name := range cleanedColumns {
		sanitized := validate.SanitizeColumnName(name)
		cleanedColumns[i] = sanitized
		cols[i] = relational.Column{Name: sanitized, Type: columnTypes[name], IsPrimaryKey: sanitized == primaryKey}
	}

	rows := make([][]any, len(rawRows))
	for i, raw := range rawRows {
		row := make([]any, len(cleanedColumns))
		for j := range cleanedColumns {
			if j < len(raw) {
				row[j] = convertValue(raw[j], cols[j].Type)
			}
		}
		rows[i] = row
	}

	if err := p.relational.ReplaceTable(ctx, sanitizedTable, cols, rows); err != nil {
		return nil, fmt.Errorf("replace table: %w", err)
	}

	report := p.detector.Scan(records)

	result := &Result{
		TableName: sanitizedTable, RowsImported: len(rawRows), Columns: cleanedColumns,
		ColumnTypes: columnTypes, PrimaryKey: primaryKey, Warnings: warnings, PIIReport: report,
	}

	if p.vectors != nil {
		count, err := p.vectors.EmbedRecords(ctx, sanitizedTable, records, primaryKey)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("vector indexing failed: %v", err))
		} else {
			result.VectorCount = count
		}
	}

	return result, nil
}

func rowsToRecords(columns []string, rows [][]string) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		record := make(map[string]any, len(columns))
		for j, col := range columns {
			if j < len(row) {
				record[col] = row[j]
			}
		}
		out[i] = record
	}
	return out
}

// cleanColumnName replaces non-alphanumeric characters with underscores,
// trims leading/trailing underscores, and lowercases, matching the
// reference implementation's _clean_column_name exactly.
func cleanColumnName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	clean := strings.Trim(b.String(), "_")
	clean = strings.ToLower(clean)
	if clean == "" {
		return "column"
	}
	return clean
}

func detectPrimaryKey(columns []string, template, hint string) string {
	colSet := make(map[string]bool, len(columns))
	for _, c := range columns {
		colSet[c] = true
	}

	if hint != "" {
		cleanHint := cleanColumnName(hint)
		if colSet[cleanHint] {
			return cleanHint
		}
		if colSet[hint] {
			return hint
		}
	}

	hints, ok := PrimaryKeyHints[template]
	if !ok {
		hints = PrimaryKeyHints["generic"]
	}
	for _, h := range hints {
		clean := cleanColumnName(h)
		if colSet[clean] {
			return clean
		}
	}
	return ""
}

func hasDuplicates(records []map[string]any, key string) bool {
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		v := fmt.Sprint(r[key])
		if seen[v] {
			return true
		}
		seen[v] = true
	}
	return false
}

// inferTypes infers a SQL-friendly type per column by inspecting every
// non-empty value, in the ladder: integer, real, boolean, datetime, text.
func inferTypes(columns []string, records []map[string]any) map[string]relational.ColumnType {
	types := make(map[string]relational.ColumnType, len(columns))
	for _, col := range columns {
		types[col] = inferColumnType(col, records)
	}
	return types
}

func inferColumnType(col string, records []map[string]any) relational.ColumnType {
	var nonEmpty int
	allInt, allFloat, allBool, allDatetime := true, true, true, true

	for _, r := range records {
		v, ok := r[col]
		if !ok {
			continue
		}
		s, _ := v.(string)
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		nonEmpty++

		if _, err := strconv.ParseInt(s, 10, 64); err != nil {
			allInt = false
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			allFloat = false
		}
		if !isBoolLiteral(s) {
			allBool = false
		}
		if !looksLikeDatetime(s) {
			allDatetime = false
		}
	}

	switch {
	case nonEmpty == 0:
		return relational.TypeText
	case allInt:
		return relational.TypeInteger
	case allFloat:
		return relational.TypeReal
	case allBool:
		return relational.TypeBoolean
	case allDatetime:
		return relational.TypeDatetime
	default:
		return relational.TypeText
	}
}

func isBoolLiteral(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false", "yes", "no", "0", "1":
		return true
	default:
		return false
	}
}

var datetimeLayouts = []string{
	time.RFC3339, "2006-01-02", "2006-01-02 15:04:05", "01/02/2006", "2006/01/02",
}

func looksLikeDatetime(s string) bool {
	for _, layout := range datetimeLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func convertValue(s string, t relational.ColumnType) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	switch t {
	case relational.TypeInteger:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case relational.TypeReal:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case relational.TypeBoolean:
		switch strings.ToLower(s) {
		case "true", "yes", "1":
			return true
		case "false", "no", "0":
			return false
		}
	}
	return s
}
