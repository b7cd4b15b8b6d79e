// Package validate implements the security validator (C1): identifier and
// query safety checks that guarantee only well-formed, read-only SQL
// reaches storage.
//
// Grounded on original_source/intelligence/core/security.py for the exact
// keyword lists and check ordering.
package validate

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/nebulus-edge/intelligence/internal/apierr"
)

const (
	MaxTableNameLength  = 128
	MaxColumnNameLength = 128
	MaxSQLLength        = 10000
	DefaultMaxLimit     = 10000
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reservedKeywords is the closed set an identifier must never equal.
var reservedKeywords = map[string]bool{
	"select": true, "insert": true, "update": true, "delete": true,
	"drop": true, "create": true, "alter": true, "table": true,
	"index": true, "where": true, "from": true, "join": true,
	"union": true, "order": true, "group": true, "having": true,
	"limit": true, "offset": true, "and": true, "or": true,
	"not": true, "null": true, "true": true, "false": true,
	"as": true, "on": true, "in": true, "is": true,
	"like": true, "between": true, "exists": true, "case": true,
	"when": true, "then": true, "else": true, "end": true,
	"begin": true, "commit": true, "rollback": true, "transaction": true,
	"pragma": true, "attach": true, "detach": true, "vacuum": true,
	"analyze": true, "explain": true,
}

// forbiddenQueryKeywords must never appear as a whole word inside a query
// handed to the relational executor.
var forbiddenQueryKeywords = []string{
	"DROP", "DELETE", "INSERT", "UPDATE", "ALTER", "CREATE",
	"TRUNCATE", "REPLACE", "ATTACH", "DETACH",
}

// ValidateIdentifier checks a table or column name against the identifier
// pattern, length bound, and reserved-keyword set.
func ValidateIdentifier(name string, maxLen int) error {
	if name == "" {
		return apierr.NewValidation("identifier must not be empty")
	}
	if len(name) > maxLen {
		return apierr.NewValidation("identifier %q exceeds maximum length %d", name, maxLen)
	}
	if !identifierPattern.MatchString(name) {
		return apierr.NewValidation("identifier %q must match %s", name, identifierPattern.String())
	}
	if reservedKeywords[strings.ToLower(name)] {
		return apierr.NewValidation("identifier %q is a reserved keyword", name)
	}
	return nil
}

// ValidateTableName validates a table identifier.
func ValidateTableName(name string) error { return ValidateIdentifier(name, MaxTableNameLength) }

// ValidateColumnName validates a column identifier.
func ValidateColumnName(name string) error { return ValidateIdentifier(name, MaxColumnNameLength) }

var nonIdentChar = regexp.MustCompile(`[^a-zA-Z0-9_]`)
var leadingDigit = regexp.MustCompile(`^[0-9]`)

// SanitizeTableName rewrites any string into a valid, non-reserved table
// identifier. Never fails (§4.7 step 6).
func SanitizeTableName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = nonIdentChar.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		s = "table_data"
	}
	if leadingDigit.MatchString(s) {
		s = "t_" + s
	}
	if len(s) > MaxTableNameLength {
		s = s[:MaxTableNameLength]
	}
	if reservedKeywords[s] {
		s += "_table"
	}
	return s
}

// SanitizeColumnName rewrites a column header into a valid identifier.
// Empty results become "column" (§4.7 step 3); reserved keywords get a
// "_col" suffix.
func SanitizeColumnName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = nonIdentChar.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		s = "column"
	}
	if leadingDigit.MatchString(s) {
		s = "c_" + s
	}
	if len(s) > MaxColumnNameLength {
		s = s[:MaxColumnNameLength]
	}
	if reservedKeywords[s] {
		s += "_col"
	}
	return s
}

// QuoteIdentifier double-quotes an identifier for safe interpolation,
// doubling any embedded quote characters.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

var commentDash = regexp.MustCompile(`--`)
var commentBlock = regexp.MustCompile(`/\*.*?\*/`)

func wordBoundary(keyword string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(keyword) + `\b`)
}

// ValidateQuery enforces (I6): non-empty, bounded length, SELECT-only,
// no forbidden DDL/DML keywords, no comments, no embedded statement
// separators other than a single trailing semicolon.
func ValidateQuery(sql string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return apierr.NewValidation("query must not be empty")
	}
	if len(trimmed) > MaxSQLLength {
		return apierr.NewValidation("query exceeds maximum length %d", MaxSQLLength)
	}
	if !strings.HasPrefix(strings.ToUpper(trimmed), "SELECT") {
		return apierr.NewValidation("only SELECT statements are permitted")
	}
	for _, kw := range forbiddenQueryKeywords {
		if wordBoundary(kw).MatchString(trimmed) {
			return apierr.NewValidation("query contains forbidden keyword %q", kw)
		}
	}
	if commentDash.MatchString(trimmed) || commentBlock.MatchString(trimmed) {
		return apierr.NewValidation("query must not contain comments")
	}
	if strings.Contains(strings.TrimRight(trimmed, ";"), ";") {
		return apierr.NewValidation("query must be a single statement")
	}
	return nil
}

// ValidateLimit clamps limit to [0, maxLimit]; a negative or unparseable
// limit is rejected.
func ValidateLimit(limit *int, maxLimit int) (int, error) {
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	if limit == nil {
		return maxLimit, nil
	}
	if *limit < 0 {
		return 0, apierr.NewValidation("limit must not be negative")
	}
	if *limit > maxLimit {
		return maxLimit, nil
	}
	return *limit, nil
}

// ParseLimitString is a convenience used by HTTP handlers binding an
// optional query-string limit.
func ParseLimitString(s string, maxLimit int) (int, error) {
	if s == "" {
		return ValidateLimit(nil, maxLimit)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, apierr.NewValidation("limit must be an integer")
	}
	return ValidateLimit(&n, maxLimit)
}
