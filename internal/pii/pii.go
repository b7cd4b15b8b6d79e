// Package pii implements the PII detector (C2): pattern- and
// column-hint-based scanning of ingested records, plus span-preserving
// masking.
//
// Grounded on pkg/masking/{pattern,service}.go in the teacher repo for the
// precompiled-pattern-table shape, and on
// original_source/intelligence/core/pii.py for the exact pattern catalog,
// column hint dictionary, and masking rules.
package pii

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Type identifies a category of detected PII.
type Type string

const (
	TypeSSN            Type = "ssn"
	TypePhone          Type = "phone"
	TypeEmail          Type = "email"
	TypeCreditCard     Type = "credit_card"
	TypeDateOfBirth    Type = "date_of_birth"
	TypeDriversLicense Type = "drivers_license"
	TypePassport       Type = "passport"
	TypeMedicalRecord  Type = "medical_record"
	TypeIPAddress      Type = "ip_address"
	TypeBankAccount    Type = "bank_account"
)

const maskChar = "*"
const maxSamples = 5

// Match is a single detected PII occurrence.
type Match struct {
	Type       Type
	Value      string
	Masked     string
	Column     string
	RowIndex   int
	Confidence float64
}

// Report summarizes a PII scan across a batch of records.
type Report struct {
	TotalRecords     int
	RecordsWithPII   int
	CountsByType     map[Type]int
	ColumnsWithPII   map[string][]Type
	Samples          []Match
	Warnings         []string
}

// HasPII reports whether any PII was found.
func (r *Report) HasPII() bool { return r.RecordsWithPII > 0 }

// PIIColumns returns the sorted list of column names flagged with PII,
// either by pattern match or by column-name hint.
func (r *Report) PIIColumns() []string {
	cols := make([]string, 0, len(r.ColumnsWithPII))
	for c := range r.ColumnsWithPII {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

var patterns = map[Type][]*regexp.Regexp{
	TypeSSN: {
		regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		regexp.MustCompile(`\b\d{3} \d{2} \d{4}\b`),
		regexp.MustCompile(`\b[0-8]\d{8}\b`),
	},
	TypePhone: {
		regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`),
		regexp.MustCompile(`\b\+\d{1,3}[-.\s]?\d{1,14}\b`),
	},
	TypeEmail: {
		regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	},
	TypeCreditCard: {
		regexp.MustCompile(`\b4\d{3}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`),
		regexp.MustCompile(`\b5[1-5]\d{2}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`),
		regexp.MustCompile(`\b3[47]\d{2}[-\s]?\d{6}[-\s]?\d{5}\b`),
		regexp.MustCompile(`\b6(?:011|5\d{2})[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`),
	},
	TypeDateOfBirth: {
		regexp.MustCompile(`\b\d{2}[/-]\d{2}[/-]\d{4}\b`),
	},
	TypeIPAddress: {
		regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
	},
	TypeMedicalRecord: {
		regexp.MustCompile(`(?i)\bMRN[-:\s]*\d{6,10}\b`),
		regexp.MustCompile(`(?i)\bPATIENT[-_\s]?ID[-:\s]*\d{6,12}\b`),
	},
}

// columnHints maps a PII type to column-name substrings that, when present
// in a column's header, warrant a warning even without a value match.
var columnHints = map[Type][]string{
	TypeSSN:            {"ssn", "social_security"},
	TypePhone:          {"phone", "mobile", "cell"},
	TypeEmail:          {"email", "e_mail"},
	TypeCreditCard:     {"credit_card", "card_number"},
	TypeDateOfBirth:    {"dob", "birth_date"},
	TypeDriversLicense: {"license", "drivers_license"},
	TypeMedicalRecord:  {"mrn", "medical_record", "patient_id", "chart_number"},
	TypeBankAccount:    {"account", "bank_account", "routing", "aba"},
}

// Detector scans records for PII. Stateless aside from the (fixed)
// compiled pattern table, safe for concurrent use.
type Detector struct{}

// NewDetector returns a PII detector with the built-in pattern catalog.
func NewDetector() *Detector { return &Detector{} }

// Scan inspects a batch of records (column name -> scalar value rendered
// as string) and produces a Report.
func (d *Detector) Scan(records []map[string]any) *Report {
	report := &Report{
		TotalRecords:   len(records),
		CountsByType:   make(map[Type]int),
		ColumnsWithPII: make(map[string][]Type),
	}

	warned := make(map[string]bool)
	for col := range columnHintColumnsFromRecords(records) {
		for t, hints := range columnHints {
			for _, hint := range hints {
				if strings.Contains(strings.ToLower(col), hint) {
					key := col + ":" + string(t)
					if !warned[key] {
						warned[key] = true
						report.Warnings = append(report.Warnings,
							fmt.Sprintf("column %q name suggests %s even without a confirmed value match", col, t))
						addColumnType(report, col, t)
					}
				}
			}
		}
	}

	for i, rec := range records {
		recordHasPII := false
		for col, raw := range rec {
			s := fmt.Sprint(raw)
			if s == "" || s == "<nil>" {
				continue
			}
			for t, pats := range patterns {
				for _, p := range pats {
					if loc := p.FindStringIndex(s); loc != nil {
						value := s[loc[0]:loc[1]]
						recordHasPII = true
						report.CountsByType[t]++
						addColumnType(report, col, t)
						m := Match{
							Type:       t,
							Value:      value,
							Masked:     Mask(t, value),
							Column:     col,
							RowIndex:   i,
							Confidence: 1.0,
						}
						if len(report.Samples) < maxSamples {
							report.Samples = append(report.Samples, m)
						}
					}
				}
			}
		}
		if recordHasPII {
			report.RecordsWithPII++
		}
	}

	return report
}

func columnHintColumnsFromRecords(records []map[string]any) map[string]bool {
	cols := make(map[string]bool)
	for _, rec := range records {
		for col := range rec {
			cols[col] = true
		}
	}
	return cols
}

func addColumnType(r *Report, col string, t Type) {
	for _, existing := range r.ColumnsWithPII[col] {
		if existing == t {
			return
		}
	}
	r.ColumnsWithPII[col] = append(r.ColumnsWithPII[col], t)
}

// Mask rewrites a matched value for the given type, preserving the last
// four characters for SSN/phone/credit-card, the email local part's first
// character plus domain, the first three IPv4 octets, and otherwise just
// the first character (§4.2).
func Mask(t Type, value string) string {
	switch t {
	case TypeSSN, TypePhone, TypeCreditCard, TypeBankAccount:
		return maskKeepLastFour(value)
	case TypeEmail:
		return maskEmail(value)
	case TypeIPAddress:
		return maskIP(value)
	default:
		return maskKeepFirst(value)
	}
}

func maskKeepLastFour(value string) string {
	digits := 0
	for _, r := range value {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits <= 4 {
		return value
	}
	var b strings.Builder
	seen := 0
	digitsToMask := digits - 4
	for _, r := range value {
		if r >= '0' && r <= '9' {
			if seen < digitsToMask {
				b.WriteString(maskChar)
			} else {
				b.WriteRune(r)
			}
			seen++
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func maskEmail(value string) string {
	at := strings.Index(value, "@")
	if at <= 0 {
		return maskKeepFirst(value)
	}
	local := value[:at]
	domain := value[at:]
	if len(local) <= 1 {
		return local + strings.Repeat(maskChar, 3) + domain
	}
	return local[:1] + strings.Repeat(maskChar, 3) + domain
}

func maskIP(value string) string {
	parts := strings.Split(value, ".")
	if len(parts) != 4 {
		return maskKeepFirst(value)
	}
	return parts[0] + "." + parts[1] + "." + parts[2] + "." + maskChar + maskChar + maskChar
}

func maskKeepFirst(value string) string {
	if value == "" {
		return value
	}
	runes := []rune(value)
	return string(runes[0]) + strings.Repeat(maskChar, len(runes)-1)
}
