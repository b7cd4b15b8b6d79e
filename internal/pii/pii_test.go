package pii_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nebulus-edge/intelligence/internal/pii"
)

func TestScanAndMask(t *testing.T) {
	d := pii.NewDetector()
	records := []map[string]any{
		{"ssn": "123-45-6789", "email": "j@x.com"},
		{"ssn": "", "email": "plain text, no pii here"},
	}

	report := d.Scan(records)
	assert.True(t, report.HasPII())
	assert.Equal(t, 1, report.RecordsWithPII)
	assert.Equal(t, 1, report.CountsByType[pii.TypeSSN])
	assert.Equal(t, 1, report.CountsByType[pii.TypeEmail])
	assert.Contains(t, report.PIIColumns(), "ssn")
	assert.Contains(t, report.PIIColumns(), "email")
}

func TestMask(t *testing.T) {
	assert.Equal(t, "***-**-6789", pii.Mask(pii.TypeSSN, "123-45-6789"))
	assert.Equal(t, "j***@x.com", pii.Mask(pii.TypeEmail, "j@x.com"))
	assert.Equal(t, "192.168.1.***", pii.Mask(pii.TypeIPAddress, "192.168.1.55"))
}
