package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordToTextSkipsNilsAndTitleCases(t *testing.T) {
	text := recordToText(map[string]any{
		"make":      "Honda",
		"year":      2020,
		"trade_in":  nil,
		"sale_date": "2024-01-05",
	})
	assert.Contains(t, text, "Make: Honda")
	assert.Contains(t, text, "Year: 2020")
	assert.Contains(t, text, "Sale Date: 2024-01-05")
	assert.NotContains(t, text, "Trade In")
}

func TestTitleCase(t *testing.T) {
	assert.Equal(t, "Sale Price", titleCase("sale_price"))
	assert.Equal(t, "Vin", titleCase("vin"))
}

func TestPointIDForIsStableAndDeterministic(t *testing.T) {
	a := pointIDFor("VIN12345")
	b := pointIDFor("VIN12345")
	c := pointIDFor("VIN99999")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestStringifyRecordPreservesScalarsAndStringifiesOther(t *testing.T) {
	out := stringifyRecord(map[string]any{
		"a": nil,
		"b": 3,
		"c": "x",
		"d": true,
		"e": []int{1, 2},
	})
	assert.Equal(t, "", out["a"])
	assert.Equal(t, 3, out["b"])
	assert.Equal(t, "x", out["c"])
	assert.Equal(t, true, out["d"])
	assert.Equal(t, "[1 2]", out["e"])
}

func TestAsFloat(t *testing.T) {
	f, ok := asFloat(3.5)
	assert.True(t, ok)
	assert.Equal(t, 3.5, f)

	_, ok = asFloat("not a number")
	assert.False(t, ok)

	f, ok = asFloat("42.1")
	assert.True(t, ok)
	assert.Equal(t, 42.1, f)
}
