package normalize

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want float64
	}{
		{"grouped with token", "2,500,000 QUBIC", 2500000},
		{"plain integer", "200", 200},
		{"grouped", "999,999", 999999},
		{"decimal", "1,234.5", 1234.5},
		{"empty", "", 0},
		{"letters", "abc", 0},
		{"only token", " QUBIC", 0},
		{"negative", "-5", 0},
		{"nan", "NaN", 0},
		{"inf", "Inf", 0},
		{"leading whitespace", "  42 CFB", 42},
		{"multiple spaces", "1,000 QX MR", 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseAmount(tt.raw))
		})
	}
}

func TestParseAmountIsTotal(t *testing.T) {
	inputs := []string{"", " ", ",", ",,,", "1e400", "-1e400", "0x1p-2", "∞", "1,2,3", "12abc", "\x00"}
	for _, in := range inputs {
		got := ParseAmount(in)
		assert.False(t, math.IsNaN(got), "input %q", in)
		assert.False(t, math.IsInf(got, 0), "input %q", in)
		assert.GreaterOrEqual(t, got, 0.0, "input %q", in)
	}
}

func TestAmountDecimalKeepsPrecision(t *testing.T) {
	d := AmountDecimal("123,456,789,012,345,678,901 QUBIC")
	assert.Equal(t, "123456789012345678901", d.String())

	assert.True(t, AmountDecimal("oops").IsZero())
	assert.True(t, AmountDecimal("-10").IsZero())
	assert.Equal(t, "12", AmountDecimal("12.99").String())
}
