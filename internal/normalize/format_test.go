package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGroupDigits(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{123456, "123,456"},
		{1234567, "1,234,567"},
		{-1234567, "-1,234,567"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GroupDigits(tt.in))
	}
}

func TestFormatAmountRoundTrip(t *testing.T) {
	raws := []string{"5000000", "5,000,000", "200", "999,999", "0", "18446744073709551615"}
	for _, raw := range raws {
		formatted := FormatAmount(raw, "QUBIC")
		assert.Equal(t, ParseAmount(raw), ParseAmount(formatted), "raw %q formatted %q", raw, formatted)
	}
	assert.Equal(t, "5,000,000 QUBIC", FormatAmount("5000000", "QUBIC"))
	assert.Equal(t, "0 CFB", FormatAmount("garbage", "CFB"))
}

func TestCompactAmount(t *testing.T) {
	assert.Equal(t, "1.2M", CompactAmount(1_240_000))
	assert.Equal(t, "3.4K", CompactAmount(3_400))
	assert.Equal(t, "950", CompactAmount(950))
}
