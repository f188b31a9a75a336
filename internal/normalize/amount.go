// Package normalize turns the loosely formatted amounts and timestamps found
// in QX payloads and display rows into canonical values. Nothing here returns
// an error: malformed input collapses to a safe default.
package normalize

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a free-form amount such as "2,500,000 QUBIC" into a
// number. Grouping commas are dropped and anything after the first space is
// ignored. The result is always finite and >= 0; unparseable input yields 0.
func ParseAmount(raw string) float64 {
	s := numericPart(raw)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return f
}

// AmountDecimal parses raw with the same rules as ParseAmount but keeps full
// precision and drops the fractional part. It is used where large integer
// amounts must survive formatting exactly.
func AmountDecimal(raw string) decimal.Decimal {
	s := numericPart(raw)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d.Truncate(0)
}

// numericPart strips grouping commas and cuts the token suffix.
func numericPart(raw string) string {
	s := strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	return s
}
