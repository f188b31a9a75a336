package normalize

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// GroupDigits renders n with comma thousands separators, e.g. 1234567 ->
// "1,234,567".
func GroupDigits(n int64) string {
	return groupIntString(strconv.FormatInt(n, 10))
}

// GroupDecimal renders the integer part of d with comma separators.
func GroupDecimal(d decimal.Decimal) string {
	return groupIntString(d.Truncate(0).String())
}

// FormatAmount renders a raw amount as the grouped integer followed by the
// token symbol, e.g. ("5000000", "QUBIC") -> "5,000,000 QUBIC".
func FormatAmount(raw, token string) string {
	return GroupDecimal(AmountDecimal(raw)) + " " + token
}

// CompactAmount renders large volumes as "1.2M" / "3.4K".
func CompactAmount(v float64) string {
	switch {
	case v >= 1_000_000:
		return strconv.FormatFloat(v/1_000_000, 'f', 1, 64) + "M"
	case v >= 1_000:
		return strconv.FormatFloat(v/1_000, 'f', 1, 64) + "K"
	default:
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
}

func groupIntString(s string) string {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + len(s)/3 + 1)
	if neg {
		b.WriteByte('-')
	}
	head := len(s) % 3
	if head == 0 {
		head = 3
	}
	b.WriteString(s[:head])
	for i := head; i < len(s); i += 3 {
		b.WriteByte(',')
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
