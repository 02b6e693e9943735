package finance

import (
	"fmt"
	"strings"
)

// FormatCurrency renders a quote-asset amount for display, with thousands
// separators and two decimals ("$5,000.00", "-$42.50"). Presentation only.
func FormatCurrency(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	s := fmt.Sprintf("%.2f", v)
	parts := strings.SplitN(s, ".", 2)
	return sign + "$" + groupThousands(parts[0]) + "." + parts[1]
}

// FormatPercent renders a fraction as a signed percentage ("+2.15%").
func FormatPercent(fraction float64) string {
	return fmt.Sprintf("%+.2f%%", fraction*100)
}

func groupThousands(digits string) string {
	n := len(digits)
	if n <= 3 {
		return digits
	}
	var b strings.Builder
	head := n % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
