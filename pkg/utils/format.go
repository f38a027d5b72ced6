// Package utils provides common utility functions for finlens.
package utils

import (
	"fmt"
	"math"
	"strings"
)

// NotAvailable is shown for values that cannot be computed.
const NotAvailable = "N/A"

// percentMarkers are the substrings that make a ratio a percentage.
var percentMarkers = []string{"Margin", "Return", "Growth", "Yield"}

// IsPercentageRatio reports whether a ratio is displayed as a percentage.
// The match is case-sensitive: "Net Profit Margin" and "Return on Assets
// (ROA)" are percentages, "Current Ratio" is not.
func IsPercentageRatio(name string) bool {
	for _, m := range percentMarkers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}

// IsDaysRatio reports whether a ratio is a day count (one decimal).
func IsDaysRatio(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "days") || strings.Contains(lower, "cycle")
}

// FormatRatioValue renders a ratio value for display.
//
//	"Net Profit Margin", 0.2258  → "22.58%"
//	"Inventory Days",    136.875 → "136.9"
//	"Current Ratio",     6.24    → "6.24"
//	anything,            NaN     → "N/A"
//	anything,            ±Inf    → "N/A"
func FormatRatioValue(name string, v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NotAvailable
	}
	switch {
	case IsPercentageRatio(name):
		return fmt.Sprintf("%.2f%%", v*100)
	case IsDaysRatio(name):
		return fmt.Sprintf("%.1f", v)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

// FormatAmount formats a statement amount with thousands separators,
// e.g. 1234567.5 → "1,234,567.50". Whole numbers drop the decimals.
func FormatAmount(amount float64) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return NotAvailable
	}
	negative := amount < 0
	amount = math.Abs(amount)

	intPart := int64(amount)
	frac := amount - float64(intPart)

	formatted := groupThousands(intPart)
	if frac >= 0.005 {
		decStr := fmt.Sprintf("%.2f", frac)
		if strings.HasPrefix(decStr, "1") {
			// rounding carried into the integer part
			formatted = groupThousands(intPart + 1)
		} else {
			formatted += decStr[1:]
		}
	}

	if negative {
		return "-" + formatted
	}
	return formatted
}

// groupThousands formats an integer with comma separators every 3 digits.
func groupThousands(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
