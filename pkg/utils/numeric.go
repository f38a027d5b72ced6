package utils

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

var (
	// leadingFloat matches the longest numeric prefix a lenient float
	// parser accepts: "12.5abc" → "12.5", "-3e2x" → "-3e2".
	leadingFloat = regexp.MustCompile(`^[+-]?(Infinity|(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?)`)

	// separators are stripped from uploaded cell text before parsing.
	separators = regexp.MustCompile(`[,\s]`)

	// nonNumeric is everything but digits, the decimal point and minus,
	// stripped from AI-extracted values.
	nonNumeric = regexp.MustCompile(`[^0-9.\-]`)
)

// ParseLeadingFloat parses the numeric prefix of s after trimming leading
// whitespace. It returns NaN when s does not start with a number.
func ParseLeadingFloat(s string) float64 {
	s = strings.TrimLeft(s, " \t\r\n\f\v")
	m := leadingFloat.FindString(s)
	if m == "" {
		return math.NaN()
	}
	switch strings.TrimLeft(m, "+") {
	case "Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		// overflowing exponents parse as ±Inf with ErrRange
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return f
		}
		return math.NaN()
	}
	return f
}

// ToFloat coerces an uploaded cell into a number.
//
// nil and "" are unknown. Strings lose thousands separators and
// whitespace, then parse by numeric prefix ("1,200 USD" → 1200); a string
// with no numeric prefix is unknown. Numeric types convert directly.
// Anything else (bools, slices, ...) is unknown.
func ToFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case string:
		if x == "" {
			return 0, false
		}
		f := ParseLeadingFloat(separators.ReplaceAllString(x, ""))
		if math.IsNaN(f) {
			return 0, false
		}
		return f, true
	case bool:
		return 0, false
	case float64:
		return x, !math.IsNaN(x)
	case float32:
		return float64(x), !math.IsNaN(float64(x))
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ToFloatPtr is ToFloat returning nil for unknown values.
func ToFloatPtr(v any) *float64 {
	f, ok := ToFloat(v)
	if !ok {
		return nil
	}
	return &f
}

// CleanExtractedNumber coerces a value returned by AI extraction. Strings
// keep only digits, '.', and '-' before parsing ("$1,200" → 1200).
func CleanExtractedNumber(v any) *float64 {
	switch x := v.(type) {
	case string:
		cleaned := nonNumeric.ReplaceAllString(x, "")
		if cleaned == "" {
			return nil
		}
		f := ParseLeadingFloat(cleaned)
		if math.IsNaN(f) {
			return nil
		}
		return &f
	case float64, float32, int, int32, int64:
		f := cast.ToFloat64(x)
		if math.IsNaN(f) {
			return nil
		}
		return &f
	default:
		return nil
	}
}

// ParseCorrection parses a value typed into a correction form: blank is
// unknown, anything else parses by numeric prefix.
func ParseCorrection(s string) *float64 {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	f := ParseLeadingFloat(s)
	if math.IsNaN(f) {
		return nil
	}
	return &f
}
