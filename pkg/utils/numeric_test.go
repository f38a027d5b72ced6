package utils

import (
	"math"
	"testing"
)

func TestParseLeadingFloat(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
	}{
		{"42", 42},
		{"  12.5abc", 12.5},
		{"-3e2x", -300},
		{".5", 0.5},
		{"5.", 5},
		{"1e", 1},
		{"+7", 7},
		{"Infinity", math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLeadingFloat(tt.input); got != tt.expected {
				t.Errorf("ParseLeadingFloat(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}

	for _, bad := range []string{"", "abc", "-", ".", "N/A"} {
		if got := ParseLeadingFloat(bad); !math.IsNaN(got) {
			t.Errorf("ParseLeadingFloat(%q) = %v, want NaN", bad, got)
		}
	}
}

func TestToFloat(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  float64
		ok    bool
	}{
		{"nil", nil, 0, false},
		{"empty", "", 0, false},
		{"thousands", "1,200,000", 1200000, true},
		{"spaces", " 12 345 ", 12345, true},
		{"suffix", "1,200 USD", 1200, true},
		{"text", "n/a", 0, false},
		{"float", 3.5, 3.5, true},
		{"int", 7, 7, true},
		{"int64", int64(9), 9, true},
		{"bool", true, 0, false},
		{"nan", math.NaN(), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ToFloat(tt.input)
			if ok != tt.ok || (ok && got != tt.want) {
				t.Errorf("ToFloat(%v) = %v,%v, want %v,%v", tt.input, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestCleanExtractedNumber(t *testing.T) {
	if v := CleanExtractedNumber("$1,200.50"); v == nil || *v != 1200.5 {
		t.Errorf("currency string: got %v", v)
	}
	if v := CleanExtractedNumber("(n/a)"); v != nil {
		t.Errorf("text: got %v, want nil", *v)
	}
	if v := CleanExtractedNumber(float64(-15)); v == nil || *v != -15 {
		t.Errorf("number: got %v", v)
	}
	if v := CleanExtractedNumber(true); v != nil {
		t.Errorf("bool: got %v, want nil", *v)
	}
	if v := CleanExtractedNumber(nil); v != nil {
		t.Errorf("nil: got %v, want nil", *v)
	}
}

func TestParseCorrection(t *testing.T) {
	if v := ParseCorrection("   "); v != nil {
		t.Errorf("blank: got %v, want nil", *v)
	}
	if v := ParseCorrection("250000"); v == nil || *v != 250000 {
		t.Errorf("number: got %v", v)
	}
	if v := ParseCorrection("abc"); v != nil {
		t.Errorf("text: got %v, want nil", *v)
	}
}
