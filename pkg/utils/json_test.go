package utils

import (
	"errors"
	"testing"
)

func TestStripCodeFence(t *testing.T) {
	in := "```json\n[{\"Year\": 2023}]\n```"
	if got := StripCodeFence(in); got != `[{"Year": 2023}]` {
		t.Errorf("StripCodeFence = %q", got)
	}
	if got := StripCodeFence("  {}  "); got != "{}" {
		t.Errorf("no fence: got %q", got)
	}
}

func TestParseLenientJSONStrict(t *testing.T) {
	var m map[string]float64
	if err := ParseLenientJSON(`{"Current Ratio": 1.5}`, &m); err != nil {
		t.Fatalf("ParseLenientJSON error: %v", err)
	}
	if m["Current Ratio"] != 1.5 {
		t.Errorf("got %v", m)
	}
}

func TestParseLenientJSONRepairsTrailingComma(t *testing.T) {
	var m map[string]float64
	in := "```json\n{\"Current Ratio\": 1.5, \"Quick Ratio\": 1.1,}\n```"
	if err := ParseLenientJSON(in, &m); err != nil {
		t.Fatalf("ParseLenientJSON error: %v", err)
	}
	if m["Quick Ratio"] != 1.1 {
		t.Errorf("got %v", m)
	}
}

func TestParseLenientJSONKeepsPrecision(t *testing.T) {
	var rows []map[string]float64
	in := `[{"Year": 2023, "Revenue": 123456789, "Net Income": 1234567.89,}]`
	if err := ParseLenientJSON(in, &rows); err != nil {
		t.Fatalf("ParseLenientJSON error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows: got %d, want 1", len(rows))
	}
	if got := rows[0]["Net Income"]; got != 1234567.89 {
		t.Errorf("Net Income: got %v, want 1234567.89", got)
	}
	if got := rows[0]["Revenue"]; got != 123456789 {
		t.Errorf("Revenue: got %v, want 123456789", got)
	}
}

func TestParseLenientJSONTypeMismatch(t *testing.T) {
	var rows []map[string]any
	err := ParseLenientJSON(`"just a sentence"`, &rows)
	if !errors.Is(err, ErrUnparseableJSON) {
		t.Errorf("got %v, want ErrUnparseableJSON", err)
	}
}
