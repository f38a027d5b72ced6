package models

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
)

// ── FinancialRecord Tests ──

func TestFinancialRecordGetAndNull(t *testing.T) {
	r := FinancialRecord{"Year": Float(2023), "Revenue": Float(620000), "Cash": nil}

	if v, ok := r.Get("Revenue"); !ok || v != 620000 {
		t.Errorf("Get(Revenue): got %v,%v, want 620000,true", v, ok)
	}
	if _, ok := r.Get("Cash"); ok {
		t.Error("Get(Cash) should report unknown for a null field")
	}
	if _, ok := r.Get("Missing"); ok {
		t.Error("Get(Missing) should report unknown for an absent field")
	}
	if r.Value("Cash") != 0 {
		t.Errorf("Value(Cash): got %v, want 0", r.Value("Cash"))
	}
	if r.YearLabel() != "2023" {
		t.Errorf("YearLabel: got %q, want %q", r.YearLabel(), "2023")
	}
}

func TestFinancialRecordCloneIsDeep(t *testing.T) {
	r := FinancialRecord{"Revenue": Float(100)}
	c := r.Clone()
	*c["Revenue"] = 200
	if r.Value("Revenue") != 100 {
		t.Errorf("original mutated through clone: got %v", r.Value("Revenue"))
	}
}

func TestFinancialRecordMarshalNulls(t *testing.T) {
	r := FinancialRecord{"Year": Float(2022), "Cash": nil, "Tax": Float(math.NaN())}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("json.Marshal(FinancialRecord) error: %v", err)
	}
	want := `{"Cash":null,"Tax":null,"Year":2022}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

// ── ValidationIssues Tests ──

func TestValidationIssuesCount(t *testing.T) {
	vi := ValidationIssues{
		"2022":     {"Cash", "Tax"},
		"Period 2": {"Year"},
	}
	if vi.Count() != 3 {
		t.Errorf("Count: got %d, want 3", vi.Count())
	}
	if !vi.Has("2022", "Tax") {
		t.Error("expected Tax flagged for 2022")
	}
	if vi.Has("2022", "Year") {
		t.Error("Year should not be flagged for 2022")
	}
	if got := vi.Periods(); len(got) != 2 || got[0] != "2022" {
		t.Errorf("Periods: got %v", got)
	}
}

// ── RatioResult Tests ──

func TestRatioResultKeepsInsertionOrder(t *testing.T) {
	rr := NewRatioResult([]string{"2022", "2023"})
	rr.Set("Net Profit Margin", []float64{0.2, 0.22})
	rr.Set("Current Ratio", []float64{6, 6.24})
	rr.Set("Net Profit Margin", []float64{0.21, 0.23})

	if len(rr.Names) != 2 || rr.Names[0] != "Net Profit Margin" {
		t.Errorf("Names: got %v", rr.Names)
	}
	if rr.Last("Current Ratio") != 6.24 {
		t.Errorf("Last(Current Ratio): got %v", rr.Last("Current Ratio"))
	}
	if !math.IsNaN(rr.Value("Current Ratio", 5)) {
		t.Error("out-of-range Value should be NaN")
	}
	if !math.IsNaN(rr.Value("Unknown", 0)) {
		t.Error("unknown ratio Value should be NaN")
	}
}

func TestRatioResultJSON(t *testing.T) {
	rr := NewRatioResult([]string{"2022", "2023"})
	rr.Set("Revenue Growth", []float64{math.NaN(), 0.12727})
	rr.Set("Current Ratio", []float64{6, 6.24})

	data, err := json.Marshal(rr)
	if err != nil {
		t.Fatalf("json.Marshal(RatioResult) error: %v", err)
	}
	want := `{"Year":["2022","2023"],"Revenue Growth":[null,0.12727],"Current Ratio":[6,6.24]}`
	if string(data) != want {
		t.Fatalf("got %s, want %s", data, want)
	}

	var decoded RatioResult
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal(RatioResult) error: %v", err)
	}
	if strings.Join(decoded.Names, "|") != "Revenue Growth|Current Ratio" {
		t.Errorf("decoded Names: got %v", decoded.Names)
	}
	if !math.IsNaN(decoded.Value("Revenue Growth", 0)) {
		t.Error("null should decode as NaN")
	}
}

func TestRatioResultUnmarshalNumericYears(t *testing.T) {
	var rr RatioResult
	if err := json.Unmarshal([]byte(`{"Year":[2021,2022],"ROE":[0.2,0.21]}`), &rr); err != nil {
		t.Fatalf("json.Unmarshal error: %v", err)
	}
	if rr.Years[1] != "2022" {
		t.Errorf("Years[1]: got %q, want %q", rr.Years[1], "2022")
	}
}

func TestRatioResultUnmarshalRejectsMisalignedSeries(t *testing.T) {
	for _, in := range []string{
		`{"Year":[2021,2022],"ROE":[0.2,0.21,0.3]}`,
		`{"ROE":[0.2]}`,
	} {
		var rr RatioResult
		if err := json.Unmarshal([]byte(in), &rr); !errors.Is(err, ErrSeriesLength) {
			t.Errorf("%s: got %v, want ErrSeriesLength", in, err)
		}
	}
}

func TestRatioResultRounded(t *testing.T) {
	rr := NewRatioResult([]string{"2023"})
	rr.Set("ROA", []float64{0.152173913})
	got := rr.Rounded(4).Value("ROA", 0)
	if got != 0.1522 {
		t.Errorf("Rounded: got %v, want 0.1522", got)
	}
	if rr.Value("ROA", 0) != 0.152173913 {
		t.Error("Rounded must not mutate the receiver")
	}
}

// ── AnalysisResult Tests ──

func TestAnalysisResultPrimary(t *testing.T) {
	a := AnalysisResult{Companies: []CompanyData{
		{Name: "Tech Benchmark", Benchmark: true},
		{Name: "Acme"},
	}}
	if p := a.Primary(); p == nil || p.Name != "Acme" {
		t.Errorf("Primary: got %+v", p)
	}
	if !a.IsComparison() {
		t.Error("two entities should be a comparison")
	}
}

func TestParseLanguage(t *testing.T) {
	tests := []struct {
		in   string
		want Language
		ok   bool
	}{
		{"English", English, true},
		{" arabic ", Arabic, true},
		{"ar", Arabic, true},
		{"French", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseLanguage(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLanguage(%q): got %q/%v, want %q/%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
