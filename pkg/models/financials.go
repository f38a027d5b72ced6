package models

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
)

// Canonical field names. The full required/optional catalog lives in
// internal/statement; these are the ones referenced outside of it.
const (
	FieldYear                 = "Year"
	FieldMarketCapitalization = "Market Capitalization"
	FieldDividendsPaid        = "Dividends Paid"
)

// RawRow is one uploaded row before normalization: header → string,
// number, or nil exactly as the file reader produced it.
type RawRow map[string]any

// FinancialRecord is one reporting period of one company.
// A nil value means "unknown"; every key of a normalized record set is
// present on every record.
type FinancialRecord map[string]*float64

// Float returns a pointer to v, for building records in code.
func Float(v float64) *float64 { return &v }

// Get returns the value of field and whether it is known.
func (r FinancialRecord) Get(field string) (float64, bool) {
	v, ok := r[field]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

// Value returns the value of field, or 0 when unknown.
func (r FinancialRecord) Value(field string) float64 {
	v, _ := r.Get(field)
	return v
}

// Set stores a known value.
func (r FinancialRecord) Set(field string, v float64) {
	r[field] = Float(v)
}

// SetNull marks field as unknown, keeping the key.
func (r FinancialRecord) SetNull(field string) {
	r[field] = nil
}

// Year returns the numeric period identifier, if present and finite.
func (r FinancialRecord) Year() (float64, bool) {
	y, ok := r.Get(FieldYear)
	if !ok || math.IsNaN(y) || math.IsInf(y, 0) {
		return 0, false
	}
	return y, true
}

// SortYear is the key used to order records; unknown years sort as 0.
func (r FinancialRecord) SortYear() float64 {
	y, _ := r.Year()
	return y
}

// YearLabel renders the year the way ratio results carry it.
func (r FinancialRecord) YearLabel() string {
	y, ok := r.Get(FieldYear)
	if !ok {
		return "null"
	}
	return FormatNumber(y)
}

// Keys returns the record's field names in sorted order.
func (r FinancialRecord) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy.
func (r FinancialRecord) Clone() FinancialRecord {
	out := make(FinancialRecord, len(r))
	for k, v := range r {
		if v == nil {
			out[k] = nil
			continue
		}
		out[k] = Float(*v)
	}
	return out
}

// MarshalJSON writes NaN and infinities as null so that partially parsed
// uploads can still be shown back to the user.
func (r FinancialRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		v := r[k]
		if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
			buf.WriteString("null")
			continue
		}
		buf.WriteString(strconv.FormatFloat(*v, 'f', -1, 64))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// CloneRecords deep-copies a record set.
func CloneRecords(records []FinancialRecord) []FinancialRecord {
	out := make([]FinancialRecord, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// ValidationIssues maps a period key (the year, or "Period N") to the
// required fields that are missing or non-numeric in that period.
type ValidationIssues map[string][]string

// Periods returns the period keys in sorted order.
func (vi ValidationIssues) Periods() []string {
	keys := make([]string, 0, len(vi))
	for k := range vi {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Count returns the total number of flagged fields.
func (vi ValidationIssues) Count() int {
	n := 0
	for _, fields := range vi {
		n += len(fields)
	}
	return n
}

// Has reports whether field is flagged for period.
func (vi ValidationIssues) Has(period, field string) bool {
	for _, f := range vi[period] {
		if f == field {
			return true
		}
	}
	return false
}

// ValidationResult is the output of record validation.
type ValidationResult struct {
	Records  []FinancialRecord `json:"records"`
	Issues   ValidationIssues  `json:"issues"`
	AllValid bool              `json:"all_valid"`
}

// FormatNumber renders a float the shortest way that round-trips,
// so 2023 prints as "2023" and 2023.5 as "2023.5".
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
