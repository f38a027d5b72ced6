package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// RatioResult is a per-period table of named ratio series. All series
// have the same length as Years. NaN marks a value that is undefined for
// the period (growth at the first period, forecast padding, ...).
//
// Names keeps insertion order so that tables, prompts and exports list
// ratios in the order they were computed.
type RatioResult struct {
	Years  []string
	Names  []string
	Values map[string][]float64
}

// NewRatioResult creates an empty result for the given period labels.
func NewRatioResult(years []string) *RatioResult {
	return &RatioResult{
		Years:  append([]string(nil), years...),
		Values: make(map[string][]float64),
	}
}

// Len returns the number of periods.
func (r *RatioResult) Len() int { return len(r.Years) }

// Has reports whether a series with the given name exists.
func (r *RatioResult) Has(name string) bool {
	_, ok := r.Values[name]
	return ok
}

// Get returns the named series, or nil.
func (r *RatioResult) Get(name string) []float64 {
	return r.Values[name]
}

// Set stores a series, appending the name on first insertion.
func (r *RatioResult) Set(name string, values []float64) {
	if r.Values == nil {
		r.Values = make(map[string][]float64)
	}
	if _, ok := r.Values[name]; !ok {
		r.Names = append(r.Names, name)
	}
	r.Values[name] = values
}

// Value returns the value of name at period idx, NaN when out of range.
func (r *RatioResult) Value(name string, idx int) float64 {
	s, ok := r.Values[name]
	if !ok || idx < 0 || idx >= len(s) {
		return math.NaN()
	}
	return s[idx]
}

// Last returns the value of name at the last period.
func (r *RatioResult) Last(name string) float64 {
	return r.Value(name, len(r.Years)-1)
}

// YearIndex returns the position of a period label, or -1.
func (r *RatioResult) YearIndex(year string) int {
	for i, y := range r.Years {
		if y == year {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy.
func (r *RatioResult) Clone() *RatioResult {
	out := NewRatioResult(r.Years)
	for _, name := range r.Names {
		out.Set(name, append([]float64(nil), r.Values[name]...))
	}
	return out
}

// Rounded returns a copy with every finite value rounded to dec places.
func (r *RatioResult) Rounded(dec int) *RatioResult {
	out := r.Clone()
	p := math.Pow(10, float64(dec))
	for _, name := range out.Names {
		s := out.Values[name]
		for i, v := range s {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			s[i] = math.Round(v*p) / p
		}
	}
	return out
}

// MarshalJSON emits {"Year": [...], "<ratio>": [...], ...} with keys in
// insertion order and non-finite values as null.
func (r *RatioResult) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	years, err := json.Marshal(r.Years)
	if err != nil {
		return nil, err
	}
	if r.Years == nil {
		years = []byte("[]")
	}
	buf.WriteString(`"Year":`)
	buf.Write(years)
	for _, name := range r.Names {
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteString(":[")
		for i, v := range r.Values[name] {
			if i > 0 {
				buf.WriteByte(',')
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				buf.WriteString("null")
				continue
			}
			buf.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
		}
		buf.WriteByte(']')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ErrSeriesLength is returned when a decoded ratio series is not aligned
// with Year.
var ErrSeriesLength = errors.New("models: ratio series length differs from Year")

// UnmarshalJSON accepts the format written by MarshalJSON. Years may be
// strings or numbers; null values decode as NaN. Every series must have
// one value per Year.
func (r *RatioResult) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("models: ratio result must be a JSON object")
	}

	*r = RatioResult{Values: make(map[string][]float64)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)

		var raw []any
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("models: ratio %q: %w", key, err)
		}

		if key == FieldYear {
			r.Years = make([]string, len(raw))
			for i, v := range raw {
				switch y := v.(type) {
				case string:
					r.Years[i] = y
				case json.Number:
					r.Years[i] = y.String()
				case nil:
					r.Years[i] = "null"
				default:
					r.Years[i] = fmt.Sprint(y)
				}
			}
			continue
		}

		values := make([]float64, len(raw))
		for i, v := range raw {
			values[i] = math.NaN()
			if n, ok := v.(json.Number); ok {
				if f, err := n.Float64(); err == nil {
					values[i] = f
				}
			}
		}
		r.Set(key, values)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	for _, name := range r.Names {
		if n := len(r.Values[name]); n != len(r.Years) {
			return fmt.Errorf("%w: %q has %d values for %d periods", ErrSeriesLength, name, n, len(r.Years))
		}
	}
	return nil
}
