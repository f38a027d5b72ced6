package statement

import (
	"strings"

	"github.com/seenimoa/finlens/pkg/models"
	"github.com/seenimoa/finlens/pkg/utils"
)

// Correction holds the values a user typed for one period, keyed by
// field. Only fields present in the map are changed.
type Correction map[string]string

// ApplyCorrections returns a deep copy of records with corrections merged
// in by position. A blank entry sets the field to unknown; any other
// entry is parsed by numeric prefix, and unparsable text also becomes
// unknown. Corrections beyond the record count are ignored, as are fields
// that are neither in the records nor a statement column.
func ApplyCorrections(records []models.FinancialRecord, corrections []Correction) []models.FinancialRecord {
	out := models.CloneRecords(records)
	for i, c := range corrections {
		if i >= len(out) {
			break
		}
		for field, text := range c {
			if key, ok := correctionKey(out, field); ok {
				out[i][key] = utils.ParseCorrection(text)
			}
		}
	}
	return out
}

// ApplyValues is ApplyCorrections for callers that already hold numbers,
// such as JSON API clients: nil entries set the field to unknown.
func ApplyValues(records []models.FinancialRecord, values []map[string]*float64) []models.FinancialRecord {
	out := models.CloneRecords(records)
	for i, c := range values {
		if i >= len(out) {
			break
		}
		for field, v := range c {
			key, ok := correctionKey(out, field)
			if !ok {
				continue
			}
			if v == nil {
				out[i][key] = nil
				continue
			}
			out[i][key] = models.Float(*v)
		}
	}
	return out
}

// correctionKey resolves a corrected field name to a record key. A
// statement column the upload lacked is added as unknown to every record,
// so all periods keep the same key set.
func correctionKey(records []models.FinancialRecord, field string) (string, bool) {
	field = strings.TrimSpace(field)
	known := IsRequired(field) || isOptional(field)
	for _, rec := range records {
		if _, ok := rec[field]; ok {
			known = true
			break
		}
	}
	if !known {
		return "", false
	}
	for _, rec := range records {
		if _, ok := rec[field]; !ok {
			rec[field] = nil
		}
	}
	return field, true
}

// MissingFields lists, per record index, the required fields flagged in
// issues. It maps issue keys back to positions for correction forms.
func MissingFields(records []models.FinancialRecord, issues models.ValidationIssues) map[int][]string {
	out := make(map[int][]string)
	for i, rec := range records {
		if fields, ok := issues[PeriodKey(rec, i)]; ok {
			out[i] = fields
		}
	}
	return out
}
