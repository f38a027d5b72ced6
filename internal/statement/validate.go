package statement

import (
	"fmt"
	"math"

	"github.com/seenimoa/finlens/pkg/models"
)

// Validate checks every record against the required field list.
//
// A field is flagged when it is absent, nil, or NaN. Issues are keyed by
// the period's year, or "Period N" (1-based position) when the year is
// missing or not a plausible calendar year. Records pass through
// untouched.
func Validate(records []models.FinancialRecord) models.ValidationResult {
	issues := make(models.ValidationIssues)
	for i, rec := range records {
		var missing []string
		for _, col := range requiredColumns {
			v, ok := rec.Get(col)
			if !ok || math.IsNaN(v) {
				missing = append(missing, col)
			}
		}
		if len(missing) > 0 {
			issues[PeriodKey(rec, i)] = missing
		}
	}
	return models.ValidationResult{
		Records:  records,
		Issues:   issues,
		AllValid: len(issues) == 0,
	}
}

// PeriodKey names a period for issue reporting.
func PeriodKey(rec models.FinancialRecord, index int) string {
	if y, ok := rec.Year(); ok && y > 1000 {
		return models.FormatNumber(y)
	}
	return fmt.Sprintf("Period %d", index+1)
}
