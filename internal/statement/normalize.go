package statement

import (
	"sort"
	"strings"

	"github.com/seenimoa/finlens/pkg/models"
	"github.com/seenimoa/finlens/pkg/utils"
)

// Normalize coerces raw rows into canonical records.
//
// The field set is the union of all trimmed headers; every output record
// carries every field, with nil for missing, empty, or non-numeric
// values. Raw headers that trim to the same name resolve in sorted raw
// key order, first non-nil value winning. Records are returned sorted ascending by Year, with a missing
// Year sorting as 0. Normalize never fails.
func Normalize(rows []models.RawRow) []models.FinancialRecord {
	fields := headerUnion(rows)

	records := make([]models.FinancialRecord, 0, len(rows))
	for _, row := range rows {
		trimmed := make(map[string]any, len(row))
		for _, k := range sortedKeys(row) {
			key := strings.TrimSpace(k)
			if prev, dup := trimmed[key]; dup && prev != nil {
				continue
			}
			trimmed[key] = row[k]
		}

		rec := make(models.FinancialRecord, len(fields))
		for _, f := range fields {
			rec[f] = utils.ToFloatPtr(trimmed[f])
		}
		records = append(records, rec)
	}

	SortByYear(records)
	return records
}

// SortByYear orders records ascending by numeric Year in place. The sort
// is stable so periods without a Year keep their upload order.
func SortByYear(records []models.FinancialRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].SortYear() < records[j].SortYear()
	})
}

// headerUnion returns every distinct trimmed header, in first-seen order.
func headerUnion(rows []models.RawRow) []string {
	seen := make(map[string]bool)
	var fields []string
	for _, row := range rows {
		for _, k := range sortedKeys(row) {
			f := strings.TrimSpace(k)
			if seen[f] {
				continue
			}
			seen[f] = true
			fields = append(fields, f)
		}
	}
	return fields
}

func sortedKeys(row models.RawRow) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
