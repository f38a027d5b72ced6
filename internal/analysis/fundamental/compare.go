package fundamental

import (
	"errors"
	"math"
	"sort"
	"strconv"

	"github.com/seenimoa/finlens/pkg/models"
)

// ErrNoCommonPeriods is returned when the compared companies share no
// reporting period.
var ErrNoCommonPeriods = errors.New("fundamental: companies have no common periods")

// CommonYears returns the period labels every real company reports,
// latest first. Benchmarks are ignored since they align with any period.
// With no real companies the result is empty and err is nil; with real
// companies but no shared period err is ErrNoCommonPeriods.
func CommonYears(companies []models.CompanyData) ([]string, error) {
	var common map[string]bool
	real := 0
	for _, c := range companies {
		if c.Benchmark || c.Ratios == nil {
			continue
		}
		real++
		years := make(map[string]bool, c.Ratios.Len())
		for _, y := range c.Ratios.Years {
			if common == nil || common[y] {
				years[y] = true
			}
		}
		common = years
	}
	if real == 0 {
		return nil, nil
	}

	out := make([]string, 0, len(common))
	for y := range common {
		out = append(out, y)
	}
	sortYearsDesc(out)
	if len(out) == 0 {
		return nil, ErrNoCommonPeriods
	}
	return out, nil
}

// CompanyValueAt returns a company's ratio value for a period label.
// Benchmarks always answer with their single period; real companies
// answer NaN when they do not report the period.
func CompanyValueAt(c models.CompanyData, ratio, year string) float64 {
	if c.Ratios == nil {
		return math.NaN()
	}
	if c.Benchmark {
		return c.Ratios.Value(ratio, 0)
	}
	return c.Ratios.Value(ratio, c.Ratios.YearIndex(year))
}

// sortYearsDesc orders labels numerically when both parse, falling back
// to string order.
func sortYearsDesc(years []string) {
	sort.Slice(years, func(i, j int) bool {
		a, errA := strconv.ParseFloat(years[i], 64)
		b, errB := strconv.ParseFloat(years[j], 64)
		if errA == nil && errB == nil {
			return a > b
		}
		return years[i] > years[j]
	})
}

// ── Relative standing ──

// lowerIsBetter lists ratios where a smaller value is the healthier one.
var lowerIsBetter = map[RatioKind]bool{
	InventoryDays:       true,
	ARDays:              true,
	CashConversionCycle: true,
	DebtToEquity:        true,
	DebtToAsset:         true,
	DebtToEBITDA:        true,
	NetDebtToEBITDA:     true,
	PriceToEarnings:     true,
	PriceToSales:        true,
}

// LowerIsBetter reports whether a smaller value of the ratio is healthier.
func LowerIsBetter(k RatioKind) bool { return lowerIsBetter[k] }

// RelativeMetric positions a company against its peers on one ratio.
type RelativeMetric struct {
	Ratio       string  `json:"ratio"`
	Category    string  `json:"category"`
	TargetValue float64 `json:"target_value"`
	PeerAvg     float64 `json:"peer_avg"`
	PeerMedian  float64 `json:"peer_median"`
	Percentile  float64 `json:"percentile"` // share of peers the target beats, 0-100
}

// RelativeMetrics compares target against every other company at year.
// Ratios the target lacks, or no peer reports, are skipped.
func RelativeMetrics(target models.CompanyData, peers []models.CompanyData, year string) []RelativeMetric {
	var results []RelativeMetric
	for _, kind := range AllRatioKinds() {
		name := kind.String()
		tv := CompanyValueAt(target, name, year)
		if math.IsNaN(tv) {
			continue
		}

		var vals []float64
		for _, p := range peers {
			if v := CompanyValueAt(p, name, year); !math.IsNaN(v) {
				vals = append(vals, v)
			}
		}
		if len(vals) == 0 {
			continue
		}

		beaten := 0
		for _, v := range vals {
			if (LowerIsBetter(kind) && v > tv) || (!LowerIsBetter(kind) && v < tv) {
				beaten++
			}
		}

		results = append(results, RelativeMetric{
			Ratio:       name,
			Category:    string(kind.Category()),
			TargetValue: tv,
			PeerAvg:     avgFloat(vals),
			PeerMedian:  medianFloat(vals),
			Percentile:  float64(beaten) / float64(len(vals)) * 100,
		})
	}
	return results
}

func avgFloat(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func medianFloat(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
