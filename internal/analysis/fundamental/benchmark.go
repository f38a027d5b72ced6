package fundamental

import (
	"math"

	"github.com/seenimoa/finlens/pkg/models"
)

// CustomBenchmarkName is the display name of a peer-averaged benchmark.
func CustomBenchmarkName(industry string) string {
	return industry + " (Custom Benchmark)"
}

// AIBenchmarkName is the display name of an AI-estimated benchmark.
func AIBenchmarkName(industry string) string {
	return industry + " Benchmark"
}

// CustomBenchmark averages the latest-period value of every ratio across
// peers. Peers with no periods are ignored, as are NaN values; a ratio
// no peer contributes to averages to 0.
func CustomBenchmark(industry string, peers []*models.RatioResult) models.CompanyData {
	names := RatioNames()
	sums := make(map[string]float64, len(names))
	counts := make(map[string]int, len(names))

	for _, peer := range peers {
		if peer == nil || peer.Len() == 0 {
			continue
		}
		last := peer.Len() - 1
		for _, name := range names {
			v := peer.Value(name, last)
			if math.IsNaN(v) {
				continue
			}
			sums[name] += v
			counts[name]++
		}
	}

	ratios := models.NewRatioResult([]string{models.BenchmarkYear})
	for _, name := range names {
		avg := 0.0
		if counts[name] > 0 {
			avg = sums[name] / float64(counts[name])
		}
		ratios.Set(name, []float64{avg})
	}

	return models.CompanyData{
		Name:      CustomBenchmarkName(industry),
		Records:   []models.FinancialRecord{},
		Ratios:    ratios,
		Benchmark: true,
	}
}

// BenchmarkFromValues builds a one-period benchmark from a name → value
// map, such as an AI estimate. Every ratio in the taxonomy is present;
// ratios absent from values (or NaN) default to 0 and are returned in
// defaulted so callers can report them.
func BenchmarkFromValues(name string, values map[string]float64) (company models.CompanyData, defaulted []string) {
	ratios := models.NewRatioResult([]string{models.BenchmarkYear})
	for _, ratio := range RatioNames() {
		v, ok := values[ratio]
		if !ok || math.IsNaN(v) {
			v = 0
			defaulted = append(defaulted, ratio)
		}
		ratios.Set(ratio, []float64{v})
	}
	return models.CompanyData{
		Name:      name,
		Records:   []models.FinancialRecord{},
		Ratios:    ratios,
		Benchmark: true,
	}, defaulted
}
