package fundamental

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/seenimoa/finlens/pkg/models"
)

// Forecast period bounds.
const (
	MinForecastPeriods = 1
	MaxForecastPeriods = 10
)

// ErrInvalidPeriods is returned for a forecast horizon outside 1..10.
var ErrInvalidPeriods = errors.New("fundamental: forecast periods must be between 1 and 10")

// ForecastLabel is the period label of a projected year.
func ForecastLabel(year float64) string {
	return models.FormatNumber(year) + " (F)"
}

// IsForecastLabel reports whether a period label was produced by Forecast.
func IsForecastLabel(label string) bool {
	return strings.HasSuffix(label, " (F)")
}

// Forecast extends every ratio series by periods projected values.
//
// Each non-growth ratio with at least two known values is fitted with an
// ordinary least-squares line over its period index (0, 1, 2, ...) and
// projected at the following indices. Growth ratios, and ratios with too
// little history, are padded with NaN. When no period label parses as a
// year the input is returned unchanged.
func Forecast(ratios *models.RatioResult, periods int) (*models.RatioResult, error) {
	if periods < MinForecastPeriods || periods > MaxForecastPeriods {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPeriods, periods)
	}

	var historical []float64
	for _, label := range ratios.Years {
		if y, err := strconv.ParseFloat(strings.TrimSpace(label), 64); err == nil && !math.IsNaN(y) {
			historical = append(historical, y)
		}
	}
	if len(historical) == 0 {
		return ratios, nil
	}

	lastYear := historical[0]
	for _, y := range historical[1:] {
		lastYear = math.Max(lastYear, y)
	}

	years := make([]string, 0, len(ratios.Years)+periods)
	for _, label := range ratios.Years {
		if y, err := strconv.ParseFloat(strings.TrimSpace(label), 64); err == nil && !math.IsNaN(y) {
			label = models.FormatNumber(y)
		}
		years = append(years, label)
	}
	for i := 0; i < periods; i++ {
		years = append(years, ForecastLabel(lastYear+float64(i)+1))
	}

	out := models.NewRatioResult(years)
	for _, name := range ratios.Names {
		series := ratios.Values[name]
		extended := append(make([]float64, 0, len(series)+periods), series...)

		known := knownValues(series)
		if strings.Contains(name, "Growth") || len(known) < 2 {
			for i := 0; i < periods; i++ {
				extended = append(extended, math.NaN())
			}
			out.Set(name, extended)
			continue
		}

		m, b := LinearRegression(indexRange(len(historical)), known)
		for i := 0; i < periods; i++ {
			extended = append(extended, m*float64(len(historical)+i)+b)
		}
		out.Set(name, extended)
	}
	return out, nil
}

// LinearRegression fits y = m·x + b by least squares over the first
// len(y) points. x positions beyond len(x) count as NaN. A degenerate
// fit yields m = 0 or b = 0 instead of NaN.
func LinearRegression(x, y []float64) (m, b float64) {
	n := float64(len(y))
	var sumX, sumY, sumXY, sumXX float64
	for i, yi := range y {
		xi := math.NaN()
		if i < len(x) {
			xi = x[i]
		}
		sumX += xi
		sumY += yi
		sumXY += xi * yi
		sumXX += xi * xi
	}

	m = (n*sumXY - sumX*sumY) / (n*sumXX - sumX*sumX)
	b = (sumY - m*sumX) / n
	if math.IsNaN(m) {
		m = 0
	}
	if math.IsNaN(b) {
		b = 0
	}
	return m, b
}

func knownValues(series []float64) []float64 {
	out := make([]float64, 0, len(series))
	for _, v := range series {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

func indexRange(n int) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = float64(i)
	}
	return x
}
