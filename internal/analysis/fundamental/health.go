package fundamental

import (
	"fmt"
	"math"

	"github.com/seenimoa/finlens/pkg/models"
)

// FinancialHealth scores the latest period of a ratio result.
type FinancialHealth struct {
	Year       string             `json:"year"`
	Score      float64            `json:"score"` // 0-100 composite score
	Grade      string             `json:"grade"` // "A+", "A", "B+", "B", "C", "D"
	Strengths  []string           `json:"strengths"`
	Weaknesses []string           `json:"weaknesses"`
	Components map[string]float64 `json:"components"`
}

// AssessFinancialHealth grades profitability, solvency, liquidity, growth
// and cash generation of the most recent period. Growth is skipped when
// only one period exists.
func AssessFinancialHealth(ratios *models.RatioResult) FinancialHealth {
	h := FinancialHealth{Components: make(map[string]float64)}
	if ratios == nil || ratios.Len() == 0 {
		h.Grade = "D"
		return h
	}
	last := ratios.Len() - 1
	h.Year = ratios.Years[last]
	at := func(k RatioKind) float64 { return ratios.Value(k.String(), last) }

	totalScore := 0.0
	totalWeight := 0.0

	// Profitability (30 points).
	profScore := 0.0
	roe := at(ReturnOnEquity)
	switch {
	case roe > 0.20:
		profScore += 10
		h.Strengths = append(h.Strengths, fmt.Sprintf("High ROE: %.1f%%", roe*100))
	case roe > 0.12:
		profScore += 6
	case roe > 0:
		profScore += 3
	default:
		h.Weaknesses = append(h.Weaknesses, "Negative or zero ROE")
	}

	roa := at(ReturnOnAssets)
	switch {
	case roa > 0.10:
		profScore += 10
		h.Strengths = append(h.Strengths, fmt.Sprintf("High ROA: %.1f%%", roa*100))
	case roa > 0.05:
		profScore += 6
	case roa > 0:
		profScore += 3
	}

	opm := at(OperatingMargin)
	switch {
	case opm > 0.20:
		profScore += 10
		h.Strengths = append(h.Strengths, fmt.Sprintf("Strong operating margin: %.1f%%", opm*100))
	case opm > 0.10:
		profScore += 6
	case opm > 0:
		profScore += 3
	default:
		h.Weaknesses = append(h.Weaknesses, "Negative operating margin")
	}

	h.Components["profitability"] = profScore
	totalScore += profScore
	totalWeight += 30

	// Solvency (25 points).
	solvScore := 0.0
	de := at(DebtToEquity)
	switch {
	case de < 0.5:
		solvScore += 12.5
		h.Strengths = append(h.Strengths, "Low debt-to-equity ratio")
	case de < 1:
		solvScore += 8
	case de < 2:
		solvScore += 4
	default:
		h.Weaknesses = append(h.Weaknesses, fmt.Sprintf("High debt-to-equity: %.2f", de))
	}

	ic := at(InterestCoverage)
	switch {
	case ic > 5:
		solvScore += 12.5
	case ic > 2:
		solvScore += 8
	case ic > 1:
		solvScore += 4
	case ic > 0:
		solvScore += 2
		h.Weaknesses = append(h.Weaknesses, "Low interest coverage")
	}

	h.Components["solvency"] = solvScore
	totalScore += solvScore
	totalWeight += 25

	// Liquidity (15 points).
	liqScore := 0.0
	cr := at(CurrentRatio)
	switch {
	case cr > 2:
		liqScore += 15
		h.Strengths = append(h.Strengths, "Strong current ratio")
	case cr > 1.5:
		liqScore += 12
	case cr > 1:
		liqScore += 7
	default:
		h.Weaknesses = append(h.Weaknesses, fmt.Sprintf("Weak current ratio: %.2f", cr))
	}

	h.Components["liquidity"] = liqScore
	totalScore += liqScore
	totalWeight += 15

	// Growth (20 points).
	revGrowth := at(RevenueGrowth)
	niGrowth := at(NetIncomeGrowth)
	if !math.IsNaN(revGrowth) && !math.IsNaN(niGrowth) {
		growthScore := 0.0
		switch {
		case revGrowth > 0.20:
			growthScore += 10
			h.Strengths = append(h.Strengths, fmt.Sprintf("Strong revenue growth: %.1f%%", revGrowth*100))
		case revGrowth > 0.10:
			growthScore += 6
		case revGrowth > 0:
			growthScore += 3
		default:
			h.Weaknesses = append(h.Weaknesses, "Declining revenue")
		}

		switch {
		case niGrowth > 0.20:
			growthScore += 10
		case niGrowth > 0.10:
			growthScore += 6
		case niGrowth > 0:
			growthScore += 3
		default:
			h.Weaknesses = append(h.Weaknesses, "Declining profits")
		}

		h.Components["growth"] = growthScore
		totalScore += growthScore
		totalWeight += 20
	}

	// Cash Flow (10 points).
	cfScore := 0.0
	fcf := at(FreeCashFlow)
	switch {
	case fcf > 0:
		cfScore += 10
		h.Strengths = append(h.Strengths, "Positive free cash flow")
	case at(OCFToSales) > 0:
		cfScore += 5
	default:
		h.Weaknesses = append(h.Weaknesses, "Negative operating cash flow")
	}

	h.Components["cash_flow"] = cfScore
	totalScore += cfScore
	totalWeight += 10

	h.Score = totalScore / totalWeight * 100

	switch {
	case h.Score >= 85:
		h.Grade = "A+"
	case h.Score >= 70:
		h.Grade = "A"
	case h.Score >= 55:
		h.Grade = "B+"
	case h.Score >= 40:
		h.Grade = "B"
	case h.Score >= 25:
		h.Grade = "C"
	default:
		h.Grade = "D"
	}

	return h
}
