package fundamental

import (
	"math"

	"github.com/seenimoa/finlens/internal/statement"
	"github.com/seenimoa/finlens/pkg/models"
)

// RatioKind enumerates every ratio the engine computes. The declaration
// order is the order ratios appear in results, prompts and reports.
type RatioKind int

const (
	GrossProfitMargin RatioKind = iota
	OperatingMargin
	EBITDAMargin
	EBITMargin
	NetProfitMargin
	ReturnOnAssets
	ReturnOnEquity

	AssetTurnover
	FixedAssetTurnover
	InventoryDays
	ARDays
	APDays
	CashDays
	CashConversionCycle

	CurrentRatio
	QuickRatio

	DebtToEquity
	DebtToAsset
	InterestCoverage
	DebtToEBITDA
	NetDebtToEBITDA

	RevenueGrowth
	NetIncomeGrowth
	EBITDAGrowth
	TotalAssetGrowth

	FreeCashFlow
	OCFToSales
	CashFlowCoverage

	PriceToEarnings
	PriceToSales
	DividendYield

	numRatioKinds
)

// Category groups ratios for display and narrative summaries.
type Category string

const (
	Profitability Category = "Profitability"
	Utilization   Category = "Utilization"
	Liquidity     Category = "Liquidity"
	Leverage      Category = "Leverage"
	Growth        Category = "Growth"
	CashFlow      Category = "Cash Flow"
	Valuation     Category = "Valuation"
)

// Categories lists the categories in display order.
var Categories = []Category{Profitability, Utilization, Liquidity, Leverage, Growth, CashFlow, Valuation}

// formula computes a ratio for one period. prev is nil for the first period.
type formula func(curr, prev models.FinancialRecord) float64

type ratioDef struct {
	name     string
	category Category
	calc     formula
}

// ratioDefs is indexed by RatioKind; the array length makes a missing
// definition a compile error.
var ratioDefs = [numRatioKinds]ratioDef{
	GrossProfitMargin: {"Gross Profit Margin", Profitability, quotient(statement.GrossProfit, statement.Revenue)},
	OperatingMargin:   {"Operating Margin", Profitability, quotient(statement.EBIT, statement.Revenue)},
	EBITDAMargin:      {"EBITDA Margin", Profitability, quotient(statement.EBITDA, statement.Revenue)},
	EBITMargin:        {"EBIT Margin", Profitability, quotient(statement.EBIT, statement.Revenue)},
	NetProfitMargin:   {"Net Profit Margin", Profitability, quotient(statement.NetIncome, statement.Revenue)},
	ReturnOnAssets:    {"Return on Assets (ROA)", Profitability, quotient(statement.NetIncome, statement.TotalAssets)},
	ReturnOnEquity:    {"Return on Equity (ROE)", Profitability, quotient(statement.NetIncome, statement.Equity)},

	AssetTurnover:       {"Asset Turnover", Utilization, quotient(statement.Revenue, statement.TotalAssets)},
	FixedAssetTurnover:  {"Fixed Asset Turnover", Utilization, quotient(statement.Revenue, statement.PPE)},
	InventoryDays:       {"Inventory Days", Utilization, days(statement.Inventory, statement.COGS)},
	ARDays:              {"A/R Days", Utilization, days(statement.AccountsReceivable, statement.Revenue)},
	APDays:              {"A/P Days", Utilization, days(statement.AccountsPayable, statement.COGS)},
	CashDays:            {"Cash Days", Utilization, days(statement.Cash, statement.Revenue)},
	CashConversionCycle: {"Cash Conversion Cycle", Utilization, cashConversionCycle},

	CurrentRatio: {"Current Ratio", Liquidity, quotient(statement.CurrentAssets, statement.CurrentLiabilities)},
	QuickRatio:   {"Quick Ratio", Liquidity, quickRatio},

	DebtToEquity:     {"Debt-to-Equity", Leverage, quotient(statement.TotalLiabilities, statement.Equity)},
	DebtToAsset:      {"Debt-to-Asset", Leverage, quotient(statement.TotalLiabilities, statement.TotalAssets)},
	InterestCoverage: {"Interest Coverage", Leverage, quotient(statement.EBIT, statement.InterestExpense)},
	DebtToEBITDA:     {"Debt To EBITDA", Leverage, quotient(statement.TotalInterestBearingLiabilities, statement.EBITDA)},
	NetDebtToEBITDA:  {"Net Debt to EBITDA", Leverage, netDebtToEBITDA},

	RevenueGrowth:    {"Revenue Growth", Growth, growth(statement.Revenue)},
	NetIncomeGrowth:  {"Net Income Growth", Growth, growth(statement.NetIncome)},
	EBITDAGrowth:     {"EBITDA Growth", Growth, growth(statement.EBITDA)},
	TotalAssetGrowth: {"Total Asset Growth", Growth, growth(statement.TotalAssets)},

	FreeCashFlow:     {"Free Cash Flow (FCF)", CashFlow, freeCashFlow},
	OCFToSales:       {"Operating Cash Flow to Sales", CashFlow, quotient(statement.OperatingCashFlow, statement.Revenue)},
	CashFlowCoverage: {"Cash Flow Coverage Ratio", CashFlow, quotient(statement.OperatingCashFlow, statement.TotalInterestBearingLiabilities)},

	PriceToEarnings: {"Price-to-Earnings (P/E)", Valuation, quotient(statement.MarketCapitalization, statement.NetIncome)},
	PriceToSales:    {"Price-to-Sales (P/S)", Valuation, quotient(statement.MarketCapitalization, statement.Revenue)},
	DividendYield:   {"Dividend Yield", Valuation, quotient(statement.DividendsPaid, statement.MarketCapitalization)},
}

// AllRatioKinds returns every kind in declaration order.
func AllRatioKinds() []RatioKind {
	kinds := make([]RatioKind, numRatioKinds)
	for i := range kinds {
		kinds[i] = RatioKind(i)
	}
	return kinds
}

// String returns the ratio's display name, which is also its result key.
func (k RatioKind) String() string {
	if k < 0 || k >= numRatioKinds {
		return "Unknown"
	}
	return ratioDefs[k].name
}

// Category returns the category the ratio is reported under.
func (k RatioKind) Category() Category {
	return ratioDefs[k].category
}

// IsGrowth reports whether the ratio compares a period with its predecessor.
func (k RatioKind) IsGrowth() bool { return ratioDefs[k].category == Growth }

// IsValuation reports whether the ratio needs market data.
func (k RatioKind) IsValuation() bool { return ratioDefs[k].category == Valuation }

// Compute evaluates the ratio for period curr given its predecessor.
func (k RatioKind) Compute(curr, prev models.FinancialRecord) float64 {
	return ratioDefs[k].calc(curr, prev)
}

// RatioKindByName looks a kind up by display name.
func RatioKindByName(name string) (RatioKind, bool) {
	for i, d := range ratioDefs {
		if d.name == name {
			return RatioKind(i), true
		}
	}
	return 0, false
}

// RatioNames returns every ratio name in declaration order.
func RatioNames() []string {
	names := make([]string, numRatioKinds)
	for i, d := range ratioDefs {
		names[i] = d.name
	}
	return names
}

// RatioNamesIn returns the names of the ratios in a category.
func RatioNamesIn(c Category) []string {
	var names []string
	for _, d := range ratioDefs {
		if d.category == c {
			names = append(names, d.name)
		}
	}
	return names
}

// ── Engine ──

// SafeDiv divides n by d, returning 0 when d is 0.
func SafeDiv(n, d float64) float64 {
	if d == 0 {
		return 0
	}
	return n / d
}

// HasValuationData reports whether every record carries market cap and
// dividends. An empty record set has no valuation data.
func HasValuationData(records []models.FinancialRecord) bool {
	if len(records) == 0 {
		return false
	}
	for _, r := range records {
		if _, ok := r.Get(statement.MarketCapitalization); !ok {
			return false
		}
		if _, ok := r.Get(statement.DividendsPaid); !ok {
			return false
		}
	}
	return true
}

// ComputeRatios calculates every ratio for every period. Records are
// sorted ascending by year on a copy of the slice; field values are not
// modified. Valuation ratios are only present when HasValuationData.
func ComputeRatios(records []models.FinancialRecord) (*models.RatioResult, bool) {
	sorted := append([]models.FinancialRecord(nil), records...)
	statement.SortByYear(sorted)

	years := make([]string, len(sorted))
	for i, r := range sorted {
		years[i] = r.YearLabel()
	}
	result := models.NewRatioResult(years)
	hasValuation := HasValuationData(sorted)

	for _, kind := range AllRatioKinds() {
		if kind.IsValuation() && !hasValuation {
			continue
		}
		values := make([]float64, len(sorted))
		for i, curr := range sorted {
			var prev models.FinancialRecord
			if i > 0 {
				prev = sorted[i-1]
			}
			values[i] = kind.Compute(curr, prev)
		}
		result.Set(kind.String(), values)
	}
	return result, hasValuation
}

// ── Formulas ──

func quotient(num, den string) formula {
	return func(curr, _ models.FinancialRecord) float64 {
		return SafeDiv(curr.Value(num), curr.Value(den))
	}
}

func days(num, den string) formula {
	return func(curr, _ models.FinancialRecord) float64 {
		return SafeDiv(curr.Value(num), curr.Value(den)) * 365
	}
}

func growth(field string) formula {
	return func(curr, prev models.FinancialRecord) float64 {
		if prev == nil {
			return math.NaN()
		}
		p := prev.Value(field)
		return SafeDiv(curr.Value(field)-p, p)
	}
}

func cashConversionCycle(curr, prev models.FinancialRecord) float64 {
	inv := days(statement.Inventory, statement.COGS)(curr, prev)
	ar := days(statement.AccountsReceivable, statement.Revenue)(curr, prev)
	ap := days(statement.AccountsPayable, statement.COGS)(curr, prev)
	return inv + ar - ap
}

func quickRatio(curr, _ models.FinancialRecord) float64 {
	return SafeDiv(curr.Value(statement.CurrentAssets)-curr.Value(statement.Inventory), curr.Value(statement.CurrentLiabilities))
}

func netDebtToEBITDA(curr, _ models.FinancialRecord) float64 {
	return SafeDiv(curr.Value(statement.TotalInterestBearingLiabilities)-curr.Value(statement.Cash), curr.Value(statement.EBITDA))
}

func freeCashFlow(curr, _ models.FinancialRecord) float64 {
	return curr.Value(statement.OperatingCashFlow) - curr.Value(statement.CapitalExpenditures)
}
