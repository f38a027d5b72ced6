// Package statement turns uploaded financial statement rows into
// validated, canonical period records.
package statement

import (
	"strings"

	"github.com/seenimoa/finlens/pkg/models"
)

// Field names of the canonical statement layout.
const (
	Year                            = models.FieldYear
	NetIncome                       = "Net Income"
	Equity                          = "Equity"
	TotalAssets                     = "Total Assets"
	PPE                             = "PP&E"
	GrossProfit                     = "Gross Profit"
	Revenue                         = "Revenue"
	SGA                             = "SG&A"
	OtherOperatingExpenses          = "Other Operating Expenses"
	EBITDA                          = "EBITDA"
	Depreciation                    = "Depreciation"
	EBIT                            = "EBIT"
	EarningBeforeTax                = "Earning Before Tax"
	Tax                             = "Tax"
	InterestExpense                 = "Interest Expense"
	TotalInterestBearingLiabilities = "Total Interest Bearing Liabilities"
	InterestBearingLiabilitiesOnly  = "Interest Bearing Liabilities Only"
	Cash                            = "Cash"
	AccountsReceivable              = "Accounts Receivable"
	COGS                            = "COGS"
	Inventory                       = "Inventory"
	AccountsPayable                 = "Accounts Payable"
	TotalLiabilities                = "Total Liabilities"
	CurrentAssets                   = "Current Assets"
	CurrentLiabilities              = "Current Liabilities"
	OperatingCashFlow               = "Operating Cash Flow"
	CapitalExpenditures             = "Capital Expenditures"

	MarketCapitalization = models.FieldMarketCapitalization
	DividendsPaid        = models.FieldDividendsPaid
)

// requiredColumns is the fixed list every period must fully populate.
var requiredColumns = []string{
	Year, NetIncome, Equity, TotalAssets, PPE, GrossProfit, Revenue, SGA,
	OtherOperatingExpenses, EBITDA, Depreciation, EBIT, EarningBeforeTax, Tax,
	InterestExpense, TotalInterestBearingLiabilities, InterestBearingLiabilitiesOnly,
	Cash, AccountsReceivable, COGS, Inventory, AccountsPayable, TotalLiabilities,
	CurrentAssets, CurrentLiabilities, OperatingCashFlow, CapitalExpenditures,
}

// optionalColumns enable the valuation ratios when present for every period.
var optionalColumns = []string{MarketCapitalization, DividendsPaid}

// RequiredColumns returns a copy of the required field list, in template order.
func RequiredColumns() []string {
	return append([]string(nil), requiredColumns...)
}

// OptionalColumns returns a copy of the optional valuation field list.
func OptionalColumns() []string {
	return append([]string(nil), optionalColumns...)
}

// AllColumns returns required followed by optional fields.
func AllColumns() []string {
	out := make([]string, 0, len(requiredColumns)+len(optionalColumns))
	out = append(out, requiredColumns...)
	return append(out, optionalColumns...)
}

// IsRequired reports whether name is a required field.
func IsRequired(name string) bool {
	for _, c := range requiredColumns {
		if c == name {
			return true
		}
	}
	return false
}

func isOptional(name string) bool {
	for _, c := range optionalColumns {
		if c == name {
			return true
		}
	}
	return false
}

// CountRequired returns how many of the given headers name a required
// field, matching after whitespace trimming.
func CountRequired(headers []string) int {
	seen := make(map[string]bool, len(headers))
	n := 0
	for _, h := range headers {
		h = strings.TrimSpace(h)
		if seen[h] || !IsRequired(h) {
			continue
		}
		seen[h] = true
		n++
	}
	return n
}

// MinRecognizedColumns is the fewest required headers an upload must carry
// before it is considered a statement at all.
const MinRecognizedColumns = 2
