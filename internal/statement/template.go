package statement

import "github.com/seenimoa/finlens/pkg/models"

// Template file names offered for download.
const (
	TemplateCSVName   = "financial_template.csv"
	TemplateXLSXName  = "financial_template.xlsx"
	TemplateSheetName = "Financials"
)

// templateData is a three-year sample statement that passes validation.
var templateData = map[string][3]float64{
	Year:                            {2021, 2022, 2023},
	NetIncome:                       {100000, 115000, 140000},
	Equity:                          {500000, 530000, 590000},
	TotalAssets:                     {800000, 850000, 920000},
	PPE:                             {760000, 805000, 870000},
	GrossProfit:                     {300000, 330000, 380000},
	Revenue:                         {500000, 550000, 620000},
	SGA:                             {85000, 90000, 100000},
	OtherOperatingExpenses:          {65000, 70000, 75000},
	EBITDA:                          {150000, 170000, 205000},
	Depreciation:                    {18000, 20000, 25000},
	EBIT:                            {132000, 150000, 180000},
	EarningBeforeTax:                {117000, 134000, 163500},
	Tax:                             {17000, 19000, 23500},
	InterestExpense:                 {15000, 16000, 16500},
	TotalInterestBearingLiabilities: {260000, 275000, 280000},
	InterestBearingLiabilitiesOnly:  {260000, 275000, 280000},
	Cash:                            {100000, 120000, 150000},
	AccountsReceivable:              {60000, 65000, 72000},
	COGS:                            {200000, 220000, 240000},
	Inventory:                       {80000, 85000, 90000},
	AccountsPayable:                 {40000, 45000, 50000},
	TotalLiabilities:                {300000, 320000, 330000},
	CurrentAssets:                   {240000, 270000, 312000},
	CurrentLiabilities:              {40000, 45000, 50000},
	OperatingCashFlow:               {140000, 160000, 190000},
	CapitalExpenditures:             {30000, 35000, 40000},
	MarketCapitalization:            {1000000, 1200000, 1500000},
	DividendsPaid:                   {20000, 25000, 30000},
}

// TemplateRecords returns the sample dataset as canonical records,
// oldest period first.
func TemplateRecords() []models.FinancialRecord {
	records := make([]models.FinancialRecord, 3)
	for i := range records {
		rec := make(models.FinancialRecord, len(templateData))
		for _, col := range AllColumns() {
			rec.Set(col, templateData[col][i])
		}
		records[i] = rec
	}
	return records
}

// TemplateTable returns the sample dataset as a header row plus one
// row per period, in column order, for CSV and XLSX writers.
func TemplateTable() (header []string, rows [][]float64) {
	header = AllColumns()
	rows = make([][]float64, 3)
	for i := range rows {
		row := make([]float64, len(header))
		for j, col := range header {
			row[j] = templateData[col][i]
		}
		rows[i] = row
	}
	return header, rows
}
