package report

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/seenimoa/finlens/internal/analysis/fundamental"
	"github.com/seenimoa/finlens/internal/statement"
	"github.com/seenimoa/finlens/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Data Exports: XLSX, CSV, JSON, YAML
// ════════════════════════════════════════════════════════════════════

// ForecastSheetName is the XLSX sheet holding projected ratios.
const ForecastSheetName = "Forecast"

// RatiosXLSXName is the download name of the ratio workbook.
const RatiosXLSXName = "ratios.xlsx"

// WriteRatiosXLSX writes one sheet per company with a row per ratio and a
// column per period, plus a forecast sheet when present. Missing values
// are left blank.
func WriteRatiosXLSX(w io.Writer, result *models.AnalysisResult) error {
	if result == nil || len(result.Companies) == 0 {
		return ErrNoResult
	}
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"E6E6E6"}},
	})
	if err != nil {
		return eris.Wrap(err, "report: xlsx style")
	}

	used := make(map[string]bool)
	first := true
	addSheet := func(name string, r *models.RatioResult) error {
		sheet := sheetName(name, used)
		if first {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return err
			}
			first = false
		} else if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
		return writeRatioSheet(f, sheet, r, bold)
	}

	for _, c := range result.Companies {
		if err := addSheet(c.Name, c.Ratios); err != nil {
			return eris.Wrapf(err, "report: xlsx sheet for %s", c.Name)
		}
	}
	if result.Forecast != nil {
		if err := addSheet(ForecastSheetName, result.Forecast); err != nil {
			return eris.Wrap(err, "report: xlsx forecast sheet")
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "report: write xlsx")
	}
	return nil
}

func writeRatioSheet(f *excelize.File, sheet string, r *models.RatioResult, headerStyle int) error {
	if r == nil {
		return nil
	}
	header := []any{"Ratio", "Category"}
	for _, y := range r.Years {
		header = append(header, y)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return err
	}

	for i, name := range r.Names {
		row := []any{name, ratioCategory(name)}
		for j := range r.Years {
			v := r.Value(name, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				row = append(row, nil)
				continue
			}
			row = append(row, v)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SetColWidth(sheet, "A", "A", 36)
}

// sheetName makes name a valid, unique sheet name: at most 31 characters
// and none of []:*?/\.
func sheetName(name string, used map[string]bool) string {
	clean := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, name)
	if clean == "" {
		clean = "Sheet"
	}
	base := []rune(clean)
	if len(base) > 31 {
		base = base[:31]
	}
	out := string(base)
	for n := 2; used[strings.ToLower(out)]; n++ {
		suffix := " (" + strconv.Itoa(n) + ")"
		trimmed := base
		if len(trimmed)+len(suffix) > 31 {
			trimmed = trimmed[:31-len(suffix)]
		}
		out = string(trimmed) + suffix
	}
	used[strings.ToLower(out)] = true
	return out
}

func ratioCategory(name string) string {
	if k, ok := fundamental.RatioKindByName(name); ok {
		return string(k.Category())
	}
	return ""
}

// WriteRatiosCSV writes ratios in long form: one row per company, ratio
// and period. Forecast rows use the company "Forecast".
func WriteRatiosCSV(w io.Writer, result *models.AnalysisResult) error {
	if result == nil || len(result.Companies) == 0 {
		return ErrNoResult
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"company", "ratio", "category", "period", "value"}); err != nil {
		return eris.Wrap(err, "report: write csv")
	}
	write := func(company string, r *models.RatioResult) error {
		if r == nil {
			return nil
		}
		for _, name := range r.Names {
			for j, year := range r.Years {
				v := r.Value(name, j)
				cell := ""
				if !math.IsNaN(v) && !math.IsInf(v, 0) {
					cell = strconv.FormatFloat(v, 'f', -1, 64)
				}
				if err := cw.Write([]string{company, name, ratioCategory(name), year, cell}); err != nil {
					return err
				}
			}
		}
		return nil
	}
	for _, c := range result.Companies {
		if err := write(c.Name, c.Ratios); err != nil {
			return eris.Wrap(err, "report: write csv")
		}
	}
	if err := write(ForecastSheetName, result.Forecast); err != nil {
		return eris.Wrap(err, "report: write csv")
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "report: flush csv")
}

// WriteTemplateCSV writes the sample statement as CSV.
func WriteTemplateCSV(w io.Writer) error {
	header, rows := statement.TemplateTable()
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "report: write template csv")
	}
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = models.FormatNumber(v)
		}
		if err := cw.Write(cells); err != nil {
			return eris.Wrap(err, "report: write template csv")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "report: flush template csv")
}

// WriteTemplateXLSX writes the sample statement as a single-sheet workbook.
func WriteTemplateXLSX(w io.Writer) error {
	header, rows := statement.TemplateTable()
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", statement.TemplateSheetName); err != nil {
		return eris.Wrap(err, "report: template sheet")
	}
	hdr := make([]any, len(header))
	for i, h := range header {
		hdr[i] = h
	}
	if err := f.SetSheetRow(statement.TemplateSheetName, "A1", &hdr); err != nil {
		return eris.Wrap(err, "report: template header")
	}
	for r, row := range rows {
		cells := make([]any, len(row))
		for i, v := range row {
			cells[i] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return eris.Wrap(err, "report: template row")
		}
		if err := f.SetSheetRow(statement.TemplateSheetName, cell, &cells); err != nil {
			return eris.Wrap(err, "report: template row")
		}
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "report: write template xlsx")
	}
	return nil
}

// WriteJSON writes the analysis as indented JSON.
func WriteJSON(w io.Writer, result *models.AnalysisResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(result), "report: write json")
}

// WriteYAML writes the analysis as YAML with the same shape as the JSON
// output.
func WriteYAML(w io.Writer, result *models.AnalysisResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "report: encode analysis")
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return eris.Wrap(err, "report: decode analysis")
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return eris.Wrap(err, "report: write yaml")
	}
	return eris.Wrap(enc.Close(), "report: close yaml")
}
