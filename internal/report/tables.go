package report

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/seenimoa/finlens/internal/analysis/fundamental"
	"github.com/seenimoa/finlens/internal/statement"
	"github.com/seenimoa/finlens/pkg/models"
	"github.com/seenimoa/finlens/pkg/utils"
)

// ════════════════════════════════════════════════════════════════════
// Terminal Tables
// ════════════════════════════════════════════════════════════════════

// TableOptions controls terminal table rendering.
type TableOptions struct {
	Color bool   // ANSI colors for headers and flagged cells
	Year  string // comparison period (default: latest common period)
}

func newTableWriter(w io.Writer, color bool) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	if color {
		tw.SetStyle(table.StyleColoredDark)
	} else {
		tw.SetStyle(table.StyleLight)
	}
	tw.Style().Options.SeparateRows = false
	return tw
}

func heading(w io.Writer, s string, color bool) {
	if color {
		s = text.Bold.Sprint(s)
	}
	fmt.Fprintln(w, s)
}

// renderTable writes t with the first column left-aligned and the rest
// right-aligned.
func renderTable(w io.Writer, t Table, color bool) {
	tw := newTableWriter(w, color)
	hdr := make(table.Row, len(t.Head))
	cfgs := make([]table.ColumnConfig, len(t.Head))
	for i, h := range t.Head {
		hdr[i] = h
		cfgs[i] = table.ColumnConfig{Number: i + 1, WidthMax: 40}
		if i > 0 {
			cfgs[i].Align = text.AlignRight
			cfgs[i].AlignHeader = text.AlignRight
		}
	}
	tw.AppendHeader(hdr)
	tw.SetColumnConfigs(cfgs)
	for _, r := range t.Rows {
		row := make(table.Row, len(r))
		for i, c := range r {
			row[i] = c
		}
		tw.AppendRow(row)
	}
	tw.Render()
}

// RenderRatioTables writes one table per ratio category, the forecast
// when present, and the health grade or relative position.
func RenderRatioTables(w io.Writer, result *models.AnalysisResult, opts TableOptions) error {
	if result == nil || len(result.Companies) == 0 {
		return ErrNoResult
	}
	data, err := BuildReportData(result, ReportConfig{Year: opts.Year})
	if err != nil {
		return err
	}

	if data.Comparison {
		if data.NoCommonPeriods {
			fmt.Fprintln(w, "The compared companies share no reporting period; comparison values are not available.")
		} else {
			fmt.Fprintf(w, "Comparison period: %s\n", data.Year)
		}
		fmt.Fprintln(w)
	}

	for _, c := range data.Categories {
		heading(w, strings.ToUpper(c.Category), opts.Color)
		renderTable(w, c.Table, opts.Color)
		fmt.Fprintln(w)
	}

	if data.Forecast != nil {
		heading(w, "FORECAST", opts.Color)
		renderTable(w, data.Forecast.Table, opts.Color)
		fmt.Fprintln(w)
	}

	if h := data.Health; h != nil {
		RenderHealth(w, h, opts.Color)
	}

	if len(data.Relative) > 0 {
		heading(w, "RELATIVE POSITION", opts.Color)
		t := Table{Head: []string{"Ratio", "Value", "Peer Avg", "Percentile"}}
		for _, r := range data.Relative {
			t.Rows = append(t.Rows, []string{r.Ratio, r.Value, r.PeerAvg, r.Percentile})
		}
		renderTable(w, t, opts.Color)
		fmt.Fprintln(w)
	}
	return nil
}

// RenderHealth writes the health grade with its strengths and weaknesses.
func RenderHealth(w io.Writer, h *HealthSection, color bool) {
	grade := h.Grade
	if color {
		switch {
		case h.Score >= 70:
			grade = text.Colors{text.FgGreen, text.Bold}.Sprint(grade)
		case h.Score >= 50:
			grade = text.Colors{text.FgYellow, text.Bold}.Sprint(grade)
		default:
			grade = text.Colors{text.FgRed, text.Bold}.Sprint(grade)
		}
	}
	heading(w, "FINANCIAL HEALTH", color)
	fmt.Fprintf(w, "%s (%s): %s  score %.0f/100\n", h.Company, h.Year, grade, h.Score)
	for _, s := range h.Strengths {
		fmt.Fprintf(w, "  + %s\n", s)
	}
	for _, s := range h.Weaknesses {
		fmt.Fprintf(w, "  - %s\n", s)
	}
	fmt.Fprintln(w)
}

// RenderRatioCatalog lists every ratio with its category.
func RenderRatioCatalog(w io.Writer, color bool) {
	t := Table{Head: []string{"Ratio", "Category"}}
	for _, k := range fundamental.AllRatioKinds() {
		t.Rows = append(t.Rows, []string{k.String(), string(k.Category())})
	}
	renderTable(w, t, color)
}

// RenderCorrectionGrid writes a company's records with one column per
// period. Flagged cells read "?" so the user can see what to fill in.
func RenderCorrectionGrid(w io.Writer, company string, records []models.FinancialRecord, issues models.ValidationIssues, color bool) {
	missing := statement.MissingFields(records, issues)

	heading(w, fmt.Sprintf("%s: %d value(s) need attention", company, issues.Count()), color)
	tw := newTableWriter(w, color)

	hdr := table.Row{"#", "Field"}
	cfgs := []table.ColumnConfig{{Number: 1, Align: text.AlignRight}, {Number: 2}}
	for i, rec := range records {
		hdr = append(hdr, fmt.Sprintf("[%d] %s", i+1, statement.PeriodKey(rec, i)))
		cfgs = append(cfgs, table.ColumnConfig{Number: i + 3, Align: text.AlignRight, AlignHeader: text.AlignRight})
	}
	tw.AppendHeader(hdr)
	tw.SetColumnConfigs(cfgs)

	for n, col := range statement.AllColumns() {
		row := table.Row{n + 1, col}
		for i, rec := range records {
			row = append(row, gridCell(rec, col, contains(missing[i], col), color))
		}
		tw.AppendRow(row)
	}
	tw.Render()
}

func gridCell(rec models.FinancialRecord, col string, flagged, color bool) string {
	if flagged {
		if color {
			return text.Colors{text.FgRed, text.Bold}.Sprint("?")
		}
		return "?"
	}
	v, ok := rec.Get(col)
	if !ok || math.IsNaN(v) {
		return ""
	}
	if col == statement.Year {
		return models.FormatNumber(v)
	}
	return utils.FormatAmount(v)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
