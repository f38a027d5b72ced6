// Package report renders finished analyses: markdown and HTML reports with
// SVG charts, PDF documents, terminal tables, and data exports.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/seenimoa/finlens/internal/agent"
	"github.com/seenimoa/finlens/internal/analysis/fundamental"
	"github.com/seenimoa/finlens/pkg/models"
	"github.com/seenimoa/finlens/pkg/utils"
)

// ════════════════════════════════════════════════════════════════════
// Report Generator: tables, charts and templates
// ════════════════════════════════════════════════════════════════════

// ReportFormat specifies the output format.
type ReportFormat string

const (
	FormatHTML     ReportFormat = "html"
	FormatPDF      ReportFormat = "pdf"
	FormatMarkdown ReportFormat = "markdown"
)

// DefaultAuthor is the brand printed on reports.
const DefaultAuthor = "AAA Finance"

// ErrNoResult is returned when there is nothing to render.
var ErrNoResult = eris.New("report: analysis result is empty")

// ReportConfig controls report generation behaviour.
type ReportConfig struct {
	Title    string          // custom report title (optional)
	Author   string          // default: "AAA Finance"
	Language models.Language // narrative language (default: English)
	Year     string          // comparison period (default: latest common period)
	ChartCfg ChartConfig     // chart rendering config
}

// DefaultReportConfig returns sensible defaults.
func DefaultReportConfig() ReportConfig {
	return ReportConfig{
		Author:   DefaultAuthor,
		Language: models.English,
		ChartCfg: DefaultChartConfig(),
	}
}

// ════════════════════════════════════════════════════════════════════
// Report Data: flattened for rendering
// ════════════════════════════════════════════════════════════════════

// ReportData is the model shared by the markdown, HTML and PDF renderers.
type ReportData struct {
	Title       string
	Subtitle    string
	Companies   string
	Industry    string
	Author      string
	GeneratedAt string
	Language    models.Language
	RTL         bool

	Comparison      bool
	Year            string
	NoCommonPeriods bool

	Categories []CategorySection
	Forecast   *ForecastSection
	Health     *HealthSection
	Relative   []RelativeRow
	Narrative  []NarrativeSection
}

// Table is a header row plus formatted body rows.
type Table struct {
	Head []string
	Rows [][]string
}

// CategorySection is one ratio category: AI summary, table and chart.
type CategorySection struct {
	Category string
	Summary  string
	Table    Table
	Chart    template.HTML
}

// ForecastSection holds the projected periods of a single company.
type ForecastSection struct {
	Summary   string
	Projected int
	Table     Table
	Chart     template.HTML
}

// HealthSection is the graded health of the primary company.
type HealthSection struct {
	Company    string
	Year       string
	Score      float64
	Grade      string
	Strengths  []string
	Weaknesses []string
	Gauge      template.HTML
}

// RelativeRow positions the primary company against a benchmark or peers.
type RelativeRow struct {
	Ratio      string
	Category   string
	Value      string
	PeerAvg    string
	Percentile string
}

// NarrativeSection is one part of the AI analysis, as markdown and HTML.
type NarrativeSection struct {
	Title    string
	Markdown string
	HTML     template.HTML
}

var narrativeTitles = map[models.Language][5]string{
	models.English: {"Executive Summary", "Strengths", "Areas for Improvement", "Recommendations", "Conclusion"},
	models.Arabic:  {"الملخص التنفيذي", "نقاط القوة", "مجالات التحسين", "التوصيات", "الخلاصة"},
}

// BuildReportData flattens an analysis for rendering.
func BuildReportData(result *models.AnalysisResult, cfg ReportConfig) (ReportData, error) {
	if result == nil || len(result.Companies) == 0 {
		return ReportData{}, ErrNoResult
	}
	if cfg.Author == "" {
		cfg.Author = DefaultAuthor
	}
	if cfg.Language == "" {
		cfg.Language = models.English
	}
	if cfg.ChartCfg.Width == 0 {
		cfg.ChartCfg = DefaultChartConfig()
	}

	names := make([]string, len(result.Companies))
	for i, c := range result.Companies {
		names[i] = c.Name
	}

	data := ReportData{
		Title:       cfg.Title,
		Companies:   strings.Join(names, " vs. "),
		Industry:    result.Industry,
		Author:      cfg.Author,
		GeneratedAt: ReportTimestamp(result.CreatedAt),
		Language:    cfg.Language,
		RTL:         cfg.Language == models.Arabic,
		Comparison:  result.IsComparison(),
	}
	if data.Comparison {
		data.Subtitle = "Comparative Financial Analysis"
	} else {
		data.Subtitle = "Financial Health Report"
	}
	if data.Title == "" {
		data.Title = data.Subtitle
	}

	if data.Comparison {
		year, err := ComparisonYear(result, cfg.Year)
		if err != nil && !errors.Is(err, fundamental.ErrNoCommonPeriods) {
			return ReportData{}, err
		}
		data.Year = year
		data.NoCommonPeriods = err != nil
	}

	var narrative models.Narrative
	if result.Narrative != nil {
		narrative = result.Narrative.For(cfg.Language)
	}

	valuation := HasValuation(result)
	for _, cat := range fundamental.Categories {
		if cat == fundamental.Valuation && !valuation {
			continue
		}
		table := CategoryTable(result, cat, data.Year)
		if len(table.Rows) == 0 {
			continue
		}
		chartCfg := cfg.ChartCfg
		chartCfg.Title = string(cat)
		data.Categories = append(data.Categories, CategorySection{
			Category: string(cat),
			Summary:  summaryFor(narrative.Summaries, cat),
			Table:    table,
			Chart:    template.HTML(categoryChart(result, cat, data.Year, chartCfg)),
		})
	}

	if result.Forecast != nil {
		chartCfg := cfg.ChartCfg
		chartCfg.Title = "Forecast"
		summary := narrative.Summaries.Forecast
		if summary == agent.FallbackForecast {
			summary = ""
		}
		projected := 0
		for _, y := range result.Forecast.Years {
			if fundamental.IsForecastLabel(y) {
				projected++
			}
		}
		data.Forecast = &ForecastSection{
			Summary:   summary,
			Projected: projected,
			Table:     RatioTable(result.Forecast, result.Forecast.Names),
			Chart:     template.HTML(forecastChart(result.Forecast, chartCfg)),
		}
	}

	if primary := result.Primary(); primary != nil {
		if !data.Comparison {
			h := fundamental.AssessFinancialHealth(primary.Ratios)
			data.Health = &HealthSection{
				Company:    primary.Name,
				Year:       h.Year,
				Score:      h.Score,
				Grade:      h.Grade,
				Strengths:  h.Strengths,
				Weaknesses: h.Weaknesses,
				Gauge:      template.HTML(GaugeChart(h.Score, "Health Score", 180)),
			}
		} else if !data.NoCommonPeriods {
			data.Relative = relativeRows(result, *primary, data.Year)
		}
	}

	sections, err := narrativeSections(narrative.Main, cfg.Language)
	if err != nil {
		return ReportData{}, err
	}
	data.Narrative = sections
	return data, nil
}

// ComparisonYear picks the period shown in comparison tables: want when
// every real company reports it, otherwise the latest common period.
func ComparisonYear(result *models.AnalysisResult, want string) (string, error) {
	years, err := fundamental.CommonYears(result.Companies)
	if err != nil {
		return "", err
	}
	if len(years) == 0 {
		return models.BenchmarkYear, nil
	}
	for _, y := range years {
		if y == want {
			return y, nil
		}
	}
	return years[0], nil
}

// HasValuation reports whether any analyzed company carries valuation
// ratios. Benchmarks always do and are ignored.
func HasValuation(result *models.AnalysisResult) bool {
	name := fundamental.PriceToEarnings.String()
	for _, c := range result.Companies {
		if !c.Benchmark && c.Ratios != nil && c.Ratios.Has(name) {
			return true
		}
	}
	return false
}

// CategoryTable lays out one category. A single company gets one column
// per period; comparisons get one column per company at year.
func CategoryTable(result *models.AnalysisResult, cat fundamental.Category, year string) Table {
	names := fundamental.RatioNamesIn(cat)
	if !result.IsComparison() {
		return RatioTable(result.Companies[0].Ratios, names)
	}

	t := Table{Head: []string{"Ratio"}}
	for _, c := range result.Companies {
		t.Head = append(t.Head, c.Name)
	}
	for _, name := range names {
		row := []string{name}
		present := false
		for _, c := range result.Companies {
			v := fundamental.CompanyValueAt(c, name, year)
			if c.Ratios != nil && c.Ratios.Has(name) {
				present = true
			}
			row = append(row, utils.FormatRatioValue(name, v))
		}
		if present {
			t.Rows = append(t.Rows, row)
		}
	}
	return t
}

// RatioTable lays out the named series of r, one column per period.
// Names r does not carry are skipped.
func RatioTable(r *models.RatioResult, names []string) Table {
	if r == nil {
		return Table{}
	}
	t := Table{Head: append([]string{"Ratio"}, r.Years...)}
	for _, name := range names {
		if !r.Has(name) {
			continue
		}
		row := []string{name}
		for i := range r.Years {
			row = append(row, utils.FormatRatioValue(name, r.Value(name, i)))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func summaryFor(s models.NarrativeSummaries, cat fundamental.Category) string {
	var text string
	switch cat {
	case fundamental.Profitability:
		text = s.Profitability
	case fundamental.Utilization:
		text = s.Utilization
	case fundamental.Liquidity:
		text = s.Liquidity
	case fundamental.Leverage:
		text = s.Leverage
	case fundamental.Growth:
		text = s.Growth
	case fundamental.CashFlow:
		text = s.CashFlow
	case fundamental.Valuation:
		text = s.Valuation
	}
	if text == agent.FallbackSummary {
		return ""
	}
	return text
}

func relativeRows(result *models.AnalysisResult, primary models.CompanyData, year string) []RelativeRow {
	var peers []models.CompanyData
	for _, c := range result.Companies {
		if c.Name != primary.Name {
			peers = append(peers, c)
		}
	}
	metrics := fundamental.RelativeMetrics(primary, peers, year)
	rows := make([]RelativeRow, len(metrics))
	for i, m := range metrics {
		rows[i] = RelativeRow{
			Ratio:      m.Ratio,
			Category:   m.Category,
			Value:      utils.FormatRatioValue(m.Ratio, m.TargetValue),
			PeerAvg:    utils.FormatRatioValue(m.Ratio, m.PeerAvg),
			Percentile: fmt.Sprintf("%.0f", m.Percentile),
		}
	}
	return rows
}

// narrativeSections splits the main analysis into the report's sections.
// When the split finds none of them the whole text is one section.
func narrativeSections(main string, lang models.Language) ([]NarrativeSection, error) {
	main = strings.TrimSpace(main)
	if main == "" || main == agent.FallbackMain {
		return nil, nil
	}
	titles, ok := narrativeTitles[lang]
	if !ok {
		titles = narrativeTitles[models.English]
	}

	split := agent.SplitAnalysis(main, lang)
	parts := []string{split.Summary, split.Strengths, split.Improvements, split.Recommendations, split.Conclusion}

	var sections []NarrativeSection
	for i, md := range parts {
		if strings.TrimSpace(md) == "" {
			continue
		}
		html, err := markdownHTML(md)
		if err != nil {
			return nil, err
		}
		sections = append(sections, NarrativeSection{Title: titles[i], Markdown: md, HTML: html})
	}
	if len(sections) == 0 {
		html, err := markdownHTML(main)
		if err != nil {
			return nil, err
		}
		sections = []NarrativeSection{{Title: titles[0], Markdown: main, HTML: html}}
	}
	return sections, nil
}

// markdownHTML converts AI markdown to HTML. Raw HTML in the source is
// dropped by goldmark's default renderer.
func markdownHTML(md string) (template.HTML, error) {
	var buf bytes.Buffer
	conv := goldmark.New(goldmark.WithExtensions(extension.Table))
	if err := conv.Convert([]byte(md), &buf); err != nil {
		return "", eris.Wrap(err, "report: render markdown")
	}
	return template.HTML(buf.String()), nil
}

// ════════════════════════════════════════════════════════════════════
// Generate Report
// ════════════════════════════════════════════════════════════════════

// GenerateHTML generates a standalone HTML report.
func GenerateHTML(result *models.AnalysisResult, cfg ReportConfig) (string, error) {
	data, err := BuildReportData(result, cfg)
	if err != nil {
		return "", err
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"pct": func(v float64) string { return fmt.Sprintf("%.0f", v) },
	}).Parse(ReportTemplate)
	if err != nil {
		return "", eris.Wrap(err, "report: parse template")
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", eris.Wrap(err, "report: execute template")
	}
	return buf.String(), nil
}

// GenerateMarkdown generates the report as markdown. It is also the
// source of the PDF body.
func GenerateMarkdown(result *models.AnalysisResult, cfg ReportConfig) (string, error) {
	data, err := BuildReportData(result, cfg)
	if err != nil {
		return "", err
	}
	return renderMarkdown(data), nil
}

// ════════════════════════════════════════════════════════════════════
// Markdown renderer
// ════════════════════════════════════════════════════════════════════

func renderMarkdown(d ReportData) string {
	var sb strings.Builder

	sb.WriteString("# " + d.Title + "\n\n")
	meta := []string{"**" + d.Companies + "**"}
	if d.Industry != "" {
		meta = append(meta, "Industry: "+d.Industry)
	}
	meta = append(meta, "Report date: "+d.GeneratedAt, d.Author)
	sb.WriteString(strings.Join(meta, " · ") + "\n\n")

	if d.Comparison {
		if d.NoCommonPeriods {
			sb.WriteString("_The compared companies share no reporting period; comparison values are not available._\n\n")
		} else {
			sb.WriteString("Comparison period: **" + d.Year + "**\n\n")
		}
	}

	for _, c := range d.Categories {
		sb.WriteString("## " + c.Category + " Analysis\n\n")
		if c.Summary != "" {
			sb.WriteString(strings.TrimSpace(c.Summary) + "\n\n")
		}
		writeMarkdownTable(&sb, c.Table)
	}

	if d.Forecast != nil {
		sb.WriteString("## Forecast\n\n")
		if d.Forecast.Summary != "" {
			sb.WriteString(strings.TrimSpace(d.Forecast.Summary) + "\n\n")
		}
		sb.WriteString(fmt.Sprintf("_%s projected by linear trend; growth ratios are not projected._\n\n", pluralPeriods(d.Forecast.Projected)))
		writeMarkdownTable(&sb, d.Forecast.Table)
	}

	if h := d.Health; h != nil {
		sb.WriteString("## Financial Health\n\n")
		sb.WriteString(fmt.Sprintf("%s (%s): score **%.0f/100**, grade **%s**\n\n", h.Company, h.Year, h.Score, h.Grade))
		for _, s := range h.Strengths {
			sb.WriteString("- Strength: " + s + "\n")
		}
		for _, w := range h.Weaknesses {
			sb.WriteString("- Weakness: " + w + "\n")
		}
		if len(h.Strengths)+len(h.Weaknesses) > 0 {
			sb.WriteString("\n")
		}
	}

	if len(d.Relative) > 0 {
		sb.WriteString("## Relative Position\n\n")
		t := Table{Head: []string{"Ratio", "Value", "Peer Avg", "Percentile"}}
		for _, r := range d.Relative {
			t.Rows = append(t.Rows, []string{r.Ratio, r.Value, r.PeerAvg, r.Percentile})
		}
		writeMarkdownTable(&sb, t)
	}

	for _, s := range d.Narrative {
		sb.WriteString("## " + s.Title + "\n\n")
		sb.WriteString(strings.TrimSpace(s.Markdown) + "\n\n")
	}

	sb.WriteString("---\n\n")
	sb.WriteString("_This report is AI-assisted and for informational purposes only. It is not financial advice._\n")
	return sb.String()
}

func writeMarkdownTable(sb *strings.Builder, t Table) {
	if len(t.Head) == 0 {
		return
	}
	sb.WriteString("| " + strings.Join(escapeCells(t.Head), " | ") + " |\n")
	sep := make([]string, len(t.Head))
	for i := range sep {
		if i == 0 {
			sep[i] = "---"
		} else {
			sep[i] = "---:"
		}
	}
	sb.WriteString("| " + strings.Join(sep, " | ") + " |\n")
	for _, row := range t.Rows {
		sb.WriteString("| " + strings.Join(escapeCells(row), " | ") + " |\n")
	}
	sb.WriteString("\n")
}

func escapeCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.ReplaceAll(c, "|", `\|`)
	}
	return out
}

// ════════════════════════════════════════════════════════════════════
// Charts for report sections
// ════════════════════════════════════════════════════════════════════

// chartValue scales percentage ratios to percent for plotting.
func chartValue(name string, v float64) float64 {
	if utils.IsPercentageRatio(name) && !math.IsNaN(v) {
		return v * 100
	}
	return v
}

// CategorySeries returns one line per ratio of a category over the
// periods of a single company.
func CategorySeries(r *models.RatioResult, cat fundamental.Category) []LineChartSeries {
	var series []LineChartSeries
	for _, name := range fundamental.RatioNamesIn(cat) {
		if r == nil || !r.Has(name) {
			continue
		}
		values := make([]float64, r.Len())
		for i := range values {
			values[i] = chartValue(name, r.Value(name, i))
		}
		series = append(series, LineChartSeries{Name: name, Values: values, Color: PaletteColor(len(series))})
	}
	return series
}

// CategoryBars returns one bar per ratio and company at year, colored by
// company.
func CategoryBars(result *models.AnalysisResult, cat fundamental.Category, year string) []BarItem {
	var items []BarItem
	for _, name := range fundamental.RatioNamesIn(cat) {
		for ci, c := range result.Companies {
			if c.Ratios == nil || !c.Ratios.Has(name) {
				continue
			}
			v := fundamental.CompanyValueAt(c, name, year)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			items = append(items, BarItem{
				Label: name + " · " + c.Name,
				Value: chartValue(name, v),
				Color: PaletteColor(ci),
			})
		}
	}
	return items
}

// ForecastSeries returns the projected percentage ratios, which share a
// scale. Growth rates are left out.
func ForecastSeries(f *models.RatioResult) []LineChartSeries {
	var series []LineChartSeries
	for _, name := range f.Names {
		kind, ok := fundamental.RatioKindByName(name)
		if !utils.IsPercentageRatio(name) || (ok && kind.IsGrowth()) {
			continue
		}
		values := make([]float64, f.Len())
		for i := range values {
			values[i] = chartValue(name, f.Value(name, i))
		}
		series = append(series, LineChartSeries{Name: name, Values: values, Color: PaletteColor(len(series))})
	}
	return series
}

func categoryChart(result *models.AnalysisResult, cat fundamental.Category, year string, cfg ChartConfig) string {
	if !result.IsComparison() {
		r := result.Companies[0].Ratios
		return LineChart(CategorySeries(r, cat), r.Years, cfg)
	}
	return HorizontalBarChart(CategoryBars(result, cat, year), cfg)
}

func forecastChart(f *models.RatioResult, cfg ChartConfig) string {
	return LineChart(ForecastSeries(f), f.Years, cfg)
}

// ════════════════════════════════════════════════════════════════════
// Utility: Timestamp
// ════════════════════════════════════════════════════════════════════

// ReportTimestamp formats a report date; the zero time means now.
func ReportTimestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.Format("02 Jan 2006, 03:04 PM")
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}

func pluralPeriods(n int) string {
	if n == 1 {
		return "1 period"
	}
	return fmt.Sprintf("%d periods", n)
}
