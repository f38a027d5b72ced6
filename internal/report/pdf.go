package report

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/rotisserie/eris"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/seenimoa/finlens/internal/analysis/fundamental"
	"github.com/seenimoa/finlens/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// PDF Generator: fpdf pages, goldmark for AI markdown
// ════════════════════════════════════════════════════════════════════

// ErrFontRequired is returned for Arabic PDFs without a UTF-8 font; the
// core PDF fonts cannot encode Arabic script.
var ErrFontRequired = eris.New("report: arabic PDF output needs a UTF-8 TrueType font (report.font_path)")

const (
	pageWidth   = 210.0
	pageHeight  = 297.0
	marginX     = 15.0
	marginTop   = 22.0
	marginBot   = 18.0
	contentW    = pageWidth - 2*marginX
	bodySize    = 10.0
	lineH       = 5.0
	chartHeight = 70.0
)

// PDFFileName is the download name of a report for the given companies.
func PDFFileName(companies []string) string {
	parts := make([]string, len(companies))
	for i, c := range companies {
		parts[i] = strings.Map(func(r rune) rune {
			switch r {
			case ' ', '/', '\\', ':', '*', '?', '"', '<', '>', '|':
				return '_'
			}
			return r
		}, c)
	}
	return "AAA_Finance_Report_" + strings.Join(parts, "_") + ".pdf"
}

// GeneratePDF renders the report as an A4 PDF: a cover page, one page per
// ratio category with chart and table, then forecast, health and the AI
// analysis sections. fontPath names a UTF-8 TrueType font; without one
// the core Arial font is used and text is mapped to cp1252.
func GeneratePDF(result *models.AnalysisResult, cfg ReportConfig, fontPath string) ([]byte, error) {
	data, err := BuildReportData(result, cfg)
	if err != nil {
		return nil, err
	}
	if data.RTL && fontPath == "" {
		return nil, ErrFontRequired
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(marginX, marginTop, marginX)
	pdf.SetAutoPageBreak(true, marginBot)
	pdf.SetTitle(data.Title, true)
	pdf.SetAuthor(data.Author, true)
	pdf.AliasNbPages("")

	w := &pdfWriter{pdf: pdf, font: "Arial", size: bodySize, tr: func(s string) string { return s }}
	if fontPath != "" {
		pdf.AddUTF8Font("body", "", fontPath)
		pdf.AddUTF8Font("body", "B", fontPath)
		pdf.AddUTF8Font("body", "I", fontPath)
		pdf.AddUTF8Font("body", "BI", fontPath)
		w.font = "body"
	} else {
		w.tr = pdf.UnicodeTranslatorFromDescriptor("")
	}
	if err := pdf.Error(); err != nil {
		return nil, eris.Wrapf(err, "report: load font %s", fontPath)
	}

	kind := "Financial Analysis Report"
	if data.Comparison {
		kind = "Comparative Analysis Report"
	}
	pdf.SetHeaderFunc(func() {
		if pdf.PageNo() == 1 {
			return
		}
		pdf.SetY(8)
		pdf.SetFont(w.font, "B", 9)
		pdf.SetTextColor(37, 99, 235)
		pdf.CellFormat(contentW/2, 5, w.tr(data.Author), "", 0, "L", false, 0, "")
		pdf.SetFont(w.font, "", 9)
		pdf.SetTextColor(107, 114, 128)
		pdf.CellFormat(contentW/2, 5, w.tr(kind), "", 1, "R", false, 0, "")
		pdf.SetDrawColor(229, 231, 235)
		pdf.Line(marginX, 14, pageWidth-marginX, 14)
		pdf.SetTextColor(26, 26, 46)
		pdf.SetY(marginTop)
		w.updateFont()
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont(w.font, "", 8)
		pdf.SetTextColor(107, 114, 128)
		pdf.CellFormat(contentW/2, 5, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "L", false, 0, "")
		pdf.CellFormat(contentW/2, 5, w.tr("Generated on: "+data.GeneratedAt), "", 0, "R", false, 0, "")
		pdf.SetTextColor(26, 26, 46)
	})

	w.cover(data)

	for _, c := range data.Categories {
		w.page(c.Category + " Analysis")
		if c.Summary != "" {
			w.markdown(c.Summary, data.RTL)
		}
		if data.Comparison {
			w.barChart(CategoryBars(result, fundamental.Category(c.Category), data.Year))
		} else {
			r := result.Companies[0].Ratios
			w.lineChart(CategorySeries(r, fundamental.Category(c.Category)), r.Years)
		}
		w.table(c.Table)
	}

	if f := data.Forecast; f != nil {
		w.page("Forecast")
		if f.Summary != "" {
			w.markdown(f.Summary, data.RTL)
		}
		w.lineChart(ForecastSeries(result.Forecast), result.Forecast.Years)
		w.table(f.Table)
	}

	if h := data.Health; h != nil {
		w.page("Financial Health")
		w.healthBar(h)
		for _, s := range h.Strengths {
			w.bullet("Strength: " + s)
		}
		for _, s := range h.Weaknesses {
			w.bullet("Weakness: " + s)
		}
	}

	if len(data.Relative) > 0 {
		w.page("Relative Position")
		t := Table{Head: []string{"Ratio", "Value", "Peer Avg", "Percentile"}}
		for _, r := range data.Relative {
			t.Rows = append(t.Rows, []string{r.Ratio, r.Value, r.PeerAvg, r.Percentile})
		}
		w.table(t)
	}

	for _, s := range data.Narrative {
		w.page(s.Title)
		w.markdown(s.Markdown, data.RTL)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, eris.Wrap(err, "report: write PDF")
	}
	return buf.Bytes(), nil
}

// pdfWriter carries the document and the inline font state shared by the
// page builders and the markdown walker.
type pdfWriter struct {
	pdf  *fpdf.Fpdf
	tr   func(string) string
	font string
	size float64

	bold, italic bool
	listLevel    int
	source       []byte
}

func (w *pdfWriter) updateFont() {
	style := ""
	if w.bold {
		style += "B"
	}
	if w.italic {
		style += "I"
	}
	w.pdf.SetFont(w.font, style, w.size)
}

func (w *pdfWriter) cover(d ReportData) {
	pdf := w.pdf
	pdf.AddPage()
	pdf.SetY(80)
	pdf.SetFont(w.font, "B", 28)
	pdf.SetTextColor(37, 99, 235)
	pdf.CellFormat(contentW, 14, w.tr(d.Author), "", 1, "C", false, 0, "")
	pdf.Ln(6)
	pdf.SetFont(w.font, "B", 18)
	pdf.SetTextColor(26, 26, 46)
	pdf.MultiCell(contentW, 9, w.tr(d.Title), "", "C", false)
	pdf.Ln(4)
	pdf.SetFont(w.font, "", 13)
	pdf.MultiCell(contentW, 7, w.tr(d.Companies), "", "C", false)
	if d.Industry != "" {
		pdf.SetFont(w.font, "I", 11)
		pdf.MultiCell(contentW, 6, w.tr("Industry: "+d.Industry), "", "C", false)
	}
	pdf.Ln(10)
	pdf.SetFont(w.font, "", 10)
	pdf.SetTextColor(107, 114, 128)
	pdf.CellFormat(contentW, 6, w.tr("Report Date: "+d.GeneratedAt), "", 1, "C", false, 0, "")
	if d.Comparison {
		note := "Comparison period: " + d.Year
		if d.NoCommonPeriods {
			note = "The compared companies share no reporting period."
		}
		pdf.CellFormat(contentW, 6, w.tr(note), "", 1, "C", false, 0, "")
	}
	pdf.SetTextColor(26, 26, 46)
}

func (w *pdfWriter) page(title string) {
	w.pdf.AddPage()
	w.pdf.SetFont(w.font, "B", 16)
	w.pdf.CellFormat(contentW, 9, w.tr(title), "", 1, "L", false, 0, "")
	w.pdf.Ln(2)
	w.bold, w.italic, w.size = false, false, bodySize
	w.updateFont()
}

func (w *pdfWriter) bullet(s string) {
	w.pdf.SetX(marginX + 4)
	w.pdf.MultiCell(contentW-4, lineH, w.tr("- "+s), "", "L", false)
}

// ensureSpace starts a new page when h millimetres do not fit.
func (w *pdfWriter) ensureSpace(h float64) {
	if w.pdf.GetY()+h > pageHeight-marginBot {
		w.pdf.AddPage()
	}
}

// ── Charts ──

func (w *pdfWriter) lineChart(series []LineChartSeries, labels []string) {
	lo, hi, ok := valueRange(series)
	if !ok || len(labels) == 0 {
		return
	}
	pdf := w.pdf
	w.ensureSpace(chartHeight + 10)
	x0, y0 := marginX+14, pdf.GetY()+2
	cw, ch := contentW-14, chartHeight-22

	xAt := func(i int) float64 {
		if len(labels) == 1 {
			return x0 + cw/2
		}
		return x0 + float64(i)*cw/float64(len(labels)-1)
	}
	yAt := func(v float64) float64 { return y0 + ch - (v-lo)/(hi-lo)*ch }

	pdf.SetFont(w.font, "", 7)
	pdf.SetDrawColor(220, 220, 220)
	pdf.SetLineWidth(0.2)
	for i := 0; i <= 4; i++ {
		v := lo + (hi-lo)*float64(i)/4
		pdf.Line(x0, yAt(v), x0+cw, yAt(v))
		pdf.Text(marginX, yAt(v)+1, strconv.FormatFloat(v, 'f', 2, 64))
	}
	for i, l := range labels {
		pdf.Text(xAt(i)-pdf.GetStringWidth(l)/2, y0+ch+5, w.tr(l))
	}

	pdf.SetLineWidth(0.5)
	for si, s := range series {
		r, g, b := hexRGB(s.Color)
		pdf.SetDrawColor(r, g, b)
		pdf.SetFillColor(r, g, b)
		prev := -1
		for i, v := range s.Values {
			if i >= len(labels) || math.IsNaN(v) || math.IsInf(v, 0) {
				prev = -1
				continue
			}
			if prev >= 0 {
				pdf.Line(xAt(prev), yAt(s.Values[prev]), xAt(i), yAt(v))
			}
			pdf.Circle(xAt(i), yAt(v), 0.7, "F")
			prev = i
		}
		lx := x0 + float64(si%3)*cw/3
		ly := y0 + ch + 10 + float64(si/3)*4
		pdf.Rect(lx, ly-1.5, 4, 1.5, "F")
		pdf.Text(lx+5, ly, w.tr(s.Name))
	}
	pdf.SetLineWidth(0.2)
	pdf.SetY(y0 + ch + 12 + float64((len(series)+2)/3)*4)
	w.updateFont()
}

func (w *pdfWriter) barChart(items []BarItem) {
	if len(items) == 0 {
		return
	}
	pdf := w.pdf
	barH, gap := 4.0, 1.5
	w.ensureSpace(float64(len(items))*(barH+gap) + 6)

	labelW := 70.0
	x0 := marginX + labelW
	cw := contentW - labelW - 18
	lo, hi := 0.0, 0.0
	for _, it := range items {
		lo = math.Min(lo, it.Value)
		hi = math.Max(hi, it.Value)
	}
	span := hi - lo
	if span < 0.001 {
		span = 1
	}
	zero := x0 + (-lo/span)*cw

	pdf.SetFont(w.font, "", 7)
	y := pdf.GetY() + 2
	for _, it := range items {
		r, g, b := hexRGB(it.Color)
		pdf.SetFillColor(r, g, b)
		bw := math.Abs(it.Value) / span * cw
		bx := zero
		if it.Value < 0 {
			bx = zero - bw
		}
		pdf.Rect(bx, y, bw, barH, "F")
		pdf.Text(marginX, y+barH-1, w.fit(it.Label, labelW))
		pdf.Text(math.Max(bx+bw, zero)+1, y+barH-1, strconv.FormatFloat(it.Value, 'f', 2, 64))
		y += barH + gap
	}
	pdf.SetDrawColor(150, 150, 150)
	pdf.Line(zero, pdf.GetY()+2, zero, y)
	pdf.SetY(y + 4)
	w.updateFont()
}

func (w *pdfWriter) healthBar(h *HealthSection) {
	pdf := w.pdf
	pdf.SetFont(w.font, "B", 22)
	pdf.CellFormat(30, 12, w.tr(h.Grade), "", 0, "L", false, 0, "")
	pdf.SetFont(w.font, "", 10)
	pdf.CellFormat(contentW-30, 12, w.tr(fmt.Sprintf("%s (%s): %.0f/100", h.Company, h.Year, h.Score)), "", 1, "L", false, 0, "")

	y := pdf.GetY() + 2
	pdf.SetFillColor(229, 231, 235)
	pdf.Rect(marginX, y, contentW, 4, "F")
	r, g, b := hexRGB(scoreColor(h.Score))
	pdf.SetFillColor(r, g, b)
	pdf.Rect(marginX, y, contentW*math.Max(0, math.Min(100, h.Score))/100, 4, "F")
	pdf.SetY(y + 10)
	w.updateFont()
}

// ── Tables ──

func (w *pdfWriter) table(t Table) {
	if len(t.Head) == 0 || len(t.Rows) == 0 {
		return
	}
	pdf := w.pdf
	size := 8.0
	rowH := 6.0

	first := 62.0
	if len(t.Head) == 1 {
		first = contentW
	}
	rest := 0.0
	if n := len(t.Head) - 1; n > 0 {
		rest = (contentW - first) / float64(n)
	}
	widths := make([]float64, len(t.Head))
	for i := range widths {
		widths[i] = rest
	}
	widths[0] = first

	header := func() {
		pdf.SetFont(w.font, "B", size)
		pdf.SetFillColor(230, 230, 230)
		pdf.SetDrawColor(200, 200, 200)
		for i, h := range t.Head {
			align := "R"
			if i == 0 {
				align = "L"
			}
			pdf.CellFormat(widths[i], rowH, w.fit(h, widths[i]), "1", 0, align, true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont(w.font, "", size)
	}

	pdf.Ln(2)
	w.ensureSpace(2 * rowH)
	header()
	for _, row := range t.Rows {
		if pdf.GetY()+rowH > pageHeight-marginBot {
			pdf.AddPage()
			header()
		}
		for i := range t.Head {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			align := "R"
			if i == 0 {
				align = "L"
			}
			pdf.CellFormat(widths[i], rowH, w.fit(cell, widths[i]), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(3)
	w.updateFont()
}

// fit translates s and truncates it to the cell width.
func (w *pdfWriter) fit(s string, width float64) string {
	s = w.tr(s)
	if w.pdf.GetStringWidth(s) <= width-2 {
		return s
	}
	runes := []rune(s)
	for len(runes) > 1 && w.pdf.GetStringWidth(string(runes)+"...") > width-2 {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}

// ── Markdown ──

// markdown renders AI markdown into the current page.
func (w *pdfWriter) markdown(src string, rtl bool) {
	if rtl {
		w.pdf.RTL()
		defer w.pdf.LTR()
	}
	w.source = []byte(src)
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	doc := md.Parser().Parse(text.NewReader(w.source))
	_ = ast.Walk(doc, w.walk)
	w.bold, w.italic, w.listLevel, w.size = false, false, 0, bodySize
	w.updateFont()
	w.pdf.Ln(2)
}

func (w *pdfWriter) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	pdf := w.pdf
	switch node := n.(type) {
	case *ast.Heading:
		if entering {
			pdf.Ln(3)
			w.size = 13 - float64(node.Level)
			if w.size < bodySize {
				w.size = bodySize
			}
			w.bold = true
		} else {
			w.bold, w.size = false, bodySize
			pdf.Ln(lineH + 1)
		}
		w.updateFont()
	case *ast.Paragraph:
		if !entering && w.listLevel == 0 {
			pdf.Ln(lineH + 2)
		}
	case *ast.Text:
		if entering {
			pdf.Write(lineH, w.tr(string(node.Segment.Value(w.source))))
			switch {
			case node.HardLineBreak():
				pdf.Ln(lineH)
			case node.SoftLineBreak():
				pdf.Write(lineH, " ")
			}
		}
	case *ast.Emphasis:
		if node.Level == 2 {
			w.bold = entering
		} else {
			w.italic = entering
		}
		w.updateFont()
	case *ast.CodeSpan:
		if entering {
			pdf.Write(lineH, w.tr(string(node.Text(w.source))))
		}
		return ast.WalkSkipChildren, nil
	case *ast.List:
		if entering {
			w.listLevel++
		} else {
			w.listLevel--
			if w.listLevel == 0 {
				pdf.Ln(lineH + 1)
			}
		}
	case *ast.ListItem:
		if entering {
			if pdf.GetX() > marginX+0.5 {
				pdf.Ln(lineH)
			}
			pdf.SetX(marginX + float64(w.listLevel)*4)
			pdf.Write(lineH, "- ")
		}
	case *ast.ThematicBreak:
		if entering {
			pdf.Ln(2)
			pdf.Line(marginX, pdf.GetY(), pageWidth-marginX, pdf.GetY())
			pdf.Ln(2)
		}
	case *extast.Table:
		if entering {
			w.table(w.markdownTable(node))
		}
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

func (w *pdfWriter) markdownTable(n *extast.Table) Table {
	var t Table
	for row := n.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, string(cell.Text(w.source)))
		}
		if _, ok := row.(*extast.TableHeader); ok {
			t.Head = cells
		} else {
			t.Rows = append(t.Rows, cells)
		}
	}
	return t
}

// hexRGB parses "#rrggbb"; anything else is mid grey.
func hexRGB(s string) (int, int, int) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return 128, 128, 128
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 128, 128, 128
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)
}
