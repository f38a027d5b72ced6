package report

// ReportTemplate is the HTML template for the analysis report. Charts are
// inline SVG, so the page is self-contained.
const ReportTemplate = `<!DOCTYPE html>
<html lang="{{.Language}}"{{if .RTL}} dir="rtl"{{end}}>
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
<style>
  :root {
    --bg: #ffffff;
    --text: #1a1a2e;
    --muted: #6b7280;
    --border: #e5e7eb;
    --accent: #2563eb;
    --green: #16a34a;
    --red: #dc2626;
    --section-bg: #f8fafc;
  }
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Noto Naskh Arabic', sans-serif;
    color: var(--text);
    background: var(--bg);
    line-height: 1.6;
    max-width: 960px;
    margin: 0 auto;
    padding: 20px;
  }
  h1, h2, h3, h4 { font-weight: 600; }
  h1 { font-size: 1.5rem; margin-bottom: 4px; }
  h2 { font-size: 1.2rem; margin: 28px 0 12px; padding-bottom: 6px; border-bottom: 2px solid var(--accent); }
  h3 { font-size: 1rem; margin: 16px 0 8px; }
  p { margin: 6px 0; }
  ul { margin: 6px 0 6px 22px; }
  [dir="rtl"] ul { margin: 6px 22px 6px 0; }
  .muted { color: var(--muted); font-size: 0.85rem; }

  /* Header */
  .header {
    display: flex;
    justify-content: space-between;
    align-items: flex-start;
    border-bottom: 3px solid var(--accent);
    padding-bottom: 12px;
    margin-bottom: 16px;
  }
  .header-left h1 { color: var(--accent); }
  .header-right { text-align: end; }
  .brand {
    display: inline-block;
    background: var(--accent);
    color: white;
    padding: 2px 12px;
    border-radius: 4px;
    font-weight: 700;
  }
  .notice {
    background: #fefce8;
    border-left: 5px solid #eab308;
    padding: 10px 14px;
    border-radius: 6px;
    margin: 12px 0;
  }

  /* Tables */
  table { width: 100%; border-collapse: collapse; margin: 8px 0 16px; font-size: 0.9rem; }
  th { background: var(--section-bg); text-align: start; padding: 8px; font-weight: 600; }
  td { padding: 8px; border-bottom: 1px solid var(--border); }
  td.num, th.num { text-align: end; font-variant-numeric: tabular-nums; }

  /* Summary and narrative */
  .summary { background: var(--section-bg); padding: 12px 16px; border-radius: 8px; margin: 8px 0 12px; }
  .narrative { margin: 8px 0; }
  .chart-container { margin: 12px 0; text-align: center; overflow-x: auto; }
  .chart-container svg { max-width: 100%; height: auto; }

  /* Health */
  .health { display: flex; gap: 24px; align-items: center; }
  .grade { font-size: 2rem; font-weight: 700; color: var(--accent); }
  .strength { color: var(--green); }
  .weakness { color: var(--red); }

  .disclaimer {
    margin-top: 32px;
    padding: 12px;
    background: var(--section-bg);
    border-radius: 6px;
    font-size: 0.75rem;
    color: var(--muted);
  }
  @media print {
    body { padding: 0; }
    h2 { page-break-before: always; }
    h2:first-of-type { page-break-before: avoid; }
  }
</style>
</head>
<body>

<div class="header">
  <div class="header-left">
    <h1>{{.Title}}</h1>
    <div><strong>{{.Companies}}</strong>{{if .Industry}} <span class="muted">· {{.Industry}}</span>{{end}}</div>
  </div>
  <div class="header-right">
    <span class="brand">{{.Author}}</span>
    <div class="muted">Report date: {{.GeneratedAt}}</div>
  </div>
</div>

{{if .Comparison}}
  {{if .NoCommonPeriods}}
  <div class="notice">The compared companies share no reporting period; comparison values are not available.</div>
  {{else}}
  <p class="muted">Comparison period: <strong>{{.Year}}</strong></p>
  {{end}}
{{end}}

{{range .Categories}}
<h2>{{.Category}} Analysis</h2>
{{if .Summary}}<div class="summary">{{.Summary}}</div>{{end}}
<div class="chart-container">{{.Chart}}</div>
{{template "table" .Table}}
{{end}}

{{with .Forecast}}
<h2>Forecast</h2>
{{if .Summary}}<div class="summary">{{.Summary}}</div>{{end}}
<p class="muted">{{.Projected}} projected period(s) by linear trend; growth ratios are not projected.</p>
<div class="chart-container">{{.Chart}}</div>
{{template "table" .Table}}
{{end}}

{{with .Health}}
<h2>Financial Health</h2>
<div class="health">
  <div class="chart-container">{{.Gauge}}</div>
  <div>
    <div class="grade">{{.Grade}}</div>
    <div class="muted">{{.Company}} · {{.Year}} · score {{pct .Score}}/100</div>
    <ul>
      {{range .Strengths}}<li class="strength">{{.}}</li>{{end}}
      {{range .Weaknesses}}<li class="weakness">{{.}}</li>{{end}}
    </ul>
  </div>
</div>
{{end}}

{{if .Relative}}
<h2>Relative Position</h2>
<table>
  <tr><th>Ratio</th><th>Category</th><th class="num">Value</th><th class="num">Peer Avg</th><th class="num">Percentile</th></tr>
  {{range .Relative}}
  <tr><td>{{.Ratio}}</td><td>{{.Category}}</td><td class="num">{{.Value}}</td><td class="num">{{.PeerAvg}}</td><td class="num">{{.Percentile}}</td></tr>
  {{end}}
</table>
{{end}}

{{range .Narrative}}
<h2>{{.Title}}</h2>
<div class="narrative">{{.HTML}}</div>
{{end}}

<div class="disclaimer">
  This report is AI-assisted and for informational purposes only. It is not financial advice.
  Ratios are computed from the uploaded statements; narrative sections are generated by a language model
  and may contain errors.
</div>

</body>
</html>

{{define "table"}}
<table>
  <tr>{{range $i, $h := .Head}}<th{{if $i}} class="num"{{end}}>{{$h}}</th>{{end}}</tr>
  {{range .Rows}}
  <tr>{{range $i, $c := .}}<td{{if $i}} class="num"{{end}}>{{$c}}</td>{{end}}</tr>
  {{end}}
</table>
{{end}}
`
