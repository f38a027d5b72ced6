package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/seenimoa/finlens/internal/config"
	"github.com/seenimoa/finlens/internal/ingest"
	"github.com/seenimoa/finlens/internal/pipeline"
	"github.com/seenimoa/finlens/internal/report"
	"github.com/seenimoa/finlens/internal/statement"
	"github.com/seenimoa/finlens/pkg/models"
)

// --- Analyze Command ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze NAME=FILE [NAME=FILE...]",
	Short: "Analyze one or more companies' financial statements",
	Long: `Analyze financial statements in CSV, XLSX or PDF form.

Each argument names a company and its file; a bare path uses the file name.
With one company the ratios are shown per period (and forecast with
--forecast); with several they are compared side by side. --benchmark
compares the first company with an AI industry benchmark, or with the
average of the other companies when more are given.

Missing values are asked for interactively; type :cancel to stop.

Examples:
  finlens analyze Acme=acme.csv --forecast --pdf
  finlens analyze Acme=acme.xlsx Beta=beta.csv --format json
  finlens analyze Acme=acme.pdf --benchmark --industry "Retail" --lang ar --html`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		sess, err := runAnalysis(ctx, cmd, args)
		if err != nil {
			return err
		}
		result, err := sess.Result()
		if err != nil {
			return err
		}
		return writeOutputs(cmd, os.Stdout, result)
	},
}

func init() {
	addAnalysisFlags(analyzeCmd)
	analyzeCmd.Flags().String("format", "table", "stdout format: table, json, yaml or none")
	analyzeCmd.Flags().String("year", "", "comparison period (default: latest common period)")
	analyzeCmd.Flags().Bool("pdf", false, "write a PDF report")
	analyzeCmd.Flags().Bool("html", false, "write an HTML report")
	analyzeCmd.Flags().Bool("md", false, "write a Markdown report")
	analyzeCmd.Flags().Bool("xlsx", false, "write the ratios as an Excel workbook")
	analyzeCmd.Flags().Bool("csv", false, "write the ratios as CSV")
	analyzeCmd.Flags().String("out", "", "directory for written files (default from config)")
	analyzeCmd.Flags().Bool("no-color", false, "disable colored output")
}

// addAnalysisFlags registers the flags shared by analyze and chat.
func addAnalysisFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("benchmark", false, "compare the first company with an industry benchmark")
	cmd.Flags().String("industry", "", "industry for the benchmark")
	cmd.Flags().Bool("forecast", false, "project ratios forward (single company)")
	cmd.Flags().Int("periods", 0, "forecast periods, 1-10 (default from config)")
	cmd.Flags().String("lang", "en", "report and narrative language: en or ar")
	cmd.Flags().Bool("no-ai", false, "skip AI narratives and benchmarks")
	cmd.Flags().Bool("non-interactive", false, "cancel instead of asking for missing values")
}

// companyArg splits NAME=FILE. A bare path is named after its file.
func companyArg(arg string) (name, path string) {
	if i := strings.Index(arg, "="); i > 0 {
		return strings.TrimSpace(arg[:i]), strings.TrimSpace(arg[i+1:])
	}
	base := filepath.Base(arg)
	return strings.TrimSuffix(base, filepath.Ext(base)), arg
}

// buildRequest reads every file and assembles the pipeline request.
func buildRequest(ctx context.Context, cmd *cobra.Command, args []string) (pipeline.Request, error) {
	names := make([]string, len(args))
	paths := make([]string, len(args))
	for i, a := range args {
		names[i], paths[i] = companyArg(a)
	}
	uploads, err := ingest.ReadFiles(ctx, paths)
	if err != nil {
		return pipeline.Request{}, err
	}

	req := pipeline.Request{}
	for i, up := range uploads {
		req.Companies = append(req.Companies, pipeline.CompanyInput{Name: names[i], Upload: up})
	}
	req.Benchmark, _ = cmd.Flags().GetBool("benchmark")
	req.Industry, _ = cmd.Flags().GetString("industry")
	req.Forecast, _ = cmd.Flags().GetBool("forecast")
	req.Periods, _ = cmd.Flags().GetInt("periods")
	return req, nil
}

func newPipeline(cmd *cobra.Command, cfg *config.Config) (*pipeline.Pipeline, error) {
	if noAI, _ := cmd.Flags().GetBool("no-ai"); noAI {
		return pipeline.NumericFromConfig(cfg), nil
	}
	return pipeline.FromConfig(cfg)
}

// runAnalysis runs the request to completion, prompting on stdin for
// missing values unless --non-interactive is set or stdin is not a
// terminal.
func runAnalysis(ctx context.Context, cmd *cobra.Command, args []string) (*pipeline.Session, error) {
	req, err := buildRequest(ctx, cmd, args)
	if err != nil {
		return nil, err
	}
	pipe, err := newPipeline(cmd, cfg)
	if err != nil {
		return nil, err
	}

	var resolver pipeline.CorrectionResolver
	if nonInteractive, _ := cmd.Flags().GetBool("non-interactive"); !nonInteractive && isTerminal(os.Stdin) {
		resolver = newPromptResolver(stdin, os.Stderr, isTerminal(os.Stderr))
	}

	fmt.Fprintf(os.Stderr, "🔍 Analyzing %d file(s)...\n", len(req.Companies))
	sess, err := pipe.Analyze(ctx, req, resolver)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// --- Correction prompts ---

// cancelCommand stops the correction prompt.
const cancelCommand = ":cancel"

// promptResolver asks for every flagged value on a line-oriented terminal.
type promptResolver struct {
	in    *bufio.Reader
	out   io.Writer
	color bool
}

var _ pipeline.CorrectionResolver = (*promptResolver)(nil)

func newPromptResolver(in io.Reader, out io.Writer, color bool) *promptResolver {
	return &promptResolver{in: bufio.NewReader(in), out: out, color: color}
}

// Resolve shows the grid of the company's records and reads one answer per
// flagged cell. Blank answers leave the cell missing, so it is asked for
// again in the next round. End of input cancels.
func (p *promptResolver) Resolve(ctx context.Context, req pipeline.CorrectionRequest) ([]models.FinancialRecord, error) {
	fmt.Fprintln(p.out)
	report.RenderCorrectionGrid(p.out, req.Company, req.Records, req.Issues, p.color)
	fmt.Fprintf(p.out, "Enter each missing value (numbers like 150000; blank skips, %s stops).\n", cancelCommand)

	corrections := make([]statement.Correction, len(req.Records))
	for i, rec := range req.Records {
		for _, field := range req.Missing[i] {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			fmt.Fprintf(p.out, "  [%d] %s · %s: ", i+1, statement.PeriodKey(rec, i), field)
			line, err := p.in.ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return nil, eris.Wrap(err, "read correction")
			}
			answer := strings.TrimSpace(line)
			if answer == cancelCommand || (errors.Is(err, io.EOF) && answer == "") {
				fmt.Fprintln(p.out)
				return nil, pipeline.ErrCancelled
			}
			if answer == "" {
				continue
			}
			if corrections[i] == nil {
				corrections[i] = statement.Correction{}
			}
			corrections[i][field] = answer
		}
	}
	return statement.ApplyCorrections(models.CloneRecords(req.Records), corrections), nil
}

// --- Output ---

// writeOutputs prints the result in the chosen format and writes the
// requested report files.
func writeOutputs(cmd *cobra.Command, w io.Writer, result *models.AnalysisResult) error {
	lang, err := languageFlag(cmd)
	if err != nil {
		return err
	}
	year, _ := cmd.Flags().GetString("year")
	format, _ := cmd.Flags().GetString("format")

	switch strings.ToLower(format) {
	case "table", "":
		if err := report.RenderRatioTables(w, result, report.TableOptions{Color: colorEnabled(cmd), Year: year}); err != nil {
			return err
		}
		if result.Narrative != nil {
			if main := result.Narrative.For(lang).Main; main != "" {
				fmt.Fprintln(w, main)
			}
		}
	case "json":
		if err := report.WriteJSON(w, result); err != nil {
			return err
		}
	case "yaml":
		if err := report.WriteYAML(w, result); err != nil {
			return err
		}
	case "none":
	default:
		return fmt.Errorf("unknown format %q (want table, json, yaml or none)", format)
	}

	dir, _ := cmd.Flags().GetString("out")
	if dir == "" {
		dir = cfg.Report.OutputDir
	}
	rcfg := report.DefaultReportConfig()
	rcfg.Language = lang
	rcfg.Year = year
	if cfg.Report.Author != "" {
		rcfg.Author = cfg.Report.Author
	}
	return writeReports(cmd, dir, result, rcfg)
}

func writeReports(cmd *cobra.Command, dir string, result *models.AnalysisResult, rcfg report.ReportConfig) error {
	var names []string
	for _, c := range result.Companies {
		if !c.Benchmark {
			names = append(names, c.Name)
		}
	}
	pdfName := report.PDFFileName(names)
	stem := strings.TrimSuffix(pdfName, ".pdf")

	type output struct {
		flag  string
		name  string
		write func(io.Writer) error
	}
	outputs := []output{
		{"pdf", pdfName, func(w io.Writer) error {
			data, err := report.GeneratePDF(result, rcfg, cfg.Report.FontPath)
			if err != nil {
				return err
			}
			_, err = w.Write(data)
			return err
		}},
		{"html", stem + ".html", func(w io.Writer) error {
			html, err := report.GenerateHTML(result, rcfg)
			if err != nil {
				return err
			}
			_, err = io.WriteString(w, html)
			return err
		}},
		{"md", stem + ".md", func(w io.Writer) error {
			md, err := report.GenerateMarkdown(result, rcfg)
			if err != nil {
				return err
			}
			_, err = io.WriteString(w, md)
			return err
		}},
		{"xlsx", report.RatiosXLSXName, func(w io.Writer) error { return report.WriteRatiosXLSX(w, result) }},
		{"csv", "ratios.csv", func(w io.Writer) error { return report.WriteRatiosCSV(w, result) }},
	}

	for _, o := range outputs {
		if on, _ := cmd.Flags().GetBool(o.flag); !on {
			continue
		}
		path := filepath.Join(dir, o.name)
		if err := writeFileWith(path, o.write); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "📄 %s written to %s\n", strings.ToUpper(o.flag), path)
	}
	return nil
}

// writeFileWith creates path (and its directory) and fills it with write.
func writeFileWith(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "create %s", dir)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "close %s", path)
}

func languageFlag(cmd *cobra.Command) (models.Language, error) {
	s, _ := cmd.Flags().GetString("lang")
	lang, ok := models.ParseLanguage(s)
	if !ok {
		return "", fmt.Errorf("unsupported language %q (want en or ar)", s)
	}
	return lang, nil
}

func colorEnabled(cmd *cobra.Command) bool {
	if off, _ := cmd.Flags().GetBool("no-color"); off {
		return false
	}
	return os.Getenv("NO_COLOR") == "" && isTerminal(os.Stdout)
}

// isTerminal reports whether f is a character device.
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
