package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/seenimoa/finlens/internal/agent"
	"github.com/seenimoa/finlens/internal/config"
	"github.com/seenimoa/finlens/internal/llm"
	"github.com/seenimoa/finlens/internal/pipeline"
	"github.com/seenimoa/finlens/internal/statement"
	"github.com/seenimoa/finlens/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Arguments
// ════════════════════════════════════════════════════════════════════

func TestCompanyArg(t *testing.T) {
	tests := []struct {
		arg, name, path string
	}{
		{"Acme=acme.csv", "Acme", "acme.csv"},
		{"Acme Holdings = data/acme.xlsx", "Acme Holdings", "data/acme.xlsx"},
		{"reports/beta.pdf", "beta", "reports/beta.pdf"},
	}
	for _, tt := range tests {
		name, path := companyArg(tt.arg)
		if name != tt.name || path != tt.path {
			t.Errorf("companyArg(%q): got (%q, %q), want (%q, %q)", tt.arg, name, path, tt.name, tt.path)
		}
	}
}

// ════════════════════════════════════════════════════════════════════
// Correction Prompts
// ════════════════════════════════════════════════════════════════════

func correctionRequest() pipeline.CorrectionRequest {
	records := statement.TemplateRecords()
	records[1].SetNull(statement.Revenue)
	v := statement.Validate(records)
	return pipeline.CorrectionRequest{
		Company: "Acme",
		Records: v.Records,
		Issues:  v.Issues,
		Missing: statement.MissingFields(v.Records, v.Issues),
	}
}

func TestPromptResolverAppliesAnswers(t *testing.T) {
	var out bytes.Buffer
	p := newPromptResolver(strings.NewReader("150000 SAR\n"), &out, false)

	records, err := p.Resolve(context.Background(), correctionRequest())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got, _ := records[1].Get(statement.Revenue); got != 150000 {
		t.Errorf("revenue: got %v, want 150000", got)
	}
	if !strings.Contains(out.String(), "Acme: 1 value(s) need attention") {
		t.Errorf("grid heading missing from output:\n%s", out.String())
	}
}

func TestPromptResolverBlankKeepsMissing(t *testing.T) {
	p := newPromptResolver(strings.NewReader("\n"), &bytes.Buffer{}, false)
	records, err := p.Resolve(context.Background(), correctionRequest())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if v := statement.Validate(records); v.AllValid {
		t.Error("a blank answer should leave the field missing")
	}
}

func TestPromptResolverCancel(t *testing.T) {
	for _, input := range []string{":cancel\n", ""} {
		p := newPromptResolver(strings.NewReader(input), &bytes.Buffer{}, false)
		if _, err := p.Resolve(context.Background(), correctionRequest()); !errors.Is(err, pipeline.ErrCancelled) {
			t.Errorf("input %q: got %v, want ErrCancelled", input, err)
		}
	}
}

// ════════════════════════════════════════════════════════════════════
// Chat REPL
// ════════════════════════════════════════════════════════════════════

type echoProvider struct{}

func (echoProvider) Name() string { return "echo" }

func (echoProvider) Chat(context.Context, []llm.Message, *llm.ChatOptions) (*llm.Response, error) {
	return &llm.Response{Content: "ok"}, nil
}

func (echoProvider) ChatStream(_ context.Context, messages []llm.Message, _ *llm.ChatOptions) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 2)
	ch <- llm.StreamChunk{Content: "echo: " + messages[len(messages)-1].Content}
	ch <- llm.StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

func (echoProvider) Models() []string { return nil }

func (echoProvider) Ping(context.Context) error { return nil }

func TestChatREPL(t *testing.T) {
	chat, err := agent.NewChatSession(echoProvider{}, nil, []models.CompanyData{{Name: "Acme"}})
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	in := strings.NewReader("How is liquidity?\n\nexit\nignored\n")
	if err := chatREPL(context.Background(), in, &out, chat); err != nil {
		t.Fatalf("chatREPL: %v", err)
	}
	if !strings.Contains(out.String(), "ai> echo: How is liquidity?") {
		t.Errorf("reply missing from output:\n%s", out.String())
	}
	if n := len(chat.History()); n != 2 {
		t.Errorf("history: got %d messages, want 2", n)
	}
}

// ════════════════════════════════════════════════════════════════════
// Output
// ════════════════════════════════════════════════════════════════════

func analyzeFlags(t *testing.T, set map[string]string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "analyze"}
	addAnalysisFlags(cmd)
	cmd.Flags().String("format", "table", "")
	cmd.Flags().String("year", "", "")
	for _, f := range []string{"pdf", "html", "md", "xlsx", "csv", "no-color"} {
		cmd.Flags().Bool(f, false, "")
	}
	cmd.Flags().String("out", "", "")
	for k, v := range set {
		if err := cmd.Flags().Set(k, v); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	return cmd
}

func analyzeTemplate(t *testing.T) *models.AnalysisResult {
	t.Helper()
	cfg = config.Default()
	var buf bytes.Buffer
	header, rows := statement.TemplateTable()
	buf.WriteString(strings.Join(header, ",") + "\n")
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = models.FormatNumber(v)
		}
		buf.WriteString(strings.Join(cells, ",") + "\n")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "acme.csv")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := analyzeFlags(t, map[string]string{"no-ai": "true", "non-interactive": "true"})
	sess, err := runAnalysis(context.Background(), cmd, []string{"Acme=" + path})
	if err != nil {
		t.Fatalf("runAnalysis: %v", err)
	}
	result, err := sess.Result()
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	return result
}

func TestWriteOutputsFormats(t *testing.T) {
	result := analyzeTemplate(t)

	tests := []struct {
		format string
		want   string
	}{
		{"table", "PROFITABILITY"},
		{"json", `"companies"`},
		{"yaml", "companies:"},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		cmd := analyzeFlags(t, map[string]string{"format": tt.format, "out": t.TempDir()})
		if err := writeOutputs(cmd, &out, result); err != nil {
			t.Fatalf("%s: %v", tt.format, err)
		}
		if !strings.Contains(out.String(), tt.want) {
			t.Errorf("%s output should contain %q", tt.format, tt.want)
		}
	}

	cmd := analyzeFlags(t, map[string]string{"format": "xml"})
	if err := writeOutputs(cmd, &bytes.Buffer{}, result); err == nil {
		t.Error("unknown format should fail")
	}
	cmd = analyzeFlags(t, map[string]string{"lang": "fr"})
	if err := writeOutputs(cmd, &bytes.Buffer{}, result); err == nil {
		t.Error("unknown language should fail")
	}
}

func TestWriteOutputsFiles(t *testing.T) {
	result := analyzeTemplate(t)
	dir := t.TempDir()
	cmd := analyzeFlags(t, map[string]string{
		"format": "none", "out": dir,
		"pdf": "true", "html": "true", "md": "true", "xlsx": "true", "csv": "true",
	})
	if err := writeOutputs(cmd, &bytes.Buffer{}, result); err != nil {
		t.Fatalf("writeOutputs: %v", err)
	}
	for _, name := range []string{
		"AAA_Finance_Report_Acme.pdf",
		"AAA_Finance_Report_Acme.html",
		"AAA_Finance_Report_Acme.md",
		"ratios.xlsx",
		"ratios.csv",
	} {
		fi, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if fi.Size() == 0 {
			t.Errorf("%s is empty", name)
		}
	}
}

func TestRunAnalysisMissingFile(t *testing.T) {
	cfg = config.Default()
	cmd := analyzeFlags(t, map[string]string{"no-ai": "true", "non-interactive": "true"})
	if _, err := runAnalysis(context.Background(), cmd, []string{"Acme=" + filepath.Join(t.TempDir(), "nope.csv")}); err == nil {
		t.Error("want an error for a missing file")
	}
}
