package pipeline

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/seenimoa/finlens/internal/agent"
	"github.com/seenimoa/finlens/internal/analysis/fundamental"
	"github.com/seenimoa/finlens/internal/ingest"
	"github.com/seenimoa/finlens/internal/statement"
	"github.com/seenimoa/finlens/pkg/models"
)

// ── Fixtures ──

type cell struct {
	period int
	column string
}

// statementCSV renders the first periods rows of the template dataset,
// with cells overridden by set ("" blanks a cell).
func statementCSV(name string, periods int, set map[cell]string) ingest.Upload {
	header, rows := statement.TemplateTable()
	var b strings.Builder
	b.WriteString(strings.Join(header, ",") + "\n")
	for i, row := range rows[:periods] {
		cells := make([]string, len(header))
		for j, v := range row {
			cells[j] = models.FormatNumber(v)
			if s, ok := set[cell{i, header[j]}]; ok {
				cells[j] = s
			}
		}
		b.WriteString(strings.Join(cells, ",") + "\n")
	}
	return ingest.Upload{Name: name, Data: []byte(b.String())}
}

type fakeAI struct {
	mu           sync.Mutex
	industries   []string
	narrated     [][]models.CompanyData
	forecasts    []*models.RatioResult
	benchmarkErr error
	narrativeErr error
}

func (f *fakeAI) Benchmark(_ context.Context, industry string) (models.CompanyData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.industries = append(f.industries, industry)
	if f.benchmarkErr != nil {
		return models.CompanyData{}, f.benchmarkErr
	}
	c, _ := fundamental.BenchmarkFromValues(fundamental.AIBenchmarkName(industry), map[string]float64{"Current Ratio": 1.5})
	return c, nil
}

func (f *fakeAI) Narrative(_ context.Context, companies []models.CompanyData, forecast *models.RatioResult) (*models.BilingualNarrative, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.narrated = append(f.narrated, companies)
	f.forecasts = append(f.forecasts, forecast)
	if f.narrativeErr != nil {
		return nil, f.narrativeErr
	}
	return &models.BilingualNarrative{
		English: models.Narrative{Main: "analysis"},
		Arabic:  models.Narrative{Main: "تحليل"},
	}, nil
}

func (f *fakeAI) NewChat(companies []models.CompanyData) (*agent.ChatSession, error) {
	return agent.NewChatSession(nil, nil, companies)
}

// scripted answers correction requests in order and records them.
type scripted struct {
	mu       sync.Mutex
	requests []CorrectionRequest
	answers  []func(CorrectionRequest) ([]models.FinancialRecord, error)
}

func (s *scripted) Resolve(_ context.Context, req CorrectionRequest) ([]models.FinancialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.requests)
	s.requests = append(s.requests, req)
	if n >= len(s.answers) {
		return nil, ErrCancelled
	}
	return s.answers[n](req)
}

func fill(corrections ...statement.Correction) func(CorrectionRequest) ([]models.FinancialRecord, error) {
	return func(req CorrectionRequest) ([]models.FinancialRecord, error) {
		return statement.ApplyCorrections(req.Records, corrections), nil
	}
}

func cancel(CorrectionRequest) ([]models.FinancialRecord, error) { return nil, ErrCancelled }

func newPipeline(ai AI) *Pipeline {
	opts := []Option{}
	if ai != nil {
		opts = append(opts, WithAI(ai))
	}
	return New(ingest.NewParser(), opts...)
}

func waitForState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state: got %s, want %s", s.State(), want)
}

// ════════════════════════════════════════════════════════════════════
// Standard flow
// ════════════════════════════════════════════════════════════════════

func TestStandardSingleCompanyWithForecast(t *testing.T) {
	p := newPipeline(nil)
	s, err := p.Analyze(context.Background(), Request{
		Companies: []CompanyInput{{Name: "Acme", Upload: statementCSV("acme.csv", 3, nil)}},
		Forecast:  true,
	}, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if s.State() != StateReady {
		t.Errorf("state: got %s, want %s", s.State(), StateReady)
	}
	res, err := s.Result()
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if len(res.Companies) != 1 || res.Companies[0].Name != "Acme" {
		t.Fatalf("companies: got %+v", res.Companies)
	}
	if got := res.Companies[0].Ratios.Value("Current Ratio", 2); math.Abs(got-6.24) > 1e-9 {
		t.Errorf("Current Ratio[2]: got %v, want 6.24", got)
	}
	if res.Forecast == nil {
		t.Fatal("expected a forecast")
	}
	if got := res.Forecast.Len(); got != 6 {
		t.Errorf("forecast periods: got %d, want 6", got)
	}
	if got := res.Forecast.Years[3]; got != "2024 (F)" {
		t.Errorf("first forecast label: got %q, want 2024 (F)", got)
	}
	if !s.HasValuationData() {
		t.Error("template data carries valuation fields")
	}
	if res.Narrative != nil || s.Chat() != nil {
		t.Error("no AI: narrative and chat should be absent")
	}
}

func TestStandardForecastNeedsHistory(t *testing.T) {
	p := newPipeline(nil)
	s, err := p.Analyze(context.Background(), Request{
		Companies: []CompanyInput{{Name: "Acme", Upload: statementCSV("acme.csv", 2, nil)}},
		Forecast:  true,
	}, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	res, _ := s.Result()
	if res.Forecast != nil {
		t.Error("two periods should not be forecast")
	}
}

func TestStandardComparison(t *testing.T) {
	ai := &fakeAI{}
	p := newPipeline(ai)
	s, err := p.Analyze(context.Background(), Request{
		Companies: []CompanyInput{
			{Name: "Acme", Upload: statementCSV("a.csv", 3, nil)},
			{Name: "", Upload: ingest.Upload{}},
			{Name: "Globex", Upload: statementCSV("b.csv", 3, nil)},
		},
		Forecast: true,
	}, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	res, _ := s.Result()
	if len(res.Companies) != 2 || res.Companies[0].Name != "Acme" || res.Companies[1].Name != "Globex" {
		t.Fatalf("companies: got %d", len(res.Companies))
	}
	if res.Forecast != nil {
		t.Error("comparisons are never forecast")
	}
	if res.Narrative == nil || res.Narrative.Arabic.Main != "تحليل" {
		t.Error("expected the bilingual narrative")
	}
	if s.Chat() == nil {
		t.Error("expected a chat session")
	}
	if len(ai.forecasts) != 1 || ai.forecasts[0] != nil {
		t.Error("narrative should be requested once without forecast")
	}
}

func TestCorrectionLoopRevalidates(t *testing.T) {
	upload := statementCSV("acme.csv", 3, map[cell]string{
		{1, statement.Revenue}: "",
		{2, statement.Cash}:    "n/a",
	})
	resolver := &scripted{answers: []func(CorrectionRequest) ([]models.FinancialRecord, error){
		fill(nil, statement.Correction{statement.Revenue: "550000"}),
		fill(nil, nil, statement.Correction{statement.Cash: "150000"}),
	}}

	s, err := newPipeline(nil).Analyze(context.Background(), Request{
		Companies: []CompanyInput{{Name: "Acme", Upload: upload}},
	}, resolver)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(resolver.requests) != 2 {
		t.Fatalf("correction rounds: got %d, want 2", len(resolver.requests))
	}

	first := resolver.requests[0]
	if first.Company != "Acme" {
		t.Errorf("company: got %q", first.Company)
	}
	if !first.Issues.Has("2022", statement.Revenue) || !first.Issues.Has("2023", statement.Cash) {
		t.Errorf("first issues: got %v", first.Issues)
	}
	if got := first.Missing[1]; len(got) != 1 || got[0] != statement.Revenue {
		t.Errorf("missing[1]: got %v", got)
	}
	second := resolver.requests[1]
	if len(second.Issues) != 1 || !second.Issues.Has("2023", statement.Cash) {
		t.Errorf("second issues: got %v", second.Issues)
	}

	res, _ := s.Result()
	if got := res.Companies[0].Ratios.Value("Revenue Growth", 1); math.Abs(got-0.1) > 1e-9 {
		t.Errorf("Revenue Growth[1]: got %v, want 0.1", got)
	}
}

func TestStandardCancellation(t *testing.T) {
	upload := statementCSV("acme.csv", 3, map[cell]string{{0, statement.EBIT}: ""})
	s, err := newPipeline(nil).Analyze(context.Background(), Request{
		Companies: []CompanyInput{
			{Name: "Good", Upload: statementCSV("good.csv", 3, nil)},
			{Name: "Acme", Upload: upload},
		},
	}, &scripted{})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("error: got %v, want ErrCancelled", err)
	}
	if got := err.Error(); got != "Analysis for Acme cancelled by user." {
		t.Errorf("message: got %q", got)
	}
	if s.State() != StateCancelled {
		t.Errorf("state: got %s, want %s", s.State(), StateCancelled)
	}
	if _, err := s.Result(); err == nil {
		t.Error("cancelled session should not expose a result")
	}
}

func TestNoPeriods(t *testing.T) {
	header, _ := statement.TemplateTable()
	upload := ingest.Upload{Name: "empty.csv", Data: []byte(strings.Join(header, ",") + "\n")}
	_, err := newPipeline(nil).Analyze(context.Background(), Request{
		Companies: []CompanyInput{{Name: "Acme", Upload: upload}},
	}, nil)
	if !errors.Is(err, ErrNoPeriods) {
		t.Fatalf("error: got %v, want ErrNoPeriods", err)
	}
	if got := err.Error(); got != "Input for Acme must have at least 1 period of data for analysis." {
		t.Errorf("message: got %q", got)
	}
}

func TestInputShapeErrorFailsRun(t *testing.T) {
	s, err := newPipeline(nil).Analyze(context.Background(), Request{
		Companies: []CompanyInput{{Name: "Acme", Upload: ingest.Upload{Name: "acme.txt", Data: []byte("x")}}},
	}, nil)
	if !errors.Is(err, ingest.ErrUnsupportedFileType) {
		t.Fatalf("error: got %v", err)
	}
	if s.State() != StateFailed {
		t.Errorf("state: got %s, want %s", s.State(), StateFailed)
	}
}

func TestNarrativeFailureFailsRun(t *testing.T) {
	ai := &fakeAI{narrativeErr: errors.New("quota")}
	s, err := newPipeline(ai).Analyze(context.Background(), Request{
		Companies: []CompanyInput{{Name: "Acme", Upload: statementCSV("acme.csv", 3, nil)}},
	}, nil)
	if err == nil || s.State() != StateFailed {
		t.Fatalf("got err %v, state %s", err, s.State())
	}
	if s.Chat() != nil {
		t.Error("failed run should not expose a chat")
	}
}

// ════════════════════════════════════════════════════════════════════
// Request validation
// ════════════════════════════════════════════════════════════════════

func TestRequestValidation(t *testing.T) {
	file := statementCSV("a.csv", 1, nil)
	tests := []struct {
		name string
		req  Request
		want string
	}{
		{"nothing", Request{}, "Please select a file and enter a name for at least one company."},
		{"name only", Request{Companies: []CompanyInput{{Name: "Acme"}}}, "Please provide both a name and a file for each company entry."},
		{"file only", Request{Companies: []CompanyInput{{Upload: file}}}, "Please provide both a name and a file for each company entry."},
		{"bad periods", Request{Companies: []CompanyInput{{Name: "A", Upload: file}}, Periods: 11}, "Forecast periods must be between 1 and 10."},
		{"benchmark empty", Request{Benchmark: true, Industry: "Retail"}, "Please provide at least one company file for benchmark analysis."},
		{"benchmark no industry", Request{Benchmark: true, Companies: []CompanyInput{{Name: "A", Upload: file}}}, "Please select an industry for the benchmark."},
		{"benchmark single", Request{Benchmark: true, Industry: "Retail", Companies: []CompanyInput{{Upload: file}}}, "Please provide a name and a file for the company."},
		{"benchmark primary", Request{Benchmark: true, Industry: "Retail", Companies: []CompanyInput{{Name: "A"}, {Upload: file}}}, "Please provide a name and a file for the primary company (the first entry)."},
	}
	p := newPipeline(&fakeAI{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Start(context.Background(), tt.req)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("error: got %v, want ErrInvalidRequest", err)
			}
			if err.Error() != tt.want {
				t.Errorf("message: got %q, want %q", err.Error(), tt.want)
			}
		})
	}
}

func TestPeerNaming(t *testing.T) {
	p := newPipeline(nil)
	plan, err := p.plan(Request{
		Benchmark: true,
		Industry:  " Retail ",
		Companies: []CompanyInput{
			{Name: "Acme", Upload: statementCSV("a.csv", 1, nil)},
			{Name: "", Upload: ingest.Upload{}},
			{Name: "", Upload: statementCSV("c.csv", 1, nil)},
			{Name: "Initech", Upload: statementCSV("d.csv", 1, nil)},
		},
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.mode != flowCustomBenchmark || plan.industry != "Retail" {
		t.Errorf("plan: got mode %d industry %q", plan.mode, plan.industry)
	}
	var names []string
	for _, c := range plan.companies {
		names = append(names, c.Name)
	}
	if got := strings.Join(names, "|"); got != "Acme|Benchmark Co. 2|Initech" {
		t.Errorf("names: got %q", got)
	}
}

// ════════════════════════════════════════════════════════════════════
// Benchmark flows
// ════════════════════════════════════════════════════════════════════

func TestAIBenchmarkFlow(t *testing.T) {
	ai := &fakeAI{}
	s, err := newPipeline(ai).Analyze(context.Background(), Request{
		Benchmark: true,
		Industry:  "Retail",
		Forecast:  true,
		Companies: []CompanyInput{{Name: "Acme", Upload: statementCSV("a.csv", 3, nil)}},
	}, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	res, _ := s.Result()
	if len(res.Companies) != 2 {
		t.Fatalf("companies: got %d, want 2", len(res.Companies))
	}
	bench := res.Companies[1]
	if bench.Name != "Retail Benchmark" || !bench.Benchmark {
		t.Errorf("benchmark: got %q (benchmark=%v)", bench.Name, bench.Benchmark)
	}
	if got := bench.Ratios.Value("Current Ratio", 0); got != 1.5 {
		t.Errorf("benchmark Current Ratio: got %v, want 1.5", got)
	}
	if res.Forecast != nil {
		t.Error("benchmark flows never forecast")
	}
	if res.Industry != "Retail" {
		t.Errorf("industry: got %q", res.Industry)
	}
	if len(ai.industries) != 1 || ai.industries[0] != "Retail" {
		t.Errorf("benchmark calls: got %v", ai.industries)
	}
}

func TestAIBenchmarkCancelAndFailure(t *testing.T) {
	upload := statementCSV("a.csv", 3, map[cell]string{{2, statement.COGS}: ""})
	_, err := newPipeline(&fakeAI{}).Analyze(context.Background(), Request{
		Benchmark: true,
		Industry:  "Retail",
		Companies: []CompanyInput{{Name: "Acme", Upload: upload}},
	}, &scripted{})
	if !errors.Is(err, ErrCancelled) || err.Error() != "Analysis cancelled." {
		t.Errorf("cancel: got %v", err)
	}

	boom := errors.New("benchmark down")
	_, err = newPipeline(&fakeAI{benchmarkErr: boom}).Analyze(context.Background(), Request{
		Benchmark: true,
		Industry:  "Retail",
		Companies: []CompanyInput{{Name: "Acme", Upload: statementCSV("a.csv", 3, nil)}},
	}, nil)
	if !errors.Is(err, boom) {
		t.Errorf("failure: got %v", err)
	}
}

func TestAIBenchmarkNeedsAI(t *testing.T) {
	_, err := newPipeline(nil).Start(context.Background(), Request{
		Benchmark: true,
		Industry:  "Retail",
		Companies: []CompanyInput{{Name: "Acme", Upload: statementCSV("a.csv", 3, nil)}},
	})
	if !errors.Is(err, ErrAIUnavailable) {
		t.Errorf("error: got %v, want ErrAIUnavailable", err)
	}
}

func TestCustomBenchmarkFlow(t *testing.T) {
	// Last-period Current Ratio: 2.0, 3.0; the cancelled peer would add 1.0.
	peerA := statementCSV("a.csv", 3, map[cell]string{{2, statement.CurrentAssets}: "100000"})
	peerB := statementCSV("b.csv", 3, map[cell]string{{2, statement.CurrentAssets}: "150000"})
	skipped := statementCSV("c.csv", 3, map[cell]string{
		{2, statement.CurrentAssets}: "50000",
		{0, statement.Tax}:           "",
	})

	resolver := &scripted{answers: []func(CorrectionRequest) ([]models.FinancialRecord, error){cancel}}
	s, err := newPipeline(nil).Analyze(context.Background(), Request{
		Benchmark: true,
		Industry:  "Retail",
		Companies: []CompanyInput{
			{Name: "Acme", Upload: statementCSV("acme.csv", 3, nil)},
			{Name: "A", Upload: peerA},
			{Name: "C", Upload: skipped},
			{Name: "B", Upload: peerB},
		},
	}, resolver)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(resolver.requests) != 1 || resolver.requests[0].Company != "C" {
		t.Fatalf("corrections: got %+v", resolver.requests)
	}

	res, _ := s.Result()
	if len(res.Companies) != 2 {
		t.Fatalf("companies: got %d", len(res.Companies))
	}
	bench := res.Companies[1]
	if bench.Name != "Retail (Custom Benchmark)" {
		t.Errorf("name: got %q", bench.Name)
	}
	if got := bench.Ratios.Value("Current Ratio", 0); math.Abs(got-2.5) > 1e-9 {
		t.Errorf("Current Ratio: got %v, want 2.5", got)
	}
	if len(bench.Records) != 0 || bench.Ratios.Years[0] != models.BenchmarkYear {
		t.Errorf("benchmark shape: records %d, years %v", len(bench.Records), bench.Ratios.Years)
	}
}

func TestCustomBenchmarkPrimaryCancel(t *testing.T) {
	primary := statementCSV("acme.csv", 3, map[cell]string{{0, statement.Equity}: ""})
	_, err := newPipeline(nil).Analyze(context.Background(), Request{
		Benchmark: true,
		Industry:  "Retail",
		Companies: []CompanyInput{
			{Name: "Acme", Upload: primary},
			{Name: "A", Upload: statementCSV("a.csv", 3, nil)},
		},
	}, &scripted{})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("error: got %v", err)
	}
	if got := err.Error(); got != "Analysis cancelled because primary company data is incomplete." {
		t.Errorf("message: got %q", got)
	}
}

// ════════════════════════════════════════════════════════════════════
// Asynchronous sessions
// ════════════════════════════════════════════════════════════════════

func TestStartSuspendsAndResumes(t *testing.T) {
	upload := statementCSV("acme.csv", 3, map[cell]string{{1, statement.Inventory}: ""})
	s, err := newPipeline(&fakeAI{}).Start(context.Background(), Request{
		Companies: []CompanyInput{{Name: "Acme", Upload: upload}},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForState(t, s, StateAwaitingCorrection)

	snap := s.Snapshot()
	if snap.Correction == nil || snap.Company != "Acme" {
		t.Fatalf("snapshot: got %+v", snap)
	}
	req, ok := s.Pending()
	if !ok || !req.Issues.Has("2022", statement.Inventory) {
		t.Fatalf("pending: got %+v", req)
	}

	if err := s.Resume(statement.ApplyCorrections(req.Records, []statement.Correction{nil, {statement.Inventory: "85000"}})); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	ctx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()
	res, err := s.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if res.Narrative == nil {
		t.Error("expected a narrative")
	}
	if snap := s.Snapshot(); snap.State != StateReady || snap.Correction != nil {
		t.Errorf("final snapshot: got state %s correction %v", snap.State, snap.Correction)
	}
	if err := s.Resume(nil); !errors.Is(err, ErrNotAwaiting) {
		t.Errorf("Resume after ready: got %v, want ErrNotAwaiting", err)
	}
}

func TestStartCancel(t *testing.T) {
	upload := statementCSV("acme.csv", 3, map[cell]string{{1, statement.Inventory}: ""})
	s, err := newPipeline(nil).Start(context.Background(), Request{
		Companies: []CompanyInput{{Name: "Acme", Upload: upload}},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForState(t, s, StateAwaitingCorrection)
	if err := s.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	<-s.Done()
	snap := s.Snapshot()
	if snap.State != StateCancelled || snap.Error != "Analysis for Acme cancelled by user." {
		t.Errorf("snapshot: got %s %q", snap.State, snap.Error)
	}
}

func TestStartAbort(t *testing.T) {
	upload := statementCSV("acme.csv", 3, map[cell]string{{1, statement.Inventory}: ""})
	s, err := newPipeline(nil).Start(context.Background(), Request{
		Companies: []CompanyInput{{Name: "Acme", Upload: upload}},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForState(t, s, StateAwaitingCorrection)
	s.Abort()
	<-s.Done()
	if got := s.State(); got != StateCancelled {
		t.Errorf("state: got %s, want %s", got, StateCancelled)
	}
}

func TestStateTerminal(t *testing.T) {
	for _, st := range []State{StateReady, StateCancelled, StateFailed} {
		if !st.Terminal() {
			t.Errorf("%s should be terminal", st)
		}
	}
	for _, st := range []State{StateNormalizing, StateValidating, StateAwaitingCorrection, StateComputing, StateNarrating} {
		if st.Terminal() {
			t.Errorf("%s should not be terminal", st)
		}
	}
}
