// Package pipeline runs an analysis end to end: uploads are parsed into
// records, validated with a human in the loop for missing fields, turned
// into ratios (plus a forecast or a benchmark) and handed to the AI for
// the narrative and follow-up chat.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"github.com/seenimoa/finlens/internal/agent"
	"github.com/seenimoa/finlens/internal/analysis/fundamental"
	"github.com/seenimoa/finlens/internal/ingest"
	"github.com/seenimoa/finlens/internal/statement"
	"github.com/seenimoa/finlens/pkg/models"
)

// Defaults for the forecast step.
const (
	DefaultForecastPeriods    = 3
	DefaultMinForecastRecords = 3
)

// ErrInvalidRequest classifies problems with the request itself.
var ErrInvalidRequest = errors.New("pipeline: invalid request")

// ErrNoPeriods is returned when a company has no records left to analyze.
var ErrNoPeriods = errors.New("pipeline: company has no periods")

// FlowError carries the message shown to the user alongside the sentinel
// that classifies it (ErrInvalidRequest, ErrCancelled, ErrNoPeriods).
type FlowError struct {
	Kind    error
	Message string
}

func (e *FlowError) Error() string { return e.Message }
func (e *FlowError) Unwrap() error { return e.Kind }

func flowError(kind error, format string, args ...any) error {
	return &FlowError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AI is the text-generation collaborator. *agent.Orchestrator implements
// it; a nil AI runs the numeric analysis only.
type AI interface {
	Benchmark(ctx context.Context, industry string) (models.CompanyData, error)
	Narrative(ctx context.Context, companies []models.CompanyData, forecast *models.RatioResult) (*models.BilingualNarrative, error)
	NewChat(companies []models.CompanyData) (*agent.ChatSession, error)
}

var _ AI = (*agent.Orchestrator)(nil)

// CompanyInput is one named upload.
type CompanyInput struct {
	Name   string
	Upload ingest.Upload
}

func (c CompanyInput) hasFile() bool { return c.Upload.Name != "" }

// Request describes an analysis run.
//
// Without Benchmark every input is analyzed as a company. With Benchmark
// the first input is the primary company; a lone input is compared with
// an AI-estimated Industry benchmark, further inputs are peers averaged
// into a custom one.
type Request struct {
	Companies []CompanyInput
	Benchmark bool
	Industry  string
	Forecast  bool
	// Periods is the forecast horizon; zero uses the pipeline default.
	Periods int
}

// Pipeline runs analyses. It is safe for concurrent use.
type Pipeline struct {
	parser             *ingest.Parser
	ai                 AI
	forecastPeriods    int
	minForecastRecords int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithAI sets the narrative, benchmark and chat collaborator.
func WithAI(ai AI) Option {
	return func(p *Pipeline) { p.ai = ai }
}

// WithForecastPeriods sets the default forecast horizon.
func WithForecastPeriods(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.forecastPeriods = n
		}
	}
}

// WithMinForecastRecords sets how many periods a company needs before it
// is forecast.
func WithMinForecastRecords(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.minForecastRecords = n
		}
	}
}

// New creates a pipeline reading uploads with parser.
func New(parser *ingest.Parser, opts ...Option) *Pipeline {
	p := &Pipeline{
		parser:             parser,
		forecastPeriods:    DefaultForecastPeriods,
		minForecastRecords: DefaultMinForecastRecords,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HasAI reports whether narrative generation is available.
func (p *Pipeline) HasAI() bool { return p.ai != nil }

// ── Entry points ──

// Analyze runs req to completion, resolving validation gaps through
// resolver. The returned session holds the outcome, including the chat.
func (p *Pipeline) Analyze(ctx context.Context, req Request, resolver CorrectionResolver) (*Session, error) {
	s := NewSession()
	_, err := p.Run(ctx, s, req, resolver)
	return s, err
}

// Start validates req and runs it in the background. The session is its
// own resolver: the run suspends in StateAwaitingCorrection until Resume
// or Cancel. The run outlives ctx; use Session.Abort to stop it.
func (p *Pipeline) Start(ctx context.Context, req Request) (*Session, error) {
	if _, err := p.plan(req); err != nil {
		return nil, err
	}
	s := NewSession()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		defer cancel()
		if _, err := p.Run(runCtx, s, req, s); err != nil {
			log.Warn().Str("component", "pipeline").Str("session", s.ID).Err(err).Msg("analysis ended without result")
		}
	}()
	return s, nil
}

// Run executes req inside s and moves s to a terminal state.
func (p *Pipeline) Run(ctx context.Context, s *Session, req Request, resolver CorrectionResolver) (*models.AnalysisResult, error) {
	start := time.Now()
	result, chat, err := p.run(ctx, s, req, resolver)
	s.finish(result, chat, err)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("component", "pipeline").
		Str("session", s.ID).
		Int("companies", len(result.Companies)).
		Bool("forecast", result.Forecast != nil).
		Bool("narrative", result.Narrative != nil).
		Dur("duration", time.Since(start)).
		Msg("analysis complete")
	return result, nil
}

// ── Request validation ──

type runPlan struct {
	companies []CompanyInput
	industry  string
	mode      flowMode
	periods   int
}

type flowMode int

const (
	flowStandard flowMode = iota
	flowAIBenchmark
	flowCustomBenchmark
)

func (p *Pipeline) plan(req Request) (runPlan, error) {
	periods := req.Periods
	if periods == 0 {
		periods = p.forecastPeriods
	}
	if periods < fundamental.MinForecastPeriods || periods > fundamental.MaxForecastPeriods {
		return runPlan{}, flowError(ErrInvalidRequest, "Forecast periods must be between %d and %d.", fundamental.MinForecastPeriods, fundamental.MaxForecastPeriods)
	}

	inputs := make([]CompanyInput, len(req.Companies))
	for i, in := range req.Companies {
		in.Name = strings.TrimSpace(in.Name)
		inputs[i] = in
	}

	if !req.Benchmark {
		var companies []CompanyInput
		for _, in := range inputs {
			switch {
			case in.Name == "" && !in.hasFile():
				continue
			case in.Name == "" || !in.hasFile():
				return runPlan{}, flowError(ErrInvalidRequest, "Please provide both a name and a file for each company entry.")
			}
			companies = append(companies, in)
		}
		if len(companies) == 0 {
			return runPlan{}, flowError(ErrInvalidRequest, "Please select a file and enter a name for at least one company.")
		}
		return runPlan{companies: companies, mode: flowStandard, periods: periods}, nil
	}

	if len(inputs) == 0 {
		return runPlan{}, flowError(ErrInvalidRequest, "Please provide at least one company file for benchmark analysis.")
	}
	industry := strings.TrimSpace(req.Industry)
	if industry == "" {
		return runPlan{}, flowError(ErrInvalidRequest, "Please select an industry for the benchmark.")
	}

	primary := inputs[0]
	if len(inputs) == 1 {
		if primary.Name == "" || !primary.hasFile() {
			return runPlan{}, flowError(ErrInvalidRequest, "Please provide a name and a file for the company.")
		}
		if p.ai == nil {
			return runPlan{}, eris.Wrap(ErrAIUnavailable, "an AI benchmark needs an AI provider; add peer companies for a custom benchmark")
		}
		return runPlan{companies: inputs, industry: industry, mode: flowAIBenchmark, periods: periods}, nil
	}

	if primary.Name == "" || !primary.hasFile() {
		return runPlan{}, flowError(ErrInvalidRequest, "Please provide a name and a file for the primary company (the first entry).")
	}
	companies := []CompanyInput{primary}
	for i, peer := range inputs[1:] {
		if !peer.hasFile() {
			continue
		}
		if peer.Name == "" {
			peer.Name = fmt.Sprintf("Benchmark Co. %d", i+1)
		}
		companies = append(companies, peer)
	}
	return runPlan{companies: companies, industry: industry, mode: flowCustomBenchmark, periods: periods}, nil
}

// ── Flows ──

func (p *Pipeline) run(ctx context.Context, s *Session, req Request, resolver CorrectionResolver) (*models.AnalysisResult, *agent.ChatSession, error) {
	plan, err := p.plan(req)
	if err != nil {
		return nil, nil, err
	}
	if resolver == nil {
		resolver = rejectAll{}
	}

	log.Info().
		Str("component", "pipeline").
		Str("session", s.ID).
		Int("companies", len(plan.companies)).
		Str("industry", plan.industry).
		Msg("analysis started")

	var result *models.AnalysisResult
	switch plan.mode {
	case flowAIBenchmark:
		result, err = p.aiBenchmark(ctx, s, plan, resolver)
	case flowCustomBenchmark:
		result, err = p.customBenchmark(ctx, s, plan, resolver)
	default:
		result, err = p.standard(ctx, s, plan, req.Forecast, resolver)
	}
	if err != nil {
		return nil, nil, err
	}
	result.Industry = plan.industry

	chat, err := p.narrate(ctx, s, result)
	if err != nil {
		return nil, nil, err
	}
	return result, chat, nil
}

// standard analyzes every company in input order. Any cancellation ends
// the run. A lone company with enough history is forecast.
func (p *Pipeline) standard(ctx context.Context, s *Session, plan runPlan, forecast bool, resolver CorrectionResolver) (*models.AnalysisResult, error) {
	companies := make([]models.CompanyData, 0, len(plan.companies))
	for _, in := range plan.companies {
		records, err := p.load(ctx, s, in, resolver)
		if errors.Is(err, ErrCancelled) {
			return nil, flowError(ErrCancelled, "Analysis for %s cancelled by user.", in.Name)
		}
		if err != nil {
			return nil, err
		}
		if len(records) < 1 {
			return nil, flowError(ErrNoPeriods, "Input for %s must have at least 1 period of data for analysis.", in.Name)
		}
		companies = append(companies, p.compute(s, in.Name, records))
	}

	result := &models.AnalysisResult{Companies: companies, CreatedAt: time.Now()}
	if len(companies) > 1 {
		if _, err := fundamental.CommonYears(companies); err != nil {
			log.Warn().Str("component", "pipeline").Str("session", s.ID).Err(err).Msg("compared companies share no period")
		}
	}

	if len(companies) == 1 && forecast && len(companies[0].Records) >= p.minForecastRecords {
		projected, err := fundamental.Forecast(companies[0].Ratios, plan.periods)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: forecast")
		}
		result.Forecast = projected
		log.Debug().Str("component", "pipeline").Str("session", s.ID).Int("periods", plan.periods).Msg("forecast computed")
	}
	return result, nil
}

// aiBenchmark compares one company with an AI-estimated industry
// benchmark.
func (p *Pipeline) aiBenchmark(ctx context.Context, s *Session, plan runPlan, resolver CorrectionResolver) (*models.AnalysisResult, error) {
	in := plan.companies[0]
	records, err := p.load(ctx, s, in, resolver)
	if errors.Is(err, ErrCancelled) {
		return nil, flowError(ErrCancelled, "Analysis cancelled.")
	}
	if err != nil {
		return nil, err
	}
	if len(records) < 1 {
		return nil, flowError(ErrNoPeriods, "Input for %s must have at least 1 period of data.", in.Name)
	}
	company := p.compute(s, in.Name, records)

	s.enter(StateComputing, fundamental.AIBenchmarkName(plan.industry))
	benchmark, err := p.ai.Benchmark(ctx, plan.industry)
	if err != nil {
		return nil, err
	}
	return &models.AnalysisResult{
		Companies: []models.CompanyData{company, benchmark},
		CreatedAt: time.Now(),
	}, nil
}

// customBenchmark compares the primary company with the average of its
// peers' latest periods. A cancelled peer is left out.
func (p *Pipeline) customBenchmark(ctx context.Context, s *Session, plan runPlan, resolver CorrectionResolver) (*models.AnalysisResult, error) {
	primary := plan.companies[0]
	records, err := p.load(ctx, s, primary, resolver)
	if errors.Is(err, ErrCancelled) {
		return nil, flowError(ErrCancelled, "Analysis cancelled because primary company data is incomplete.")
	}
	if err != nil {
		return nil, err
	}
	if len(records) < 1 {
		return nil, flowError(ErrNoPeriods, "Input for %s must have at least 1 period of data.", primary.Name)
	}
	company := p.compute(s, primary.Name, records)

	var peers []*models.RatioResult
	for _, in := range plan.companies[1:] {
		records, err := p.load(ctx, s, in, resolver)
		if errors.Is(err, ErrCancelled) {
			log.Info().Str("component", "pipeline").Str("session", s.ID).Str("company", in.Name).Msg("benchmark company skipped after cancelled correction")
			continue
		}
		if err != nil {
			return nil, err
		}
		s.enter(StateComputing, in.Name)
		ratios, _ := fundamental.ComputeRatios(records)
		peers = append(peers, ratios)
	}

	benchmark := fundamental.CustomBenchmark(plan.industry, peers)
	log.Debug().Str("component", "pipeline").Str("session", s.ID).Int("peers", len(peers)).Msg("custom benchmark averaged")
	return &models.AnalysisResult{
		Companies: []models.CompanyData{company, benchmark},
		CreatedAt: time.Now(),
	}, nil
}

// ── Steps ──

// load parses and normalizes one upload, then validates it until every
// required field is present, asking resolver for each round of gaps.
func (p *Pipeline) load(ctx context.Context, s *Session, in CompanyInput, resolver CorrectionResolver) ([]models.FinancialRecord, error) {
	s.enter(StateNormalizing, in.Name)
	rows, err := p.parser.Parse(ctx, in.Upload)
	if err != nil {
		return nil, err
	}
	records := statement.Normalize(rows)

	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.enter(StateValidating, in.Name)
		v := statement.Validate(records)
		if v.AllValid {
			return records, nil
		}

		log.Info().
			Str("component", "pipeline").
			Str("session", s.ID).
			Str("company", in.Name).
			Int("periods", len(v.Issues)).
			Int("fields", v.Issues.Count()).
			Int("round", round).
			Msg("validation gaps, awaiting correction")

		corrected, err := resolver.Resolve(ctx, newCorrectionRequest(in.Name, v))
		if err != nil {
			return nil, err
		}
		records = models.CloneRecords(corrected)
		statement.SortByYear(records)
	}
}

func (p *Pipeline) compute(s *Session, name string, records []models.FinancialRecord) models.CompanyData {
	s.enter(StateComputing, name)
	ratios, hasValuation := fundamental.ComputeRatios(records)
	if hasValuation {
		s.markValuation()
	}
	return models.CompanyData{Name: name, Records: records, Ratios: ratios}
}

// narrate opens the chat and writes the narrative. Without an AI the
// result is returned as computed.
func (p *Pipeline) narrate(ctx context.Context, s *Session, result *models.AnalysisResult) (*agent.ChatSession, error) {
	if p.ai == nil {
		log.Info().Str("component", "pipeline").Str("session", s.ID).Msg("no AI configured, narrative skipped")
		return nil, nil
	}
	chat, err := p.ai.NewChat(result.Companies)
	if err != nil {
		return nil, err
	}

	s.enter(StateNarrating, "")
	narrative, err := p.ai.Narrative(ctx, result.Companies, result.Forecast)
	if err != nil {
		return nil, err
	}
	result.Narrative = narrative
	return chat, nil
}

// rejectAll cancels every correction. It stands in when a caller has no
// way to ask a human.
type rejectAll struct{}

func (rejectAll) Resolve(context.Context, CorrectionRequest) ([]models.FinancialRecord, error) {
	return nil, ErrCancelled
}
