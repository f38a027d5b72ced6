package agent

import (
	"context"

	"github.com/seenimoa/finlens/internal/ingest"
	"github.com/seenimoa/finlens/internal/llm"
	"github.com/seenimoa/finlens/pkg/models"
)

// Orchestrator bundles the agents an analysis run needs behind one value.
type Orchestrator struct {
	narrator  *Narrator
	benchmark *BenchmarkAgent
	extractor *Extractor

	provider llm.LLMProvider
	opts     *llm.ChatOptions
}

// OrchestratorConfig holds configuration for creating an Orchestrator.
type OrchestratorConfig struct {
	Provider llm.LLMProvider
	// DocumentProvider reads statement PDFs. Defaults to Provider.
	DocumentProvider llm.LLMProvider
	ChatOptions      *llm.ChatOptions
	Languages        []models.Language
}

// NewOrchestrator creates the narrative, benchmark and extraction agents.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	doc := cfg.DocumentProvider
	if doc == nil {
		doc = cfg.Provider
	}
	return &Orchestrator{
		narrator:  NewNarrator(cfg.Provider, cfg.ChatOptions, cfg.Languages...),
		benchmark: NewBenchmarkAgent(cfg.Provider, cfg.ChatOptions),
		extractor: NewExtractor(doc, cfg.ChatOptions),
		provider:  cfg.Provider,
		opts:      cfg.ChatOptions,
	}
}

// NewOrchestratorFromRouter wires every agent to the router, with PDF
// extraction on the router's document provider.
func NewOrchestratorFromRouter(r *llm.Router, languages []models.Language) (*Orchestrator, error) {
	doc, err := r.DocumentProvider()
	if err != nil {
		return nil, err
	}
	return NewOrchestrator(OrchestratorConfig{
		Provider:         r,
		DocumentProvider: doc,
		Languages:        languages,
	}), nil
}

// Narrative writes the narrative of an analysis in every configured
// language.
func (o *Orchestrator) Narrative(ctx context.Context, companies []models.CompanyData, forecast *models.RatioResult) (*models.BilingualNarrative, error) {
	return o.narrator.Generate(ctx, companies, forecast)
}

// Benchmark fetches an AI-estimated industry benchmark.
func (o *Orchestrator) Benchmark(ctx context.Context, industry string) (models.CompanyData, error) {
	return o.benchmark.Fetch(ctx, industry)
}

// ExtractRecords implements ingest.PDFExtractor.
func (o *Orchestrator) ExtractRecords(ctx context.Context, doc ingest.Document) ([]models.RawRow, error) {
	return o.extractor.ExtractRecords(ctx, doc)
}

// NewChat starts a follow-up chat about the analyzed companies.
func (o *Orchestrator) NewChat(companies []models.CompanyData) (*ChatSession, error) {
	return NewChatSession(o.provider, o.opts, companies)
}

// Languages returns the narrative languages.
func (o *Orchestrator) Languages() []models.Language {
	return o.narrator.Languages()
}
