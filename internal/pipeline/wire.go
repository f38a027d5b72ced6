package pipeline

import (
	"errors"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"github.com/seenimoa/finlens/internal/agent"
	"github.com/seenimoa/finlens/internal/config"
	"github.com/seenimoa/finlens/internal/ingest"
	"github.com/seenimoa/finlens/internal/llm"
	"github.com/seenimoa/finlens/pkg/models"
)

// Languages converts configured language names, dropping unknown ones.
// An empty result falls back to English.
func Languages(names []string) []models.Language {
	var out []models.Language
	seen := make(map[models.Language]bool)
	for _, n := range names {
		if l, ok := models.ParseLanguage(n); ok && !seen[l] {
			out = append(out, l)
			seen[l] = true
		}
	}
	if len(out) == 0 {
		out = []models.Language{models.English}
	}
	return out
}

// FromConfig builds a pipeline from cfg. Without usable LLM credentials the
// pipeline runs the numeric analysis only and PDF uploads are refused.
func FromConfig(cfg *config.Config) (*Pipeline, error) {
	opts, parserOpts := baseOptions(cfg)

	router, err := llm.NewRouterFromConfig(cfg)
	switch {
	case errors.Is(err, llm.ErrNoProviders), errors.Is(err, llm.ErrNoAPIKey):
		log.Warn().Str("component", "pipeline").Err(err).Msg("no AI provider; narratives, benchmarks and PDF uploads are disabled")
	case err != nil:
		return nil, eris.Wrap(err, "pipeline: LLM setup")
	default:
		orch, err := agent.NewOrchestratorFromRouter(router, Languages(cfg.Analysis.Languages))
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: AI setup")
		}
		opts = append(opts, WithAI(orch))
		parserOpts = append(parserOpts, ingest.WithPDFExtractor(orch))
	}

	return New(ingest.NewParser(parserOpts...), opts...), nil
}

// NumericFromConfig builds a pipeline that never calls an LLM.
func NumericFromConfig(cfg *config.Config) *Pipeline {
	opts, parserOpts := baseOptions(cfg)
	return New(ingest.NewParser(parserOpts...), opts...)
}

func baseOptions(cfg *config.Config) ([]Option, []ingest.Option) {
	return []Option{
			WithForecastPeriods(cfg.Analysis.ForecastPeriods),
			WithMinForecastRecords(cfg.Analysis.ForecastMinPeriods),
		}, []ingest.Option{
			ingest.WithMaxBytes(int64(cfg.Analysis.MaxUploadMB) << 20),
		}
}
