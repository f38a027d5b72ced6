package agent

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"github.com/seenimoa/finlens/internal/agent/prompts"
	"github.com/seenimoa/finlens/internal/analysis/fundamental"
	"github.com/seenimoa/finlens/internal/llm"
	"github.com/seenimoa/finlens/pkg/models"
	"github.com/seenimoa/finlens/pkg/utils"
)

// BenchmarkAgent estimates industry benchmark ratios with the AI model.
type BenchmarkAgent struct {
	*BaseAgent
}

// NewBenchmarkAgent creates a benchmark agent.
func NewBenchmarkAgent(provider llm.LLMProvider, opts *llm.ChatOptions) *BenchmarkAgent {
	return &BenchmarkAgent{BaseAgent: NewBaseAgent(prompts.AgentBenchmark, provider, opts)}
}

// Fetch asks for the ratios of a typical healthy company in industry and
// returns them as a one-period benchmark named "{industry} Benchmark".
// Ratios the model leaves out, or returns as non-numbers, are 0.
func (b *BenchmarkAgent) Fetch(ctx context.Context, industry string) (models.CompanyData, error) {
	failure := fmt.Sprintf("Failed to fetch AI benchmark data for the %s industry. Error: ", industry)

	names := fundamental.RatioNames()
	reply, err := b.ask(ctx, []llm.Message{llm.UserMessage(prompts.Benchmark(industry, names))}, true)
	if err != nil {
		return models.CompanyData{}, aiError(failure, err)
	}

	var raw map[string]any
	if err := utils.ParseLenientJSON(reply, &raw); err != nil {
		return models.CompanyData{}, aiError(failure, eris.Wrap(err, "decode benchmark object"))
	}

	values := make(map[string]float64, len(raw))
	for name, v := range raw {
		if f, ok := utils.ToFloat(v); ok {
			values[name] = f
		}
	}

	company, defaulted := fundamental.BenchmarkFromValues(fundamental.AIBenchmarkName(industry), values)
	if len(defaulted) > 0 {
		log.Warn().
			Str("component", "agent").
			Str("industry", industry).
			Strs("ratios", defaulted).
			Msg("benchmark ratios missing from AI response, defaulted to 0")
	}
	log.Info().Str("component", "agent").Str("industry", industry).Int("ratios", len(values)).Msg("AI benchmark fetched")
	return company, nil
}
