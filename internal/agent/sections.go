package agent

import (
	"regexp"
	"strings"

	"github.com/seenimoa/finlens/internal/agent/prompts"
	"github.com/seenimoa/finlens/pkg/models"
)

// Fallback texts for narrative sections the model left out.
const (
	FallbackSummary  = "Summary not available."
	FallbackForecast = "Forecast analysis not available."
	FallbackMain     = "AI analysis could not be parsed or was empty."
)

var sectionPatterns = func() map[string]*regexp.Regexp {
	keys := append([]string{prompts.SectionMain}, prompts.SummarySections...)
	m := make(map[string]*regexp.Regexp, len(keys))
	for _, key := range keys {
		m[key] = regexp.MustCompile(`(?is)\[` + key + `_START\](.*?)\[` + key + `_END\]`)
	}
	return m
}()

// extractSection returns the trimmed text between a key's markers, or "".
func extractSection(text, key string) string {
	m := sectionPatterns[key].FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// ParseNarrative splits a marker-delimited response into its sections.
// Marker matching ignores case. When no marker is found at all the whole
// response becomes the main analysis; otherwise only the missing summaries
// are filled with fallbacks.
func ParseNarrative(text string) models.Narrative {
	n := models.Narrative{
		Main: extractSection(text, prompts.SectionMain),
		Summaries: models.NarrativeSummaries{
			Profitability: extractSection(text, prompts.SectionProfitability),
			Utilization:   extractSection(text, prompts.SectionUtilization),
			Liquidity:     extractSection(text, prompts.SectionLiquidity),
			Leverage:      extractSection(text, prompts.SectionLeverage),
			Growth:        extractSection(text, prompts.SectionGrowth),
			CashFlow:      extractSection(text, prompts.SectionCashFlow),
			Valuation:     extractSection(text, prompts.SectionValuation),
			Forecast:      extractSection(text, prompts.SectionForecast),
		},
	}

	if n.Main == "" && n.Summaries == (models.NarrativeSummaries{}) {
		n.Main = strings.TrimSpace(text)
		if n.Main == "" {
			n.Main = FallbackMain
		}
	}

	s := &n.Summaries
	for _, field := range []*string{
		&s.Profitability, &s.Utilization, &s.Liquidity, &s.Leverage,
		&s.Growth, &s.CashFlow, &s.Valuation,
	} {
		if *field == "" {
			*field = FallbackSummary
		}
	}
	if s.Forecast == "" {
		s.Forecast = FallbackForecast
	}
	return n
}
