package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/finlens/internal/agent/prompts"
	"github.com/seenimoa/finlens/internal/llm"
	"github.com/seenimoa/finlens/pkg/models"
	"github.com/seenimoa/finlens/pkg/utils"
)

// promptDecimals is the precision of ratio values sent to the model.
const promptDecimals = 4

// narrativeFailure prefixes the cause of a failed narrative run.
const narrativeFailure = "The AI analysis failed. This can happen due to network issues or problems with the AI service. Please try again later. Details: "

// Narrator writes the narrative analysis of computed ratios.
type Narrator struct {
	*BaseAgent
	languages []models.Language
}

// NewNarrator creates a narrator producing one narrative per language.
// With no languages it writes English and Arabic.
func NewNarrator(provider llm.LLMProvider, opts *llm.ChatOptions, languages ...models.Language) *Narrator {
	if len(languages) == 0 {
		languages = []models.Language{models.English, models.Arabic}
	}
	return &Narrator{
		BaseAgent: NewBaseAgent(prompts.AgentNarrator, provider, opts),
		languages: languages,
	}
}

// Languages returns the languages the narrator writes.
func (n *Narrator) Languages() []models.Language {
	return append([]models.Language(nil), n.languages...)
}

// Generate requests every language concurrently. A failure in any
// language fails the whole run; no partial narrative is returned.
// forecast is included for the primary company when non-nil.
func (n *Narrator) Generate(ctx context.Context, companies []models.CompanyData, forecast *models.RatioResult) (*models.BilingualNarrative, error) {
	data, err := narrativeData(companies)
	if err != nil {
		return nil, eris.Wrap(err, "agent: encode ratio data")
	}
	var forecastJSON string
	if forecast != nil {
		if forecastJSON, err = utils.PrettyJSON(forecast.Rounded(promptDecimals)); err != nil {
			return nil, eris.Wrap(err, "agent: encode forecast data")
		}
	}
	user := prompts.NarrativeData(data, forecastJSON)
	multi := len(companies) > 1

	start := time.Now()
	results := make([]models.Narrative, len(n.languages))
	g, gctx := errgroup.WithContext(ctx)
	for i, lang := range n.languages {
		g.Go(func() error {
			messages := []llm.Message{
				llm.SystemMessage(prompts.NarrativeSystem(lang.DisplayName(), multi)),
				llm.UserMessage(user),
			}
			text, err := n.ask(gctx, messages, false)
			if err != nil {
				log.Warn().Str("component", "agent").Str("language", lang.DisplayName()).Err(err).Msg("narrative request failed")
				return err
			}
			results[i] = ParseNarrative(text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, aiError(narrativeFailure, err)
	}

	out := &models.BilingualNarrative{}
	for i, lang := range n.languages {
		if lang == models.Arabic {
			out.Arabic = results[i]
		} else {
			out.English = results[i]
		}
	}

	log.Info().
		Str("component", "agent").
		Int("companies", len(companies)).
		Int("languages", len(n.languages)).
		Bool("forecast", forecast != nil).
		Dur("duration", time.Since(start)).
		Msg("narrative generated")
	return out, nil
}

// narrativeData renders the ratio context of a narrative request: the
// company's ratios for a single company, otherwise an object mapping each
// name to its ratios in input order. Values are rounded and non-finite
// values become null.
func narrativeData(companies []models.CompanyData) (string, error) {
	if len(companies) == 1 {
		return utils.PrettyJSON(roundedRatios(companies[0]))
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range companies {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Name)
		if err != nil {
			return "", err
		}
		val, err := json.Marshal(roundedRatios(c))
		if err != nil {
			return "", err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return "", err
	}
	return out.String(), nil
}

func roundedRatios(c models.CompanyData) *models.RatioResult {
	if c.Ratios == nil {
		return models.NewRatioResult(nil)
	}
	return c.Ratios.Rounded(promptDecimals)
}
