package agent

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"github.com/seenimoa/finlens/internal/agent/prompts"
	"github.com/seenimoa/finlens/internal/ingest"
	"github.com/seenimoa/finlens/internal/llm"
	"github.com/seenimoa/finlens/internal/statement"
	"github.com/seenimoa/finlens/pkg/models"
	"github.com/seenimoa/finlens/pkg/utils"
)

const extractionFailure = "Failed to analyze the PDF with AI. Please ensure the PDF contains clear, tabular financial statements. Original error: "

// ErrNoPeriods is returned when extraction yields no period objects.
var ErrNoPeriods = eris.New("AI failed to return valid data. The result is not an array or is empty.")

// Extractor reads statement PDFs into raw period rows. It implements
// ingest.PDFExtractor.
type Extractor struct {
	*BaseAgent
}

var _ ingest.PDFExtractor = (*Extractor)(nil)

// NewExtractor creates an extractor. provider should be the one configured
// for documents; providers that cannot read PDFs get the extracted text.
func NewExtractor(provider llm.LLMProvider, opts *llm.ChatOptions) *Extractor {
	return &Extractor{BaseAgent: NewBaseAgent(prompts.AgentExtractor, provider, opts)}
}

// ExtractRecords asks the model for one JSON object per reporting period
// and maps each onto the required and optional columns.
func (e *Extractor) ExtractRecords(ctx context.Context, doc ingest.Document) ([]models.RawRow, error) {
	prompt := prompts.PDFExtraction(statement.RequiredColumns(), statement.OptionalColumns())

	var msg llm.Message
	if llm.SupportsDocuments(e.provider) {
		msg = llm.DocumentMessage(prompt, doc.Name, doc.Data)
	} else {
		content, err := doc.Text()
		if err != nil {
			return nil, aiError(extractionFailure, err)
		}
		log.Debug().Str("component", "agent").Str("file", doc.Name).Int("chars", len(content)).Msg("sending extracted PDF text")
		msg = llm.UserMessage(prompt + "\n\n" + prompts.PDFText(doc.Name, content))
	}

	reply, err := e.ask(ctx, []llm.Message{msg}, false)
	if err != nil {
		return nil, aiError(extractionFailure, err)
	}

	var periods []map[string]any
	if err := utils.ParseLenientJSON(reply, &periods); err != nil {
		return nil, aiError(extractionFailure, err)
	}
	if len(periods) == 0 {
		return nil, aiError(extractionFailure, ErrNoPeriods)
	}

	rows := make([]models.RawRow, len(periods))
	for i, p := range periods {
		rows[i] = extractedRow(p)
	}
	log.Info().Str("component", "agent").Str("file", doc.Name).Int("periods", len(rows)).Msg("PDF statement extracted")
	return rows, nil
}

// extractedRow keeps exactly the known columns. Year must be a nonzero
// number; other values are cleaned of everything but digits, '.' and '-'.
func extractedRow(p map[string]any) models.RawRow {
	columns := append(statement.RequiredColumns(), statement.OptionalColumns()...)
	row := make(models.RawRow, len(columns))
	for _, col := range columns {
		v := p[col]
		if col == statement.Year {
			row[col] = extractedYear(v)
			continue
		}
		if f := utils.CleanExtractedNumber(v); f != nil {
			row[col] = *f
		} else {
			row[col] = nil
		}
	}
	return row
}

// extractedYear converts a whole value to a number; zero and unparsable
// values are unknown.
func extractedYear(v any) any {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if f == 0 || math.IsNaN(f) {
		return nil
	}
	return f
}
