package models

import (
	"strings"
	"time"
)

// CompanyData is one analyzed entity: an uploaded company or a benchmark.
type CompanyData struct {
	Name    string            `json:"name"`
	Records []FinancialRecord `json:"records"`
	Ratios  *RatioResult      `json:"ratios"`
	// Benchmark is true for AI and custom industry benchmarks. Benchmarks
	// carry no records and a single "Benchmark" period.
	Benchmark bool `json:"benchmark,omitempty"`
}

// BenchmarkYear is the sole period label of a benchmark entity.
const BenchmarkYear = "Benchmark"

// Language of a generated narrative.
type Language string

const (
	English Language = "en"
	Arabic  Language = "ar"
)

// DisplayName returns the human name used inside prompts.
func (l Language) DisplayName() string {
	switch l {
	case Arabic:
		return "Arabic"
	default:
		return "English"
	}
}

// ParseLanguage accepts a display name or code ("English", "ar"),
// case-insensitively.
func ParseLanguage(s string) (Language, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "english", "en":
		return English, true
	case "arabic", "ar":
		return Arabic, true
	}
	return "", false
}

// NarrativeSummaries holds the per-category summaries of one narrative.
type NarrativeSummaries struct {
	Profitability string `json:"profitability"`
	Utilization   string `json:"utilization"`
	Liquidity     string `json:"liquidity"`
	Leverage      string `json:"leverage"`
	Growth        string `json:"growth"`
	CashFlow      string `json:"cash_flow"`
	Valuation     string `json:"valuation"`
	Forecast      string `json:"forecast"`
}

// Narrative is the parsed AI analysis in one language.
type Narrative struct {
	Main      string             `json:"main"`
	Summaries NarrativeSummaries `json:"summaries"`
}

// BilingualNarrative pairs the English and Arabic narratives of one run.
type BilingualNarrative struct {
	English Narrative `json:"en"`
	Arabic  Narrative `json:"ar"`
}

// For returns the narrative in the requested language.
func (b BilingualNarrative) For(lang Language) Narrative {
	if lang == Arabic {
		return b.Arabic
	}
	return b.English
}

// AnalysisSections is the heuristic split of a main narrative into the
// report sections shown to the user.
type AnalysisSections struct {
	Summary         string `json:"summary"`
	Strengths       string `json:"strengths"`
	Improvements    string `json:"improvements"`
	Recommendations string `json:"recommendations"`
	Conclusion      string `json:"conclusion"`
	CashFlow        string `json:"cash_flow"`
	Valuation       string `json:"valuation"`
}

// AnalysisResult is the complete output of one analysis run.
type AnalysisResult struct {
	Companies []CompanyData       `json:"companies"`
	Forecast  *RatioResult        `json:"forecast,omitempty"`
	Narrative *BilingualNarrative `json:"narrative,omitempty"`
	Industry  string              `json:"industry,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// Primary returns the first non-benchmark company, or nil.
func (a *AnalysisResult) Primary() *CompanyData {
	for i := range a.Companies {
		if !a.Companies[i].Benchmark {
			return &a.Companies[i]
		}
	}
	return nil
}

// IsComparison reports whether more than one entity was analyzed.
func (a *AnalysisResult) IsComparison() bool {
	return len(a.Companies) > 1
}

// ChatRole identifies the speaker of a chat turn.
type ChatRole string

const (
	ChatUser  ChatRole = "user"
	ChatModel ChatRole = "model"
)

// ChatMessage is one turn of a follow-up conversation.
type ChatMessage struct {
	Role      ChatRole  `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
