package prompts

import (
	"strings"
	"testing"
)

// ── Agent Name Constants ──

func TestAgentNameConstants(t *testing.T) {
	names := map[string]string{
		"AgentNarrator":  AgentNarrator,
		"AgentBenchmark": AgentBenchmark,
		"AgentExtractor": AgentExtractor,
		"AgentChat":      AgentChat,
	}
	for label, name := range names {
		if name == "" {
			t.Errorf("%s should not be empty", label)
		}
		if strings.Contains(name, " ") {
			t.Errorf("%s should not contain spaces: %q", label, name)
		}
	}
}

// ── Narrative ──

func TestNarrativeSystemContainsEveryMarker(t *testing.T) {
	for _, multi := range []bool{false, true} {
		prompt := NarrativeSystem("English", multi)
		for _, key := range append([]string{SectionMain}, SummarySections...) {
			if !strings.Contains(prompt, "["+key+"_START]") || !strings.Contains(prompt, "["+key+"_END]") {
				t.Errorf("multi=%v: markers for %s missing", multi, key)
			}
		}
	}
}

func TestNarrativeSystemTemplates(t *testing.T) {
	single := NarrativeSystem("English", false)
	if !strings.Contains(single, "Your response MUST be in English") {
		t.Error("single template should name the language")
	}
	if !strings.Contains(single, "**Overall Financial Health Summary:**") {
		t.Error("single template should ask for a health summary")
	}
	if !strings.Contains(single, `"No forecast data provided."`) {
		t.Error("single template should describe the forecast fallback")
	}

	multi := NarrativeSystem("Arabic", true)
	if !strings.Contains(multi, "Your response MUST be in Arabic") {
		t.Error("multi template should name the language")
	}
	if !strings.Contains(multi, "**Overall Winner/Conclusion:**") {
		t.Error("multi template should ask for a winner")
	}
	if !strings.Contains(multi, `"Not applicable for comparison."`) {
		t.Error("multi template should mark forecast as not applicable")
	}
	if strings.Contains(multi, "%!") || strings.Contains(single, "%!") {
		t.Error("template has a formatting error")
	}
}

func TestNarrativeData(t *testing.T) {
	got := NarrativeData(`{"a":1}`, "")
	want := "Here is the financial data:\n```json\n{\"a\":1}\n```"
	if got != want {
		t.Errorf("NarrativeData: got %q, want %q", got, want)
	}

	withForecast := NarrativeData(`{}`, `{"f":2}`)
	if !strings.HasSuffix(withForecast, "Here is the forecasted data for the primary company:\n```json\n{\"f\":2}\n```") {
		t.Errorf("forecast block missing: %q", withForecast)
	}
}

// ── Chat ──

func TestChatSystem(t *testing.T) {
	got := ChatSystem(`[{"name":"Acme"}]`)
	if !strings.HasPrefix(got, "You are 'AAA Finance', a helpful AI financial analyst.") {
		t.Errorf("persona prefix: got %q", got[:60])
	}
	if !strings.HasSuffix(got, "```json\n[{\"name\":\"Acme\"}]\n```\n") {
		t.Errorf("data block: got %q", got)
	}
}

// ── Task Prompts ──

func TestBenchmarkPrompt(t *testing.T) {
	got := Benchmark("Retail", []string{"ROE", "Current Ratio"})
	if !strings.Contains(got, `For the "Retail" industry`) {
		t.Error("industry missing")
	}
	if !strings.Contains(got, "The required ratio names are:\nROE\nCurrent Ratio\n") {
		t.Errorf("ratio list missing: %q", got)
	}
	if !strings.Contains(got, "0.15 for 15%)") {
		t.Error("percent sign should be literal")
	}
}

func TestPDFExtractionPrompt(t *testing.T) {
	got := PDFExtraction([]string{"Year", "Revenue"}, []string{"Market Capitalization"})
	if !strings.Contains(got, "required financial metrics for each period: Year, Revenue.") {
		t.Error("required list missing")
	}
	if !strings.Contains(got, "optional valuation metrics: Market Capitalization.") {
		t.Error("optional list missing")
	}
	if !strings.Contains(got, "you MUST use a value of `null`") {
		t.Error("null instruction missing")
	}
	if !strings.HasSuffix(got, "ONLY the raw JSON array string.") {
		t.Error("prompt should end with the raw-JSON instruction")
	}
}

func TestPDFTextPrompt(t *testing.T) {
	got := PDFText("fy.pdf", "Revenue 100")
	if !strings.Contains(got, `"fy.pdf"`) || !strings.HasSuffix(got, "Revenue 100") {
		t.Errorf("PDFText: got %q", got)
	}
}
