package prompts

import (
	"fmt"
	"strings"
)

// Benchmark asks for typical ratio values of a healthy company in an
// industry. The response is a single JSON object keyed by ratio name.
func Benchmark(industry string, ratioNames []string) string {
	return fmt.Sprintf(`You are an expert financial analyst. For the "%s" industry, provide typical benchmark values for the following financial ratios. The values should represent a healthy, average company in this sector.

Your response MUST be a single JSON object. The keys of the object are the ratio names, and the values are the corresponding benchmark numbers.
Do not include any explanatory text, comments, or markdown formatting. The response must be ONLY the raw JSON string.

The required ratio names are:
%s

- For percentage-based ratios (e.g., margins, ROA, ROE, growth rates), provide the value as a decimal (e.g., 0.15 for 15%%).
- For day-based ratios, provide the number of days.
- For other ratios, provide the direct value (e.g., 2.5 for a 2.5:1 current ratio).
- For growth ratios, provide a sensible annual growth rate.`, industry, strings.Join(ratioNames, "\n"))
}

// PDFExtraction asks for one JSON object per reporting period found in an
// attached statement PDF.
func PDFExtraction(required, optional []string) string {
	return fmt.Sprintf(`You are a highly specialized financial data extraction tool. Your task is to analyze the provided financial statement PDF and extract key financial data for each period (e.g., year) found in the document.

You MUST identify the following required financial metrics for each period: %s.

Additionally, if available, extract these optional valuation metrics: %s.

Your output MUST be a valid JSON array. Each object in the array represents a single financial period and MUST contain all the keys for the required metrics listed above.

**Crucially, if a specific value for a key cannot be found in the document, or if the value is illogical (e.g., text instead of a number), you MUST use a value of `+"`null`"+` for that key.** This applies to both required and optional metrics. This is vital for triggering a data correction screen for the user for required fields.

'Year' is mandatory and must be correctly identified for each period. All other values should be numbers or null.

Do not include any explanatory text, comments, or markdown formatting (like `+"```json"+`) in your response. The response must be ONLY the raw JSON array string.`,
		strings.Join(required, ", "), strings.Join(optional, ", "))
}

// PDFText carries the extracted text of a statement for models that
// cannot read the PDF itself.
func PDFText(fileName, text string) string {
	return fmt.Sprintf("The financial statement PDF %q could not be attached directly. Its extracted text follows.\n\n%s", fileName, text)
}
