package agent

import (
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/seenimoa/finlens/pkg/models"
)

// Section buckets of a split analysis.
const (
	bucketSummary         = "summary"
	bucketStrengths       = "strengths"
	bucketImprovements    = "improvements"
	bucketRecommendations = "recommendations"
	bucketConclusion      = "conclusion"
	bucketCashFlow        = "cash_flow"
	bucketValuation       = "valuation"
)

type bucketKeywords struct {
	bucket   string
	keywords []string
}

// English titles must match a keyword exactly, ignoring case.
var englishKeywords = []bucketKeywords{
	{bucketSummary, []string{"Overall Financial Health Summary", "Executive Summary"}},
	{bucketStrengths, []string{"Strengths", "Company-by-Company Breakdown"}},
	{bucketImprovements, []string{"Areas for Improvement"}},
	{bucketRecommendations, []string{"Detailed Analysis & Recommendations", "Strategic Recommendations"}},
	{bucketConclusion, []string{"Conclusion", "Overall Winner/Conclusion"}},
	{bucketCashFlow, []string{"Cash Flow"}},
	{bucketValuation, []string{"Valuation", "Valuation Ratios"}},
}

// Arabic titles match when they contain a keyword.
var arabicKeywords = []bucketKeywords{
	{bucketSummary, []string{"ملخص الصحة المالية العامة", "الملخص التنفيذي"}},
	{bucketStrengths, []string{"نقاط القوة", "تحليل كل شركة على حدة"}},
	{bucketImprovements, []string{"مجالات التحسين"}},
	{bucketRecommendations, []string{"التحليل التفصيلي والتوصيات", "التوصيات الاستراتيجية"}},
	{bucketConclusion, []string{"الخلاصة", "الاستنتاج"}},
	{bucketCashFlow, []string{"التدفق النقدي"}},
	{bucketValuation, []string{"التقييم"}},
}

var leadingNumber = regexp.MustCompile(`^\s*(\d+[.)]\s*)+`)

// boundary is a line offset where a titled block starts. bucket is empty
// for headings that match no keyword.
type boundary struct {
	offset int
	bucket string
}

// SplitAnalysis groups a free-form markdown analysis into report sections
// by its headings. It recognises headings up to level 3 and paragraphs or
// top-level list items that open with bold text. Content before the first
// recognised title, and under unrecognised headings, joins the previous
// section (initially the summary). Classification is best-effort; text
// with marker-delimited sections should be parsed with ParseNarrative.
func SplitAnalysis(markdown string, lang models.Language) models.AnalysisSections {
	src := []byte(markdown)
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	keywords := englishKeywords
	if lang == models.Arabic {
		keywords = arabicKeywords
	}

	var bounds []boundary
	consider := func(block ast.Node, title string, heading bool) {
		bucket := classifyTitle(title, keywords)
		if bucket == "" && !heading {
			return
		}
		if off, ok := lineStart(block, src); ok {
			bounds = append(bounds, boundary{offset: off, bucket: bucket})
		}
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			if node.Level <= 3 {
				consider(node, nodeText(node, src), true)
			}
		case *ast.Paragraph:
			if title, ok := boldLead(node, src); ok {
				consider(node, title, false)
			}
		case *ast.List:
			for item := node.FirstChild(); item != nil; item = item.NextSibling() {
				block := item.FirstChild()
				if block == nil {
					continue
				}
				if title, ok := boldLead(block, src); ok {
					consider(block, title, false)
				}
			}
		}
	}
	sort.SliceStable(bounds, func(i, j int) bool { return bounds[i].offset < bounds[j].offset })

	sections := make(map[string]string)
	add := func(bucket, chunk string) {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			return
		}
		if sections[bucket] != "" {
			sections[bucket] += "\n\n"
		}
		sections[bucket] += chunk
	}

	last := bucketSummary
	prev := 0
	for _, b := range bounds {
		add(last, markdown[prev:b.offset])
		if b.bucket != "" {
			last = b.bucket
		}
		prev = b.offset
	}
	add(last, markdown[prev:])

	return models.AnalysisSections{
		Summary:         sections[bucketSummary],
		Strengths:       sections[bucketStrengths],
		Improvements:    sections[bucketImprovements],
		Recommendations: sections[bucketRecommendations],
		Conclusion:      sections[bucketConclusion],
		CashFlow:        sections[bucketCashFlow],
		Valuation:       sections[bucketValuation],
	}
}

// classifyTitle returns the bucket whose keyword matches title, or "".
func classifyTitle(title string, keywords []bucketKeywords) string {
	title = strings.TrimSpace(leadingNumber.ReplaceAllString(title, ""))
	title = strings.TrimSpace(strings.TrimRight(title, ":： "))
	if title == "" {
		return ""
	}
	for _, bk := range keywords {
		for _, kw := range bk.keywords {
			if isASCII(kw) {
				if strings.EqualFold(title, kw) {
					return bk.bucket
				}
				continue
			}
			if strings.Contains(title, kw) {
				return bk.bucket
			}
		}
	}
	return ""
}

// boldLead returns the text of the strong emphasis opening a paragraph or
// text block.
func boldLead(block ast.Node, src []byte) (string, bool) {
	if block.Kind() != ast.KindParagraph && block.Kind() != ast.KindTextBlock {
		return "", false
	}
	em, ok := block.FirstChild().(*ast.Emphasis)
	if !ok || em.Level != 2 {
		return "", false
	}
	return nodeText(em, src), true
}

// lineStart returns the offset of the first source line of a block.
func lineStart(block ast.Node, src []byte) (int, bool) {
	lines := block.Lines()
	if lines == nil || lines.Len() == 0 {
		return 0, false
	}
	start := lines.At(0).Start
	for start > 0 && src[start-1] != '\n' {
		start--
	}
	return start, true
}

// nodeText concatenates the inline text below n.
func nodeText(n ast.Node, src []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
