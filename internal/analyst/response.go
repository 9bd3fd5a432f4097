package analyst

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bimmerbailey/triage/internal/classify"
	"github.com/bimmerbailey/triage/internal/config"
	"github.com/bimmerbailey/triage/internal/payload"
	"github.com/bimmerbailey/triage/internal/prompt"
	"github.com/bimmerbailey/triage/internal/report"
)

// FallbackRecommendation is used when the answer yields no recommendations.
const FallbackRecommendation = "Review the AI analysis output manually"

// Confidence used when the model states none.
const (
	defaultConfidence      = 0.5
	unstructuredConfidence = 0.3
)

const (
	maxRelatedErrors   = 50
	maxFallbackText    = 1000
	maxDescriptionText = 2000
)

var (
	// file.go:88, file.py line 88, "in file.java at line 88"
	sourceFileRegex = regexp.MustCompile(`([\w./\\-]+\.(?:go|py|java|kt|scala|js|jsx|ts|tsx|rb|rs|cs|cpp|cc|c|h|php|swift|ex|exs))\b(?:(?::|,?\s+(?:at\s+)?line\s+)(\d+))?`)
	functionRegex   = regexp.MustCompile("(?:\\b(?:function|func|method)\\s+`?([A-Za-z_][\\w.$]*)`?|\\b([A-Za-z_][\\w$]*(?:\\.[A-Za-z_][\\w$]*)+)\\()")
)

// BuildResponse turns a raw model answer into a complete AnalysisResponse.
// Missing sections are filled from the payload so the result is always well
// formed and carries at least one recommendation.
func BuildResponse(content string, p *payload.Payload) *report.AnalysisResponse {
	sections := prompt.ParseResponse(content)

	out := &report.AnalysisResponse{
		Summary:          sections.Summary,
		SequenceOfEvents: sections.SequenceOfEvents,
		CriticalIssues:   sections.CriticalIssues,
		Recommendations:  dedupe(sections.Recommendations),
		Raw:              content,
	}

	if sections.Empty() {
		out.SequenceOfEvents = firstRunes(strings.TrimSpace(content), maxFallbackText)
	}
	if len(out.Recommendations) == 0 {
		out.Recommendations = []string{FallbackRecommendation}
	}

	confidence := sections.Confidence
	if confidence < 0 {
		confidence = defaultConfidence
		if sections.Empty() {
			confidence = unstructuredConfidence
		}
	}
	out.Confidence = confidence

	description := sections.RootCause
	if description == "" {
		description = sections.Summary
	}
	if description == "" && sections.Empty() {
		description = out.SequenceOfEvents
	}
	out.RootCause = report.RootCause{
		Category:    rootCategory(sections.Category, p),
		Description: firstRunes(description, maxDescriptionText),
		Confidence:  confidence,
	}
	out.RootCause.File, out.RootCause.Line, out.RootCause.Function = extractLocation(description, p)

	if p != nil {
		out.RelatedErrors = relatedErrors(p)
		for _, c := range p.UnrelatedCounts {
			out.UnrelatedErrors = append(out.UnrelatedErrors, report.ErrorRef{
				Message:  c.Label,
				Category: c.Label,
				Count:    c.Count,
			})
		}
	}
	return out
}

var knownCategories = map[string]string{
	"code":             classify.CategoryCode.String(),
	"infrastructure":   classify.CategoryInfrastructure.String(),
	"configuration":    classify.CategoryConfiguration.String(),
	"config":           classify.CategoryConfiguration.String(),
	"external_service": classify.CategoryExternalService.String(),
	"external service": classify.CategoryExternalService.String(),
	"external":         classify.CategoryExternalService.String(),
	"unknown":          classify.CategoryUnknown.String(),
}

// rootCategory prefers the model's stated category, then the most common
// category among the verbatim entries.
func rootCategory(stated string, p *payload.Payload) string {
	stated = strings.ToLower(strings.TrimSpace(stated))
	for key, name := range knownCategories {
		if stated == key || strings.HasPrefix(stated, key+" ") || strings.HasPrefix(stated, key+"(") {
			return name
		}
	}
	if p == nil {
		return classify.CategoryUnknown.String()
	}

	counts := make(map[classify.Category]int)
	best, bestCount := classify.CategoryUnknown, 0
	for _, e := range p.Priority {
		c := e.Classification.Category
		if c == classify.CategoryUnknown {
			continue
		}
		counts[c]++
		if counts[c] > bestCount {
			best, bestCount = c, counts[c]
		}
	}
	return best.String()
}

// extractLocation finds a source file, line and function in text, falling
// back to the first stack frame among the payload entries.
func extractLocation(text string, p *payload.Payload) (string, int, string) {
	file, line, fn := scanLocation(text)
	if file != "" || p == nil {
		return file, line, fn
	}
	for _, e := range p.Entries() {
		if e.Level != config.LevelNone {
			continue
		}
		if f, l, name := scanLocation(e.Message); f != "" {
			return f, l, name
		}
	}
	return "", 0, fn
}

func scanLocation(text string) (string, int, string) {
	var file, fn string
	var line int
	if m := sourceFileRegex.FindStringSubmatch(text); m != nil {
		file = m[1]
		if m[2] != "" {
			line, _ = strconv.Atoi(m[2])
		}
	}
	if m := functionRegex.FindStringSubmatch(text); m != nil {
		fn = m[1]
		if fn == "" {
			fn = m[2]
		}
	}
	return file, line, fn
}

// relatedErrors lists warning-or-worse verbatim entries, priority first.
func relatedErrors(p *payload.Payload) []report.ErrorRef {
	var out []report.ErrorRef
	for _, e := range p.Entries() {
		if e.Level < config.LevelWarn || e.Level == config.LevelSummary {
			continue
		}
		out = append(out, report.ErrorRef{
			Line:     e.Line,
			Level:    e.Level.String(),
			Message:  e.Message,
			Category: e.Classification.Label(),
		})
		if len(out) == maxRelatedErrors {
			break
		}
	}
	return out
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, s := range items {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

func firstRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
