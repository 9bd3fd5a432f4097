package dispatch

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bimmerbailey/triage/internal/report"
)

// MaxErrorText bounds the user-visible error text handed to storage.
const MaxErrorText = 1000

// Synthesize merges per-chunk responses, given in chunk order, into one.
// Narratives are concatenated under "Chunk N:" prefixes, the most confident
// root cause wins (earliest chunk on ties), recommendations are deduplicated
// in first-seen order and confidence is the mean.
func Synthesize(responses []*report.AnalysisResponse) *report.AnalysisResponse {
	switch len(responses) {
	case 0:
		return nil
	case 1:
		return responses[0]
	}

	out := &report.AnalysisResponse{}
	var summaries, sequences []string
	seenRec := make(map[string]bool)
	seenIssue := make(map[string]bool)
	best := -1.0
	total := 0.0

	for i, r := range responses {
		n := i + 1
		if s := strings.TrimSpace(r.Summary); s != "" {
			summaries = append(summaries, fmt.Sprintf("Chunk %d: %s", n, s))
		}
		sequences = append(sequences, fmt.Sprintf("Chunk %d: %s", n, strings.TrimSpace(r.SequenceOfEvents)))

		if r.RootCause.Confidence > best {
			best = r.RootCause.Confidence
			out.RootCause = r.RootCause
		}
		for _, rec := range r.Recommendations {
			key := strings.ToLower(strings.TrimSpace(rec))
			if key == "" || seenRec[key] {
				continue
			}
			seenRec[key] = true
			out.Recommendations = append(out.Recommendations, rec)
		}
		for _, issue := range r.CriticalIssues {
			key := strings.ToLower(strings.TrimSpace(issue))
			if key == "" || seenIssue[key] {
				continue
			}
			seenIssue[key] = true
			out.CriticalIssues = append(out.CriticalIssues, issue)
		}
		out.RelatedErrors = append(out.RelatedErrors, r.RelatedErrors...)
		out.UnrelatedErrors = append(out.UnrelatedErrors, r.UnrelatedErrors...)
		total += r.Confidence
		if out.Model == "" {
			out.Model = r.Model
		}
	}

	out.Summary = strings.Join(summaries, "\n\n")
	out.SequenceOfEvents = strings.Join(sequences, "\n\n")
	out.Confidence = total / float64(len(responses))
	return out
}

// ErrorText converts err to the text shown to users and stored with a
// failed run, capped at MaxErrorText characters. Typed analysis errors keep
// their kind and provider prefix.
func ErrorText(err error) string {
	if err == nil {
		return ""
	}
	text := err.Error()
	var ae *report.AnalysisError
	if !errors.As(err, &ae) {
		text = report.KindInternal.String() + ": " + text
	}
	if utf8.RuneCountInString(text) <= MaxErrorText {
		return text
	}
	return string([]rune(text)[:MaxErrorText])
}
