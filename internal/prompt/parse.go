package prompt

import (
	"regexp"
	"strconv"
	"strings"
)

// Sections is the free-form model answer split by heading.
type Sections struct {
	Summary          string
	SequenceOfEvents string
	CriticalIssues   []string
	RootCause        string
	Category         string
	Confidence       float64 // -1 when the answer gave none
	Recommendations  []string
}

// Empty reports whether no known section was found.
func (s Sections) Empty() bool {
	return s.Summary == "" && s.SequenceOfEvents == "" && len(s.CriticalIssues) == 0 &&
		s.RootCause == "" && len(s.Recommendations) == 0
}

type section int

const (
	sectionNone section = iota
	sectionSummary
	sectionSequence
	sectionCritical
	sectionRootCause
	sectionRecommendations
)

var (
	headingRegex    = regexp.MustCompile(`^\s*(?:#{1,6}\s*(.+?)\s*#*\s*$|\*\*(.+?)\*\*:?\s*$)`)
	listItemRegex   = regexp.MustCompile(`^\s*(?:[-*•+]|\d+[.)])\s+(.*)$`)
	categoryRegex   = regexp.MustCompile(`(?i)^\s*(?:\*\*)?category(?:\*\*)?\s*:\s*(?:\*\*)?\s*(.+?)\s*$`)
	confidenceRegex = regexp.MustCompile(`(?i)^\s*(?:\*\*)?confidence(?:\*\*)?\s*:\s*(?:\*\*)?\s*([0-9]*\.?[0-9]+)\s*(%)?`)
)

// ParseResponse extracts the report sections from a model answer. Headings
// are matched loosely (any level, bold, case-insensitive). Text outside a
// known section is ignored. The parser never fails; a response without
// recognizable sections yields an Empty result.
func ParseResponse(text string) Sections {
	out := Sections{Confidence: -1}
	current := sectionNone

	var summary, sequence, root []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if m := headingRegex.FindStringSubmatch(line); m != nil {
			title := m[1]
			if title == "" {
				title = m[2]
			}
			if s, ok := classifyHeading(title); ok {
				current = s
				continue
			}
			// Unknown top-level headings end the section; deeper ones are
			// content of the current section.
			if depth := headingDepth(line); depth > 0 && depth <= 2 {
				current = sectionNone
				continue
			}
		}

		trimmed := strings.TrimSpace(line)
		switch current {
		case sectionSummary:
			summary = append(summary, line)
		case sectionSequence:
			sequence = append(sequence, line)
		case sectionCritical:
			out.CriticalIssues = appendListLine(out.CriticalIssues, trimmed)
		case sectionRecommendations:
			out.Recommendations = appendListLine(out.Recommendations, trimmed)
		case sectionRootCause:
			if m := categoryRegex.FindStringSubmatch(trimmed); m != nil && out.Category == "" {
				out.Category = strings.ToLower(strings.Trim(m[1], "*` "))
				continue
			}
			if m := confidenceRegex.FindStringSubmatch(trimmed); m != nil && out.Confidence < 0 {
				if v, err := strconv.ParseFloat(m[1], 64); err == nil {
					if m[2] == "%" || v > 1 {
						v /= 100
					}
					out.Confidence = clamp01(v)
				}
				continue
			}
			root = append(root, line)
		}
	}

	out.Summary = joinBlock(summary)
	out.SequenceOfEvents = joinBlock(sequence)
	out.RootCause = joinBlock(root)
	return out
}

func classifyHeading(title string) (section, bool) {
	t := strings.ToLower(strings.Trim(title, " *:`"))
	switch {
	case strings.Contains(t, "root cause"):
		return sectionRootCause, true
	case strings.Contains(t, "recommend"), strings.Contains(t, "next step"):
		return sectionRecommendations, true
	case strings.Contains(t, "critical"), strings.Contains(t, "key finding"):
		return sectionCritical, true
	case strings.Contains(t, "sequence"), strings.Contains(t, "timeline"):
		return sectionSequence, true
	case strings.Contains(t, "summary"):
		return sectionSummary, true
	}
	return sectionNone, false
}

// appendListLine adds a list item, or continues the previous item when the
// line is wrapped prose.
func appendListLine(items []string, line string) []string {
	if line == "" {
		return items
	}
	if m := listItemRegex.FindStringSubmatch(line); m != nil {
		if item := strings.TrimSpace(m[1]); item != "" {
			return append(items, item)
		}
		return items
	}
	if len(items) == 0 {
		return append(items, line)
	}
	items[len(items)-1] += " " + line
	return items
}

func headingDepth(line string) int {
	t := strings.TrimSpace(line)
	n := 0
	for n < len(t) && t[n] == '#' {
		n++
	}
	return n
}

func joinBlock(lines []string) string {
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
