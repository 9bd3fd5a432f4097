package preprocess

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bimmerbailey/triage/internal/classify"
	"github.com/bimmerbailey/triage/internal/config"
)

// TruncationMarker replaces stack frames beyond a mode's frame cap.
const TruncationMarker = "… stack trace truncated …"

const ellipsis = "…"

var (
	// repeatSuffix matches the counters appended by collapsing, so a second
	// pass can fold them into its own count instead of stacking suffixes.
	repeatSuffix = regexp.MustCompile(` \((pattern )?repeated (\d+) times\)$`)

	blankRuns = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)+`)
	tabRuns   = regexp.MustCompile(`\t{2,}`)
)

// criticalKeywords mark entries Ultra mode never summarizes away.
var criticalKeywords = []string{
	"fatal",
	"critical",
	"severe",
	"panic",
	"segmentation fault",
	"out of memory",
	"stack overflow",
	"corrupted",
	"data loss",
	"security",
}

// IsCritical reports whether a message describes a failure Ultra mode keeps.
func IsCritical(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range criticalKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// unit is a leveled entry together with the continuation lines that follow
// it. Continuation lines with no preceding entry form a unit of their own.
type unit struct {
	head      config.LogEntry
	frames    []config.LogEntry
	truncated bool
	markLine  int
}

func buildUnits(entries []config.LogEntry) []*unit {
	var units []*unit
	var cur *unit
	for _, e := range entries {
		if e.IsContinuation() && cur != nil {
			if e.Message == TruncationMarker {
				cur.truncated = true
				cur.markLine = e.Line
				continue
			}
			cur.frames = append(cur.frames, e)
			continue
		}
		cur = &unit{head: e}
		units = append(units, cur)
	}
	return units
}

func flatten(units []*unit) []config.LogEntry {
	out := make([]config.LogEntry, 0, len(units))
	for _, u := range units {
		out = append(out, u.head)
		out = append(out, u.frames...)
		if u.truncated {
			out = append(out, config.LogEntry{
				Level:   config.LevelNone,
				Message: TruncationMarker,
				Line:    u.markLine,
			})
		}
	}
	return out
}

func (u *unit) capFrames(limit int) {
	if len(u.frames) <= limit {
		return
	}
	if !u.truncated {
		u.markLine = u.frames[limit].Line
	}
	u.frames = u.frames[:limit]
	u.truncated = true
}

func (u *unit) each(fn func(*config.LogEntry)) {
	fn(&u.head)
	for i := range u.frames {
		fn(&u.frames[i])
	}
}

// Slim compresses entries according to mode. The result never has more
// entries than the input.
func Slim(entries []config.LogEntry, mode Mode) []config.LogEntry {
	if len(entries) == 0 {
		return nil
	}
	switch mode {
	case ModeAggressive:
		return slimAggressive(entries)
	case ModeUltra:
		return slimUltra(entries)
	default:
		return slimLight(entries)
	}
}

func slimLight(entries []config.LogEntry) []config.LogEntry {
	units := buildUnits(entries)
	limit := ModeLight.MessageLimit()
	for _, u := range units {
		u.each(func(e *config.LogEntry) {
			e.Message = truncate(normalizeWhitespace(e.Message), limit)
		})
		u.capFrames(ModeLight.FrameCap())
	}

	units = collapseConsecutive(units)
	for _, u := range units {
		u.head.Message = truncate(u.head.Message, limit)
	}
	return flatten(units)
}

// collapseConsecutive folds runs of units whose head messages are equal
// into the first unit of the run.
func collapseConsecutive(units []*unit) []*unit {
	out := make([]*unit, 0, len(units))
	var (
		cur   *unit
		base  string
		count int
	)
	flush := func() {
		if cur == nil {
			return
		}
		if count > 1 {
			cur.head.Message = fmt.Sprintf("%s (repeated %d times)", base, count)
		}
		out = append(out, cur)
	}

	for _, u := range units {
		b, n, _ := splitRepeat(u.head.Message)
		if cur != nil && b == base && u.head.Level == cur.head.Level {
			count += n
			continue
		}
		flush()
		cur, base, count = u, b, n
	}
	flush()
	return out
}

func slimAggressive(entries []config.LogEntry) []config.LogEntry {
	units := buildUnits(entries)
	for _, u := range units {
		u.each(func(e *config.LogEntry) {
			e.Message = normalizeWhitespace(e.Message)
		})
		u.capFrames(ModeAggressive.FrameCap())
	}

	type group struct {
		rep   *unit
		base  string
		count int
	}
	var order []*group
	byKey := make(map[string]*group)
	for _, u := range units {
		b, n, _ := splitRepeat(u.head.Message)
		key := PatternKey(b)
		if g, ok := byKey[key]; ok {
			g.count += n
			continue
		}
		g := &group{rep: u, base: b, count: n}
		byKey[key] = g
		order = append(order, g)
	}

	grouped := make([]*unit, 0, len(order))
	for _, g := range order {
		if g.count > 1 {
			g.rep.head.Message = fmt.Sprintf("%s (pattern repeated %d times)", g.base, g.count)
		} else {
			g.rep.head.Message = g.base
		}
		grouped = append(grouped, g.rep)
	}

	sortByTime(grouped)

	limit := ModeAggressive.MessageLimit()
	for _, u := range grouped {
		u.each(func(e *config.LogEntry) {
			e.Message = truncate(e.Message, limit)
		})
	}
	return flatten(grouped)
}

// sortByTime orders units by their head timestamps. Units without one keep
// the position of the closest preceding stamped unit.
func sortByTime(units []*unit) {
	heads := make([]config.LogEntry, len(units))
	for i, u := range units {
		heads[i] = u.head
	}
	keys := config.TimeKeys(heads)
	idx := make([]int, len(units))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return keys[idx[a]].Before(keys[idx[b]])
	})
	sorted := make([]*unit, len(units))
	for i, j := range idx {
		sorted[i] = units[j]
	}
	copy(units, sorted)
}

func slimUltra(entries []config.LogEntry) []config.LogEntry {
	units := buildUnits(entries)
	limit := ModeUltra.MessageLimit()

	type tally struct {
		label string
		count int
		line  int
	}
	var (
		kept   []*unit
		counts []*tally
	)
	byLabel := make(map[string]*tally)

	for _, u := range units {
		switch {
		case u.head.Level == config.LevelSummary:
			kept = append(kept, u)
		case IsCritical(u.head.Message):
			u.each(func(e *config.LogEntry) {
				e.Message = truncate(normalizeWhitespace(e.Message), limit)
			})
			u.capFrames(ModeUltra.FrameCap())
			kept = append(kept, u)
		case u.head.IsContinuation():
			// orphaned frames carry no event of their own
		default:
			label := classify.Classify(u.head.Message).Label()
			t, ok := byLabel[label]
			if !ok {
				t = &tally{label: label, line: u.head.Line}
				byLabel[label] = t
				counts = append(counts, t)
			}
			t.count++
		}
	}

	out := flatten(kept)
	for _, t := range counts {
		out = append(out, config.LogEntry{
			Level:   config.LevelSummary,
			Message: fmt.Sprintf("%s: %d occurrences", t.label, t.count),
			Line:    t.line,
		})
	}
	return out
}

// splitRepeat separates a collapse counter from a message. Messages without
// one count once.
func splitRepeat(msg string) (string, int, bool) {
	m := repeatSuffix.FindStringSubmatchIndex(msg)
	if m == nil {
		return msg, 1, false
	}
	n, err := strconv.Atoi(msg[m[4]:m[5]])
	if err != nil || n < 1 {
		return msg, 1, false
	}
	return msg[:m[0]], n, true
}

// truncate shortens msg to at most limit characters, ending the kept text
// with an ellipsis. A trailing collapse counter is preserved intact.
func truncate(msg string, limit int) string {
	if utf8.RuneCountInString(msg) <= limit {
		return msg
	}
	suffix := ""
	if loc := repeatSuffix.FindStringIndex(msg); loc != nil {
		suffix = msg[loc[0]:]
		msg = msg[:loc[0]]
	}
	keep := limit - utf8.RuneCountInString(suffix) - utf8.RuneCountInString(ellipsis)
	if keep < 0 {
		keep = 0
	}
	return firstRunes(msg, keep) + ellipsis + suffix
}

func firstRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func normalizeWhitespace(s string) string {
	if !strings.ContainsAny(s, "\n\t") {
		return s
	}
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return tabRuns.ReplaceAllString(s, "\t")
}
