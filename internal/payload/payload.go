// Package payload packs scored log entries into a token-bounded context for
// a single model request.
package payload

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bimmerbailey/triage/internal/classify"
	"github.com/bimmerbailey/triage/internal/config"
)

// CharsPerToken is the rough size of one model token.
const CharsPerToken = 4

// DefaultMaxTokens is the default budget for one payload.
const DefaultMaxTokens = 8000

// EstimateTokens approximates the token count of s, rounding up.
func EstimateTokens(s string) int {
	return (len(s) + CharsPerToken - 1) / CharsPerToken
}

// EntryTokens approximates the tokens needed to render one entry.
func EntryTokens(e config.LogEntry) int {
	return EstimateTokens(e.Timestamp + " " + e.Level.String() + " " + e.Message)
}

// EntriesTokens sums EntryTokens over entries.
func EntriesTokens(entries []config.LogEntry) int {
	total := 0
	for _, e := range entries {
		total += EntryTokens(e)
	}
	return total
}

// Entry is a log entry with its relevance data.
type Entry struct {
	config.LogEntry
	Classification classify.Classification `json:"classification"`
	Score          float64                 `json:"score"`
	Bucket         classify.Bucket         `json:"-"`
	Position       int                     `json:"position"`
	Tokens         int                     `json:"-"`
}

// CategoryCount is the number of unrelated entries in one category.
type CategoryCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Meta is the payload header.
type Meta struct {
	EstimatedTokens int  `json:"estimated_tokens"`
	MaxTokens       int  `json:"max_tokens"`
	Truncated       bool `json:"truncated"`
	PriorityCount   int  `json:"priority_count"`
	RelatedCount    int  `json:"related_count"`
	UnrelatedCount  int  `json:"unrelated_count"`
	Dropped         int  `json:"dropped"`
}

// Payload is the bounded context handed to a model. Unrelated entries are
// only ever present as a summary.
type Payload struct {
	Priority         []Entry         `json:"priority"`
	Related          []Entry         `json:"related"`
	UnrelatedSummary string          `json:"unrelated_summary,omitempty"`
	UnrelatedCounts  []CategoryCount `json:"unrelated_counts,omitempty"`
	Meta             Meta            `json:"meta"`
}

// Entries returns priority entries followed by related entries.
func (p *Payload) Entries() []Entry {
	out := make([]Entry, 0, len(p.Priority)+len(p.Related))
	out = append(out, p.Priority...)
	return append(out, p.Related...)
}

// Builder accumulates entries into relevance buckets.
type Builder struct {
	maxTokens int
	scorer    *classify.Scorer

	priority  []Entry
	related   []Entry
	unrelated []Entry
	tokens    int
}

// NewBuilder creates a Builder with a token budget and optional free-text
// user context used for relevance scoring.
func NewBuilder(maxTokens int, userContext string) *Builder {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Builder{
		maxTokens: maxTokens,
		scorer:    classify.NewScorer(userContext),
	}
}

// Add classifies and scores e, which sits at position among total entries,
// and files it into a bucket.
func (b *Builder) Add(e config.LogEntry, position, total int) Entry {
	c := classify.Classify(e.Message)
	score := b.scorer.Score(e, c, position, total)
	entry := Entry{
		LogEntry:       e,
		Classification: c,
		Score:          score,
		Bucket:         classify.BucketFor(score),
		Position:       position,
		Tokens:         EntryTokens(e),
	}

	switch entry.Bucket {
	case classify.BucketPriority:
		b.priority = append(b.priority, entry)
		b.tokens += entry.Tokens
	case classify.BucketRelated:
		b.related = append(b.related, entry)
		b.tokens += entry.Tokens
	default:
		b.unrelated = append(b.unrelated, entry)
	}
	return entry
}

// AddAll adds entries in order.
func (b *Builder) AddAll(entries []config.LogEntry) {
	for i, e := range entries {
		b.Add(e, i, len(entries))
	}
}

// Tokens is the running estimate for everything that could be sent verbatim.
func (b *Builder) Tokens() int {
	return b.tokens
}

// Build assembles the payload: every priority entry in insertion order, then
// related entries by descending score while budget remains, then a summary
// of unrelated entries. When priority entries alone exceed the budget the
// lowest scoring ones are dropped.
func (b *Builder) Build() *Payload {
	p := &Payload{Meta: Meta{MaxTokens: b.maxTokens}}

	counts := categoryCounts(b.unrelated)
	summary := summarize(len(b.unrelated), counts)
	summaryTokens := EstimateTokens(summary)
	if summaryTokens > b.maxTokens {
		summary = fmt.Sprintf("%d lower-relevance entries omitted.", len(b.unrelated))
		summaryTokens = EstimateTokens(summary)
		if summaryTokens > b.maxTokens {
			summary, summaryTokens = "", 0
		}
	}
	budget := b.maxTokens - summaryTokens

	priority, used, dropped := fitPriority(b.priority, budget)
	p.Priority = priority
	p.Meta.Dropped += dropped

	related := make([]Entry, len(b.related))
	copy(related, b.related)
	sort.SliceStable(related, func(i, j int) bool {
		return related[i].Score > related[j].Score
	})
	for _, e := range related {
		if used+e.Tokens > budget {
			p.Meta.Dropped++
			continue
		}
		p.Related = append(p.Related, e)
		used += e.Tokens
	}

	p.UnrelatedSummary = summary
	p.UnrelatedCounts = counts
	p.Meta.EstimatedTokens = used + summaryTokens
	p.Meta.PriorityCount = len(p.Priority)
	p.Meta.RelatedCount = len(p.Related)
	p.Meta.UnrelatedCount = len(b.unrelated)
	p.Meta.Truncated = p.Meta.Dropped > 0
	return p
}

// fitPriority keeps priority entries in order, dropping the lowest scoring
// (latest first on ties) until the rest fit budget.
func fitPriority(entries []Entry, budget int) ([]Entry, int, int) {
	total := 0
	for _, e := range entries {
		total += e.Tokens
	}
	if total <= budget {
		out := make([]Entry, len(entries))
		copy(out, entries)
		return out, total, 0
	}

	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ea, eb := entries[order[a]], entries[order[b]]
		if ea.Score != eb.Score {
			return ea.Score < eb.Score
		}
		return order[a] > order[b]
	})

	drop := make(map[int]bool)
	for _, idx := range order {
		if total <= budget {
			break
		}
		drop[idx] = true
		total -= entries[idx].Tokens
	}

	out := make([]Entry, 0, len(entries)-len(drop))
	for i, e := range entries {
		if !drop[i] {
			out = append(out, e)
		}
	}
	return out, total, len(drop)
}

func categoryCounts(entries []Entry) []CategoryCount {
	var counts []CategoryCount
	index := make(map[string]int)
	for _, e := range entries {
		label := e.Classification.Label()
		if i, ok := index[label]; ok {
			counts[i].Count++
			continue
		}
		index[label] = len(counts)
		counts = append(counts, CategoryCount{Label: label, Count: 1})
	}
	return counts
}

func summarize(n int, counts []CategoryCount) string {
	if n == 0 {
		return ""
	}
	parts := make([]string, len(counts))
	for i, c := range counts {
		parts[i] = fmt.Sprintf("%s (%d)", c.Label, c.Count)
	}
	return fmt.Sprintf("%d lower-relevance entries omitted: %s.", n, strings.Join(parts, ", "))
}
