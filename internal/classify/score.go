package classify

import (
	"strings"

	"github.com/bimmerbailey/triage/internal/config"
)

// Signal weights. They deliberately sum above 1; Score clamps.
const (
	weightConfidence = 0.40
	weightCategory   = 0.30
	weightKeywords   = 0.20
	weightRecency    = 0.20
	weightLevel      = 0.30
	weightCluster    = 0.15
)

// Bucket thresholds.
const (
	PriorityThreshold = 0.7
	RelatedThreshold  = 0.4
)

// Bucket is the relevance tier an entry lands in.
type Bucket int

const (
	BucketUnrelated Bucket = iota
	BucketRelated
	BucketPriority
)

// String returns the bucket name.
func (b Bucket) String() string {
	switch b {
	case BucketPriority:
		return "priority"
	case BucketRelated:
		return "related"
	default:
		return "unrelated"
	}
}

// BucketFor maps a score to its bucket.
func BucketFor(score float64) Bucket {
	switch {
	case score >= PriorityThreshold:
		return BucketPriority
	case score >= RelatedThreshold:
		return BucketRelated
	default:
		return BucketUnrelated
	}
}

var levelKeywords = []struct {
	keyword string
	weight  float64
}{
	{"fatal", 1.0},
	{"error", 1.0},
	{"exception", 0.9},
	{"fail", 0.8},
	{"warn", 0.6},
	{"info", 0.3},
	{"debug", 0.1},
	{"trace", 0.1},
}

var clusterMarkers = []string{"caused by", "at ", "stack trace"}

// Scorer computes relevance scores against an optional user context.
type Scorer struct {
	contextWords []string
}

// NewScorer creates a Scorer. userContext is free text describing what the
// user is investigating; its words boost matching entries.
func NewScorer(userContext string) *Scorer {
	seen := make(map[string]struct{})
	var words []string
	for _, w := range strings.Fields(strings.ToLower(userContext)) {
		w = strings.Trim(w, ".,;:!?\"'()[]{}")
		if w == "" {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		words = append(words, w)
	}
	return &Scorer{contextWords: words}
}

// Score combines the classification, user context overlap, position, level
// keywords and stack trace markers into a value in [0,1]. position is the
// entry's index among total entries; earlier entries score higher.
func (s *Scorer) Score(entry config.LogEntry, c Classification, position, total int) float64 {
	text := strings.ToLower(entry.Level.String() + " " + entry.Message)

	score := weightConfidence*c.Confidence +
		weightCategory*c.Weight() +
		weightKeywords*s.keywordOverlap(text) +
		weightRecency*recency(position, total) +
		weightLevel*levelWeight(text) +
		weightCluster*clusterBonus(text)

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

func (s *Scorer) keywordOverlap(text string) float64 {
	if len(s.contextWords) == 0 {
		return 0
	}
	hits := 0
	for _, w := range s.contextWords {
		if strings.Contains(text, w) {
			hits++
		}
	}
	return float64(hits) / float64(len(s.contextWords))
}

func recency(position, total int) float64 {
	if total <= 0 {
		return 0
	}
	r := 1 - float64(position)/float64(total)
	if r < 0 {
		return 0
	}
	return r
}

func levelWeight(text string) float64 {
	for _, lk := range levelKeywords {
		if strings.Contains(text, lk.keyword) {
			return lk.weight
		}
	}
	return 0
}

func clusterBonus(text string) float64 {
	for _, m := range clusterMarkers {
		if strings.Contains(text, m) {
			return 1
		}
	}
	return 0
}
