package dispatch

import (
	"github.com/bimmerbailey/triage/internal/config"
	"github.com/bimmerbailey/triage/internal/payload"
)

// Strategy is how a slimmed entry sequence is sent to the model.
type Strategy int

const (
	StrategySingle Strategy = iota
	StrategyAggressiveSlimming
	StrategyChunked
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case StrategyAggressiveSlimming:
		return "aggressive_slimming"
	case StrategyChunked:
		return "chunked"
	default:
		return "single"
	}
}

// MarshalText encodes the strategy by name.
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SelectStrategy picks a strategy for count entries estimated at tokens.
// Inputs within both limits go out in one request; inputs up to twice the
// token budget are slimmed harder first; anything larger is chunked.
func SelectStrategy(count, tokens, threshold, maxTokens int) Strategy {
	switch {
	case count <= threshold && tokens <= maxTokens:
		return StrategySingle
	case tokens <= 2*maxTokens:
		return StrategyAggressiveSlimming
	default:
		return StrategyChunked
	}
}

// LogChunk is one independently analyzed slice of the entry sequence.
// ChunkID is 1-based.
type LogChunk struct {
	Entries         []config.LogEntry `json:"-"`
	ChunkID         int               `json:"chunk_id"`
	TotalChunks     int               `json:"total_chunks"`
	EstimatedTokens int               `json:"estimated_tokens"`
}

// ChunkEntries packs entries greedily into chunks of at most maxTokens
// estimated tokens. Order is kept and every entry lands in exactly one chunk.
// An entry larger than maxTokens on its own gets a chunk to itself.
func ChunkEntries(entries []config.LogEntry, maxTokens int) []LogChunk {
	if len(entries) == 0 {
		return nil
	}
	if maxTokens <= 0 {
		maxTokens = payload.DefaultMaxTokens
	}

	var chunks []LogChunk
	cur := LogChunk{ChunkID: 1}
	for _, e := range entries {
		t := payload.EntryTokens(e)
		if len(cur.Entries) > 0 && cur.EstimatedTokens+t > maxTokens {
			chunks = append(chunks, cur)
			cur = LogChunk{ChunkID: cur.ChunkID + 1}
		}
		cur.Entries = append(cur.Entries, e)
		cur.EstimatedTokens += t
	}
	chunks = append(chunks, cur)

	for i := range chunks {
		chunks[i].TotalChunks = len(chunks)
	}
	return chunks
}
