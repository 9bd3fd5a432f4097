// Package dispatch decides how a slimmed entry sequence reaches the model,
// runs the requests and merges chunked answers into one response.
package dispatch

import (
	"context"
	"io"
	"log/slog"

	"github.com/bimmerbailey/triage/internal/analyst"
	"github.com/bimmerbailey/triage/internal/config"
	"github.com/bimmerbailey/triage/internal/payload"
	"github.com/bimmerbailey/triage/internal/preprocess"
	"github.com/bimmerbailey/triage/internal/report"
)

// Analyzer sends one payload to a model. *analyst.Analyst implements it.
type Analyzer interface {
	Analyze(ctx context.Context, req analyst.Request) (*report.AnalysisResponse, error)
}

// Request is one dispatch.
type Request struct {
	Entries     []config.LogEntry
	Mode        preprocess.Mode // mode the entries were already slimmed with
	FilePath    string
	UserContext string
}

// Result is the merged response and what it took to get it.
type Result struct {
	Response *report.AnalysisResponse
	Strategy Strategy
	Chunks   int
	Mode     preprocess.Mode // final slimming mode
	Entries  int             // entries dispatched after any re-slim

	EstimatedTokens int
	PriorityEntries int
	RelatedEntries  int
	Unrelated       int
	Truncated       bool
}

// Dispatcher runs analysis requests with a chosen strategy.
type Dispatcher struct {
	analyzer          Analyzer
	chunkingThreshold int
	maxTokens         int
	logger            *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithChunkingThreshold sets the entry count above which a single request
// is not attempted.
func WithChunkingThreshold(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.chunkingThreshold = n
		}
	}
}

// WithMaxTokensPerChunk sets the token budget of one request.
func WithMaxTokensPerChunk(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxTokens = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New creates a Dispatcher around a.
func New(a Analyzer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		analyzer:          a,
		chunkingThreshold: config.DefaultChunkingThreshold,
		maxTokens:         config.DefaultMaxTokensPerChunk,
		logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch analyzes req.Entries. Chunks run one after another in order and
// the first failed chunk fails the whole dispatch.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	if len(req.Entries) == 0 {
		return nil, report.Errorf(report.KindNoMatchingEntries, "no entries to analyze")
	}

	entries := req.Entries
	tokens := payload.EntriesTokens(entries)
	strategy := SelectStrategy(len(entries), tokens, d.chunkingThreshold, d.maxTokens)
	res := &Result{Strategy: strategy, Mode: req.Mode}

	d.logger.Info("dispatch strategy selected",
		"strategy", strategy,
		"entries", len(entries),
		"estimated_tokens", tokens,
		"max_tokens", d.maxTokens)

	if strategy == StrategyAggressiveSlimming {
		res.Mode = req.Mode.Stronger()
		entries = preprocess.Slim(entries, res.Mode)
		d.logger.Info("re-slimmed before single request",
			"mode", res.Mode,
			"entries", len(entries),
			"estimated_tokens", payload.EntriesTokens(entries))
	}

	var chunks []LogChunk
	if strategy == StrategyChunked {
		chunks = ChunkEntries(entries, d.maxTokens)
	} else {
		chunks = []LogChunk{{
			Entries:         entries,
			ChunkID:         1,
			TotalChunks:     1,
			EstimatedTokens: payload.EntriesTokens(entries),
		}}
	}
	res.Chunks = len(chunks)
	res.Entries = len(entries)

	responses := make([]*report.AnalysisResponse, 0, len(chunks))
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, report.Wrap(analyst.KindForError(err), err)
		}

		p := d.buildPayload(chunk.Entries, req.UserContext)
		res.EstimatedTokens += p.Meta.EstimatedTokens
		res.PriorityEntries += p.Meta.PriorityCount
		res.RelatedEntries += p.Meta.RelatedCount
		res.Unrelated += p.Meta.UnrelatedCount
		res.Truncated = res.Truncated || p.Meta.Truncated

		ar := analyst.Request{
			Payload:     p,
			FilePath:    req.FilePath,
			UserContext: req.UserContext,
			TimeRange:   timeRange(chunk.Entries),
		}
		if len(chunks) > 1 {
			ar.Chunk = chunk.ChunkID
			ar.TotalChunks = chunk.TotalChunks
		}

		resp, err := d.analyzer.Analyze(ctx, ar)
		if err != nil {
			d.logger.Error("chunk analysis failed",
				"chunk", chunk.ChunkID,
				"total_chunks", chunk.TotalChunks,
				"error", err)
			return nil, err
		}
		d.logger.Debug("chunk analyzed",
			"chunk", chunk.ChunkID,
			"total_chunks", chunk.TotalChunks,
			"estimated_tokens", p.Meta.EstimatedTokens,
			"confidence", resp.Confidence)
		responses = append(responses, resp)
	}

	res.Response = Synthesize(responses)
	d.logger.Info("dispatch complete",
		"strategy", strategy,
		"chunks", res.Chunks,
		"confidence", res.Response.Confidence)
	return res, nil
}

func (d *Dispatcher) buildPayload(entries []config.LogEntry, userContext string) *payload.Payload {
	b := payload.NewBuilder(d.maxTokens, userContext)
	b.AddAll(entries)
	return b.Build()
}

// timeRange is "first to last" over the entries' raw timestamps.
func timeRange(entries []config.LogEntry) string {
	var first, last string
	for _, e := range entries {
		if e.Timestamp == "" {
			continue
		}
		if first == "" {
			first = e.Timestamp
		}
		last = e.Timestamp
	}
	switch {
	case first == "":
		return ""
	case first == last:
		return first
	}
	return first + " to " + last
}
