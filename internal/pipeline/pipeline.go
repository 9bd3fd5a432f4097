// Package pipeline runs one log file through every stage: decode, parse,
// level filter, slim, dispatch to the model and analytics. It is the single
// entry point shared by the CLI and the HTTP server.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bimmerbailey/triage/internal/analyst"
	"github.com/bimmerbailey/triage/internal/analyzer"
	"github.com/bimmerbailey/triage/internal/breaker"
	"github.com/bimmerbailey/triage/internal/config"
	"github.com/bimmerbailey/triage/internal/decode"
	"github.com/bimmerbailey/triage/internal/dispatch"
	"github.com/bimmerbailey/triage/internal/filter"
	"github.com/bimmerbailey/triage/internal/llm"
	"github.com/bimmerbailey/triage/internal/parser"
	"github.com/bimmerbailey/triage/internal/preprocess"
	"github.com/bimmerbailey/triage/internal/report"
)

// Request is one analysis. Empty fields fall back to the configuration.
type Request struct {
	FilePath       string
	MinLevel       string
	Provider       string
	APIKey         string
	Model          string
	UserContext    string
	TimeoutSeconds int
	Mode           string
	Window         time.Duration
}

// Pipeline runs analyses. It is safe for concurrent use; runs share only the
// breaker registry and the HTTP client.
type Pipeline struct {
	cfg        config.Config
	breakers   *breaker.Registry
	fs         FS
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithFS sets the filesystem logs are read from.
func WithFS(fsys FS) Option {
	return func(p *Pipeline) {
		if fsys != nil {
			p.fs = fsys
		}
	}
}

// WithHTTPClient sets the client used for every provider call.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a Pipeline. A nil registry gets a private one.
func New(cfg config.Config, breakers *breaker.Registry, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		breakers: breakers,
		fs:       OSFS{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.breakers == nil {
		p.breakers = breaker.NewRegistry(breaker.WithLogger(p.logger))
	}
	if p.httpClient == nil {
		p.httpClient = llm.NewHTTPClient()
	}
	return p
}

// Breakers returns the shared breaker registry.
func (p *Pipeline) Breakers() *breaker.Registry {
	return p.breakers
}

// Analyze runs req under its timeout. Failures are *report.AnalysisError;
// partial results are never returned.
func (p *Pipeline) Analyze(ctx context.Context, req Request) (*report.AnalysisReport, error) {
	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID)

	seconds := req.TimeoutSeconds
	if seconds == 0 {
		seconds = p.cfg.Pipeline.TimeoutSeconds
	}
	timeout := config.ClampTimeout(seconds)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := p.now()
	logger.Info("analysis started", "file", req.FilePath, "timeout", timeout)

	rep, err := p.run(ctx, runID, req, logger)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && report.KindOf(err) != report.KindTimeout {
			err = &report.AnalysisError{Kind: report.KindTimeout, Err: fmt.Errorf("analysis exceeded %s: %w", timeout, err)}
		}
		logger.Error("analysis failed",
			"kind", report.KindOf(err),
			"error", dispatch.ErrorText(err),
			"duration", p.now().Sub(start))
		return nil, err
	}

	rep.CreatedAt = start.UTC()
	rep.DurationMS = p.now().Sub(start).Milliseconds()
	logger.Info("analysis complete",
		"strategy", rep.Strategy,
		"chunks", rep.Chunks,
		"confidence", rep.Confidence,
		"duration_ms", rep.DurationMS)
	return rep, nil
}

func (p *Pipeline) run(ctx context.Context, runID string, req Request, logger *slog.Logger) (*report.AnalysisReport, error) {
	cfg := p.cfg

	if strings.TrimSpace(req.FilePath) == "" {
		return nil, report.Errorf(report.KindInvalidInput, "file path is required")
	}
	minLevel, err := resolveLevel(req.MinLevel, cfg.Pipeline.MinLevel)
	if err != nil {
		return nil, report.Wrap(report.KindInvalidInput, err)
	}
	modeName := req.Mode
	if modeName == "" {
		modeName = cfg.Pipeline.SlimMode
	}
	mode, err := preprocess.ParseMode(modeName)
	if err != nil {
		return nil, report.Wrap(report.KindInvalidInput, err)
	}
	slimmer, err := p.preprocessor(mode)
	if err != nil {
		return nil, report.Wrap(report.KindInvalidInput, err)
	}

	provider, err := p.provider(req, logger)
	if err != nil {
		return nil, err
	}

	dec, err := p.decode(req.FilePath, logger)
	if err != nil {
		return nil, err
	}

	entries := parser.New().ParseLines(dec.Lines)
	filtered := filter.ByLevel(entries, minLevel)
	logger.Info("entries parsed",
		"lines", len(dec.Lines),
		"encoding", dec.Encoding,
		"parsed", len(entries),
		"filtered", len(filtered),
		"min_level", minLevel)
	if len(filtered) == 0 {
		return nil, report.Errorf(report.KindNoMatchingEntries, "no entries at or above %s in %s", minLevel, req.FilePath)
	}

	pre := slimmer.Process(filtered)
	logger.Debug("entries slimmed",
		"mode", pre.Stats.Mode,
		"input", pre.Stats.InputEntries,
		"output", pre.Stats.OutputEntries,
		"redacted", pre.Stats.RedactedCount)

	a := analyst.New(provider,
		analyst.WithBreakers(p.breakers, breaker.FromSettings(cfg.Breaker, cfg.Pipeline.RequestTimeout)),
		analyst.WithMaxRetries(cfg.Pipeline.MaxRetries),
		analyst.WithBaseDelay(cfg.Pipeline.RetryBaseDelay),
		analyst.WithMaxContextEntries(cfg.Pipeline.MaxContextEntries),
		analyst.WithChatOptions(llm.ChatOptions{
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
		}),
		analyst.WithLogger(logger),
	)
	d := dispatch.New(a,
		dispatch.WithChunkingThreshold(cfg.Pipeline.ChunkingThreshold),
		dispatch.WithMaxTokensPerChunk(cfg.Pipeline.MaxTokensPerChunk),
		dispatch.WithLogger(logger),
	)
	res, err := d.Dispatch(ctx, dispatch.Request{
		Entries:     pre.Entries,
		Mode:        mode,
		FilePath:    req.FilePath,
		UserContext: req.UserContext,
	})
	if err != nil {
		return nil, err
	}

	rep := &report.AnalysisReport{
		RunID:    runID,
		FilePath: req.FilePath,
		Provider: provider.Name(),
		Model:    a.Model(),
		Strategy: res.Strategy.String(),
		Chunks:   res.Chunks,
		Context: report.ContextStats{
			Encoding:        dec.Encoding,
			InputLines:      len(dec.Lines),
			LinesTruncated:  dec.Truncated,
			ParsedEntries:   len(entries),
			FilteredEntries: len(filtered),
			SlimmedEntries:  res.Entries,
			SlimMode:        res.Mode.String(),
			RedactedValues:  pre.Stats.RedactedCount,
			EstimatedTokens: res.EstimatedTokens,
			PriorityEntries: res.PriorityEntries,
			RelatedEntries:  res.RelatedEntries,
			Unrelated:       res.Unrelated,
			Truncated:       res.Truncated,
		},
		Analytics: analyzer.New().Enhance(entries, req.Window),
	}
	rep.ApplyResponse(res.Response)
	return rep, nil
}

// provider builds the model client for req, applying its overrides to a
// copy of the configuration.
func (p *Pipeline) provider(req Request, logger *slog.Logger) (llm.Provider, error) {
	cfg := p.cfg
	if req.Provider != "" {
		cfg.LLM.Provider = req.Provider
	}
	opts := []llm.Option{llm.WithHTTPClient(p.httpClient)}
	if req.APIKey != "" {
		opts = append(opts, llm.WithAPIKey(req.APIKey))
	}
	if req.Model != "" {
		opts = append(opts, llm.WithModel(req.Model))
	}

	provider, err := llm.NewProvider(&cfg, logger, opts...)
	switch {
	case err == nil:
		return provider, nil
	case errors.Is(err, llm.ErrMissingAPIKey):
		return nil, &report.AnalysisError{Kind: report.KindProviderAuth, Provider: cfg.LLM.Provider, Err: err}
	default:
		return nil, report.Wrap(report.KindInvalidInput, err)
	}
}

// decode reads path, streaming it when it is larger than the configured
// threshold.
func (p *Pipeline) decode(path string, logger *slog.Logger) (*decode.Result, error) {
	info, err := p.fs.Stat(path)
	if err != nil {
		return nil, report.Wrap(report.KindIoError, err)
	}
	if info.IsDir() {
		return nil, report.Errorf(report.KindInvalidInput, "%s is a directory", path)
	}

	dec := decode.New(p.cfg.Pipeline.MaxLines, logger)
	threshold := p.cfg.Pipeline.StreamingThreshold
	if threshold <= 0 {
		threshold = config.DefaultStreamingThreshold
	}

	var res *decode.Result
	if info.Size() > threshold {
		logger.Info("streaming large input", "size", info.Size(), "max_lines", dec.MaxLines())
		f, err := p.fs.Open(path)
		if err != nil {
			return nil, report.Wrap(report.KindIoError, err)
		}
		defer f.Close()
		res, err = dec.DecodeReader(f)
		if err != nil {
			return nil, report.Wrap(report.KindDecodeError, err)
		}
		return res, nil
	}

	data, err := p.fs.ReadFile(path)
	if err != nil {
		return nil, report.Wrap(report.KindIoError, err)
	}
	res, err = dec.Decode(data)
	if err != nil {
		return nil, report.Wrap(report.KindDecodeError, err)
	}
	return res, nil
}

func (p *Pipeline) preprocessor(mode preprocess.Mode) (*preprocess.Preprocessor, error) {
	opts := []preprocess.Option{preprocess.WithMode(mode)}
	if p.cfg.Redaction.Enabled {
		opts = append(opts, preprocess.WithRedaction(p.cfg.Redaction.Patterns))
	}
	return preprocess.New(opts...)
}

// resolveLevel parses the requested minimum level, falling back to def and
// then INFO.
func resolveLevel(requested, def string) (config.LogLevel, error) {
	s := requested
	if s == "" {
		s = def
	}
	if s == "" {
		return config.LevelInfo, nil
	}
	level := config.ParseLevel(s)
	if level == config.LevelNone || level == config.LevelSummary {
		return config.LevelNone, fmt.Errorf("unknown level %q", s)
	}
	return level, nil
}
