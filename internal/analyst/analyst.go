// Package analyst sends one context payload to a model and turns the answer
// into a structured analysis response. It owns the retry policy and runs
// every request behind the provider's circuit breaker.
package analyst

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bimmerbailey/triage/internal/breaker"
	"github.com/bimmerbailey/triage/internal/llm"
	"github.com/bimmerbailey/triage/internal/payload"
	"github.com/bimmerbailey/triage/internal/prompt"
	"github.com/bimmerbailey/triage/internal/report"
)

// Defaults for the retry policy.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
	MaxRetryDelay     = 60 * time.Second
)

// Request is one payload to analyze.
type Request struct {
	Payload     *payload.Payload
	FilePath    string
	UserContext string
	TimeRange   string

	// Chunk and TotalChunks are 1-based; zero means the whole log.
	Chunk       int
	TotalChunks int
}

// Analyst runs analysis requests against one provider.
type Analyst struct {
	provider          llm.Provider
	breakers          *breaker.Registry
	breakerConfig     breaker.Config
	maxRetries        int
	baseDelay         time.Duration
	maxContextEntries int
	chatOptions       llm.ChatOptions
	logger            *slog.Logger
	sleep             func(context.Context, time.Duration) error
}

// Option configures an Analyst.
type Option func(*Analyst)

// WithBreakers runs requests behind the registry's breaker for the provider,
// created with cfg on first use.
func WithBreakers(r *breaker.Registry, cfg breaker.Config) Option {
	return func(a *Analyst) {
		a.breakers = r
		a.breakerConfig = cfg
	}
}

// WithMaxRetries sets how many times a retryable failure is retried.
func WithMaxRetries(n int) Option {
	return func(a *Analyst) {
		if n >= 0 {
			a.maxRetries = n
		}
	}
}

// WithBaseDelay sets the first backoff delay; later delays double.
func WithBaseDelay(d time.Duration) Option {
	return func(a *Analyst) {
		if d >= 0 {
			a.baseDelay = d
		}
	}
}

// WithMaxContextEntries caps the entries rendered into one prompt.
func WithMaxContextEntries(n int) Option {
	return func(a *Analyst) {
		if n > 0 {
			a.maxContextEntries = n
		}
	}
}

// WithChatOptions sets model, temperature and response length.
func WithChatOptions(opts llm.ChatOptions) Option {
	return func(a *Analyst) {
		a.chatOptions = opts
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyst) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an Analyst for provider.
func New(provider llm.Provider, opts ...Option) *Analyst {
	a := &Analyst{
		provider:          provider,
		breakerConfig:     breaker.DefaultConfig(),
		maxRetries:        DefaultMaxRetries,
		baseDelay:         DefaultBaseDelay,
		maxContextEntries: DefaultMaxContextEntries,
		logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		sleep:             sleepContext,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Provider returns the provider name.
func (a *Analyst) Provider() string {
	return a.provider.Name()
}

// Model returns the model requests are sent to.
func (a *Analyst) Model() string {
	if a.chatOptions.Model != "" {
		return a.chatOptions.Model
	}
	return a.provider.Model()
}

// Analyze renders req into a prompt, sends it and parses the answer. It never
// returns a partial response: either a complete AnalysisResponse or an
// *report.AnalysisError.
func (a *Analyst) Analyze(ctx context.Context, req Request) (*report.AnalysisResponse, error) {
	if req.Payload == nil {
		return nil, report.Errorf(report.KindInvalidInput, "nil payload")
	}

	all := req.Payload.Entries()
	selected := SelectEntries(all, a.maxContextEntries)

	pt := prompt.TypeAnalysis
	if req.TotalChunks > 1 {
		pt = prompt.TypeChunkAnalysis
	}
	messages, err := prompt.Build(pt, prompt.BuildOptions{
		Entries:          selected,
		UnrelatedSummary: req.Payload.UnrelatedSummary,
		FilePath:         req.FilePath,
		UserContext:      req.UserContext,
		TimeRange:        req.TimeRange,
		Omitted:          len(all) - len(selected) + req.Payload.Meta.Dropped,
		Chunk:            req.Chunk,
		TotalChunks:      req.TotalChunks,
	})
	if err != nil {
		return nil, report.Wrap(report.KindNoMatchingEntries, err)
	}

	var resp *llm.Response
	call := func(ctx context.Context) error {
		var err error
		resp, err = a.chatWithRetry(ctx, messages)
		return err
	}

	if a.breakers != nil {
		b := a.breakers.Get(breaker.Key(a.provider.Name()), a.breakerConfig)
		err = b.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, a.classify(err)
	}

	out := BuildResponse(resp.Content, req.Payload)
	out.Model = resp.Model
	if out.Model == "" {
		out.Model = a.Model()
	}
	a.logger.Info("analysis received",
		"provider", a.provider.Name(),
		"model", out.Model,
		"chunk", req.Chunk,
		"entries", len(selected),
		"prompt_tokens", resp.TokensPrompt,
		"total_tokens", resp.TokensTotal)
	return out, nil
}

// chatWithRetry retries rate limits, server errors and network failures up
// to maxRetries times. Fatal errors return immediately.
func (a *Analyst) chatWithRetry(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
	opts := a.chatOptions
	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			wait := backoffDelay(attempt, a.baseDelay, lastErr)
			a.logger.Warn("retrying llm request",
				"provider", a.provider.Name(),
				"attempt", attempt,
				"wait", wait,
				"error", lastErr)
			if err := a.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		resp, err := a.provider.Chat(ctx, messages, &opts)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil || !KindForError(err).Retryable() {
			return nil, err
		}
	}
	return nil, lastErr
}

// classify converts a provider, breaker or context error to an
// *report.AnalysisError carrying the provider name.
func (a *Analyst) classify(err error) error {
	var ae *report.AnalysisError
	if errors.As(err, &ae) {
		return err
	}
	return &report.AnalysisError{Kind: KindForError(err), Provider: a.provider.Name(), Err: err}
}

// KindForError maps a transport, breaker or context error to its kind.
func KindForError(err error) report.ErrorKind {
	var httpErr *llm.HTTPError
	switch {
	case errors.Is(err, breaker.ErrOpen):
		return report.KindCircuitOpen
	case errors.Is(err, breaker.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return report.KindTimeout
	case errors.As(err, &httpErr):
		return KindForStatus(httpErr.StatusCode)
	case errors.Is(err, llm.ErrNetwork):
		return report.KindNetwork
	case errors.Is(err, llm.ErrInvalidResponse):
		return report.KindSerializationError
	}
	return report.KindInternal
}

// KindForStatus maps an HTTP status to its kind.
func KindForStatus(status int) report.ErrorKind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return report.KindProviderAuth
	case status == http.StatusTooManyRequests:
		return report.KindProviderRateLimit
	case status == http.StatusRequestTimeout:
		return report.KindTimeout
	case status >= 500:
		return report.KindProviderServer
	default:
		return report.KindProviderBadRequest
	}
}

// backoffDelay returns the wait before a retry attempt: the server's
// Retry-After when given, otherwise base doubled per attempt. Both are capped
// at MaxRetryDelay.
func backoffDelay(attempt int, base time.Duration, lastErr error) time.Duration {
	var httpErr *llm.HTTPError
	if errors.As(lastErr, &httpErr) && httpErr.RetryAfter > 0 {
		return min(httpErr.RetryAfter, MaxRetryDelay)
	}
	return min(base*time.Duration(1<<(attempt-1)), MaxRetryDelay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

