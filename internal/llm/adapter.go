package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bimmerbailey/triage/internal/llm/ollama"
	"github.com/bimmerbailey/triage/internal/llm/openrouter"
)

const maxErrorBody = 512

// chatCompletionsAdapter adapts an openrouter.Client to Provider.
type chatCompletionsAdapter struct {
	name   string
	client *openrouter.Client
}

func (a *chatCompletionsAdapter) Name() string  { return a.name }
func (a *chatCompletionsAdapter) Model() string { return a.client.Model() }

func (a *chatCompletionsAdapter) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error) {
	orMessages := make([]openrouter.Message, len(messages))
	for i, msg := range messages {
		orMessages[i] = openrouter.Message{Role: msg.Role, Content: msg.Content}
	}

	var orOpts *openrouter.ChatOptions
	if opts != nil {
		orOpts = &openrouter.ChatOptions{
			Model:       opts.Model,
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
		}
	}

	resp, err := a.client.Chat(ctx, orMessages, orOpts)
	if err != nil {
		var apiErr *openrouter.APIError
		if errors.As(err, &apiErr) {
			return nil, &HTTPError{
				StatusCode: apiErr.StatusCode,
				Body:       apiErr.Body,
				RetryAfter: parseRetryAfter(apiErr.RetryAfter),
			}
		}
		if errors.Is(err, openrouter.ErrInvalidResponse) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		return nil, wrapTransport(ctx, err)
	}

	return &Response{
		Content:      resp.Content,
		Model:        resp.Model,
		TokensPrompt: resp.TokensPrompt,
		TokensTotal:  resp.TokensTotal,
	}, nil
}

// ollamaAdapter adapts an ollama.Client to Provider.
type ollamaAdapter struct {
	client *ollama.Client
}

func (a *ollamaAdapter) Name() string  { return "ollama" }
func (a *ollamaAdapter) Model() string { return a.client.Model() }

func (a *ollamaAdapter) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error) {
	msgs := make([]ollama.Message, len(messages))
	for i, msg := range messages {
		msgs[i] = ollama.Message{Role: msg.Role, Content: msg.Content}
	}

	var o ollama.Options
	if opts != nil {
		o = ollama.Options{Model: opts.Model, Temperature: opts.Temperature, MaxTokens: opts.MaxTokens}
	}

	resp, err := a.client.Complete(ctx, msgs, o)
	if err != nil {
		var statusErr *ollama.StatusError
		switch {
		case errors.As(err, &statusErr):
			return nil, &HTTPError{StatusCode: statusErr.StatusCode, Body: truncateBody(statusErr.Message)}
		case errors.Is(err, ollama.ErrEmptyCompletion):
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		return nil, wrapTransport(ctx, err)
	}

	return &Response{
		Content:      resp.Content,
		Model:        resp.Model,
		TokensPrompt: resp.PromptTokens,
		TokensTotal:  resp.TotalTokens,
	}, nil
}

// wrapTransport leaves context errors intact so callers can tell a deadline
// from an unreachable host.
func wrapTransport(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, ErrNetwork) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrNetwork, err)
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func truncateBody(s string) string {
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}
