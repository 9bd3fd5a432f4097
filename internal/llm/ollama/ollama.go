// Package ollama sends analysis prompts to a local Ollama server.
//
// The package keeps its own message and error types so that it does not
// import llm; the llm package adapts a Client to llm.Provider.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "llama3.2"

var (
	// ErrUnreachable means the request never got an HTTP answer.
	ErrUnreachable = errors.New("ollama is not reachable")

	// ErrEmptyCompletion means the server answered without any content.
	ErrEmptyCompletion = errors.New("ollama returned an empty completion")
)

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ollama: status %d: %s", e.StatusCode, e.Message)
}

// Config selects the server and default model.
type Config struct {
	Host  string // empty uses OLLAMA_HOST or the library default
	Model string
}

// Message is one chat turn.
type Message struct {
	Role    string
	Content string
}

// Options override per-request settings. Zero values keep the defaults.
type Options struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// Completion is the final, non-streamed answer.
type Completion struct {
	Content      string
	Model        string
	PromptTokens int
	TotalTokens  int
	Truncated    bool // generation stopped at MaxTokens
}

// Client runs chat completions against one Ollama server.
type Client struct {
	api    *api.Client
	model  string
	logger *slog.Logger
}

// New creates a Client. httpClient may be nil.
func New(cfg Config, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		return nil, errors.New("ollama: logger cannot be nil")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	var c *api.Client
	if cfg.Host != "" {
		u, err := url.Parse(cfg.Host)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama host %q: %w", cfg.Host, err)
		}
		c = api.NewClient(u, httpClient)
	} else {
		var err error
		if c, err = api.ClientFromEnvironment(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Client{api: c, model: model, logger: logger}, nil
}

// Model returns the default model.
func (c *Client) Model() string {
	return c.model
}

// Complete sends messages and waits for the whole answer. Context errors
// are returned unchanged.
func (c *Client) Complete(ctx context.Context, messages []Message, opts Options) (*Completion, error) {
	if len(messages) == 0 {
		return nil, errors.New("ollama: no messages")
	}

	model := c.model
	if opts.Model != "" {
		model = opts.Model
	}
	req := &api.ChatRequest{
		Model:    model,
		Messages: make([]api.Message, len(messages)),
		Options:  map[string]interface{}{"temperature": opts.Temperature},
		Stream:   new(bool),
	}
	for i, m := range messages {
		req.Messages[i] = api.Message{Role: m.Role, Content: m.Content}
	}
	if opts.MaxTokens > 0 {
		req.Options["num_predict"] = opts.MaxTokens
	}

	var last api.ChatResponse
	err := c.api.Chat(ctx, req, func(resp api.ChatResponse) error {
		last = resp
		return nil
	})
	if err != nil {
		return nil, c.classify(ctx, model, err)
	}

	content := strings.TrimSpace(last.Message.Content)
	if content == "" {
		return nil, fmt.Errorf("%w (model %s)", ErrEmptyCompletion, model)
	}

	out := &Completion{
		Content:      content,
		Model:        last.Model,
		PromptTokens: last.PromptEvalCount,
		TotalTokens:  last.PromptEvalCount + last.EvalCount,
		Truncated:    last.DoneReason == "length",
	}
	if out.Truncated {
		c.logger.Warn("ollama completion hit the token limit", "model", model, "max_tokens", opts.MaxTokens)
	}
	c.logger.Debug("ollama completion received", "model", out.Model, "total_tokens", out.TotalTokens)
	return out, nil
}

func (c *Client) classify(ctx context.Context, model string, err error) error {
	if ctx.Err() != nil {
		return err
	}
	var se api.StatusError
	if errors.As(err, &se) {
		msg := se.ErrorMessage
		if msg == "" {
			msg = se.Status
		}
		c.logger.Debug("ollama rejected request", "model", model, "status", se.StatusCode)
		return &StatusError{StatusCode: se.StatusCode, Message: msg}
	}
	return fmt.Errorf("%w: %w", ErrUnreachable, err)
}
