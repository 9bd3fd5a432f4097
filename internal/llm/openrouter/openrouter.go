// Package openrouter is a client for OpenRouter-style chat completion
// endpoints. The same dialect is spoken by the OpenAI API.
//
// Note: To avoid import cycles, this package defines its own types. The
// parent llm package adapts them to the llm.Provider interface.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// maxErrorBody caps how much of a failed response body is kept.
const maxErrorBody = 512

// Config holds client settings.
type Config struct {
	// BaseURL is the API root, e.g. "https://openrouter.ai/api/v1"
	BaseURL string

	// APIKey is sent as a Bearer token
	APIKey string

	// Model is the default model
	Model string

	// Referer and Title identify the calling application to OpenRouter
	Referer string
	Title   string
}

// Message represents a single message in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatOptions configures a chat request.
type ChatOptions struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// Response represents a complete chat response.
type Response struct {
	Content      string
	Model        string
	TokensPrompt int
	TokensTotal  int
}

// APIError is a non-2xx response from the endpoint.
type APIError struct {
	StatusCode int
	Body       string // first 512 bytes
	RetryAfter string // Retry-After header, if any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// ErrInvalidResponse indicates a 2xx response that could not be used.
var ErrInvalidResponse = errors.New("provider returned invalid response")

// Client sends chat completion requests.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a client. httpClient is shared and may be nil to use
// http.DefaultClient.
func New(cfg Config, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("base url cannot be empty")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		config:     cfg,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Model returns the default model.
func (c *Client) Model() string {
	return c.config.Model
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float32   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

// Chat sends messages and returns the first choice. Transport failures are
// returned wrapped; non-2xx responses are returned as *APIError.
func (c *Client) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error) {
	if len(messages) == 0 {
		return nil, errors.New("messages cannot be empty")
	}

	body := chatRequest{Model: c.config.Model, Messages: messages}
	if opts != nil {
		if opts.Model != "" {
			body.Model = opts.Model
		}
		body.Temperature = opts.Temperature
		body.MaxTokens = opts.MaxTokens
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	if c.config.Referer != "" {
		req.Header.Set("HTTP-Referer", c.config.Referer)
	}
	if c.config.Title != "" {
		req.Header.Set("X-Title", c.config.Title)
	}

	c.logger.Debug("sending chat request", "model", body.Model, "messages", len(messages), "bytes", len(payload))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading chat response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := string(raw)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		c.logger.Debug("chat request rejected", "status", resp.StatusCode, "model", body.Model)
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Body:       text,
			RetryAfter: resp.Header.Get("Retry-After"),
		}
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidResponse, out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}

	model := out.Model
	if model == "" {
		model = body.Model
	}
	c.logger.Debug("chat request completed",
		"model", model,
		"prompt_tokens", out.Usage.PromptTokens,
		"total_tokens", out.Usage.TotalTokens)

	return &Response{
		Content:      out.Choices[0].Message.Content,
		Model:        model,
		TokensPrompt: out.Usage.PromptTokens,
		TokensTotal:  out.Usage.TotalTokens,
	}, nil
}
