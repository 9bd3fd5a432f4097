package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bimmerbailey/triage/internal/config"
)

// Provider is one remote chat model backend.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Name returns the provider name used for breaker keys and reports.
	Name() string

	// Model returns the model used when ChatOptions does not name one.
	Model() string

	// Chat sends messages and returns a complete response. Non-2xx
	// responses are returned as *HTTPError; transport failures wrap
	// ErrNetwork.
	Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error)
}

// Message represents a single message in a conversation.
type Message struct {
	// Role identifies the message sender: "system", "user", or "assistant"
	Role string

	// Content is the message text
	Content string
}

// ChatOptions configures chat behavior.
// All fields are optional; nil opts uses provider defaults.
type ChatOptions struct {
	// Model overrides the provider's default model
	Model string

	// Temperature controls randomness; 0 keeps analysis reproducible
	Temperature float32

	// MaxTokens limits the response length (0 = provider default)
	MaxTokens int
}

// Response represents a complete LLM response.
type Response struct {
	Content      string
	Model        string
	TokensPrompt int
	TokensTotal  int
}

// Common errors returned by providers.
var (
	// ErrNetwork indicates the provider could not be reached
	ErrNetwork = errors.New("llm provider is not reachable")

	// ErrInvalidResponse indicates the provider returned an unusable response
	ErrInvalidResponse = errors.New("provider returned invalid response")

	// ErrUnknownProvider indicates a provider name outside the supported set
	ErrUnknownProvider = errors.New("unknown llm provider")

	// ErrMissingAPIKey indicates a hosted provider without credentials
	ErrMissingAPIKey = errors.New("api key not configured")
)

// HTTPError is a non-2xx response from a provider.
type HTTPError struct {
	StatusCode int
	Body       string        // first 512 bytes
	RetryAfter time.Duration // parsed Retry-After, zero if absent
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures NewProvider.
type Option func(*factoryOptions)

type factoryOptions struct {
	httpClient *http.Client
	apiKey     string
	model      string
}

// WithHTTPClient shares one connection-pooling client across providers.
func WithHTTPClient(c *http.Client) Option {
	return func(o *factoryOptions) {
		o.httpClient = c
	}
}

// WithAPIKey overrides the configured and environment API key.
func WithAPIKey(key string) Option {
	return func(o *factoryOptions) {
		o.apiKey = key
	}
}

// WithModel overrides the configured default model.
func WithModel(model string) Option {
	return func(o *factoryOptions) {
		o.model = model
	}
}

// NewProvider creates the provider selected by cfg.LLM.Provider.
func NewProvider(cfg *config.Config, logger *slog.Logger, opts ...Option) (Provider, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	o := factoryOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = NewHTTPClient()
	}

	name := strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	logger.Debug("creating llm provider", "type", name)

	switch name {
	case "openrouter", "openai":
		return newChatCompletionsProvider(name, cfg, o, logger)
	case "ollama":
		return newOllamaProvider(cfg, o, logger)
	case "":
		return nil, errors.New("llm provider not specified in configuration")
	default:
		return nil, fmt.Errorf("%w: %s (supported: %s)", ErrUnknownProvider, name, strings.Join(Supported(), ", "))
	}
}

// NewHTTPClient returns the pooled client shared by all provider calls.
// Request deadlines come from contexts rather than a client timeout.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        32,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}
