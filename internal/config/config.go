// Package config provides configuration types and the core log data model
// shared by every pipeline stage.
package config

import (
	"encoding/json"
	"strings"
	"time"
)

// Config holds the application-wide configuration.
type Config struct {
	Format    string          `mapstructure:"format"`
	Verbose   bool            `mapstructure:"verbose"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Redaction RedactionConfig `mapstructure:"redaction"`
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Log       LogConfig       `mapstructure:"log"`
}

// LLMConfig holds configuration for LLM providers.
type LLMConfig struct {
	// Provider selects which backend to use: "openrouter", "openai", "ollama"
	Provider string `mapstructure:"provider"`

	// Global settings applied to all providers
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`

	OpenRouter OpenRouterConfig `mapstructure:"openrouter"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Ollama     OllamaConfig     `mapstructure:"ollama"`
}

// OpenRouterConfig holds settings for OpenRouter-style chat completion endpoints.
type OpenRouterConfig struct {
	BaseURL string `mapstructure:"base_url"` // e.g. https://openrouter.ai/api/v1
	APIKey  string `mapstructure:"api_key"`  // Optional: read from OPENROUTER_API_KEY if empty
	Model   string `mapstructure:"model"`
	Referer string `mapstructure:"referer"` // sent as HTTP-Referer
	Title   string `mapstructure:"title"`   // sent as X-Title
}

// OpenAIConfig holds OpenAI-specific settings. The OpenAI API speaks the same
// chat completions dialect as OpenRouter.
type OpenAIConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"` // Optional: read from OPENAI_API_KEY if empty
	Model   string `mapstructure:"model"`
}

// OllamaConfig holds Ollama-specific settings.
type OllamaConfig struct {
	Host  string `mapstructure:"host"`  // API endpoint
	Model string `mapstructure:"model"` // Default model name
}

// PipelineConfig holds the knobs of the log-to-insight pipeline.
type PipelineConfig struct {
	MaxLines           int           `mapstructure:"max_lines"`
	StreamingThreshold int64         `mapstructure:"streaming_threshold_bytes"`
	MinLevel           string        `mapstructure:"min_level"`
	SlimMode           string        `mapstructure:"slim_mode"`
	ChunkingThreshold  int           `mapstructure:"chunking_threshold"`
	MaxTokensPerChunk  int           `mapstructure:"max_tokens_per_chunk"`
	MaxContextEntries  int           `mapstructure:"max_context_entries"`
	MaxRetries         int           `mapstructure:"max_retries"`
	RetryBaseDelay     time.Duration `mapstructure:"retry_base_delay"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	TimeoutSeconds     int           `mapstructure:"timeout_seconds"`
}

// BreakerConfig holds circuit breaker thresholds applied per provider.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	ResetTimeout     time.Duration `mapstructure:"reset_timeout"`
}

// RedactionConfig holds configuration for secret redaction in preprocessing.
type RedactionConfig struct {
	// Enabled controls whether redaction is active
	Enabled bool `mapstructure:"enabled"`

	// Patterns specifies which redaction patterns to use
	// Available: ipv4, email, api_key, aws_key, jwt, private_key, uuid
	Patterns []string `mapstructure:"patterns"`
}

// ServerConfig holds settings for the HTTP API.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`

	// LogRoot confines requested files to this directory. Empty allows any
	// path the process can read.
	LogRoot string `mapstructure:"log_root"`
}

// StoreConfig holds settings for optional report persistence.
type StoreConfig struct {
	// DSN is a Postgres connection string. Empty disables persistence.
	DSN string `mapstructure:"dsn"`
}

// LogConfig controls the diagnostic logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

// Pipeline defaults.
const (
	DefaultMaxLines           = 10000
	DefaultStreamingThreshold = 10 << 20
	DefaultChunkingThreshold  = 1000
	DefaultMaxTokensPerChunk  = 8000
	DefaultMaxContextEntries  = 100
	DefaultMaxRetries         = 3
	DefaultTimeoutSeconds     = 300
	MinTimeoutSeconds         = 60
	MaxTimeoutSeconds         = 1800
	DefaultRequestTimeout     = 120 * time.Second
)

// Default returns a Config populated with the built-in defaults. It mirrors
// the viper defaults registered by the CLI.
func Default() Config {
	return Config{
		Format: "text",
		LLM: LLMConfig{
			Provider: "openrouter",
			OpenRouter: OpenRouterConfig{
				BaseURL: "https://openrouter.ai/api/v1",
				Model:   "anthropic/claude-3.5-sonnet",
			},
			OpenAI: OpenAIConfig{
				BaseURL: "https://api.openai.com/v1",
				Model:   "gpt-4o-mini",
			},
			Ollama: OllamaConfig{
				Host:  "http://localhost:11434",
				Model: "llama3.2",
			},
		},
		Pipeline: PipelineConfig{
			MaxLines:           DefaultMaxLines,
			StreamingThreshold: DefaultStreamingThreshold,
			MinLevel:           "info",
			SlimMode:           "light",
			ChunkingThreshold:  DefaultChunkingThreshold,
			MaxTokensPerChunk:  DefaultMaxTokensPerChunk,
			MaxContextEntries:  DefaultMaxContextEntries,
			MaxRetries:         DefaultMaxRetries,
			RetryBaseDelay:     time.Second,
			RequestTimeout:     DefaultRequestTimeout,
			TimeoutSeconds:     DefaultTimeoutSeconds,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 3,
			SuccessThreshold: 2,
			ResetTimeout:     120 * time.Second,
		},
		Server: ServerConfig{Addr: ":8080"},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// ClampTimeout bounds a pipeline timeout in seconds to the supported range.
// Zero or negative selects the default.
func ClampTimeout(seconds int) time.Duration {
	switch {
	case seconds <= 0:
		seconds = DefaultTimeoutSeconds
	case seconds < MinTimeoutSeconds:
		seconds = MinTimeoutSeconds
	case seconds > MaxTimeoutSeconds:
		seconds = MaxTimeoutSeconds
	}
	return time.Duration(seconds) * time.Second
}

// LogLevel represents a log severity level.
//
// LevelNone marks a continuation line (stack frame, multi-line payload) that
// belongs to the nearest preceding leveled entry. LevelSummary is only
// produced by the slimmer for synthetic roll-up entries.
type LogLevel int

const (
	LevelNone LogLevel = iota
	LevelTrace
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
	LevelSummary
)

// String returns the string representation of a LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	case LevelSummary:
		return "SUMMARY"
	default:
		return "NONE"
	}
}

// IsError reports whether the level is ERROR or FATAL.
func (l LogLevel) IsError() bool {
	return l == LevelError || l == LevelFatal
}

// MarshalJSON implements json.Marshaler for LogLevel. Continuation lines
// encode as null.
func (l LogLevel) MarshalJSON() ([]byte, error) {
	if l == LevelNone {
		return []byte("null"), nil
	}
	return json.Marshal(l.String())
}

// UnmarshalJSON implements json.Unmarshaler for LogLevel.
func (l *LogLevel) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = LevelNone
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*l = ParseLevel(s)
	return nil
}

// MarshalYAML renders the level by name.
func (l LogLevel) MarshalYAML() (interface{}, error) {
	if l == LevelNone {
		return nil, nil
	}
	return l.String(), nil
}

// ParseLevel converts a string to a LogLevel. Unrecognized input yields
// LevelNone.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "trc":
		return LevelTrace
	case "debug", "dbg":
		return LevelDebug
	case "info", "inf", "information", "notice":
		return LevelInfo
	case "warn", "warning", "wrn":
		return LevelWarn
	case "error", "err":
		return LevelError
	case "fatal", "critical", "crit", "panic", "emerg", "alert":
		return LevelFatal
	case "summary":
		return LevelSummary
	default:
		return LevelNone
	}
}

// LogEntry represents a single parsed log line.
//
// Timestamp is kept as the text found in the line; it is only interpreted
// into an instant (see ParseTimestamp) when a consumer needs ordering.
type LogEntry struct {
	Timestamp string   `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Level     LogLevel `json:"level" yaml:"level"`
	Message   string   `json:"message" yaml:"message"`
	Line      int      `json:"line" yaml:"line"`
	Raw       string   `json:"raw,omitempty" yaml:"-"`
}

// IsContinuation reports whether the entry has no level of its own.
func (e LogEntry) IsContinuation() bool {
	return e.Level == LevelNone
}
