package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// SetDefaults registers every configuration key on v with the value from
// Default. Keys must be registered for TRIAGE_* environment overrides to
// reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("format", d.Format)
	v.SetDefault("verbose", d.Verbose)

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.openrouter.base_url", d.LLM.OpenRouter.BaseURL)
	v.SetDefault("llm.openrouter.api_key", "")
	v.SetDefault("llm.openrouter.model", d.LLM.OpenRouter.Model)
	v.SetDefault("llm.openrouter.referer", "")
	v.SetDefault("llm.openrouter.title", "")
	v.SetDefault("llm.openai.base_url", d.LLM.OpenAI.BaseURL)
	v.SetDefault("llm.openai.api_key", "")
	v.SetDefault("llm.openai.model", d.LLM.OpenAI.Model)
	v.SetDefault("llm.ollama.host", d.LLM.Ollama.Host)
	v.SetDefault("llm.ollama.model", d.LLM.Ollama.Model)

	p := d.Pipeline
	v.SetDefault("pipeline.max_lines", p.MaxLines)
	v.SetDefault("pipeline.streaming_threshold_bytes", p.StreamingThreshold)
	v.SetDefault("pipeline.min_level", p.MinLevel)
	v.SetDefault("pipeline.slim_mode", p.SlimMode)
	v.SetDefault("pipeline.chunking_threshold", p.ChunkingThreshold)
	v.SetDefault("pipeline.max_tokens_per_chunk", p.MaxTokensPerChunk)
	v.SetDefault("pipeline.max_context_entries", p.MaxContextEntries)
	v.SetDefault("pipeline.max_retries", p.MaxRetries)
	v.SetDefault("pipeline.retry_base_delay", p.RetryBaseDelay)
	v.SetDefault("pipeline.request_timeout", p.RequestTimeout)
	v.SetDefault("pipeline.timeout_seconds", p.TimeoutSeconds)

	v.SetDefault("breaker.failure_threshold", d.Breaker.FailureThreshold)
	v.SetDefault("breaker.success_threshold", d.Breaker.SuccessThreshold)
	v.SetDefault("breaker.reset_timeout", d.Breaker.ResetTimeout)

	v.SetDefault("redaction.enabled", d.Redaction.Enabled)
	v.SetDefault("redaction.patterns", []string{})

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.log_root", d.Server.LogRoot)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Load decodes the settings held by v into a Config.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}
