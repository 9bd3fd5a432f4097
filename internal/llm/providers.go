package llm

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/bimmerbailey/triage/internal/config"
	"github.com/bimmerbailey/triage/internal/llm/ollama"
	"github.com/bimmerbailey/triage/internal/llm/openrouter"
)

// endpoint describes a hosted chat completions backend.
type endpoint struct {
	baseURL string
	envKey  string
}

// endpoints is the name to endpoint table for hosted providers. Config may
// override the base URL.
var endpoints = map[string]endpoint{
	"openrouter": {baseURL: "https://openrouter.ai/api/v1", envKey: "OPENROUTER_API_KEY"},
	"openai":     {baseURL: "https://api.openai.com/v1", envKey: "OPENAI_API_KEY"},
}

// Supported returns the provider names NewProvider accepts.
func Supported() []string {
	names := []string{"ollama"}
	for name := range endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolveAPIKey checks config first, then falls back to environment variable.
// Returns empty string if neither is set.
func resolveAPIKey(configKey, envVarName string) string {
	if configKey != "" {
		return configKey
	}
	return os.Getenv(envVarName)
}

func newChatCompletionsProvider(name string, cfg *config.Config, o factoryOptions, logger *slog.Logger) (Provider, error) {
	ep := endpoints[name]

	var occ openrouter.Config
	switch name {
	case "openrouter":
		c := cfg.LLM.OpenRouter
		occ = openrouter.Config{BaseURL: c.BaseURL, APIKey: c.APIKey, Model: c.Model, Referer: c.Referer, Title: c.Title}
	case "openai":
		c := cfg.LLM.OpenAI
		occ = openrouter.Config{BaseURL: c.BaseURL, APIKey: c.APIKey, Model: c.Model}
	}
	if occ.BaseURL == "" {
		occ.BaseURL = ep.baseURL
	}
	if o.model != "" {
		occ.Model = o.model
	}
	if o.apiKey != "" {
		occ.APIKey = o.apiKey
	}
	occ.APIKey = resolveAPIKey(occ.APIKey, ep.envKey)
	if occ.APIKey == "" {
		return nil, fmt.Errorf("%w: set %s environment variable or llm.%s.api_key in config",
			ErrMissingAPIKey, ep.envKey, name)
	}
	if occ.Model == "" {
		return nil, fmt.Errorf("%s model not configured: set llm.%s.model", name, name)
	}

	client, err := openrouter.New(occ, o.httpClient, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", name, err)
	}

	logger.Info("initialized llm provider", "provider", name, "model", occ.Model, "base_url", occ.BaseURL)
	return &chatCompletionsAdapter{name: name, client: client}, nil
}

func newOllamaProvider(cfg *config.Config, o factoryOptions, logger *slog.Logger) (Provider, error) {
	oc := ollama.Config{
		Host:  cfg.LLM.Ollama.Host,
		Model: cfg.LLM.Ollama.Model,
	}
	if o.model != "" {
		oc.Model = o.model
	}

	c, err := ollama.New(oc, o.httpClient, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama provider: %w", err)
	}

	logger.Info("initialized llm provider", "provider", "ollama", "model", c.Model(), "host", oc.Host)
	return &ollamaAdapter{client: c}, nil
}
