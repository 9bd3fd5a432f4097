// Package llm is the transport to remote chat models.
//
// # Overview
//
// A Provider is one backend speaking one dialect. The set is closed:
//
//   - openrouter: OpenRouter chat completions (default)
//   - openai: the OpenAI API, same dialect as openrouter
//   - ollama: a local or remote Ollama server via its Go client
//
// Provider-specific code lives in subpackages. To avoid import cycles the
// subpackages define their own request and response types, and this package
// adapts them (adapter.go).
//
//	┌──────────────┐
//	│ llm package  │  ← Provider interface, HTTPError
//	│              │  ← Factory: NewProvider()
//	│              │  ← Adapters for each backend
//	└──────┬───────┘
//	       │
//	       ├──────────────────┐
//	       │                  │
//	┌──────▼──────────┐  ┌────▼────────┐
//	│ llm/openrouter  │  │ llm/ollama  │
//	└─────────────────┘  └─────────────┘
//
// # Errors
//
// Every backend reports failures the same way so retry policy can be
// decided above this package:
//
//   - *HTTPError: the provider answered with a non-2xx status
//   - ErrNetwork: the provider could not be reached
//   - ErrInvalidResponse: a 2xx answer that could not be decoded
//   - context errors are returned untouched
//
// # Configuration
//
//	llm:
//	  provider: openrouter
//	  openrouter:
//	    model: anthropic/claude-3.5-sonnet
//	  ollama:
//	    host: http://localhost:11434
//	    model: llama3.2
//
// API keys fall back to OPENROUTER_API_KEY and OPENAI_API_KEY.
//
// # Thread Safety
//
// Providers are safe for concurrent use and share one pooled http.Client
// (see NewHTTPClient).
package llm
