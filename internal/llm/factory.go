package llm

import (
	"fmt"
	"os"
)

// Provider enumerates the supported chat completion providers.
type Provider string

const (
	// ProviderGroq selects Groq's OpenAI-compatible API.
	ProviderGroq Provider = "groq"
	// ProviderOpenAI selects the OpenAI API.
	ProviderOpenAI Provider = "openai"
	// ProviderAnthropic selects the Anthropic Messages API.
	ProviderAnthropic Provider = "anthropic"
)

// Config holds provider-level configuration resolved from the loaded
// config file or explicit caller-supplied values.
type Config struct {
	// Provider identifies which chat completion provider to use.
	Provider Provider

	// Model is the model name (e.g. "llama-3.3-70b-versatile").
	Model string

	// APIKey is the authentication credential. When empty it is read
	// from the provider's native env var (GROQ_API_KEY, OPENAI_API_KEY,
	// ANTHROPIC_API_KEY).
	APIKey string

	// BaseURL overrides the default API endpoint (OpenAI-compatible
	// providers only).
	BaseURL string

	// MaxTokens caps the number of tokens the model may generate per
	// response.
	MaxTokens int
}

// New constructs a [Client] for the configured provider. It validates
// credentials up front so callers get a clear error at startup rather
// than on the first request.
func New(cfg Config) (Client, error) {
	switch cfg.Provider {
	case ProviderGroq:
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("GROQ_API_KEY")
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = GroqBaseURL
		}
		return NewOpenAIClient("groq", apiKey, baseURL, cfg.Model, cfg.MaxTokens)
	case ProviderOpenAI:
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		return NewOpenAIClient("openai", apiKey, cfg.BaseURL, cfg.Model, cfg.MaxTokens)
	case ProviderAnthropic:
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		return NewAnthropicClient(apiKey, cfg.Model, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q — valid values: groq, openai, anthropic", cfg.Provider)
	}
}
