package llm

import (
	"fmt"
	"os"

	"github.com/narradar/narradar/internal/config"
)

// NewProvider creates an LLM provider from the configuration, wrapped with
// the configured requests-per-minute limit.
func NewProvider(cfg *config.Config) (Provider, error) {
	var p Provider

	switch cfg.Provider {
	case config.ProviderGoogle:
		apiKey := os.Getenv("GOOGLE_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("GOOGLE_API_KEY environment variable is not set")
		}
		p = NewGoogleProvider(apiKey, cfg.Model)

	case config.ProviderOpenAI:
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
		}
		p = NewOpenAIProvider(apiKey, cfg.Model)

	case config.ProviderAnthropic:
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		p = NewAnthropicProvider(apiKey, cfg.Model)

	case config.ProviderOllama:
		host := os.Getenv("OLLAMA_HOST")
		if host == "" {
			host = "http://localhost:11434"
		}
		p = NewOllamaProvider(host, cfg.Model)

	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Provider)
	}

	return NewRateLimitedProvider(p, cfg.LLMRPM), nil
}
