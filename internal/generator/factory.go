package generator

import (
	"fmt"
	"os"
	"strings"
)

// Config holds generator configuration
type Config struct {
	Provider    string // ollama, openai; empty means ollama
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float32
	MaxTokens   int
}

// New creates a generator from configuration
func New(cfg Config) (Generator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case "", ProviderOllama:
		options := map[string]any{}
		if cfg.Temperature > 0 {
			options["temperature"] = cfg.Temperature
		}
		if cfg.MaxTokens > 0 {
			options["num_predict"] = cfg.MaxTokens
		}
		return NewOllamaProvider(cfg.BaseURL, cfg.Model, options), nil
	case ProviderOpenAI:
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv(EnvOpenAIAPIKey)
		}
		return NewOpenAIProvider(key, cfg.BaseURL, cfg.Model, cfg.Temperature, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
}
