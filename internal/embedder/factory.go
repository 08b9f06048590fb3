package embedder

import (
	"fmt"
	"os"
	"strings"
)

// Environment variables consulted when no API key is configured
const (
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvJinaAPIKey   = "JINA_API_KEY"
)

// Config holds embedder configuration
type Config struct {
	Provider  string // service, jina, openai, local; empty auto-detects
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
	CacheSize int
}

// New creates an embedder from configuration.
// With no provider set, the provider is picked by DetectProvider.
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	provider := DetectProvider(cfg)
	switch provider {
	case ProviderService:
		return NewServiceProvider(cfg.BaseURL, cfg.Model, cfg.Dimension, cache)
	case ProviderJina:
		return NewJinaProvider(apiKey(cfg.APIKey, EnvJinaAPIKey), cfg.BaseURL, cfg.Model, cache)
	case ProviderOpenAI:
		return NewOpenAIProvider(apiKey(cfg.APIKey, EnvOpenAIAPIKey), cfg.BaseURL, cfg.Model, cache)
	case ProviderLocal:
		return NewLocalProvider(cfg.Dimension, cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// DetectProvider returns the provider New would use.
// Priority:
// 1. cfg.Provider
// 2. cfg.BaseURL set: the embedding service
// 3. JINA_API_KEY, then OPENAI_API_KEY
// 4. local
func DetectProvider(cfg Config) string {
	if p := strings.ToLower(strings.TrimSpace(cfg.Provider)); p != "" {
		return p
	}
	if cfg.BaseURL != "" {
		return ProviderService
	}
	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	return ProviderLocal
}

func apiKey(configured, env string) string {
	if configured != "" {
		return configured
	}
	return os.Getenv(env)
}
