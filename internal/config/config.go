package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/dshills/semrag/internal/chunker"
	"github.com/dshills/semrag/internal/embedder"
	"github.com/dshills/semrag/internal/evaluation"
	"github.com/dshills/semrag/internal/generator"
	"github.com/dshills/semrag/internal/ingest"
	"github.com/dshills/semrag/internal/logger"
	"github.com/dshills/semrag/internal/searcher"
	"github.com/dshills/semrag/internal/storage"
	"github.com/dshills/semrag/internal/tokenizer"
)

// EnvPrefix is the prefix of every environment override. A double underscore
// separates nesting levels: SEMRAG_CHUNKING__MAX_SENTENCES=6.
const EnvPrefix = "SEMRAG_"

// Vector index backends
const (
	IndexSQLite  = "sqlite"
	IndexChromem = "chromem"
)

// Config is the complete runtime configuration
type Config struct {
	DataDir     string            `koanf:"data_dir"     validate:"required"`
	Language    string            `koanf:"language"     validate:"required,bcp47_language_tag"`
	Log         LogConfig         `koanf:"log"`
	Database    DatabaseConfig    `koanf:"database"`
	VectorIndex VectorIndexConfig `koanf:"vector_index"`
	Chunking    ChunkingConfig    `koanf:"chunking"`
	Embedding   EmbeddingConfig   `koanf:"embedding"`
	Generation  GenerationConfig  `koanf:"generation"`
	Retrieval   RetrievalConfig   `koanf:"retrieval"`
	Ingest      IngestConfig      `koanf:"ingest"`
	Evaluation  EvaluationConfig  `koanf:"evaluation"`
}

type LogConfig struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `koanf:"json"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"` // empty: <data_dir>/semrag.db
}

type VectorIndexConfig struct {
	Backend    string `koanf:"backend"    validate:"oneof=sqlite chromem"`
	// chromem directory; empty: <data_dir>/chroma
	Path       string `koanf:"path"`
	Collection string `koanf:"collection" validate:"required"`
}

type ChunkingConfig struct {
	Threshold    float64 `koanf:"threshold"     validate:"gte=0,lte=1"`
	MaxSentences int     `koanf:"max_sentences" validate:"gte=1"`
	MinSentences int     `koanf:"min_sentences" validate:"gte=1,ltefield=MaxSentences"`
}

type EmbeddingConfig struct {
	Provider  string `koanf:"provider"   validate:"omitempty,oneof=service jina openai local"`
	BaseURL   string `koanf:"base_url"   validate:"omitempty,url"`
	Model     string `koanf:"model"`
	APIKey    string `koanf:"api_key"`
	Dimension int    `koanf:"dimension"  validate:"gte=0"`
	CacheSize int    `koanf:"cache_size" validate:"gte=0"`
	BatchSize int    `koanf:"batch_size" validate:"gte=1,lte=100"`
}

type GenerationConfig struct {
	Provider       string  `koanf:"provider"        validate:"oneof=ollama openai"`
	BaseURL        string  `koanf:"base_url"        validate:"omitempty,url"`
	Model          string  `koanf:"model"`
	APIKey         string  `koanf:"api_key"`
	Temperature    float32 `koanf:"temperature"     validate:"gte=0,lte=2"`
	MaxTokens      int     `koanf:"max_tokens"      validate:"gte=0"`
	PromptTemplate string  `koanf:"prompt_template"`
}

type RetrievalConfig struct {
	TopK         int     `koanf:"top_k"         validate:"gte=1,lte=100"`
	Mode         string  `koanf:"mode"          validate:"oneof=vector keyword hybrid"`
	MinRelevance float64 `koanf:"min_relevance" validate:"gte=0,lte=1"`
	UseCache     bool    `koanf:"use_cache"`
	CacheSize    int     `koanf:"cache_size"    validate:"gte=1"`
}

type IngestConfig struct {
	Workers      int      `koanf:"workers"        validate:"gte=0"`
	Extensions   []string `koanf:"extensions"     validate:"min=1,dive,required"`
	MaxFileBytes int64    `koanf:"max_file_bytes" validate:"gte=1"`
	RecordBatch  int      `koanf:"record_batch"   validate:"gte=1"`
	HeaderKeys   []string `koanf:"header_keys"`
	Tokenizer    string   `koanf:"tokenizer"      validate:"oneof=heuristic tiktoken"`
}

type EvaluationConfig struct {
	Workers int           `koanf:"workers" validate:"gte=1"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		DataDir:  defaultDataDir(),
		Language: "es",
		Log:      LogConfig{Level: logger.InfoLevel},
		VectorIndex: VectorIndexConfig{
			Backend:    IndexSQLite,
			Collection: storage.DefaultCollection,
		},
		Chunking: ChunkingConfig{
			Threshold:    chunker.DefaultThreshold,
			MaxSentences: chunker.DefaultMaxSentences,
			MinSentences: chunker.DefaultMinSentences,
		},
		Embedding: EmbeddingConfig{
			CacheSize: 1000,
			BatchSize: embedder.DefaultBatchSize,
		},
		Generation: GenerationConfig{
			Provider: generator.ProviderOllama,
		},
		Retrieval: RetrievalConfig{
			TopK:      3,
			Mode:      string(searcher.SearchModeVector),
			CacheSize: searcher.DefaultCacheSize,
		},
		Ingest: IngestConfig{
			Extensions:   ingest.DefaultExtensions,
			MaxFileBytes: ingest.DefaultMaxFileBytes,
			RecordBatch:  ingest.DefaultRecordBatch,
			Tokenizer:    "heuristic",
		},
		Evaluation: EvaluationConfig{
			Workers: evaluation.DefaultWorkers,
			Timeout: evaluation.DefaultTimeout,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".semrag"
	}
	return filepath.Join(home, ".semrag")
}

// Load builds the configuration from defaults overlaid with SEMRAG_ environment
// variables, then validates it
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: transformEnvKey,
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	cfg.resolveAPIKeys()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// listKeys are the slice fields read from comma-separated env values
var listKeys = map[string]bool{
	"ingest.extensions":  true,
	"ingest.header_keys": true,
}

// transformEnvKey maps SEMRAG_CHUNKING__MAX_SENTENCES to chunking.max_sentences
// and splits list values such as SEMRAG_INGEST__EXTENSIONS=.txt,.md
func transformEnvKey(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if listKeys[key] {
		return key, splitList(value)
	}
	return key, value
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// resolveAPIKeys falls back to the providers' conventional environment variables
func (c *Config) resolveAPIKeys() {
	if c.Embedding.APIKey == "" {
		switch embedder.DetectProvider(c.EmbedderConfig()) {
		case embedder.ProviderJina:
			c.Embedding.APIKey = os.Getenv(embedder.EnvJinaAPIKey)
		case embedder.ProviderOpenAI:
			c.Embedding.APIKey = os.Getenv(embedder.EnvOpenAIAPIKey)
		}
	}
	if c.Generation.APIKey == "" && c.Generation.Provider == generator.ProviderOpenAI {
		c.Generation.APIKey = os.Getenv(generator.EnvOpenAIAPIKey)
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the settings that depend on each other
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Generation.Provider == generator.ProviderOpenAI && c.Generation.APIKey == "" {
		return fmt.Errorf("invalid configuration: generation provider openai needs an api key (%s)", generator.EnvOpenAIAPIKey)
	}
	return nil
}

// DatabasePath is the SQLite file location
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.DataDir, "semrag.db")
}

// ChromemPath is the chromem persistence directory
func (c *Config) ChromemPath() string {
	if c.VectorIndex.Path != "" {
		return c.VectorIndex.Path
	}
	return filepath.Join(c.DataDir, "chroma")
}

// LoggerConfig converts the log settings
func (c *Config) LoggerConfig() logger.Config {
	cfg := logger.DefaultConfig()
	cfg.Level = c.Log.Level
	cfg.JSON = c.Log.JSON
	return cfg
}

// ChunkerConfig converts the chunking settings
func (c *Config) ChunkerConfig() chunker.Config {
	return chunker.Config{
		Threshold:    c.Chunking.Threshold,
		MaxSentences: c.Chunking.MaxSentences,
		MinSentences: c.Chunking.MinSentences,
	}
}

// EmbedderConfig converts the embedding settings
func (c *Config) EmbedderConfig() embedder.Config {
	return embedder.Config{
		Provider:  c.Embedding.Provider,
		APIKey:    c.Embedding.APIKey,
		BaseURL:   c.Embedding.BaseURL,
		Model:     c.Embedding.Model,
		Dimension: c.Embedding.Dimension,
		CacheSize: c.Embedding.CacheSize,
	}
}

// GeneratorConfig converts the generation settings
func (c *Config) GeneratorConfig() generator.Config {
	return generator.Config{
		Provider:    c.Generation.Provider,
		BaseURL:     c.Generation.BaseURL,
		Model:       c.Generation.Model,
		APIKey:      c.Generation.APIKey,
		Temperature: c.Generation.Temperature,
		MaxTokens:   c.Generation.MaxTokens,
	}
}

// IngestOptions converts the ingest settings for one run
func (c *Config) IngestOptions(force bool) *ingest.Config {
	return &ingest.Config{
		Workers:      c.Ingest.Workers,
		Extensions:   c.Ingest.Extensions,
		Language:     c.Language,
		ForceReindex: force,
		BatchSize:    c.Embedding.BatchSize,
		RecordBatch:  c.Ingest.RecordBatch,
		MaxFileBytes: c.Ingest.MaxFileBytes,
		HeaderKeys:   c.Ingest.HeaderKeys,
	}
}

// TokenCounter returns the configured token counter
func (c *Config) TokenCounter() tokenizer.Counter {
	return tokenizer.New(c.Ingest.Tokenizer)
}

// EvaluationOptions converts the evaluation settings
func (c *Config) EvaluationOptions(topK int) evaluation.Config {
	return evaluation.Config{
		Workers: c.Evaluation.Workers,
		Timeout: c.Evaluation.Timeout,
		TopK:    topK,
	}
}
