package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/semrag/internal/chunker"
	"github.com/dshills/semrag/internal/ingest"
	"github.com/dshills/semrag/internal/searcher"
)

func clearProviderKeys(t *testing.T) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("JINA_API_KEY", "")
}

func TestLoad_Defaults(t *testing.T) {
	clearProviderKeys(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "es", cfg.Language)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, IndexSQLite, cfg.VectorIndex.Backend)
	assert.Equal(t, "rag_collection", cfg.VectorIndex.Collection)
	assert.Equal(t, chunker.DefaultConfig(), cfg.ChunkerConfig())
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, "vector", cfg.Retrieval.Mode)
	assert.Equal(t, searcher.DefaultCacheSize, cfg.Retrieval.CacheSize)
	assert.Equal(t, "ollama", cfg.Generation.Provider)
	assert.Equal(t, ingest.DefaultExtensions, cfg.Ingest.Extensions)
	assert.Equal(t, 120*time.Second, cfg.Evaluation.Timeout)
	assert.Equal(t, filepath.Join(cfg.DataDir, "semrag.db"), cfg.DatabasePath())
	assert.Equal(t, filepath.Join(cfg.DataDir, "chroma"), cfg.ChromemPath())
}

func TestLoad_Environment(t *testing.T) {
	clearProviderKeys(t)
	t.Setenv("SEMRAG_DATA_DIR", "/tmp/semrag-test")
	t.Setenv("SEMRAG_LANGUAGE", "en")
	t.Setenv("SEMRAG_LOG__LEVEL", "debug")
	t.Setenv("SEMRAG_LOG__JSON", "true")
	t.Setenv("SEMRAG_CHUNKING__THRESHOLD", "0.75")
	t.Setenv("SEMRAG_CHUNKING__MAX_SENTENCES", "6")
	t.Setenv("SEMRAG_RETRIEVAL__MODE", "hybrid")
	t.Setenv("SEMRAG_INGEST__EXTENSIONS", ".txt,.jsonl")
	t.Setenv("SEMRAG_INGEST__HEADER_KEYS", "articulo, titulo")
	t.Setenv("SEMRAG_EVALUATION__TIMEOUT", "30s")
	t.Setenv("SEMRAG_VECTOR_INDEX__BACKEND", "chromem")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/semrag-test", cfg.DataDir)
	assert.Equal(t, "en", cfg.Language)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, 0.75, cfg.Chunking.Threshold)
	assert.Equal(t, 6, cfg.Chunking.MaxSentences)
	assert.Equal(t, chunker.DefaultMinSentences, cfg.Chunking.MinSentences)
	assert.Equal(t, "hybrid", cfg.Retrieval.Mode)
	assert.Equal(t, []string{".txt", ".jsonl"}, cfg.Ingest.Extensions)
	assert.Equal(t, []string{"articulo", "titulo"}, cfg.Ingest.HeaderKeys)
	assert.Equal(t, 30*time.Second, cfg.Evaluation.Timeout)
	assert.Equal(t, IndexChromem, cfg.VectorIndex.Backend)
	assert.Equal(t, "/tmp/semrag-test/semrag.db", filepath.ToSlash(cfg.DatabasePath()))

	lc := cfg.LoggerConfig()
	assert.Equal(t, "debug", lc.Level)
	assert.True(t, lc.JSON)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		field string
	}{
		{"threshold above one", "SEMRAG_CHUNKING__THRESHOLD", "1.5", "Threshold"},
		{"min above max", "SEMRAG_CHUNKING__MIN_SENTENCES", "9", "MinSentences"},
		{"unknown mode", "SEMRAG_RETRIEVAL__MODE", "semantic", "Mode"},
		{"empty search cache", "SEMRAG_RETRIEVAL__CACHE_SIZE", "0", "CacheSize"},
		{"bad language", "SEMRAG_LANGUAGE", "not a language", "Language"},
		{"unknown embedder", "SEMRAG_EMBEDDING__PROVIDER", "cohere", "Provider"},
		{"bad url", "SEMRAG_EMBEDDING__BASE_URL", "::nope", "BaseURL"},
		{"batch too large", "SEMRAG_EMBEDDING__BATCH_SIZE", "500", "BatchSize"},
		{"unknown backend", "SEMRAG_VECTOR_INDEX__BACKEND", "milvus", "Backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearProviderKeys(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestLoad_APIKeyFallback(t *testing.T) {
	clearProviderKeys(t)
	t.Setenv("SEMRAG_GENERATION__PROVIDER", "openai")

	_, err := Load()
	require.Error(t, err, "openai generation needs a key")

	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("SEMRAG_EMBEDDING__PROVIDER", "openai")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-env", cfg.Generation.APIKey)
	assert.Equal(t, "sk-env", cfg.Embedding.APIKey)

	t.Setenv("SEMRAG_GENERATION__API_KEY", "sk-explicit")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-explicit", cfg.Generation.APIKey)
}

func TestTransformEnvKey(t *testing.T) {
	tests := map[string]string{
		"SEMRAG_DATA_DIR":                "data_dir",
		"SEMRAG_CHUNKING__MAX_SENTENCES": "chunking.max_sentences",
		"SEMRAG_VECTOR_INDEX__PATH":      "vector_index.path",
	}
	for in, want := range tests {
		got, value := transformEnvKey(in, "v")
		assert.Equal(t, want, got)
		assert.Equal(t, "v", value)
	}

	key, value := transformEnvKey("SEMRAG_INGEST__EXTENSIONS", " .txt,,.pdf ")
	assert.Equal(t, "ingest.extensions", key)
	assert.Equal(t, []string{".txt", ".pdf"}, value)
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Embedding.Provider = "local"
	cfg.Embedding.Dimension = 64
	cfg.Generation.Model = "llama3"
	cfg.Ingest.HeaderKeys = ingest.DefaultLegalHeaderKeys
	require.NoError(t, cfg.Validate())

	ec := cfg.EmbedderConfig()
	assert.Equal(t, "local", ec.Provider)
	assert.Equal(t, 64, ec.Dimension)

	assert.Equal(t, "llama3", cfg.GeneratorConfig().Model)

	ic := cfg.IngestOptions(true)
	assert.True(t, ic.ForceReindex)
	assert.Equal(t, "es", ic.Language)
	assert.Equal(t, ingest.DefaultLegalHeaderKeys, ic.HeaderKeys)
	assert.Equal(t, cfg.Embedding.BatchSize, ic.BatchSize)

	evc := cfg.EvaluationOptions(5)
	assert.Equal(t, 5, evc.TopK)
	assert.Equal(t, cfg.Evaluation.Workers, evc.Workers)

	assert.NotNil(t, cfg.TokenCounter())
}

