package embedder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeHash(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", ComputeHash(""))
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", ComputeHash("hello world"))
	assert.Equal(t, ComputeHash("test"), ComputeHash("test"))
	assert.NotEqual(t, cacheKey("a", "test"), cacheKey("b", "test"))
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(EmbeddingRequest{Text: "hello"}))
	assert.ErrorIs(t, ValidateRequest(EmbeddingRequest{}), ErrEmptyText)
}

func TestValidateBatchRequest(t *testing.T) {
	tests := []struct {
		name    string
		texts   []string
		wantErr error
	}{
		{"valid", []string{"a", "b"}, nil},
		{"empty batch", nil, ErrInvalidInput},
		{"empty text", []string{"a", ""}, ErrInvalidInput},
		{"too large", make([]string, MaxBatchSize+1), ErrBatchTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBatchRequest(BatchEmbeddingRequest{Texts: tt.texts})
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCache(t *testing.T) {
	t.Run("basic operations", func(t *testing.T) {
		cache := NewCache(3)

		_, ok := cache.Get("nonexistent")
		assert.False(t, ok)

		cache.Set("hash1", &Embedding{Vector: []float32{1, 2, 3}, Dimension: 3, Hash: "hash1"})
		got, ok := cache.Get("hash1")
		require.True(t, ok)
		assert.Equal(t, "hash1", got.Hash)
		assert.Equal(t, 1, cache.Size())
	})

	t.Run("returns copies", func(t *testing.T) {
		cache := NewCache(3)
		cache.Set("k", &Embedding{Vector: []float32{1, 2}})

		got, _ := cache.Get("k")
		got.Vector[0] = 99

		again, _ := cache.Get("k")
		assert.Equal(t, float32(1), again.Vector[0])
	})

	t.Run("eviction on capacity", func(t *testing.T) {
		cache := NewCache(2)
		cache.Set("hash1", &Embedding{Hash: "hash1"})
		cache.Set("hash2", &Embedding{Hash: "hash2"})
		cache.Set("hash3", &Embedding{Hash: "hash3"})

		assert.Equal(t, 2, cache.Size())
		_, ok := cache.Get("hash1")
		assert.False(t, ok, "least recently used entry should be evicted")
		_, ok = cache.Get("hash3")
		assert.True(t, ok)
	})

	t.Run("clear", func(t *testing.T) {
		cache := NewCache(10)
		cache.Set("hash1", &Embedding{Hash: "hash1"})
		cache.Clear()
		assert.Equal(t, 0, cache.Size())
	})

	t.Run("non-positive size uses default", func(t *testing.T) {
		cache := NewCache(0)
		cache.Set("a", &Embedding{})
		assert.Equal(t, 1, cache.Size())
	})
}

// countingEmbedder records batch sizes and returns one-hot vectors by global index
type countingEmbedder struct {
	batches []int
	fail    error
	short   bool
}

func (c *countingEmbedder) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return single(ctx, c, req)
}

func (c *countingEmbedder) GenerateBatch(_ context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if c.fail != nil {
		return nil, c.fail
	}
	c.batches = append(c.batches, len(req.Texts))
	n := len(req.Texts)
	if c.short {
		n--
	}
	embs := make([]*Embedding, n)
	for i := range embs {
		var idx int
		_, _ = fmt.Sscanf(req.Texts[i], "t%d", &idx)
		embs[i] = &Embedding{Vector: []float32{float32(idx)}, Dimension: 1}
	}
	return &BatchEmbeddingResponse{Embeddings: embs}, nil
}

func (c *countingEmbedder) Dimension() int   { return 1 }
func (c *countingEmbedder) Provider() string { return "counting" }
func (c *countingEmbedder) Model() string    { return "counting" }
func (c *countingEmbedder) Close() error     { return nil }

func TestEmbedAll(t *testing.T) {
	ctx := context.Background()
	texts := make([]string, 7)
	for i := range texts {
		texts[i] = fmt.Sprintf("t%d", i)
	}

	t.Run("batches and keeps order", func(t *testing.T) {
		emb := &countingEmbedder{}
		vecs, err := EmbedAll(ctx, emb, texts, 3)
		require.NoError(t, err)
		assert.Equal(t, []int{3, 3, 1}, emb.batches)
		require.Len(t, vecs, 7)
		for i, v := range vecs {
			assert.Equal(t, float32(i), v[0])
		}
	})

	t.Run("out of range batch size", func(t *testing.T) {
		emb := &countingEmbedder{}
		_, err := EmbedAll(ctx, emb, texts, 0)
		require.NoError(t, err)
		assert.Equal(t, []int{7}, emb.batches)
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := EmbedAll(ctx, &countingEmbedder{}, nil, 10)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("provider failure", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := EmbedAll(ctx, &countingEmbedder{fail: boom}, texts, 3)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("count mismatch", func(t *testing.T) {
		_, err := EmbedAll(ctx, &countingEmbedder{short: true}, texts, 3)
		assert.ErrorIs(t, err, ErrCountMismatch)
	})
}

func TestLocalProvider(t *testing.T) {
	ctx := context.Background()
	provider, err := NewLocalProvider(0, NewCache(10))
	require.NoError(t, err)
	defer provider.Close()

	assert.Equal(t, ProviderLocal, provider.Provider())
	assert.Equal(t, LocalDimension, provider.Dimension())
	assert.Equal(t, DefaultLocalModel, provider.Model())

	t.Run("deterministic unit vectors", func(t *testing.T) {
		a, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "hello"})
		require.NoError(t, err)
		b, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "hello"})
		require.NoError(t, err)
		c, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "world"})
		require.NoError(t, err)

		assert.Equal(t, a.Vector, b.Vector)
		assert.NotEqual(t, a.Vector, c.Vector)
		assert.Len(t, a.Vector, LocalDimension)

		var sum float64
		for _, v := range a.Vector {
			sum += float64(v) * float64(v)
		}
		assert.InDelta(t, 1.0, sum, 1e-4)
	})

	t.Run("batch", func(t *testing.T) {
		resp, err := provider.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"a", "b"}})
		require.NoError(t, err)
		assert.Len(t, resp.Embeddings, 2)
		assert.Equal(t, ProviderLocal, resp.Provider)
	})

	t.Run("validation", func(t *testing.T) {
		_, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{})
		assert.ErrorIs(t, err, ErrEmptyText)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := provider.GenerateEmbedding(cctx, EmbeddingRequest{Text: "x"})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("custom dimension", func(t *testing.T) {
		p, err := NewLocalProvider(50, nil)
		require.NoError(t, err)
		emb, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: strings.Repeat("x", 10)})
		require.NoError(t, err)
		assert.Len(t, emb.Vector, 50)
	})
}

func TestNormalizeVector(t *testing.T) {
	got := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, got[0], 1e-6)
	assert.InDelta(t, 0.8, got[1], 1e-6)

	zero := []float32{0, 0}
	assert.Equal(t, zero, NormalizeVector(zero))
}
