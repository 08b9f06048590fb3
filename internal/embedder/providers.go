package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"
	openai "github.com/sashabaranov/go-openai"
)

// Provider configuration
const (
	ProviderService = "service"
	ProviderJina    = "jina"
	ProviderOpenAI  = "openai"
	ProviderLocal   = "local"

	// Default endpoints and models
	DefaultServiceURL   = "http://localhost:8001"
	DefaultServiceModel = "sentence-transformers/static-similarity-mrl-multilingual-v1"
	DefaultJinaURL      = "https://api.jina.ai/v1"
	DefaultJinaModel    = "jina-embeddings-v3"
	DefaultOpenAIModel  = "text-embedding-3-small"
	DefaultLocalModel   = "local-hash"

	// Dimensions
	ServiceDimension = 1024
	JinaDimension    = 1024
	OpenAIDimension  = 1536
	LocalDimension   = 384

	// Batch limits
	DefaultBatchSize = 50
	MaxBatchSize     = 100

	// Retry configuration
	MaxRetries       = 3
	InitialBackoffMs = 100
	MaxBackoffMs     = 5000

	defaultTimeout = 30 * time.Second
)

// batchFunc calls a provider API for texts that missed the cache
type batchFunc func(ctx context.Context, texts []string, model string) ([]*Embedding, error)

// cachedBatch serves what it can from cache, embeds the rest with retries
// and returns embeddings in input order
func cachedBatch(ctx context.Context, cache *Cache, retryCfg RetryConfig, provider, model string, texts []string, call batchFunc) ([]*Embedding, error) {
	out := make([]*Embedding, len(texts))
	var missing []string
	var missingIdx []int

	for i, text := range texts {
		if cache != nil {
			if emb, ok := cache.Get(cacheKey(model, text)); ok {
				out[i] = emb
				continue
			}
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	embeddings, err := retryWithBackoff(ctx, retryCfg, func() ([]*Embedding, error) {
		return call(ctx, missing, model)
	})
	if err != nil {
		return nil, fmt.Errorf("%w (%s): %w", ErrProviderFailed, provider, err)
	}
	if len(embeddings) != len(missing) {
		return nil, fmt.Errorf("%w: sent %d, got %d", ErrCountMismatch, len(missing), len(embeddings))
	}

	for j, emb := range embeddings {
		key := cacheKey(model, missing[j])
		emb.Hash = ComputeHash(missing[j])
		if cache != nil {
			cache.Set(key, emb)
		}
		out[missingIdx[j]] = emb
	}
	return out, nil
}

// single embeds one text through a provider's batch path
func single(ctx context.Context, e Embedder, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	resp, err := e.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}
	return resp.Embeddings[0], nil
}

// httpStatusError classifies an HTTP error response; 4xx other than 408 and 429 is permanent
func httpStatusError(resp *resty.Response) error {
	err := fmt.Errorf("api error %d: %s", resp.StatusCode(), resp.String())
	code := resp.StatusCode()
	if code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests {
		return permanent(err)
	}
	return err
}

// ServiceProvider calls a sentence-embedding HTTP service:
// POST /embed {"texts": [...]} returns {"vectors": [[...], ...]}
type ServiceProvider struct {
	client    *resty.Client
	model     string
	dimension int
	cache     *Cache
	retry     RetryConfig
}

// NewServiceProvider creates an embedder for the embedding service at baseURL
func NewServiceProvider(baseURL, model string, dimension int, cache *Cache) (*ServiceProvider, error) {
	if baseURL == "" {
		baseURL = DefaultServiceURL
	}
	if model == "" {
		model = DefaultServiceModel
	}
	if dimension <= 0 {
		dimension = ServiceDimension
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &ServiceProvider{
		client:    client,
		model:     model,
		dimension: dimension,
		cache:     cache,
		retry:     DefaultRetryConfig(),
	}, nil
}

func (s *ServiceProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return single(ctx, s, req)
}

func (s *ServiceProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	// The service hosts a single model, so req.Model is informational only
	embeddings, err := cachedBatch(ctx, s.cache, s.retry, ProviderService, s.model, req.Texts, s.callAPI)
	if err != nil {
		return nil, err
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderService,
		Model:      s.model,
	}, nil
}

func (s *ServiceProvider) callAPI(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	var result struct {
		Vectors [][]float32 `json:"vectors"`
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"texts": texts}).
		SetResult(&result).
		Post("/embed")
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	if resp.IsError() {
		return nil, httpStatusError(resp)
	}

	embeddings := make([]*Embedding, len(result.Vectors))
	for i, vec := range result.Vectors {
		embeddings[i] = &Embedding{
			Vector:    vec,
			Dimension: len(vec),
			Provider:  ProviderService,
			Model:     model,
		}
	}
	return embeddings, nil
}

func (s *ServiceProvider) Dimension() int {
	return s.dimension
}

func (s *ServiceProvider) Provider() string {
	return ProviderService
}

func (s *ServiceProvider) Model() string {
	return s.model
}

func (s *ServiceProvider) Close() error {
	s.client.GetClient().CloseIdleConnections()
	return nil
}

// JinaProvider implements Embedder using Jina AI API
type JinaProvider struct {
	client *resty.Client
	model  string
	cache  *Cache
	retry  RetryConfig
}

// NewJinaProvider creates a new Jina AI embedder. An empty baseURL uses the public API.
func NewJinaProvider(apiKey, baseURL, model string, cache *Cache) (*JinaProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvJinaAPIKey)
	}
	if baseURL == "" {
		baseURL = DefaultJinaURL
	}
	if model == "" {
		model = DefaultJinaModel
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetAuthToken(apiKey)

	return &JinaProvider{
		client: client,
		model:  model,
		cache:  cache,
		retry:  DefaultRetryConfig(),
	}, nil
}

func (j *JinaProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return single(ctx, j, req)
}

func (j *JinaProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = j.model
	}

	embeddings, err := cachedBatch(ctx, j.cache, j.retry, ProviderJina, model, req.Texts, j.callAPI)
	if err != nil {
		return nil, err
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderJina,
		Model:      model,
	}, nil
}

func (j *JinaProvider) callAPI(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}

	resp, err := j.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"input": texts, "model": model}).
		SetResult(&result).
		Post("/embeddings")
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	if resp.IsError() {
		return nil, httpStatusError(resp)
	}

	// The API reports each vector's input position; order by it
	sort.Slice(result.Data, func(a, b int) bool { return result.Data[a].Index < result.Data[b].Index })

	embeddings := make([]*Embedding, len(result.Data))
	for i, data := range result.Data {
		embeddings[i] = &Embedding{
			Vector:    data.Embedding,
			Dimension: len(data.Embedding),
			Provider:  ProviderJina,
			Model:     model,
		}
	}
	return embeddings, nil
}

func (j *JinaProvider) Dimension() int {
	return JinaDimension
}

func (j *JinaProvider) Provider() string {
	return ProviderJina
}

func (j *JinaProvider) Model() string {
	return j.model
}

func (j *JinaProvider) Close() error {
	j.client.GetClient().CloseIdleConnections()
	return nil
}

// OpenAIProvider implements Embedder using the OpenAI embeddings API
type OpenAIProvider struct {
	client *openai.Client
	model  string
	cache  *Cache
	retry  RetryConfig
}

// NewOpenAIProvider creates a new OpenAI embedder. baseURL targets compatible servers.
func NewOpenAIProvider(apiKey, baseURL, model string, cache *Cache) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvOpenAIAPIKey)
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: defaultTimeout}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		cache:  cache,
		retry:  DefaultRetryConfig(),
	}, nil
}

func (o *OpenAIProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return single(ctx, o, req)
}

func (o *OpenAIProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = o.model
	}

	embeddings, err := cachedBatch(ctx, o.cache, o.retry, ProviderOpenAI, model, req.Texts, o.callAPI)
	if err != nil {
		return nil, err
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderOpenAI,
		Model:      model,
	}, nil
}

func (o *OpenAIProvider) callAPI(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 &&
			apiErr.HTTPStatusCode != http.StatusTooManyRequests {
			return nil, permanent(err)
		}
		return nil, fmt.Errorf("api call: %w", err)
	}

	sort.Slice(resp.Data, func(a, b int) bool { return resp.Data[a].Index < resp.Data[b].Index })

	embeddings := make([]*Embedding, len(resp.Data))
	for i, data := range resp.Data {
		embeddings[i] = &Embedding{
			Vector:    data.Embedding,
			Dimension: len(data.Embedding),
			Provider:  ProviderOpenAI,
			Model:     model,
		}
	}
	return embeddings, nil
}

func (o *OpenAIProvider) Dimension() int {
	return OpenAIDimension
}

func (o *OpenAIProvider) Provider() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) Model() string {
	return o.model
}

func (o *OpenAIProvider) Close() error {
	return nil
}

// LocalProvider derives deterministic unit vectors from text hashes. It needs no
// network and is meant for development and tests; similar texts do not get
// similar vectors.
type LocalProvider struct {
	model     string
	dimension int
	cache     *Cache
}

// NewLocalProvider creates a new local embedder
func NewLocalProvider(dimension int, cache *Cache) (*LocalProvider, error) {
	if dimension <= 0 {
		dimension = LocalDimension
	}
	return &LocalProvider{
		model:     DefaultLocalModel,
		dimension: dimension,
		cache:     cache,
	}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := cacheKey(l.model, req.Text)
	if l.cache != nil {
		if emb, ok := l.cache.Get(key); ok {
			return emb, nil
		}
	}

	emb := &Embedding{
		Vector:    HashVector(req.Text, l.dimension),
		Dimension: l.dimension,
		Provider:  ProviderLocal,
		Model:     l.model,
		Hash:      ComputeHash(req.Text),
	}

	if l.cache != nil {
		l.cache.Set(key, emb)
	}

	return emb, nil
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := l.GenerateEmbedding(ctx, EmbeddingRequest{Text: text, Model: req.Model})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      l.model,
	}, nil
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}

// HashVector expands the SHA-256 of text into a unit vector of length dim.
// Components lie in [-1, 1] before normalization, so the vector is never zero.
func HashVector(text string, dim int) []float32 {
	vector := make([]float32, dim)
	var block [sha256.Size]byte
	var counter [8]byte
	for i := 0; i < dim; i++ {
		if i%(sha256.Size/2) == 0 {
			binary.LittleEndian.PutUint64(counter[:], uint64(i))
			block = sha256.Sum256(append([]byte(text), counter[:]...))
		}
		off := (i % (sha256.Size / 2)) * 2
		v := binary.LittleEndian.Uint16(block[off : off+2])
		vector[i] = float32(v)/32767.5 - 1
	}
	return NormalizeVector(vector)
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
