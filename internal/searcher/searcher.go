package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/semrag/internal/embedder"
	"github.com/dshills/semrag/internal/storage"
	"github.com/dshills/semrag/pkg/types"
)

// SearchMode defines how search is performed
type SearchMode string

const (
	SearchModeHybrid  SearchMode = "hybrid"  // Vector + BM25 with RRF
	SearchModeVector  SearchMode = "vector"  // Vector similarity only
	SearchModeKeyword SearchMode = "keyword" // BM25 text search only
)

const (
	DefaultLimit       = 10
	MaxLimit           = 100
	DefaultRRFConstant = 60
	DefaultCacheTTL    = time.Hour
	DefaultCacheSize   = 1000
)

var (
	// ErrEmptyQuery is returned for blank queries
	ErrEmptyQuery = errors.New("query cannot be empty")
	// ErrUnsupportedMode is returned for unknown search modes
	ErrUnsupportedMode = errors.New("unsupported search mode")
)

// ParseMode maps a mode name to a SearchMode; empty selects hybrid
func ParseMode(s string) (SearchMode, error) {
	switch SearchMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", SearchModeHybrid:
		return SearchModeHybrid, nil
	case SearchModeVector:
		return SearchModeVector, nil
	case SearchModeKeyword:
		return SearchModeKeyword, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMode, s)
	}
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query       string
	Limit       int
	Mode        SearchMode
	Filters     *storage.SearchFilters
	UseCache    bool // Whether to use query cache
	CacheTTL    time.Duration
	RRFConstant float64 // k value for Reciprocal Rank Fusion (default 60)
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results       []types.SearchResult
	TotalResults  int
	SearchMode    SearchMode
	Duration      time.Duration
	CacheHit      bool
	VectorResults int
	TextResults   int
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Searcher coordinates search operations across vector and text search
type Searcher struct {
	storage  storage.Storage
	index    storage.VectorIndex
	embedder embedder.Embedder
	cache    *lru.Cache[[32]byte, *cacheEntry]
	cacheMu  sync.RWMutex
}

// Option configures a Searcher
type Option func(*Searcher)

// WithVectorIndex routes vector queries to idx instead of the SQLite store
func WithVectorIndex(idx storage.VectorIndex) Option {
	return func(s *Searcher) {
		if idx != nil {
			s.index = idx
		}
	}
}

// WithCacheSize bounds the result cache to n responses
func WithCacheSize(n int) Option {
	return func(s *Searcher) {
		if n > 0 {
			s.cache.Resize(n)
		}
	}
}

// NewSearcher creates a new Searcher instance
func NewSearcher(store storage.Storage, emb embedder.Embedder, opts ...Option) *Searcher {
	cache, err := lru.New[[32]byte, *cacheEntry](DefaultCacheSize)
	if err != nil {
		// This should never happen with valid size parameter
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}

	s := &Searcher{
		storage:  store,
		embedder: emb,
		cache:    cache,
	}
	if vi, ok := store.(storage.VectorIndex); ok {
		s.index = vi
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search performs a search based on the request parameters
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if s.storage == nil {
		return nil, fmt.Errorf("storage not initialized")
	}

	if err := s.validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	if req.Mode != SearchModeKeyword {
		if s.embedder == nil {
			return nil, fmt.Errorf("embedder not initialized")
		}
		if s.index == nil {
			return nil, fmt.Errorf("vector index not initialized")
		}
	}

	if req.UseCache {
		if cached, ok := s.checkCache(req); ok {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	var response *SearchResponse
	var err error

	switch req.Mode {
	case SearchModeHybrid:
		response, err = s.hybridSearch(ctx, req)
	case SearchModeVector:
		response, err = s.vectorSearch(ctx, req)
	case SearchModeKeyword:
		response, err = s.keywordSearch(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	response.Duration = time.Since(startTime)
	response.SearchMode = req.Mode

	if req.UseCache && len(response.Results) > 0 {
		s.storeInCache(req, response)
	}

	return response, nil
}

// embedQuery embeds the query text
func (s *Searcher) embedQuery(ctx context.Context, query string) ([]float32, error) {
	embedding, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: query})
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}
	return embedding.Vector, nil
}

// searchResult holds results from concurrent search operations
type searchResult struct {
	vectorResults []storage.VectorResult
	textResults   []storage.TextResult
	err           error
}

// runVectorSearch executes vector search in a goroutine
func (s *Searcher) runVectorSearch(ctx context.Context, req SearchRequest, resultChan chan<- searchResult) {
	var res searchResult
	vec, err := s.embedQuery(ctx, req.Query)
	if err != nil {
		res.err = err
	} else {
		res.vectorResults, res.err = s.index.SearchVector(ctx, vec, req.Limit*2, req.Filters)
	}
	select {
	case resultChan <- res:
	case <-ctx.Done():
	}
}

// runTextSearch executes text search in a goroutine
func (s *Searcher) runTextSearch(ctx context.Context, req SearchRequest, resultChan chan<- searchResult) {
	var res searchResult
	res.textResults, res.err = s.storage.SearchText(ctx, req.Query, req.Limit*2, req.Filters)
	select {
	case resultChan <- res:
	case <-ctx.Done():
	}
}

// hybridSearch combines vector and BM25 search using Reciprocal Rank Fusion
func (s *Searcher) hybridSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	vectorChan := make(chan searchResult, 1)
	textChan := make(chan searchResult, 1)

	go s.runVectorSearch(ctx, req, vectorChan)
	go s.runTextSearch(ctx, req, textChan)

	var vectorRes, textRes searchResult
	var vectorDone, textDone bool
	for !vectorDone || !textDone {
		select {
		case vectorRes = <-vectorChan:
			vectorDone = true
		case textRes = <-textChan:
			textDone = true
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// Allow one side to fail
	if vectorRes.err != nil && textRes.err != nil {
		return nil, fmt.Errorf("both searches failed: vector=%w, text=%v", vectorRes.err, textRes.err)
	}

	rrf := s.applyRRF(vectorRes.vectorResults, textRes.textResults, req.RRFConstant)
	results, err := s.fetchResults(ctx, rrf, req.Limit)
	if err != nil {
		return nil, err
	}

	return &SearchResponse{
		Results:       results,
		TotalResults:  len(results),
		VectorResults: len(vectorRes.vectorResults),
		TextResults:   len(textRes.textResults),
	}, nil
}

// vectorSearch performs only vector similarity search
func (s *Searcher) vectorSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	vec, err := s.embedQuery(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	vectorResults, err := s.index.SearchVector(ctx, vec, req.Limit, req.Filters)
	if err != nil {
		return nil, err
	}

	rankedResults := make([]rankedResult, len(vectorResults))
	for i, vr := range vectorResults {
		rankedResults[i] = rankedResult{
			chunkID: vr.ChunkID,
			score:   vr.SimilarityScore,
			rank:    i + 1,
		}
	}

	results, err := s.fetchResults(ctx, rankedResults, req.Limit)
	if err != nil {
		return nil, err
	}

	return &SearchResponse{
		Results:       results,
		TotalResults:  len(results),
		VectorResults: len(vectorResults),
	}, nil
}

// keywordSearch performs only BM25 text search
func (s *Searcher) keywordSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	textResults, err := s.storage.SearchText(ctx, req.Query, req.Limit, req.Filters)
	if err != nil {
		return nil, err
	}

	rankedResults := make([]rankedResult, len(textResults))
	for i, tr := range textResults {
		rankedResults[i] = rankedResult{
			chunkID: tr.ChunkID,
			score:   tr.BM25Score,
			rank:    i + 1,
		}
	}

	results, err := s.fetchResults(ctx, rankedResults, req.Limit)
	if err != nil {
		return nil, err
	}

	return &SearchResponse{
		Results:      results,
		TotalResults: len(results),
		TextResults:  len(textResults),
	}, nil
}

// rankedResult represents a chunk with its relevance score and rank
type rankedResult struct {
	chunkID string
	score   float64
	rank    int
}

// applyRRF applies Reciprocal Rank Fusion to combine vector and text results
// RRF formula: RRF(d) = Σ 1/(k + rank(d))
func (s *Searcher) applyRRF(vectorResults []storage.VectorResult, textResults []storage.TextResult, k float64) []rankedResult {
	if k == 0 {
		k = DefaultRRFConstant
	}

	scores := make(map[string]float64)
	for rank, vr := range vectorResults {
		scores[vr.ChunkID] += 1.0 / (k + float64(rank+1))
	}
	for rank, tr := range textResults {
		scores[tr.ChunkID] += 1.0 / (k + float64(rank+1))
	}

	results := make([]rankedResult, 0, len(scores))
	for chunkID, score := range scores {
		results = append(results, rankedResult{
			chunkID: chunkID,
			score:   score,
		})
	}

	sortRankedResults(results)

	for i := range results {
		results[i].rank = i + 1
	}

	return results
}

// fetchResults loads chunk rows for ranked results in one query.
// Chunks deleted since the ranking are skipped and ranks are reassigned.
func (s *Searcher) fetchResults(ctx context.Context, ranked []rankedResult, limit int) ([]types.SearchResult, error) {
	if limit > len(ranked) {
		limit = len(ranked)
	}
	ranked = ranked[:limit]

	ids := make([]string, len(ranked))
	for i, rr := range ranked {
		ids[i] = rr.chunkID
	}
	chunks, err := s.storage.GetChunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}

	results := make([]types.SearchResult, 0, limit)
	for _, rr := range ranked {
		chunk, ok := chunks[rr.chunkID]
		if !ok {
			continue
		}
		results = append(results, types.SearchResult{
			ChunkID:        rr.chunkID,
			Rank:           len(results) + 1,
			RelevanceScore: rr.score,
			Source:         chunk.Source,
			Position:       chunk.Position,
			Content:        chunk.Content,
			Metadata:       chunk.Metadata,
		})
	}

	return results, nil
}

// validateRequest ensures search request is valid and fills defaults
func (s *Searcher) validateRequest(req *SearchRequest) error {
	if strings.TrimSpace(req.Query) == "" {
		return ErrEmptyQuery
	}

	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}

	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return err
	}
	req.Mode = mode

	if req.Filters != nil && (req.Filters.MinRelevance < 0 || req.Filters.MinRelevance > 1) {
		return fmt.Errorf("min relevance must be between 0 and 1, got %v", req.Filters.MinRelevance)
	}

	if req.RRFConstant == 0 {
		req.RRFConstant = DefaultRRFConstant
	}

	if req.CacheTTL == 0 {
		req.CacheTTL = DefaultCacheTTL
	}

	return nil
}

// checkCache looks up cached search results
func (s *Searcher) checkCache(req SearchRequest) (*SearchResponse, bool) {
	hash := computeQueryHash(req)
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil, false
	}

	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()

		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil, false
	}

	// Copy while holding the read lock
	response := copySearchResponse(entry.response)
	s.cacheMu.RUnlock()

	return response, true
}

// storeInCache saves search results to cache
func (s *Searcher) storeInCache(req SearchRequest, response *SearchResponse) {
	entry := &cacheEntry{
		response:  copySearchResponse(response),
		expiresAt: time.Now().Add(req.CacheTTL),
	}

	s.cacheMu.Lock()
	s.cache.Add(computeQueryHash(req), entry)
	s.cacheMu.Unlock()
}

// copySearchResponse creates a deep copy of a SearchResponse
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}

	dst := *src
	dst.Results = make([]types.SearchResult, len(src.Results))
	for i, result := range src.Results {
		dst.Results[i] = result
		if result.Metadata != nil {
			meta := make(map[string]string, len(result.Metadata))
			for k, v := range result.Metadata {
				meta[k] = v
			}
			dst.Results[i].Metadata = meta
		}
	}

	return &dst
}

// computeQueryHash computes a unique hash for a search request
func computeQueryHash(req SearchRequest) [32]byte {
	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(string(req.Mode))
	fmt.Fprintf(&data, "|%d|%.0f", req.Limit, req.RRFConstant)

	if req.Filters != nil {
		sources := append([]string(nil), req.Filters.Sources...)
		sort.Strings(sources)
		data.WriteString("|filters:")
		data.WriteString(strings.Join(sources, ","))
		fmt.Fprintf(&data, "|%.2f", req.Filters.MinRelevance)
	}

	return sha256.Sum256([]byte(data.String()))
}

// sortRankedResults sorts by score descending, ties broken by chunk id
func sortRankedResults(results []rankedResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].chunkID < results[j].chunkID
	})
}

// InvalidateCache drops every cached response. Called after ingest changes the store.
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// CacheLen reports the number of cached responses
func (s *Searcher) CacheLen() int {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache.Len()
}

