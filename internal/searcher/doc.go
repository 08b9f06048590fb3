// Package searcher retrieves stored chunks for a query by vector similarity,
// keyword matching, or both.
//
// Three search modes:
//   - Hybrid (default): vector + BM25 keyword search merged with Reciprocal Rank Fusion
//   - Vector: cosine similarity between the query embedding and chunk embeddings
//   - Keyword: BM25 full-text search only; no embedding call
//
// # Basic Usage
//
//	s := searcher.NewSearcher(store, emb)
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    Query: "¿Qué es la fotosíntesis?",
//	    Limit: 3,
//	    Mode:  searcher.SearchModeVector,
//	})
//	for _, r := range resp.Results {
//	    fmt.Printf("[%d] %s (%.2f)\n", r.Rank, r.Source, r.RelevanceScore)
//	}
//
// Vector queries go to the store unless a separate index is supplied:
//
//	s := searcher.NewSearcher(store, emb, searcher.WithVectorIndex(chromemIdx))
//
// Chunk text and metadata are always loaded from the store.
//
// # Reciprocal Rank Fusion
//
//	RRF(d) = Σ 1 / (k + rank(d))
//
// summed over the vector and keyword rankings, with k = 60 unless the request
// sets RRFConstant. Each side fetches twice the requested limit before fusion.
// If one side fails the other still answers; if both fail Search returns an error.
//
// # Filters
//
//	Filters: &storage.SearchFilters{
//	    Sources:      []string{"docs/biologia.txt"},
//	    MinRelevance: 0.5,
//	}
//
// # Caching
//
// With UseCache set, responses are kept in an LRU cache (1000 entries) for
// CacheTTL (default 1h), keyed on query, mode, limit, RRF constant and filters.
// Call InvalidateCache after ingest changes the store.
package searcher
