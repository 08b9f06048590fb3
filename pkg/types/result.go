package types

// SearchResult represents a single search result with relevance information
type SearchResult struct {
	// Identification
	ChunkID string
	Rank    int // Position in result set (1-based)

	// Scoring
	RelevanceScore float64 // Cosine similarity, normalized BM25, or RRF score

	// Metadata
	Source   string
	Position int
	Content  string
	Metadata map[string]string
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.ChunkID == "" {
		return ErrInvalidChunkID
	}

	if sr.Rank < 1 {
		return ErrInvalidRank
	}

	if sr.RelevanceScore < -1 || sr.RelevanceScore > 1 {
		return ErrInvalidRelevanceScore
	}

	if sr.Source == "" {
		return ErrMissingSource
	}

	if sr.Content == "" {
		return ErrEmptyContent
	}

	return nil
}
