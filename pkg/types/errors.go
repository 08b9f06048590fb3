package types

import "errors"

// Domain errors for type validation
var (
	// Search result errors
	ErrInvalidChunkID        = errors.New("invalid chunk ID")
	ErrInvalidRank           = errors.New("rank must be >= 1")
	ErrInvalidRelevanceScore = errors.New("relevance score must be between -1 and 1")
	ErrMissingSource         = errors.New("source is required")
	ErrEmptyContent          = errors.New("content cannot be empty")
)
