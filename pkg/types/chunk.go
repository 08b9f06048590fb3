package types

import (
	"crypto/sha256"
	"errors"
	"strconv"
	"strings"
)

// Metadata keys attached to every stored chunk
const (
	MetaSourceFile    = "source_file"
	MetaLanguage      = "language"
	MetaPosition      = "position"
	MetaSentenceStart = "sentence_start"
	MetaSentenceEnd   = "sentence_end"
	MetaTokenCount    = "token_count"
)

// Chunk is a contiguous run of sentences stored as one retrieval unit
type Chunk struct {
	// Identification
	ID         string // UUID, unique across the store
	DocumentID int64
	Position   int // 0-based order within the document

	// Content
	Content     string
	ContentHash [32]byte // SHA-256 hash for deduplication
	TokenCount  int

	// Sentence range [SentenceStart, SentenceEnd) within the source document
	SentenceStart int
	SentenceEnd   int

	Metadata map[string]string
}

// ValidateContent checks if the chunk content is valid
func (c *Chunk) ValidateContent() error {
	if strings.TrimSpace(c.Content) == "" {
		return errors.New("chunk content cannot be empty")
	}

	if c.SentenceStart < 0 || c.SentenceEnd < 0 {
		return errors.New("sentence indexes must not be negative")
	}

	if c.SentenceStart >= c.SentenceEnd {
		return errors.New("a chunk must span at least one sentence")
	}

	return nil
}

// ComputeContentHash computes the SHA-256 hash of the chunk content
func (c *Chunk) ComputeContentHash() {
	c.ContentHash = sha256.Sum256([]byte(c.Content))
}

// StampMetadata records position, sentence range and token count in Metadata
func (c *Chunk) StampMetadata() {
	if c.Metadata == nil {
		c.Metadata = make(map[string]string, 4)
	}
	c.Metadata[MetaPosition] = strconv.Itoa(c.Position)
	c.Metadata[MetaSentenceStart] = strconv.Itoa(c.SentenceStart)
	c.Metadata[MetaSentenceEnd] = strconv.Itoa(c.SentenceEnd)
	c.Metadata[MetaTokenCount] = strconv.Itoa(c.TokenCount)
}

// SentenceCount returns how many sentences the chunk spans
func (c *Chunk) SentenceCount() int {
	return c.SentenceEnd - c.SentenceStart
}

// Validate performs comprehensive validation of the chunk
func (c *Chunk) Validate() error {
	if c.ID == "" {
		return errors.New("chunk ID is required")
	}

	if err := c.ValidateContent(); err != nil {
		return err
	}

	if c.Position < 0 {
		return errors.New("position must not be negative")
	}

	var zeroHash [32]byte
	if c.ContentHash == zeroHash {
		return errors.New("content hash must be computed")
	}

	return nil
}

// Source returns the source file recorded in the chunk metadata
func (c *Chunk) Source() string {
	if c.Metadata == nil {
		return ""
	}
	return c.Metadata[MetaSourceFile]
}
