package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Storage defines the interface for persisting and querying ingested documents
type Storage interface {
	// Document operations
	UpsertDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, source string) (*Document, error)
	GetDocumentByID(ctx context.Context, documentID int64) (*Document, error)
	ListDocuments(ctx context.Context) ([]*Document, error)
	DeleteDocument(ctx context.Context, documentID int64) error

	// Chunk operations
	UpsertChunks(ctx context.Context, req UpsertRequest) (int, error)
	GetChunk(ctx context.Context, chunkID string) (*Chunk, error)
	GetChunks(ctx context.Context, chunkIDs []string) (map[string]*Chunk, error)
	ListChunksByDocument(ctx context.Context, documentID int64) ([]*Chunk, error)
	DeleteChunksByDocument(ctx context.Context, documentID int64) (int, error)

	// Embedding operations
	GetEmbedding(ctx context.Context, chunkID string) (*Embedding, error)

	// Search operations
	SearchVector(ctx context.Context, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error)
	SearchText(ctx context.Context, query string, limit int, filters *SearchFilters) ([]TextResult, error)

	// Ingest run history
	RecordIngestRun(ctx context.Context, run *IngestRun) error

	// Status operations
	GetStatus(ctx context.Context) (*Status, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage
}

// VectorIndex stores chunk vectors and answers nearest-neighbour queries.
// SQLiteStorage is always one; ChromemIndex is an optional dedicated index.
type VectorIndex interface {
	UpsertChunks(ctx context.Context, req UpsertRequest) (int, error)
	SearchVector(ctx context.Context, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error)
	DeleteSource(ctx context.Context, source string) error
	Count(ctx context.Context) (int, error)
	Close() error
}

// Document is one ingested source: a file, an uploaded text or a JSONL dataset
type Document struct {
	ID             int64
	Source         string
	ContentHash    [32]byte
	Language       string
	SentenceCount  int
	ChunkCount     int
	SizeBytes      int64
	LastIngestedAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Chunk is a stored chunk of document text
type Chunk struct {
	ID          string
	DocumentID  int64
	Source      string // Joined from documents on read
	Position    int
	Content     string
	ContentHash [32]byte
	TokenCount  int
	Metadata    map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Embedding represents a vector embedding for a chunk
type Embedding struct {
	ChunkID   string
	Vector    []byte // Serialized float32 array
	Dimension int
	Provider  string
	Model     string
	CreatedAt time.Time
}

// UpsertRequest carries index-aligned chunk data. Upserts are keyed by ID:
// writing the same request twice leaves one row per ID.
type UpsertRequest struct {
	DocumentID int64
	Source     string
	IDs        []string
	Texts      []string
	Embeddings [][]float32
	Metadatas  []map[string]string // Optional; "position" and "token_count" populate columns
	Provider   string
	Model      string
}

// ErrInvalidUpsert is returned for malformed upsert requests
var ErrInvalidUpsert = errors.New("invalid upsert request")

// Validate checks the parallel lists line up
func (r *UpsertRequest) Validate() error {
	n := len(r.IDs)
	if n == 0 {
		return fmt.Errorf("%w: no ids", ErrInvalidUpsert)
	}
	if len(r.Texts) != n || len(r.Embeddings) != n {
		return fmt.Errorf("%w: %d ids, %d texts, %d embeddings", ErrInvalidUpsert, n, len(r.Texts), len(r.Embeddings))
	}
	if r.Metadatas != nil && len(r.Metadatas) != n {
		return fmt.Errorf("%w: %d ids, %d metadatas", ErrInvalidUpsert, n, len(r.Metadatas))
	}

	seen := make(map[string]struct{}, n)
	dim := len(r.Embeddings[0])
	for i, id := range r.IDs {
		if id == "" {
			return fmt.Errorf("%w: empty id at index %d", ErrInvalidUpsert, i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidUpsert, id)
		}
		seen[id] = struct{}{}
		if r.Texts[i] == "" {
			return fmt.Errorf("%w: empty text at index %d", ErrInvalidUpsert, i)
		}
		if len(r.Embeddings[i]) == 0 || len(r.Embeddings[i]) != dim {
			return fmt.Errorf("%w: embedding %d has dimension %d, expected %d", ErrInvalidUpsert, i, len(r.Embeddings[i]), dim)
		}
	}
	return nil
}

func (r *UpsertRequest) metadata(i int) map[string]string {
	if r.Metadatas == nil || r.Metadatas[i] == nil {
		return map[string]string{}
	}
	return r.Metadatas[i]
}

// SearchFilters contains filters for narrowing search results
type SearchFilters struct {
	Sources      []string // Restrict to these document sources
	MinRelevance float64  // Minimum relevance score
}

// VectorResult represents a result from vector similarity search
type VectorResult struct {
	ChunkID         string
	SimilarityScore float64
}

// TextResult represents a result from full-text search
type TextResult struct {
	ChunkID   string
	BM25Score float64
}

// IngestRun records one ingest invocation
type IngestRun struct {
	ID               int64
	Root             string
	StartedAt        time.Time
	Duration         time.Duration
	DocumentsIndexed int
	DocumentsSkipped int
	ChunksCreated    int
	ErrorCount       int
}

// Status contains statistics about the store
type Status struct {
	DocumentsCount  int
	ChunksCount     int
	EmbeddingsCount int
	IndexSizeMB     float64
	LastIngestedAt  time.Time
	LastRun         *IngestRun
	Health          HealthStatus
}

// HealthStatus represents the health of the index
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
	FTSIndexesBuilt     bool
	VectorExtension     bool
}
