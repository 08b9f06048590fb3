package storage

import (
	"context"
	"fmt"
	"runtime"
	"slices"

	"github.com/philippgille/chromem-go"
)

// DefaultCollection is the chromem collection chunks are written to
const DefaultCollection = "rag_collection"

// metaSource is the chromem metadata key carrying the document source
const metaSource = "source"

// ChromemIndex is a VectorIndex backed by an embedded chromem-go collection.
// Documents carry precomputed embeddings, so the collection never calls an
// embedding function.
type ChromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// NewChromemIndex opens the collection at path, or an in-memory one when path is empty
func NewChromemIndex(path, collection string) (*ChromemIndex, error) {
	if collection == "" {
		collection = DefaultCollection
	}

	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem db at %s: %w", path, err)
		}
	}

	col, err := db.GetOrCreateCollection(collection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", collection, err)
	}

	return &ChromemIndex{db: db, collection: col}, nil
}

// UpsertChunks adds or replaces documents by id
func (c *ChromemIndex) UpsertChunks(ctx context.Context, req UpsertRequest) (int, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}

	docs := make([]chromem.Document, len(req.IDs))
	for i, id := range req.IDs {
		meta := make(map[string]string, len(req.metadata(i))+1)
		for k, v := range req.metadata(i) {
			meta[k] = v
		}
		if req.Source != "" {
			meta[metaSource] = req.Source
		}
		docs[i] = chromem.Document{
			ID:        id,
			Metadata:  meta,
			Embedding: req.Embeddings[i],
			Content:   req.Texts[i],
		}
	}

	if err := c.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return 0, fmt.Errorf("failed to add documents: %w", err)
	}
	return len(docs), nil
}

// SearchVector returns the nearest chunks by cosine similarity
func (c *ChromemIndex) SearchVector(ctx context.Context, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}

	count := c.collection.Count()
	if count == 0 || limit == 0 {
		return []VectorResult{}, nil
	}

	// A single source is pushed into chromem's where filter; several are
	// filtered after the query over the whole collection
	var where map[string]string
	n := limit
	if filters != nil && len(filters.Sources) == 1 {
		where = map[string]string{metaSource: filters.Sources[0]}
	} else if filters != nil && len(filters.Sources) > 1 {
		n = count
	}
	if n <= 0 || n > count {
		n = count
	}

	results, err := c.collection.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	out := make([]VectorResult, 0, len(results))
	for _, r := range results {
		if filters != nil {
			if len(filters.Sources) > 1 && !slices.Contains(filters.Sources, r.Metadata[metaSource]) {
				continue
			}
			if filters.MinRelevance > 0 && float64(r.Similarity) < filters.MinRelevance {
				continue
			}
		}
		out = append(out, VectorResult{ChunkID: r.ID, SimilarityScore: float64(r.Similarity)})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// DeleteSource removes every chunk of a document
func (c *ChromemIndex) DeleteSource(ctx context.Context, source string) error {
	if c.collection.Count() == 0 {
		return nil
	}
	if err := c.collection.Delete(ctx, map[string]string{metaSource: source}, nil); err != nil {
		return fmt.Errorf("failed to delete source %s: %w", source, err)
	}
	return nil
}

// Count returns the number of documents in the collection
func (c *ChromemIndex) Count(_ context.Context) (int, error) {
	return c.collection.Count(), nil
}

// Close is a no-op; persistent collections are written on every change
func (c *ChromemIndex) Close() error {
	return nil
}

var (
	_ VectorIndex = (*ChromemIndex)(nil)
	_ VectorIndex = (*SQLiteStorage)(nil)
	_ Storage     = (*SQLiteStorage)(nil)
)
