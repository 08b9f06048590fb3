package storage

import (
	"context"
	"crypto/sha256"
	"fmt"
	"testing"
	"time"

	"github.com/dshills/semrag/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	return storage
}

func createDocument(t *testing.T, s Storage, source string) *Document {
	t.Helper()
	doc := &Document{
		Source:      source,
		ContentHash: sha256.Sum256([]byte(source)),
		Language:    "es",
	}
	require.NoError(t, s.UpsertDocument(context.Background(), doc))
	return doc
}

func chunkRequest(doc *Document, ids []string, texts []string, vecs [][]float32) UpsertRequest {
	metas := make([]map[string]string, len(ids))
	for i := range ids {
		metas[i] = map[string]string{
			types.MetaSourceFile: doc.Source,
			types.MetaPosition:   fmt.Sprint(i),
			types.MetaTokenCount: "7",
		}
	}
	return UpsertRequest{
		DocumentID: doc.ID,
		Source:     doc.Source,
		IDs:        ids,
		Texts:      texts,
		Embeddings: vecs,
		Metadatas:  metas,
		Provider:   "local",
		Model:      "local-hash",
	}
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	assert.NotNil(t, storage)
	assert.NotNil(t, storage.DB())
	assert.Equal(t, VectorExtensionAvailable && storage.VectorExtensionLoaded(), storage.VectorExtensionLoaded())
}

func TestClose(t *testing.T) {
	storage := setupTestDB(t)
	err := storage.Close()
	assert.NoError(t, err)
}

func TestSchemaVersion(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	version, err := SchemaVersion(ctx, storage.DB())
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)

	// Re-applying is a no-op
	require.NoError(t, ApplyMigrations(ctx, storage.DB()))
	version, err = SchemaVersion(ctx, storage.DB())
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestRollbackMigration(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	require.NoError(t, RollbackMigration(ctx, storage.DB()))
	version, err := SchemaVersion(ctx, storage.DB())
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", version)

	require.NoError(t, RollbackMigration(ctx, storage.DB()))
	version, err = SchemaVersion(ctx, storage.DB())
	require.NoError(t, err)
	assert.Equal(t, "0.0.0", version)

	assert.Error(t, RollbackMigration(ctx, storage.DB()))

	// And forward again
	require.NoError(t, ApplyMigrations(ctx, storage.DB()))
	version, err = SchemaVersion(ctx, storage.DB())
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestUpsertDocument(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	doc := createDocument(t, storage, "docs/a.txt")
	assert.Greater(t, doc.ID, int64(0))
	assert.False(t, doc.LastIngestedAt.IsZero())

	// Same source keeps its id
	again := &Document{Source: "docs/a.txt", Language: "en", SentenceCount: 4, ChunkCount: 2}
	require.NoError(t, storage.UpsertDocument(ctx, again))
	assert.Equal(t, doc.ID, again.ID)

	got, err := storage.GetDocument(ctx, "docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "en", got.Language)
	assert.Equal(t, 4, got.SentenceCount)
	assert.Equal(t, 2, got.ChunkCount)

	byID, err := storage.GetDocumentByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "docs/a.txt", byID.Source)
}

func TestUpsertDocument_MissingSource(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	err := storage.UpsertDocument(context.Background(), &Document{})
	assert.ErrorIs(t, err, types.ErrMissingSource)
}

func TestGetDocument_NotFound(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	_, err := storage.GetDocument(ctx, "missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = storage.GetDocumentByID(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListDocuments(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	createDocument(t, storage, "b.txt")
	createDocument(t, storage, "a.txt")

	docs, err := storage.ListDocuments(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a.txt", docs[0].Source)
	assert.Equal(t, "b.txt", docs[1].Source)
}

func TestUpsertChunks(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	doc := createDocument(t, storage, "a.txt")
	req := chunkRequest(doc,
		[]string{"c1", "c2"},
		[]string{"El gato duerme.", "El perro ladra."},
		[][]float32{{1, 0, 0}, {0, 1, 0}},
	)

	n, err := storage.UpsertChunks(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	chunk, err := storage.GetChunk(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, "El perro ladra.", chunk.Content)
	assert.Equal(t, "a.txt", chunk.Source)
	assert.Equal(t, doc.ID, chunk.DocumentID)
	assert.Equal(t, 1, chunk.Position)
	assert.Equal(t, 7, chunk.TokenCount)
	assert.Equal(t, "a.txt", chunk.Metadata[types.MetaSourceFile])
	assert.Equal(t, sha256.Sum256([]byte("El perro ladra.")), chunk.ContentHash)

	emb, err := storage.GetEmbedding(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, 3, emb.Dimension)
	assert.Equal(t, "local", emb.Provider)
	assert.Equal(t, []float32{0, 1, 0}, DeserializeVector(emb.Vector))
}

func TestUpsertChunks_Idempotent(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	doc := createDocument(t, storage, "a.txt")
	req := chunkRequest(doc,
		[]string{"c1", "c2"},
		[]string{"uno.", "dos."},
		[][]float32{{1, 0}, {0, 1}},
	)

	_, err := storage.UpsertChunks(ctx, req)
	require.NoError(t, err)

	req.Texts = []string{"uno actualizado.", "dos."}
	_, err = storage.UpsertChunks(ctx, req)
	require.NoError(t, err)

	chunks, err := storage.ListChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "uno actualizado.", chunks[0].Content)

	count, err := storage.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestUpsertChunks_InvalidRequest(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	doc := createDocument(t, storage, "a.txt")

	tests := []struct {
		name string
		req  UpsertRequest
	}{
		{"no ids", UpsertRequest{DocumentID: doc.ID}},
		{"length mismatch", UpsertRequest{
			DocumentID: doc.ID,
			IDs:        []string{"a", "b"},
			Texts:      []string{"x"},
			Embeddings: [][]float32{{1}, {1}},
		}},
		{"empty id", UpsertRequest{
			DocumentID: doc.ID,
			IDs:        []string{""},
			Texts:      []string{"x"},
			Embeddings: [][]float32{{1}},
		}},
		{"duplicate id", UpsertRequest{
			DocumentID: doc.ID,
			IDs:        []string{"a", "a"},
			Texts:      []string{"x", "y"},
			Embeddings: [][]float32{{1}, {1}},
		}},
		{"empty text", UpsertRequest{
			DocumentID: doc.ID,
			IDs:        []string{"a"},
			Texts:      []string{""},
			Embeddings: [][]float32{{1}},
		}},
		{"ragged embeddings", UpsertRequest{
			DocumentID: doc.ID,
			IDs:        []string{"a", "b"},
			Texts:      []string{"x", "y"},
			Embeddings: [][]float32{{1, 0}, {1}},
		}},
		{"metadata mismatch", UpsertRequest{
			DocumentID: doc.ID,
			IDs:        []string{"a"},
			Texts:      []string{"x"},
			Embeddings: [][]float32{{1}},
			Metadatas:  []map[string]string{{}, {}},
		}},
		{"missing document", UpsertRequest{
			IDs:        []string{"a"},
			Texts:      []string{"x"},
			Embeddings: [][]float32{{1}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := storage.UpsertChunks(ctx, tt.req)
			assert.ErrorIs(t, err, ErrInvalidUpsert)
		})
	}
}

func TestGetChunks(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	doc := createDocument(t, storage, "a.txt")
	_, err := storage.UpsertChunks(ctx, chunkRequest(doc,
		[]string{"c1", "c2", "c3"},
		[]string{"uno.", "dos.", "tres."},
		[][]float32{{1, 0}, {0, 1}, {1, 1}},
	))
	require.NoError(t, err)

	chunks, err := storage.GetChunks(ctx, []string{"c1", "c3", "missing"})
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
	assert.Equal(t, "uno.", chunks["c1"].Content)
	assert.Equal(t, "tres.", chunks["c3"].Content)

	empty, err := storage.GetChunks(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = storage.GetChunk(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteChunksByDocument(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	doc := createDocument(t, storage, "a.txt")
	_, err := storage.UpsertChunks(ctx, chunkRequest(doc,
		[]string{"c1", "c2"},
		[]string{"uno.", "dos."},
		[][]float32{{1, 0}, {0, 1}},
	))
	require.NoError(t, err)

	deleted, err := storage.DeleteChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	chunks, err := storage.ListChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	_, err = storage.GetEmbedding(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteDocument_Cascades(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	doc := createDocument(t, storage, "a.txt")
	other := createDocument(t, storage, "b.txt")
	_, err := storage.UpsertChunks(ctx, chunkRequest(doc, []string{"c1"}, []string{"uno."}, [][]float32{{1, 0}}))
	require.NoError(t, err)
	_, err = storage.UpsertChunks(ctx, chunkRequest(other, []string{"c2"}, []string{"dos."}, [][]float32{{0, 1}}))
	require.NoError(t, err)

	require.NoError(t, storage.DeleteDocument(ctx, doc.ID))

	_, err = storage.GetChunk(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, storage.DeleteSource(ctx, "b.txt"))
	count, err := storage.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// FTS rows follow the chunk triggers
	results, err := storage.SearchText(ctx, "dos", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBeginTx_CommitRollback(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	tx, err := storage.BeginTx(ctx)
	require.NoError(t, err)
	doc := &Document{Source: "rolled-back.txt"}
	require.NoError(t, tx.UpsertDocument(ctx, doc))
	require.NoError(t, tx.Rollback())

	_, err = storage.GetDocument(ctx, "rolled-back.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	tx, err = storage.BeginTx(ctx)
	require.NoError(t, err)
	doc = &Document{Source: "committed.txt"}
	require.NoError(t, tx.UpsertDocument(ctx, doc))
	_, err = tx.UpsertChunks(ctx, chunkRequest(doc, []string{"c1"}, []string{"uno."}, [][]float32{{1}}))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	chunk, err := storage.GetChunk(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "committed.txt", chunk.Source)
}

func TestGetStatus(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	status, err := storage.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.DocumentsCount)
	assert.Nil(t, status.LastRun)
	assert.True(t, status.LastIngestedAt.IsZero())
	assert.True(t, status.Health.DatabaseAccessible)
	assert.False(t, status.Health.EmbeddingsAvailable)

	doc := createDocument(t, storage, "a.txt")
	_, err = storage.UpsertChunks(ctx, chunkRequest(doc,
		[]string{"c1", "c2"},
		[]string{"uno.", "dos."},
		[][]float32{{1, 0}, {0, 1}},
	))
	require.NoError(t, err)

	run := &IngestRun{
		Root:             "/data",
		StartedAt:        time.Now().Add(-time.Second),
		Duration:         1500 * time.Millisecond,
		DocumentsIndexed: 1,
		ChunksCreated:    2,
	}
	require.NoError(t, storage.RecordIngestRun(ctx, run))
	assert.Greater(t, run.ID, int64(0))

	status, err = storage.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.DocumentsCount)
	assert.Equal(t, 2, status.ChunksCount)
	assert.Equal(t, 2, status.EmbeddingsCount)
	assert.False(t, status.LastIngestedAt.IsZero())
	assert.True(t, status.Health.EmbeddingsAvailable)
	assert.Greater(t, status.IndexSizeMB, 0.0)

	require.NotNil(t, status.LastRun)
	assert.Equal(t, "/data", status.LastRun.Root)
	assert.Equal(t, 1500*time.Millisecond, status.LastRun.Duration)
	assert.Equal(t, 2, status.LastRun.ChunksCreated)
}
