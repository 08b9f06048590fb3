package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/semrag/pkg/types"
)

// ErrNotFound is returned when a requested entity doesn't exist
var ErrNotFound = errors.New("not found")

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db        *sql.DB
	vecLoaded bool
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Single writer; also keeps ":memory:" databases on one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db, vecLoaded: probeVectorExtension(db)}, nil
}

// probeVectorExtension reports whether vec_distance_cosine is callable.
// The sqlite_vec build only links a driver that can load the extension.
func probeVectorExtension(db *sql.DB) bool {
	if !VectorExtensionAvailable {
		return false
	}
	var version string
	return db.QueryRow("SELECT vec_version()").Scan(&version) == nil
}

// VectorExtensionLoaded reports whether vector search runs inside SQLite
func (s *SQLiteStorage) VectorExtensionLoaded() bool {
	return s.vecLoaded
}

// DB exposes the underlying handle for migrations and diagnostics
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Document operations

const documentColumns = `id, source, content_hash, language, sentence_count, chunk_count,
	size_bytes, last_ingested_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var hash []byte
	var lastIngested sql.NullTime
	err := row.Scan(
		&doc.ID, &doc.Source, &hash, &doc.Language, &doc.SentenceCount, &doc.ChunkCount,
		&doc.SizeBytes, &lastIngested, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	copy(doc.ContentHash[:], hash)
	if lastIngested.Valid {
		doc.LastIngestedAt = lastIngested.Time
	}
	return &doc, nil
}

// upsertDocumentWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertDocumentWithQuerier(ctx context.Context, q querier, doc *Document) error {
	if doc.Source == "" {
		return fmt.Errorf("failed to upsert document: %w", types.ErrMissingSource)
	}
	query := `
		INSERT INTO documents (source, content_hash, language, sentence_count, chunk_count,
			size_bytes, last_ingested_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET
			content_hash = excluded.content_hash,
			language = excluded.language,
			sentence_count = excluded.sentence_count,
			chunk_count = excluded.chunk_count,
			size_bytes = excluded.size_bytes,
			last_ingested_at = excluded.last_ingested_at,
			updated_at = excluded.updated_at
		RETURNING id, created_at
	`
	now := time.Now()
	err := q.QueryRowContext(ctx, query,
		doc.Source, doc.ContentHash[:], doc.Language, doc.SentenceCount, doc.ChunkCount,
		doc.SizeBytes, now, now, now,
	).Scan(&doc.ID, &doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	doc.LastIngestedAt = now
	doc.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertDocument(ctx context.Context, doc *Document) error {
	return s.upsertDocumentWithQuerier(ctx, s.querier(), doc)
}

// getDocumentWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getDocumentWithQuerier(ctx context.Context, q querier, source string) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE source = ?`
	doc, err := scanDocument(q.QueryRowContext(ctx, query, source))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return doc, err
}

func (s *SQLiteStorage) GetDocument(ctx context.Context, source string) (*Document, error) {
	return s.getDocumentWithQuerier(ctx, s.querier(), source)
}

func (s *SQLiteStorage) getDocumentByIDWithQuerier(ctx context.Context, q querier, documentID int64) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = ?`
	doc, err := scanDocument(q.QueryRowContext(ctx, query, documentID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return doc, err
}

func (s *SQLiteStorage) GetDocumentByID(ctx context.Context, documentID int64) (*Document, error) {
	return s.getDocumentByIDWithQuerier(ctx, s.querier(), documentID)
}

func (s *SQLiteStorage) listDocumentsWithQuerier(ctx context.Context, q querier) ([]*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents ORDER BY source`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	docs := make([]*Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *SQLiteStorage) ListDocuments(ctx context.Context) ([]*Document, error) {
	return s.listDocumentsWithQuerier(ctx, s.querier())
}

// deleteDocumentWithQuerier removes a document; chunks and embeddings cascade
func (s *SQLiteStorage) deleteDocumentWithQuerier(ctx context.Context, q querier, documentID int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, documentID)
	return err
}

func (s *SQLiteStorage) DeleteDocument(ctx context.Context, documentID int64) error {
	return s.deleteDocumentWithQuerier(ctx, s.querier(), documentID)
}

// Chunk operations

// upsertChunksWithQuerier writes chunk rows and their embeddings keyed by chunk id
func (s *SQLiteStorage) upsertChunksWithQuerier(ctx context.Context, q querier, req UpsertRequest) (int, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}
	if req.DocumentID == 0 {
		return 0, fmt.Errorf("%w: document id required", ErrInvalidUpsert)
	}

	chunkQuery := `
		INSERT INTO chunks (id, document_id, position, content, content_hash, token_count,
			metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			position = excluded.position,
			content = excluded.content,
			content_hash = excluded.content_hash,
			token_count = excluded.token_count,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`
	embeddingQuery := `
		INSERT INTO embeddings (chunk_id, vector, dimension, provider, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			provider = excluded.provider,
			model = excluded.model,
			created_at = excluded.created_at
	`

	now := time.Now()
	for i, id := range req.IDs {
		meta := req.metadata(i)
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return i, fmt.Errorf("failed to encode metadata for chunk %s: %w", id, err)
		}
		hash := sha256.Sum256([]byte(req.Texts[i]))

		_, err = q.ExecContext(ctx, chunkQuery,
			id, req.DocumentID, metaInt(meta, types.MetaPosition, i), req.Texts[i], hash[:],
			metaInt(meta, types.MetaTokenCount, 0), string(metaJSON), now, now)
		if err != nil {
			return i, fmt.Errorf("failed to upsert chunk %s: %w", id, err)
		}

		vec := req.Embeddings[i]
		_, err = q.ExecContext(ctx, embeddingQuery,
			id, serializeVector(vec), len(vec), req.Provider, req.Model, now)
		if err != nil {
			return i, fmt.Errorf("failed to upsert embedding for chunk %s: %w", id, err)
		}
	}

	return len(req.IDs), nil
}

func (s *SQLiteStorage) UpsertChunks(ctx context.Context, req UpsertRequest) (int, error) {
	return s.upsertChunksWithQuerier(ctx, s.querier(), req)
}

// metaInt reads an integer metadata value, falling back to def
func metaInt(meta map[string]string, key string, def int) int {
	if v, ok := meta[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

const chunkColumns = `c.id, c.document_id, d.source, c.position, c.content, c.content_hash,
	c.token_count, c.metadata, c.created_at, c.updated_at`

func scanChunk(row rowScanner) (*Chunk, error) {
	var chunk Chunk
	var hash []byte
	var metaJSON string
	err := row.Scan(
		&chunk.ID, &chunk.DocumentID, &chunk.Source, &chunk.Position, &chunk.Content, &hash,
		&chunk.TokenCount, &metaJSON, &chunk.CreatedAt, &chunk.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	copy(chunk.ContentHash[:], hash)
	chunk.Metadata = map[string]string{}
	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &chunk.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for chunk %s: %w", chunk.ID, err)
		}
	}
	return &chunk, nil
}

func (s *SQLiteStorage) getChunkWithQuerier(ctx context.Context, q querier, chunkID string) (*Chunk, error) {
	query := `SELECT ` + chunkColumns + `
		FROM chunks c JOIN documents d ON c.document_id = d.id
		WHERE c.id = ?`
	chunk, err := scanChunk(q.QueryRowContext(ctx, query, chunkID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return chunk, err
}

func (s *SQLiteStorage) GetChunk(ctx context.Context, chunkID string) (*Chunk, error) {
	return s.getChunkWithQuerier(ctx, s.querier(), chunkID)
}

// getChunksWithQuerier loads many chunks at once; missing ids are absent from the map
func (s *SQLiteStorage) getChunksWithQuerier(ctx context.Context, q querier, chunkIDs []string) (map[string]*Chunk, error) {
	out := make(map[string]*Chunk, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return out, nil
	}

	query := `SELECT ` + chunkColumns + `
		FROM chunks c JOIN documents d ON c.document_id = d.id
		WHERE c.id IN (` + placeholders(len(chunkIDs)) + `)`
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		args[i] = id
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out[chunk.ID] = chunk
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) GetChunks(ctx context.Context, chunkIDs []string) (map[string]*Chunk, error) {
	return s.getChunksWithQuerier(ctx, s.querier(), chunkIDs)
}

func (s *SQLiteStorage) listChunksByDocumentWithQuerier(ctx context.Context, q querier, documentID int64) ([]*Chunk, error) {
	query := `SELECT ` + chunkColumns + `
		FROM chunks c JOIN documents d ON c.document_id = d.id
		WHERE c.document_id = ?
		ORDER BY c.position`
	rows, err := q.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	chunks := make([]*Chunk, 0)
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStorage) ListChunksByDocument(ctx context.Context, documentID int64) ([]*Chunk, error) {
	return s.listChunksByDocumentWithQuerier(ctx, s.querier(), documentID)
}

// deleteChunksByDocumentWithQuerier removes a document's chunks; embeddings cascade
func (s *SQLiteStorage) deleteChunksByDocumentWithQuerier(ctx context.Context, q querier, documentID int64) (int, error) {
	result, err := q.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *SQLiteStorage) DeleteChunksByDocument(ctx context.Context, documentID int64) (int, error) {
	return s.deleteChunksByDocumentWithQuerier(ctx, s.querier(), documentID)
}

// Embedding operations

func (s *SQLiteStorage) getEmbeddingWithQuerier(ctx context.Context, q querier, chunkID string) (*Embedding, error) {
	query := `
		SELECT chunk_id, vector, dimension, provider, model, created_at
		FROM embeddings
		WHERE chunk_id = ?
	`
	var emb Embedding
	err := q.QueryRowContext(ctx, query, chunkID).Scan(
		&emb.ChunkID, &emb.Vector, &emb.Dimension, &emb.Provider, &emb.Model, &emb.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &emb, nil
}

func (s *SQLiteStorage) GetEmbedding(ctx context.Context, chunkID string) (*Embedding, error) {
	return s.getEmbeddingWithQuerier(ctx, s.querier(), chunkID)
}

// Search operations

func (s *SQLiteStorage) SearchVector(ctx context.Context, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	return searchVector(ctx, s.querier(), s.vecLoaded, queryVector, limit, filters)
}

func (s *SQLiteStorage) SearchText(ctx context.Context, query string, limit int, filters *SearchFilters) ([]TextResult, error) {
	return searchText(ctx, s.querier(), query, limit, filters)
}

// DeleteSource removes a document and everything under it
func (s *SQLiteStorage) DeleteSource(ctx context.Context, source string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE source = ?`, source)
	return err
}

// Count returns the number of stored embeddings
func (s *SQLiteStorage) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&n)
	return n, err
}

// Ingest runs

func (s *SQLiteStorage) recordIngestRunWithQuerier(ctx context.Context, q querier, run *IngestRun) error {
	query := `
		INSERT INTO ingest_runs (root, started_at, duration_ms, documents_indexed,
			documents_skipped, chunks_created, error_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	err := q.QueryRowContext(ctx, query,
		run.Root, run.StartedAt, run.Duration.Milliseconds(), run.DocumentsIndexed,
		run.DocumentsSkipped, run.ChunksCreated, run.ErrorCount,
	).Scan(&run.ID)
	if err != nil {
		return fmt.Errorf("failed to record ingest run: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) RecordIngestRun(ctx context.Context, run *IngestRun) error {
	return s.recordIngestRunWithQuerier(ctx, s.querier(), run)
}

func (s *SQLiteStorage) lastIngestRun(ctx context.Context, q querier) (*IngestRun, error) {
	query := `
		SELECT id, root, started_at, duration_ms, documents_indexed, documents_skipped,
		       chunks_created, error_count
		FROM ingest_runs
		ORDER BY id DESC
		LIMIT 1
	`
	var run IngestRun
	var durationMs int64
	err := q.QueryRowContext(ctx, query).Scan(
		&run.ID, &run.Root, &run.StartedAt, &durationMs, &run.DocumentsIndexed,
		&run.DocumentsSkipped, &run.ChunksCreated, &run.ErrorCount,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	run.Duration = time.Duration(durationMs) * time.Millisecond
	return &run, nil
}

// Status operations

func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier) (*Status, error) {
	status := &Status{}

	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM documents", &status.DocumentsCount},
		{"SELECT COUNT(*) FROM chunks", &status.ChunksCount},
		{"SELECT COUNT(*) FROM embeddings", &status.EmbeddingsCount},
	}
	for _, c := range counts {
		if err := q.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, err
		}
	}

	var lastIngested sql.NullTime
	err := q.QueryRowContext(ctx,
		"SELECT last_ingested_at FROM documents ORDER BY last_ingested_at DESC LIMIT 1",
	).Scan(&lastIngested)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if lastIngested.Valid {
		status.LastIngestedAt = lastIngested.Time
	}

	run, err := s.lastIngestRun(ctx, q)
	if err != nil {
		return nil, err
	}
	status.LastRun = run

	var pageCount, pageSize int
	if err := q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	status.Health = HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: status.EmbeddingsCount > 0,
		FTSIndexesBuilt:     true, // created by migrations
		VectorExtension:     s.vecLoaded,
	}

	return status, nil
}

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	return s.getStatusWithQuerier(ctx, s.querier())
}

// placeholders returns "?,?,...,?" with n markers
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// Transaction method implementations

func (t *sqliteTx) UpsertDocument(ctx context.Context, doc *Document) error {
	return t.storage.upsertDocumentWithQuerier(ctx, t.querier(), doc)
}

func (t *sqliteTx) GetDocument(ctx context.Context, source string) (*Document, error) {
	return t.storage.getDocumentWithQuerier(ctx, t.querier(), source)
}

func (t *sqliteTx) GetDocumentByID(ctx context.Context, documentID int64) (*Document, error) {
	return t.storage.getDocumentByIDWithQuerier(ctx, t.querier(), documentID)
}

func (t *sqliteTx) ListDocuments(ctx context.Context) ([]*Document, error) {
	return t.storage.listDocumentsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) DeleteDocument(ctx context.Context, documentID int64) error {
	return t.storage.deleteDocumentWithQuerier(ctx, t.querier(), documentID)
}

func (t *sqliteTx) UpsertChunks(ctx context.Context, req UpsertRequest) (int, error) {
	return t.storage.upsertChunksWithQuerier(ctx, t.querier(), req)
}

func (t *sqliteTx) GetChunk(ctx context.Context, chunkID string) (*Chunk, error) {
	return t.storage.getChunkWithQuerier(ctx, t.querier(), chunkID)
}

func (t *sqliteTx) GetChunks(ctx context.Context, chunkIDs []string) (map[string]*Chunk, error) {
	return t.storage.getChunksWithQuerier(ctx, t.querier(), chunkIDs)
}

func (t *sqliteTx) ListChunksByDocument(ctx context.Context, documentID int64) ([]*Chunk, error) {
	return t.storage.listChunksByDocumentWithQuerier(ctx, t.querier(), documentID)
}

func (t *sqliteTx) DeleteChunksByDocument(ctx context.Context, documentID int64) (int, error) {
	return t.storage.deleteChunksByDocumentWithQuerier(ctx, t.querier(), documentID)
}

func (t *sqliteTx) GetEmbedding(ctx context.Context, chunkID string) (*Embedding, error) {
	return t.storage.getEmbeddingWithQuerier(ctx, t.querier(), chunkID)
}

func (t *sqliteTx) SearchVector(ctx context.Context, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	return searchVector(ctx, t.querier(), t.storage.vecLoaded, vector, limit, filters)
}

func (t *sqliteTx) SearchText(ctx context.Context, query string, limit int, filters *SearchFilters) ([]TextResult, error) {
	return searchText(ctx, t.querier(), query, limit, filters)
}

func (t *sqliteTx) RecordIngestRun(ctx context.Context, run *IngestRun) error {
	return t.storage.recordIngestRunWithQuerier(ctx, t.querier(), run)
}

func (t *sqliteTx) GetStatus(ctx context.Context) (*Status, error) {
	return t.storage.getStatusWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, errors.New("nested transactions not supported")
}
