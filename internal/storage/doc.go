// Package storage persists ingested documents, their chunks and chunk
// embeddings, and answers vector and keyword queries over them.
//
// # Database Schema
//
// Tables:
//   - documents: one row per source, with content hash and language
//   - chunks: chunk text keyed by a UUID, with JSON metadata
//   - embeddings: one vector per chunk (little-endian float32 blob)
//   - chunks_fts: FTS5 index over chunk content, kept in sync by triggers
//   - ingest_runs: history of ingest invocations
//   - schema_version: applied migrations (semver)
//
// Deleting a document cascades to its chunks, embeddings and FTS rows.
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.semrag/semrag.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	doc := &storage.Document{Source: "notes/fotosintesis.txt", Language: "es"}
//	if err := db.UpsertDocument(ctx, doc); err != nil {
//	    return err
//	}
//
//	n, err := db.UpsertChunks(ctx, storage.UpsertRequest{
//	    DocumentID: doc.ID,
//	    Source:     doc.Source,
//	    IDs:        ids,
//	    Texts:      texts,
//	    Embeddings: vectors,
//	})
//
// UpsertChunks is keyed by chunk ID: replaying the same request leaves the
// store unchanged.
//
// # Transactions
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	_, _ = tx.DeleteChunksByDocument(ctx, doc.ID)
//	_ = tx.UpsertDocument(ctx, doc)
//	_, _ = tx.UpsertChunks(ctx, req)
//
//	return tx.Commit()
//
// The database runs with a single open connection. Do not call the
// non-transactional methods while a transaction is open.
//
// # Vector Search
//
// SearchVector ranks chunks by cosine similarity. With the sqlite_vec build
// tag and a loadable sqlite-vec extension, scoring runs in SQL through
// vec_distance_cosine; otherwise every candidate is scored in Go.
//
// ChromemIndex is an alternative VectorIndex backed by chromem-go, either
// in-memory or persisted to a directory.
//
// # Full-Text Search
//
// SearchText ranks chunks with FTS5 BM25. Query text is reduced to quoted
// terms joined by OR, so FTS5 operators in user input have no effect. Scores
// are mapped into (0, 1].
//
// # Build Tags
//
// CGO build (sqlite_vec tag):
//
//	CGO_ENABLED=1 go build -tags "sqlite_vec"
//
// Uses github.com/mattn/go-sqlite3.
//
// Pure Go build (default, or purego tag):
//
//	CGO_ENABLED=0 go build -tags "purego"
//
// Uses modernc.org/sqlite.
package storage
