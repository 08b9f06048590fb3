package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/semrag/internal/chunker"
	"github.com/dshills/semrag/internal/embedder"
	"github.com/dshills/semrag/internal/logger"
	"github.com/dshills/semrag/internal/segmenter"
	"github.com/dshills/semrag/internal/storage"
	"github.com/dshills/semrag/internal/tokenizer"
	"github.com/dshills/semrag/pkg/types"
)

// Minimum sentences a document needs before it is chunked
const MinDocumentSentences = 2

const (
	DefaultRecordBatch  = 500
	DefaultMaxFileBytes = 16 * 1024 * 1024
	UploadSourcePrefix  = "upload/"
)

// DefaultExtensions are the file types IngestFolder picks up
var DefaultExtensions = []string{".txt", ".md", ".pdf", ".jsonl"}

var (
	// ErrIngestInProgress is returned when another ingest run holds the lock
	ErrIngestInProgress = errors.New("ingest already in progress")
	// ErrNotDirectory is returned when IngestFolder is given a file
	ErrNotDirectory = errors.New("path is not a directory")
)

// Config contains configuration for an ingest run
type Config struct {
	Workers      int      // Concurrent documents (default: runtime.NumCPU())
	Extensions   []string // File extensions to ingest (default: DefaultExtensions)
	Language     string   // BCP 47 tag; empty uses the segmenter default
	ForceReindex bool     // Re-ingest documents whose content hash is unchanged
	BatchSize    int      // Texts per embedding request (default: embedder.DefaultBatchSize)
	RecordBatch  int      // JSONL records per upsert (default: 500)
	MaxFileBytes int64    // Larger files are rejected (default: 16 MiB)
	HeaderKeys   []string // JSONL metadata keys written into the text header; empty means all, sorted
}

func (c *Config) withDefaults() Config {
	out := Config{}
	if c != nil {
		out = *c
	}
	if out.Workers <= 0 {
		out.Workers = runtime.NumCPU()
	}
	if len(out.Extensions) == 0 {
		out.Extensions = DefaultExtensions
	}
	if out.BatchSize <= 0 {
		out.BatchSize = embedder.DefaultBatchSize
	}
	if out.RecordBatch <= 0 {
		out.RecordBatch = DefaultRecordBatch
	}
	if out.MaxFileBytes <= 0 {
		out.MaxFileBytes = DefaultMaxFileBytes
	}
	return out
}

// Statistics contains statistics about an ingest run
type Statistics struct {
	DocumentsIndexed  int
	DocumentsSkipped  int // content hash unchanged
	DocumentsTooShort int // fewer than MinDocumentSentences sentences
	DocumentsFailed   int
	ChunksCreated     int
	Sources           []string // sources written in this run
	Duration          time.Duration
	ErrorMessages     []string
}

// outcome is the result of ingesting one document
type outcome int

const (
	outcomeIndexed outcome = iota
	outcomeSkipped
	outcomeTooShort
)

// Ingester coordinates the ingest pipeline: read -> segment -> embed -> chunk -> embed -> store
type Ingester struct {
	storage   storage.Storage
	index     storage.VectorIndex // optional mirror of the SQLite vectors
	embedder  embedder.Embedder
	segmenter *segmenter.Segmenter
	chunker   *chunker.Chunker
	counter   tokenizer.Counter
	logger    *log.Logger
	onChange  func()
	lock      Lock
}

// Option configures an Ingester
type Option func(*Ingester)

// WithVectorIndex mirrors every upsert into idx
func WithVectorIndex(idx storage.VectorIndex) Option {
	return func(i *Ingester) { i.index = idx }
}

// WithSegmenter replaces the default (Spanish) segmenter
func WithSegmenter(s *segmenter.Segmenter) Option {
	return func(i *Ingester) { i.segmenter = s }
}

// WithChunker replaces the default chunker configuration
func WithChunker(c *chunker.Chunker) Option {
	return func(i *Ingester) { i.chunker = c }
}

// WithTokenCounter sets the counter used for the token_count metadata
func WithTokenCounter(c tokenizer.Counter) Option {
	return func(i *Ingester) { i.counter = c }
}

// WithLogger sets the logger
func WithLogger(l *log.Logger) Option {
	return func(i *Ingester) { i.logger = l }
}

// WithOnChange registers a callback run after a run that wrote documents
func WithOnChange(fn func()) Option {
	return func(i *Ingester) { i.onChange = fn }
}

// New creates a new Ingester
func New(store storage.Storage, emb embedder.Embedder, opts ...Option) (*Ingester, error) {
	if store == nil {
		return nil, errors.New("storage is required")
	}
	if emb == nil {
		return nil, errors.New("embedder is required")
	}

	i := &Ingester{storage: store, embedder: emb}
	for _, opt := range opts {
		opt(i)
	}

	if i.segmenter == nil {
		seg, err := segmenter.New(segmenter.DefaultLanguage)
		if err != nil {
			return nil, err
		}
		i.segmenter = seg
	}
	if i.chunker == nil {
		ch, err := chunker.New(chunker.DefaultConfig())
		if err != nil {
			return nil, err
		}
		i.chunker = ch
	}
	if i.counter == nil {
		i.counter = tokenizer.Heuristic{}
	}
	i.logger = logger.OrDiscard(i.logger)

	// The store already holds the vectors; mirroring into it would double-write
	if vi, ok := store.(storage.VectorIndex); ok && vi == i.index {
		i.index = nil
	}

	return i, nil
}

// Busy reports whether an ingest run is in progress
func (i *Ingester) Busy() bool {
	return i.lock.Held()
}

// run holds the shared state of one ingest run
type run struct {
	cfg   Config
	mu    sync.Mutex
	stats *Statistics
}

func (r *run) record(source string, res outcome, chunks int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		r.stats.DocumentsFailed++
		r.stats.ErrorMessages = append(r.stats.ErrorMessages, fmt.Sprintf("%s: %v", source, err))
		return
	}
	switch res {
	case outcomeIndexed:
		r.stats.DocumentsIndexed++
		r.stats.ChunksCreated += chunks
		r.stats.Sources = append(r.stats.Sources, source)
	case outcomeSkipped:
		r.stats.DocumentsSkipped++
	case outcomeTooShort:
		r.stats.DocumentsTooShort++
	}
}

// begin takes the ingest lock and starts a run
func (i *Ingester) begin(cfg *Config) (*run, error) {
	if !i.lock.TryAcquire() {
		return nil, ErrIngestInProgress
	}
	return &run{
		cfg:   cfg.withDefaults(),
		stats: &Statistics{ErrorMessages: make([]string, 0), Sources: make([]string, 0)},
	}, nil
}

// finish records the run, notifies listeners and releases the lock
func (i *Ingester) finish(ctx context.Context, root string, started time.Time, r *run) {
	defer i.lock.Release()

	r.stats.Duration = time.Since(started)

	ingestRun := &storage.IngestRun{
		Root:             root,
		StartedAt:        started,
		Duration:         r.stats.Duration,
		DocumentsIndexed: r.stats.DocumentsIndexed,
		DocumentsSkipped: r.stats.DocumentsSkipped + r.stats.DocumentsTooShort,
		ChunksCreated:    r.stats.ChunksCreated,
		ErrorCount:       r.stats.DocumentsFailed,
	}
	if err := i.storage.RecordIngestRun(context.WithoutCancel(ctx), ingestRun); err != nil {
		i.logger.Warn("Failed to record ingest run", "err", err)
	}

	if r.stats.DocumentsIndexed > 0 && i.onChange != nil {
		i.onChange()
	}

	i.logger.Info("Ingest finished",
		"root", root,
		"indexed", r.stats.DocumentsIndexed,
		"skipped", r.stats.DocumentsSkipped,
		"too_short", r.stats.DocumentsTooShort,
		"failed", r.stats.DocumentsFailed,
		"chunks", r.stats.ChunksCreated,
		"duration", r.stats.Duration.Round(time.Millisecond),
	)
}

// IngestFolder ingests every matching file below dir
func (i *Ingester) IngestFolder(ctx context.Context, dir string, cfg *Config) (*Statistics, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}

	r, err := i.begin(cfg)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	defer i.finish(ctx, dir, started, r)

	files, err := discoverFiles(dir, r.cfg.Extensions)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}
	i.logger.Info("Ingesting folder", "root", dir, "files", len(files), "workers", r.cfg.Workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	for _, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			source := sourceName(dir, path)
			res, chunks, err := i.ingestFile(gctx, path, source, &r.cfg)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			if err != nil {
				i.logger.Warn("Failed to ingest document", "source", source, "err", err)
			}
			r.record(source, res, chunks, err)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return r.stats, nil
}

// IngestTexts ingests raw texts. Each text becomes a document named by its
// content hash, so uploading the same text twice is a no-op.
func (i *Ingester) IngestTexts(ctx context.Context, texts []string, cfg *Config) (*Statistics, error) {
	r, err := i.begin(cfg)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	defer i.finish(ctx, "upload", started, r)

	for _, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.TrimSpace(text) == "" {
			r.record("", outcomeTooShort, 0, nil)
			continue
		}
		doc := types.Document{Source: UploadSource(text), Text: text, Language: r.cfg.Language}
		res, chunks, err := i.ingestDocument(ctx, doc, &r.cfg)
		if err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.record(doc.Source, res, chunks, err)
	}

	return r.stats, nil
}

// UploadSource names an uploaded text by the prefix of its SHA-256
func UploadSource(text string) string {
	sum := sha256.Sum256([]byte(text))
	return UploadSourcePrefix + hex.EncodeToString(sum[:8])
}

// ingestFile reads one file and ingests it as a document or a record set
func (i *Ingester) ingestFile(ctx context.Context, path, source string, cfg *Config) (outcome, int, error) {
	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		data, err := readLimited(path, cfg.MaxFileBytes)
		if err != nil {
			return 0, 0, err
		}
		return i.ingestRecords(ctx, source, data, cfg)
	}

	text, err := readSource(path, cfg.MaxFileBytes)
	if err != nil {
		return 0, 0, err
	}
	if strings.TrimSpace(text) == "" {
		i.logger.Debug("Skipping empty document", "source", source)
		return outcomeTooShort, 0, nil
	}
	return i.ingestDocument(ctx, types.Document{Source: source, Text: text, Language: cfg.Language}, cfg)
}

// checkUnchanged looks up the stored document and reports whether it can be skipped
func (i *Ingester) checkUnchanged(ctx context.Context, source string, hash [32]byte, force bool) (*storage.Document, bool, error) {
	existing, err := i.storage.GetDocument(ctx, source)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return existing, !force && existing.ContentHash == hash, nil
}

// ingestDocument segments, chunks, embeds and stores one document
func (i *Ingester) ingestDocument(ctx context.Context, doc types.Document, cfg *Config) (outcome, int, error) {
	if err := doc.Validate(); err != nil {
		return 0, 0, err
	}
	lang, err := i.segmenter.Normalize(doc.Language)
	if err != nil {
		return 0, 0, err
	}

	hash := doc.Hash()
	existing, unchanged, err := i.checkUnchanged(ctx, doc.Source, hash, cfg.ForceReindex)
	if err != nil {
		return 0, 0, err
	}
	if unchanged {
		i.logger.Debug("Document unchanged", "source", doc.Source)
		return outcomeSkipped, 0, nil
	}

	sentences, err := i.segmenter.Split(doc.Text, lang)
	if err != nil {
		return 0, 0, err
	}
	if len(sentences) < MinDocumentSentences {
		i.logger.Debug("Skipping short document", "source", doc.Source, "sentences", len(sentences))
		return outcomeTooShort, 0, nil
	}

	sentenceVecs, err := embedder.EmbedAll(ctx, i.embedder, sentences, cfg.BatchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to embed sentences: %w", err)
	}

	groups, err := i.chunker.Split(sentences, sentenceVecs)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to chunk document: %w", err)
	}

	texts := make([]string, len(groups))
	for k, g := range groups {
		texts[k] = g.Text()
	}
	chunkVecs, err := embedder.EmbedAll(ctx, i.embedder, texts, cfg.BatchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to embed chunks: %w", err)
	}

	req := storage.UpsertRequest{
		Source:     doc.Source,
		IDs:        make([]string, len(groups)),
		Texts:      texts,
		Embeddings: chunkVecs,
		Metadatas:  make([]map[string]string, len(groups)),
		Provider:   i.embedder.Provider(),
		Model:      i.embedder.Model(),
	}
	for k, g := range groups {
		chunk := types.Chunk{
			ID:            uuid.NewString(),
			Position:      k,
			Content:       texts[k],
			TokenCount:    i.counter.Count(texts[k]),
			SentenceStart: g.Start,
			SentenceEnd:   g.End,
			Metadata:      copyMeta(doc.Metadata),
		}
		if err := chunk.ValidateContent(); err != nil {
			return 0, 0, fmt.Errorf("chunk %d: %w", k, err)
		}
		chunk.Metadata[types.MetaSourceFile] = filepath.Base(doc.Source)
		chunk.Metadata[types.MetaLanguage] = lang
		chunk.StampMetadata()

		req.IDs[k] = chunk.ID
		req.Metadatas[k] = chunk.Metadata
	}

	row := &storage.Document{
		Source:        doc.Source,
		ContentHash:   hash,
		Language:      lang,
		SentenceCount: len(sentences),
		ChunkCount:    len(groups),
		SizeBytes:     int64(len(doc.Text)),
	}
	if err := i.store(ctx, existing, row, []storage.UpsertRequest{req}); err != nil {
		return 0, 0, err
	}

	i.logger.Debug("Ingested document",
		"source", doc.Source, "sentences", len(sentences), "chunks", len(groups))
	return outcomeIndexed, len(groups), nil
}

// store replaces a document's chunks in one transaction. The optional index
// is written first; when it fails the row is committed with a zero content
// hash so the next run sees the document as changed and mirrors it again.
func (i *Ingester) store(ctx context.Context, existing, row *storage.Document, reqs []storage.UpsertRequest) error {
	mirrorErr := i.mirror(ctx, row.Source, reqs)
	if mirrorErr != nil {
		row.ContentHash = [32]byte{}
	}

	tx, err := i.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if existing != nil {
		if _, err := tx.DeleteChunksByDocument(ctx, existing.ID); err != nil {
			return fmt.Errorf("failed to delete old chunks: %w", err)
		}
	}
	if err := tx.UpsertDocument(ctx, row); err != nil {
		return err
	}
	for k := range reqs {
		reqs[k].DocumentID = row.ID
		if _, err := tx.UpsertChunks(ctx, reqs[k]); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return mirrorErr
}

// mirror replaces a source's vectors in the optional index
func (i *Ingester) mirror(ctx context.Context, source string, reqs []storage.UpsertRequest) error {
	if i.index == nil {
		return nil
	}
	if err := i.index.DeleteSource(ctx, source); err != nil {
		return fmt.Errorf("failed to clear vector index: %w", err)
	}
	for _, req := range reqs {
		if _, err := i.index.UpsertChunks(ctx, req); err != nil {
			return fmt.Errorf("failed to update vector index: %w", err)
		}
	}
	return nil
}

func copyMeta(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src)+6)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
