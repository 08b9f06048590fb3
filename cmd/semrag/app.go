package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/dshills/semrag/internal/chunker"
	"github.com/dshills/semrag/internal/config"
	"github.com/dshills/semrag/internal/embedder"
	"github.com/dshills/semrag/internal/generator"
	"github.com/dshills/semrag/internal/ingest"
	"github.com/dshills/semrag/internal/rag"
	"github.com/dshills/semrag/internal/searcher"
	"github.com/dshills/semrag/internal/segmenter"
	"github.com/dshills/semrag/internal/storage"
)

// app is the wired component graph shared by every command
type app struct {
	cfg       *config.Config
	log       *log.Logger
	store     *storage.SQLiteStorage
	index     storage.VectorIndex // nil with the sqlite backend
	embedder  embedder.Embedder
	ingester  *ingest.Ingester
	searcher  *searcher.Searcher
	generator generator.Generator
	pipeline  *rag.Pipeline
}

// newApp opens the stores and wires embedder, ingester, searcher, generator
// and pipeline. The embedder is shared so ingest and search hit one cache.
func newApp(cfg *config.Config, l *log.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: l}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.store, err = storage.NewSQLiteStorage(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	l.Debug("Storage opened",
		"path", cfg.DatabasePath(), "driver", storage.DriverName, "vector_extension", a.store.VectorExtensionLoaded())

	if cfg.VectorIndex.Backend == config.IndexChromem {
		var idx *storage.ChromemIndex
		idx, err = storage.NewChromemIndex(cfg.ChromemPath(), cfg.VectorIndex.Collection)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector index: %w", err)
		}
		a.index = idx
		l.Debug("Vector index opened", "backend", config.IndexChromem, "path", cfg.ChromemPath())
	}

	emb, err := embedder.New(cfg.EmbedderConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	a.embedder = emb
	l.Debug("Embedder ready", "provider", a.embedder.Provider(), "model", a.embedder.Model())

	seg, err := segmenter.New(cfg.Language)
	if err != nil {
		return nil, err
	}
	ch, err := chunker.New(cfg.ChunkerConfig())
	if err != nil {
		return nil, err
	}

	searchOpts := []searcher.Option{searcher.WithCacheSize(cfg.Retrieval.CacheSize)}
	if a.index != nil {
		searchOpts = append(searchOpts, searcher.WithVectorIndex(a.index))
	}
	a.searcher = searcher.NewSearcher(a.store, a.embedder, searchOpts...)

	ingestOpts := []ingest.Option{
		ingest.WithSegmenter(seg),
		ingest.WithChunker(ch),
		ingest.WithTokenCounter(cfg.TokenCounter()),
		ingest.WithLogger(l),
		ingest.WithOnChange(a.searcher.InvalidateCache),
	}
	if a.index != nil {
		ingestOpts = append(ingestOpts, ingest.WithVectorIndex(a.index))
	}
	a.ingester, err = ingest.New(a.store, a.embedder, ingestOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ingester: %w", err)
	}

	gen, err := generator.New(cfg.GeneratorConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}
	a.generator = gen

	prompts, err := generator.NewPromptBuilder(cfg.Generation.PromptTemplate)
	if err != nil {
		return nil, err
	}

	mode, err := searcher.ParseMode(cfg.Retrieval.Mode)
	if err != nil {
		return nil, err
	}
	a.pipeline, err = rag.New(a.ingester, a.searcher, a.generator,
		rag.WithConfig(rag.Config{
			TopK:         cfg.Retrieval.TopK,
			Mode:         mode,
			MinRelevance: cfg.Retrieval.MinRelevance,
			UseCache:     cfg.Retrieval.UseCache,
		}),
		rag.WithPromptBuilder(prompts),
		rag.WithIngestConfig(cfg.IngestOptions(false)),
		rag.WithLogger(l),
	)
	if err != nil {
		return nil, err
	}

	return a, nil
}

// Close releases every component that holds a resource
func (a *app) Close() {
	var errs []error
	if a.generator != nil {
		errs = append(errs, a.generator.Close())
	}
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	if a.index != nil {
		errs = append(errs, a.index.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.log.Warn("Shutdown incomplete", "err", err)
	}
}
