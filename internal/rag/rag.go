package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dshills/semrag/internal/generator"
	"github.com/dshills/semrag/internal/ingest"
	"github.com/dshills/semrag/internal/logger"
	"github.com/dshills/semrag/internal/searcher"
	"github.com/dshills/semrag/internal/storage"
	"github.com/dshills/semrag/pkg/types"
)

// DefaultTopK is the number of chunks retrieved for each question
const DefaultTopK = 3

var (
	// ErrEmptyQuery is returned for blank questions
	ErrEmptyQuery = errors.New("query cannot be empty")
	// ErrNoTexts is returned when Upload is called without texts
	ErrNoTexts = errors.New("no texts to upload")
)

// Config holds retrieval settings
type Config struct {
	TopK         int                 // Chunks per question (default: 3)
	Mode         searcher.SearchMode // default: vector
	MinRelevance float64
	UseCache     bool
}

// Query is one question plus optional per-request retrieval overrides
type Query struct {
	Text    string
	TopK    int      // 0 uses the pipeline default
	Sources []string // restrict retrieval to these sources
}

// Answer is a generated answer with the contexts it was grounded on
type Answer struct {
	Text     string
	Contexts []string
	Sources  []string
	ChunkIDs []string
	Model    string
	Duration time.Duration
}

// Pipeline answers questions from the ingested corpus: retrieve -> prompt -> generate
type Pipeline struct {
	ingester  *ingest.Ingester
	searcher  *searcher.Searcher
	generator generator.Generator
	prompts   *generator.PromptBuilder
	cfg       Config
	upload    ingest.Config
	logger    *log.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithConfig sets retrieval settings
func WithConfig(cfg Config) Option {
	return func(p *Pipeline) { p.cfg = cfg }
}

// WithIngestConfig sets the ingest settings Upload runs with
func WithIngestConfig(cfg *ingest.Config) Option {
	return func(p *Pipeline) {
		if cfg != nil {
			p.upload = *cfg
		}
	}
}

// WithPromptBuilder replaces the default prompt
func WithPromptBuilder(b *generator.PromptBuilder) Option {
	return func(p *Pipeline) { p.prompts = b }
}

// WithLogger sets the logger
func WithLogger(l *log.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a Pipeline
func New(ing *ingest.Ingester, s *searcher.Searcher, gen generator.Generator, opts ...Option) (*Pipeline, error) {
	if ing == nil || s == nil || gen == nil {
		return nil, errors.New("ingester, searcher and generator are required")
	}

	p := &Pipeline{ingester: ing, searcher: s, generator: gen}
	for _, opt := range opts {
		opt(p)
	}

	if p.prompts == nil {
		b, err := generator.NewPromptBuilder("")
		if err != nil {
			return nil, err
		}
		p.prompts = b
	}
	if p.cfg.TopK <= 0 {
		p.cfg.TopK = DefaultTopK
	}
	if p.cfg.Mode == "" {
		p.cfg.Mode = searcher.SearchModeVector
	}
	p.logger = logger.OrDiscard(p.logger)

	return p, nil
}

// Upload ingests raw texts through the semantic chunker
func (p *Pipeline) Upload(ctx context.Context, texts []string, language string) (*ingest.Statistics, error) {
	if len(texts) == 0 {
		return nil, ErrNoTexts
	}
	cfg := p.upload
	if language != "" {
		cfg.Language = language
	}
	return p.ingester.IngestTexts(ctx, texts, &cfg)
}

// Retrieve returns the top chunks for q without generating
func (p *Pipeline) Retrieve(ctx context.Context, q Query) ([]types.SearchResult, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, ErrEmptyQuery
	}

	topK := q.TopK
	if topK <= 0 {
		topK = p.cfg.TopK
	}

	req := searcher.SearchRequest{
		Query:    text,
		Limit:    min(topK, searcher.MaxLimit),
		Mode:     p.cfg.Mode,
		UseCache: p.cfg.UseCache,
	}
	if len(q.Sources) > 0 || p.cfg.MinRelevance > 0 {
		req.Filters = &storage.SearchFilters{Sources: q.Sources, MinRelevance: p.cfg.MinRelevance}
	}

	resp, err := p.searcher.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}
	return resp.Results, nil
}

// Generate answers a question from its retrieved contexts
func (p *Pipeline) Generate(ctx context.Context, q Query) (*Answer, error) {
	start := time.Now()

	results, err := p.Retrieve(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		p.logger.Warn("No contexts retrieved", "query", q.Text)
	}

	answer := &Answer{
		Contexts: make([]string, len(results)),
		Sources:  make([]string, len(results)),
		ChunkIDs: make([]string, len(results)),
		Model:    p.generator.Model(),
	}
	for i, r := range results {
		answer.Contexts[i] = r.Content
		answer.Sources[i] = r.Source
		answer.ChunkIDs[i] = r.ChunkID
	}

	prompt, err := p.prompts.Build(generator.PromptData{
		Question: strings.TrimSpace(q.Text),
		Contexts: answer.Contexts,
		Sources:  answer.Sources,
	})
	if err != nil {
		return nil, err
	}

	text, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	answer.Text = strings.TrimSpace(text)
	answer.Duration = time.Since(start)

	p.logger.Debug("Generated answer",
		"contexts", len(results), "model", answer.Model, "duration", answer.Duration.Round(time.Millisecond))
	return answer, nil
}

// Ask is Generate for a bare question
func (p *Pipeline) Ask(ctx context.Context, question string) (*Answer, error) {
	return p.Generate(ctx, Query{Text: question})
}
