package ingest

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/dshills/semrag/internal/embedder"
	"github.com/dshills/semrag/internal/storage"
	"github.com/dshills/semrag/pkg/types"
)

// DefaultLegalHeaderKeys is the header layout used for legal-norm datasets
var DefaultLegalHeaderKeys = []string{
	"tipo", "numero", "sector", "fecha", "sumilla", "articulo",
	"libro", "disposicion", "titulo", "capitulo", "referencia", "link",
}

// Record is one JSONL line: a pre-chunked text and its metadata
type Record struct {
	Text     string
	Metadata map[string]string
}

// ParseRecords reads JSONL lines of the form {"text": ..., "metadata": {...}}.
// Blank lines are ignored; invalid JSON or a missing text fails with the line number.
func ParseRecords(data []byte) ([]Record, error) {
	var records []Record

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), len(data)+1)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		if !gjson.ValidBytes(raw) {
			return nil, fmt.Errorf("line %d: invalid JSON", line)
		}

		text := gjson.GetBytes(raw, "text").String()
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("line %d: %w", line, types.ErrEmptyContent)
		}

		meta := make(map[string]string)
		gjson.GetBytes(raw, "metadata").ForEach(func(key, value gjson.Result) bool {
			meta[key.String()] = value.String()
			return true
		})

		records = append(records, Record{Text: text, Metadata: meta})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

var articuloPattern = regexp.MustCompile(`[^a-zA-Z0-9\s]`)

// EmbedMetadata prefixes text with one "[KEY] value" line per header key and a
// blank line. With no keys, every metadata key is written in sorted order.
func EmbedMetadata(text string, meta map[string]string, keys []string) string {
	if len(keys) == 0 {
		keys = make([]string, 0, len(meta))
		for k := range meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}

	var b strings.Builder
	for _, k := range keys {
		v := meta[k]
		if k == "articulo" {
			v = articuloPattern.ReplaceAllString(v, "")
		}
		fmt.Fprintf(&b, "[%s] %s\n", strings.ToUpper(k), v)
	}
	b.WriteString("\n")
	b.WriteString(text)
	return b.String()
}

// ingestRecords stores a JSONL file as one chunk per record. Records are
// already chunked, so the semantic chunker is not involved.
func (i *Ingester) ingestRecords(ctx context.Context, source string, data []byte, cfg *Config) (outcome, int, error) {
	hash := sha256.Sum256(data)
	existing, unchanged, err := i.checkUnchanged(ctx, source, hash, cfg.ForceReindex)
	if err != nil {
		return 0, 0, err
	}
	if unchanged {
		return outcomeSkipped, 0, nil
	}

	records, err := ParseRecords(data)
	if err != nil {
		return 0, 0, err
	}
	if len(records) == 0 {
		return outcomeTooShort, 0, nil
	}

	texts := make([]string, len(records))
	for k, rec := range records {
		texts[k] = EmbedMetadata(rec.Text, rec.Metadata, cfg.HeaderKeys)
	}
	vectors, err := embedder.EmbedAll(ctx, i.embedder, texts, cfg.BatchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to embed records: %w", err)
	}

	var reqs []storage.UpsertRequest
	for start := 0; start < len(records); start += cfg.RecordBatch {
		end := min(start+cfg.RecordBatch, len(records))
		req := storage.UpsertRequest{
			Source:     source,
			IDs:        make([]string, 0, end-start),
			Texts:      texts[start:end],
			Embeddings: vectors[start:end],
			Metadatas:  make([]map[string]string, 0, end-start),
			Provider:   i.embedder.Provider(),
			Model:      i.embedder.Model(),
		}
		for k := start; k < end; k++ {
			meta := copyMeta(records[k].Metadata)
			meta[types.MetaSourceFile] = filepath.Base(source)
			meta[types.MetaPosition] = strconv.Itoa(k)
			meta[types.MetaTokenCount] = strconv.Itoa(i.counter.Count(texts[k]))
			req.IDs = append(req.IDs, uuid.NewString())
			req.Metadatas = append(req.Metadatas, meta)
		}
		reqs = append(reqs, req)
	}

	row := &storage.Document{
		Source:      source,
		ContentHash: hash,
		ChunkCount:  len(records),
		SizeBytes:   int64(len(data)),
	}
	if err := i.store(ctx, existing, row, reqs); err != nil {
		return 0, 0, err
	}

	i.logger.Debug("Ingested records", "source", source, "records", len(records), "batches", len(reqs))
	return outcomeIndexed, len(records), nil
}
