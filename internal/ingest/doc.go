// Package ingest turns files and raw texts into stored, embedded chunks.
//
// # Basic Usage
//
//	ing, err := ingest.New(store, emb, ingest.WithLogger(log))
//
//	stats, err := ing.IngestFolder(ctx, "./docs", &ingest.Config{Workers: 4})
//	fmt.Printf("Indexed %d documents, %d chunks in %v\n",
//	    stats.DocumentsIndexed, stats.ChunksCreated, stats.Duration)
//
//	stats, err = ing.IngestTexts(ctx, []string{"Primer texto. Segunda oración."}, nil)
//
// # Pipeline
//
// Each document goes through:
//
//  1. Read: .txt and .md as UTF-8 (Windows-1252 fallback), .pdf as plain text
//  2. Skip check: the SHA-256 of the text is compared with the stored hash
//  3. Segment: sentences by Unicode UAX #29; fewer than two sentences skips the document
//  4. Embed every sentence, then group consecutive sentences with the semantic chunker
//  5. Embed every chunk and replace the document's chunks in one transaction
//
// Documents whose hash is unchanged are skipped unless Config.ForceReindex is set.
//
// # JSONL datasets
//
// A .jsonl file holds pre-chunked records:
//
//	{"text": "...", "metadata": {"tipo": "Ley", "numero": "27444"}}
//
// Every record becomes one chunk. Its metadata is written into the text as a
// header so it is both embedded and keyword-searchable:
//
//	[TIPO] Ley
//	[NUMERO] 27444
//
//	...
//
// Config.HeaderKeys fixes the header layout (see DefaultLegalHeaderKeys).
//
// # Concurrency
//
// IngestFolder processes up to Config.Workers files at once. Only one run may
// be active per Ingester; a second call fails with ErrIngestInProgress.
// Per-document failures are counted in Statistics and do not stop the run.
package ingest
