package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/semrag/internal/embedder"
	"github.com/dshills/semrag/internal/storage"
)

// writeCorpus writes n small documents of related sentences into a temp dir
func writeCorpus(b *testing.B, n int) string {
	b.Helper()
	dir := b.TempDir()
	for i := 0; i < n; i++ {
		var sb strings.Builder
		for j := 0; j < 12; j++ {
			fmt.Fprintf(&sb, "El documento %d describe el volcán número %d y su lava. ", i, j)
		}
		path := filepath.Join(dir, fmt.Sprintf("doc-%03d.txt", i))
		if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
			b.Fatal(err)
		}
	}
	return dir
}

func newBenchIngester(b *testing.B) *Ingester {
	b.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = store.Close() })

	emb, err := embedder.NewLocalProvider(256, nil)
	if err != nil {
		b.Fatal(err)
	}
	ing, err := New(store, emb)
	if err != nil {
		b.Fatal(err)
	}
	return ing
}

// BenchmarkIngestFolder benchmarks a full ingest of a fresh store
func BenchmarkIngestFolder(b *testing.B) {
	dir := writeCorpus(b, 20)
	ctx := context.Background()

	for _, workers := range []int{1, 4} {
		b.Run(fmt.Sprintf("workers=%d", workers), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				b.StopTimer()
				ing := newBenchIngester(b)
				b.StartTimer()

				stats, err := ing.IngestFolder(ctx, dir, &Config{Workers: workers})
				if err != nil {
					b.Fatal(err)
				}
				if stats.DocumentsIndexed != 20 {
					b.Fatalf("indexed %d documents, want 20", stats.DocumentsIndexed)
				}
			}
		})
	}
}

// BenchmarkIngestFolder_Unchanged benchmarks a rerun where every hash matches
func BenchmarkIngestFolder_Unchanged(b *testing.B) {
	dir := writeCorpus(b, 20)
	ctx := context.Background()
	ing := newBenchIngester(b)
	if _, err := ing.IngestFolder(ctx, dir, nil); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ing.IngestFolder(ctx, dir, nil); err != nil {
			b.Fatal(err)
		}
	}
}
