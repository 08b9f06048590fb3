package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/semrag/pkg/types"
)

const legalJSONL = `{"text": "Toda persona tiene derecho a la vida.", "metadata": {"tipo": "Constitución", "numero": "1993", "articulo": "Art. 2°-1", "link": "https://example.org/c"}}

{"text": "Nadie está obligado a hacer lo que la ley no manda.", "metadata": {"tipo": "Constitución", "numero": "1993", "articulo": "Art. 2°-24"}}
{"text": "El Estado garantiza la libertad de trabajo.", "metadata": {"tipo": "Constitución", "articulo": "Art. 59"}}
`

func TestParseRecords(t *testing.T) {
	records, err := ParseRecords([]byte(legalJSONL))
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "Toda persona tiene derecho a la vida.", records[0].Text)
	assert.Equal(t, "Constitución", records[0].Metadata["tipo"])
	assert.Equal(t, "https://example.org/c", records[0].Metadata["link"])
	assert.Len(t, records[2].Metadata, 2)

	// Non-string metadata is kept in its JSON text form
	records, err = ParseRecords([]byte(`{"text": "x", "metadata": {"numero": 29497, "vigente": true}}`))
	require.NoError(t, err)
	assert.Equal(t, "29497", records[0].Metadata["numero"])
	assert.Equal(t, "true", records[0].Metadata["vigente"])

	records, err = ParseRecords([]byte(`{"text": "sin metadatos"}`))
	require.NoError(t, err)
	assert.Empty(t, records[0].Metadata)
}

func TestParseRecords_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"invalid json", "{\"text\": \"a\"}\n{broken", "line 2: invalid JSON"},
		{"missing text", `{"metadata": {"tipo": "Ley"}}`, "line 1"},
		{"blank text", `{"text": "   "}`, "line 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRecords([]byte(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := ParseRecords([]byte(`{"metadata": {}}`))
	assert.ErrorIs(t, err, types.ErrEmptyContent)

	records, err := ParseRecords([]byte("\n\n  \n"))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestEmbedMetadata(t *testing.T) {
	meta := map[string]string{"tipo": "Ley", "numero": "27444", "articulo": "Art. 5°-A"}

	got := EmbedMetadata("El texto.", meta, []string{"tipo", "numero", "articulo", "link"})
	want := "[TIPO] Ley\n[NUMERO] 27444\n[ARTICULO] Art 5A\n[LINK] \n\nEl texto."
	assert.Equal(t, want, got)

	// Without keys every metadata entry is written, sorted
	got = EmbedMetadata("El texto.", meta, nil)
	assert.Equal(t, "[ARTICULO] Art 5A\n[NUMERO] 27444\n[TIPO] Ley\n\nEl texto.", got)

	assert.Equal(t, "\nsolo", EmbedMetadata("solo", nil, nil))

	// Only ASCII letters and digits survive, accented letters included
	got = EmbedMetadata("x", map[string]string{"articulo": "Artículo 3°, inc. ñ"}, []string{"articulo"})
	assert.Equal(t, "[ARTICULO] Artculo 3 inc \n\nx", got)
}

func TestIngestRecords(t *testing.T) {
	ing, store := setupIngester(t)
	ctx := context.Background()

	dir := t.TempDir()
	writeFile(t, dir, "leyes/constitucion.jsonl", legalJSONL)

	stats, err := ing.IngestFolder(ctx, dir, &Config{HeaderKeys: DefaultLegalHeaderKeys, RecordBatch: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DocumentsIndexed)
	assert.Equal(t, 3, stats.ChunksCreated)

	chunks := storedChunks(t, store, "leyes/constitucion.jsonl")
	require.Len(t, chunks, 3)

	first := chunks[0]
	assert.True(t, strings.HasPrefix(first.Content, "[TIPO] Constitución\n[NUMERO] 1993\n"))
	assert.Contains(t, first.Content, "[ARTICULO] Art 21\n")
	assert.True(t, strings.HasSuffix(first.Content, "\n\nToda persona tiene derecho a la vida."))
	assert.Equal(t, len(DefaultLegalHeaderKeys)+1, strings.Count(first.Content, "\n"))

	assert.Equal(t, "constitucion.jsonl", first.Metadata[types.MetaSourceFile])
	assert.Equal(t, "Art. 2°-1", first.Metadata["articulo"], "stored metadata keeps the raw value")
	assert.Equal(t, "0", first.Metadata[types.MetaPosition])
	assert.Equal(t, "2", chunks[2].Metadata[types.MetaPosition])

	// Header text is searchable
	results, err := store.SearchText(ctx, "libertad trabajo", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, chunks[2].ID, results[0].ChunkID)

	stats, err = ing.IngestFolder(ctx, dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DocumentsSkipped)
}

func TestIngestRecords_Invalid(t *testing.T) {
	ing, store := setupIngester(t)
	ctx := context.Background()

	dir := t.TempDir()
	writeFile(t, dir, "roto.jsonl", "{\"text\": \"bien\"}\nno es json\n")
	writeFile(t, dir, "vacio.jsonl", "\n\n")

	stats, err := ing.IngestFolder(ctx, dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DocumentsFailed)
	assert.Equal(t, 1, stats.DocumentsTooShort)

	docs, err := store.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}
