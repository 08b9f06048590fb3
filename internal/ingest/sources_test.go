package ingest

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.txt", "b")
	writeFile(t, dir, "a.MD", "a")
	writeFile(t, dir, "sub/c.jsonl", "{}")
	writeFile(t, dir, "sub/d.go", "package d")
	writeFile(t, dir, ".oculto.txt", "x")
	writeFile(t, dir, ".git/e.txt", "x")

	files, err := discoverFiles(dir, DefaultExtensions)
	require.NoError(t, err)

	rel := make([]string, len(files))
	for i, f := range files {
		rel[i] = sourceName(dir, f)
	}
	assert.Equal(t, []string{"a.MD", "b.txt", "sub/c.jsonl"}, rel)

	files, err = discoverFiles(dir, []string{"go", " .TXT "})
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestSourceName(t *testing.T) {
	root := filepath.Join("data", "corpus")
	assert.Equal(t, "leyes/a.txt", sourceName(root, filepath.Join(root, "leyes", "a.txt")))
	assert.Equal(t, "a.txt", sourceName(root, filepath.Join(root, "a.txt")))
}

func TestReadLimited(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "12345")

	data, err := readLimited(path, 5)
	require.NoError(t, err)
	assert.Equal(t, "12345", string(data))

	_, err = readLimited(path, 4)
	assert.ErrorContains(t, err, "exceeds maximum size")

	_, err = readLimited(filepath.Join(dir, "missing.txt"), 10)
	assert.Error(t, err)
}

func TestDecodeText(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{"utf8", []byte("canción"), "canción"},
		{"windows-1252", []byte("canci\xf3n \x93cita\x94"), "canción “cita”"},
		{"crlf", []byte("uno\r\ndos\rtres"), "uno\ndos\ntres"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeText(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadSource(t *testing.T) {
	dir := t.TempDir()

	text, err := readSource(writeFile(t, dir, "a.txt", "Hola mundo.\r\nAdiós."), 1024)
	require.NoError(t, err)
	assert.Equal(t, "Hola mundo.\nAdiós.", text)

	text, err = readSource(writeFile(t, dir, "latin.txt", "Se\xf1or"), 1024)
	require.NoError(t, err)
	assert.Equal(t, "Señor", text)

	_, err = readSource(writeFile(t, dir, "bin.txt", "\x00\x01\x02\x03"), 1024)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unsupported content type"))

	_, err = readSource(writeFile(t, dir, "fake.pdf", "%PDF-1.4\nnot really"), 1024)
	assert.Error(t, err)
}
