package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCmd(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "semrag dev")
	assert.Contains(t, out.String(), "SQLite Driver:")
}

func TestReadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("Hola mundo."), 0o644))

	text, err := readInput(nil, path)
	require.NoError(t, err)
	assert.Equal(t, "Hola mundo.", text)

	text, err = readInput(strings.NewReader("desde stdin"), "-")
	require.NoError(t, err)
	assert.Equal(t, "desde stdin", text)

	_, err = readInput(nil, filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestStatusCmd(t *testing.T) {
	t.Setenv("SEMRAG_EMBEDDING__PROVIDER", "local")
	t.Setenv("SEMRAG_EMBEDDING__DIMENSION", "32")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("JINA_API_KEY", "")

	dir := t.TempDir()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"status", "--data-dir", dir})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Documents:")
	assert.FileExists(t, filepath.Join(dir, "semrag.db"))
}
