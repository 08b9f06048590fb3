package ingest

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// discoverFiles walks root and returns files with a matching extension, sorted
func discoverFiles(root string, extensions []string) ([]string, error) {
	exts := make([]string, len(extensions))
	for k, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[k] = e
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Skip hidden directories
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || !d.Type().IsRegular() {
			return nil
		}
		if slices.Contains(exts, strings.ToLower(filepath.Ext(path))) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// sourceName is the slash-separated path of file relative to root
func sourceName(root, file string) string {
	rel, err := filepath.Rel(root, file)
	if err != nil {
		return filepath.ToSlash(file)
	}
	return filepath.ToSlash(rel)
}

// readLimited reads a file, rejecting files larger than maxBytes
func readLimited(path string, maxBytes int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() > maxBytes {
		return nil, fmt.Errorf("file %s exceeds maximum size of %d bytes", path, maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("file %s grew past %d bytes while reading", path, maxBytes)
	}
	return data, nil
}

// readSource extracts the text of a file, dispatching on its sniffed MIME type
func readSource(path string, maxBytes int64) (string, error) {
	data, err := readLimited(path, maxBytes)
	if err != nil {
		return "", err
	}

	mtype := mimetype.Detect(data)
	switch {
	case mtype.Is("application/pdf"):
		return extractPDF(path)
	case strings.HasPrefix(mtype.String(), "text/"):
		return decodeText(data)
	default:
		return "", fmt.Errorf("unsupported content type %s for %s", mtype.String(), path)
	}
}

// decodeText returns data as UTF-8, transcoding from Windows-1252 when it is not valid UTF-8
func decodeText(data []byte) (string, error) {
	if utf8.Valid(data) {
		return normalizeNewlines(string(data)), nil
	}
	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), charmap.Windows1252.NewDecoder()))
	if err != nil {
		return "", fmt.Errorf("transcode from windows-1252: %w", err)
	}
	return normalizeNewlines(string(decoded)), nil
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// extractPDF returns the plain text of every page
func extractPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer func() { _ = f.Close() }()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}
	return buf.String(), nil
}
