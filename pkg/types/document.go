package types

import (
	"crypto/sha256"
	"errors"
)

// Document is one unit of ingested text, typically a file or an uploaded string
type Document struct {
	Source   string // file path, or a synthetic name for uploaded texts
	Text     string
	Language string // BCP 47 tag; empty means the configured default
	Metadata map[string]string
}

// Hash returns the SHA-256 hash of the document text
func (d *Document) Hash() [32]byte {
	return sha256.Sum256([]byte(d.Text))
}

// Validate checks that the document can be ingested
func (d *Document) Validate() error {
	if d.Source == "" {
		return errors.New("document source is required")
	}
	if d.Text == "" {
		return ErrEmptyContent
	}
	return nil
}
