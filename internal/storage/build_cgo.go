//go:build sqlite_vec && !purego
// +build sqlite_vec,!purego

package storage

// Compiled with CGO and the sqlite_vec tag.
//
// Build command:
//   CGO_ENABLED=1 go build -tags "sqlite_vec,sqlite_fts5" ./...
//
// Vector search runs in SQL through vec_distance_cosine when the sqlite-vec
// extension is loadable (see probeVectorExtension); otherwise it falls back
// to Go scoring.
//
// Driver used: github.com/mattn/go-sqlite3

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// VectorExtensionAvailable indicates the driver can host the vector extension
	VectorExtensionAvailable = true

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)
