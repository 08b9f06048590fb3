//go:build purego || !sqlite_vec
// +build purego !sqlite_vec

package storage

// Compiled by default and with the purego tag: pure Go SQLite with FTS5,
// vector similarity computed in Go.
//
// Build command:
//   CGO_ENABLED=0 go build -tags "purego" ./...
//
// Driver used: modernc.org/sqlite

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// VectorExtensionAvailable indicates the driver can host the vector extension
	VectorExtensionAvailable = false

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
