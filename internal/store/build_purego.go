//go:build purego || !sqlite_vec
// +build purego !sqlite_vec

package store

// Compiled without CGO. Uses the pure Go SQLite implementation and ranks
// vectors in process; fine for personal-library scale.
//
// Build command:
//   CGO_ENABLED=0 go build ./...

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use.
	DriverName = "sqlite"

	// VectorExtensionAvailable indicates if vector search runs in SQL.
	VectorExtensionAvailable = false

	// BuildMode describes the current build configuration.
	BuildMode = "purego"
)
