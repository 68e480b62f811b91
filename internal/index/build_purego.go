//go:build !sqlite_fts5

package index

// Default build: pure Go SQLite with FTS5 compiled in, no C toolchain needed.

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the database/sql driver registered by this build.
	DriverName = "sqlite"

	// BuildMode describes the current build configuration.
	BuildMode = "purego"
)

func dsn(path string) string {
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"
}
