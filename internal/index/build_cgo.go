//go:build sqlite_fts5

package index

// Compiled with CGO and the sqlite_fts5 tag, which enables FTS5 in mattn/go-sqlite3.
//
//	CGO_ENABLED=1 go build -tags sqlite_fts5 ./...

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the database/sql driver registered by this build.
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration.
	BuildMode = "cgo"
)

func dsn(path string) string {
	return path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
}
