// Package index is the SQLite-backed note store: schema, synchronization,
// full-text search and the structural queries served by the engine.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/starford/notegraph/internal/apperr"
)

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn    *sql.DB
	syncSem *semaphore.Weighted
	logger  *slog.Logger
}

// Open opens (or creates) the SQLite database at path and applies pending migrations.
func Open(path string) (*DB, error) {
	return OpenWithLogger(path, slog.Default())
}

// OpenWithLogger is Open with an explicit logger.
func OpenWithLogger(path string, logger *slog.Logger) (*DB, error) {
	conn, err := sql.Open(DriverName, dsn(path))
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if err := ApplyMigrations(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	logger.Debug("index: opened", slog.String("path", path), slog.String("driver", DriverName), slog.String("mode", BuildMode))
	return &DB{conn: conn, syncSem: semaphore.NewWeighted(1), logger: logger}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// unavailable marks err as a store failure so callers can map it to apperr.ErrStoreUnavailable.
func unavailable(op string, err error) error {
	return fmt.Errorf("index: %s: %w: %w", op, apperr.ErrStoreUnavailable, err)
}
