package index

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/models"
)

// SyncResult summarizes one synchronization run.
type SyncResult struct {
	RunID    string        `json:"run_id"`
	Added    int           `json:"added"`
	Updated  int           `json:"updated"`
	Deleted  int           `json:"deleted"`
	Scanned  int           `json:"scanned"`
	Duration time.Duration `json:"duration"`
}

// Sync replaces the index contents with notes, which must already carry
// resolved links. Only one sync runs at a time; a concurrent call fails
// with apperr.ErrSyncInProgress instead of waiting.
func (db *DB) Sync(ctx context.Context, notes []models.Note) (*SyncResult, error) {
	if !db.syncSem.TryAcquire(1) {
		return nil, apperr.ErrSyncInProgress
	}
	defer db.syncSem.Release(1)
	return db.sync(ctx, notes)
}

// SyncQueued is Sync, but waits for a running sync to finish first.
func (db *DB) SyncQueued(ctx context.Context, notes []models.Note) (*SyncResult, error) {
	if err := db.syncSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer db.syncSem.Release(1)
	return db.sync(ctx, notes)
}

// sync runs as a single transaction: readers see either the previous or the
// new index, never a partial one.
func (db *DB) sync(ctx context.Context, notes []models.Note) (*SyncResult, error) {
	start := time.Now()
	res := &SyncResult{RunID: uuid.NewString(), Scanned: len(notes)}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin sync", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	existing, err := loadDigests(ctx, tx)
	if err != nil {
		return nil, err
	}

	w, err := prepareWriter(ctx, tx)
	if err != nil {
		return nil, err
	}
	defer w.close()

	for i := range notes {
		n := &notes[i]
		prev, known := existing[n.ID]
		if err := w.upsert(ctx, n); err != nil {
			return nil, err
		}
		switch {
		case !known:
			res.Added++
		case prev != digestOf(n):
			res.Updated++
		}
		delete(existing, n.ID)
	}

	for id := range existing {
		if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id); err != nil {
			return nil, unavailable("delete note", err)
		}
		res.Deleted++
		db.logger.Debug("index: removed stale", slog.String("id", id))
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM tags WHERE id NOT IN (SELECT DISTINCT tag_id FROM note_tags)`); err != nil {
		return nil, unavailable("prune tags", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit sync", err)
	}

	res.Duration = time.Since(start)
	db.logger.Info("index: sync complete",
		slog.String("run_id", res.RunID),
		slog.Int("scanned", res.Scanned),
		slog.Int("added", res.Added),
		slog.Int("updated", res.Updated),
		slog.Int("deleted", res.Deleted),
		slog.Duration("duration", res.Duration))
	return res, nil
}

// digest is the part of a note whose change counts as an update.
type digest struct {
	title     string
	content   string
	excerpt   string
	wordCount int
}

func digestOf(n *models.Note) digest {
	return digest{title: n.Title, content: n.Content, excerpt: n.Excerpt, wordCount: n.WordCount}
}

func loadDigests(ctx context.Context, tx *sql.Tx) (map[string]digest, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, title, content, excerpt, word_count FROM notes`)
	if err != nil {
		return nil, unavailable("load notes", err)
	}
	defer rows.Close()

	out := make(map[string]digest)
	for rows.Next() {
		var id string
		var d digest
		if err := rows.Scan(&id, &d.title, &d.content, &d.excerpt, &d.wordCount); err != nil {
			return nil, unavailable("scan note", err)
		}
		out[id] = d
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("load notes", err)
	}
	return out, nil
}
