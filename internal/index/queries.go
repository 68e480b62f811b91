package index

import (
	"context"
	"fmt"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/models"
)

// TagsWithCounts lists every tag in use, most used first, then by name.
func (db *DB) TagsWithCounts(ctx context.Context) ([]TagCount, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT t.name, COUNT(nt.note_id) AS cnt
		FROM tags t JOIN note_tags nt ON nt.tag_id = t.id
		GROUP BY t.id
		ORDER BY cnt DESC, t.name ASC`)
	if err != nil {
		return nil, unavailable("tags", err)
	}
	defer rows.Close()

	out := []TagCount{}
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Name, &tc.Count); err != nil {
			return nil, unavailable("scan tag", err)
		}
		out = append(out, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("tags", err)
	}
	return out, nil
}

// MostAccessed returns up to limit notes that were opened at least once,
// highest access count first, ties broken by the most recent access.
func (db *DB) MostAccessed(ctx context.Context, limit int) ([]models.Note, error) {
	return db.listNotes(ctx, `
		SELECT `+noteColumns+` FROM notes n
		WHERE n.access_count > 0
		ORDER BY n.access_count DESC, n.last_accessed DESC, n.ordinal
		LIMIT ?`, limit)
}

// RecentlyModified returns up to limit notes by descending modification time.
func (db *DB) RecentlyModified(ctx context.Context, limit int) ([]models.Note, error) {
	return db.listNotes(ctx, `
		SELECT `+noteColumns+` FROM notes n
		ORDER BY n.modified DESC, n.ordinal
		LIMIT ?`, limit)
}

// RecordAccess bumps the access counter and timestamp of a note.
func (db *DB) RecordAccess(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE notes SET access_count = access_count + 1, last_accessed = ? WHERE id = ?`, now(), id)
	if err != nil {
		return unavailable("record access", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("record access", err)
	}
	if n == 0 {
		return fmt.Errorf("index: note %q: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// NoteCount returns the number of indexed notes.
func (db *DB) NoteCount(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&n); err != nil {
		return 0, unavailable("count notes", err)
	}
	return n, nil
}
