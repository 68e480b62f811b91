package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/resolver"
)

// TagCount is a tag name with the number of notes carrying it.
type TagCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// noteColumns is the summary projection shared by the listing queries; content is excluded.
const noteColumns = `n.id, n.slug, n.title, n.excerpt, n.path, n.folder, n.size, n.created,
	n.modified, n.last_accessed, n.access_count, n.word_count, n.checksum, n.ordinal`

// writer holds the statements prepared for one sync transaction.
type writer struct {
	tx          *sql.Tx
	upsertNote  *sql.Stmt
	insertTag   *sql.Stmt
	linkTag     *sql.Stmt
	insertAlias *sql.Stmt
	insertLink  *sql.Stmt
	insertKey   *sql.Stmt
}

func prepareWriter(ctx context.Context, tx *sql.Tx) (*writer, error) {
	w := &writer{tx: tx}
	for _, p := range []struct {
		dst   **sql.Stmt
		query string
	}{
		// access_count and last_accessed are owned by RecordAccess and survive re-syncs.
		{&w.upsertNote, `
			INSERT INTO notes (id, slug, title, content, excerpt, path, folder, size, created, modified, word_count, checksum, ordinal)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				slug       = excluded.slug,
				title      = excluded.title,
				content    = excluded.content,
				excerpt    = excluded.excerpt,
				path       = excluded.path,
				folder     = excluded.folder,
				size       = excluded.size,
				created    = excluded.created,
				modified   = excluded.modified,
				word_count = excluded.word_count,
				checksum   = excluded.checksum,
				ordinal    = excluded.ordinal`},
		{&w.insertTag, `INSERT INTO tags (name) VALUES (?) ON CONFLICT(name) DO NOTHING`},
		{&w.linkTag, `INSERT OR IGNORE INTO note_tags (note_id, tag_id) SELECT ?, id FROM tags WHERE name = ?`},
		{&w.insertAlias, `INSERT OR IGNORE INTO aliases (note_id, alias) VALUES (?, ?)`},
		{&w.insertLink, `INSERT INTO links (source_id, target_text, display_text, resolved, target_id) VALUES (?, ?, ?, ?, ?)`},
		{&w.insertKey, `INSERT OR IGNORE INTO note_keys (note_id, key) VALUES (?, ?)`},
	} {
		stmt, err := tx.PrepareContext(ctx, p.query)
		if err != nil {
			w.close()
			return nil, unavailable("prepare", err)
		}
		*p.dst = stmt
	}
	return w, nil
}

func (w *writer) close() {
	for _, s := range []*sql.Stmt{w.upsertNote, w.insertTag, w.linkTag, w.insertAlias, w.insertLink, w.insertKey} {
		if s != nil {
			s.Close()
		}
	}
}

// upsert writes the note row and replaces its tags, aliases, lookup keys and links.
func (w *writer) upsert(ctx context.Context, n *models.Note) error {
	if _, err := w.upsertNote.ExecContext(ctx,
		n.ID, n.Slug, n.Title, n.Content, n.Excerpt, n.Path, n.Folder, n.Size,
		toMillis(n.Created), toMillis(n.Modified), n.WordCount, n.Checksum, n.Ordinal,
	); err != nil {
		return unavailable("upsert note "+n.ID, err)
	}

	for _, q := range []string{
		`DELETE FROM note_tags WHERE note_id = ?`,
		`DELETE FROM aliases WHERE note_id = ?`,
		`DELETE FROM note_keys WHERE note_id = ?`,
		`DELETE FROM links WHERE source_id = ?`,
	} {
		if _, err := w.tx.ExecContext(ctx, q, n.ID); err != nil {
			return unavailable("clear children of "+n.ID, err)
		}
	}

	for _, tag := range n.Tags {
		if _, err := w.insertTag.ExecContext(ctx, tag); err != nil {
			return unavailable("insert tag", err)
		}
		if _, err := w.linkTag.ExecContext(ctx, n.ID, tag); err != nil {
			return unavailable("link tag", err)
		}
	}
	for _, alias := range n.Aliases {
		if _, err := w.insertAlias.ExecContext(ctx, n.ID, alias); err != nil {
			return unavailable("insert alias", err)
		}
	}
	for _, name := range append([]string{n.ID, n.Slug, n.Title}, n.Aliases...) {
		key := resolver.NormalizeTarget(name)
		if key == "" {
			continue
		}
		if _, err := w.insertKey.ExecContext(ctx, n.ID, key); err != nil {
			return unavailable("insert key", err)
		}
	}
	for _, l := range n.Links {
		var target sql.NullString
		if l.Resolved {
			target = sql.NullString{String: l.TargetID, Valid: true}
		}
		if _, err := w.insertLink.ExecContext(ctx, n.ID, l.TargetText, l.DisplayText, l.Resolved, target); err != nil {
			return unavailable("insert link", err)
		}
	}
	return nil
}

// GetNote returns the full note with tags, aliases and outgoing links.
func (db *DB) GetNote(ctx context.Context, id string) (*models.Note, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+noteColumns+`, n.content FROM notes n WHERE n.id = ?`, id)
	n, err := scanNote(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: note %q: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("get note", err)
	}

	if n.Tags, err = db.queryStrings(ctx,
		`SELECT t.name FROM note_tags nt JOIN tags t ON t.id = nt.tag_id WHERE nt.note_id = ? ORDER BY t.name`, id); err != nil {
		return nil, err
	}
	if n.Aliases, err = db.queryStrings(ctx, `SELECT alias FROM aliases WHERE note_id = ? ORDER BY id`, id); err != nil {
		return nil, err
	}
	if n.Links, err = db.links(ctx, `WHERE l.source_id = ? ORDER BY l.id`, id); err != nil {
		return nil, err
	}
	return n, nil
}

// Backlinks returns the resolved links pointing at id, ordered by source traversal order.
func (db *DB) Backlinks(ctx context.Context, id string) ([]models.Link, error) {
	return db.links(ctx,
		`JOIN notes n ON n.id = l.source_id WHERE l.target_id = ? ORDER BY n.ordinal, l.id`, id)
}

// ResolveLink resolves target against the stored index with the same rules as
// the in-memory resolver: id, slug, title or alias, compared as normalized
// keys, first match in traversal order.
func (db *DB) ResolveLink(ctx context.Context, target string) (*models.Note, error) {
	key := resolver.NormalizeTarget(target)
	if key == "" {
		return nil, fmt.Errorf("index: resolve %q: %w", target, apperr.ErrNotFound)
	}
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+noteColumns+` FROM notes n
		WHERE EXISTS (SELECT 1 FROM note_keys k WHERE k.note_id = n.id AND k.key = ?)
		ORDER BY n.ordinal
		LIMIT 1`, key)
	n, err := scanNote(row, false)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: resolve %q: %w", target, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("resolve link", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(r rowScanner, withContent bool) (*models.Note, error) {
	var (
		n                           models.Note
		created, modified, accessed sql.NullInt64
	)
	dest := []any{
		&n.ID, &n.Slug, &n.Title, &n.Excerpt, &n.Path, &n.Folder, &n.Size, &created,
		&modified, &accessed, &n.AccessCount, &n.WordCount, &n.Checksum, &n.Ordinal,
	}
	if withContent {
		dest = append(dest, &n.Content)
	}
	if err := r.Scan(dest...); err != nil {
		return nil, err
	}
	n.Created = fromMillis(created.Int64)
	n.Modified = fromMillis(modified.Int64)
	if accessed.Valid {
		t := fromMillis(accessed.Int64)
		n.LastAccessed = &t
	}
	n.Tags = []string{}
	n.Aliases = []string{}
	return &n, nil
}

func (db *DB) listNotes(ctx context.Context, query string, args ...any) ([]models.Note, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list notes", err)
	}
	defer rows.Close()

	out := []models.Note{}
	for rows.Next() {
		n, err := scanNote(rows, false)
		if err != nil {
			return nil, unavailable("scan note", err)
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list notes", err)
	}
	return out, nil
}

func (db *DB) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("query", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, unavailable("scan", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("query", err)
	}
	return out, nil
}

func (db *DB) links(ctx context.Context, clause string, args ...any) ([]models.Link, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT l.source_id, l.target_text, l.display_text, l.resolved, l.target_id FROM links l `+clause, args...)
	if err != nil {
		return nil, unavailable("query links", err)
	}
	defer rows.Close()

	out := []models.Link{}
	for rows.Next() {
		var (
			l      models.Link
			target sql.NullString
		)
		if err := rows.Scan(&l.SourceID, &l.TargetText, &l.DisplayText, &l.Resolved, &target); err != nil {
			return nil, unavailable("scan link", err)
		}
		l.TargetID = target.String
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("query links", err)
	}
	return out, nil
}

func now() int64 { return time.Now().UnixMilli() }
