package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// CurrentSchemaVersion is the schema version written by the latest migration.
const CurrentSchemaVersion = "1.1.0"

// Migration is one forward schema step.
type Migration struct {
	Version string
	Up      string
}

// AllMigrations lists schema migrations in ascending version order.
var AllMigrations = []Migration{
	{Version: "1.0.0", Up: migrationV1Up},
	{Version: "1.1.0", Up: migrationV110Up},
}

// Timestamps are stored as unix milliseconds so both drivers agree on the encoding.
const migrationV1Up = `
CREATE TABLE IF NOT EXISTS schema_version (
	version    TEXT PRIMARY KEY,
	applied_at INTEGER NOT NULL DEFAULT (CAST(strftime('%s','now') AS INTEGER))
);

CREATE TABLE IF NOT EXISTS notes (
	rid           INTEGER PRIMARY KEY,
	id            TEXT NOT NULL UNIQUE,
	slug          TEXT NOT NULL,
	title         TEXT NOT NULL DEFAULT '',
	content       TEXT NOT NULL DEFAULT '',
	excerpt       TEXT NOT NULL DEFAULT '',
	path          TEXT NOT NULL,
	folder        TEXT NOT NULL DEFAULT '',
	size          INTEGER NOT NULL DEFAULT 0,
	created       INTEGER NOT NULL DEFAULT 0,
	modified      INTEGER NOT NULL DEFAULT 0,
	last_accessed INTEGER,
	access_count  INTEGER NOT NULL DEFAULT 0,
	word_count    INTEGER NOT NULL DEFAULT 0,
	checksum      TEXT NOT NULL DEFAULT '',
	ordinal       INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_notes_slug ON notes(slug COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_notes_title ON notes(title COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_notes_modified ON notes(modified);
CREATE INDEX IF NOT EXISTS idx_notes_access ON notes(access_count, last_accessed);

CREATE TABLE IF NOT EXISTS tags (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS note_tags (
	note_id TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	tag_id  INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	PRIMARY KEY (note_id, tag_id)
);

CREATE INDEX IF NOT EXISTS idx_note_tags_tag ON note_tags(tag_id);

CREATE TABLE IF NOT EXISTS aliases (
	id      INTEGER PRIMARY KEY,
	note_id TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	alias   TEXT NOT NULL,
	UNIQUE (note_id, alias)
);

CREATE INDEX IF NOT EXISTS idx_aliases_alias ON aliases(alias COLLATE NOCASE);

CREATE TABLE IF NOT EXISTS links (
	id           INTEGER PRIMARY KEY,
	source_id    TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	target_text  TEXT NOT NULL,
	display_text TEXT NOT NULL DEFAULT '',
	resolved     INTEGER NOT NULL DEFAULT 0,
	target_id    TEXT
);

CREATE INDEX IF NOT EXISTS idx_links_source ON links(source_id);
CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_id);

CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
	title, content,
	content='notes',
	content_rowid='rid',
	tokenize='unicode61 remove_diacritics 2'
);

CREATE TRIGGER IF NOT EXISTS notes_ai AFTER INSERT ON notes BEGIN
	INSERT INTO notes_fts(rowid, title, content) VALUES (new.rid, new.title, new.content);
END;

CREATE TRIGGER IF NOT EXISTS notes_ad AFTER DELETE ON notes BEGIN
	INSERT INTO notes_fts(notes_fts, rowid, title, content) VALUES ('delete', old.rid, old.title, old.content);
END;

CREATE TRIGGER IF NOT EXISTS notes_au AFTER UPDATE OF title, content ON notes BEGIN
	INSERT INTO notes_fts(notes_fts, rowid, title, content) VALUES ('delete', old.rid, old.title, old.content);
	INSERT INTO notes_fts(rowid, title, content) VALUES (new.rid, new.title, new.content);
END;
`

// note_keys holds each note's names in resolver.NormalizeTarget form. The
// backfill only lower-cases; the next sync rewrites every row.
const migrationV110Up = `
CREATE TABLE IF NOT EXISTS note_keys (
	note_id TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	key     TEXT NOT NULL,
	PRIMARY KEY (note_id, key)
);

CREATE INDEX IF NOT EXISTS idx_note_keys_key ON note_keys(key);

INSERT OR IGNORE INTO note_keys (note_id, key)
	SELECT id, lower(id) FROM notes
	UNION SELECT id, lower(slug) FROM notes
	UNION SELECT id, lower(title) FROM notes WHERE title <> ''
	UNION SELECT note_id, lower(alias) FROM aliases;
`

// ApplyMigrations runs every migration newer than the recorded schema version.
func ApplyMigrations(ctx context.Context, conn *sql.DB) error {
	current, err := schemaVersion(ctx, conn)
	if err != nil {
		return err
	}

	for _, m := range AllMigrations {
		v, err := semver.NewVersion(m.Version)
		if err != nil {
			return fmt.Errorf("index: invalid migration version %s: %w", m.Version, err)
		}
		if !current.LessThan(v) {
			continue
		}
		if err := applyMigration(ctx, conn, m); err != nil {
			return err
		}
		current = v
	}
	return nil
}

func applyMigration(ctx context.Context, conn *sql.DB, m Migration) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin migration %s: %w", m.Version, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, m.Up); err != nil {
		return fmt.Errorf("index: apply migration %s: %w", m.Version, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, m.Version); err != nil {
		return fmt.Errorf("index: record migration %s: %w", m.Version, err)
	}
	return tx.Commit()
}

// schemaVersion returns the highest applied version, or 0.0.0 on a fresh database.
func schemaVersion(ctx context.Context, conn *sql.DB) (*semver.Version, error) {
	zero := semver.MustParse("0.0.0")

	var name string
	err := conn.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'`).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: check schema_version: %w", err)
	}

	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_version`)
	if err != nil {
		return nil, fmt.Errorf("index: read schema_version: %w", err)
	}
	defer rows.Close()

	current := zero
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("index: scan schema_version: %w", err)
		}
		v, err := semver.NewVersion(s)
		if err != nil {
			return nil, fmt.Errorf("index: invalid schema version %s: %w", s, err)
		}
		if current.LessThan(v) {
			current = v
		}
	}
	return current, rows.Err()
}
