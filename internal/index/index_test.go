package index

import (
	"context"
	"path"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/resolver"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func note(id, title, content string, tags ...string) models.Note {
	return models.Note{
		ID:        id,
		Slug:      path.Base(id),
		Title:     title,
		Content:   content,
		Excerpt:   content,
		Path:      id + ".md",
		Modified:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		WordCount: len(strings.Fields(content)),
		Tags:      append([]string{}, tags...),
		Aliases:   []string{},
	}
}

// annotate mimics the engine: ordinals in slice order, links resolved.
func annotate(notes []models.Note) []models.Note {
	for i := range notes {
		notes[i].Ordinal = i
	}
	resolver.New(notes).Annotate(notes)
	return notes
}

func count(t *testing.T, db *DB, query string) int {
	t.Helper()
	var n int
	require.NoError(t, db.conn.QueryRow(query).Scan(&n))
	return n
}

func TestOpen_MigrationsRecorded(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "index.db")
	db, err := Open(p)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening must not reapply the schema.
	db, err = Open(p)
	require.NoError(t, err)
	defer db.Close()

	var v string
	require.NoError(t, db.conn.QueryRow(
		`SELECT version FROM schema_version ORDER BY applied_at DESC, rowid DESC LIMIT 1`).Scan(&v))
	assert.Equal(t, CurrentSchemaVersion, v)
	assert.Equal(t, len(AllMigrations), count(t, db, `SELECT COUNT(*) FROM schema_version`))
	assert.Equal(t, CurrentSchemaVersion, AllMigrations[len(AllMigrations)-1].Version)
}

func TestSync_RoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a := note("folder/a", "Alpha", "links to [[b]]", "go", "db")
	a.Aliases = []string{"first"}
	a.Links = []models.Link{{SourceID: "folder/a", TargetText: "b", DisplayText: "b"}}
	a.Folder = "folder"
	a.Created = time.Date(2023, 5, 6, 7, 8, 9, 0, time.UTC)
	notes := annotate([]models.Note{a, note("b", "Bee", "plain")})

	res, err := db.Sync(ctx, notes)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, 2, res.Scanned)
	assert.NotEmpty(t, res.RunID)

	got, err := db.GetNote(ctx, "folder/a")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", got.Title)
	assert.Equal(t, "a", got.Slug)
	assert.Equal(t, "folder", got.Folder)
	assert.Equal(t, "links to [[b]]", got.Content)
	assert.Equal(t, []string{"db", "go"}, got.Tags)
	assert.Equal(t, []string{"first"}, got.Aliases)
	assert.True(t, a.Created.Equal(got.Created))
	assert.Nil(t, got.LastAccessed)
	require.Len(t, got.Links, 1)
	assert.Equal(t, models.Link{SourceID: "folder/a", TargetText: "b", DisplayText: "b", Resolved: true, TargetID: "b"}, got.Links[0])

	_, err = db.GetNote(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSync_Idempotent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	notes := annotate([]models.Note{note("a", "A", "one"), note("b", "B", "two")})

	_, err := db.Sync(ctx, notes)
	require.NoError(t, err)
	res, err := db.Sync(ctx, notes)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Added)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 0, res.Deleted)
	assert.Equal(t, 2, res.Scanned)
}

func TestSync_CountsUpdatesAndDeletes(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_, err := db.Sync(ctx, annotate([]models.Note{note("a", "A", "one"), note("b", "B", "two"), note("c", "C", "three")}))
	require.NoError(t, err)

	changed := note("a", "A", "one more")
	moved := note("b", "B", "two")
	moved.Size = 99 // metadata-only change is not an update
	res, err := db.Sync(ctx, annotate([]models.Note{changed, moved, note("d", "D", "four")}))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Deleted)

	n, err := db.NoteCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSync_DeletionLeavesNoDanglingRows(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a := note("a", "A", "see [[b]]", "solo", "shared")
	a.Aliases = []string{"alpha"}
	a.Links = []models.Link{{SourceID: "a", TargetText: "b", DisplayText: "b"}}
	_, err := db.Sync(ctx, annotate([]models.Note{a, note("b", "B", "x", "shared")}))
	require.NoError(t, err)

	_, err = db.Sync(ctx, annotate([]models.Note{note("b", "B", "x", "shared")}))
	require.NoError(t, err)

	assert.Zero(t, count(t, db, `SELECT COUNT(*) FROM links WHERE source_id = 'a'`))
	assert.Zero(t, count(t, db, `SELECT COUNT(*) FROM aliases WHERE note_id = 'a'`))
	assert.Zero(t, count(t, db, `SELECT COUNT(*) FROM note_tags WHERE note_id = 'a'`))
	assert.Zero(t, count(t, db, `SELECT COUNT(*) FROM tags WHERE name = 'solo'`), "orphan tag pruned")
	assert.Zero(t, count(t, db, `SELECT COUNT(*) FROM notes_fts WHERE notes_fts MATCH 'see'`))

	tags, err := db.TagsWithCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []TagCount{{Name: "shared", Count: 1}}, tags)
}

func TestSync_EventualResolution(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a := note("a", "A", "[[later]]")
	a.Links = []models.Link{{SourceID: "a", TargetText: "later", DisplayText: "later"}}

	_, err := db.Sync(ctx, annotate([]models.Note{a}))
	require.NoError(t, err)
	got, err := db.GetNote(ctx, "a")
	require.NoError(t, err)
	require.Len(t, got.Links, 1)
	assert.False(t, got.Links[0].Resolved)

	a.Links[0].Resolved, a.Links[0].TargetID = false, ""
	_, err = db.Sync(ctx, annotate([]models.Note{a, note("later", "Later", "here")}))
	require.NoError(t, err)
	got, err = db.GetNote(ctx, "a")
	require.NoError(t, err)
	assert.True(t, got.Links[0].Resolved)
	assert.Equal(t, "later", got.Links[0].TargetID)

	bl, err := db.Backlinks(ctx, "later")
	require.NoError(t, err)
	require.Len(t, bl, 1)
	assert.Equal(t, "a", bl[0].SourceID)
}

func TestRecordAccess(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	notes := annotate([]models.Note{note("a", "A", "x"), note("b", "B", "y"), note("c", "C", "z")})
	_, err := db.Sync(ctx, notes)
	require.NoError(t, err)

	require.NoError(t, db.RecordAccess(ctx, "b"))
	require.NoError(t, db.RecordAccess(ctx, "b"))
	require.NoError(t, db.RecordAccess(ctx, "a"))
	assert.ErrorIs(t, db.RecordAccess(ctx, "ghost"), apperr.ErrNotFound)

	// A re-sync must keep the counters.
	_, err = db.Sync(ctx, notes)
	require.NoError(t, err)

	top, err := db.MostAccessed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "b", top[0].ID)
	assert.Equal(t, 2, top[0].AccessCount)
	require.NotNil(t, top[0].LastAccessed)
	assert.Equal(t, "a", top[1].ID)
}

func TestSync_ConcurrentRecordAccess(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_, err := db.Sync(ctx, annotate([]models.Note{note("a", "A", "x")}))
	require.NoError(t, err)

	// Same steps as sync: read the digests, then write. An access recorded
	// between the two must wait for the commit instead of breaking the write.
	tx, err := db.conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback() //nolint:errcheck
	_, err = loadDigests(ctx, tx)
	require.NoError(t, err)

	accessed := make(chan error, 1)
	go func() { accessed <- db.RecordAccess(ctx, "a") }()
	time.Sleep(50 * time.Millisecond)

	w, err := prepareWriter(ctx, tx)
	require.NoError(t, err)
	changed := note("a", "A", "changed")
	require.NoError(t, w.upsert(ctx, &changed))
	w.close()
	require.NoError(t, tx.Commit())

	require.NoError(t, <-accessed)
	got, err := db.GetNote(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "changed", got.Content)
	assert.Equal(t, 1, got.AccessCount)
}

func TestRecentlyModified(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	old, mid, fresh := note("old", "Old", "x"), note("mid", "Mid", "y"), note("fresh", "Fresh", "z")
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	old.Modified, mid.Modified, fresh.Modified = base, base.Add(time.Hour), base.Add(2*time.Hour)
	_, err := db.Sync(ctx, annotate([]models.Note{old, mid, fresh}))
	require.NoError(t, err)

	got, err := db.RecentlyModified(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "fresh", got[0].ID)
	assert.Equal(t, "mid", got[1].ID)
	assert.Empty(t, got[0].Content, "listings carry no content")
}

func TestTagsWithCounts_Ordering(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_, err := db.Sync(ctx, annotate([]models.Note{
		note("a", "A", "x", "go", "zeta"),
		note("b", "B", "y", "go", "alpha"),
		note("c", "C", "z", "go", "zeta"),
	}))
	require.NoError(t, err)

	tags, err := db.TagsWithCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []TagCount{{"go", 3}, {"zeta", 2}, {"alpha", 1}}, tags)
}

func TestResolveLink_FirstByOrdinal(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	first := note("inbox/meeting", "Weekly", "x")
	second := note("projects/meeting", "Project", "y")
	third := note("ideas", "Ideas", "z")
	third.Aliases = []string{"Weekly"}
	_, err := db.Sync(ctx, annotate([]models.Note{first, second, third}))
	require.NoError(t, err)

	for target, want := range map[string]string{
		"meeting":          "inbox/meeting",
		"Meeting.md":       "inbox/meeting",
		"weekly":           "inbox/meeting",
		"projects/meeting": "projects/meeting",
		"IDEAS#heading":    "ideas",
	} {
		n, err := db.ResolveLink(ctx, target)
		require.NoError(t, err, target)
		assert.Equal(t, want, n.ID, target)
	}

	_, err = db.ResolveLink(ctx, "nowhere")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = db.ResolveLink(ctx, "#heading")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestResolveLink_MatchesResolverKeys(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	sharp := note("langs/csharp", "C#", "x")
	apples := note("fruit", "Äpfel", "y")
	apples.Aliases = []string{"Grüne Äpfel"}
	notes := annotate([]models.Note{sharp, apples})
	_, err := db.Sync(ctx, notes)
	require.NoError(t, err)

	r := resolver.New(notes)
	for _, target := range []string{"C#", "c", "äpfel", "ÄPFEL", "grüne äpfel", "csharp"} {
		want, ok := r.Resolve(target)
		require.True(t, ok, target)
		n, err := db.ResolveLink(ctx, target)
		require.NoError(t, err, target)
		assert.Equal(t, want, n.ID, target)
	}

	// Renaming a note drops its old keys.
	apples.Title = "Birnen"
	apples.Aliases = nil
	_, err = db.Sync(ctx, annotate([]models.Note{sharp, apples}))
	require.NoError(t, err)
	_, err = db.ResolveLink(ctx, "äpfel")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	n, err := db.ResolveLink(ctx, "birnen")
	require.NoError(t, err)
	assert.Equal(t, "fruit", n.ID)
}

func TestSearch_TitleRanksAboveBody(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_, err := db.Sync(ctx, annotate([]models.Note{
		note("body", "Unrelated", "a long paragraph that mentions kubernetes once among many other words here"),
		note("title", "Kubernetes", "short text"),
	}))
	require.NoError(t, err)

	res, err := db.Search(ctx, "kubernetes", 10)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "title", res[0].ID)
	assert.GreaterOrEqual(t, res[0].Rank, res[1].Rank)
	assert.Contains(t, res[1].Snippet, "<mark>kubernetes</mark>")
	assert.Equal(t, "body.md", res[1].Path)
}

func TestSearch_QueryEdgeCases(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_, err := db.Sync(ctx, annotate([]models.Note{note("a", "A", "hello world")}))
	require.NoError(t, err)

	for _, q := range []string{"", "   ", `"*()`, "AND"} {
		res, err := db.Search(ctx, q, 10)
		require.NoError(t, err, "query %q", q)
		assert.Empty(t, res, "query %q", q)
	}

	res, err := db.Search(ctx, `hello* (world)`, 10)
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestSync_InProgress(t *testing.T) {
	db := testDB(t)
	require.True(t, db.syncSem.TryAcquire(1))

	_, err := db.Sync(context.Background(), nil)
	assert.ErrorIs(t, err, apperr.ErrSyncInProgress)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = db.SyncQueued(ctx, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	db.syncSem.Release(1)
	_, err = db.SyncQueued(context.Background(), nil)
	assert.NoError(t, err)
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	require.NoError(t, db.Close())
	ctx := context.Background()

	_, err = db.Sync(ctx, annotate([]models.Note{note("a", "A", "x")}))
	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)
	_, err = db.Search(ctx, "x", 5)
	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)
	_, err = db.TagsWithCounts(ctx)
	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)
	assert.ErrorIs(t, db.RecordAccess(ctx, "a"), apperr.ErrStoreUnavailable)
}

func TestQueryTerms(t *testing.T) {
	assert.Equal(t, []string{"hello", "world"}, QueryTerms(`Hello, "world" hello*`))
	assert.Equal(t, []string{"café", "42"}, QueryTerms("Café -42"))
	assert.Empty(t, QueryTerms(`"*()^`))
}

func TestBuildSnippet(t *testing.T) {
	assert.Equal(t, "short <mark>Go</mark> text", BuildSnippet("short Go text", []string{"go"}, 64))

	long := strings.Repeat("a ", 100) + "needle" + strings.Repeat(" b", 100) + "needle" + strings.Repeat(" c", 100)
	s := BuildSnippet(long, []string{"needle"}, 10)
	assert.Equal(t, 2, strings.Count(s, "<mark>needle</mark>"))
	assert.Contains(t, s, " … ")
	assert.True(t, strings.HasPrefix(s, "…"))
	assert.True(t, strings.HasSuffix(s, "…"))

	none := BuildSnippet(strings.Repeat("x", 300), []string{"needle"}, 10)
	assert.Equal(t, strings.Repeat("x", 20)+"…", none)

	assert.Equal(t, "line one <mark>two</mark>", BuildSnippet("line one\ntwo", []string{"two"}, 64))
}

func TestBuildSnippet_WholeWordsOnly(t *testing.T) {
	assert.Equal(t, "the <mark>Cat</mark> sat in a category of <mark>cat</mark>-like things",
		BuildSnippet("the Cat sat in a category of cat-like things", []string{"cat"}, 64))
	assert.Equal(t, "concatenate scatter", BuildSnippet("concatenate scatter", []string{"cat"}, 64))
	assert.Equal(t, "<mark>Äpfel</mark> und Äpfelsaft", BuildSnippet("Äpfel und Äpfelsaft", []string{"äpfel"}, 64))
}
