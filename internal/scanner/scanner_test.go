package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/storage"
	"github.com/starford/notegraph/internal/testutil"
)

func ids(notes []models.Note) []string {
	out := make([]string, len(notes))
	for i, n := range notes {
		out[i] = n.ID
	}
	return out
}

func TestScan_TraversalOrderAndFields(t *testing.T) {
	root, store := testutil.TestCorpus(t)
	testutil.WriteFiles(t, root, map[string]string{
		"b.md":            "---\ntitle: Bee\ntags: [x, y]\naliases: buzz\n---\nFirst para with [[a]].\n\nSecond.",
		"a.md":            "# Alpha\nplain text",
		"sub/c.md":        "no title here",
		"sub/deep/d.md":   "d",
		"aaa/e.md":        "e",
		"notes.txt":       "ignored",
		".hidden/x.md":    "ignored",
		"sub/.draft.md":   "ignored",
		"index.db":        "reserved",
		".notegraph.json": "{}",
	})

	st, err := New(store, testutil.Logger(), WithReserved("index.db")).Scan(context.Background())
	require.NoError(t, err)
	require.Empty(t, st.Warnings)

	assert.Equal(t, []string{"a", "b", "aaa/e", "sub/c", "sub/deep/d"}, ids(st.Notes))
	for i, n := range st.Notes {
		assert.Equal(t, i, n.Ordinal)
	}

	b := st.NoteByID("b")
	require.NotNil(t, b)
	assert.Equal(t, "Bee", b.Title)
	assert.Equal(t, "b", b.Slug)
	assert.Equal(t, "b.md", b.Path)
	assert.Equal(t, "", b.Folder)
	assert.Equal(t, []string{"x", "y"}, b.Tags)
	assert.Equal(t, []string{"buzz"}, b.Aliases)
	assert.Equal(t, "First para with a.", b.Excerpt)
	assert.NotContains(t, b.Content, "title: Bee")
	require.Len(t, b.Links, 1)
	assert.Equal(t, "a", b.Links[0].TargetText)
	assert.Equal(t, "b", b.Links[0].SourceID)
	assert.NotEmpty(t, b.Checksum)
	assert.False(t, b.Modified.IsZero())
	assert.Positive(t, b.Size)

	c := st.NoteByID("sub/c")
	require.NotNil(t, c)
	assert.Equal(t, "c", c.Title, "title falls back to slug")
	assert.Equal(t, "sub", c.Folder)

	require.Len(t, st.Root.Folders, 2)
	assert.Equal(t, "aaa", st.Root.Folders[0].ID)
	assert.Equal(t, []string{"sub/c"}, st.Root.Folders[1].Files)
	assert.Equal(t, "sub/deep", st.Root.Folders[1].Folders[0].ID)
}

func TestScan_MissingRootIsEmpty(t *testing.T) {
	store, err := storage.NewFS(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)

	st, err := New(store, testutil.Logger()).Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, st.Notes)
	assert.NotNil(t, st.Root)
}

func TestScan_UnparsableFileIsWarning(t *testing.T) {
	root, store := testutil.TestCorpus(t)
	testutil.WriteFiles(t, root, map[string]string{
		"good.md": "fine",
		"bad.md":  "---\n: invalid: yaml: {{{\n---\nbody",
	})

	st, err := New(store, testutil.Logger()).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, ids(st.Notes))
	require.Len(t, st.Warnings, 1)
	assert.Equal(t, "bad.md", st.Warnings[0].Path)
}

func TestScan_UnreadableFileIsWarning(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read any file")
	}
	root, store := testutil.TestCorpus(t)
	testutil.WriteFiles(t, root, map[string]string{"locked.md": "secret", "open.md": "x"})
	require.NoError(t, os.Chmod(filepath.Join(root, "locked.md"), 0o000))

	st, err := New(store, testutil.Logger()).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"open"}, ids(st.Notes))
	assert.Len(t, st.Warnings, 1)
}

func TestScan_OrderOverlay(t *testing.T) {
	root, store := testutil.TestCorpus(t)
	testutil.WriteFiles(t, root, map[string]string{
		"a.md": "a", "b.md": "b", "c.md": "c", "d.md": "d",
		"x/1.md": "1", "y/2.md": "2", "z/3.md": "3",
	})
	logger := testutil.Logger()
	require.NoError(t, SaveOrder(store, DefaultOrderFile, "", FolderOrder{
		Files:   []string{"c", "gone", "a"},
		Folders: []string{"z"},
	}, logger))

	st, err := New(store, logger).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b", "d", "z/3", "x/1", "y/2"}, ids(st.Notes))
	assert.Equal(t, []string{"c", "a", "b", "d"}, st.Root.Files)
}

func TestScan_CorruptOrderFileIgnored(t *testing.T) {
	root, store := testutil.TestCorpus(t)
	testutil.WriteFiles(t, root, map[string]string{
		"b.md": "b", "a.md": "a",
		DefaultOrderFile: "{not json",
	})

	st, err := New(store, testutil.Logger()).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(st.Notes))
	assert.Empty(t, st.Warnings)
}

func TestScan_Cancelled(t *testing.T) {
	root, store := testutil.TestCorpus(t)
	testutil.WriteFiles(t, root, map[string]string{"a.md": "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(store, testutil.Logger()).Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestApplyOrder(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, applyOrder([]string{"a", "b"}, nil))
	assert.Equal(t, []string{"b", "a", "c"}, applyOrder([]string{"a", "b", "c"}, []string{"b", "b", "missing"}))
}

func TestSaveOrder_PreservesOtherFolders(t *testing.T) {
	_, store := testutil.TestCorpus(t)
	logger := testutil.Logger()
	require.NoError(t, SaveOrder(store, DefaultOrderFile, "", FolderOrder{Files: []string{"a"}}, logger))
	require.NoError(t, SaveOrder(store, DefaultOrderFile, "sub", FolderOrder{Files: []string{"sub/b"}}, logger))

	o := LoadOrder(store, DefaultOrderFile, logger)
	assert.Equal(t, []string{"a"}, o[""].Files)
	assert.Equal(t, []string{"sub/b"}, o["sub"].Files)

	raw, err := store.Read(DefaultOrderFile)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), `"folders"`))
}
