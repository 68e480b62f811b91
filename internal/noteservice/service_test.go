package noteservice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/graph"
	"github.com/starford/notegraph/internal/index"
	"github.com/starford/notegraph/internal/scanner"
	"github.com/starford/notegraph/internal/testutil"
)

func newService(t *testing.T, files map[string]string, opts Options) (*Service, string) {
	t.Helper()
	root, store := testutil.TestCorpus(t)
	testutil.WriteFiles(t, root, files)
	svc, err := NewService(store, testutil.TestDB(t), testutil.Logger(), opts)
	require.NoError(t, err)
	return svc, root
}

func TestEndToEnd_ChainGraph(t *testing.T) {
	var synced []*index.SyncResult
	svc, _ := newService(t, map[string]string{
		"a.md": "[[b]]",
		"b.md": "[[c]]",
		"c.md": "",
	}, Options{OnSync: func(r *index.SyncResult) { synced = append(synced, r) }})
	ctx := context.Background()

	res, err := svc.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Added)
	require.Len(t, synced, 1)

	g, err := svc.BuildGraph(ctx)
	require.NoError(t, err)
	for id, want := range map[string][2]int{"a": {0, 1}, "b": {1, 1}, "c": {1, 0}} {
		n, ok := g.Node(id)
		require.True(t, ok, id)
		assert.Equal(t, want, [2]int{n.InDegree, n.OutDegree}, id)
	}

	a, err := svc.Analyze(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, a.Orphans)
	assert.Equal(t, 3, a.Stats.Classes[graph.ClassConnected])

	again, err := svc.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, [3]int{0, 0, 0}, [3]int{again.Added, again.Updated, again.Deleted})
}

func TestSearch_CachePurgedBySync(t *testing.T) {
	svc, root := newService(t, map[string]string{"a.md": "nothing here"}, Options{})
	ctx := context.Background()
	_, err := svc.Sync(ctx)
	require.NoError(t, err)

	res, err := svc.Search(ctx, "zebra", 0)
	require.NoError(t, err)
	assert.Empty(t, res)

	testutil.WriteFiles(t, root, map[string]string{"z.md": "# Zebra\nstripes"})
	res, err = svc.Search(ctx, "zebra", 0)
	require.NoError(t, err)
	assert.Empty(t, res, "served from cache until the next sync")

	_, err = svc.Sync(ctx)
	require.NoError(t, err)
	res, err = svc.Search(ctx, "Zebra!", 0)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "z", res[0].ID)

	empty, err := svc.Search(ctx, "  ", 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestGetNote_WithBacklinks(t *testing.T) {
	svc, _ := newService(t, map[string]string{
		"hub.md":    "---\ntags: [core]\naliases: [center]\n---\n# Hub",
		"spoke.md":  "see [[center]]",
		"other.md":  "and [[Hub|the hub]]",
		"island.md": "alone",
	}, Options{})
	ctx := context.Background()
	_, err := svc.Sync(ctx)
	require.NoError(t, err)

	d, err := svc.GetNote(ctx, "hub")
	require.NoError(t, err)
	assert.Equal(t, "Hub", d.Title)
	assert.Equal(t, []string{"core"}, d.Tags)
	require.Len(t, d.Backlinks, 2)
	assert.Equal(t, "spoke", d.Backlinks[1].SourceID)
	assert.Equal(t, "the hub", d.Backlinks[0].DisplayText)

	_, err = svc.GetNote(ctx, "ghost")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	n, err := svc.ResolveLink(ctx, "Center")
	require.NoError(t, err)
	assert.Equal(t, "hub", n.ID)

	tags, err := svc.TagsWithCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []index.TagCount{{Name: "core", Count: 1}}, tags)
}

func TestRecordAccess_OnlyFromCallers(t *testing.T) {
	svc, _ := newService(t, map[string]string{"a.md": "a", "b.md": "b"}, Options{})
	ctx := context.Background()
	_, err := svc.Sync(ctx)
	require.NoError(t, err)

	_, err = svc.GetNote(ctx, "a")
	require.NoError(t, err)
	popular, err := svc.MostAccessed(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, popular, "reads do not count as access")

	require.NoError(t, svc.RecordAccess(ctx, "b"))
	popular, err = svc.MostAccessed(ctx, 5)
	require.NoError(t, err)
	require.Len(t, popular, 1)
	assert.Equal(t, "b", popular[0].ID)

	recent, err := svc.RecentlyModified(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestSaveOrder_AppliesOnNextScan(t *testing.T) {
	svc, _ := newService(t, map[string]string{"a.md": "a", "b.md": "b"}, Options{})
	ctx := context.Background()

	require.NoError(t, svc.SaveOrder(ctx, "", scanner.FolderOrder{Files: []string{"b"}}))
	st, err := svc.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, st.Root.Files)
	assert.Equal(t, 0, st.NoteByID("b").Ordinal)
}

func TestScan_ResolvesLinks(t *testing.T) {
	svc, _ := newService(t, map[string]string{
		"one.md": "[[two]] and [[nowhere]]",
		"two.md": "x",
	}, Options{})

	st, err := svc.Scan(context.Background())
	require.NoError(t, err)
	one := st.NoteByID("one")
	require.NotNil(t, one)
	require.Len(t, one.Links, 2)
	assert.True(t, one.Links[0].Resolved)
	assert.Equal(t, "two", one.Links[0].TargetID)
	assert.False(t, one.Links[1].Resolved)
}

// syncingIndex runs afterSearch once, between a search reading the index and
// the service caching its result.
type syncingIndex struct {
	index.NoteIndex
	afterSearch func()
}

func (s *syncingIndex) Search(ctx context.Context, query string, limit int) ([]index.SearchResult, error) {
	res, err := s.NoteIndex.Search(ctx, query, limit)
	if f := s.afterSearch; f != nil {
		s.afterSearch = nil
		f()
	}
	return res, err
}

func TestSearch_SyncDuringSearchIsNotCached(t *testing.T) {
	root, store := testutil.TestCorpus(t)
	testutil.WriteFiles(t, root, map[string]string{"a.md": "nothing here"})
	idx := &syncingIndex{NoteIndex: testutil.TestDB(t)}
	svc, err := NewService(store, idx, testutil.Logger(), Options{})
	require.NoError(t, err)
	ctx := context.Background()
	_, err = svc.Sync(ctx)
	require.NoError(t, err)

	idx.afterSearch = func() {
		testutil.WriteFiles(t, root, map[string]string{"z.md": "# Zebra"})
		_, err := svc.Sync(ctx)
		require.NoError(t, err)
	}
	res, err := svc.Search(ctx, "zebra", 0)
	require.NoError(t, err)
	assert.Empty(t, res, "the in-flight search read the index before the sync")

	res, err = svc.Search(ctx, "zebra", 0)
	require.NoError(t, err)
	require.Len(t, res, 1, "a result read before the sync must not be cached")
	assert.Equal(t, "z", res[0].ID)
}
