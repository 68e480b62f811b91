// Package noteservice is the engine facade: it wires the scanner, resolver,
// index store and graph builder into the operations the API, MCP server
// and CLI consume.
package noteservice

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/starford/notegraph/internal/graph"
	"github.com/starford/notegraph/internal/index"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/resolver"
	"github.com/starford/notegraph/internal/scanner"
	"github.com/starford/notegraph/internal/storage"
)

const (
	defaultCacheSize    = 256
	defaultSearchLimit  = 20
	defaultListingLimit = 10
)

// NoteDetail is a stored note together with the links pointing at it.
type NoteDetail struct {
	models.Note
	Backlinks []models.Link `json:"backlinks"`
}

// Options configures a Service. Zero values select defaults.
type Options struct {
	OrderFile         string
	Reserved          []string
	CacheSize         int
	DefaultLimit      int
	WeakThreshold     int
	TagEdgeMaxMembers int
	// OnSync runs after every committed sync, e.g. to notify SSE clients.
	OnSync func(*index.SyncResult)
}

// Service coordinates scanning, indexing and graph operations.
type Service struct {
	store   storage.Provider
	db      index.NoteIndex
	scanner *scanner.Scanner
	cache   *lru.Cache[string, []index.SearchResult]
	// gen advances on every purge; a search only caches its result if no
	// purge happened while it ran. purgeMu orders that check against purges.
	gen     atomic.Uint64
	purgeMu sync.Mutex
	logger  *slog.Logger
	opts    Options
}

// NewService creates a new note service over store and db.
func NewService(store storage.Provider, db index.NoteIndex, logger *slog.Logger, opts Options) (*Service, error) {
	if opts.OrderFile == "" {
		opts.OrderFile = scanner.DefaultOrderFile
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = defaultSearchLimit
	}
	cache, err := lru.New[string, []index.SearchResult](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("noteservice: search cache: %w", err)
	}
	sc := scanner.New(store, logger,
		scanner.WithOrderFile(opts.OrderFile),
		scanner.WithReserved(opts.Reserved...))
	return &Service{store: store, db: db, scanner: sc, cache: cache, logger: logger, opts: opts}, nil
}

// Scan walks the corpus and returns its structure with every wikilink resolved.
func (s *Service) Scan(ctx context.Context) (*models.Structure, error) {
	st, err := s.scanner.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("noteservice: scan: %w", err)
	}
	r := resolver.New(st.Notes)
	r.Annotate(st.Notes)
	if dups := r.Duplicates(); len(dups) > 0 {
		s.logger.Warn("noteservice: duplicate block ids", slog.Any("blocks", dups))
	}
	return st, nil
}

// Sync scans and reconciles the index. It fails with apperr.ErrSyncInProgress
// when another sync holds the store.
func (s *Service) Sync(ctx context.Context) (*index.SyncResult, error) {
	return s.sync(ctx, s.db.Sync)
}

// SyncQueued is Sync, but waits for a running sync instead of failing.
func (s *Service) SyncQueued(ctx context.Context) (*index.SyncResult, error) {
	return s.sync(ctx, s.db.SyncQueued)
}

func (s *Service) sync(ctx context.Context, run func(context.Context, []models.Note) (*index.SyncResult, error)) (*index.SyncResult, error) {
	// Scan outside the store's write lock.
	st, err := s.Scan(ctx)
	if err != nil {
		return nil, err
	}
	res, err := run(ctx, st.Notes)
	if err != nil {
		return nil, err
	}
	s.purge()
	if s.opts.OnSync != nil {
		s.opts.OnSync(res)
	}
	return res, nil
}

func (s *Service) purge() {
	s.purgeMu.Lock()
	defer s.purgeMu.Unlock()
	s.gen.Add(1)
	s.cache.Purge()
}

// Search runs a ranked full-text query, served from cache between syncs.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]index.SearchResult, error) {
	if limit <= 0 {
		limit = s.opts.DefaultLimit
	}
	terms := index.QueryTerms(query)
	if len(terms) == 0 {
		return []index.SearchResult{}, nil
	}
	key := strings.Join(terms, " ") + "|" + strconv.Itoa(limit)
	if hit, ok := s.cache.Get(key); ok {
		return hit, nil
	}
	gen := s.gen.Load()
	res, err := s.db.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	s.purgeMu.Lock()
	if s.gen.Load() == gen {
		s.cache.Add(key, res)
	}
	s.purgeMu.Unlock()
	return res, nil
}

// TagsWithCounts lists tags by descending use.
func (s *Service) TagsWithCounts(ctx context.Context) ([]index.TagCount, error) {
	return s.db.TagsWithCounts(ctx)
}

// MostAccessed returns the most opened notes.
func (s *Service) MostAccessed(ctx context.Context, limit int) ([]models.Note, error) {
	return s.db.MostAccessed(ctx, listingLimit(limit))
}

// RecentlyModified returns the latest modified notes.
func (s *Service) RecentlyModified(ctx context.Context, limit int) ([]models.Note, error) {
	return s.db.RecentlyModified(ctx, listingLimit(limit))
}

// RecordAccess counts one view of a note. Engine read paths never call it.
func (s *Service) RecordAccess(ctx context.Context, id string) error {
	return s.db.RecordAccess(ctx, id)
}

// GetNote returns a stored note with its backlinks.
func (s *Service) GetNote(ctx context.Context, id string) (*NoteDetail, error) {
	n, err := s.db.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	bl, err := s.db.Backlinks(ctx, id)
	if err != nil {
		return nil, err
	}
	return &NoteDetail{Note: *n, Backlinks: bl}, nil
}

// Backlinks returns the links pointing at id.
func (s *Service) Backlinks(ctx context.Context, id string) ([]models.Link, error) {
	return s.db.Backlinks(ctx, id)
}

// ResolveLink resolves wikilink target text against the index.
func (s *Service) ResolveLink(ctx context.Context, target string) (*models.Note, error) {
	return s.db.ResolveLink(ctx, target)
}

// BuildGraph scans the corpus and builds its link graph.
func (s *Service) BuildGraph(ctx context.Context) (*graph.Graph, error) {
	st, err := s.Scan(ctx)
	if err != nil {
		return nil, err
	}
	return graph.Build(st.Notes, graph.Options{TagEdgeMaxMembers: s.opts.TagEdgeMaxMembers}), nil
}

// Analyze builds the graph and derives orphans, weak notes and rankings.
func (s *Service) Analyze(ctx context.Context, top int) (graph.Analysis, error) {
	g, err := s.BuildGraph(ctx)
	if err != nil {
		return graph.Analysis{}, err
	}
	return graph.Analyze(g, s.opts.WeakThreshold, top), nil
}

// SaveOrder persists the manual order of one folder. It takes effect on the next scan.
func (s *Service) SaveOrder(_ context.Context, folder string, order scanner.FolderOrder) error {
	return scanner.SaveOrder(s.store, s.opts.OrderFile, folder, order, s.logger)
}

func listingLimit(limit int) int {
	if limit <= 0 {
		return defaultListingLimit
	}
	return limit
}
