// Package scanner walks the corpus root and turns every markdown file into a
// normalized models.Note, applying the saved manual order.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"

	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/parser"
	"github.com/starford/notegraph/internal/storage"
)

// Scanner is stateless between runs and safe to re-run at any time.
type Scanner struct {
	store     storage.Provider
	orderFile string
	reserved  map[string]struct{}
	logger    *slog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithOrderFile overrides the ordering file name (relative to the root).
func WithOrderFile(name string) Option {
	return func(s *Scanner) { s.orderFile = name }
}

// WithReserved adds file names that are never treated as notes.
func WithReserved(names ...string) Option {
	return func(s *Scanner) {
		for _, n := range names {
			if n != "" {
				s.reserved[n] = struct{}{}
			}
		}
	}
}

// New creates a Scanner over store.
func New(store storage.Provider, logger *slog.Logger, opts ...Option) *Scanner {
	s := &Scanner{
		store:     store,
		orderFile: DefaultOrderFile,
		reserved:  make(map[string]struct{}),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reserved[path.Base(s.orderFile)] = struct{}{}
	return s
}

// Scan walks the root. Unreadable or unparsable files become warnings; a
// missing root yields an empty Structure.
func (s *Scanner) Scan(ctx context.Context) (*models.Structure, error) {
	st := &models.Structure{Root: &models.Folder{ID: "", Name: ""}}
	order := LoadOrder(s.store, s.orderFile, s.logger)
	notes := make(map[string]models.Note)

	if err := s.walk(ctx, st.Root, order, notes, &st.Warnings); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Info("scanner: root missing, empty corpus")
			return st, nil
		}
		return nil, err
	}

	flatten(st.Root, notes, &st.Notes)
	s.logger.Debug("scanner: scan complete",
		slog.Int("notes", len(st.Notes)),
		slog.Int("warnings", len(st.Warnings)))
	return st, nil
}

func (s *Scanner) walk(ctx context.Context, folder *models.Folder, order Order, notes map[string]models.Note, warnings *[]models.Warning) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := s.store.ReadDir(folder.ID)
	if err != nil {
		return err
	}

	var files, dirs []string
	subfolders := make(map[string]*models.Folder)
	for _, e := range entries {
		if s.skip(e) {
			continue
		}
		if e.IsDir {
			sub := &models.Folder{ID: e.Path, Name: e.Name}
			if err := s.walk(ctx, sub, order, notes, warnings); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.warn(warnings, e.Path, err)
				continue
			}
			subfolders[sub.ID] = sub
			dirs = append(dirs, sub.ID)
			continue
		}

		n, err := s.readNote(e)
		if err != nil {
			s.warn(warnings, e.Path, err)
			continue
		}
		if _, dup := notes[n.ID]; dup {
			s.warn(warnings, e.Path, fmt.Errorf("duplicate note id %q", n.ID))
			continue
		}
		notes[n.ID] = n
		files = append(files, n.ID)
	}

	saved := order[folder.ID]
	folder.Files = applyOrder(files, saved.Files)
	if folder.Files == nil {
		folder.Files = []string{}
	}
	folder.Folders = make([]*models.Folder, 0, len(dirs))
	for _, id := range applyOrder(dirs, saved.Folders) {
		folder.Folders = append(folder.Folders, subfolders[id])
	}
	return nil
}

func (s *Scanner) skip(e storage.Entry) bool {
	if strings.HasPrefix(e.Name, ".") {
		return true
	}
	if _, ok := s.reserved[e.Name]; ok {
		return true
	}
	return !e.IsDir && !strings.EqualFold(path.Ext(e.Name), ".md")
}

func (s *Scanner) warn(warnings *[]models.Warning, p string, err error) {
	s.logger.Warn("scanner: skipping", slog.String("path", p), slog.String("error", err.Error()))
	*warnings = append(*warnings, models.Warning{Path: p, Message: err.Error()})
}

func (s *Scanner) readNote(e storage.Entry) (models.Note, error) {
	data, err := s.store.Read(e.Path)
	if err != nil {
		return models.Note{}, err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return models.Note{}, err
	}

	id := strings.TrimSuffix(e.Path, path.Ext(e.Path))
	slug := strings.TrimSuffix(e.Name, path.Ext(e.Name))
	folder := path.Dir(e.Path)
	if folder == "." {
		folder = ""
	}

	title := res.Title
	if title == "" {
		title = slug
	}
	created := res.Created
	if created.IsZero() {
		created = e.ModTime
	}

	links := make([]models.Link, 0, len(res.Links))
	for _, l := range res.Links {
		links = append(links, models.Link{SourceID: id, TargetText: l.Target, DisplayText: l.Display})
	}
	blocks := make([]models.Block, 0, len(res.Blocks))
	for _, b := range res.Blocks {
		blocks = append(blocks, models.Block{ID: b.ID, Line: b.Line, Text: b.Text})
	}
	embeds := make([]models.Embed, 0, len(res.Embeds))
	for _, em := range res.Embeds {
		embeds = append(embeds, models.Embed{Target: em.Target, BlockID: em.BlockID})
	}

	return models.Note{
		ID:        id,
		Slug:      slug,
		Title:     title,
		Content:   res.Body,
		Excerpt:   res.Excerpt,
		Path:      e.Path,
		Folder:    folder,
		Size:      e.Size,
		Created:   created,
		Modified:  e.ModTime,
		WordCount: res.WordCount,
		Checksum:  storage.Checksum(data),
		Tags:      nonNil(res.Tags),
		Aliases:   nonNil(res.Aliases),
		Links:     links,
		Blocks:    blocks,
		Embeds:    embeds,
	}, nil
}

// flatten emits a folder's files, then each subfolder depth first, assigning ordinals.
func flatten(f *models.Folder, notes map[string]models.Note, out *[]models.Note) {
	for _, id := range f.Files {
		n := notes[id]
		n.Ordinal = len(*out)
		*out = append(*out, n)
	}
	for _, sub := range f.Folders {
		flatten(sub, notes, out)
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
