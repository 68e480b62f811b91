// Package watcher observes the corpus root and requests a sync once file
// activity has settled.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period required before a sync is requested.
const DefaultDebounce = 500 * time.Millisecond

// ChangeFunc is called once per settled burst of changes.
type ChangeFunc func(ctx context.Context)

// Watcher debounces fsnotify events for a directory tree.
type Watcher struct {
	root      string
	debounce  time.Duration
	onChange  ChangeFunc
	orderFile string
	ignore    map[string]struct{}
	logger    *slog.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithOrderFile names the ordering file; changes to it trigger a sync.
func WithOrderFile(name string) Option {
	return func(w *Watcher) { w.orderFile = filepath.Base(name) }
}

// WithIgnore adds file names whose events are dropped. SQLite side files
// (-wal, -shm, -journal) of each name are ignored too.
func WithIgnore(names ...string) Option {
	return func(w *Watcher) {
		for _, n := range names {
			if n == "" {
				continue
			}
			base := filepath.Base(n)
			for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
				w.ignore[base+suffix] = struct{}{}
			}
		}
	}
}

// New creates a watcher over root that calls onChange after each burst.
func New(root string, logger *slog.Logger, onChange ChangeFunc, opts ...Option) *Watcher {
	w := &Watcher{
		root:     root,
		debounce: DefaultDebounce,
		onChange: onChange,
		ignore:   make(map[string]struct{}),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is cancelled. New directories are added as they
// appear. A missing root is not an error: the watcher waits for ctx.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := addDirsRecursive(fw, w.root); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		w.logger.Warn("watcher: root missing, not watching", slog.String("root", w.root))
	}
	w.logger.Info("watcher: started", slog.String("root", w.root), slog.Duration("debounce", w.debounce))

	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			w.logger.Info("watcher: stopped")
			return nil

		case <-timer.C:
			w.logger.Debug("watcher: changes settled, syncing")
			w.onChange(ctx)

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() && !w.hidden(ev.Name) {
					if addErr := addDirsRecursive(fw, ev.Name); addErr != nil {
						w.logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
				}
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug("watcher: change", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			timer.Reset(w.debounce)

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// relevant reports whether ev can change the scanned corpus.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	name := filepath.Base(ev.Name)
	if _, ok := w.ignore[name]; ok {
		return false
	}
	if w.orderFile != "" && name == w.orderFile {
		return true
	}
	if w.hidden(ev.Name) {
		return false
	}
	if strings.EqualFold(filepath.Ext(name), ".md") {
		return true
	}
	// A vanished directory can no longer be stat'ed; extensionless removals may be one.
	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && filepath.Ext(name) == "" {
		return true
	}
	if ev.Op&fsnotify.Create != 0 {
		info, err := os.Stat(ev.Name)
		return err == nil && info.IsDir()
	}
	return false
}

// hidden reports whether any path element below the root starts with a dot.
func (w *Watcher) hidden(p string) bool {
	rel, err := filepath.Rel(w.root, p)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the watcher.
func addDirsRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}
