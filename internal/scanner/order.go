package scanner

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/starford/notegraph/internal/storage"
)

// DefaultOrderFile is the reserved control file holding manual ordering.
const DefaultOrderFile = ".notegraph-order.json"

// FolderOrder is the saved manual order of one folder's children.
type FolderOrder struct {
	Files   []string `json:"files"`
	Folders []string `json:"folders"`
}

// Order maps a folder id ("" for the root) to its saved order.
type Order map[string]FolderOrder

// LoadOrder reads the ordering file. A missing or corrupt file yields an
// empty Order; corruption is logged, never returned.
func LoadOrder(store storage.Provider, name string, logger *slog.Logger) Order {
	data, err := store.Read(name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("scanner: order file unreadable", slog.String("file", name), slog.String("error", err.Error()))
		}
		return Order{}
	}
	var o Order
	if err := json.Unmarshal(data, &o); err != nil {
		logger.Warn("scanner: order file corrupt, ignoring", slog.String("file", name), slog.String("error", err.Error()))
		return Order{}
	}
	if o == nil {
		o = Order{}
	}
	return o
}

// SaveOrder replaces the saved order of folder and writes the ordering file atomically.
func SaveOrder(store storage.Provider, name, folder string, order FolderOrder, logger *slog.Logger) error {
	o := LoadOrder(store, name, logger)
	o[folder] = order
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return fmt.Errorf("scanner: encode order: %w", err)
	}
	if err := store.Write(name, data); err != nil {
		return fmt.Errorf("scanner: save order: %w", err)
	}
	return nil
}

// applyOrder returns ids with the saved ones first, in saved order, followed
// by the rest in their natural order. Saved ids that no longer exist are dropped.
func applyOrder(ids, saved []string) []string {
	if len(saved) == 0 {
		return ids
	}
	present := make(map[string]bool, len(ids))
	for _, id := range ids {
		present[id] = true
	}

	out := make([]string, 0, len(ids))
	placed := make(map[string]bool, len(ids))
	for _, id := range saved {
		if present[id] && !placed[id] {
			placed[id] = true
			out = append(out, id)
		}
	}
	for _, id := range ids {
		if !placed[id] {
			out = append(out, id)
		}
	}
	return out
}
