package index

import (
	"context"

	"github.com/starford/notegraph/internal/models"
)

// NoteIndex defines the interface for note indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type NoteIndex interface {
	Sync(ctx context.Context, notes []models.Note) (*SyncResult, error)
	SyncQueued(ctx context.Context, notes []models.Note) (*SyncResult, error)
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
	TagsWithCounts(ctx context.Context) ([]TagCount, error)
	MostAccessed(ctx context.Context, limit int) ([]models.Note, error)
	RecentlyModified(ctx context.Context, limit int) ([]models.Note, error)
	RecordAccess(ctx context.Context, id string) error
	GetNote(ctx context.Context, id string) (*models.Note, error)
	Backlinks(ctx context.Context, id string) ([]models.Link, error)
	ResolveLink(ctx context.Context, target string) (*models.Note, error)
	NoteCount(ctx context.Context) (int, error)
	Close() error
}

// Verify *DB satisfies NoteIndex at compile time.
var _ NoteIndex = (*DB)(nil)
