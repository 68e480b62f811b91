package api

import (
	"github.com/starford/notegraph/internal/index"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/noteservice"
)

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// StructureResponse is the scanned folder tree; note contents are omitted.
type StructureResponse = models.Structure

// SyncResponse reports one sync run.
type SyncResponse = index.SyncResult

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// TagsResponse wraps tag counts.
type TagsResponse struct {
	Tags []index.TagCount `json:"tags" validate:"required"`
}

// NoteListResponse wraps a note listing.
type NoteListResponse struct {
	Notes []models.Note `json:"notes" validate:"required"`
}

// BacklinksResponse wraps the links pointing at a note.
type BacklinksResponse struct {
	Backlinks []models.Link `json:"backlinks" validate:"required"`
}

// OrderRequest is the request body for saving a folder's manual order.
type OrderRequest struct {
	Folder  string   `json:"folder" example:"projects"`
	Files   []string `json:"files" example:"projects/plan,projects/notes"`
	Folders []string `json:"folders" example:"projects/archive"`
}
