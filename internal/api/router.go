package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notegraph/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// events, if non-nil, receives note.accessed events.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler, events Publisher) chi.Router {
	h := NewHandler(svc, events)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Corpus and index.
	r.Get("/structure", h.Structure)
	r.Post("/sync", h.Sync)
	r.Put("/order", h.SaveOrder)

	// Notes.
	r.Get("/notes/recent", h.Recent)
	r.Get("/notes/popular", h.Popular)
	r.Get("/notes/*", h.GetNote)
	r.Get("/backlinks/*", h.Backlinks)
	r.Post("/access/*", h.RecordAccess)
	r.Get("/resolve", h.Resolve)
	r.Get("/tags", h.Tags)

	// Search.
	r.Get("/search", h.Search)

	// Graph.
	r.Get("/graph", h.Graph)
	r.Get("/graph/analysis", h.GraphAnalysis)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
