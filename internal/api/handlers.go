package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notegraph/internal/noteservice"
	"github.com/starford/notegraph/internal/scanner"
	"github.com/starford/notegraph/internal/sse"
)

// Publisher receives events produced by API calls.
type Publisher interface {
	Publish(event sse.Event)
}

// Handler holds API route handlers.
type Handler struct {
	svc    *noteservice.Service
	events Publisher
}

// NewHandler creates a new Handler. events may be nil.
func NewHandler(svc *noteservice.Service, events Publisher) *Handler {
	return &Handler{svc: svc, events: events}
}

// noteID extracts the note id from the wildcard part of the URL.
// Supports encoded slashes (e.g. projects%2Fplan) and a trailing ".md".
func noteID(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		decoded = raw
	}
	if strings.HasSuffix(strings.ToLower(decoded), ".md") {
		decoded = decoded[:len(decoded)-len(".md")]
	}
	return decoded
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

// Structure handles GET /api/structure.
//
//	@Summary		Scan the corpus and return the ordered folder tree
//	@Tags			structure
//	@Produce		json
//	@Success		200	{object}	StructureResponse
//	@Security		BearerAuth
//	@Router			/structure [get]
func (h *Handler) Structure(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Scan(r.Context())
	if err != nil {
		writeError(w, "scan", err)
		return
	}
	for i := range st.Notes {
		st.Notes[i].Content = ""
	}
	writeJSON(w, http.StatusOK, st)
}

// Sync handles POST /api/sync.
//
//	@Summary		Rescan the corpus and reconcile the index
//	@Tags			index
//	@Produce		json
//	@Success		200	{object}	SyncResponse
//	@Failure		409	{object}	errResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Sync(r.Context())
	if err != nil {
		writeError(w, "sync", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	results, err := h.svc.Search(r.Context(), q, queryInt(r, "limit"))
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Tags handles GET /api/tags.
//
//	@Summary		List tags with note counts
//	@Tags			notes
//	@Produce		json
//	@Success		200	{object}	TagsResponse
//	@Security		BearerAuth
//	@Router			/tags [get]
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.svc.TagsWithCounts(r.Context())
	if err != nil {
		writeError(w, "tags", err)
		return
	}
	writeJSON(w, http.StatusOK, TagsResponse{Tags: tags})
}

// Recent handles GET /api/notes/recent.
//
//	@Summary		Recently modified notes
//	@Tags			notes
//	@Produce		json
//	@Param			limit	query		int	false	"Max results"
//	@Success		200		{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes/recent [get]
func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	notes, err := h.svc.RecentlyModified(r.Context(), queryInt(r, "limit"))
	if err != nil {
		writeError(w, "recent notes", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes})
}

// Popular handles GET /api/notes/popular.
//
//	@Summary		Most accessed notes
//	@Tags			notes
//	@Produce		json
//	@Param			limit	query		int	false	"Max results"
//	@Success		200		{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes/popular [get]
func (h *Handler) Popular(w http.ResponseWriter, r *http.Request) {
	notes, err := h.svc.MostAccessed(r.Context(), queryInt(r, "limit"))
	if err != nil {
		writeError(w, "popular notes", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes})
}

// GetNote handles GET /api/notes/*.
//
//	@Summary		Get a single note by id
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	NoteDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	id := noteID(r)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("id is required"))
		return
	}
	note, err := h.svc.GetNote(r.Context(), id)
	if err != nil {
		writeError(w, "get note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// Backlinks handles GET /api/backlinks/*.
//
//	@Summary		Links pointing at a note
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	BacklinksResponse
//	@Security		BearerAuth
//	@Router			/backlinks/{id} [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	id := noteID(r)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("id is required"))
		return
	}
	links, err := h.svc.Backlinks(r.Context(), id)
	if err != nil {
		writeError(w, "backlinks", err)
		return
	}
	writeJSON(w, http.StatusOK, BacklinksResponse{Backlinks: links})
}

// RecordAccess handles POST /api/access/*.
//
//	@Summary		Count one view of a note
//	@Tags			notes
//	@Param			id	path	string	true	"Note id"
//	@Success		204	"Access recorded"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/access/{id} [post]
func (h *Handler) RecordAccess(w http.ResponseWriter, r *http.Request) {
	id := noteID(r)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("id is required"))
		return
	}
	if err := h.svc.RecordAccess(r.Context(), id); err != nil {
		writeError(w, "record access", err)
		return
	}
	if h.events != nil {
		h.events.Publish(sse.Event{Type: "note.accessed", Data: map[string]string{"id": id}})
	}
	w.WriteHeader(http.StatusNoContent)
}

// Resolve handles GET /api/resolve.
//
//	@Summary		Resolve wikilink text to a note
//	@Tags			notes
//	@Produce		json
//	@Param			target	query		string	true	"Wikilink target text"
//	@Success		200		{object}	models.Note
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/resolve [get]
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target")
	if strings.TrimSpace(target) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'target' is required"))
		return
	}
	note, err := h.svc.ResolveLink(r.Context(), target)
	if err != nil {
		writeError(w, "resolve", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// Graph handles GET /api/graph.
//
//	@Summary		Get the link graph with stats
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	graph.Graph
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	g, err := h.svc.BuildGraph(r.Context())
	if err != nil {
		writeError(w, "graph", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// GraphAnalysis handles GET /api/graph/analysis.
//
//	@Summary		Orphans, weakly connected notes and degree rankings
//	@Tags			graph
//	@Produce		json
//	@Param			top	query		int	false	"Ranking length (default 10)"
//	@Success		200	{object}	graph.Analysis
//	@Security		BearerAuth
//	@Router			/graph/analysis [get]
func (h *Handler) GraphAnalysis(w http.ResponseWriter, r *http.Request) {
	top := queryInt(r, "top")
	if top <= 0 {
		top = 10
	}
	a, err := h.svc.Analyze(r.Context(), top)
	if err != nil {
		writeError(w, "graph analysis", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// SaveOrder handles PUT /api/order.
//
//	@Summary		Save the manual order of one folder
//	@Tags			structure
//	@Accept			json
//	@Param			body	body	OrderRequest	true	"Folder order"
//	@Success		204		"Order saved"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/order [put]
func (h *Handler) SaveOrder(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	order := scanner.FolderOrder{Files: req.Files, Folders: req.Folders}
	if err := h.svc.SaveOrder(r.Context(), req.Folder, order); err != nil {
		writeError(w, "save order", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
