// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes notegraph tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/noteservice"
)

const (
	syntaxURI    = "notegraph://note-syntax"
	defaultLimit = 10
)

// Server wraps the MCP server with notegraph tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all notegraph tools registered.
func New(svc *noteservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"notegraph",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through note titles and content. "+
			"Every word must match; title matches rank higher. Snippets mark hits with <mark>."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search words")),
		mcp.WithNumber("limit", mcp.Description("Max results (default 20)")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("sync_index",
		mcp.WithDescription("Rescan the corpus and reconcile the search index. "+
			"Returns how many notes were added, updated and deleted."),
	), s.syncIndex)

	s.mcp.AddTool(mcp.NewTool("list_tags",
		mcp.WithDescription("List all tags with the number of notes carrying each, most used first."),
	), s.listTags)

	s.mcp.AddTool(mcp.NewTool("recent_notes",
		mcp.WithDescription("List the most recently modified notes."),
		mcp.WithNumber("limit", mcp.Description("Max results (default 10)")),
	), s.recentNotes)

	s.mcp.AddTool(mcp.NewTool("popular_notes",
		mcp.WithDescription("List the most frequently viewed notes."),
		mcp.WithNumber("limit", mcp.Description("Max results (default 10)")),
	), s.popularNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note's content and metadata together with the notes linking to it."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id: path without .md (e.g. projects/plan)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("resolve_link",
		mcp.WithDescription("Resolve wikilink text (id, file name, title or alias) to the note it points at."),
		mcp.WithString("target", mcp.Required(), mcp.Description("Text inside [[...]]")),
	), s.resolveLink)

	s.mcp.AddTool(mcp.NewTool("graph_analysis",
		mcp.WithDescription("Analyze the link graph: orphans, weakly connected notes, "+
			"most connected notes, hubs and authorities."),
		mcp.WithNumber("top", mcp.Description("Length of each ranking (default 10)")),
	), s.graphAnalysis)

	s.mcp.AddTool(mcp.NewTool("get_note_syntax",
		mcp.WithDescription("Returns the Markdown conventions (frontmatter, wikilinks, embeds, ordering) "+
			"that notegraph understands."),
	), s.getNoteSyntax)

	s.mcp.AddResource(
		mcp.NewResource(syntaxURI, "Note Syntax",
			mcp.WithResourceDescription("Markdown conventions understood by the scanner."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteSyntaxResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// jsonResult renders v as indented JSON text.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// errorResult reports err to the model. Not-found and busy conditions get a
// plain message; anything else carries the error text.
func errorResult(what string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", what))
	case errors.Is(err, apperr.ErrSyncInProgress):
		return mcp.NewToolResultError("a sync is already running, try again shortly")
	case errors.Is(err, apperr.ErrStoreUnavailable):
		return mcp.NewToolResultError("index unavailable, retry later")
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, req.GetInt("limit", 20))
	if err != nil {
		return errorResult(query, err), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no matches"), nil
	}
	return jsonResult(results)
}

func (s *Server) syncIndex(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.svc.Sync(ctx)
	if err != nil {
		return errorResult("sync", err), nil
	}
	return jsonResult(res)
}

func (s *Server) listTags(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tags, err := s.svc.TagsWithCounts(ctx)
	if err != nil {
		return errorResult("tags", err), nil
	}
	if len(tags) == 0 {
		return mcp.NewToolResultText("no tags"), nil
	}
	lines := make([]string, 0, len(tags))
	for _, t := range tags {
		lines = append(lines, fmt.Sprintf("%s\t%d", t.Name, t.Count))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) recentNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notes, err := s.svc.RecentlyModified(ctx, req.GetInt("limit", defaultLimit))
	if err != nil {
		return errorResult("recent notes", err), nil
	}
	return jsonResult(notes)
}

func (s *Server) popularNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notes, err := s.svc.MostAccessed(ctx, req.GetInt("limit", defaultLimit))
	if err != nil {
		return errorResult("popular notes", err), nil
	}
	return jsonResult(notes)
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id = strings.TrimSuffix(id, ".md")
	note, err := s.svc.GetNote(ctx, id)
	if err != nil {
		return errorResult(id, err), nil
	}
	return jsonResult(note)
}

func (s *Server) resolveLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.ResolveLink(ctx, target)
	if err != nil {
		return errorResult(target, err), nil
	}
	return mcp.NewToolResultText(note.ID), nil
}

func (s *Server) graphAnalysis(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a, err := s.svc.Analyze(ctx, req.GetInt("top", defaultLimit))
	if err != nil {
		return errorResult("graph", err), nil
	}
	return jsonResult(a)
}

func (s *Server) getNoteSyntax(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteSyntaxContract), nil
}

func (s *Server) readNoteSyntaxResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      syntaxURI,
			MIMEType: "text/markdown",
			Text:     NoteSyntaxContract,
		},
	}, nil
}
