// Package mcpserver exposes the note store as MCP (Model Context Protocol)
// tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/vellum/internal/apperr"
	"github.com/starford/vellum/internal/checksum"
	"github.com/starford/vellum/internal/models"
	"github.com/starford/vellum/internal/notestore"
	"github.com/starford/vellum/internal/preview"
)

const contractURI = "vellum://note-format"

// Server wraps the MCP server with Vellum tools.
type Server struct {
	mcp   *server.MCPServer
	store *notestore.Store
}

// New creates an MCP server with every tool registered.
func New(store *notestore.Store, version string) *Server {
	s := &Server{store: store}

	s.mcp = server.NewMCPServer(
		"Vellum",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes, pinned first then most recently modified. "+
			"Optionally filter by tag, title prefix or title substring."),
		mcp.WithString("tag", mcp.Description("Only notes carrying this tag")),
		mcp.WithString("prefix", mcp.Description("Only notes whose title starts with this (case-insensitive)")),
		mcp.WithString("search", mcp.Description("Only notes whose title contains this (case-insensitive)")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read one note with its full content and checksum."),
		mcp.WithString("id", mcp.Description("Note id")),
		mcp.WithString("path", mcp.Description("Absolute file path, used when id is empty")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a note. The title becomes the file name; read the "+
			contractURI+" resource or get_note_contract for the conventions."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Note title")),
		mcp.WithString("content", mcp.Description("Initial content")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("update_note",
		mcp.WithDescription("Replace the content of a note."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithString("content", mcp.Required(), mcp.Description("New content")),
		mcp.WithString("if_match", mcp.Description("Checksum from read_note; the update fails if the note changed since")),
	), s.updateNote)

	s.mcp.AddTool(mcp.NewTool("rename_note",
		mcp.WithDescription("Rename a note. Tags, pinned flag and id are kept."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithString("title", mcp.Required(), mcp.Description("New title")),
	), s.renameNote)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Move a note to the trash."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.deleteNote)

	s.mcp.AddTool(mcp.NewTool("set_tags",
		mcp.WithDescription("Replace the tags of a note. Tags are trimmed and lower-cased."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithArray("tags", mcp.Required(), mcp.Description("Complete tag list"),
			mcp.Items(map[string]any{"type": "string"})),
	), s.setTags)

	s.mcp.AddTool(mcp.NewTool("toggle_pin",
		mcp.WithDescription("Pin or unpin a note."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.togglePin)

	s.mcp.AddTool(mcp.NewTool("list_tags",
		mcp.WithDescription("List every tag in use."),
	), s.listTags)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the Vellum note conventions."),
	), s.getNoteContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Note Format Contract",
			mcp.WithResourceDescription("How Vellum maps notes to files."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// Serve runs the MCP server on in/out until ctx is done or in closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// noteSummary is a list entry.
type noteSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Location   string    `json:"location"`
	Tags       []string  `json:"tags"`
	Pinned     bool      `json:"pinned"`
	ModifiedAt time.Time `json:"modified_at"`
	Preview    string    `json:"preview"`
}

// noteDetail is the full representation of a note.
type noteDetail struct {
	models.Note
	Checksum string `json:"checksum"`
}

func summarize(notes []models.Note) []noteSummary {
	out := make([]noteSummary, 0, len(notes))
	for _, n := range notes {
		out = append(out, noteSummary{
			ID:         n.ID,
			Title:      n.Title,
			Location:   n.Location,
			Tags:       n.Tags,
			Pinned:     n.Pinned,
			ModifiedAt: n.ModifiedAt,
			Preview:    preview.Text(n.Location, n.Content, preview.DefaultLength),
		})
	}
	return out
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func detail(n models.Note) (*mcp.CallToolResult, error) {
	return jsonResult(noteDetail{Note: n, Checksum: n.Checksum()})
}

func errorResult(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("not found")
	case errors.Is(err, apperr.ErrConflict):
		return mcp.NewToolResultError("conflict: note changed since it was read")
	default:
		return mcp.NewToolResultError(err.Error())
	}
}

// decode unmarshals tool arguments into a typed struct.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var v T
	b, err := json.Marshal(req.GetArguments())
	if err != nil {
		return v, fmt.Errorf("marshal args: %w", err)
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("invalid arguments: %w", err)
	}
	return v, nil
}

func (s *Server) listNotes(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decode[struct {
		Tag    string `json:"tag"`
		Prefix string `json:"prefix"`
		Search string `json:"search"`
	}](req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var notes []models.Note
	switch {
	case args.Tag != "":
		notes = s.store.FilterByTag(args.Tag)
	case args.Prefix != "":
		notes = s.store.FilterByTitlePrefix(args.Prefix)
	case args.Search != "":
		notes = s.store.FilterByTitle(args.Search)
	default:
		notes = s.store.Notes()
	}
	return jsonResult(summarize(notes))
}

func (s *Server) readNote(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	path := req.GetString("path", "")

	var (
		n  models.Note
		ok bool
	)
	switch {
	case id != "":
		n, ok = s.store.Note(id)
	case path != "":
		n, ok = s.store.NoteAtPath(path)
	default:
		return mcp.NewToolResultError("id or path is required"), nil
	}
	if !ok {
		return errorResult(apperr.ErrNotFound), nil
	}
	return detail(n)
}

func (s *Server) createNote(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.store.CreateNote(title, req.GetString("content", ""))
	if err != nil {
		return errorResult(err), nil
	}
	return detail(n)
}

func (s *Server) updateNote(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	current, ok := s.store.Note(id)
	if !ok {
		return errorResult(apperr.ErrNotFound), nil
	}
	if !checksum.Matches([]byte(current.Content), req.GetString("if_match", "")) {
		return errorResult(apperr.ErrConflict), nil
	}
	n, err := s.store.UpdateContent(id, content)
	if err != nil {
		return errorResult(err), nil
	}
	return detail(n)
}

func (s *Server) renameNote(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.store.RenameNote(id, title)
	if err != nil {
		return errorResult(err), nil
	}
	return detail(n)
}

func (s *Server) deleteNote(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	item, err := s.store.DeleteNote(id)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("trashed: %s", item.Path)), nil
}

func (s *Server) setTags(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decode[struct {
		ID   string   `json:"id"`
		Tags []string `json:"tags"`
	}](req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if args.ID == "" {
		return mcp.NewToolResultError("id is required"), nil
	}
	n, err := s.store.UpdateTags(args.ID, args.Tags)
	if err != nil {
		return errorResult(err), nil
	}
	return detail(n)
}

func (s *Server) togglePin(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.store.TogglePinned(id)
	if err != nil {
		return errorResult(err), nil
	}
	return detail(n)
}

func (s *Server) listTags(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.store.AllTags())
}

func (s *Server) getNoteContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
