// Package resources implements MCP resource handlers for tapestry.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (tapestry://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"tapestry/internal/config"
	"tapestry/internal/gitstate"
	"tapestry/internal/store"
	"tapestry/internal/themes"
)

// StatusURI addresses the project status resource.
const StatusURI = "tapestry://project/status"

// Handler serves tapestry resource endpoints for one project root.
type Handler struct {
	root     string
	settings config.Settings
	themes   themes.Store
	store    *store.Store // nil when persistence is degraded
}

// NewHandler creates a resource Handler. store may be nil; the status
// document then omits the store section.
func NewHandler(root string, settings config.Settings, themeStore themes.Store, st *store.Store) *Handler {
	if themeStore == nil {
		themeStore = themes.NewFileStore()
	}
	return &Handler{root: root, settings: settings, themes: themeStore, store: st}
}

// StatusResource returns the MCP resource definition for project status.
func (h *Handler) StatusResource() mcp.Resource {
	return mcp.NewResource(
		StatusURI,
		"Tapestry Project Status",
		mcp.WithResourceDescription("Project root, themes, tracked-work statistics and git branch state"),
		mcp.WithMIMEType("application/json"),
	)
}

// statusDocument is the JSON shape served at tapestry://project/status.
type statusDocument struct {
	Root     string          `json:"root"`
	Themes   []string        `json:"themes"`
	Settings config.Settings `json:"settings"`
	Store    *store.Stats    `json:"store,omitempty"`
	Git      *gitSummary     `json:"git,omitempty"`
}

type gitSummary struct {
	Branch string `json:"branch"`
	Head   string `json:"head"`
	Dirty  bool   `json:"dirty"`
}

// HandleStatus assembles the current project status as JSON. Collaborator
// failures drop their section from the document, never fail the read.
func (h *Handler) HandleStatus(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	doc := statusDocument{
		Root:     h.root,
		Themes:   []string{},
		Settings: h.settings,
	}

	if names, err := h.themes.Names(h.root); err == nil {
		doc.Themes = names
	}
	if h.store != nil {
		if stats, err := h.store.Stats(); err == nil {
			doc.Store = stats
		}
	}
	if repo, err := gitstate.Open(h.root); err == nil {
		if state, err := repo.Snapshot(); err == nil && state.Head != "" {
			doc.Git = &gitSummary{Branch: state.Branch, Head: state.Head, Dirty: state.Dirty}
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling status: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
