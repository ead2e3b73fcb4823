package tasktools

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"tapestry/internal/store"
)

// SessionStartTool handles the session_start MCP tool.
type SessionStartTool struct {
	store   *store.Store
	project string
	root    string
}

// NewSessionStartTool creates a SessionStartTool. project and root supply
// defaults so a bare session_start call needs no arguments.
func NewSessionStartTool(st *store.Store, project, root string) *SessionStartTool {
	return &SessionStartTool{store: st, project: project, root: root}
}

// Definition returns the MCP tool definition for session_start.
func (t *SessionStartTool) Definition() mcp.Tool {
	return mcp.NewTool("session_start",
		mcp.WithDescription(
			"Register the start of a working session. Call this at the beginning "+
				"of a session so tasks and context loads are attributed to it.",
		),
		mcp.WithString("id",
			mcp.Description("Session identifier (default: generated UUID)"),
		),
		mcp.WithString("project",
			mcp.Description("Project name (default: the project directory name)"),
		),
	)
}

// Handle processes the session_start tool call.
func (t *SessionStartTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		id = uuid.NewString()
	}
	project := req.GetString("project", t.project)

	if err := t.store.StartSession(id, project, t.root); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to start session: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Session %q started for project %q.\n\nPass session_id=%q to ctx_load and task_create to attribute work to this session.",
		id, project, id,
	)), nil
}

// ─── SessionEndTool ─────────────────────────────────────────────────────────

// SessionEndTool handles the session_end MCP tool.
type SessionEndTool struct {
	store *store.Store
}

// NewSessionEndTool creates a SessionEndTool.
func NewSessionEndTool(st *store.Store) *SessionEndTool {
	return &SessionEndTool{store: st}
}

// Definition returns the MCP tool definition for session_end.
func (t *SessionEndTool) Definition() mcp.Tool {
	return mcp.NewTool("session_end",
		mcp.WithDescription(
			"Mark a working session as completed with an optional summary of "+
				"what was accomplished.",
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Session identifier to close"),
		),
		mcp.WithString("summary",
			mcp.Description("Summary of what was accomplished"),
		),
	)
}

// Handle processes the session_end tool call.
func (t *SessionEndTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}

	if err := t.store.EndSession(id, req.GetString("summary", "")); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to end session: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Session %q completed.", id)), nil
}

// ─── SessionRecentTool ──────────────────────────────────────────────────────

// SessionRecentTool handles the session_recent MCP tool.
type SessionRecentTool struct {
	store *store.Store
}

// NewSessionRecentTool creates a SessionRecentTool.
func NewSessionRecentTool(st *store.Store) *SessionRecentTool {
	return &SessionRecentTool{store: st}
}

// Definition returns the MCP tool definition for session_recent.
func (t *SessionRecentTool) Definition() mcp.Tool {
	return mcp.NewTool("session_recent",
		mcp.WithDescription(
			"Show recent working sessions with their task counts and summaries. "+
				"Call this at session start to recover where previous sessions left off.",
		),
		mcp.WithNumber("limit",
			mcp.Description("Sessions to show (default 5)"),
		),
	)
}

// Handle processes the session_recent tool call.
func (t *SessionRecentTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := intArg(req, "limit", 5)

	sessions, err := t.store.RecentSessions(limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list sessions: %v", err)), nil
	}

	if len(sessions) == 0 {
		return mcp.NewToolResultText("No sessions recorded yet. Call session_start to begin one."), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Recent Sessions (%d)\n\n", len(sessions)))
	for _, s := range sessions {
		state := "open"
		if s.EndedAt != nil {
			state = "ended " + *s.EndedAt
		}
		sb.WriteString(fmt.Sprintf("- **%s** (%s) — started %s, %s, %d task(s)\n",
			s.ID, s.Project, s.StartedAt, state, s.TaskCount))
		if s.Summary != nil && *s.Summary != "" {
			sb.WriteString(fmt.Sprintf("  %s\n", firstLine(*s.Summary)))
		}
	}

	return mcp.NewToolResultText(sb.String()), nil
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
