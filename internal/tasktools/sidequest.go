package tasktools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"tapestry/internal/store"
)

// SidequestCreateTool handles the sidequest_create MCP tool.
type SidequestCreateTool struct {
	store *store.Store
}

// NewSidequestCreateTool creates a SidequestCreateTool.
func NewSidequestCreateTool(st *store.Store) *SidequestCreateTool {
	return &SidequestCreateTool{store: st}
}

// Definition returns the MCP tool definition for sidequest_create.
func (t *SidequestCreateTool) Definition() mcp.Tool {
	return mcp.NewTool("sidequest_create",
		mcp.WithDescription(
			"Spawn a sidequest from a task: a bounded detour (a bug found "+
				"mid-task, a missing prerequisite) that must be resolved before "+
				"the parent task can complete.",
		),
		mcp.WithNumber("task_id",
			mcp.Required(),
			mcp.Description("Parent task identifier"),
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Short sidequest title"),
		),
		mcp.WithString("description",
			mcp.Description("What needs to happen and why it blocks the parent"),
		),
	)
}

// Handle processes the sidequest_create tool call.
func (t *SidequestCreateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := int64Arg(req, "task_id", 0)
	if taskID <= 0 {
		return mcp.NewToolResultError("'task_id' is required"), nil
	}
	title := req.GetString("title", "")
	if title == "" {
		return mcp.NewToolResultError("'title' is required"), nil
	}

	id, err := t.store.CreateSidequest(taskID, title, req.GetString("description", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create sidequest: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Sidequest #%d created under task #%d: %s\n\nTask #%d cannot complete until this sidequest is completed or abandoned.",
		id, taskID, title, taskID,
	)), nil
}

// ─── SidequestUpdateStatusTool ──────────────────────────────────────────────

// SidequestUpdateStatusTool handles the sidequest_update_status MCP tool.
type SidequestUpdateStatusTool struct {
	store *store.Store
}

// NewSidequestUpdateStatusTool creates a SidequestUpdateStatusTool.
func NewSidequestUpdateStatusTool(st *store.Store) *SidequestUpdateStatusTool {
	return &SidequestUpdateStatusTool{store: st}
}

// Definition returns the MCP tool definition for sidequest_update_status.
func (t *SidequestUpdateStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("sidequest_update_status",
		mcp.WithDescription(
			"Update a sidequest's status. Completed and abandoned are terminal; "+
				"either unblocks the parent task.",
		),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("Sidequest identifier"),
		),
		mcp.WithString("status",
			mcp.Required(),
			mcp.Description("Target status"),
			mcp.Enum(string(store.SidequestPending), string(store.SidequestInProgress), string(store.SidequestCompleted), string(store.SidequestAbandoned)),
		),
	)
}

// Handle processes the sidequest_update_status tool call.
func (t *SidequestUpdateStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := int64Arg(req, "id", 0)
	if id <= 0 {
		return mcp.NewToolResultError("'id' is required"), nil
	}

	status, err := store.ValidateSidequestStatus(req.GetString("status", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := t.store.UpdateSidequestStatus(id, status); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update sidequest: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Sidequest #%d is now %s.", id, status)), nil
}
