package tasktools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"tapestry/internal/store"
)

// FlowTrackTool handles the flow_track MCP tool.
type FlowTrackTool struct {
	store *store.Store
}

// NewFlowTrackTool creates a FlowTrackTool.
func NewFlowTrackTool(st *store.Store) *FlowTrackTool {
	return &FlowTrackTool{store: st}
}

// Definition returns the MCP tool definition for flow_track.
func (t *FlowTrackTool) Definition() mcp.Tool {
	return mcp.NewTool("flow_track",
		mcp.WithDescription(
			"Register a named flow (design, implementation, review, ...) for a "+
				"theme. Tracking is idempotent: re-tracking an existing flow "+
				"returns it unchanged.",
		),
		mcp.WithString("theme",
			mcp.Required(),
			mcp.Description("Theme the flow belongs to"),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Flow name, unique within the theme"),
		),
	)
}

// Handle processes the flow_track tool call.
func (t *FlowTrackTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	theme := req.GetString("theme", "")
	name := req.GetString("name", "")
	if theme == "" {
		return mcp.NewToolResultError("'theme' is required"), nil
	}
	if name == "" {
		return mcp.NewToolResultError("'name' is required"), nil
	}

	id, err := t.store.TrackFlow(theme, name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to track flow: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Flow %q tracked for theme %q (#%d). Update it with flow_status set=in-progress when work begins.",
		name, theme, id,
	)), nil
}

// ─── FlowStatusTool ─────────────────────────────────────────────────────────

// FlowStatusTool handles the flow_status MCP tool.
//
// Dual behavior: without 'set' it reads flow state for a theme (one flow or
// all of them); with 'set' it updates the named flow and reports the result.
type FlowStatusTool struct {
	store *store.Store
}

// NewFlowStatusTool creates a FlowStatusTool.
func NewFlowStatusTool(st *store.Store) *FlowStatusTool {
	return &FlowStatusTool{store: st}
}

// Definition returns the MCP tool definition for flow_status.
func (t *FlowStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("flow_status",
		mcp.WithDescription(
			"Read or update flow state for a theme. Without 'name' it lists every "+
				"flow on the theme; with 'name' it reports that flow; with 'set' it "+
				"updates the named flow's status first.",
		),
		mcp.WithString("theme",
			mcp.Required(),
			mcp.Description("Theme to inspect"),
		),
		mcp.WithString("name",
			mcp.Description("Flow name (required when 'set' is given)"),
		),
		mcp.WithString("set",
			mcp.Description("New status to apply to the named flow"),
			mcp.Enum(string(store.FlowPending), string(store.FlowInProgress), string(store.FlowComplete)),
		),
	)
}

// Handle processes the flow_status tool call.
func (t *FlowStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	theme := req.GetString("theme", "")
	if theme == "" {
		return mcp.NewToolResultError("'theme' is required"), nil
	}
	name := req.GetString("name", "")
	set := req.GetString("set", "")

	if set != "" {
		if name == "" {
			return mcp.NewToolResultError("'name' is required when setting a status"), nil
		}
		status, err := store.ValidateFlowStatus(set)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := t.store.UpdateFlowStatus(theme, name, status); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to update flow: %v", err)), nil
		}
	}

	if name != "" {
		status, err := t.store.FlowStatus(theme, name)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read flow: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Flow %q on theme %q: %s", name, theme, status)), nil
	}

	flows, err := t.store.FlowsForTheme(theme)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list flows: %v", err)), nil
	}
	if len(flows) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf(
			"No flows tracked for theme %q. Register one with flow_track.", theme,
		)), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Flows: %s (%d)\n\n", theme, len(flows)))
	for _, f := range flows {
		sb.WriteString(fmt.Sprintf("- **%s**: %s (updated %s)\n", f.Name, f.Status, f.UpdatedAt))
	}
	return mcp.NewToolResultText(sb.String()), nil
}
