package tasktools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"tapestry/internal/store"
)

// TaskCreateTool handles the task_create MCP tool.
type TaskCreateTool struct {
	store *store.Store
}

// NewTaskCreateTool creates a TaskCreateTool.
func NewTaskCreateTool(st *store.Store) *TaskCreateTool {
	return &TaskCreateTool{store: st}
}

// Definition returns the MCP tool definition for task_create.
func (t *TaskCreateTool) Definition() mcp.Tool {
	return mcp.NewTool("task_create",
		mcp.WithDescription(
			"Create a task. Tasks start pending and move through "+
				"in-progress to completed (or blocked) via task_update_status.",
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Short task title"),
		),
		mcp.WithString("description",
			mcp.Description("Longer description of the work"),
		),
		mcp.WithString("theme",
			mcp.Description("Theme this task belongs to"),
		),
		mcp.WithString("priority",
			mcp.Description("Task priority (default: medium)"),
			mcp.Enum("low", "medium", "high"),
		),
		mcp.WithString("session_id",
			mcp.Description("Session to attribute the task to"),
		),
	)
}

// Handle processes the task_create tool call.
func (t *TaskCreateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title := req.GetString("title", "")
	if title == "" {
		return mcp.NewToolResultError("'title' is required"), nil
	}

	id, err := t.store.CreateTask(store.CreateTaskParams{
		Title:       title,
		Description: req.GetString("description", ""),
		Theme:       req.GetString("theme", ""),
		Priority:    req.GetString("priority", ""),
		SessionID:   req.GetString("session_id", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create task: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Task #%d created: %s", id, title)), nil
}

// ─── TaskUpdateStatusTool ───────────────────────────────────────────────────

// TaskUpdateStatusTool handles the task_update_status MCP tool.
type TaskUpdateStatusTool struct {
	store *store.Store
}

// NewTaskUpdateStatusTool creates a TaskUpdateStatusTool.
func NewTaskUpdateStatusTool(st *store.Store) *TaskUpdateStatusTool {
	return &TaskUpdateStatusTool{store: st}
}

// Definition returns the MCP tool definition for task_update_status.
func (t *TaskUpdateStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("task_update_status",
		mcp.WithDescription(
			"Move a task through its lifecycle: pending → in-progress → "+
				"completed, with blocked as a detour from in-progress. A task "+
				"with active sidequests cannot complete until they are resolved.",
		),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("Task identifier"),
		),
		mcp.WithString("status",
			mcp.Required(),
			mcp.Description("Target status"),
			mcp.Enum(string(store.TaskPending), string(store.TaskInProgress), string(store.TaskBlocked), string(store.TaskCompleted)),
		),
	)
}

// Handle processes the task_update_status tool call.
func (t *TaskUpdateStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := int64Arg(req, "id", 0)
	if id <= 0 {
		return mcp.NewToolResultError("'id' is required"), nil
	}

	status, err := store.ValidateTaskStatus(req.GetString("status", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := t.store.UpdateTaskStatus(id, status); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			return mcp.NewToolResultError(t.transitionHint(id, status, err)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to update task: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Task #%d is now %s.", id, status)), nil
}

// transitionHint enriches a rejected transition with the task's current
// state and any sidequests still holding it open.
func (t *TaskUpdateStatusTool) transitionHint(id int64, to store.TaskStatus, cause error) string {
	var sb strings.Builder
	sb.WriteString(cause.Error())

	if to == store.TaskCompleted {
		if sidequests, err := t.store.ListSidequests(id); err == nil {
			var active []string
			for _, sq := range sidequests {
				if sq.Status == store.SidequestPending || sq.Status == store.SidequestInProgress {
					active = append(active, fmt.Sprintf("#%d %s (%s)", sq.ID, sq.Title, sq.Status))
				}
			}
			if len(active) > 0 {
				sb.WriteString("\n\nActive sidequests:\n")
				for _, line := range active {
					sb.WriteString("- " + line + "\n")
				}
				sb.WriteString("\nComplete or abandon them first with sidequest_update_status.")
			}
		}
	}
	return sb.String()
}

// ─── TaskListTool ───────────────────────────────────────────────────────────

// TaskListTool handles the task_list MCP tool.
type TaskListTool struct {
	store *store.Store
}

// NewTaskListTool creates a TaskListTool.
func NewTaskListTool(st *store.Store) *TaskListTool {
	return &TaskListTool{store: st}
}

// Definition returns the MCP tool definition for task_list.
func (t *TaskListTool) Definition() mcp.Tool {
	return mcp.NewTool("task_list",
		mcp.WithDescription(
			"List tasks, optionally filtered by theme and status, newest first.",
		),
		mcp.WithString("theme",
			mcp.Description("Only tasks belonging to this theme"),
		),
		mcp.WithString("status",
			mcp.Description("Only tasks in this status"),
			mcp.Enum(string(store.TaskPending), string(store.TaskInProgress), string(store.TaskBlocked), string(store.TaskCompleted)),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum tasks to return (default 50)"),
		),
	)
}

// Handle processes the task_list tool call.
func (t *TaskListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tasks, err := t.store.ListTasks(store.TaskListOptions{
		Theme:  req.GetString("theme", ""),
		Status: req.GetString("status", ""),
		Limit:  intArg(req, "limit", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list tasks: %v", err)), nil
	}

	if len(tasks) == 0 {
		return mcp.NewToolResultText("No tasks match. Create one with task_create."), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Tasks (%d)\n\n", len(tasks)))
	for _, task := range tasks {
		sb.WriteString(renderTaskLine(task))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func renderTaskLine(task store.Task) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("- **#%d** [%s] %s (%s", task.ID, task.Status, task.Title, task.Priority))
	if task.Theme != nil && *task.Theme != "" {
		sb.WriteString(", theme: " + *task.Theme)
	}
	sb.WriteString(")")
	if task.CompletedAt != nil {
		sb.WriteString(" — completed " + *task.CompletedAt)
	}
	sb.WriteString("\n")
	return sb.String()
}

// ─── TaskSearchTool ─────────────────────────────────────────────────────────

// TaskSearchTool handles the task_search MCP tool.
type TaskSearchTool struct {
	store *store.Store
}

// NewTaskSearchTool creates a TaskSearchTool.
func NewTaskSearchTool(st *store.Store) *TaskSearchTool {
	return &TaskSearchTool{store: st}
}

// Definition returns the MCP tool definition for task_search.
func (t *TaskSearchTool) Definition() mcp.Tool {
	return mcp.NewTool("task_search",
		mcp.WithDescription(
			"Full-text search over task titles and descriptions. An empty "+
				"query falls back to the most recent tasks.",
		),
		mcp.WithString("query",
			mcp.Description("Search terms"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results (default 20)"),
		),
	)
}

// Handle processes the task_search tool call.
func (t *TaskSearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")

	results, err := t.store.SearchTasks(query, intArg(req, "limit", 0))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to search tasks: %v", err)), nil
	}

	if len(results) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No tasks found for %q.", query)), nil
	}

	var sb strings.Builder
	if query == "" {
		sb.WriteString(fmt.Sprintf("## Recent Tasks (%d)\n\n_No query given — showing the newest tasks._\n\n", len(results)))
	} else {
		sb.WriteString(fmt.Sprintf("## Search: %q (%d)\n\n", query, len(results)))
	}
	for _, r := range results {
		sb.WriteString(renderTaskLine(r.Task))
	}
	return mcp.NewToolResultText(sb.String()), nil
}
