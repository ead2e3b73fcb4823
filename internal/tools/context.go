package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"tapestry/internal/scope"
)

// CtxLoadTool handles the ctx_load MCP tool. It assembles theme-organized
// project context through the scope engine.
type CtxLoadTool struct {
	engine *scope.Engine
}

// NewCtxLoadTool creates a CtxLoadTool.
func NewCtxLoadTool(engine *scope.Engine) *CtxLoadTool {
	return &CtxLoadTool{engine: engine}
}

// Definition returns the MCP tool definition for ctx_load.
func (t *CtxLoadTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_load",
		mcp.WithDescription(
			"Load the working context for a theme: its files, paths, shared files, "+
				"directory notes and linked themes. The engine may widen theme-focused "+
				"to theme-expanded when the theme is heavily connected; pass force=true "+
				"to pin the requested mode.",
		),
		mcp.WithString("theme",
			mcp.Required(),
			mcp.Description("Theme name to load context for"),
		),
		mcp.WithString("mode",
			mcp.Description("Context mode (default: theme-focused)"),
			mcp.Enum(string(scope.ModeThemeFocused), string(scope.ModeThemeExpanded), string(scope.ModeProjectWide)),
		),
		mcp.WithBoolean("force",
			mcp.Description("Pin the requested mode, suppressing auto-escalation"),
		),
		mcp.WithString("session_id",
			mcp.Description("Session to record this context load against"),
		),
	)
}

// Handle processes the ctx_load tool call.
func (t *CtxLoadTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	theme := req.GetString("theme", "")
	if theme == "" {
		return mcp.NewToolResultError("'theme' is required"), nil
	}

	mode, err := scope.ParseMode(req.GetString("mode", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := t.engine.LoadContext(scope.LoadRequest{
		Theme:     theme,
		Mode:      mode,
		Force:     boolArg(req, "force", false),
		SessionID: req.GetString("session_id", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load context: %v", err)), nil
	}

	return mcp.NewToolResultText(renderContext(result)), nil
}

// renderContext formats a loaded context as a markdown report.
func renderContext(r *scope.Result) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Context: %s (%s)\n\n", r.PrimaryTheme, r.Mode))

	if r.Escalated {
		sb.WriteString(fmt.Sprintf("⚠️  Escalated from %s.\n\n", r.RequestedMode))
	}

	sb.WriteString(fmt.Sprintf("- **Themes loaded** (%d): %s\n", len(r.LoadedThemes), strings.Join(r.LoadedThemes, ", ")))
	sb.WriteString(fmt.Sprintf("- **Files**: %d\n", len(r.Files)))
	sb.WriteString(fmt.Sprintf("- **Paths**: %d\n", len(r.Paths)))
	sb.WriteString(fmt.Sprintf("- **Estimated size**: %d MB\n", r.MemoryEstimateMB))

	if len(r.SharedFiles) > 0 {
		sb.WriteString("\n### Shared Files\n\n")
		shared := make([]string, 0, len(r.SharedFiles))
		for path := range r.SharedFiles {
			shared = append(shared, path)
		}
		sort.Strings(shared)
		for _, path := range shared {
			sb.WriteString(fmt.Sprintf("- %s (shared with: %s)\n", path, strings.Join(r.SharedFiles[path], ", ")))
		}
	}

	if len(r.ReadMes) > 0 {
		sb.WriteString("\n### Directory Notes\n\n")
		dirs := make([]string, 0, len(r.ReadMes))
		for dir := range r.ReadMes {
			dirs = append(dirs, dir)
		}
		sort.Strings(dirs)
		for _, dir := range dirs {
			sb.WriteString(fmt.Sprintf("- **%s**: %s\n", dir, firstLine(r.ReadMes[dir])))
		}
	}

	if len(r.Flows) > 0 {
		sb.WriteString("\n### Flows\n\n")
		for _, f := range r.Flows {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", f.Name, f.Status))
		}
	}

	if len(r.Recommendations) > 0 {
		sb.WriteString("\n### Recommendations\n\n")
		for _, rec := range r.Recommendations {
			sb.WriteString(fmt.Sprintf("- %s\n", rec))
		}
	}

	if len(r.Paths) > 0 {
		sb.WriteString("\n### Paths\n\n")
		writeList(&sb, r.Paths, 0)
	}

	sb.WriteString("\n### Files\n\n")
	if len(r.Files) == 0 {
		sb.WriteString("_No files in this context._\n")
	} else {
		writeList(&sb, r.Files, 100)
	}

	return sb.String()
}

// firstLine cuts a snippet down to its first non-empty line for compact
// report rows.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// ─── CtxAssessTool ──────────────────────────────────────────────────────────

// CtxAssessTool handles the ctx_assess MCP tool.
type CtxAssessTool struct {
	engine *scope.Engine
}

// NewCtxAssessTool creates a CtxAssessTool.
func NewCtxAssessTool(engine *scope.Engine) *CtxAssessTool {
	return &CtxAssessTool{engine: engine}
}

// Definition returns the MCP tool definition for ctx_assess.
func (t *CtxAssessTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_assess",
		mcp.WithDescription(
			"Assess whether an issue you hit needs wider context. Matches the issue "+
				"description against cross-cutting signals (imports, dependencies, shared "+
				"files) and proposes at most one step up the mode ladder.",
		),
		mcp.WithString("current_mode",
			mcp.Required(),
			mcp.Description("The mode the context was loaded with"),
			mcp.Enum(string(scope.ModeThemeFocused), string(scope.ModeThemeExpanded), string(scope.ModeProjectWide)),
		),
		mcp.WithString("issue",
			mcp.Required(),
			mcp.Description("Description of the problem encountered with the current context"),
		),
	)
}

// Handle processes the ctx_assess tool call.
func (t *CtxAssessTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issue := req.GetString("issue", "")
	if issue == "" {
		return mcp.NewToolResultError("'issue' is required"), nil
	}

	mode, err := scope.ParseMode(req.GetString("current_mode", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	advice := t.engine.AssessEscalation(mode, issue)

	var sb strings.Builder
	sb.WriteString("## Escalation Assessment\n\n")
	sb.WriteString(fmt.Sprintf("- **Current mode**: %s\n", advice.CurrentMode))
	if advice.Escalate {
		sb.WriteString(fmt.Sprintf("- **Proposed mode**: %s\n", advice.ProposedMode))
	} else {
		sb.WriteString("- **Proposed mode**: none\n")
	}
	if len(advice.MatchedKeywords) > 0 {
		sb.WriteString(fmt.Sprintf("- **Matched signals**: %s\n", strings.Join(advice.MatchedKeywords, ", ")))
	}
	sb.WriteString(fmt.Sprintf("\n%s\n", advice.Reason))

	if advice.Escalate {
		sb.WriteString("\n### Suggested Next Steps\n\n")
		sb.WriteString(fmt.Sprintf("1. Re-run ctx_load with mode=%s\n", advice.ProposedMode))
		sb.WriteString("2. Re-check the issue against the wider file set\n")
	}

	return mcp.NewToolResultText(sb.String()), nil
}
