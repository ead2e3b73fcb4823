package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"tapestry/internal/themes"
)

// ThemeListTool handles the theme_list MCP tool.
type ThemeListTool struct {
	store themes.Store
	root  string
}

// NewThemeListTool creates a ThemeListTool.
func NewThemeListTool(store themes.Store, root string) *ThemeListTool {
	return &ThemeListTool{store: store, root: root}
}

// Definition returns the MCP tool definition for theme_list.
func (t *ThemeListTool) Definition() mcp.Tool {
	return mcp.NewTool("theme_list",
		mcp.WithDescription(
			"List every theme defined for this project with its description "+
				"and last update time. Themes group related files into one "+
				"functional area and drive ctx_load.",
		),
	)
}

// Handle processes the theme_list tool call.
func (t *ThemeListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names, err := t.store.Names(t.root)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list themes: %v", err)), nil
	}

	if len(names) == 0 {
		return mcp.NewToolResultText(
			"No themes defined yet.\n\n" +
				"Create one by writing .tapestry/themes/<name>.json with the files and " +
				"paths that belong to that functional area.",
		), nil
	}

	index, err := t.store.Index(t.root)
	if err != nil {
		// The index is an enrichment; names alone still make a useful list.
		index = map[string]themes.IndexEntry{}
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Themes (%d)\n\n", len(names)))
	for _, name := range names {
		entry := index[name]
		switch {
		case entry.Description != "" && entry.UpdatedAt != "":
			sb.WriteString(fmt.Sprintf("- **%s**: %s (updated %s)\n", name, entry.Description, entry.UpdatedAt))
		case entry.Description != "":
			sb.WriteString(fmt.Sprintf("- **%s**: %s\n", name, entry.Description))
		default:
			sb.WriteString(fmt.Sprintf("- **%s**\n", name))
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// ─── ThemeGetTool ───────────────────────────────────────────────────────────

// ThemeGetTool handles the theme_get MCP tool.
type ThemeGetTool struct {
	store themes.Store
	root  string
}

// NewThemeGetTool creates a ThemeGetTool.
func NewThemeGetTool(store themes.Store, root string) *ThemeGetTool {
	return &ThemeGetTool{store: store, root: root}
}

// Definition returns the MCP tool definition for theme_get.
func (t *ThemeGetTool) Definition() mcp.Tool {
	return mcp.NewTool("theme_get",
		mcp.WithDescription(
			"Read one theme document: its files, paths, linked themes and "+
				"shared-file annotations. Use ctx_load instead when you want the "+
				"assembled working context.",
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Theme name"),
		),
	)
}

// Handle processes the theme_get tool call.
func (t *ThemeGetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	if name == "" {
		return mcp.NewToolResultError("'name' is required"), nil
	}

	theme, err := t.store.Load(t.root, name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load theme: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Theme: %s\n\n", theme.Name))
	if theme.Description != "" {
		sb.WriteString(theme.Description + "\n\n")
	}

	sb.WriteString(fmt.Sprintf("### Files (%d)\n\n", len(theme.Files)))
	if len(theme.Files) == 0 {
		sb.WriteString("_None._\n")
	} else {
		writeList(&sb, theme.Files, 100)
	}

	if len(theme.Paths) > 0 {
		sb.WriteString("\n### Paths\n\n")
		writeList(&sb, theme.Paths, 0)
	}

	if len(theme.LinkedThemes) > 0 {
		sb.WriteString(fmt.Sprintf("\n### Linked Themes\n\n%s\n", strings.Join(theme.LinkedThemes, ", ")))
	}

	if len(theme.SharedFiles) > 0 {
		sb.WriteString("\n### Shared Files\n\n")
		paths := make([]string, 0, len(theme.SharedFiles))
		for p := range theme.SharedFiles {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			sb.WriteString(fmt.Sprintf("- %s (shared with: %s)\n", p, strings.Join(theme.SharedFiles[p], ", ")))
		}
	}

	return mcp.NewToolResultText(sb.String()), nil
}
