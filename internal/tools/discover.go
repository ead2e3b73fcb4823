package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"tapestry/internal/discovery"
)

// DiscoverTool handles the project_discover MCP tool.
type DiscoverTool struct {
	root          string
	extraExcludes []string
}

// NewDiscoverTool creates a DiscoverTool. extraExcludes come from project
// configuration and apply on top of the built-in exclusions.
func NewDiscoverTool(root string, extraExcludes []string) *DiscoverTool {
	return &DiscoverTool{root: root, extraExcludes: extraExcludes}
}

// Definition returns the MCP tool definition for project_discover.
func (t *DiscoverTool) Definition() mcp.Tool {
	return mcp.NewTool("project_discover",
		mcp.WithDescription(
			"Walk the project tree and categorize every file into tests, "+
				"documentation, config_files, build_files, data_files or source_files. "+
				"VCS internals, caches and build artifacts are always excluded.",
		),
		mcp.WithString("include",
			mcp.Description("Comma-separated include globs (default: accept all)"),
		),
		mcp.WithString("exclude",
			mcp.Description("Comma-separated exclude globs, applied on top of the built-ins"),
		),
		mcp.WithNumber("sample",
			mcp.Description("Files to list per category (default 10, 0 lists none)"),
		),
	)
}

// Handle processes the project_discover tool call.
func (t *DiscoverTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	include := splitGlobs(req.GetString("include", ""))
	exclude := append(splitGlobs(req.GetString("exclude", "")), t.extraExcludes...)
	sample := intArg(req, "sample", 10)

	listing, err := discovery.Discover(t.root, include, exclude)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to discover files: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Project Files (%d)\n\n", listing.TotalFiles))
	for _, category := range discovery.CategoryOrder {
		files := listing.Categories[category]
		sb.WriteString(fmt.Sprintf("### %s (%d)\n\n", category, len(files)))
		if len(files) == 0 {
			sb.WriteString("_None._\n\n")
			continue
		}
		writeList(&sb, files, sample)
		sb.WriteString("\n")
	}

	return mcp.NewToolResultText(sb.String()), nil
}
