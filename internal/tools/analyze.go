package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"tapestry/internal/langdep"
)

// AnalyzeTool handles the file_analyze MCP tool.
type AnalyzeTool struct {
	root string
}

// NewAnalyzeTool creates an AnalyzeTool.
func NewAnalyzeTool(root string) *AnalyzeTool {
	return &AnalyzeTool{root: root}
}

// Definition returns the MCP tool definition for file_analyze.
func (t *AnalyzeTool) Definition() mcp.Tool {
	return mcp.NewTool("file_analyze",
		mcp.WithDescription(
			"Extract the imports, exports and dependency tokens of one file "+
				"using per-language heuristics. Extraction is regex-based and "+
				"best-effort; unreadable files yield an empty record.",
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("File path relative to the project root"),
		),
	)
}

// Handle processes the file_analyze tool call.
func (t *AnalyzeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return mcp.NewToolResultError("'path' is required"), nil
	}

	rec := langdep.Analyze(filepath.Join(t.root, filepath.FromSlash(path)))

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Analysis: %s\n\n", path))
	sb.WriteString(fmt.Sprintf("- **Language**: %s\n", rec.Language))
	sb.WriteString(fmt.Sprintf("- **Analyzed**: %s\n", rec.AnalyzedAt.Format(time.RFC3339)))

	if len(rec.Imports) == 0 && len(rec.Exports) == 0 && len(rec.Dependencies) == 0 {
		sb.WriteString("\n_No extractable structure — the file may be missing, binary, or in an unsupported language._\n")
		return mcp.NewToolResultText(sb.String()), nil
	}

	sb.WriteString(fmt.Sprintf("\n### Imports (%d)\n\n", len(rec.Imports)))
	if len(rec.Imports) == 0 {
		sb.WriteString("_None._\n")
	} else {
		writeList(&sb, rec.Imports, 50)
	}

	sb.WriteString(fmt.Sprintf("\n### Exports (%d)\n\n", len(rec.Exports)))
	if len(rec.Exports) == 0 {
		sb.WriteString("_None._\n")
	} else {
		writeList(&sb, rec.Exports, 50)
	}

	sb.WriteString(fmt.Sprintf("\n### Dependency Tokens (%d)\n\n", len(rec.Dependencies)))
	if len(rec.Dependencies) == 0 {
		sb.WriteString("_None._\n")
	} else {
		writeList(&sb, rec.Dependencies, 50)
	}

	return mcp.NewToolResultText(sb.String()), nil
}
