package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"tapestry/internal/impact"
)

// ImpactTool handles the file_impact MCP tool.
type ImpactTool struct {
	analyzer *impact.Analyzer
}

// NewImpactTool creates an ImpactTool.
func NewImpactTool(analyzer *impact.Analyzer) *ImpactTool {
	return &ImpactTool{analyzer: analyzer}
}

// Definition returns the MCP tool definition for file_impact.
func (t *ImpactTool) Definition() mcp.Tool {
	return mcp.NewTool("file_impact",
		mcp.WithDescription(
			"Assess how disruptive changing a file is likely to be. Combines "+
				"modification history, dependent count and filename shape into a "+
				"low/medium/high impact level, and lists the themes the file belongs to. "+
				"Dependent counts come from the last project_relationships run.",
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("File path relative to the project root"),
		),
	)
}

// Handle processes the file_impact tool call.
func (t *ImpactTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return mcp.NewToolResultError("'path' is required"), nil
	}

	fi := t.analyzer.FileImpact(path)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Impact: %s\n\n", fi.Path))
	sb.WriteString(fmt.Sprintf("- **Level**: %s (score %d)\n", fi.Level, fi.Score))
	sb.WriteString(fmt.Sprintf("- **Recent modifications**: %d\n", fi.RecentModifications))
	sb.WriteString(fmt.Sprintf("- **Dependents**: %d\n", len(fi.Dependents)))
	sb.WriteString(fmt.Sprintf("- **Dependencies**: %d\n", len(fi.Dependencies)))

	if len(fi.AffectedThemes) > 0 {
		sb.WriteString(fmt.Sprintf("- **Affected themes**: %s\n", strings.Join(fi.AffectedThemes, ", ")))
	} else {
		sb.WriteString("- **Affected themes**: none\n")
	}

	if len(fi.Dependents) > 0 {
		sb.WriteString("\n### Dependents\n\n")
		writeList(&sb, fi.Dependents, 25)
	}
	if len(fi.Dependencies) > 0 {
		sb.WriteString("\n### Dependencies\n\n")
		writeList(&sb, fi.Dependencies, 25)
	}

	if fi.Level == impact.LevelHigh {
		sb.WriteString("\n### Suggested Next Steps\n\n")
		sb.WriteString("1. Run project_relationships to see the full dependency picture\n")
		if len(fi.AffectedThemes) > 0 {
			sb.WriteString(fmt.Sprintf("2. Load the affected themes with ctx_load (%s)\n", strings.Join(fi.AffectedThemes, ", ")))
		} else {
			sb.WriteString("2. Check which themes should claim this file — it currently belongs to none\n")
		}
	}

	return mcp.NewToolResultText(sb.String()), nil
}

// ─── RelationshipsTool ──────────────────────────────────────────────────────

// RelationshipsTool handles the project_relationships MCP tool.
type RelationshipsTool struct {
	analyzer *impact.Analyzer
}

// NewRelationshipsTool creates a RelationshipsTool.
func NewRelationshipsTool(analyzer *impact.Analyzer) *RelationshipsTool {
	return &RelationshipsTool{analyzer: analyzer}
}

// Definition returns the MCP tool definition for project_relationships.
func (t *RelationshipsTool) Definition() mcp.Tool {
	return mcp.NewTool("project_relationships",
		mcp.WithDescription(
			"Map the project-wide file dependency graph: circular dependencies, "+
				"orphaned files, critical files and file clusters. The graph is "+
				"rebuilt from scratch on every call and derived facts are written "+
				"back to file metadata for later file_impact calls.",
		),
	)
}

// Handle processes the project_relationships tool call.
func (t *RelationshipsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rm, err := t.analyzer.MapRelationships(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to map relationships: %v", err)), nil
	}

	st := rm.Statistics
	var sb strings.Builder
	sb.WriteString("## File Relationships\n\n")
	sb.WriteString(fmt.Sprintf("- **Files analyzed**: %d\n", st.TotalFiles))
	sb.WriteString(fmt.Sprintf("- **Dependency edges**: %d (%.2f per file)\n", st.TotalDependencies, st.AverageDependencies))
	sb.WriteString(fmt.Sprintf("- **Cycles**: %d\n", st.CyclesFound))
	sb.WriteString(fmt.Sprintf("- **Orphaned files**: %d\n", st.OrphanCount))
	sb.WriteString(fmt.Sprintf("- **Clusters**: %d\n", st.ClusterCount))

	if len(rm.CircularDependencies) > 0 {
		sb.WriteString("\n### Circular Dependencies\n\n")
		for _, cycle := range rm.CircularDependencies {
			sb.WriteString(fmt.Sprintf("- %s → %s\n", strings.Join(cycle, " → "), cycle[0]))
		}
	}

	if len(rm.CriticalFiles) > 0 {
		sb.WriteString("\n### Critical Files\n\n")
		for _, cf := range rm.CriticalFiles {
			sb.WriteString(fmt.Sprintf("- **%s**: %d direct, %d transitive dependents (score %.1f)\n",
				cf.Path, cf.DirectDependents, cf.TransitiveDependents, cf.Score))
		}
	}

	if len(rm.FileClusters) > 0 {
		sb.WriteString("\n### Clusters\n\n")
		for _, c := range rm.FileClusters {
			label := c.CommonPrefix
			if label == "" {
				label = "mixed"
			}
			sb.WriteString(fmt.Sprintf("- %s (%d files%s, cohesion %.2f)\n",
				label, c.Size, extLabel(c.CommonExtension), c.Cohesion))
		}
	}

	if len(rm.OrphanedFiles) > 0 {
		sb.WriteString("\n### Orphaned Files\n\n")
		writeList(&sb, rm.OrphanedFiles, 20)
	}

	return mcp.NewToolResultText(sb.String()), nil
}

func extLabel(ext string) string {
	if ext == "" {
		return ""
	}
	return ", all " + ext
}
