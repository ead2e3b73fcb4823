// Package tools implements the MCP tool handlers for project analysis and
// theme-organized context loading.
//
// Each tool follows the same pattern:
// - A struct with dependencies injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
//
// User mistakes (bad arguments, unknown themes) come back as tool errors;
// a Go error from Handle is reserved for transport-level failures.
package tools

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// writeList renders items as markdown bullets, capping at limit with a
// "showing X of Y" footer so the caller knows the list was cut.
func writeList(sb *strings.Builder, items []string, limit int) {
	shown := items
	if limit > 0 && len(items) > limit {
		shown = items[:limit]
	}
	for _, item := range shown {
		sb.WriteString(fmt.Sprintf("- %s\n", item))
	}
	if len(shown) < len(items) {
		sb.WriteString(fmt.Sprintf("\n📊 Showing %d of %d\n", len(shown), len(items)))
	}
}

// splitGlobs turns a comma-separated glob argument into a clean slice.
func splitGlobs(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var globs []string
	for _, g := range strings.Split(raw, ",") {
		if g = strings.TrimSpace(g); g != "" {
			globs = append(globs, g)
		}
	}
	return globs
}
