// Package tasktools provides the MCP tool handlers for the work-tracking
// subsystem: sessions, tasks, sidequests and theme flows.
//
// Each tool handler follows the same pattern as internal/tools:
// - A struct with dependencies (store.Store) injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
//
// These tools require the SQLite store; the server registers them only
// when the store initialized successfully.
package tasktools

import (
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

// int64Arg extracts an int64 argument, for row identifiers.
func int64Arg(req mcp.CallToolRequest, key string, defaultVal int64) int64 {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int64(v)
}
