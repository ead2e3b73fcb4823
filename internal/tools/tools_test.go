package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"tapestry/internal/themes"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// mustNotError asserts the Handle call returns no Go error and no tool error.
func mustNotError(t *testing.T, r *mcp.CallToolResult, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected Go error: %v", err)
	}
	if r.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(r))
	}
}

// mustBeToolError asserts the Handle call returns a tool error (not a Go error).
func mustBeToolError(t *testing.T, r *mcp.CallToolResult, err error, wantSubstr string) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected Go error: %v", err)
	}
	if !r.IsError {
		t.Fatalf("expected tool error, got: %s", resultText(r))
	}
	if wantSubstr != "" && !strings.Contains(resultText(r), wantSubstr) {
		t.Fatalf("tool error = %q, want substring %q", resultText(r), wantSubstr)
	}
}

// saveTheme persists a theme document under root's .tapestry/themes directory.
func saveTheme(t *testing.T, root string, theme *themes.Theme) {
	t.Helper()
	if err := themes.NewFileStore().Save(root, theme); err != nil {
		t.Fatalf("save theme %s: %v", theme.Name, err)
	}
}

// ─── ThemeListTool ───────────────────────────────────────────────────────────

func TestThemeListTool_Empty(t *testing.T) {
	tool := NewThemeListTool(themes.NewFileStore(), t.TempDir())

	result, err := tool.Handle(context.Background(), makeReq(nil))
	mustNotError(t, result, err)
	if !strings.Contains(resultText(result), "No themes defined yet") {
		t.Fatalf("unexpected response: %s", resultText(result))
	}
}

func TestThemeListTool_ListsWithDescriptions(t *testing.T) {
	root := t.TempDir()
	saveTheme(t, root, &themes.Theme{Name: "billing", Description: "Invoices and payments"})
	saveTheme(t, root, &themes.Theme{Name: "ui"})

	tool := NewThemeListTool(themes.NewFileStore(), root)
	result, err := tool.Handle(context.Background(), makeReq(nil))
	mustNotError(t, result, err)

	text := resultText(result)
	if !strings.Contains(text, "## Themes (2)") {
		t.Fatalf("missing count header: %s", text)
	}
	if !strings.Contains(text, "**billing**: Invoices and payments") {
		t.Fatalf("billing description missing: %s", text)
	}
	if !strings.Contains(text, "**ui**") {
		t.Fatalf("ui missing: %s", text)
	}
}

// ─── ThemeGetTool ────────────────────────────────────────────────────────────

func TestThemeGetTool_FullDocument(t *testing.T) {
	root := t.TempDir()
	saveTheme(t, root, &themes.Theme{
		Name:         "billing",
		Description:  "Invoices and payments",
		Files:        []string{"src/billing.py", "src/invoice.py"},
		Paths:        []string{"src/billing/"},
		LinkedThemes: []string{"payments"},
		SharedFiles:  map[string][]string{"src/models.py": {"payments"}},
	})

	tool := NewThemeGetTool(themes.NewFileStore(), root)
	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"name": "billing",
	}))
	mustNotError(t, result, err)

	text := resultText(result)
	for _, want := range []string{
		"## Theme: billing",
		"Invoices and payments",
		"### Files (2)",
		"src/invoice.py",
		"### Paths",
		"### Linked Themes",
		"payments",
		"### Shared Files",
		"src/models.py (shared with: payments)",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("report missing %q:\n%s", want, text)
		}
	}
}

func TestThemeGetTool_UnknownTheme(t *testing.T) {
	tool := NewThemeGetTool(themes.NewFileStore(), t.TempDir())
	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"name": "ghost",
	}))
	mustBeToolError(t, result, err, "failed to load theme")
}

func TestThemeGetTool_RequiresName(t *testing.T) {
	tool := NewThemeGetTool(themes.NewFileStore(), t.TempDir())
	result, err := tool.Handle(context.Background(), makeReq(nil))
	mustBeToolError(t, result, err, "'name' is required")
}
