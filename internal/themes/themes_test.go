package themes

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"tapestry/internal/config"
)

// writeThemeJSON drops a raw theme document into the themes dir, bypassing
// the store, so tests control the exact on-disk shape.
func writeThemeJSON(t *testing.T, projectRoot, name, content string) {
	t.Helper()
	dir := config.ThemesPath(projectRoot)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".json"), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

// --- Load ---

func TestLoad_FlattensSharedFiles(t *testing.T) {
	root := t.TempDir()
	writeThemeJSON(t, root, "billing", `{
		"description": "Payment flows",
		"files": ["src/billing/invoice.py"],
		"paths": ["src/billing"],
		"linkedThemes": ["ui"],
		"sharedFiles": {
			"src/shared/money.py": {"sharedWith": ["ui", "reports"]}
		}
	}`)

	theme, err := NewFileStore().Load(root, "billing")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if theme.Name != "billing" {
		t.Errorf("Name = %s, want billing", theme.Name)
	}
	shared, ok := theme.SharedFiles["src/shared/money.py"]
	if !ok {
		t.Fatal("sharedFiles entry missing after flatten")
	}
	if len(shared) != 2 || shared[0] != "ui" || shared[1] != "reports" {
		t.Errorf("SharedFiles flattened wrong: %v", shared)
	}
}

func TestLoad_MissingTheme_ErrNotFound(t *testing.T) {
	_, err := NewFileStore().Load(t.TempDir(), "ghost")
	if err == nil {
		t.Fatal("Load should fail for a missing theme")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error should wrap ErrNotFound, got: %v", err)
	}
}

func TestLoad_MalformedJSON_IsLoudButNotNotFound(t *testing.T) {
	root := t.TempDir()
	writeThemeJSON(t, root, "broken", "{not json")

	_, err := NewFileStore().Load(root, "broken")
	if err == nil {
		t.Fatal("Load should fail for malformed JSON")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("corruption must be distinguishable from absence")
	}
}

func TestLoad_PathEscapingName_ErrNotFound(t *testing.T) {
	for _, name := range []string{"../etc/passwd", "a/b", `a\b`, "", ".."} {
		_, err := NewFileStore().Load(t.TempDir(), name)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Load(%q) should wrap ErrNotFound, got: %v", name, err)
		}
	}
}

func TestLoad_NilSlicesComeBackEmpty(t *testing.T) {
	root := t.TempDir()
	writeThemeJSON(t, root, "sparse", `{}`)

	theme, err := NewFileStore().Load(root, "sparse")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if theme.Files == nil || theme.Paths == nil || theme.LinkedThemes == nil || theme.SharedFiles == nil {
		t.Error("all collections must be non-nil for a sparse document")
	}
}

// --- Save ---

func TestSave_RoundTripsAndIndexes(t *testing.T) {
	root := t.TempDir()
	store := NewFileStore()

	original := &Theme{
		Name:         "auth",
		Description:  "Login and sessions",
		Files:        []string{"src/auth/login.py"},
		Paths:        []string{"src/auth"},
		LinkedThemes: []string{"billing"},
		SharedFiles:  map[string][]string{"src/shared/session.py": {"billing"}},
	}
	if err := store.Save(root, original); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(root, "auth")
	if err != nil {
		t.Fatalf("Load after Save failed: %v", err)
	}
	if loaded.Description != original.Description {
		t.Errorf("Description = %s, want %s", loaded.Description, original.Description)
	}
	if len(loaded.SharedFiles["src/shared/session.py"]) != 1 {
		t.Errorf("SharedFiles did not round-trip: %v", loaded.SharedFiles)
	}

	index, err := store.Index(root)
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	entry, ok := index["auth"]
	if !ok {
		t.Fatal("Save should register the theme in the index")
	}
	if entry.Description != "Login and sessions" {
		t.Errorf("index description = %s", entry.Description)
	}
	if entry.UpdatedAt == "" {
		t.Error("index entry should carry an updatedAt timestamp")
	}
}

func TestSave_InvalidName(t *testing.T) {
	err := NewFileStore().Save(t.TempDir(), &Theme{Name: "../sneaky"})
	if err == nil {
		t.Fatal("Save should reject path-escaping names")
	}
}

// --- Names / Index ---

func TestNames_PrefersIndex(t *testing.T) {
	root := t.TempDir()
	store := NewFileStore()
	for _, name := range []string{"billing", "auth", "ui"} {
		if err := store.Save(root, &Theme{Name: name}); err != nil {
			t.Fatalf("Save(%s) failed: %v", name, err)
		}
	}

	names, err := store.Names(root)
	if err != nil {
		t.Fatalf("Names failed: %v", err)
	}
	want := []string{"auth", "billing", "ui"}
	if len(names) != len(want) {
		t.Fatalf("Names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names[%d] = %s, want %s", i, names[i], want[i])
		}
	}
}

func TestNames_FallsBackToDirectoryScan(t *testing.T) {
	root := t.TempDir()
	// Theme documents exist but nothing ever wrote an index.
	writeThemeJSON(t, root, "billing", `{}`)
	writeThemeJSON(t, root, "ui", `{}`)

	names, err := NewFileStore().Names(root)
	if err != nil {
		t.Fatalf("Names failed: %v", err)
	}
	if len(names) != 2 || names[0] != "billing" || names[1] != "ui" {
		t.Errorf("Names = %v, want [billing ui]", names)
	}
}

func TestNames_EmptyProject(t *testing.T) {
	names, err := NewFileStore().Names(t.TempDir())
	if err != nil {
		t.Fatalf("Names failed: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("Names = %v, want empty", names)
	}
}

func TestIndex_MissingIsEmptyNotError(t *testing.T) {
	index, err := NewFileStore().Index(t.TempDir())
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	if len(index) != 0 {
		t.Errorf("Index = %v, want empty", index)
	}
}
