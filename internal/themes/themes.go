// Package themes reads and writes the per-theme JSON documents under
// .tapestry/themes/. A theme is a named grouping of files and directories
// representing one functional area; the index file lets project-wide
// operations enumerate themes without opening every document.
package themes

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"tapestry/internal/config"
)

// ErrNotFound is returned when a named theme has no document on disk.
// Unknown theme names are the one failure this package reports loudly;
// everything else degrades to partial data.
var ErrNotFound = errors.New("theme not found")

// Theme is the in-memory form of a theme document. SharedFiles is flattened
// from the on-disk sharedWith nesting to path → other theme names.
type Theme struct {
	Name         string              `json:"name"`
	Description  string              `json:"description,omitempty"`
	Files        []string            `json:"files"`
	Paths        []string            `json:"paths"`
	LinkedThemes []string            `json:"linkedThemes"`
	SharedFiles  map[string][]string `json:"sharedFiles"`
}

// IndexEntry is the per-theme metadata kept in themes.json.
type IndexEntry struct {
	Description string `json:"description,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

// Store defines theme persistence. Abstracted for testability.
type Store interface {
	Load(projectRoot, name string) (*Theme, error)
	Save(projectRoot string, theme *Theme) error
	Names(projectRoot string) ([]string, error)
	Index(projectRoot string) (map[string]IndexEntry, error)
}

// FileStore implements Store on the local filesystem.
type FileStore struct{}

// NewFileStore creates a filesystem-backed theme store.
func NewFileStore() *FileStore {
	return &FileStore{}
}

// ThemePath returns the document path for a named theme.
func ThemePath(projectRoot, name string) string {
	return filepath.Join(config.ThemesPath(projectRoot), name+".json")
}

// ─── Document Shape ───────────────────────────────────────────────────────────

// document is the on-disk theme shape. sharedFiles nests each entry under a
// sharedWith key so external theme-discovery tooling can attach more fields
// later without breaking readers.
type document struct {
	Description  string                 `json:"description,omitempty"`
	Files        []string               `json:"files"`
	Paths        []string               `json:"paths"`
	LinkedThemes []string               `json:"linkedThemes"`
	SharedFiles  map[string]sharedEntry `json:"sharedFiles"`
}

type sharedEntry struct {
	SharedWith []string `json:"sharedWith"`
}

// ─── Store Operations ─────────────────────────────────────────────────────────

// Load reads one theme document. A missing document wraps ErrNotFound; a
// document that exists but does not parse is reported as its own error so
// the caller can distinguish corruption from absence.
func (fs *FileStore) Load(projectRoot, name string) (*Theme, error) {
	if !validName(name) {
		return nil, fmt.Errorf("theme %q: %w", name, ErrNotFound)
	}

	data, err := os.ReadFile(ThemePath(projectRoot, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("theme %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("reading theme %q: %w", name, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing theme %q: %w", name, err)
	}

	theme := &Theme{
		Name:         name,
		Description:  doc.Description,
		Files:        emptyIfNil(doc.Files),
		Paths:        emptyIfNil(doc.Paths),
		LinkedThemes: emptyIfNil(doc.LinkedThemes),
		SharedFiles:  make(map[string][]string, len(doc.SharedFiles)),
	}
	for path, entry := range doc.SharedFiles {
		theme.SharedFiles[path] = emptyIfNil(entry.SharedWith)
	}
	return theme, nil
}

// Save writes a theme document and refreshes its index entry.
func (fs *FileStore) Save(projectRoot string, theme *Theme) error {
	if !validName(theme.Name) {
		return fmt.Errorf("invalid theme name %q", theme.Name)
	}
	if err := os.MkdirAll(config.ThemesPath(projectRoot), 0o755); err != nil {
		return fmt.Errorf("creating themes directory: %w", err)
	}

	doc := document{
		Description:  theme.Description,
		Files:        emptyIfNil(theme.Files),
		Paths:        emptyIfNil(theme.Paths),
		LinkedThemes: emptyIfNil(theme.LinkedThemes),
		SharedFiles:  make(map[string]sharedEntry, len(theme.SharedFiles)),
	}
	for path, shared := range theme.SharedFiles {
		doc.SharedFiles[path] = sharedEntry{SharedWith: emptyIfNil(shared)}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling theme %q: %w", theme.Name, err)
	}
	if err := os.WriteFile(ThemePath(projectRoot, theme.Name), data, 0o644); err != nil {
		return fmt.Errorf("writing theme %q: %w", theme.Name, err)
	}

	return fs.updateIndex(projectRoot, theme.Name, IndexEntry{
		Description: theme.Description,
		UpdatedAt:   time.Now().UTC().Format(time.RFC3339),
	})
}

// Names lists every theme known to the project, index first. When the index
// is absent the theme directory itself is scanned so a half-initialized
// project still enumerates.
func (fs *FileStore) Names(projectRoot string) ([]string, error) {
	index, err := fs.Index(projectRoot)
	if err != nil {
		return nil, err
	}
	if len(index) > 0 {
		names := make([]string, 0, len(index))
		for name := range index {
			names = append(names, name)
		}
		sort.Strings(names)
		return names, nil
	}

	entries, err := os.ReadDir(config.ThemesPath(projectRoot))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("reading themes directory: %w", err)
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || name == config.IndexFile {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(names)
	return names, nil
}

// Index reads themes.json. A missing index is an empty map, not an error.
func (fs *FileStore) Index(projectRoot string) (map[string]IndexEntry, error) {
	data, err := os.ReadFile(config.IndexPath(projectRoot))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]IndexEntry{}, nil
		}
		return nil, fmt.Errorf("reading theme index: %w", err)
	}

	var index map[string]IndexEntry
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("parsing theme index: %w", err)
	}
	if index == nil {
		index = map[string]IndexEntry{}
	}
	return index, nil
}

func (fs *FileStore) updateIndex(projectRoot, name string, entry IndexEntry) error {
	index, err := fs.Index(projectRoot)
	if err != nil {
		// A corrupt index should not block saving the theme itself;
		// rebuild it from this entry alone.
		index = map[string]IndexEntry{}
	}
	index[name] = entry

	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling theme index: %w", err)
	}
	if err := os.WriteFile(config.IndexPath(projectRoot), data, 0o644); err != nil {
		return fmt.Errorf("writing theme index: %w", err)
	}
	return nil
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

// validName rejects anything that could escape the themes directory.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
