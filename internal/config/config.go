// Package config defines the project-local layout under .tapestry/ and the
// optional engine settings document stored there.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// TapestryDir is the management directory created inside a project root.
	TapestryDir = ".tapestry"
	// ConfigFile holds optional engine settings, JSON.
	ConfigFile = "config.json"
	// ThemesDir holds one JSON document per theme plus the index.
	ThemesDir = "themes"
	// IndexFile is the theme index inside ThemesDir.
	IndexFile = "themes.json"
	// DBFile is the SQLite database for sessions, tasks and file metadata.
	DBFile = "tapestry.db"
)

// ─── Path Helpers ─────────────────────────────────────────────────────────────

// Dir returns the .tapestry directory for a project root.
func Dir(projectRoot string) string {
	return filepath.Join(projectRoot, TapestryDir)
}

// ConfigPath returns the settings file path for a project root.
func ConfigPath(projectRoot string) string {
	return filepath.Join(projectRoot, TapestryDir, ConfigFile)
}

// ThemesPath returns the theme directory for a project root.
func ThemesPath(projectRoot string) string {
	return filepath.Join(projectRoot, TapestryDir, ThemesDir)
}

// IndexPath returns the theme index file for a project root.
func IndexPath(projectRoot string) string {
	return filepath.Join(projectRoot, TapestryDir, ThemesDir, IndexFile)
}

// DBPath returns the SQLite database path for a project root.
func DBPath(projectRoot string) string {
	return filepath.Join(projectRoot, TapestryDir, DBFile)
}

// ─── Settings ─────────────────────────────────────────────────────────────────

// Settings is the engine configuration document. Every field has a working
// default; a project without a config file runs entirely on defaults.
type Settings struct {
	// MemoryBudgetMB caps the estimated context size before the engine
	// starts recommending a narrower scope.
	MemoryBudgetMB int `json:"memoryBudgetMb"`
	// ExtraExcludes are discovery exclude globs appended to the built-ins.
	ExtraExcludes []string `json:"extraExcludes,omitempty"`
	// AnalysisWorkers bounds the parallel dependency extraction pool.
	AnalysisWorkers int `json:"analysisWorkers"`
	// Debug enables debug-level logging.
	Debug bool `json:"debug"`
}

// Default returns the settings used when no config file exists.
func Default() Settings {
	return Settings{
		MemoryBudgetMB:  100,
		AnalysisWorkers: 8,
	}
}

// Load reads settings for a project root. A missing file is not an error:
// defaults are returned. A file that exists but does not parse is an error;
// silently ignoring a config the user wrote would be worse than failing.
func Load(projectRoot string) (Settings, error) {
	data, err := os.ReadFile(ConfigPath(projectRoot))
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("reading config.json: %w", err)
	}

	s := Default()
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parsing config.json: %w", err)
	}
	if s.MemoryBudgetMB <= 0 {
		s.MemoryBudgetMB = Default().MemoryBudgetMB
	}
	if s.AnalysisWorkers <= 0 {
		s.AnalysisWorkers = Default().AnalysisWorkers
	}
	return s, nil
}

// Save writes settings to the project's config file, creating the
// .tapestry directory if needed.
func Save(projectRoot string, s Settings) error {
	if err := os.MkdirAll(Dir(projectRoot), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", TapestryDir, err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(ConfigPath(projectRoot), data, 0o644); err != nil {
		return fmt.Errorf("writing config.json: %w", err)
	}
	return nil
}

// Exists reports whether a project root has been initialized for tapestry.
func Exists(projectRoot string) bool {
	_, err := os.Stat(Dir(projectRoot))
	return err == nil
}

// FindProjectRoot walks up from the working directory looking for a
// .tapestry directory. When none exists the working directory itself is
// returned: an uninitialized project is served as-is and state is created
// there on first write.
func FindProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}

	current := dir
	for {
		if Exists(current) {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			// Reached filesystem root with no .tapestry anywhere above.
			return dir, nil
		}
		current = parent
	}
}
