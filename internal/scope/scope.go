// Package scope decides how much project context to load for a theme and
// assembles the result: files, paths, shared-file annotations, README
// snippets, a memory estimate and free-text recommendations.
//
// The engine never fails a load for degraded collaborators or missing
// files. The single loud error is an unknown (or unreadable) primary
// theme; everything else is logged and absorbed.
package scope

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"tapestry/internal/store"
	"tapestry/internal/themes"
)

// Mode is how widely context is gathered: one theme, the theme plus its
// linked neighbors, or every theme in the project.
type Mode string

const (
	ModeThemeFocused  Mode = "theme-focused"
	ModeThemeExpanded Mode = "theme-expanded"
	ModeProjectWide   Mode = "project-wide"
)

// ParseMode normalizes a user-supplied mode string.
func ParseMode(s string) (Mode, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-") {
	case "", string(ModeThemeFocused), "focused":
		return ModeThemeFocused, nil
	case string(ModeThemeExpanded), "expanded":
		return ModeThemeExpanded, nil
	case string(ModeProjectWide), "project", "wide":
		return ModeProjectWide, nil
	default:
		return "", fmt.Errorf("unknown context mode %q (valid: %s, %s, %s)",
			s, ModeThemeFocused, ModeThemeExpanded, ModeProjectWide)
	}
}

// nextMode returns the next wider mode, or false at the widest.
func nextMode(m Mode) (Mode, bool) {
	switch m {
	case ModeThemeFocused:
		return ModeThemeExpanded, true
	case ModeThemeExpanded:
		return ModeProjectWide, true
	default:
		return "", false
	}
}

// Escalation thresholds and estimate weights. Fixed policy, not
// configuration.
const (
	linkedThemeThreshold = 2
	sharedFileThreshold  = 5

	readmeSnippetLimit = 2000

	perFileMB  = 0.1
	perThemeMB = 0.01
)

// globalAllowList names files and directories that belong in every context
// when present on disk, whatever the mode.
var globalAllowList = []string{
	"README.md",
	"package.json",
	"pyproject.toml",
	"requirements.txt",
	"go.mod",
	"Cargo.toml",
	"pom.xml",
	"Makefile",
	".env.example",
	"src",
}

// FlowState is a flow name with its lifecycle status, attached to a loaded
// context for the primary theme.
type FlowState struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Result is one assembled context. Created fresh per load, never persisted.
type Result struct {
	Mode             Mode                `json:"mode"`
	RequestedMode    Mode                `json:"requested_mode"`
	Escalated        bool                `json:"escalated"`
	PrimaryTheme     string              `json:"primary_theme"`
	LoadedThemes     []string            `json:"loaded_themes"`
	Files            []string            `json:"files"`
	Paths            []string            `json:"paths"`
	ReadMes          map[string]string   `json:"readmes"`
	SharedFiles      map[string][]string `json:"shared_files"`
	Flows            []FlowState         `json:"flows"`
	Recommendations  []string            `json:"recommendations"`
	MemoryEstimateMB int                 `json:"memory_estimate_mb"`
}

// EscalationAdvice is the outcome of assessing an issue description
// against the current mode.
type EscalationAdvice struct {
	Escalate        bool     `json:"escalate"`
	CurrentMode     Mode     `json:"current_mode"`
	ProposedMode    Mode     `json:"proposed_mode,omitempty"`
	MatchedKeywords []string `json:"matched_keywords"`
	Reason          string   `json:"reason"`
}

// ThemeFlowQueries reads flow state for a theme.
type ThemeFlowQueries interface {
	FlowsForTheme(theme string) ([]store.Flow, error)
}

// DirectoryMetadataQueries reads stored directory descriptions, preferred
// over on-disk READMEs when both exist.
type DirectoryMetadataQueries interface {
	DirectoryMetadata(path string) (*store.DirMeta, error)
}

// SessionQueries records what context a session is working in.
type SessionQueries interface {
	UpdateSessionContext(id, mode, theme string) error
	LogContextEscalation(sessionID, fromMode, toMode, reason string) error
}

// EngineConfig wires an Engine. Themes is required; every other
// collaborator may be nil and contributes nothing when absent.
type EngineConfig struct {
	ProjectRoot    string
	Themes         themes.Store
	Flows          ThemeFlowQueries
	Directories    DirectoryMetadataQueries
	Sessions       SessionQueries
	MemoryBudgetMB int
	Logger         *zap.Logger
}

// Engine loads theme contexts for one project root.
type Engine struct {
	root     string
	themes   themes.Store
	flows    ThemeFlowQueries
	dirs     DirectoryMetadataQueries
	sessions SessionQueries
	budgetMB int
	logger   *zap.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Themes == nil {
		cfg.Themes = themes.NewFileStore()
	}
	if cfg.MemoryBudgetMB <= 0 {
		cfg.MemoryBudgetMB = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Engine{
		root:     cfg.ProjectRoot,
		themes:   cfg.Themes,
		flows:    cfg.Flows,
		dirs:     cfg.Directories,
		sessions: cfg.Sessions,
		budgetMB: cfg.MemoryBudgetMB,
		logger:   cfg.Logger,
	}
}

// LoadRequest describes one context load.
type LoadRequest struct {
	Theme     string
	Mode      Mode // zero value means theme-focused
	Force     bool // suppresses auto-escalation
	SessionID string
}

// ─── Loading ──────────────────────────────────────────────────────────────────

// LoadContext assembles a fresh context for the requested theme and mode.
// The primary theme must exist; everything else degrades.
func (e *Engine) LoadContext(req LoadRequest) (*Result, error) {
	mode := req.Mode
	if mode == "" {
		mode = ModeThemeFocused
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}

	primary, err := e.themes.Load(e.root, req.Theme)
	if err != nil {
		return nil, err
	}

	requested := mode
	escalated := false
	escalationReason := ""
	if !req.Force && mode == ModeThemeFocused {
		linked := len(primary.LinkedThemes)
		shared := len(primary.SharedFiles)
		if linked > linkedThemeThreshold || shared > sharedFileThreshold {
			mode = ModeThemeExpanded
			escalated = true
			escalationReason = fmt.Sprintf("%d linked themes and %d shared files", linked, shared)
		}
	}

	b := newContextBuilder()
	b.addTheme(primary)

	// Linked themes load through one flat pass; a theme graph cycle cannot
	// recurse because each name loads at most once.
	if mode == ModeThemeExpanded || mode == ModeProjectWide {
		e.loadLinked(b, primary.LinkedThemes)
	}
	if mode == ModeProjectWide {
		names, err := e.themes.Names(e.root)
		if err != nil {
			e.logger.Warn("theme enumeration failed, continuing with loaded set", zap.Error(err))
		} else {
			e.loadLinked(b, names)
		}
	}

	e.appendGlobalAllowList(b)

	result := &Result{
		Mode:          mode,
		RequestedMode: requested,
		Escalated:     escalated,
		PrimaryTheme:  primary.Name,
		LoadedThemes:  b.loadedThemes(primary.Name),
		Files:         b.sortedFiles(),
		Paths:         b.sortedPaths(),
		SharedFiles:   b.shared,
		Flows:         []FlowState{},
	}
	result.ReadMes = e.collectReadmes(result.Paths)
	result.MemoryEstimateMB = estimateMemoryMB(len(result.Files), len(result.LoadedThemes), result.ReadMes)
	result.Recommendations = e.recommendations(result, escalationReason)

	if e.flows != nil {
		flows, err := e.flows.FlowsForTheme(primary.Name)
		if err != nil {
			e.logger.Debug("flow lookup failed", zap.String("theme", primary.Name), zap.Error(err))
		} else {
			for _, f := range flows {
				result.Flows = append(result.Flows, FlowState{Name: f.Name, Status: string(f.Status)})
			}
		}
	}

	e.recordSession(req.SessionID, requested, result, escalationReason)
	return result, nil
}

// loadLinked loads each named theme at most once, skipping failures.
func (e *Engine) loadLinked(b *contextBuilder, names []string) {
	for _, name := range names {
		if b.loaded[name] {
			continue
		}
		theme, err := e.themes.Load(e.root, name)
		if err != nil {
			e.logger.Warn("skipping unloadable theme", zap.String("theme", name), zap.Error(err))
			continue
		}
		b.addTheme(theme)
	}
}

func (e *Engine) appendGlobalAllowList(b *contextBuilder) {
	for _, entry := range globalAllowList {
		info, err := os.Stat(filepath.Join(e.root, entry))
		if err != nil {
			continue
		}
		if info.IsDir() {
			b.addPath(entry)
		} else {
			b.addFile(entry)
		}
	}
}

// collectReadmes attaches one snippet per loaded directory plus the project
// root, keyed "." for the root. Stored directory metadata wins over an
// on-disk README.
func (e *Engine) collectReadmes(paths []string) map[string]string {
	readmes := make(map[string]string)
	for _, dir := range append([]string{"."}, paths...) {
		if snippet, ok := e.directorySnippet(dir); ok {
			readmes[dir] = snippet
		}
	}
	return readmes
}

func (e *Engine) directorySnippet(dir string) (string, bool) {
	if e.dirs != nil {
		meta, err := e.dirs.DirectoryMetadata(dir)
		if err != nil {
			e.logger.Debug("directory metadata lookup failed", zap.String("path", dir), zap.Error(err))
		} else if meta != nil && meta.Description != "" {
			return truncateSnippet(meta.Description), true
		}
	}

	dirPath := e.root
	if dir != "." {
		dirPath = filepath.Join(e.root, filepath.FromSlash(dir))
	}
	data, err := os.ReadFile(filepath.Join(dirPath, "README.md"))
	if err != nil {
		return "", false
	}
	return truncateSnippet(string(data)), true
}

func truncateSnippet(s string) string {
	runes := []rune(s)
	if len(runes) <= readmeSnippetLimit {
		return s
	}
	return string(runes[:readmeSnippetLimit])
}

// estimateMemoryMB applies the flat linear formula: 0.1 MB per file, the
// byte size of attached snippets, 0.01 MB per loaded theme. Rounded up so
// any non-empty context reports at least one megabyte.
func estimateMemoryMB(files, loadedThemes int, readmes map[string]string) int {
	bytes := 0
	for _, s := range readmes {
		bytes += len(s)
	}
	est := float64(files)*perFileMB +
		float64(bytes)/(1024*1024) +
		float64(loadedThemes)*perThemeMB
	return int(math.Ceil(est))
}

func (e *Engine) recommendations(r *Result, escalationReason string) []string {
	recs := []string{}
	if r.Escalated {
		recs = append(recs, fmt.Sprintf("Context escalated from %s to %s: %s.",
			r.RequestedMode, r.Mode, escalationReason))
	}
	if r.MemoryEstimateMB > e.budgetMB {
		recs = append(recs, fmt.Sprintf("Estimated context size %d MB exceeds the %d MB budget; consider a narrower mode or splitting the theme.",
			r.MemoryEstimateMB, e.budgetMB))
	}
	if len(r.SharedFiles) > sharedFileThreshold {
		recs = append(recs, fmt.Sprintf("%d files are shared with other themes; coordinate cross-theme changes carefully.",
			len(r.SharedFiles)))
	}
	if described, total := len(r.ReadMes), len(r.Paths)+1; described*2 < total {
		recs = append(recs, fmt.Sprintf("Only %d of %d directories carry descriptions; add READMEs or directory metadata to improve future context loads.",
			described, total))
	}
	return recs
}

// recordSession persists context state for the session, best-effort.
func (e *Engine) recordSession(sessionID string, requested Mode, r *Result, reason string) {
	if e.sessions == nil || sessionID == "" {
		return
	}
	if err := e.sessions.UpdateSessionContext(sessionID, string(r.Mode), r.PrimaryTheme); err != nil {
		e.logger.Debug("session context update failed", zap.String("session", sessionID), zap.Error(err))
	}
	if !r.Escalated {
		return
	}
	if err := e.sessions.LogContextEscalation(sessionID, string(requested), string(r.Mode), reason); err != nil {
		e.logger.Debug("escalation log failed", zap.String("session", sessionID), zap.Error(err))
	}
}

// ─── Escalation Assessment ────────────────────────────────────────────────────

// escalationSignals pair a display keyword with the substring that detects
// it, so "boundary" also catches "boundaries".
var escalationSignals = []struct {
	keyword string
	match   string
}{
	{"import", "import"},
	{"dependency", "dependenc"},
	{"shared", "shared"},
	{"cross", "cross"},
	{"global", "global"},
	{"architecture", "architect"},
	{"boundary", "boundar"},
	{"coupling", "coupling"},
}

// AssessEscalation keyword-matches an issue description and proposes at
// most one step up the mode ladder.
func (e *Engine) AssessEscalation(current Mode, issue string) *EscalationAdvice {
	advice := &EscalationAdvice{
		CurrentMode:     current,
		MatchedKeywords: []string{},
	}

	lowered := strings.ToLower(issue)
	for _, sig := range escalationSignals {
		if strings.Contains(lowered, sig.match) {
			advice.MatchedKeywords = append(advice.MatchedKeywords, sig.keyword)
		}
	}

	if len(advice.MatchedKeywords) == 0 {
		advice.Reason = "no cross-cutting signals in the issue description"
		return advice
	}

	proposed, ok := nextMode(current)
	if !ok {
		advice.Reason = fmt.Sprintf("issue mentions %s but %s is already the widest mode",
			strings.Join(advice.MatchedKeywords, ", "), ModeProjectWide)
		return advice
	}

	advice.Escalate = true
	advice.ProposedMode = proposed
	advice.Reason = fmt.Sprintf("issue mentions %s; widening %s to %s should surface the related context",
		strings.Join(advice.MatchedKeywords, ", "), current, proposed)
	return advice
}

// ─── Context Builder ──────────────────────────────────────────────────────────

// contextBuilder accumulates deduplicated files, paths and shared-file
// annotations across theme loads.
type contextBuilder struct {
	files  map[string]struct{}
	paths  map[string]struct{}
	shared map[string][]string
	loaded map[string]bool
	order  []string
}

func newContextBuilder() *contextBuilder {
	return &contextBuilder{
		files:  make(map[string]struct{}),
		paths:  make(map[string]struct{}),
		shared: make(map[string][]string),
		loaded: make(map[string]bool),
	}
}

func (b *contextBuilder) addTheme(t *themes.Theme) {
	if b.loaded[t.Name] {
		return
	}
	b.loaded[t.Name] = true
	b.order = append(b.order, t.Name)

	for _, f := range t.Files {
		b.addFile(f)
	}
	for _, p := range t.Paths {
		b.addPath(p)
	}
	for file, sharedWith := range t.SharedFiles {
		b.shared[file] = mergeSorted(b.shared[file], sharedWith)
	}
}

func (b *contextBuilder) addFile(f string) {
	if f != "" {
		b.files[f] = struct{}{}
	}
}

func (b *contextBuilder) addPath(p string) {
	p = strings.TrimSuffix(strings.TrimSpace(p), "/")
	if p != "" && p != "." {
		b.paths[p] = struct{}{}
	}
}

// loadedThemes keeps the primary theme first and sorts the rest.
func (b *contextBuilder) loadedThemes(primary string) []string {
	rest := []string{}
	for _, name := range b.order {
		if name != primary {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append([]string{primary}, rest...)
}

func (b *contextBuilder) sortedFiles() []string { return sortedKeys(b.files) }
func (b *contextBuilder) sortedPaths() []string { return sortedKeys(b.paths) }

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func mergeSorted(existing, extra []string) []string {
	set := make(map[string]struct{}, len(existing)+len(extra))
	for _, s := range existing {
		set[s] = struct{}{}
	}
	for _, s := range extra {
		if s != "" {
			set[s] = struct{}{}
		}
	}
	return sortedKeys(set)
}
