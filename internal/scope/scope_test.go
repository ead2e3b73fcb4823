package scope

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tapestry/internal/store"
	"tapestry/internal/themes"
)

func saveTheme(t *testing.T, root string, theme *themes.Theme) {
	t.Helper()
	if err := themes.NewFileStore().Save(root, theme); err != nil {
		t.Fatalf("save theme %s: %v", theme.Name, err)
	}
}

// newProject lays out a root with a small theme graph, a root README and a
// src directory for the allow-list to find.
func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	if err := os.WriteFile(filepath.Join(root, "README.md"), []byte("Demo project.\n"), 0o644); err != nil {
		t.Fatalf("write README: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "src"), 0o755); err != nil {
		t.Fatalf("mkdir src: %v", err)
	}

	saveTheme(t, root, &themes.Theme{
		Name:         "billing",
		Files:        []string{"src/billing/invoice.py", "src/billing/api.py"},
		Paths:        []string{"src/billing"},
		LinkedThemes: []string{"ui"},
		SharedFiles:  map[string][]string{"src/shared/models.py": {"ui"}},
	})
	saveTheme(t, root, &themes.Theme{
		Name:  "ui",
		Files: []string{"web/app.tsx"},
		Paths: []string{"web"},
	})
	saveTheme(t, root, &themes.Theme{
		Name:  "payments",
		Files: []string{"src/payments/charge.py"},
	})
	saveTheme(t, root, &themes.Theme{
		Name:  "reports",
		Files: []string{"src/reports/summary.py"},
	})
	saveTheme(t, root, &themes.Theme{
		Name:         "checkout",
		Files:        []string{"src/checkout/cart.py"},
		LinkedThemes: []string{"ui", "payments", "reports"},
	})
	return root
}

type fakeSessions struct {
	fail         bool
	contextCalls []string
	escalations  []string
}

func (f *fakeSessions) UpdateSessionContext(id, mode, theme string) error {
	if f.fail {
		return errors.New("sessions offline")
	}
	f.contextCalls = append(f.contextCalls, id+"|"+mode+"|"+theme)
	return nil
}

func (f *fakeSessions) LogContextEscalation(sessionID, fromMode, toMode, reason string) error {
	if f.fail {
		return errors.New("sessions offline")
	}
	f.escalations = append(f.escalations, sessionID+"|"+fromMode+"|"+toMode)
	return nil
}

type fakeDirs struct {
	metas map[string]string
	fail  bool
}

func (f *fakeDirs) DirectoryMetadata(path string) (*store.DirMeta, error) {
	if f.fail {
		return nil, errors.New("metadata offline")
	}
	desc, ok := f.metas[path]
	if !ok {
		return nil, nil
	}
	return &store.DirMeta{Path: path, Description: desc}, nil
}

type fakeFlows struct {
	flows []store.Flow
	fail  bool
}

func (f *fakeFlows) FlowsForTheme(theme string) ([]store.Flow, error) {
	if f.fail {
		return nil, errors.New("flows offline")
	}
	return f.flows, nil
}

func containsSubstring(list []string, sub string) bool {
	for _, s := range list {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func countOccurrences(list []string, want string) int {
	n := 0
	for _, s := range list {
		if s == want {
			n++
		}
	}
	return n
}

// ─── Mode Parsing ─────────────────────────────────────────────────────────────

func TestParseMode(t *testing.T) {
	cases := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"theme-focused", ModeThemeFocused, false},
		{"", ModeThemeFocused, false},
		{"focused", ModeThemeFocused, false},
		{"Theme_Expanded", ModeThemeExpanded, false},
		{"expanded", ModeThemeExpanded, false},
		{"project-wide", ModeProjectWide, false},
		{"PROJECT_WIDE", ModeProjectWide, false},
		{"galaxy", "", true},
	}
	for _, tc := range cases {
		got, err := ParseMode(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseMode(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMode(%q) unexpected error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

// ─── Loading ──────────────────────────────────────────────────────────────────

func TestLoadContext_UnknownThemeFails(t *testing.T) {
	e := NewEngine(EngineConfig{ProjectRoot: newProject(t)})

	_, err := e.LoadContext(LoadRequest{Theme: "phantom"})
	if err == nil {
		t.Fatal("expected error for unknown theme")
	}
	if !errors.Is(err, themes.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestLoadContext_InvalidModeFails(t *testing.T) {
	e := NewEngine(EngineConfig{ProjectRoot: newProject(t)})
	if _, err := e.LoadContext(LoadRequest{Theme: "billing", Mode: "galaxy"}); err == nil {
		t.Fatal("expected error for invalid mode")
	}
}

func TestLoadContext_SmallThemeStaysFocused(t *testing.T) {
	e := NewEngine(EngineConfig{ProjectRoot: newProject(t)})

	// One linked theme and one shared file sit under both thresholds.
	r, err := e.LoadContext(LoadRequest{Theme: "billing"})
	if err != nil {
		t.Fatalf("LoadContext: %v", err)
	}

	if r.Mode != ModeThemeFocused || r.Escalated {
		t.Fatalf("mode = %q escalated = %v, want focused without escalation", r.Mode, r.Escalated)
	}
	if len(r.LoadedThemes) != 1 || r.LoadedThemes[0] != "billing" {
		t.Fatalf("loaded themes = %v", r.LoadedThemes)
	}
	if containsSubstring(r.Recommendations, "escalated") {
		t.Fatalf("focused load must not mention escalation: %v", r.Recommendations)
	}
	if countOccurrences(r.Files, "src/billing/invoice.py") != 1 {
		t.Fatalf("files = %v", r.Files)
	}
	if r.SharedFiles["src/shared/models.py"] == nil {
		t.Fatalf("shared files = %v", r.SharedFiles)
	}
}

func TestLoadContext_EscalatesOnLinkedThemes(t *testing.T) {
	e := NewEngine(EngineConfig{ProjectRoot: newProject(t)})

	r, err := e.LoadContext(LoadRequest{Theme: "checkout"})
	if err != nil {
		t.Fatalf("LoadContext: %v", err)
	}

	if r.Mode != ModeThemeExpanded || !r.Escalated {
		t.Fatalf("mode = %q escalated = %v, want expanded escalation", r.Mode, r.Escalated)
	}
	if r.RequestedMode != ModeThemeFocused {
		t.Fatalf("requested mode = %q", r.RequestedMode)
	}
	if !containsSubstring(r.Recommendations, "escalated") {
		t.Fatalf("recommendations must mention escalation: %v", r.Recommendations)
	}
	want := []string{"checkout", "payments", "reports", "ui"}
	if len(r.LoadedThemes) != len(want) {
		t.Fatalf("loaded themes = %v, want %v", r.LoadedThemes, want)
	}
	for i := range want {
		if r.LoadedThemes[i] != want[i] {
			t.Fatalf("loaded themes = %v, want %v", r.LoadedThemes, want)
		}
	}
}

func TestLoadContext_EscalatesOnSharedFiles(t *testing.T) {
	root := newProject(t)
	shared := map[string][]string{}
	for i := 0; i < 6; i++ {
		shared[fmt.Sprintf("src/common/f%d.py", i)] = []string{"ui"}
	}
	saveTheme(t, root, &themes.Theme{Name: "platform", SharedFiles: shared})

	e := NewEngine(EngineConfig{ProjectRoot: root})
	r, err := e.LoadContext(LoadRequest{Theme: "platform"})
	if err != nil {
		t.Fatalf("LoadContext: %v", err)
	}
	if r.Mode != ModeThemeExpanded || !r.Escalated {
		t.Fatalf("six shared files must escalate, got %q", r.Mode)
	}
}

func TestLoadContext_ForceSuppressesEscalation(t *testing.T) {
	e := NewEngine(EngineConfig{ProjectRoot: newProject(t)})

	r, err := e.LoadContext(LoadRequest{Theme: "checkout", Force: true})
	if err != nil {
		t.Fatalf("LoadContext: %v", err)
	}
	if r.Mode != ModeThemeFocused || r.Escalated {
		t.Fatalf("force must pin the requested mode, got %q", r.Mode)
	}
	if len(r.LoadedThemes) != 1 {
		t.Fatalf("loaded themes = %v", r.LoadedThemes)
	}
}

func TestLoadContext_ExplicitModeNeverDowngrades(t *testing.T) {
	e := NewEngine(EngineConfig{ProjectRoot: newProject(t)})

	r, err := e.LoadContext(LoadRequest{Theme: "billing", Mode: ModeThemeExpanded})
	if err != nil {
		t.Fatalf("LoadContext: %v", err)
	}
	if r.Mode != ModeThemeExpanded {
		t.Fatalf("mode = %q, want requested expanded", r.Mode)
	}
	if len(r.LoadedThemes) != 2 || r.LoadedThemes[1] != "ui" {
		t.Fatalf("loaded themes = %v", r.LoadedThemes)
	}
}

func TestLoadContext_NoDuplicateEntries(t *testing.T) {
	root := newProject(t)
	// README.md collides with the allow-list, web/app.tsx with the linked ui
	// theme.
	saveTheme(t, root, &themes.Theme{
		Name:         "dupes",
		Files:        []string{"README.md", "web/app.tsx", "web/app.tsx"},
		Paths:        []string{"web", "web/"},
		LinkedThemes: []string{"ui"},
	})

	e := NewEngine(EngineConfig{ProjectRoot: root})
	r, err := e.LoadContext(LoadRequest{Theme: "dupes", Mode: ModeThemeExpanded})
	if err != nil {
		t.Fatalf("LoadContext: %v", err)
	}

	for _, f := range r.Files {
		if countOccurrences(r.Files, f) != 1 {
			t.Fatalf("duplicate file %q in %v", f, r.Files)
		}
	}
	for _, p := range r.Paths {
		if countOccurrences(r.Paths, p) != 1 {
			t.Fatalf("duplicate path %q in %v", p, r.Paths)
		}
	}
}

func TestLoadContext_ProjectWideIsSuperset(t *testing.T) {
	root := newProject(t)
	e := NewEngine(EngineConfig{ProjectRoot: root})

	expanded, err := e.LoadContext(LoadRequest{Theme: "billing", Mode: ModeThemeExpanded})
	if err != nil {
		t.Fatalf("expanded: %v", err)
	}
	wide, err := e.LoadContext(LoadRequest{Theme: "billing", Mode: ModeProjectWide})
	if err != nil {
		t.Fatalf("project-wide: %v", err)
	}

	wideThemes := map[string]bool{}
	for _, name := range wide.LoadedThemes {
		wideThemes[name] = true
	}
	for _, name := range expanded.LoadedThemes {
		if !wideThemes[name] {
			t.Fatalf("project-wide omits %q loaded by expanded", name)
		}
	}

	wideFiles := map[string]bool{}
	for _, f := range wide.Files {
		wideFiles[f] = true
	}
	for _, f := range expanded.Files {
		if !wideFiles[f] {
			t.Fatalf("project-wide omits file %q loaded by expanded", f)
		}
	}
	if len(wide.LoadedThemes) < 5 {
		t.Fatalf("project-wide themes = %v, want all five", wide.LoadedThemes)
	}
}

func TestLoadContext_GlobalAllowList(t *testing.T) {
	e := NewEngine(EngineConfig{ProjectRoot: newProject(t)})

	r, err := e.LoadContext(LoadRequest{Theme: "ui"})
	if err != nil {
		t.Fatalf("LoadContext: %v", err)
	}
	if countOccurrences(r.Files, "README.md") != 1 {
		t.Fatalf("allow-list README.md missing from %v", r.Files)
	}
	if countOccurrences(r.Paths, "src") != 1 {
		t.Fatalf("allow-list src missing from %v", r.Paths)
	}
}

func TestLoadContext_ReadmeSnippets(t *testing.T) {
	root := newProject(t)
	if err := os.MkdirAll(filepath.Join(root, "src", "billing"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	diskReadme := filepath.Join(root, "src", "billing", "README.md")
	if err := os.WriteFile(diskReadme, []byte("On-disk billing docs."), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	dirs := &fakeDirs{metas: map[string]string{"src/billing": "Stored billing description."}}
	e := NewEngine(EngineConfig{ProjectRoot: root, Directories: dirs})

	r, err := e.LoadContext(LoadRequest{Theme: "billing"})
	if err != nil {
		t.Fatalf("LoadContext: %v", err)
	}

	if got := r.ReadMes["."]; !strings.Contains(got, "Demo project") {
		t.Fatalf("root snippet = %q", got)
	}
	// Stored metadata wins over the on-disk README.
	if got := r.ReadMes["src/billing"]; got != "Stored billing description." {
		t.Fatalf("billing snippet = %q", got)
	}
}

func TestLoadContext_ReadmeTruncated(t *testing.T) {
	root := newProject(t)
	long := strings.Repeat("x", 3000)
	if err := os.WriteFile(filepath.Join(root, "README.md"), []byte(long), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	e := NewEngine(EngineConfig{ProjectRoot: root})
	r, err := e.LoadContext(LoadRequest{Theme: "ui"})
	if err != nil {
		t.Fatalf("LoadContext: %v", err)
	}
	if got := len([]rune(r.ReadMes["."])); got != 2000 {
		t.Fatalf("snippet length = %d, want 2000", got)
	}
}

func TestLoadContext_MemoryEstimate(t *testing.T) {
	e := NewEngine(EngineConfig{ProjectRoot: newProject(t)})

	// Three files (two theme files plus the allow-list README) and one theme
	// round up to a single megabyte.
	r, err := e.LoadContext(LoadRequest{Theme: "billing"})
	if err != nil {
		t.Fatalf("LoadContext: %v", err)
	}
	if r.MemoryEstimateMB != 1 {
		t.Fatalf("estimate = %d MB, want 1", r.MemoryEstimateMB)
	}
}

func TestLoadContext_BudgetRecommendation(t *testing.T) {
	root := newProject(t)
	files := make([]string, 15)
	for i := range files {
		files[i] = fmt.Sprintf("src/big/f%d.py", i)
	}
	saveTheme(t, root, &themes.Theme{Name: "big", Files: files})

	e := NewEngine(EngineConfig{ProjectRoot: root, MemoryBudgetMB: 1})
	r, err := e.LoadContext(LoadRequest{Theme: "big"})
	if err != nil {
		t.Fatalf("LoadContext: %v", err)
	}
	if r.MemoryEstimateMB <= 1 {
		t.Fatalf("estimate = %d MB, want over budget", r.MemoryEstimateMB)
	}
	if !containsSubstring(r.Recommendations, "budget") {
		t.Fatalf("recommendations = %v, want budget warning", r.Recommendations)
	}
}

func TestLoadContext_RecordsSession(t *testing.T) {
	sessions := &fakeSessions{}
	e := NewEngine(EngineConfig{ProjectRoot: newProject(t), Sessions: sessions})

	if _, err := e.LoadContext(LoadRequest{Theme: "checkout", SessionID: "s1"}); err != nil {
		t.Fatalf("LoadContext: %v", err)
	}

	if len(sessions.contextCalls) != 1 || sessions.contextCalls[0] != "s1|theme-expanded|checkout" {
		t.Fatalf("context calls = %v", sessions.contextCalls)
	}
	if len(sessions.escalations) != 1 || sessions.escalations[0] != "s1|theme-focused|theme-expanded" {
		t.Fatalf("escalations = %v", sessions.escalations)
	}
}

func TestLoadContext_NoSessionRecordingWithoutID(t *testing.T) {
	sessions := &fakeSessions{}
	e := NewEngine(EngineConfig{ProjectRoot: newProject(t), Sessions: sessions})

	if _, err := e.LoadContext(LoadRequest{Theme: "billing"}); err != nil {
		t.Fatalf("LoadContext: %v", err)
	}
	if len(sessions.contextCalls) != 0 {
		t.Fatalf("context calls = %v, want none", sessions.contextCalls)
	}
}

func TestLoadContext_SessionFailureIgnored(t *testing.T) {
	sessions := &fakeSessions{fail: true}
	e := NewEngine(EngineConfig{ProjectRoot: newProject(t), Sessions: sessions})

	if _, err := e.LoadContext(LoadRequest{Theme: "checkout", SessionID: "s1"}); err != nil {
		t.Fatalf("session failure must not fail the load: %v", err)
	}
}

func TestLoadContext_FlowsAttached(t *testing.T) {
	flows := &fakeFlows{flows: []store.Flow{
		{Name: "design", Status: store.FlowComplete},
		{Name: "implementation", Status: store.FlowInProgress},
	}}
	e := NewEngine(EngineConfig{ProjectRoot: newProject(t), Flows: flows})

	r, err := e.LoadContext(LoadRequest{Theme: "billing"})
	if err != nil {
		t.Fatalf("LoadContext: %v", err)
	}
	if len(r.Flows) != 2 || r.Flows[0].Name != "design" || r.Flows[0].Status != "complete" {
		t.Fatalf("flows = %+v", r.Flows)
	}
}

func TestLoadContext_FlowFailureIgnored(t *testing.T) {
	e := NewEngine(EngineConfig{ProjectRoot: newProject(t), Flows: &fakeFlows{fail: true}})

	r, err := e.LoadContext(LoadRequest{Theme: "billing"})
	if err != nil {
		t.Fatalf("flow failure must not fail the load: %v", err)
	}
	if len(r.Flows) != 0 {
		t.Fatalf("flows = %+v, want empty", r.Flows)
	}
}

func TestLoadContext_MissingLinkedThemesSkipped(t *testing.T) {
	root := newProject(t)
	saveTheme(t, root, &themes.Theme{
		Name:         "lonely",
		LinkedThemes: []string{"ghost1", "ghost2", "ghost3"},
	})

	e := NewEngine(EngineConfig{ProjectRoot: root})
	r, err := e.LoadContext(LoadRequest{Theme: "lonely"})
	if err != nil {
		t.Fatalf("LoadContext: %v", err)
	}
	if r.Mode != ModeThemeExpanded {
		t.Fatalf("three linked themes must escalate even when unloadable, got %q", r.Mode)
	}
	if len(r.LoadedThemes) != 1 || r.LoadedThemes[0] != "lonely" {
		t.Fatalf("loaded themes = %v, want lonely alone", r.LoadedThemes)
	}
}

func TestLoadContext_LinkedThemeCycleTerminates(t *testing.T) {
	root := newProject(t)
	saveTheme(t, root, &themes.Theme{Name: "ping", LinkedThemes: []string{"pong"}})
	saveTheme(t, root, &themes.Theme{Name: "pong", LinkedThemes: []string{"ping"}})

	e := NewEngine(EngineConfig{ProjectRoot: root})
	r, err := e.LoadContext(LoadRequest{Theme: "ping", Mode: ModeThemeExpanded})
	if err != nil {
		t.Fatalf("LoadContext: %v", err)
	}
	if len(r.LoadedThemes) != 2 {
		t.Fatalf("loaded themes = %v, want ping and pong once each", r.LoadedThemes)
	}
}

// ─── Escalation Assessment ────────────────────────────────────────────────────

func TestAssessEscalation_ProposesOneStep(t *testing.T) {
	e := NewEngine(EngineConfig{ProjectRoot: t.TempDir()})

	advice := e.AssessEscalation(ModeThemeFocused, "this import fails across modules")
	if !advice.Escalate || advice.ProposedMode != ModeThemeExpanded {
		t.Fatalf("advice = %+v, want escalation to expanded", advice)
	}
	joined := strings.Join(advice.MatchedKeywords, ",")
	if !strings.Contains(joined, "import") || !strings.Contains(joined, "cross") {
		t.Fatalf("matched keywords = %v", advice.MatchedKeywords)
	}
}

func TestAssessEscalation_ExpandedStepsToProjectWide(t *testing.T) {
	e := NewEngine(EngineConfig{ProjectRoot: t.TempDir()})

	advice := e.AssessEscalation(ModeThemeExpanded, "global architecture concern")
	if !advice.Escalate || advice.ProposedMode != ModeProjectWide {
		t.Fatalf("advice = %+v, want escalation to project-wide", advice)
	}
}

func TestAssessEscalation_NoSignals(t *testing.T) {
	e := NewEngine(EngineConfig{ProjectRoot: t.TempDir()})

	advice := e.AssessEscalation(ModeThemeFocused, "button color is wrong")
	if advice.Escalate || advice.ProposedMode != "" {
		t.Fatalf("advice = %+v, want no escalation", advice)
	}
}

func TestAssessEscalation_DeclinesAtWidest(t *testing.T) {
	e := NewEngine(EngineConfig{ProjectRoot: t.TempDir()})

	advice := e.AssessEscalation(ModeProjectWide, "shared dependency boundary issue")
	if advice.Escalate {
		t.Fatalf("advice = %+v, must decline at project-wide", advice)
	}
	if len(advice.MatchedKeywords) == 0 {
		t.Fatal("keywords should still be reported")
	}
	if !strings.Contains(advice.Reason, string(ModeProjectWide)) {
		t.Fatalf("reason = %q", advice.Reason)
	}
}
