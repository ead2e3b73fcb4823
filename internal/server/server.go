// Package server wires all MCP components and creates the server instance.
//
// This is the composition root (DIP): it creates concrete implementations
// and injects them into the tools/prompts/resources that depend on abstractions.
// No business logic lives here, only wiring.
package server

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"tapestry/internal/config"
	"tapestry/internal/gitstate"
	"tapestry/internal/impact"
	"tapestry/internal/logging"
	"tapestry/internal/prompts"
	"tapestry/internal/resources"
	"tapestry/internal/scope"
	"tapestry/internal/store"
	"tapestry/internal/tasktools"
	"tapestry/internal/themes"
	"tapestry/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// seedCommitWindow bounds the history walk that backfills modification
// counts at startup.
const seedCommitWindow = 200

// New creates and configures the MCP server with all tools, prompts,
// and resources registered. This is the single place where all
// dependencies are resolved.
//
// The returned cleanup function closes the SQLite store and flushes the
// logger; it must be called on shutdown (typically via defer). It is
// always non-nil and safe to call even if store init failed.
func New() (*server.MCPServer, func(), error) {
	root, err := config.FindProjectRoot()
	if err != nil {
		return nil, noop, fmt.Errorf("resolving project root: %w", err)
	}

	settings, err := config.Load(root)
	if err != nil {
		return nil, noop, fmt.Errorf("loading configuration: %w", err)
	}

	logger, flush, err := logging.New(settings.Debug)
	if err != nil {
		return nil, noop, fmt.Errorf("creating logger: %w", err)
	}
	logger.Info("tapestry starting", zap.String("root", root), zap.String("version", Version))

	themeStore := themes.NewFileStore()

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"tapestry",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Open the persistence layer ---
	//
	// Work tracking (sessions, tasks, sidequests, flows) needs SQLite; the
	// analysis tools do not. If the store fails to open we log a warning,
	// skip the work-tracking tools and run every engine without its
	// persistence collaborators. The server still serves.

	cleanup := flush
	st, storeErr := store.New(store.DefaultConfig(root))
	if storeErr != nil {
		logger.Warn("work tracking disabled: store unavailable", zap.Error(storeErr))
	} else {
		cleanup = func() {
			if err := st.Close(); err != nil {
				logger.Warn("store close failed", zap.Error(err))
			}
			flush()
		}
		seedModificationHistory(root, st, logger)
	}

	// --- Build the engines ---
	//
	// Collaborators stay nil interfaces when the store is down; assigning a
	// nil *store.Store directly would produce a non-nil interface holding a
	// nil pointer.

	engineCfg := scope.EngineConfig{
		ProjectRoot:    root,
		Themes:         themeStore,
		MemoryBudgetMB: settings.MemoryBudgetMB,
		Logger:         logger,
	}
	var meta impact.MetadataQueries
	var snapshots tools.SnapshotRecorder
	if st != nil {
		engineCfg.Flows = st
		engineCfg.Directories = st
		engineCfg.Sessions = st
		meta = st
		snapshots = st
	}
	engine := scope.NewEngine(engineCfg)
	analyzer := impact.NewAnalyzer(root, meta, themeStore, settings.AnalysisWorkers, logger)

	// --- Register analysis and context tools ---

	ctxLoad := tools.NewCtxLoadTool(engine)
	s.AddTool(ctxLoad.Definition(), ctxLoad.Handle)

	ctxAssess := tools.NewCtxAssessTool(engine)
	s.AddTool(ctxAssess.Definition(), ctxAssess.Handle)

	themeList := tools.NewThemeListTool(themeStore, root)
	s.AddTool(themeList.Definition(), themeList.Handle)

	themeGet := tools.NewThemeGetTool(themeStore, root)
	s.AddTool(themeGet.Definition(), themeGet.Handle)

	discover := tools.NewDiscoverTool(root, settings.ExtraExcludes)
	s.AddTool(discover.Definition(), discover.Handle)

	analyze := tools.NewAnalyzeTool(root)
	s.AddTool(analyze.Definition(), analyze.Handle)

	fileImpact := tools.NewImpactTool(analyzer)
	s.AddTool(fileImpact.Definition(), fileImpact.Handle)

	relationships := tools.NewRelationshipsTool(analyzer)
	s.AddTool(relationships.Definition(), relationships.Handle)

	gitState := tools.NewGitStateTool(root, snapshots)
	s.AddTool(gitState.Definition(), gitState.Handle)

	// --- Register work-tracking tools ---

	if st != nil {
		registerTaskTools(s, st, root)
	}

	// --- Register prompts ---

	kickoff := prompts.NewKickoffPrompt()
	s.AddPrompt(kickoff.Definition(), kickoff.Handle)

	status := prompts.NewStatusPrompt()
	s.AddPrompt(status.Definition(), status.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(root, settings, themeStore, st)
	s.AddResource(resourceHandler.StatusResource(), resourceHandler.HandleStatus)

	return s, cleanup, nil
}

// noop is a no-op cleanup function used as the default before any
// resource that needs closing has been created.
func noop() {}

// seedModificationHistory backfills per-file modification counts from Git
// history so file_impact has signal before any tracked modifications.
// Best-effort: projects without a repository just skip it.
func seedModificationHistory(root string, st *store.Store, logger *zap.Logger) {
	repo, err := gitstate.Open(root)
	if err != nil {
		logger.Debug("modification seeding skipped", zap.Error(err))
		return
	}
	counts, err := repo.CommitCounts(seedCommitWindow)
	if err != nil {
		logger.Debug("commit history walk failed", zap.Error(err))
		return
	}
	if err := st.SeedModificationCounts(counts); err != nil {
		logger.Warn("modification seeding failed", zap.Error(err))
		return
	}
	logger.Debug("modification counts seeded", zap.Int("files", len(counts)))
}

// registerTaskTools registers the 11 work-tracking MCP tools with the server.
func registerTaskTools(s *server.MCPServer, st *store.Store, root string) {
	// --- Session lifecycle ---
	sessionStart := tasktools.NewSessionStartTool(st, projectName(root), root)
	s.AddTool(sessionStart.Definition(), sessionStart.Handle)

	sessionEnd := tasktools.NewSessionEndTool(st)
	s.AddTool(sessionEnd.Definition(), sessionEnd.Handle)

	sessionRecent := tasktools.NewSessionRecentTool(st)
	s.AddTool(sessionRecent.Definition(), sessionRecent.Handle)

	// --- Tasks ---
	taskCreate := tasktools.NewTaskCreateTool(st)
	s.AddTool(taskCreate.Definition(), taskCreate.Handle)

	taskUpdate := tasktools.NewTaskUpdateStatusTool(st)
	s.AddTool(taskUpdate.Definition(), taskUpdate.Handle)

	taskList := tasktools.NewTaskListTool(st)
	s.AddTool(taskList.Definition(), taskList.Handle)

	taskSearch := tasktools.NewTaskSearchTool(st)
	s.AddTool(taskSearch.Definition(), taskSearch.Handle)

	// --- Sidequests ---
	sidequestCreate := tasktools.NewSidequestCreateTool(st)
	s.AddTool(sidequestCreate.Definition(), sidequestCreate.Handle)

	sidequestUpdate := tasktools.NewSidequestUpdateStatusTool(st)
	s.AddTool(sidequestUpdate.Definition(), sidequestUpdate.Handle)

	// --- Flows ---
	flowTrack := tasktools.NewFlowTrackTool(st)
	s.AddTool(flowTrack.Definition(), flowTrack.Handle)

	flowStatus := tasktools.NewFlowStatusTool(st)
	s.AddTool(flowStatus.Definition(), flowStatus.Handle)
}

// serverInstructions returns the system instructions that tell the AI
// how to use tapestry effectively.
func serverInstructions() string {
	return `You have access to tapestry, a theme-organized project memory MCP server.

Tapestry keeps persistent, per-project state under .tapestry/: themes (named
groupings of related files), work sessions, tasks with sidequests, theme
flows, file metadata and git branch snapshots. Use it to load the right
slice of a codebase instead of guessing, and to leave a trail the next
session can pick up.

## SESSION LIFECYCLE

1. Call session_start at the beginning of a work session and keep the
   returned session_id.
2. Pass session_id to ctx_load so context loads and escalations are
   attributed to the session.
3. Call session_end with a short summary when you finish.
4. At the start of a new conversation, session_recent shows what happened
   in previous sessions.

## LOADING CONTEXT

Themes group related files into functional areas. Always prefer loading a
theme over exploring the whole tree:

1. theme_list — see what themes exist. theme_get shows one theme's full
   document.
2. ctx_load with theme=<name> — assembles the working context: the theme's
   files and paths, shared files, directory notes, flows and
   recommendations.

Context modes, narrow to wide:
- theme-focused (default): just the requested theme
- theme-expanded: plus every linked theme
- project-wide: every theme in the index

The engine auto-widens theme-focused to theme-expanded when the theme is
heavily connected (more than 2 linked themes or more than 5 shared files).
The report then says the mode was escalated — mention that to the user.
Pass force=true to pin the requested mode. Escalation never goes past the
requested mode's next step and never happens from theme-expanded upward.

When you hit an issue mid-work that smells cross-cutting (imports failing,
shared modules, boundaries), call ctx_assess with the current mode and a
description. It recommends at most one step up the ladder — re-run
ctx_load with the proposed mode if it does.

## TASKS AND SIDEQUESTS

- task_create once you and the user agree what to work on. Set theme so
  task_list can filter by it.
- Statuses move pending → in-progress → completed, with blocked as a
  detour from in-progress. Update via task_update_status as you go; other
  transitions are rejected.
- When an unrelated-but-necessary detour appears (a flaky test, a missing
  fixture), create a sidequest under the task instead of a second task.
  A task cannot complete while it has pending or in-progress sidequests —
  resolve them with sidequest_update_status (completed or abandoned) first.
- task_search finds old tasks by words in title or description; with no
  query it shows the newest ones.

## FLOWS

Flows track named phases of work on a theme (design, implementation,
testing — whatever the project uses). flow_track registers one; flow_status
reads them for a theme, or updates one when called with set=<status>.
Statuses: pending, in-progress, complete.

## ANALYSIS TOOLS

- project_discover categorizes every file (tests, documentation,
  config_files, build_files, data_files, source_files). Good first call in
  an unfamiliar project.
- file_analyze extracts one file's imports and exports (regex-based,
  best-effort).
- project_relationships maps the dependency graph: cycles, orphans,
  critical files, clusters. Run it before large refactors; it also stores
  per-file dependency links that file_impact reads later.
- file_impact scores how disruptive changing one file is (modification
  history + dependents + name shape). Check it before editing files you
  suspect are load-bearing, and load the affected themes it lists.
- git_state reports branch, head, worktree cleanliness and recently hot
  files, and notices branch switches between sessions.

## CONVENTIONS

- Long lists are capped and end with a "📊 Showing X of Y" footer — adjust
  your expectations, not the tool.
- Tool errors describe what you passed wrong; fix the arguments and retry.
- If the work-tracking tools (session_*, task_*, sidequest_*, flow_*) are
  missing from the tool list, persistent storage failed to initialize —
  analysis and context tools still work, but nothing is recorded.`
}

// projectName derives a human name for the project from its root directory.
func projectName(root string) string {
	base := filepath.Base(root)
	if base == "" || base == "." || base == string(os.PathSeparator) {
		return "project"
	}
	return base
}
