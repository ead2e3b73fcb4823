package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"tapestry/internal/gitstate"
	"tapestry/internal/store"
)

// SnapshotRecorder persists branch snapshots across sessions. Nil disables
// recording; the tool still reports live state.
type SnapshotRecorder interface {
	RecordBranchSnapshot(branch, head string, dirty bool) (int64, error)
	LatestBranchSnapshot() (*store.BranchSnapshot, error)
}

// GitStateTool handles the git_state MCP tool.
type GitStateTool struct {
	root      string
	snapshots SnapshotRecorder
}

// NewGitStateTool creates a GitStateTool.
func NewGitStateTool(root string, snapshots SnapshotRecorder) *GitStateTool {
	return &GitStateTool{root: root, snapshots: snapshots}
}

// Definition returns the MCP tool definition for git_state.
func (t *GitStateTool) Definition() mcp.Tool {
	return mcp.NewTool("git_state",
		mcp.WithDescription(
			"Report the repository's branch, head commit and worktree cleanliness, "+
				"plus the most frequently touched files in recent history. Each call "+
				"records a snapshot so branch switches between sessions are visible.",
		),
		mcp.WithNumber("max_commits",
			mcp.Description("Commits to walk for the hot-file report (default 200)"),
		),
	)
}

// Handle processes the git_state tool call.
func (t *GitStateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repo, err := gitstate.Open(t.root)
	if err != nil {
		if errors.Is(err, gitstate.ErrNoRepository) {
			return mcp.NewToolResultText(
				"Not a Git repository — no branch state to report.\n\n" +
					"Initialize one with `git init` to let tapestry track branch switches " +
					"and file modification history.",
			), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to open repository: %v", err)), nil
	}

	state, err := repo.Snapshot()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read branch state: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString("## Git State\n\n")
	if state.Branch == "" && state.Head == "" {
		sb.WriteString("Repository has no commits yet.\n")
		return mcp.NewToolResultText(sb.String()), nil
	}

	sb.WriteString(fmt.Sprintf("- **Branch**: %s\n", branchLabel(state)))
	sb.WriteString(fmt.Sprintf("- **Head**: %s\n", state.Head))
	if state.Dirty {
		sb.WriteString("- **Worktree**: dirty (uncommitted changes)\n")
	} else {
		sb.WriteString("- **Worktree**: clean\n")
	}

	t.compareWithLastSnapshot(&sb, state)

	maxCommits := intArg(req, "max_commits", 200)
	if counts, err := repo.CommitCounts(maxCommits); err == nil && len(counts) > 0 {
		sb.WriteString(fmt.Sprintf("\n### Hot Files (last %d commits)\n\n", maxCommits))
		for _, line := range topCounts(counts, 10) {
			sb.WriteString(line)
		}
	}

	return mcp.NewToolResultText(sb.String()), nil
}

// compareWithLastSnapshot notes a branch switch since the previous call and
// records the new snapshot. Best-effort: a missing or failing store only
// drops the comparison.
func (t *GitStateTool) compareWithLastSnapshot(sb *strings.Builder, state *gitstate.BranchState) {
	if t.snapshots == nil {
		return
	}

	last, err := t.snapshots.LatestBranchSnapshot()
	if err == nil && last != nil && last.Branch != state.Branch {
		sb.WriteString(fmt.Sprintf("- **Note**: branch changed since last snapshot (%s → %s)\n",
			last.Branch, state.Branch))
	}
	_, _ = t.snapshots.RecordBranchSnapshot(state.Branch, state.Head, state.Dirty)
}

func branchLabel(state *gitstate.BranchState) string {
	if state.Detached {
		return fmt.Sprintf("(detached at %s)", state.Head)
	}
	return state.Branch
}

// topCounts renders the n most-touched files, ties broken by path.
func topCounts(counts map[string]int, n int) []string {
	type entry struct {
		path  string
		count int
	}
	entries := make([]entry, 0, len(counts))
	for path, count := range counts {
		entries = append(entries, entry{path, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].path < entries[j].path
	})
	if len(entries) > n {
		entries = entries[:n]
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("- %s (%d)\n", e.path, e.count))
	}
	return lines
}
