// Package gitstate reads branch and history facts from the project's Git
// repository. It is read-only: tapestry records what the repo looks like but
// never writes to it.
package gitstate

import (
	"errors"
	"fmt"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// ErrNoRepository is returned when the project root is not a git repository.
var ErrNoRepository = errors.New("not a git repository")

// BranchState is a point-in-time snapshot of the checked-out branch.
type BranchState struct {
	Branch   string `json:"branch"`
	Head     string `json:"head"`
	Dirty    bool   `json:"dirty"`
	Detached bool   `json:"detached"`
}

// Repo wraps a go-git repository for the read operations tapestry needs.
type Repo struct {
	repo *gogit.Repository
}

// Open opens the repository at workDir. Returns ErrNoRepository when the
// directory is not under version control.
func Open(workDir string) (*Repo, error) {
	r, err := gogit.PlainOpen(workDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoRepository, err)
	}
	return &Repo{repo: r}, nil
}

// Snapshot captures the current branch, HEAD hash and worktree dirtiness.
// A freshly initialized repository with no commits yields an empty branch
// and head rather than an error.
func (r *Repo) Snapshot() (*BranchState, error) {
	state := &BranchState{}

	head, err := r.repo.Head()
	switch {
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		// No commits yet; branch facts are simply absent.
	case err != nil:
		return nil, fmt.Errorf("getting HEAD: %w", err)
	default:
		state.Head = head.Hash().String()[:12]
		if head.Name().IsBranch() {
			state.Branch = head.Name().Short()
		} else {
			state.Detached = true
		}
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("getting worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("getting status: %w", err)
	}
	state.Dirty = !status.IsClean()
	return state, nil
}

// CommitCounts walks up to maxCommits of recent history and counts how many
// commits touched each file. Paths are repository-relative, slash-separated.
// Commits whose stats cannot be computed are skipped; the counts are a
// modification-frequency heuristic, not an audit.
func (r *Repo) CommitCounts(maxCommits int) (map[string]int, error) {
	counts := make(map[string]int)

	iter, err := r.repo.Log(&gogit.LogOptions{})
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return counts, nil
		}
		return nil, fmt.Errorf("reading log: %w", err)
	}

	seen := 0
	err = iter.ForEach(func(c *object.Commit) error {
		if maxCommits > 0 && seen >= maxCommits {
			return storer.ErrStop
		}
		seen++

		stats, err := c.Stats()
		if err != nil {
			return nil
		}
		for _, fs := range stats {
			counts[fs.Name]++
		}
		return nil
	})
	if err != nil && !errors.Is(err, storer.ErrStop) {
		return nil, fmt.Errorf("walking history: %w", err)
	}
	return counts, nil
}
