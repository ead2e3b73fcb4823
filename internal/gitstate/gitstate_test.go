package gitstate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// newTestRepo initializes a repository with one committed file and returns
// its root plus the worktree for follow-up commits.
func newTestRepo(t *testing.T) (string, *gogit.Worktree) {
	t.Helper()
	root := t.TempDir()

	repo, err := gogit.PlainInit(root, false)
	if err != nil {
		t.Fatalf("PlainInit failed: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree failed: %v", err)
	}

	commitFile(t, wt, root, "main.py", "print('hello')\n", "initial commit")
	return root, wt
}

func commitFile(t *testing.T, wt *gogit.Worktree, root, name, content, msg string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := wt.Add(name); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	_, err := wt.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
}

// --- Open ---

func TestOpen_NotARepo(t *testing.T) {
	_, err := Open(t.TempDir())
	if !errors.Is(err, ErrNoRepository) {
		t.Fatalf("Open should wrap ErrNoRepository, got: %v", err)
	}
}

// --- Snapshot ---

func TestSnapshot_CleanRepo(t *testing.T) {
	root, _ := newTestRepo(t)

	repo, err := Open(root)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	state, err := repo.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	if state.Branch != "master" && state.Branch != "main" {
		t.Errorf("Branch = %q, want default branch", state.Branch)
	}
	if len(state.Head) != 12 {
		t.Errorf("Head = %q, want 12-char short hash", state.Head)
	}
	if state.Dirty {
		t.Error("fresh commit should leave a clean worktree")
	}
	if state.Detached {
		t.Error("default checkout should not be detached")
	}
}

func TestSnapshot_DirtyWorktree(t *testing.T) {
	root, _ := newTestRepo(t)
	if err := os.WriteFile(filepath.Join(root, "untracked.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	repo, err := Open(root)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	state, err := repo.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if !state.Dirty {
		t.Error("untracked file should mark the worktree dirty")
	}
}

func TestSnapshot_EmptyRepo(t *testing.T) {
	root := t.TempDir()
	if _, err := gogit.PlainInit(root, false); err != nil {
		t.Fatalf("PlainInit failed: %v", err)
	}

	repo, err := Open(root)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	state, err := repo.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot on empty repo should degrade, got: %v", err)
	}
	if state.Head != "" || state.Branch != "" {
		t.Errorf("empty repo should have no head/branch, got %+v", state)
	}
}

// --- CommitCounts ---

func TestCommitCounts_CountsTouches(t *testing.T) {
	root, wt := newTestRepo(t)
	commitFile(t, wt, root, "main.py", "print('v2')\n", "tweak main")
	commitFile(t, wt, root, "util.py", "x = 1\n", "add util")

	repo, err := Open(root)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	counts, err := repo.CommitCounts(0)
	if err != nil {
		t.Fatalf("CommitCounts failed: %v", err)
	}

	if counts["main.py"] != 2 {
		t.Errorf("main.py touches = %d, want 2", counts["main.py"])
	}
	if counts["util.py"] != 1 {
		t.Errorf("util.py touches = %d, want 1", counts["util.py"])
	}
}

func TestCommitCounts_BoundedWalk(t *testing.T) {
	root, wt := newTestRepo(t)
	commitFile(t, wt, root, "main.py", "print('v2')\n", "second")
	commitFile(t, wt, root, "main.py", "print('v3')\n", "third")

	repo, err := Open(root)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	counts, err := repo.CommitCounts(1)
	if err != nil {
		t.Fatalf("CommitCounts failed: %v", err)
	}
	if counts["main.py"] != 1 {
		t.Errorf("bounded walk counted %d, want 1", counts["main.py"])
	}
}
