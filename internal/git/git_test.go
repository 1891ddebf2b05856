package git

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// requireGit skips the test when no git binary is available.
func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

// initRepo creates a disposable repository with one commit on main.
func initRepo(t *testing.T) *Runner {
	t.Helper()
	requireGit(t)

	dir := t.TempDir()
	r := NewRunner(dir)
	for _, args := range [][]string{
		{"init", "-b", "main"},
		{"config", "user.email", "test@example.com"},
		{"config", "user.name", "Test"},
	} {
		if _, err := r.run(args...); err != nil {
			t.Fatalf("git %v: %v", args, err)
		}
	}
	commitFile(t, r, "README.md", "hello\n", "initial commit")
	return r
}

// commitFile writes a file in the runner's directory and commits it.
func commitFile(t *testing.T, r *Runner, name, content, message string) {
	t.Helper()
	path := filepath.Join(r.Dir(), name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := r.run("add", name); err != nil {
		t.Fatalf("git add: %v", err)
	}
	if _, err := r.run("commit", "-m", message); err != nil {
		t.Fatalf("git commit: %v", err)
	}
}

func TestParseWorktreePorcelain(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []WorktreeEntry
	}{
		{
			name: "single worktree",
			in:   "worktree /repo\nHEAD abc123\nbranch refs/heads/main\n",
			want: []WorktreeEntry{{Path: "/repo", Head: "abc123", Branch: "main"}},
		},
		{
			name: "multiple blocks",
			in: "worktree /repo\nHEAD abc\nbranch refs/heads/main\n\n" +
				"worktree /repo/worktrees/feat\nHEAD def\nbranch refs/heads/feat\n",
			want: []WorktreeEntry{
				{Path: "/repo", Head: "abc", Branch: "main"},
				{Path: "/repo/worktrees/feat", Head: "def", Branch: "feat"},
			},
		},
		{
			name: "detached",
			in:   "worktree /repo/wt\nHEAD abc\ndetached\n",
			want: []WorktreeEntry{{Path: "/repo/wt", Head: "abc", Detached: true}},
		},
		{
			name: "bare",
			in:   "worktree /repo.git\nbare\n",
			want: []WorktreeEntry{{Path: "/repo.git", Bare: true}},
		},
		{
			name: "empty",
			in:   "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseWorktreePorcelain(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d entries, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("entry %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseWorktreePorcelain_NoDuplicatePaths(t *testing.T) {
	in := "worktree /a\nHEAD x\nbranch refs/heads/a\n\n" +
		"worktree /b\nHEAD y\nbranch refs/heads/b\n\n" +
		"worktree /c\nHEAD z\ndetached\n"
	got := parseWorktreePorcelain(in)
	seen := make(map[string]int)
	for _, e := range got {
		seen[e.Path]++
	}
	for path, n := range seen {
		if n != 1 {
			t.Errorf("path %q parsed %d times, want 1", path, n)
		}
	}
	if len(got) != 3 {
		t.Errorf("got %d entries, want 3", len(got))
	}
}

func TestListWorktrees(t *testing.T) {
	r := initRepo(t)

	wtPath := filepath.Join(r.Dir(), "worktrees", "feature-x")
	if err := r.AddWorktree(wtPath, "feature-x", ""); err != nil {
		t.Fatalf("AddWorktree: %v", err)
	}

	entries, err := r.ListWorktrees()
	if err != nil {
		t.Fatalf("ListWorktrees: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Branch != "main" {
		t.Errorf("first entry branch = %q, want main", entries[0].Branch)
	}
	if entries[1].Branch != "feature-x" {
		t.Errorf("second entry branch = %q, want feature-x", entries[1].Branch)
	}
	if entries[1].Head == "" {
		t.Error("worktree entry missing HEAD commit")
	}
}

func TestCommandError(t *testing.T) {
	r := initRepo(t)

	_, err := r.run("checkout", "does-not-exist")
	if err == nil {
		t.Fatal("expected error for checkout of missing branch")
	}
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("error type = %T, want *CommandError", err)
	}
	if cmdErr.ExitCode == 0 {
		t.Error("ExitCode = 0, want non-zero")
	}
	if cmdErr.Stderr == "" {
		t.Error("Stderr empty, want git's message")
	}
}

func TestBranchLifecycle(t *testing.T) {
	r := initRepo(t)

	if r.BranchExists("feature-y") {
		t.Fatal("feature-y should not exist yet")
	}
	if err := r.CreateBranch("feature-y", "main"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if !r.BranchExists("feature-y") {
		t.Fatal("feature-y should exist after CreateBranch")
	}
	if err := r.DeleteBranch("feature-y"); err != nil {
		t.Fatalf("DeleteBranch: %v", err)
	}
	if r.BranchExists("feature-y") {
		t.Fatal("feature-y should be gone after DeleteBranch")
	}
}

func TestAheadCount(t *testing.T) {
	r := initRepo(t)

	if err := r.CreateBranch("feature-z", "main"); err != nil {
		t.Fatal(err)
	}
	if err := r.Checkout("feature-z"); err != nil {
		t.Fatal(err)
	}
	commitFile(t, r, "a.txt", "a\n", "first")
	commitFile(t, r, "b.txt", "b\n", "second")

	n, err := r.AheadCount("main", "feature-z")
	if err != nil {
		t.Fatalf("AheadCount: %v", err)
	}
	if n != 2 {
		t.Errorf("AheadCount = %d, want 2", n)
	}

	n, err = r.AheadCount("feature-z", "main")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("reverse AheadCount = %d, want 0", n)
	}
}

func TestMergedBranches(t *testing.T) {
	r := initRepo(t)

	// A branch at the tip of main counts as merged.
	if err := r.CreateBranch("done", "main"); err != nil {
		t.Fatal(err)
	}

	branches, err := r.MergedBranches()
	if err != nil {
		t.Fatalf("MergedBranches: %v", err)
	}
	found := map[string]bool{}
	for _, b := range branches {
		found[b] = true
	}
	if !found["done"] {
		t.Errorf("merged branches %v missing %q", branches, "done")
	}
	if !found["main"] {
		t.Errorf("merged branches %v missing current branch", branches)
	}
}

func TestMergeNoFF(t *testing.T) {
	r := initRepo(t)

	if err := r.CreateBranch("topic", "main"); err != nil {
		t.Fatal(err)
	}
	if err := r.Checkout("topic"); err != nil {
		t.Fatal(err)
	}
	commitFile(t, r, "topic.txt", "x\n", "topic work")
	if err := r.Checkout("main"); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Merge("topic"); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	// --no-ff must create a merge commit even though fast-forward was possible.
	out, err := r.run("rev-list", "--merges", "--count", "HEAD")
	if err != nil {
		t.Fatal(err)
	}
	if got := out; got == "0\n" {
		t.Error("no merge commit created, fast-forward happened")
	}
}

func TestMergeConflictState(t *testing.T) {
	r := initRepo(t)

	commitFile(t, r, "shared.txt", "base\n", "add shared")
	if err := r.CreateBranch("clash", "main"); err != nil {
		t.Fatal(err)
	}
	if err := r.Checkout("clash"); err != nil {
		t.Fatal(err)
	}
	commitFile(t, r, "shared.txt", "branch version\n", "branch edit")
	if err := r.Checkout("main"); err != nil {
		t.Fatal(err)
	}
	commitFile(t, r, "shared.txt", "main version\n", "main edit")

	if _, err := r.Merge("clash"); err == nil {
		t.Fatal("expected conflicting merge to fail")
	}

	if !r.MergeInProgress() {
		t.Error("MergeInProgress = false during conflicted merge")
	}
	files, err := r.UnmergedFiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0] != "shared.txt" {
		t.Errorf("UnmergedFiles = %v, want [shared.txt]", files)
	}

	if err := r.MergeAbort(); err != nil {
		t.Fatalf("MergeAbort: %v", err)
	}
	if r.MergeInProgress() {
		t.Error("MergeInProgress = true after abort")
	}
}

func TestConfigRoundTrip(t *testing.T) {
	r := initRepo(t)

	key := "git-town.branch.feature.parent"
	if _, err := r.ConfigGet(key); err == nil {
		t.Fatal("expected error for unset key")
	}
	if err := r.ConfigSet(key, "main"); err != nil {
		t.Fatal(err)
	}
	got, err := r.ConfigGet(key)
	if err != nil {
		t.Fatal(err)
	}
	if got != "main" {
		t.Errorf("ConfigGet = %q, want main", got)
	}
}
