package merge

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"devflow/internal/git"
	"devflow/internal/logging"
	"devflow/internal/report"
	"devflow/internal/worktree"
)

// scriptedInteractor replays queued answers; the zero value aborts on the
// first conflict choice and declines every confirmation.
type scriptedInteractor struct {
	confirms    []bool
	resolutions []Resolution
	shellFn     func(dir string) error
}

func (s *scriptedInteractor) Confirm(string) bool {
	if len(s.confirms) == 0 {
		return false
	}
	answer := s.confirms[0]
	s.confirms = s.confirms[1:]
	return answer
}

func (s *scriptedInteractor) ChooseResolution([]string) Resolution {
	if len(s.resolutions) == 0 {
		return ResolveAbort
	}
	choice := s.resolutions[0]
	s.resolutions = s.resolutions[1:]
	return choice
}

func (s *scriptedInteractor) OpenShell(dir string) error {
	if s.shellFn != nil {
		return s.shellFn(dir)
	}
	return nil
}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func initRepo(t *testing.T) *git.Runner {
	t.Helper()
	requireGit(t)

	dir := t.TempDir()
	r := git.NewRunner(dir)
	mustGit(t, dir, "init", "-b", "main")
	mustGit(t, dir, "config", "user.email", "test@example.com")
	mustGit(t, dir, "config", "user.name", "Test")
	writeAndCommit(t, dir, "README.md", "hello\n", "initial commit")
	return r
}

func mustGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

func gitOut(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("git %v: %v", args, err)
	}
	return strings.TrimSpace(string(out))
}

func writeAndCommit(t *testing.T, dir, name, content, message string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	mustGit(t, dir, "add", name)
	mustGit(t, dir, "commit", "-m", message)
}

// addFeatureWorktree creates a worktree with one extra commit on branch.
func addFeatureWorktree(t *testing.T, r *git.Runner, branch string) string {
	t.Helper()
	wtPath, err := worktree.Create(r, r.Dir(), branch, "")
	if err != nil {
		t.Fatalf("creating worktree %s: %v", branch, err)
	}
	writeAndCommit(t, wtPath, branch+".txt", "work\n", "work on "+branch)
	return wtPath
}

func newEngine(t *testing.T, r *git.Runner, cfg Config) (*Engine, *report.Recorder) {
	t.Helper()
	rep := report.NewRecorder()
	topo := worktree.New(r, r.Dir())
	return New(r, topo, rep, logging.NopLogger(), cfg), rep
}

// backupBranches returns all backup/ refs.
func backupBranches(t *testing.T, dir string) []string {
	t.Helper()
	out := gitOut(t, dir, "branch", "--list", "backup/*", "--format", "%(refname:short)")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

func TestMerge_CleanWithCleanup(t *testing.T) {
	r := initRepo(t)
	wtPath := addFeatureWorktree(t, r, "feature-x")
	e, _ := newEngine(t, r, Config{StrictBackup: true})

	op, err := e.Merge("feature-x", Options{Cleanup: true}, &scriptedInteractor{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if op.State != StateCompleted {
		t.Errorf("state = %v, want completed", op.State)
	}
	if op.TargetBranch != "main" {
		t.Errorf("target = %q, want main", op.TargetBranch)
	}

	// The merge must be a merge commit, never a fast-forward.
	if n := gitOut(t, r.Dir(), "rev-list", "--merges", "--count", "main"); n != "1" {
		t.Errorf("merge commit count = %s, want 1", n)
	}
	// feature-x's work is on main.
	if _, err := os.Stat(filepath.Join(r.Dir(), "feature-x.txt")); err != nil {
		t.Error("feature-x.txt missing from main after merge")
	}
	// Backup deleted on success.
	if refs := backupBranches(t, r.Dir()); len(refs) != 0 {
		t.Errorf("backup refs remain: %v", refs)
	}
	// Cleanup removed the worktree and the branch.
	if _, err := os.Stat(wtPath); !os.IsNotExist(err) {
		t.Error("worktree directory still exists after cleanup")
	}
	if r.BranchExists("feature-x") {
		t.Error("feature-x branch still exists after cleanup")
	}
}

func TestMerge_PushFailureIsNonFatal(t *testing.T) {
	r := initRepo(t)
	addFeatureWorktree(t, r, "feature-p")
	e, rep := newEngine(t, r, Config{StrictBackup: true})

	// No remote configured: push fails but the merge still succeeds.
	op, err := e.Merge("feature-p", Options{Push: true}, &scriptedInteractor{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if op.State != StateCompleted {
		t.Errorf("state = %v, want completed", op.State)
	}
	var warned bool
	for _, line := range rep.Lines() {
		if strings.Contains(line, "Failed to push") {
			warned = true
		}
	}
	if !warned {
		t.Errorf("expected push warning, got %v", rep.Lines())
	}
}

func TestMerge_NotFound(t *testing.T) {
	r := initRepo(t)
	e, _ := newEngine(t, r, Config{StrictBackup: true})

	_, err := e.Merge("ghost", Options{}, &scriptedInteractor{})
	if !errors.Is(err, worktree.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestMerge_NoParent(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	r := git.NewRunner(dir)
	mustGit(t, dir, "init", "-b", "trunk")
	mustGit(t, dir, "config", "user.email", "test@example.com")
	mustGit(t, dir, "config", "user.name", "Test")
	writeAndCommit(t, dir, "README.md", "hi\n", "initial commit")
	wtPath, err := worktree.Create(r, dir, "orphan", "")
	if err != nil {
		t.Fatal(err)
	}
	writeAndCommit(t, wtPath, "o.txt", "o\n", "orphan work")

	// No git-town entry and no main/master: parent resolution must fail.
	e, _ := newEngine(t, r, Config{StrictBackup: true})
	_, err = e.Merge("orphan", Options{}, &scriptedInteractor{})
	if !errors.Is(err, worktree.ErrNoParent) {
		t.Errorf("error = %v, want ErrNoParent", err)
	}
}

func TestMerge_PreviewIsReadOnly(t *testing.T) {
	r := initRepo(t)
	addFeatureWorktree(t, r, "feature-v")
	e, _ := newEngine(t, r, Config{StrictBackup: true})

	before := gitOut(t, r.Dir(), "rev-parse", "main")

	// Accepted preview still returns before the merge step.
	op, err := e.Merge("feature-v", Options{Preview: true}, &scriptedInteractor{confirms: []bool{true}})
	if err != nil {
		t.Fatalf("Merge preview: %v", err)
	}
	if op.State != StateInitiated {
		t.Errorf("state = %v, want initiated", op.State)
	}
	if got := gitOut(t, r.Dir(), "rev-parse", "main"); got != before {
		t.Error("preview mutated main")
	}
	if refs := backupBranches(t, r.Dir()); len(refs) != 0 {
		t.Errorf("preview created backup refs: %v", refs)
	}

	// Declined preview reports ErrDeclined, still without mutation.
	_, err = e.Merge("feature-v", Options{Preview: true}, &scriptedInteractor{confirms: []bool{false}})
	if !errors.Is(err, ErrDeclined) {
		t.Errorf("error = %v, want ErrDeclined", err)
	}
	if got := gitOut(t, r.Dir(), "rev-parse", "main"); got != before {
		t.Error("declined preview mutated main")
	}
}

// conflictingSetup creates branch "clash" in a worktree editing the same
// file as a later commit on main.
func conflictingSetup(t *testing.T, r *git.Runner) string {
	t.Helper()
	writeAndCommit(t, r.Dir(), "shared.txt", "base\n", "add shared")
	wtPath, err := worktree.Create(r, r.Dir(), "clash", "")
	if err != nil {
		t.Fatal(err)
	}
	writeAndCommit(t, wtPath, "shared.txt", "branch version\n", "branch edit")
	writeAndCommit(t, r.Dir(), "shared.txt", "main version\n", "main edit")
	return wtPath
}

func TestMerge_ConflictAbortRollsBack(t *testing.T) {
	r := initRepo(t)
	conflictingSetup(t, r)
	e, _ := newEngine(t, r, Config{StrictBackup: true})

	before := gitOut(t, r.Dir(), "rev-parse", "main")

	// Show diff once to prove the loop continues, then abort.
	in := &scriptedInteractor{resolutions: []Resolution{ResolveShowDiff, ResolveAbort}}
	op, err := e.Merge("clash", Options{}, in)
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("error = %v, want ErrAborted", err)
	}
	if op.State != StateRolledBack {
		t.Errorf("state = %v, want rolled-back", op.State)
	}
	if len(op.ConflictedFiles) != 1 || op.ConflictedFiles[0] != "shared.txt" {
		t.Errorf("conflicted files = %v, want [shared.txt]", op.ConflictedFiles)
	}

	// Never left mid-conflict, fully restored, backup gone.
	if r.MergeInProgress() {
		t.Error("merge still in progress after abort")
	}
	if got := gitOut(t, r.Dir(), "rev-parse", "main"); got != before {
		t.Errorf("main = %s, want pre-merge %s", got, before)
	}
	if refs := backupBranches(t, r.Dir()); len(refs) != 0 {
		t.Errorf("backup refs remain after rollback: %v", refs)
	}
}

func TestMerge_ConflictManualResolve(t *testing.T) {
	r := initRepo(t)
	conflictingSetup(t, r)
	e, _ := newEngine(t, r, Config{StrictBackup: true})

	in := &scriptedInteractor{
		resolutions: []Resolution{ResolveManual},
		// Open shell? yes; resolved and committed? yes.
		confirms: []bool{true, true},
		shellFn: func(dir string) error {
			// Resolve the conflict the way a user in the shell would.
			if err := os.WriteFile(filepath.Join(dir, "shared.txt"), []byte("resolved\n"), 0644); err != nil {
				return err
			}
			cmd := exec.Command("git", "-C", dir, "add", "shared.txt")
			return cmd.Run()
		},
	}

	op, err := e.Merge("clash", Options{}, in)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if op.State != StateCompleted {
		t.Errorf("state = %v, want completed", op.State)
	}
	if r.MergeInProgress() {
		t.Error("merge still in progress after resolution")
	}
	data, err := os.ReadFile(filepath.Join(r.Dir(), "shared.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "resolved\n" {
		t.Errorf("shared.txt = %q, want resolved content", data)
	}
	if refs := backupBranches(t, r.Dir()); len(refs) != 0 {
		t.Errorf("backup refs remain after resolution: %v", refs)
	}
}

func TestMerge_ConflictResolutionLoopsWhileUnresolved(t *testing.T) {
	r := initRepo(t)
	conflictingSetup(t, r)
	e, rep := newEngine(t, r, Config{StrictBackup: true})

	in := &scriptedInteractor{
		// First manual attempt confirms completion without resolving;
		// the loop must detect remaining conflicts and come back around.
		resolutions: []Resolution{ResolveManual, ResolveAbort},
		confirms:    []bool{false, true}, // no shell, "resolved" claim
	}

	_, err := e.Merge("clash", Options{}, in)
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("error = %v, want ErrAborted after failed claim", err)
	}

	var stillConflicted bool
	for _, line := range rep.Lines() {
		if strings.Contains(line, "Conflicts still exist") {
			stillConflicted = true
		}
	}
	if !stillConflicted {
		t.Errorf("expected unresolved-conflict warning, got %v", rep.Lines())
	}
}

func TestCleanup_PartialFailureContinues(t *testing.T) {
	r := initRepo(t)
	e, rep := newEngine(t, r, Config{StrictBackup: true})

	// Worktree path doesn't exist, branch does: first step fails,
	// second still runs.
	mustGit(t, r.Dir(), "branch", "stray")
	failures := e.Cleanup(worktree.Worktree{Path: filepath.Join(r.Dir(), "worktrees", "gone"), Name: "gone"}, "stray")

	if len(failures) != 1 {
		t.Fatalf("failures = %v, want exactly one", failures)
	}
	if r.BranchExists("stray") {
		t.Error("stray branch should have been deleted despite worktree failure")
	}
	var warned bool
	for _, line := range rep.Lines() {
		if strings.Contains(line, "Could not remove worktree") {
			warned = true
		}
	}
	if !warned {
		t.Errorf("expected worktree warning, got %v", rep.Lines())
	}
}
