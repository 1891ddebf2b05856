// pattern: Imperative Shell

package git

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// CommandError carries the exit code and stderr of a failed git command.
type CommandError struct {
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("git %s failed (exit %d)", strings.Join(e.Args, " "), e.ExitCode)
	if e.Stderr != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Stderr)
	}
	return msg
}

// WorktreeEntry is one block of `git worktree list --porcelain` output.
type WorktreeEntry struct {
	Path     string
	Head     string
	Branch   string // short name, empty when detached or bare
	Detached bool
	Bare     bool
}

// FileStatus is one line of `git diff --name-status` output.
type FileStatus struct {
	Status string // A, M, D, R...
	Path   string
}

// Runner issues git commands against a single repository.
// Each exported method runs exactly one git subprocess and blocks until it
// terminates. Retry policy belongs to callers.
type Runner struct {
	dir string // repository directory, empty means process cwd
}

// NewRunner creates a Runner operating on the repository at dir.
func NewRunner(dir string) *Runner {
	return &Runner{dir: dir}
}

// Dir returns the repository directory the runner operates on.
func (r *Runner) Dir() string {
	return r.dir
}

// run executes git with the given args, returning stdout on success and a
// *CommandError on non-zero exit. The -C flag keeps the process cwd untouched.
func (r *Runner) run(args ...string) (string, error) {
	full := args
	if r.dir != "" {
		full = append([]string{"-C", r.dir}, args...)
	}
	cmd := exec.Command("git", full...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return "", &CommandError{
			Args:     args,
			ExitCode: code,
			Stderr:   strings.TrimSpace(stderr.String()),
		}
	}
	return stdout.String(), nil
}

// RunInteractive executes git with stdio inherited from the parent process.
// Used for mergetool and other commands that take over the terminal.
func (r *Runner) RunInteractive(args ...string) error {
	full := args
	if r.dir != "" {
		full = append([]string{"-C", r.dir}, args...)
	}
	cmd := exec.Command("git", full...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return &CommandError{Args: args, ExitCode: code}
	}
	return nil
}

// ListWorktrees parses `git worktree list --porcelain` into entries.
// Blocks are blank-line delimited; each entry corresponds to exactly one
// block, so no path appears twice unless git itself reports it twice.
func (r *Runner) ListWorktrees() ([]WorktreeEntry, error) {
	out, err := r.run("worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parseWorktreePorcelain(out), nil
}

func parseWorktreePorcelain(out string) []WorktreeEntry {
	var entries []WorktreeEntry
	var cur *WorktreeEntry

	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if line == "" {
			if cur != nil {
				entries = append(entries, *cur)
				cur = nil
			}
			continue
		}
		key, value, _ := strings.Cut(line, " ")
		switch key {
		case "worktree":
			if cur != nil {
				entries = append(entries, *cur)
			}
			cur = &WorktreeEntry{Path: value}
		case "HEAD":
			if cur != nil {
				cur.Head = value
			}
		case "branch":
			if cur != nil {
				cur.Branch = strings.TrimPrefix(value, "refs/heads/")
			}
		case "detached":
			if cur != nil {
				cur.Detached = true
			}
		case "bare":
			if cur != nil {
				cur.Bare = true
			}
		}
	}
	if cur != nil {
		entries = append(entries, *cur)
	}
	return entries
}

// ConfigGet returns the value of a git config key.
// A missing key is an error (git exits 1).
func (r *Runner) ConfigGet(key string) (string, error) {
	out, err := r.run("config", key)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// ConfigSet sets a git config key in the repository's local config.
func (r *Runner) ConfigSet(key, value string) error {
	_, err := r.run("config", key, value)
	return err
}

// BranchExists reports whether a local branch ref exists.
func (r *Runner) BranchExists(name string) bool {
	_, err := r.run("show-ref", "--verify", "--quiet", "refs/heads/"+name)
	return err == nil
}

// CreateBranch creates a branch pointing at the given start ref.
func (r *Runner) CreateBranch(name, at string) error {
	_, err := r.run("branch", name, at)
	return err
}

// DeleteBranch force-deletes a branch.
func (r *Runner) DeleteBranch(name string) error {
	_, err := r.run("branch", "-D", name)
	return err
}

// Checkout switches the working tree to the given branch.
func (r *Runner) Checkout(branch string) error {
	_, err := r.run("checkout", branch)
	return err
}

// Merge merges branch into the current branch, always creating a merge
// commit. Fast-forward is disabled to preserve branch topology.
func (r *Runner) Merge(branch string) (string, error) {
	return r.run("merge", branch, "--no-ff")
}

// MergeAbort aborts an in-progress merge.
func (r *Runner) MergeAbort() error {
	_, err := r.run("merge", "--abort")
	return err
}

// MergeInProgress reports whether the repository has an unfinished merge.
// MERGE_HEAD exists exactly while a merge is stopped on conflicts.
func (r *Runner) MergeInProgress() bool {
	_, err := r.run("rev-parse", "-q", "--verify", "MERGE_HEAD")
	return err == nil
}

// UnmergedFiles returns the paths that still carry conflict markers.
func (r *Runner) UnmergedFiles() ([]string, error) {
	out, err := r.run("diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// CommitNoEdit concludes a conflicted merge with the prepared merge message.
func (r *Runner) CommitNoEdit() error {
	_, err := r.run("commit", "--no-edit")
	return err
}

// ResetHard resets the current branch and working tree to the given ref.
func (r *Runner) ResetHard(ref string) error {
	_, err := r.run("reset", "--hard", ref)
	return err
}

// LogRange returns a one-line graph log for revRange (e.g. "main..feature").
func (r *Runner) LogRange(revRange string) (string, error) {
	return r.run("log", revRange, "--oneline", "--graph")
}

// DiffNameStatus returns the file changes for revRange (e.g. "main...feature").
func (r *Runner) DiffNameStatus(revRange string) ([]FileStatus, error) {
	out, err := r.run("diff", revRange, "--name-status")
	if err != nil {
		return nil, err
	}
	var changes []FileStatus
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		status, path, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		changes = append(changes, FileStatus{Status: status, Path: path})
	}
	return changes, nil
}

// Diff returns the full working-tree diff.
func (r *Runner) Diff() (string, error) {
	return r.run("diff")
}

// AheadCount returns the number of commits on branch that are not on parent.
func (r *Runner) AheadCount(parent, branch string) (int, error) {
	out, err := r.run("rev-list", "--count", parent+".."+branch)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("parsing rev-list count %q: %w", strings.TrimSpace(out), err)
	}
	return n, nil
}

// MergedBranches returns branches fully merged into the current branch.
// The current-branch marker is stripped; trunk branches are NOT filtered
// here, that policy belongs to callers.
func (r *Runner) MergedBranches() ([]string, error) {
	out, err := r.run("branch", "--merged")
	if err != nil {
		return nil, err
	}
	var branches []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		name := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "*"))
		if name != "" {
			branches = append(branches, name)
		}
	}
	return branches, nil
}

// Push pushes the current branch to its upstream.
func (r *Runner) Push() (string, error) {
	return r.run("push")
}

// AddWorktree creates a worktree at path on a new branch starting at base.
// An empty base starts the branch at HEAD.
func (r *Runner) AddWorktree(path, branch, base string) error {
	args := []string{"worktree", "add", path, "-b", branch}
	if base != "" {
		args = append(args, base)
	}
	_, err := r.run(args...)
	return err
}

// RemoveWorktree removes the worktree at path.
func (r *Runner) RemoveWorktree(path string, force bool) error {
	args := []string{"worktree", "remove", path}
	if force {
		args = append(args, "--force")
	}
	_, err := r.run(args...)
	return err
}

// Mergetool launches the configured merge tool on the terminal.
func (r *Runner) Mergetool() error {
	return r.RunInteractive("mergetool")
}

// CurrentBranch returns the short name of the checked-out branch,
// or "HEAD" when detached.
func (r *Runner) CurrentBranch() (string, error) {
	out, err := r.run("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// TopLevel returns the root of the working tree containing dir.
func (r *Runner) TopLevel() (string, error) {
	out, err := r.run("rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
