// pattern: Imperative Shell

// Package merge implements the worktree merge pipeline: backup the parent
// branch, check it out, merge with a forced merge commit, resolve or roll
// back on conflict, then clean up and push. Every mutating step happens
// after a backup ref exists, and every failure path either completes the
// merge or restores the parent branch from that backup.
package merge

import (
	"errors"
	"fmt"
	"time"

	"devflow/internal/git"
	"devflow/internal/logging"
	"devflow/internal/report"
	"devflow/internal/worktree"
)

// ErrDeclined is returned when the user declines the preview confirmation.
var ErrDeclined = errors.New("merge declined")

// ErrAborted is returned when the user aborts conflict resolution.
// The parent branch has been rolled back to the backup ref.
var ErrAborted = errors.New("merge aborted and rolled back")

// State tracks a merge operation through its lifecycle.
type State int

const (
	StateInitiated State = iota
	StateBackedUp
	StateCheckedOut
	StateMerged
	StateConflicted
	StateResolving
	StateCompleted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateInitiated:
		return "initiated"
	case StateBackedUp:
		return "backed-up"
	case StateCheckedOut:
		return "checked-out"
	case StateMerged:
		return "merged"
	case StateConflicted:
		return "conflicted"
	case StateResolving:
		return "resolving"
	case StateCompleted:
		return "completed"
	case StateRolledBack:
		return "rolled-back"
	default:
		return "unknown"
	}
}

// Resolution is a conflict-handling choice supplied by the Interactor.
type Resolution int

const (
	ResolveMergeTool Resolution = iota // launch the configured merge tool
	ResolveManual                      // hand off to an interactive shell
	ResolveAbort                       // abort the merge and roll back
	ResolveShowDiff                    // print conflict details, stay in loop
)

// Interactor supplies the decisions the pipeline needs. The CLI provides a
// terminal-backed implementation; tests and batch callers provide scripted
// ones. The conflict loop runs until ResolveAbort or a confirmed, fully
// committed resolution.
type Interactor interface {
	// Confirm asks a yes/no question.
	Confirm(prompt string) bool
	// ChooseResolution picks the next conflict-handling step.
	ChooseResolution(conflicted []string) Resolution
	// OpenShell hands the terminal to the user in dir for manual resolution.
	OpenShell(dir string) error
}

// Options control the optional pipeline steps.
type Options struct {
	Cleanup bool
	Preview bool
	Push    bool
}

// Operation records one merge attempt. It is owned by the engine for the
// duration of a Merge call and discarded afterwards; only the repository
// keeps durable state.
type Operation struct {
	SourceBranch    string
	TargetBranch    string
	BackupRef       string
	State           State
	ConflictedFiles []string
}

// Config holds engine settings.
type Config struct {
	// StrictBackup aborts the merge when the backup ref cannot be created.
	// When false, the merge proceeds anyway and rollback is attempted
	// against the recorded name regardless.
	StrictBackup bool
}

// Engine executes merge operations sequentially. Merges mutate the shared
// parent branch checkout, so callers must not run two merges concurrently.
type Engine struct {
	git    *git.Runner
	topo   *worktree.Topology
	rep    report.Reporter
	logger *logging.ScopedLogger
	cfg    Config
}

// New creates a merge engine.
func New(g *git.Runner, topo *worktree.Topology, rep report.Reporter, logger *logging.ScopedLogger, cfg Config) *Engine {
	return &Engine{git: g, topo: topo, rep: rep, logger: logger, cfg: cfg}
}

// Merge merges branch into its resolved parent. See Options for the
// optional steps. With Options.Preview the call is read-only: it shows the
// pending commits and file changes, asks for confirmation, and returns
// before the merge step regardless of the answer — the caller re-invokes
// without Preview to actually merge.
func (e *Engine) Merge(branch string, opts Options, in Interactor) (*Operation, error) {
	op := &Operation{SourceBranch: branch, State: StateInitiated}

	wt, err := e.topo.Find(branch)
	if err != nil {
		e.rep.Errorf("Branch %s not found in worktrees", branch)
		return op, err
	}
	parent, err := e.topo.ParentBranch(wt)
	if err != nil {
		e.rep.Errorf("Cannot determine parent branch for %s", branch)
		return op, err
	}
	op.TargetBranch = parent

	if opts.Preview {
		return op, e.preview(op, in)
	}

	op.BackupRef = fmt.Sprintf("backup/%s-%s", branch, time.Now().Format("20060102-150405"))
	if err := e.git.CreateBranch(op.BackupRef, parent); err != nil {
		if e.cfg.StrictBackup {
			e.rep.Errorf("Failed to create backup %s: %v", op.BackupRef, err)
			return op, fmt.Errorf("creating backup ref: %w", err)
		}
		e.rep.Warnf("Could not create backup %s: %v", op.BackupRef, err)
	}
	op.State = StateBackedUp
	e.rep.Infof("📁 Created backup: %s", op.BackupRef)
	e.logger.Info("backup created", "ref", op.BackupRef, "branch", branch, "parent", parent)

	e.rep.Infof("Merging %s into %s...", branch, parent)

	if err := e.git.Checkout(parent); err != nil {
		// Nothing mutated past the backup ref; leave it in place and abort.
		e.rep.Errorf("Failed to checkout %s: %v", parent, err)
		return op, fmt.Errorf("checking out %s: %w", parent, err)
	}
	op.State = StateCheckedOut

	if _, err := e.git.Merge(branch); err != nil {
		// Conflict state is detected from the repository itself
		// (MERGE_HEAD present), not from command output.
		if e.git.MergeInProgress() {
			files, ferr := e.git.UnmergedFiles()
			if ferr != nil {
				e.logger.Warn("listing unmerged files failed", "error", ferr)
			}
			op.ConflictedFiles = files
			op.State = StateConflicted
			return op, e.resolveConflicts(op, wt, opts, in)
		}
		e.rep.Errorf("Merge failed: %v", err)
		e.rollback(op)
		return op, fmt.Errorf("merging %s: %w", branch, err)
	}
	op.State = StateMerged
	e.rep.Successf("Successfully merged %s into %s", branch, parent)
	e.logger.Info("merge complete", "branch", branch, "parent", parent)

	e.finish(op, wt, opts)
	return op, nil
}

// finish runs the post-merge steps shared by the clean and resolved-conflict
// paths: optional cleanup, optional push, backup deletion.
func (e *Engine) finish(op *Operation, wt worktree.Worktree, opts Options) {
	if opts.Cleanup {
		e.Cleanup(wt, op.SourceBranch)
	}

	if opts.Push {
		if _, err := e.git.Push(); err != nil {
			e.rep.Warnf("Failed to push changes: %v", err)
		} else {
			e.rep.Successf("Changes pushed to remote")
		}
	} else {
		e.rep.Infof("💾 Changes merged locally. Use 'git push' to push to remote")
	}

	if err := e.git.DeleteBranch(op.BackupRef); err != nil {
		e.logger.Warn("backup deletion failed", "ref", op.BackupRef, "error", err)
	}
	op.State = StateCompleted
}

// Cleanup removes the worktree directory and deletes the branch after a
// merge. The two steps are independently best-effort: a failure in one is
// reported as a warning and does not block the other. Returned errors let
// batch callers collect partial failures.
func (e *Engine) Cleanup(wt worktree.Worktree, branch string) []error {
	var failures []error

	if err := e.git.RemoveWorktree(wt.Path, true); err != nil {
		e.rep.Warnf("Could not remove worktree: %v", err)
		failures = append(failures, fmt.Errorf("removing worktree %s: %w", wt.Path, err))
	} else {
		e.rep.Successf("Removed worktree: %s", wt.Name)
	}

	if err := e.git.DeleteBranch(branch); err != nil {
		e.rep.Warnf("Could not delete branch: %v", err)
		failures = append(failures, fmt.Errorf("deleting branch %s: %w", branch, err))
	} else {
		e.rep.Successf("Deleted branch: %s", branch)
	}

	return failures
}

// preview shows the commits and file changes a merge would bring in and
// asks for confirmation. No mutation happens on any path through here.
func (e *Engine) preview(op *Operation, in Interactor) error {
	e.rep.Infof("📋 Merge Preview: %s → %s", op.SourceBranch, op.TargetBranch)

	commits, err := e.git.LogRange(op.TargetBranch + ".." + op.SourceBranch)
	if err != nil {
		e.rep.Errorf("Error showing preview: %v", err)
		return fmt.Errorf("preview log: %w", err)
	}
	if commits == "" {
		e.rep.Infof("No commits to merge")
		return nil
	}
	e.rep.Infof("📝 Commits to be merged:\n%s", commits)

	changes, err := e.git.DiffNameStatus(op.TargetBranch + "..." + op.SourceBranch)
	if err == nil && len(changes) > 0 {
		e.rep.Infof("📁 Files that will be changed:")
		for _, c := range changes {
			e.rep.Infof("%s %s", c.Status, c.Path)
		}
	}

	if !in.Confirm("Proceed with merge?") {
		e.rep.Infof("Merge cancelled")
		return ErrDeclined
	}
	return nil
}

// resolveConflicts drives the conflict-resolution loop. It returns only
// once the repository is clean: either the merge is fully committed with no
// unmerged paths, or it has been aborted and rolled back to the backup.
func (e *Engine) resolveConflicts(op *Operation, wt worktree.Worktree, opts Options, in Interactor) error {
	e.rep.Errorf("⚠️  Merge conflicts detected")
	if len(op.ConflictedFiles) > 0 {
		e.rep.Infof("📁 Files with conflicts:")
		for _, f := range op.ConflictedFiles {
			e.rep.Infof("  ⚔️ %s", f)
		}
	}
	e.logger.Warn("merge conflict", "branch", op.SourceBranch, "parent", op.TargetBranch, "files", len(op.ConflictedFiles))

	for {
		op.State = StateResolving

		switch in.ChooseResolution(op.ConflictedFiles) {
		case ResolveMergeTool:
			if err := e.git.Mergetool(); err != nil {
				e.rep.Warnf("Merge tool not configured or failed")
				continue
			}
			if !in.Confirm("Conflicts resolved? Ready to commit?") {
				continue
			}
			if e.completeResolution(op, wt, opts) {
				return nil
			}

		case ResolveManual:
			e.rep.Infof("📝 Manual Resolution Steps:")
			e.rep.Infof("1. Edit conflicted files to resolve conflicts")
			e.rep.Infof("2. Remove conflict markers (<<<<<<, ======, >>>>>>)")
			e.rep.Infof("3. git add <resolved-files>")
			e.rep.Infof("4. git commit")
			if in.Confirm("Open shell for manual resolution?") {
				e.rep.Infof("Opening shell. Exit when conflicts are resolved.")
				if err := in.OpenShell(e.git.Dir()); err != nil {
					e.rep.Warnf("Shell exited with error: %v", err)
				}
			}
			if !in.Confirm("Conflicts resolved and committed?") {
				continue
			}
			if e.completeResolution(op, wt, opts) {
				return nil
			}

		case ResolveAbort:
			// Ignore abort errors: the merge may already have been
			// concluded by hand, rollback restores the parent either way.
			_ = e.git.MergeAbort()
			e.rollback(op)
			return ErrAborted

		case ResolveShowDiff:
			diff, err := e.git.Diff()
			if err == nil && diff != "" {
				if len(diff) > 2000 {
					diff = diff[:2000] + "\n... (output truncated)"
				}
				e.rep.Infof("📋 Conflict Details:\n%s", diff)
			}
		}
	}
}

// completeResolution verifies the conflict has actually been resolved and
// concludes the merge. Reports and returns false when unmerged paths remain.
func (e *Engine) completeResolution(op *Operation, wt worktree.Worktree, opts Options) bool {
	files, err := e.git.UnmergedFiles()
	if err == nil && len(files) > 0 {
		e.rep.Warnf("Conflicts still exist. Please resolve them.")
		op.ConflictedFiles = files
		return false
	}

	if e.git.MergeInProgress() {
		if err := e.git.CommitNoEdit(); err != nil {
			e.rep.Warnf("Commit failed: %v", err)
			return false
		}
	}

	op.State = StateMerged
	e.rep.Successf("Merge completed successfully")
	e.logger.Info("conflict resolved", "branch", op.SourceBranch, "parent", op.TargetBranch)
	e.finish(op, wt, opts)
	return true
}

// rollback restores the parent branch from the backup ref and deletes the
// backup. A failed rollback keeps the backup ref and prints the manual
// recovery command; it is never silently swallowed.
func (e *Engine) rollback(op *Operation) {
	e.rep.Infof("🔄 Rolling back merge...")

	if err := e.git.ResetHard(op.BackupRef); err != nil {
		e.rep.Warnf("Rollback failed: %v", err)
		e.rep.Warnf("Manual rollback: git reset --hard %s", op.BackupRef)
		e.logger.Error("rollback failed", "ref", op.BackupRef, "error", err)
		return
	}

	e.rep.Successf("Rollback complete. Restored to %s", op.BackupRef)
	e.logger.Info("rolled back", "ref", op.BackupRef)

	if err := e.git.DeleteBranch(op.BackupRef); err != nil {
		e.logger.Warn("backup deletion failed", "ref", op.BackupRef, "error", err)
	}
	op.State = StateRolledBack
}
