// pattern: Functional Core

package worktree

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"devflow/internal/git"
)

// Defaults for Layout fields left empty.
const (
	DefaultTrunk        = "main"
	DefaultContextDir   = ".context"
	DefaultWorktreesDir = "worktrees"
)

// ContextDir is the default per-worktree directory holding issue context
// files. Kept as a named constant because callers outside this package
// reference the convention directly.
const ContextDir = DefaultContextDir

// Layout describes the repository conventions a Topology navigates by:
// the configured trunk branch, the per-worktree context directory, and
// the directory worktrees nest under. Zero values fall back to the
// defaults above.
type Layout struct {
	Trunk        string
	ContextDir   string
	WorktreesDir string
}

func (l Layout) withDefaults() Layout {
	if l.Trunk == "" {
		l.Trunk = DefaultTrunk
	}
	if l.ContextDir == "" {
		l.ContextDir = DefaultContextDir
	}
	if l.WorktreesDir == "" {
		l.WorktreesDir = DefaultWorktreesDir
	}
	return l
}

// ErrNoParent is returned when no parent branch can be resolved for a
// worktree: no git-town entry and neither trunk branch exists.
var ErrNoParent = errors.New("no parent branch resolvable")

// ErrNotFound is returned when no worktree matches a requested branch.
var ErrNotFound = errors.New("worktree not found")

// Worktree is an immutable snapshot of one worktree. Children holds the
// names of worktrees nested one level below this one, back-references only.
type Worktree struct {
	Path       string
	Name       string
	Branch     string // empty when detached
	Head       string
	Detached   bool
	IsCurrent  bool
	HasContext bool
	Issue      string // parsed from a context file name, empty when absent
	Children   []string
}

// Topology builds worktree snapshots from git metadata. Every List call
// produces a fresh snapshot; records are never mutated in place.
type Topology struct {
	git    *git.Runner
	cwd    string
	layout Layout
}

// New creates a Topology over the given repository with the default layout.
// cwd is the process working directory, compared verbatim against worktree
// paths to derive the current-worktree flag (no symlink resolution).
func New(g *git.Runner, cwd string) *Topology {
	return NewWithLayout(g, cwd, Layout{})
}

// NewWithLayout creates a Topology using the given repository conventions.
func NewWithLayout(g *git.Runner, cwd string, layout Layout) *Topology {
	return &Topology{git: g, cwd: cwd, layout: layout.withDefaults()}
}

// IsTrunk reports whether branch is the configured trunk or one of the
// conventional trunk names. Trunk branches never qualify for merge,
// cleanup, or shipping.
func (t *Topology) IsTrunk(branch string) bool {
	for _, trunk := range t.trunks() {
		if branch == trunk {
			return true
		}
	}
	return false
}

// trunks returns the trunk probe order: the configured trunk first, then
// the conventional names, deduplicated.
func (t *Topology) trunks() []string {
	names := []string{t.layout.Trunk}
	for _, fallback := range []string{"main", "master"} {
		if fallback != t.layout.Trunk {
			names = append(names, fallback)
		}
	}
	return names
}

// List returns all worktrees in the order git reports them, annotated with
// name, current flag, context issue, and nested children. The root worktree
// (the first entry) is named "main" regardless of its directory name.
func (t *Topology) List() ([]Worktree, error) {
	entries, err := t.git.ListWorktrees()
	if err != nil {
		return nil, fmt.Errorf("listing worktrees: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	rootPath := entries[0].Path

	worktrees := make([]Worktree, 0, len(entries))
	for _, e := range entries {
		wt := Worktree{
			Path:      e.Path,
			Branch:    e.Branch,
			Head:      e.Head,
			Detached:  e.Detached,
			IsCurrent: e.Path == t.cwd,
		}
		if e.Path == rootPath {
			wt.Name = "main"
		} else {
			wt.Name = filepath.Base(e.Path)
		}
		wt.HasContext, wt.Issue = scanContext(e.Path, t.layout.ContextDir)
		worktrees = append(worktrees, wt)
	}

	// Children index: grandparent path -> names in listing order. A worktree
	// at <parent>/worktrees/<name> is a child of <parent>. The root worktree
	// keeps an empty child list; its nested worktrees are top-level entries.
	byGrandparent := make(map[string][]string)
	for _, wt := range worktrees {
		gp := filepath.Dir(filepath.Dir(wt.Path))
		byGrandparent[gp] = append(byGrandparent[gp], wt.Name)
	}
	for i := range worktrees {
		if worktrees[i].Path == rootPath {
			continue
		}
		worktrees[i].Children = byGrandparent[worktrees[i].Path]
	}

	return worktrees, nil
}

// Find returns the worktree whose branch or name matches. ErrNotFound when
// no worktree matches.
func (t *Topology) Find(branch string) (Worktree, error) {
	worktrees, err := t.List()
	if err != nil {
		return Worktree{}, err
	}
	for _, wt := range worktrees {
		if wt.Branch == branch || wt.Name == branch {
			return wt, nil
		}
	}
	return Worktree{}, fmt.Errorf("branch %s: %w", branch, ErrNotFound)
}

// ParentBranch resolves the parent branch for a worktree.
// Precedence is load-bearing: the git-town parent entry wins when present,
// then the first existing trunk branch in probe order (configured trunk,
// then main, master).
func (t *Topology) ParentBranch(wt Worktree) (string, error) {
	if wt.Branch != "" {
		parent, err := t.git.ConfigGet("git-town.branch." + wt.Branch + ".parent")
		if err == nil && parent != "" {
			return parent, nil
		}
	}
	for _, trunk := range t.trunks() {
		if t.git.BranchExists(trunk) {
			return trunk, nil
		}
	}
	return "", fmt.Errorf("branch %s: %w", wt.Branch, ErrNoParent)
}

// CreateWorktree makes a worktree for branch under the root worktree,
// placed per the configured worktrees directory. Returns the new path.
func (t *Topology) CreateWorktree(branch, parent string) (string, error) {
	entries, err := t.git.ListWorktrees()
	if err != nil {
		return "", fmt.Errorf("listing worktrees: %w", err)
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("no worktrees found")
	}
	return CreateIn(t.git, entries[0].Path, t.layout.WorktreesDir, branch, parent)
}

// scanContext reports whether path has a context directory and, if so, the
// issue id from the first issue-numbered file found. Directory enumeration
// order decides ties.
func scanContext(path, contextDir string) (bool, string) {
	dir := filepath.Join(path, contextDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, ""
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "issue-") {
			continue
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if issue := strings.TrimPrefix(stem, "issue-"); issue != "" {
			return true, issue
		}
	}
	return true, ""
}
