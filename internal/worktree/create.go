// pattern: Imperative Shell

package worktree

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"devflow/internal/git"
)

// validNameRe matches valid branch names: alphanumeric start, then
// alphanumeric, dots, hyphens, underscores, slashes.
var validNameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._/-]*$`)

// ValidateName checks whether a branch name is acceptable for a worktree.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("branch name cannot be empty")
	}
	if len(name) > 100 {
		return fmt.Errorf("branch name too long (max 100 characters)")
	}
	if !validNameRe.MatchString(name) {
		return fmt.Errorf("invalid branch name %q: must start with alphanumeric, may contain a-z A-Z 0-9 . _ / -", name)
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("branch name cannot contain '..'")
	}
	return nil
}

// Dir returns the path where a worktree for branch would be created under
// the default worktrees directory.
func Dir(rootDir, branch string) string {
	return DirIn(rootDir, DefaultWorktreesDir, branch)
}

// DirIn returns the path where a worktree for branch would be created,
// following the <rootDir>/<worktreesDir>/<branch> placement convention.
func DirIn(rootDir, worktreesDir, branch string) string {
	return filepath.Join(rootDir, worktreesDir, branch)
}

// Create makes a new worktree for branch under the default worktrees
// directory.
func Create(g *git.Runner, rootDir, branch, parent string) (string, error) {
	return CreateIn(g, rootDir, DefaultWorktreesDir, branch, parent)
}

// CreateIn makes a new worktree for branch under rootDir/<worktreesDir>/.
// When parent is non-empty the new branch starts at parent and the
// relationship is recorded as the git-town parent entry, so ParentBranch
// resolves it natively afterwards. Returns the worktree path.
func CreateIn(g *git.Runner, rootDir, worktreesDir, branch, parent string) (string, error) {
	if err := ValidateName(branch); err != nil {
		return "", err
	}

	wtDir := DirIn(rootDir, worktreesDir, branch)
	if _, err := os.Stat(wtDir); err == nil {
		return "", fmt.Errorf("worktree %q already exists at %s", branch, wtDir)
	}
	if err := os.MkdirAll(filepath.Dir(wtDir), 0755); err != nil {
		return "", fmt.Errorf("creating worktrees directory: %w", err)
	}

	if err := g.AddWorktree(wtDir, branch, parent); err != nil {
		return "", fmt.Errorf("adding worktree: %w", err)
	}

	if parent != "" {
		if err := g.ConfigSet("git-town.branch."+branch+".parent", parent); err != nil {
			// The worktree exists either way; parent resolution falls back
			// to the trunk branches.
			return wtDir, fmt.Errorf("recording parent branch: %w", err)
		}
	}

	return wtDir, nil
}
