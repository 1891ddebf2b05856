// pattern: Imperative Shell

// Package policy decides which branches qualify for batch operations:
// auto-clean (fully merged branches with an active worktree) and ship-all
// (branches ahead of their parent). Dry runs never mutate; execute mode
// re-confirms and processes candidates strictly one at a time, since merges
// mutate shared branch refs and must not race.
package policy

import (
	"fmt"

	"devflow/internal/git"
	"devflow/internal/logging"
	"devflow/internal/merge"
	"devflow/internal/report"
	"devflow/internal/worktree"
)

// CleanupCandidate pairs a fully merged branch with its worktree.
type CleanupCandidate struct {
	Branch   string
	Worktree worktree.Worktree
}

// ShipCandidate pairs a ready branch with its parent and the evidence.
type ShipCandidate struct {
	Branch       string
	Parent       string
	CommitsAhead int
	Worktree     worktree.Worktree
}

// Engine computes and executes batch candidate sets.
type Engine struct {
	git    *git.Runner
	topo   *worktree.Topology
	merger *merge.Engine
	rep    report.Reporter
	logger *logging.ScopedLogger
	push   bool // push after each shipped merge
}

// New creates a policy engine. push controls whether shipped merges push.
func New(g *git.Runner, topo *worktree.Topology, merger *merge.Engine, rep report.Reporter, logger *logging.ScopedLogger, push bool) *Engine {
	return &Engine{git: g, topo: topo, merger: merger, rep: rep, logger: logger, push: push}
}

// CleanupCandidates returns the branches merged into the current branch
// that still have an active worktree, excluding trunk branches. Trunk
// status comes from the topology so a configured trunk is honored. The
// topology never fabricates entries, so every candidate's worktree came
// from the same listing.
func (e *Engine) CleanupCandidates() ([]CleanupCandidate, error) {
	merged, err := e.git.MergedBranches()
	if err != nil {
		return nil, fmt.Errorf("listing merged branches: %w", err)
	}
	mergedSet := make(map[string]bool, len(merged))
	for _, b := range merged {
		if !e.topo.IsTrunk(b) {
			mergedSet[b] = true
		}
	}

	worktrees, err := e.topo.List()
	if err != nil {
		return nil, err
	}

	var candidates []CleanupCandidate
	for _, wt := range worktrees {
		if wt.Branch != "" && mergedSet[wt.Branch] {
			candidates = append(candidates, CleanupCandidate{Branch: wt.Branch, Worktree: wt})
		}
	}
	return candidates, nil
}

// AutoClean removes merged branches and their worktrees. In dry-run mode it
// only reports what would be cleaned. Execute mode asks for confirmation
// and then cleans each candidate; a failure on one candidate is collected
// and the batch continues. Returns the cleaned (or would-be-cleaned)
// branch names.
func (e *Engine) AutoClean(dryRun bool, in merge.Interactor) ([]string, error) {
	e.rep.Infof("Scanning for merged branches...")

	candidates, err := e.CleanupCandidates()
	if err != nil {
		e.rep.Errorf("Failed to scan for merged branches: %v", err)
		return nil, err
	}
	if len(candidates) == 0 {
		e.rep.Successf("No merged branches found for cleanup")
		return nil, nil
	}

	if dryRun {
		e.rep.Infof("Would clean up %d items:", len(candidates))
		names := make([]string, 0, len(candidates))
		for _, c := range candidates {
			e.rep.Infof("  - Branch: %s, Worktree: %s", c.Branch, c.Worktree.Name)
			names = append(names, c.Branch)
		}
		return names, nil
	}

	if !in.Confirm(fmt.Sprintf("Clean up %d merged branches and their worktrees?", len(candidates))) {
		e.rep.Infof("Cleanup cancelled")
		return nil, nil
	}

	var cleaned []string
	for _, c := range candidates {
		if failures := e.merger.Cleanup(c.Worktree, c.Branch); len(failures) > 0 {
			e.rep.Errorf("Failed to clean up %s", c.Branch)
			e.logger.Warn("cleanup failed", "branch", c.Branch, "failures", len(failures))
			continue
		}
		cleaned = append(cleaned, c.Branch)
	}

	e.rep.Successf("Cleaned up %d branches", len(cleaned))
	return cleaned, nil
}

// ShipCandidates returns every worktree branch with a resolvable parent and
// commits ahead of it, excluding trunk branches and detached worktrees.
func (e *Engine) ShipCandidates() ([]ShipCandidate, error) {
	worktrees, err := e.topo.List()
	if err != nil {
		return nil, err
	}

	var candidates []ShipCandidate
	for _, wt := range worktrees {
		if wt.Branch == "" || wt.Detached || e.topo.IsTrunk(wt.Branch) {
			continue
		}
		parent, err := e.topo.ParentBranch(wt)
		if err != nil {
			continue
		}
		ahead, err := e.git.AheadCount(parent, wt.Branch)
		if err != nil || ahead == 0 {
			continue
		}
		candidates = append(candidates, ShipCandidate{
			Branch:       wt.Branch,
			Parent:       parent,
			CommitsAhead: ahead,
			Worktree:     wt,
		})
	}
	return candidates, nil
}

// ShipAll merges every ready branch into its parent via the full merge
// pipeline with cleanup. Dry-run mode lists candidates without mutating.
// Execute mode confirms, then ships sequentially; a failed candidate does
// not stop the batch. Returns the branches that fully succeeded (or, in
// dry-run mode, the candidates).
func (e *Engine) ShipAll(dryRun bool, in merge.Interactor) ([]string, error) {
	e.rep.Infof("Scanning for ready branches...")

	candidates, err := e.ShipCandidates()
	if err != nil {
		e.rep.Errorf("Failed to scan for ready branches: %v", err)
		return nil, err
	}
	if len(candidates) == 0 {
		e.rep.Successf("No ready branches found for shipping")
		return nil, nil
	}

	if dryRun {
		e.rep.Infof("Would ship %d branches:", len(candidates))
		names := make([]string, 0, len(candidates))
		for _, c := range candidates {
			e.rep.Infof("  - %s → %s (%d commits)", c.Branch, c.Parent, c.CommitsAhead)
			names = append(names, c.Branch)
		}
		return names, nil
	}

	e.rep.Infof("Ready to ship %d branches:", len(candidates))
	for _, c := range candidates {
		e.rep.Infof("  - %s → %s (%d commits)", c.Branch, c.Parent, c.CommitsAhead)
	}
	if !in.Confirm(fmt.Sprintf("Ship all %d branches?", len(candidates))) {
		e.rep.Infof("Shipping cancelled")
		return nil, nil
	}

	var shipped []string
	for _, c := range candidates {
		e.rep.Infof("Shipping %s...", c.Branch)
		if _, err := e.merger.Merge(c.Branch, merge.Options{Cleanup: true, Push: e.push}, in); err != nil {
			e.rep.Errorf("Failed to ship %s: %v", c.Branch, err)
			e.logger.Warn("ship failed", "branch", c.Branch, "error", err)
			continue
		}
		shipped = append(shipped, c.Branch)
	}

	e.rep.Successf("Shipped %d branches", len(shipped))
	return shipped, nil
}
