// pattern: Imperative Shell
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"devflow/internal/agent"
	"devflow/internal/config"
	"devflow/internal/git"
	"devflow/internal/logging"
	"devflow/internal/mcp"
	"devflow/internal/merge"
	"devflow/internal/policy"
	"devflow/internal/report"
	"devflow/internal/worktree"
)

// Env carries the dependencies every command shares.
type Env struct {
	Config config.Config
	Logs   logging.LoggerProvider
}

// ResolveDataDir returns the data directory for the lock file.
// If configDir is specified, uses that; otherwise uses ~/.config/devflow.
func ResolveDataDir(configDir string) string {
	if configDir != "" {
		return configDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "devflow")
	}
	return filepath.Join(home, ".config", "devflow")
}

// repo locates the repository containing the working directory. The
// returned runner is rooted at the main worktree so parent-branch
// checkouts land there, not in a linked worktree.
func (e *Env) repo() (*git.Runner, *worktree.Topology, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, nil, err
	}
	entries, err := git.NewRunner(cwd).ListWorktrees()
	if err != nil || len(entries) == 0 {
		return nil, nil, fmt.Errorf("not inside a git repository")
	}
	g := git.NewRunner(entries[0].Path)
	topo := worktree.NewWithLayout(g, cwd, worktree.Layout{
		Trunk:        e.Config.TrunkBranch,
		ContextDir:   e.Config.ContextDir,
		WorktreesDir: e.Config.WorktreesDir,
	})
	return g, topo, nil
}

func (e *Env) merger(g *git.Runner, topo *worktree.Topology, rep report.Reporter) *merge.Engine {
	return merge.New(g, topo, rep, e.Logs.For("merge"), merge.Config{
		StrictBackup: e.Config.StrictBackupEnabled(),
	})
}

func (e *Env) policies(g *git.Runner, topo *worktree.Topology, rep report.Reporter) *policy.Engine {
	return policy.New(g, topo, e.merger(g, topo, rep), rep, e.Logs.For("policy"), e.Config.PushEnabled())
}

// fail prints the error and exits 1. Commands call it as their last
// step so success falls through to exit 0.
func fail(err error) error {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	return nil
}

// BuildApp creates and configures the CLI application with all commands and groups.
func BuildApp(version string, env *Env) *App {
	app := NewApp(version)

	app.AddCommand(&Command{
		Name:    "merge",
		Summary: "Merge a worktree branch into its parent",
		Usage:   "Usage: devflow merge <branch> [--no-cleanup] [--no-push] [--preview]",
		Run: func(args []string) error {
			return fail(runMerge(env, args))
		},
	})

	app.AddCommand(&Command{
		Name:    "auto-clean",
		Summary: "Remove fully merged branches and their worktrees",
		Usage:   "Usage: devflow auto-clean [--execute]",
		Run: func(args []string) error {
			return fail(runAutoClean(env, args))
		},
	})

	app.AddCommand(&Command{
		Name:    "ship-all",
		Summary: "Merge every ready branch into its parent",
		Usage:   "Usage: devflow ship-all [--execute]",
		Run: func(args []string) error {
			return fail(runShipAll(env, args))
		},
	})

	app.AddCommand(&Command{
		Name:    "create",
		Summary: "Create a new worktree and branch",
		Usage:   "Usage: devflow create <branch> [parent]",
		Run: func(args []string) error {
			return fail(runCreate(env, args))
		},
	})

	app.AddCommand(&Command{
		Name:    "agent",
		Summary: "Start an agent session in a worktree",
		Usage:   "Usage: devflow agent [branch]",
		Run: func(args []string) error {
			return fail(runAgent(env, args))
		},
	})

	app.AddCommand(&Command{
		Name:    "list",
		Summary: "List worktrees with branch and context info",
		Usage:   "Usage: devflow list",
		Run: func(args []string) error {
			return fail(runList(env))
		},
	})

	app.AddCommand(&Command{
		Name:    "cleanup",
		Summary: "Remove one branch's worktree and delete the branch",
		Usage:   "Usage: devflow cleanup <branch>",
		Run: func(args []string) error {
			return fail(runCleanup(env, args))
		},
	})

	app.AddCommand(&Command{
		Name:    "version",
		Summary: "Print version and exit",
		Usage:   "Usage: devflow version",
		Run: func(args []string) error {
			fmt.Println(version)
			return nil
		},
	})

	serverGroup := app.AddGroup("server", "Manage MCP servers")
	RegisterServerCommands(serverGroup, env)

	return app
}

func runMerge(env *Env, args []string) error {
	fs := flag.NewFlagSet("merge", flag.ContinueOnError)
	noCleanup := fs.Bool("no-cleanup", false, "keep the worktree and branch after merging")
	noPush := fs.Bool("no-push", false, "do not push after merging")
	preview := fs.Bool("preview", false, "show pending commits and confirm before merging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: devflow merge <branch> [--no-cleanup] [--no-push] [--preview]")
	}
	branch := fs.Arg(0)

	g, topo, err := env.repo()
	if err != nil {
		return err
	}
	rep := report.NewConsole(os.Stdout)
	merger := env.merger(g, topo, rep)
	in := NewTerminal(os.Stdin, os.Stdout)

	// Preview is read-only by contract: it returns before the merge step
	// regardless of the confirmation answer. Callers that want to chain
	// (the TUI) re-invoke without --preview after a confirmed preview.
	if *preview {
		_, err := merger.Merge(branch, merge.Options{Preview: true}, in)
		return err
	}

	_, err = merger.Merge(branch, merge.Options{
		Cleanup: !*noCleanup,
		Push:    env.Config.PushEnabled() && !*noPush,
	}, in)
	return err
}

func runAutoClean(env *Env, args []string) error {
	fs := flag.NewFlagSet("auto-clean", flag.ContinueOnError)
	execute := fs.Bool("execute", false, "actually remove branches instead of listing them")
	if err := fs.Parse(args); err != nil {
		return err
	}

	g, topo, err := env.repo()
	if err != nil {
		return err
	}
	rep := report.NewConsole(os.Stdout)
	_, err = env.policies(g, topo, rep).AutoClean(!*execute, NewTerminal(os.Stdin, os.Stdout))
	return err
}

func runShipAll(env *Env, args []string) error {
	fs := flag.NewFlagSet("ship-all", flag.ContinueOnError)
	execute := fs.Bool("execute", false, "actually ship branches instead of listing them")
	if err := fs.Parse(args); err != nil {
		return err
	}

	g, topo, err := env.repo()
	if err != nil {
		return err
	}
	rep := report.NewConsole(os.Stdout)
	_, err = env.policies(g, topo, rep).ShipAll(!*execute, NewTerminal(os.Stdin, os.Stdout))
	return err
}

func runCreate(env *Env, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: devflow create <branch> [parent]")
	}
	branch := args[0]
	parent := ""
	if len(args) > 1 {
		parent = args[1]
	}

	_, topo, err := env.repo()
	if err != nil {
		return err
	}
	path, err := topo.CreateWorktree(branch, parent)
	if err != nil {
		return err
	}
	rep := report.NewConsole(os.Stdout)
	rep.Successf("Created worktree %s at %s", branch, path)
	return nil
}

// runAgent starts an agent session in the named worktree, or the
// current directory when no branch is given.
func runAgent(env *Env, args []string) error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}
	if len(args) > 0 {
		_, topo, err := env.repo()
		if err != nil {
			return err
		}
		wt, err := topo.Find(args[0])
		if err != nil {
			return err
		}
		dir = wt.Path
	}

	launcher := agent.NewLauncher(env.Config.AgentCommand, env.Logs.For("agent"))
	return launcher.Run(context.Background(), dir, os.Stdin, os.Stdout)
}

func runList(env *Env) error {
	_, topo, err := env.repo()
	if err != nil {
		return err
	}
	worktrees, err := topo.List()
	if err != nil {
		return err
	}

	for _, wt := range worktrees {
		marker := " "
		if wt.IsCurrent {
			marker = "*"
		}
		branch := wt.Branch
		if wt.Detached {
			branch = "(detached " + wt.Head[:min(8, len(wt.Head))] + ")"
		}
		line := fmt.Sprintf("%s %-20s %s", marker, wt.Name, branch)
		if wt.Issue != "" {
			line += "  [issue " + wt.Issue + "]"
		}
		fmt.Println(line)
	}
	return nil
}

func runCleanup(env *Env, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: devflow cleanup <branch>")
	}
	branch := args[0]

	g, topo, err := env.repo()
	if err != nil {
		return err
	}
	wt, err := topo.Find(branch)
	if err != nil {
		return err
	}

	rep := report.NewConsole(os.Stdout)
	if failures := env.merger(g, topo, rep).Cleanup(wt, branch); len(failures) > 0 {
		return fmt.Errorf("cleanup finished with %d failures", len(failures))
	}
	return nil
}

// RegisterServerCommands registers the MCP server command group.
func RegisterServerCommands(group *Group, env *Env) {
	manager := func() (*mcp.Manager, error) {
		g, _, err := env.repo()
		if err != nil {
			return nil, err
		}
		servers := make([]mcp.Server, 0, len(env.Config.Servers))
		for _, s := range env.Config.Servers {
			servers = append(servers, mcp.Server{Name: s.Name, Description: s.Description, Command: s.Command})
		}
		dir := env.Config.MCP.Dir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(g.Dir(), dir)
		}
		return mcp.NewManager(dir, servers, env.Logs.For("mcp")), nil
	}

	group.AddCommand(&Command{
		Name:    "start",
		Summary: "Start all MCP servers",
		Usage:   "Usage: devflow server start",
		Run: func(args []string) error {
			m, err := manager()
			if err == nil {
				err = m.StartAll(context.Background())
			}
			return fail(err)
		},
	})

	group.AddCommand(&Command{
		Name:    "stop",
		Summary: "Stop all MCP servers",
		Usage:   "Usage: devflow server stop",
		Run: func(args []string) error {
			m, err := manager()
			if err == nil {
				err = m.StopAll(context.Background())
			}
			return fail(err)
		},
	})

	group.AddCommand(&Command{
		Name:    "status",
		Summary: "Show MCP server status",
		Usage:   "Usage: devflow server status",
		Run: func(args []string) error {
			m, err := manager()
			if err != nil {
				return fail(err)
			}
			status := m.Status()
			for _, s := range m.Servers() {
				desc := s.Description
				if desc == "" {
					desc = s.Name
				}
				fmt.Printf("%-12s %-14s %s\n", s.Name, status[s.Name], desc)
			}
			return nil
		},
	})
}
