// pattern: Imperative Shell
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	flag "github.com/spf13/pflag"

	"devflow/internal/cli"
	"devflow/internal/config"
	"devflow/internal/events"
	"devflow/internal/git"
	"devflow/internal/instance"
	"devflow/internal/logging"
	"devflow/internal/mcp"
	"devflow/internal/tui"
	"devflow/internal/worktree"
)

var version = "dev"

func main() {
	// Stop parsing flags after the first non-flag arg (the subcommand),
	// so that --help after a subcommand is handled by the subcommand.
	flag.CommandLine.SetInterspersed(false)

	configDir := flag.StringP("config-dir", "c", "", "config directory (default: ~/.config/devflow)")

	// Override flag.Usage before Parse so --help uses the CLI app's help
	flag.Usage = func() {
		app := cli.BuildApp(version, &cli.Env{Config: config.DefaultConfig(), Logs: logging.NopProvider()})
		app.PrintHelp(os.Stderr)
		flag.PrintDefaults()
	}

	flag.Parse()

	cfg, err := loadConfig(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
	}

	dataDir := cli.ResolveDataDir(*configDir)
	logManager, err := logging.NewManager(logging.Config{
		FilePath:       filepath.Join(dataDir, "devflow.log"),
		MaxSizeMB:      10,
		MaxBackups:     3,
		MaxAgeDays:     7,
		ChannelBufSize: 1000,
		Level:          cfg.Log.Level,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logManager.Close() }()

	app := cli.BuildApp(version, &cli.Env{Config: cfg, Logs: logManager})
	if app.Execute(flag.Args()) {
		runTUI(cfg, dataDir, logManager)
	}
}

// loadConfig loads the configuration from the specified directory or default location.
func loadConfig(configDir string) (config.Config, error) {
	if configDir != "" {
		return config.LoadFrom(filepath.Join(configDir, "config.yaml"))
	}
	return config.Load()
}

// runTUI launches the interactive TUI.
func runTUI(cfg config.Config, dataDir string, logManager *logging.Manager) {
	// Acquire single-instance lock
	fl, err := instance.Lock(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer instance.Cleanup(fl)

	appLogger := logManager.For("app")
	appLogger.Info("application starting")

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	entries, err := git.NewRunner(cwd).ListWorktrees()
	if err != nil || len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "Error: not inside a git repository")
		os.Exit(1)
	}
	g := git.NewRunner(entries[0].Path)
	topo := worktree.NewWithLayout(g, cwd, worktree.Layout{
		Trunk:        cfg.TrunkBranch,
		ContextDir:   cfg.ContextDir,
		WorktreesDir: cfg.WorktreesDir,
	})

	servers := make([]mcp.Server, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		servers = append(servers, mcp.Server{Name: s.Name, Description: s.Description, Command: s.Command})
	}
	mcpDir := cfg.MCP.Dir
	if !filepath.IsAbs(mcpDir) {
		mcpDir = filepath.Join(g.Dir(), mcpDir)
	}
	manager := mcp.NewManager(mcpDir, servers, logManager.For("mcp"))

	model := tui.NewModel(cfg, topo, manager, logManager, logManager)
	p := tea.NewProgram(model, tea.WithAltScreen())

	// Watch pid files so server state changes show up without a manual
	// refresh. The TUI keeps its polling tick as a fallback.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if watcher, err := mcp.NewWatcher(manager); err != nil {
		appLogger.Warn("pid watcher unavailable", "error", err)
	} else {
		go func() {
			if err := watcher.Start(ctx); err != nil {
				appLogger.Warn("pid watcher stopped", "error", err)
			}
		}()
		go func() {
			for status := range watcher.Updates() {
				p.Send(events.ServerStatusMsg{Status: status})
			}
		}()
	}

	if _, err := p.Run(); err != nil {
		appLogger.Error("application exited with error", "error", err)
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}

	appLogger.Info("application stopped")
}
