// pattern: Imperative Shell

// Package mcp manages MCP (Model Context Protocol) servers. A server
// with a configured command runs under an in-process supervisor that
// publishes its pid; servers without one are started and stopped
// through the project's mcp-start/mcp-stop scripts. Liveness comes from
// pid files under <mcp-dir>/pids, probed with signal 0.
package mcp

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"devflow/internal/devenv"
	"devflow/internal/logging"
	"devflow/internal/process"
)

// State describes one server's liveness as derived from its pid file.
type State string

const (
	StateRunning       State = "running"
	StateStopped       State = "stopped"        // pid file exists but process is gone
	StateNotStarted    State = "not started"    // no pid file
	StateNotConfigured State = "not configured" // pid directory missing entirely
)

// Server is one managed MCP server. Command, when set, is the shell
// command line the supervisor runs (wrapped for devenv as needed);
// when empty the server belongs to the script-managed fleet.
type Server struct {
	Name        string
	Description string
	Command     string
}

// DefaultServers is the stock server set used when the config names none.
// These are script-managed; their lifecycle lives in mcp-start/mcp-stop.
func DefaultServers() []Server {
	return []Server{
		{Name: "context7", Description: "Context7 (Documentation)"},
		{Name: "playwright", Description: "Playwright (Browser)"},
		{Name: "python", Description: "Python Sandbox"},
		{Name: "sequential", Description: "Sequential Thinking"},
		{Name: "zen", Description: "Zen Multi-Model"},
	}
}

// Manager reports on and controls the MCP server fleet.
type Manager struct {
	dir     string // the .mcp directory
	servers []Server
	logger  *logging.ScopedLogger

	mu          sync.Mutex
	supervisors map[string]*process.Supervisor
}

// NewManager creates a manager rooted at dir (the .mcp directory).
func NewManager(dir string, servers []Server, logger *logging.ScopedLogger) *Manager {
	if len(servers) == 0 {
		servers = DefaultServers()
	}
	return &Manager{
		dir:         dir,
		servers:     servers,
		logger:      logger,
		supervisors: make(map[string]*process.Supervisor),
	}
}

// Servers returns the configured server list.
func (m *Manager) Servers() []Server {
	return m.servers
}

// PIDDir returns the directory holding the per-server pid files.
func (m *Manager) PIDDir() string {
	return filepath.Join(m.dir, "pids")
}

func (m *Manager) pidFile(name string) string {
	return filepath.Join(m.PIDDir(), name+".pid")
}

// Status probes every configured server. A missing pid directory means
// the environment was never set up, so every server reports not
// configured.
func (m *Manager) Status() map[string]State {
	status := make(map[string]State, len(m.servers))

	if _, err := os.Stat(m.PIDDir()); err != nil {
		for _, s := range m.servers {
			status[s.Name] = StateNotConfigured
		}
		return status
	}

	for _, s := range m.servers {
		status[s.Name] = probe(m.pidFile(s.Name))
	}
	return status
}

// probe reads a pid file and checks the process with signal 0.
func probe(pidFile string) State {
	pid, err := readPID(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return StateNotStarted
		}
		return StateStopped
	}
	if err := syscall.Kill(pid, 0); err != nil {
		return StateStopped
	}
	return StateRunning
}

// StartAll brings the fleet up. Command-configured servers get a
// supervisor each; the rest are launched through the project's
// mcp-start script. Servers already alive per their pid file are left
// alone.
func (m *Manager) StartAll(ctx context.Context) error {
	scripted := false
	var toSupervise []Server
	for _, s := range m.servers {
		if s.Command == "" {
			scripted = true
			continue
		}
		toSupervise = append(toSupervise, s)
	}

	if len(toSupervise) > 0 {
		if err := os.MkdirAll(m.PIDDir(), 0755); err != nil {
			return err
		}
		for _, s := range toSupervise {
			m.superviseServer(s)
		}
	}

	if scripted {
		return m.runScript(ctx, "mcp-start")
	}
	return nil
}

// superviseServer starts one supervised server, skipping it when a
// supervisor is already held or another instance owns a live pid.
func (m *Manager) superviseServer(s Server) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.supervisors[s.Name]; ok {
		return
	}
	if probe(m.pidFile(s.Name)) == StateRunning {
		m.logger.Info("server already running", "server", s.Name)
		return
	}

	argv := devenv.CommandLine(s.Command)
	sup := process.NewSupervisor(process.Config{
		Name:       s.Name,
		Binary:     argv[0],
		Args:       argv[1:],
		Dir:        filepath.Dir(m.dir),
		PIDFile:    m.pidFile(s.Name),
		RestartOn:  process.OnFailure,
		MaxRetries: 3,
		RetryDelay: time.Second,
	}, m.logger)

	// Supervised servers outlive the StartAll call, so they get a
	// background context; cancellation of the caller's ctx must not
	// tear the fleet down.
	if err := sup.Start(context.Background()); err != nil {
		m.logger.Error("failed to start server", "server", s.Name, "error", err)
		return
	}
	m.supervisors[s.Name] = sup
}

// StopAll brings the fleet down: owned supervisors are stopped, live
// pids owned by another instance get SIGTERM, and the script-managed
// servers go through mcp-stop.
func (m *Manager) StopAll(ctx context.Context) error {
	scripted := false
	for _, s := range m.servers {
		if s.Command == "" {
			scripted = true
			continue
		}
		m.stopServer(s.Name)
	}

	if scripted {
		return m.runScript(ctx, "mcp-stop")
	}
	return nil
}

func (m *Manager) stopServer(name string) {
	m.mu.Lock()
	sup := m.supervisors[name]
	delete(m.supervisors, name)
	m.mu.Unlock()

	if sup != nil {
		_ = sup.Stop()
		return
	}

	// No supervisor here: the pid file may belong to another instance.
	pidFile := m.pidFile(name)
	pid, err := readPID(pidFile)
	if err != nil {
		return
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		m.logger.Warn("failed to signal server", "server", name, "pid", pid, "error", err)
	}
	if err := os.Remove(pidFile); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("failed to remove pid file", "path", pidFile, "error", err)
	}
}

func readPID(pidFile string) (int, error) {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, os.ErrInvalid
	}
	return pid, nil
}

func (m *Manager) runScript(ctx context.Context, script string) error {
	cmd := devenv.Command(ctx, script)
	out, err := cmd.CombinedOutput()
	if err != nil {
		m.logger.Error("mcp script failed", "script", script, "error", err, "output", strings.TrimSpace(string(out)))
		return err
	}
	m.logger.Info("mcp script completed", "script", script)
	return nil
}
