package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"devflow/internal/config"
	"devflow/internal/logging"
	"devflow/internal/mcp"
	"devflow/internal/worktree"
)

// StatusLevel classifies the status bar message.
type StatusLevel int

const (
	StatusNone StatusLevel = iota
	StatusInfo
	StatusLoading
	StatusSuccess
	StatusError
)

// Model represents the TUI application state.
type Model struct {
	width  int
	height int
	styles *Styles

	topo    *worktree.Topology
	servers *mcp.Manager
	logger  *logging.ScopedLogger

	// logManager is nil in tests that do not exercise the log panel.
	logManager *logging.Manager

	worktrees    []worktree.Worktree
	serverStatus map[string]mcp.State
	selectedIdx  int

	logPanelOpen  bool
	logViewport   viewport.Model
	logReady      bool
	logEntries    []logging.LogEntry
	logAutoScroll bool

	confirmOpen    bool
	confirmAction  string
	confirmMessage string

	formOpen    bool
	formName    string
	formParent  string
	formField   int // 0 name, 1 parent
	formError   string

	statusSpinner spinner.Model
	statusLevel   StatusLevel
	statusMessage string

	// pendingMerge holds the branch whose preview is running, so an
	// accepted preview chains into the real merge invocation.
	pendingMerge string

	lastCtrlCTime time.Time
	err           error
}

// NewModel creates a new TUI model with the given dependencies.
func NewModel(cfg config.Config, topo *worktree.Topology, servers *mcp.Manager, logs logging.LoggerProvider, logManager *logging.Manager) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		styles:        NewStyles(cfg.Theme),
		topo:          topo,
		servers:       servers,
		logger:        logs.For("tui"),
		logManager:    logManager,
		serverStatus:  map[string]mcp.State{},
		statusSpinner: sp,
		logAutoScroll: true,
	}
}

// Init returns the initial command to run.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.refreshWorktrees(),
		m.refreshServers(),
		m.tick(),
	}
	if m.logManager != nil {
		cmds = append(cmds, consumeLogEntries(m.logManager.Entries()))
	}
	return tea.Batch(cmds...)
}

// SelectedWorktree returns the currently selected worktree, or nil.
func (m *Model) SelectedWorktree() *worktree.Worktree {
	if m.selectedIdx < 0 || m.selectedIdx >= len(m.worktrees) {
		return nil
	}
	return &m.worktrees[m.selectedIdx]
}

func (m *Model) setStatus(level StatusLevel, message string) {
	m.statusLevel = level
	m.statusMessage = message
}

func (m *Model) clearStatus() {
	m.statusLevel = StatusNone
	m.statusMessage = ""
}
