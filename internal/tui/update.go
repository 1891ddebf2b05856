// pattern: Imperative Shell

package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"devflow/internal/events"
)

// doubleCtrlCWindow is the maximum time between two ctrl+c presses to trigger quit.
const doubleCtrlCWindow = 500 * time.Millisecond

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		if m.logPanelOpen {
			layout := ComputeLayout(m.width, m.height, true)
			if !m.logReady {
				m.logViewport = viewport.New(layout.Logs.Width, layout.Logs.Height-1)
				m.logReady = true
			} else {
				m.logViewport.Width = layout.Logs.Width
				m.logViewport.Height = layout.Logs.Height - 1
			}
			m.updateLogViewportContent()
		}
		return m, nil

	case spinner.TickMsg:
		if m.statusLevel == StatusLoading {
			var cmd tea.Cmd
			m.statusSpinner, cmd = m.statusSpinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case worktreesRefreshedMsg:
		if msg.err != nil {
			m.logger.Error("worktree refresh failed", "error", msg.err)
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.worktrees = msg.worktrees
		if m.selectedIdx >= len(m.worktrees) {
			m.selectedIdx = len(m.worktrees) - 1
		}
		if m.selectedIdx < 0 {
			m.selectedIdx = 0
		}
		return m, nil

	case serverStatusMsg:
		m.serverStatus = msg.status
		return m, nil

	case events.ServerStatusMsg:
		m.serverStatus = msg.Status
		return m, nil

	case events.WorktreesChangedMsg:
		return m, m.refreshWorktrees()

	case serverActionMsg:
		if msg.err != nil {
			m.logger.Error("server action failed", "action", msg.action, "error", msg.err)
			m.setStatus(StatusError, fmt.Sprintf("Failed to %s MCP servers", msg.action))
			return m, m.refreshServers()
		}
		m.logger.Info("server action completed", "action", msg.action)
		m.setStatus(StatusSuccess, fmt.Sprintf("MCP servers %sed", msg.action))
		return m, m.refreshServers()

	case worktreeCreatedMsg:
		if msg.err != nil {
			m.logger.Error("worktree creation failed", "name", msg.name, "error", msg.err)
			m.setStatus(StatusError, "Failed to create worktree: "+msg.err.Error())
			return m, nil
		}
		m.logger.Info("worktree created", "name", msg.name)
		m.setStatus(StatusSuccess, "Worktree created: "+msg.name)
		return m, m.refreshWorktrees()

	case execDoneMsg:
		if msg.action == "merge-preview" {
			branch := m.pendingMerge
			m.pendingMerge = ""
			if msg.err == nil && branch != "" {
				// Preview accepted: the preview invocation never merges,
				// so issue the real merge now.
				return m, execSelf("merge", "merge", branch)
			}
			m.setStatus(StatusInfo, "Merge cancelled")
			return m, tea.Batch(m.refreshWorktrees(), m.refreshServers(), statusTimeout())
		}
		if msg.err != nil {
			m.logger.Warn("external command ended with error", "action", msg.action, "error", msg.err)
			m.setStatus(StatusError, fmt.Sprintf("%s finished with error", msg.action))
		} else {
			m.clearStatus()
		}
		return m, tea.Batch(m.refreshWorktrees(), m.refreshServers())

	case tickMsg:
		return m, tea.Batch(m.refreshWorktrees(), m.refreshServers(), m.tick())

	case logEntriesMsg:
		m.logEntries = append(m.logEntries, msg.entries...)
		if len(m.logEntries) > 1000 {
			m.logEntries = m.logEntries[len(m.logEntries)-1000:]
		}
		if m.logPanelOpen && m.logReady {
			m.updateLogViewportContent()
		}
		if m.logManager != nil {
			return m, consumeLogEntries(m.logManager.Entries())
		}
		return m, nil

	case clearStatusMsg:
		if m.statusLevel == StatusInfo {
			m.clearStatus()
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Quit shortcuts first (ctrl+d always, ctrl+c double-press)
	if msg.Type == tea.KeyCtrlD {
		return m, tea.Quit
	}
	if msg.Type == tea.KeyCtrlC {
		now := time.Now()
		if !m.lastCtrlCTime.IsZero() && now.Sub(m.lastCtrlCTime) <= doubleCtrlCWindow {
			return m, tea.Quit
		}
		m.lastCtrlCTime = now
		return m, nil
	}

	if m.confirmOpen {
		return m.handleConfirmKey(msg)
	}
	if m.formOpen {
		return m.handleFormKey(msg)
	}

	switch msg.Type {
	case tea.KeyUp:
		if m.selectedIdx > 0 {
			m.selectedIdx--
		}
		return m, nil
	case tea.KeyDown:
		if m.selectedIdx < len(m.worktrees)-1 {
			m.selectedIdx++
		}
		return m, nil
	case tea.KeyEscape:
		if m.statusLevel == StatusError {
			m.clearStatus()
		}
		return m, nil
	}

	switch msg.String() {
	case "q":
		return m, tea.Quit

	case "r":
		m.logger.Debug("refresh requested")
		return m, tea.Batch(m.refreshWorktrees(), m.refreshServers())

	case "n":
		m.openForm()
		return m, nil

	case "a":
		wt := m.SelectedWorktree()
		if wt == nil {
			return m, nil
		}
		m.logger.Info("launching agent", "worktree", wt.Name)
		return m, execSelf("agent", "agent", wt.Name)

	case "m":
		wt := m.SelectedWorktree()
		if wt == nil || wt.Branch == "" || wt.Name == "main" {
			m.setStatus(StatusInfo, "Select a feature worktree to merge")
			return m, statusTimeout()
		}
		m.logger.Info("merging from tui", "branch", wt.Branch)
		m.pendingMerge = wt.Branch
		return m, execSelf("merge-preview", "merge", wt.Branch, "--preview")

	case "c":
		return m, execSelf("auto-clean", "auto-clean", "--execute")

	case "S":
		return m, execSelf("ship-all", "ship-all", "--execute")

	case "s":
		m.setStatus(StatusLoading, "Starting MCP servers...")
		return m, tea.Batch(m.statusSpinner.Tick, m.startServers())

	case "k":
		m.confirmOpen = true
		m.confirmAction = "stop_servers"
		m.confirmMessage = "Stop all MCP servers?"
		return m, nil

	case "l", "L":
		m.logPanelOpen = !m.logPanelOpen
		if m.logPanelOpen {
			layout := ComputeLayout(m.width, m.height, true)
			if !m.logReady {
				m.logViewport = viewport.New(layout.Logs.Width, layout.Logs.Height-1)
				m.logReady = true
			}
			m.updateLogViewportContent()
		}
		return m, nil

	case "j":
		if m.logPanelOpen && m.logReady {
			m.logViewport.ScrollDown(1)
			m.logAutoScroll = m.logViewport.AtBottom()
		}
		return m, nil

	case "G":
		if m.logPanelOpen && m.logReady {
			m.logViewport.GotoBottom()
			m.logAutoScroll = true
		}
		return m, nil
	}

	return m, nil
}

// handleConfirmKey processes key events when the confirmation dialog is open.
func (m Model) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	confirm := msg.Type == tea.KeyEnter || msg.String() == "y" || msg.String() == "Y"
	cancel := msg.Type == tea.KeyEscape || msg.String() == "n" || msg.String() == "N"
	if !confirm && !cancel {
		return m, nil
	}

	action := m.confirmAction
	m.confirmOpen = false
	m.confirmAction = ""
	m.confirmMessage = ""

	if cancel {
		return m, nil
	}

	switch action {
	case "stop_servers":
		m.setStatus(StatusLoading, "Stopping MCP servers...")
		return m, tea.Batch(m.statusSpinner.Tick, m.stopServers())
	}
	return m, nil
}

// statusTimeout schedules the status bar to clear.
func statusTimeout() tea.Cmd {
	return tea.Tick(4*time.Second, func(time.Time) tea.Msg {
		return clearStatusMsg{}
	})
}
