// pattern: Imperative Shell

package tui

import (
	"context"
	"os"
	"os/exec"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"devflow/internal/logging"
	"devflow/internal/mcp"
	"devflow/internal/worktree"
)

// worktreesRefreshedMsg delivers a fresh worktree snapshot.
type worktreesRefreshedMsg struct {
	worktrees []worktree.Worktree
	err       error
}

// serverStatusMsg delivers an MCP status snapshot.
type serverStatusMsg struct {
	status map[string]mcp.State
}

// serverActionMsg is sent when a start/stop of the server fleet completes.
type serverActionMsg struct {
	action string
	err    error
}

// worktreeCreatedMsg is sent when a worktree creation completes.
type worktreeCreatedMsg struct {
	name string
	err  error
}

// execDoneMsg is sent when a suspended external command returns.
type execDoneMsg struct {
	action string
	err    error
}

type tickMsg struct {
	time time.Time
}

// logEntriesMsg delivers log entries from the logging channel.
type logEntriesMsg struct {
	entries []logging.LogEntry
}

// clearStatusMsg is sent after a timed delay to clear the status bar.
type clearStatusMsg struct{}

// refreshWorktrees returns a command that rescans the worktree set.
func (m Model) refreshWorktrees() tea.Cmd {
	return func() tea.Msg {
		worktrees, err := m.topo.List()
		return worktreesRefreshedMsg{worktrees: worktrees, err: err}
	}
}

// refreshServers returns a command that probes MCP server liveness.
func (m Model) refreshServers() tea.Cmd {
	return func() tea.Msg {
		return serverStatusMsg{status: m.servers.Status()}
	}
}

// startServers returns a command that starts the MCP fleet.
func (m Model) startServers() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		return serverActionMsg{action: "start", err: m.servers.StartAll(ctx)}
	}
}

// stopServers returns a command that stops the MCP fleet.
func (m Model) stopServers() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		return serverActionMsg{action: "stop", err: m.servers.StopAll(ctx)}
	}
}

// createWorktree returns a command that creates a worktree for branch.
func (m Model) createWorktree(branch, parent string) tea.Cmd {
	return func() tea.Msg {
		_, err := m.topo.CreateWorktree(branch, parent)
		return worktreeCreatedMsg{name: branch, err: err}
	}
}

// execSelf suspends the TUI and runs this binary with the given
// arguments, so interactive commands get the real terminal.
func execSelf(action string, args ...string) tea.Cmd {
	bin, err := os.Executable()
	if err != nil {
		return func() tea.Msg { return execDoneMsg{action: action, err: err} }
	}
	cmd := exec.Command(bin, args...)
	return tea.ExecProcess(cmd, func(err error) tea.Msg {
		return execDoneMsg{action: action, err: err}
	})
}

// tick returns a command for periodic refresh.
func (m Model) tick() tea.Cmd {
	return tea.Tick(10*time.Second, func(t time.Time) tea.Msg {
		return tickMsg{time: t}
	})
}

// consumeLogEntries blocks for the next log entry, then drains whatever
// else is already buffered so bursts arrive as one message.
func consumeLogEntries(ch <-chan logging.LogEntry) tea.Cmd {
	return func() tea.Msg {
		entry, ok := <-ch
		if !ok {
			return nil
		}
		entries := []logging.LogEntry{entry}
		for {
			select {
			case e, ok := <-ch:
				if !ok {
					return logEntriesMsg{entries: entries}
				}
				entries = append(entries, e)
			default:
				return logEntriesMsg{entries: entries}
			}
		}
	}
}
