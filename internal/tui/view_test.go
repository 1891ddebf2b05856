package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"devflow/internal/mcp"
	"devflow/internal/worktree"
)

func TestView_BeforeWindowSize(t *testing.T) {
	m := newTestModel(t)
	m.width = 0
	m.height = 0

	if got := m.View(); got != "Loading..." {
		t.Errorf("View() = %q before sizing, want Loading...", got)
	}
}

func TestView_ShowsWorktrees(t *testing.T) {
	m := newTestModel(t)
	m.worktrees = []worktree.Worktree{
		{Name: "main", Branch: "main", IsCurrent: true},
		{Name: "feat-1", Branch: "feat-1", Issue: "42"},
		{Name: "stale", Detached: true, Head: "abcdef0123456789"},
	}

	view := m.View()

	for _, want := range []string{"main", "feat-1", "[issue 42]", "detached abcdef01"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
	// Current worktree marker
	if !strings.Contains(view, "*") {
		t.Error("View() should mark the current worktree")
	}
}

func TestView_ShowsServerStates(t *testing.T) {
	m := newTestModel(t)
	m.serverStatus = map[string]mcp.State{
		"zen":        mcp.StateRunning,
		"playwright": mcp.StateStopped,
		"context7":   mcp.StateNotStarted,
	}

	view := m.View()

	for _, want := range []string{"zen", "playwright", "context7", "running", "stopped", "not started"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestView_HelpLineWhenIdle(t *testing.T) {
	m := newTestModel(t)

	view := m.View()

	for _, want := range []string{"(n)ew worktree", "(m)erge", "(S)hip all", "(q)uit"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing help hint %q", want)
		}
	}
}

func TestView_StatusReplacesHelp(t *testing.T) {
	m := newTestModel(t)
	m.setStatus(StatusError, "merge failed")

	view := m.View()

	if !strings.Contains(view, "merge failed") {
		t.Error("View() should show the status message")
	}
	if strings.Contains(view, "(n)ew worktree") {
		t.Error("help line should be replaced while a status is shown")
	}
}

func TestView_FormOverlay(t *testing.T) {
	m := newTestModel(t)
	m.openForm()
	m.formName = "feat-1"

	view := m.View()

	for _, want := range []string{"New worktree", "Branch:", "Parent:", "feat-1"} {
		if !strings.Contains(view, want) {
			t.Errorf("form view missing %q", want)
		}
	}
}

func TestView_ConfirmOverlay(t *testing.T) {
	m := newTestModel(t)
	updated, _ := m.Update(keyRunes("k"))
	m = updated.(Model)

	view := m.View()

	if !strings.Contains(view, "Stop all MCP servers?") {
		t.Error("confirm view should show the prompt")
	}
}

func TestView_LogPanel(t *testing.T) {
	m := newTestModel(t)
	updated, _ := m.Update(keyRunes("l"))
	m = updated.(Model)
	updated, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = updated.(Model)

	view := m.View()

	if !strings.Contains(view, "Logs") {
		t.Error("View() should show the log panel title when open")
	}
}
