// pattern: Imperative Shell

package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"devflow/internal/mcp"
	"devflow/internal/worktree"
)

const helpLine = "(n)ew worktree | (a)gent here | (m)erge | (c)leanup merged | (S)hip all | (s)tart MCP | (k)ill MCP | (l)ogs | (r)efresh | (q)uit"

// View renders the TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	layout := ComputeLayout(m.width, m.height, m.logPanelOpen)

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	tree := m.renderTree(layout.Tree)
	servers := m.renderServers(layout.Servers)
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, tree, servers))
	b.WriteString("\n")

	if m.logPanelOpen {
		b.WriteString(m.styles.DimStyle().Render(strings.Repeat("─", max(m.width, 1))))
		b.WriteString("\n")
		b.WriteString(m.renderLogs())
		b.WriteString("\n")
	}

	b.WriteString(m.renderStatusBar())

	if m.formOpen {
		return m.overlay(b.String(), m.renderForm())
	}
	if m.confirmOpen {
		return m.overlay(b.String(), m.renderConfirm())
	}
	return b.String()
}

func (m Model) renderHeader() string {
	title := m.styles.TitleStyle().Render("devflow")
	subtitle := m.styles.SubtitleStyle().Render("worktree and MCP server orchestration")
	return title + "  " + subtitle
}

func (m Model) renderTree(region Region) string {
	var lines []string
	lines = append(lines, m.styles.PanelTitleStyle().Render("Worktrees"))

	if m.err != nil {
		lines = append(lines, m.styles.ErrorStyle().Render("error: "+m.err.Error()))
	} else if len(m.worktrees) == 0 {
		lines = append(lines, m.styles.DimStyle().Render("no worktrees found"))
	}

	rows := ComputeLayout(m.width, m.height, m.logPanelOpen).TreeRows()
	start := 0
	if m.selectedIdx >= rows {
		start = m.selectedIdx - rows + 1
	}
	end := min(start+rows, len(m.worktrees))

	for i := start; i < end; i++ {
		lines = append(lines, m.renderWorktreeRow(m.worktrees[i], i == m.selectedIdx))
	}

	content := strings.Join(lines, "\n")
	return m.styles.BoxStyle().Width(max(region.Width-2, 10)).Height(max(region.Height-2, 3)).Render(content)
}

func (m Model) renderWorktreeRow(wt worktree.Worktree, selected bool) string {
	var sb strings.Builder
	if wt.Name != "main" {
		sb.WriteString("  ")
	}
	sb.WriteString(wt.Name)

	if wt.Detached {
		head := wt.Head
		if len(head) > 8 {
			head = head[:8]
		}
		sb.WriteString(" (detached " + head + ")")
	} else if wt.Branch != "" && wt.Branch != wt.Name {
		sb.WriteString(" [" + wt.Branch + "]")
	}
	if wt.Issue != "" {
		sb.WriteString(" [issue " + wt.Issue + "]")
	}
	if wt.IsCurrent {
		sb.WriteString(" *")
	}

	row := sb.String()
	if selected {
		return m.styles.SelectedStyle().Render("> " + row)
	}
	return m.styles.InfoStyle().Render("  " + row)
}

func (m Model) renderServers(region Region) string {
	var lines []string
	lines = append(lines, m.styles.PanelTitleStyle().Render("MCP Servers"))

	if len(m.serverStatus) == 0 {
		lines = append(lines, m.styles.DimStyle().Render("no status yet"))
	} else {
		names := make([]string, 0, len(m.serverStatus))
		for name := range m.serverStatus {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			state := m.serverStatus[name]
			dot := m.styles.StateStyle(state).Render(stateDot(state))
			lines = append(lines, fmt.Sprintf("%s %-12s %s", dot, name, m.styles.DimStyle().Render(string(state))))
		}
	}

	content := strings.Join(lines, "\n")
	return m.styles.BoxStyle().Width(max(region.Width-2, 10)).Height(max(region.Height-2, 3)).Render(content)
}

func stateDot(state mcp.State) string {
	switch state {
	case mcp.StateRunning:
		return "●"
	case mcp.StateStopped:
		return "✗"
	case mcp.StateNotStarted:
		return "○"
	default:
		return "·"
	}
}

func (m Model) renderLogs() string {
	if !m.logReady {
		return m.styles.DimStyle().Render("logs unavailable")
	}
	title := m.styles.PanelTitleStyle().Render("Logs")
	return title + "\n" + m.logViewport.View()
}

// updateLogViewportContent re-renders buffered entries into the viewport.
func (m *Model) updateLogViewportContent() {
	if !m.logReady {
		return
	}
	lines := make([]string, 0, len(m.logEntries))
	for _, e := range m.logEntries {
		ts := e.Timestamp.Format("15:04:05")
		var style lipgloss.Style
		switch e.Level {
		case "ERROR":
			style = m.styles.ErrorStyle()
		case "WARN":
			style = m.styles.WarningStyle()
		default:
			style = m.styles.DimStyle()
		}
		lines = append(lines, fmt.Sprintf("%s %s %s %s",
			m.styles.DimStyle().Render(ts),
			style.Render(fmt.Sprintf("%-5s", e.Level)),
			m.styles.AccentStyle().Render(e.Scope),
			e.Message))
	}
	m.logViewport.SetContent(strings.Join(lines, "\n"))
	if m.logAutoScroll {
		m.logViewport.GotoBottom()
	}
}

func (m Model) renderStatusBar() string {
	if m.statusLevel == StatusNone {
		return m.styles.HelpStyle().Render(helpLine)
	}

	var prefix string
	var style lipgloss.Style
	switch m.statusLevel {
	case StatusLoading:
		prefix = m.statusSpinner.View()
		style = m.styles.AccentStyle()
	case StatusSuccess:
		prefix = "✓"
		style = m.styles.SuccessStyle()
	case StatusError:
		prefix = "✗"
		style = m.styles.ErrorStyle()
	default:
		prefix = "·"
		style = m.styles.InfoStyle()
	}
	return style.Render(prefix+" "+m.statusMessage) + "  " + m.styles.HelpStyle().Render("esc to dismiss")
}

func (m Model) renderForm() string {
	nameCursor := " "
	parentCursor := " "
	if m.formField == formFieldName {
		nameCursor = ">"
	} else {
		parentCursor = ">"
	}

	var b strings.Builder
	b.WriteString(m.styles.PanelTitleStyle().Render("New worktree"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("%s Branch: %s_\n", nameCursor, m.formName))
	b.WriteString(fmt.Sprintf("%s Parent: %s_ %s\n", parentCursor, m.formParent, m.styles.DimStyle().Render("(blank for trunk)")))
	if m.formError != "" {
		b.WriteString("\n" + m.styles.ErrorStyle().Render(m.formError) + "\n")
	}
	b.WriteString("\n" + m.styles.HelpStyle().Render("enter: next/create | tab: switch | esc: cancel"))
	return m.styles.BoxStyle().Render(b.String())
}

func (m Model) renderConfirm() string {
	var b strings.Builder
	b.WriteString(m.styles.WarningStyle().Render(m.confirmMessage))
	b.WriteString("\n\n")
	b.WriteString(m.styles.HelpStyle().Render("y/enter: confirm | n/esc: cancel"))
	return m.styles.BoxStyle().Render(b.String())
}

// overlay centers a dialog on top of the base view.
func (m Model) overlay(base, dialog string) string {
	_ = base
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, dialog)
}
