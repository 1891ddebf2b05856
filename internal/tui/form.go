// pattern: Imperative Shell

package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"devflow/internal/worktree"
)

// Form field indices.
const (
	formFieldName = iota
	formFieldParent
)

// openForm resets and shows the new-worktree form.
func (m *Model) openForm() {
	m.formOpen = true
	m.formName = ""
	m.formParent = ""
	m.formField = formFieldName
	m.formError = ""
}

func (m *Model) closeForm() {
	m.formOpen = false
	m.formName = ""
	m.formParent = ""
	m.formField = formFieldName
	m.formError = ""
}

// handleFormKey processes key events while the new-worktree form is open.
func (m Model) handleFormKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEscape:
		m.closeForm()
		return m, nil

	case tea.KeyTab, tea.KeyShiftTab:
		if m.formField == formFieldName {
			m.formField = formFieldParent
		} else {
			m.formField = formFieldName
		}
		return m, nil

	case tea.KeyEnter:
		if m.formField == formFieldName {
			m.formField = formFieldParent
			return m, nil
		}
		name := m.formName
		parent := m.formParent
		if err := worktree.ValidateName(name); err != nil {
			m.formError = err.Error()
			m.formField = formFieldName
			return m, nil
		}
		m.closeForm()
		m.setStatus(StatusLoading, "Creating worktree "+name+"...")
		return m, tea.Batch(m.statusSpinner.Tick, m.createWorktree(name, parent))

	case tea.KeyBackspace:
		field := m.activeFormField()
		if len(*field) > 0 {
			*field = (*field)[:len(*field)-1]
		}
		return m, nil

	case tea.KeyRunes, tea.KeySpace:
		field := m.activeFormField()
		*field += string(msg.Runes)
		if msg.Type == tea.KeySpace {
			*field += " "
		}
		m.formError = ""
		return m, nil
	}

	return m, nil
}

func (m *Model) activeFormField() *string {
	if m.formField == formFieldParent {
		return &m.formParent
	}
	return &m.formName
}
