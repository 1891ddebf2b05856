// Package events contains message types shared between background
// watchers and the tui package.
package events

import "devflow/internal/mcp"

// ServerStatusMsg is sent when the MCP pid-dir watcher observes a
// status change.
type ServerStatusMsg struct {
	Status map[string]mcp.State
}

// WorktreesChangedMsg is sent after an external actor mutates the
// worktree set, prompting a refresh.
type WorktreesChangedMsg struct{}
