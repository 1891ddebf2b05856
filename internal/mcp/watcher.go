// pattern: Imperative Shell

package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes the pid directory and emits a fresh status snapshot
// whenever a pid file appears, changes, or vanishes. A polling ticker
// backstops missed filesystem events; pid files written by external
// scripts do not always produce clean event sequences.
type Watcher struct {
	manager  *Manager
	watcher  *fsnotify.Watcher
	interval time.Duration
	updates  chan map[string]State
}

// NewWatcher creates a watcher over the manager's pid directory.
func NewWatcher(manager *Manager) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Watcher{
		manager:  manager,
		watcher:  fw,
		interval: 5 * time.Second,
		updates:  make(chan map[string]State, 16),
	}, nil
}

// Updates returns the channel of status snapshots. A snapshot is sent
// once at startup, then only when the status actually changes.
func (w *Watcher) Updates() <-chan map[string]State {
	return w.updates
}

// Start watches until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	defer close(w.updates)
	defer w.watcher.Close()

	pidDir := w.manager.PIDDir()

	// Watch the parent so we notice the pid dir being created later.
	if err := os.MkdirAll(filepath.Dir(pidDir), 0755); err != nil {
		return fmt.Errorf("failed to create mcp directory: %w", err)
	}
	if err := w.watcher.Add(filepath.Dir(pidDir)); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}
	// The pid dir itself may not exist yet.
	_ = w.watcher.Add(pidDir)

	last := w.manager.Status()
	w.send(ctx, last)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) && filepath.Clean(event.Name) == filepath.Clean(pidDir) {
				_ = w.watcher.Add(pidDir)
			}
			last = w.refresh(ctx, last)

		case <-ticker.C:
			last = w.refresh(ctx, last)

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			// Transient watcher errors are recovered by the poll.
		}
	}
}

func (w *Watcher) refresh(ctx context.Context, last map[string]State) map[string]State {
	current := w.manager.Status()
	if reflect.DeepEqual(current, last) {
		return last
	}
	w.send(ctx, current)
	return current
}

func (w *Watcher) send(ctx context.Context, status map[string]State) {
	select {
	case w.updates <- status:
	case <-ctx.Done():
	}
}
