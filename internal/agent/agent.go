// pattern: Imperative Shell

// Package agent launches coding-agent sessions inside worktrees. The
// agent runs under a pty so it behaves like an interactive terminal
// program; its output is bridged to the caller and mirrored, stripped
// of escape sequences, into the log channel.
package agent

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/creack/pty"

	"devflow/internal/devenv"
	"devflow/internal/logging"
)

// DefaultCommand is the agent entry point provided by the dev
// environment.
const DefaultCommand = "agent-here"

// Launcher starts agent sessions.
type Launcher struct {
	command string
	logger  *logging.ScopedLogger
}

// NewLauncher creates a launcher running command (DefaultCommand when
// empty).
func NewLauncher(command string, logger *logging.ScopedLogger) *Launcher {
	if command == "" {
		command = DefaultCommand
	}
	return &Launcher{command: command, logger: logger}
}

// Run starts an agent session in dir under a pty and bridges it to the
// given stdin/stdout until the agent exits. Output lines are mirrored
// into the log with escape sequences stripped.
func (l *Launcher) Run(ctx context.Context, dir string, stdin io.Reader, stdout io.Writer) error {
	cmd := devenv.Command(ctx, l.command)
	cmd.Dir = dir

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 24, Cols: 80})
	if err != nil {
		l.logger.Error("pty start failed", "error", err, "dir", dir)
		return err
	}
	defer func() { _ = ptmx.Close() }()

	l.logger.Info("agent session started", "dir", dir, "command", l.command)

	// Caller input → pty. The goroutine exits when the pty closes.
	go func() { _, _ = io.Copy(ptmx, stdin) }()

	// pty output → caller, teeing lines into the log.
	var lineBuf bytes.Buffer
	buf := make([]byte, 4096)
	for {
		n, readErr := ptmx.Read(buf)
		if n > 0 {
			if _, err := stdout.Write(buf[:n]); err != nil {
				break
			}
			l.logChunk(&lineBuf, buf[:n])
		}
		if readErr != nil {
			// Reads fail with EIO once the child exits.
			break
		}
	}
	l.flushLine(&lineBuf)

	err = cmd.Wait()
	if err != nil {
		l.logger.Warn("agent session ended", "dir", dir, "error", err)
		return err
	}
	l.logger.Info("agent session ended", "dir", dir)
	return nil
}

// logChunk appends raw pty output and logs each completed line.
func (l *Launcher) logChunk(lineBuf *bytes.Buffer, chunk []byte) {
	lineBuf.Write(chunk)
	for {
		idx := bytes.IndexByte(lineBuf.Bytes(), '\n')
		if idx < 0 {
			return
		}
		line := string(lineBuf.Next(idx + 1))
		l.logLine(line)
	}
}

func (l *Launcher) flushLine(lineBuf *bytes.Buffer) {
	if lineBuf.Len() > 0 {
		l.logLine(lineBuf.String())
	}
}

func (l *Launcher) logLine(raw string) {
	line := strings.TrimRight(ansi.Strip(raw), "\r\n")
	if strings.TrimSpace(line) == "" {
		return
	}
	l.logger.Info(line, "stream", "agent")
}
