// pattern: Functional Core

// Package devenv wraps shell commands so they run inside the project's
// devenv environment. When the caller is already inside one (DEVENV_ROOT
// is set) commands run directly; otherwise they are wrapped with
// "devenv shell --impure -c".
package devenv

import (
	"context"
	"os"
	"os/exec"
	"strings"
)

const rootEnv = "DEVENV_ROOT"

// Active reports whether the current process runs inside a devenv shell.
func Active() bool {
	return os.Getenv(rootEnv) != ""
}

// CommandLine returns the argv to run script inside the environment.
// script is a shell command line, e.g. "wt-new my-branch".
func CommandLine(script string) []string {
	if Active() {
		return strings.Fields(script)
	}
	return []string{"devenv", "shell", "--impure", "-c", script}
}

// Command builds an exec.Cmd for script, wrapped when necessary.
func Command(ctx context.Context, script string) *exec.Cmd {
	argv := CommandLine(script)
	return exec.CommandContext(ctx, argv[0], argv[1:]...)
}
