// pattern: Imperative Shell
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"devflow/internal/merge"
)

// Terminal implements merge.Interactor with stdin prompts. One instance
// serves a whole command invocation; reads share a single buffered
// reader so answers are not lost between prompts.
type Terminal struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminal creates a Terminal reading from in and prompting on out.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out}
}

// Confirm asks a yes/no question. Enter accepts; only an explicit no
// declines. Unrecognized input reprompts; a closed stdin declines.
func (t *Terminal) Confirm(prompt string) bool {
	for {
		fmt.Fprintf(t.out, "%s [Y/n]: ", prompt)
		line, err := t.in.ReadString('\n')
		if err != nil {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "", "y", "yes":
			return true
		case "n", "no":
			return false
		}
		fmt.Fprintln(t.out, "Please answer y or n.")
	}
}

// ChooseResolution presents the conflict menu and returns the choice.
// Unrecognized input aborts, so a closed stdin cannot loop forever.
func (t *Terminal) ChooseResolution(conflicted []string) merge.Resolution {
	fmt.Fprintln(t.out, "\nResolution options:")
	fmt.Fprintln(t.out, "1. Open merge tool (git mergetool)")
	fmt.Fprintln(t.out, "2. Resolve manually in shell")
	fmt.Fprintln(t.out, "3. Abort merge and rollback")
	fmt.Fprintln(t.out, "4. Show conflict details")
	fmt.Fprint(t.out, "Choose option [1-4]: ")

	line, err := t.in.ReadString('\n')
	if err != nil {
		return merge.ResolveAbort
	}
	switch strings.TrimSpace(line) {
	case "1":
		return merge.ResolveMergeTool
	case "2":
		return merge.ResolveManual
	case "4":
		return merge.ResolveShowDiff
	default:
		return merge.ResolveAbort
	}
}

// OpenShell hands the terminal to the user's shell in dir.
func (t *Terminal) OpenShell(dir string) error {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}
	cmd := exec.Command(shell)
	cmd.Dir = dir
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
