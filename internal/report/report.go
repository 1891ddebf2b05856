// pattern: Functional Core
package report

import (
	"fmt"
	"io"
	"sync"
)

// Reporter is the user-facing output capability injected into the engines.
// It is separate from the structured logger: reporter output is what the
// user reads, logger output is what the log file gets.
type Reporter interface {
	Infof(format string, args ...any)
	Successf(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Console writes prefixed lines to a writer, one per call.
type Console struct {
	w io.Writer
}

// NewConsole creates a Reporter writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Infof(format string, args ...any) {
	fmt.Fprintf(c.w, format+"\n", args...)
}

func (c *Console) Successf(format string, args ...any) {
	fmt.Fprintf(c.w, "✅ "+format+"\n", args...)
}

func (c *Console) Warnf(format string, args ...any) {
	fmt.Fprintf(c.w, "Warning: "+format+"\n", args...)
}

func (c *Console) Errorf(format string, args ...any) {
	fmt.Fprintf(c.w, "Error: "+format+"\n", args...)
}

// Recorder captures reported lines for test assertions.
type Recorder struct {
	mu    sync.Mutex
	lines []string
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) record(level, format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, level+": "+fmt.Sprintf(format, args...))
}

func (r *Recorder) Infof(format string, args ...any)    { r.record("info", format, args...) }
func (r *Recorder) Successf(format string, args ...any) { r.record("success", format, args...) }
func (r *Recorder) Warnf(format string, args ...any)    { r.record("warn", format, args...) }
func (r *Recorder) Errorf(format string, args ...any)   { r.record("error", format, args...) }

// Lines returns a copy of everything recorded so far.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}
