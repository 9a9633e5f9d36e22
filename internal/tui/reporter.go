package tui

import (
	"fmt"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"typstlab/internal/tools"
)

// TeaReporter adapts bubbletea message sending to the tools.Reporter
// interface. Byte updates are coalesced to whole-percent steps so a fast
// download does not flood the program.
type TeaReporter struct {
	send func(tea.Msg)

	mu      sync.Mutex
	percent map[string]int
}

// NewTeaReporter constructs a reporter that forwards to send.
func NewTeaReporter(send func(tea.Msg)) *TeaReporter {
	return &TeaReporter{send: send, percent: map[string]int{}}
}

// Stage implements tools.Reporter.
func (r *TeaReporter) Stage(tool, version string, stage tools.Stage, detail string) {
	r.send(StageMsg{Tool: tool, Version: version, Stage: stage, Detail: detail})
}

// Bytes implements tools.Reporter.
func (r *TeaReporter) Bytes(tool, version string, done, total int64) {
	pct := int(fraction(done, total) * 100)
	key := rowKey(tool, version)

	r.mu.Lock()
	last, seen := r.percent[key]
	if seen && pct == last {
		r.mu.Unlock()
		return
	}
	r.percent[key] = pct
	r.mu.Unlock()

	r.send(BytesMsg{Tool: tool, Version: version, Done: done, Total: total})
}

// LineReporter writes one line per stage change for non-interactive output.
type LineReporter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLineReporter returns a reporter writing to w.
func NewLineReporter(w io.Writer) *LineReporter {
	return &LineReporter{w: w}
}

// Stage implements tools.Reporter.
func (r *LineReporter) Stage(tool, version string, stage tools.Stage, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if detail == "" {
		fmt.Fprintf(r.w, "%s %s: %s\n", tool, version, stage)
		return
	}
	fmt.Fprintf(r.w, "%s %s: %s (%s)\n", tool, version, stage, detail)
}

// Bytes implements tools.Reporter. Plain output only reports stages.
func (r *LineReporter) Bytes(string, string, int64, int64) {}

var (
	_ tools.Reporter = (*TeaReporter)(nil)
	_ tools.Reporter = (*LineReporter)(nil)
)
