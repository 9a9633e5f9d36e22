package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"typstlab/internal/tools"
)

const (
	toolWidth    = 6
	versionWidth = 12
	stageWidth   = 20
	detailWidth  = 48
	barWidth     = 30
)

// Row is one (tool, version) install tracked by the model.
type Row struct {
	Tool    string
	Version string
	Stage   tools.Stage
	Detail  string
	Done    int64
	Total   int64
}

// ProgressModel is a bubbletea model that renders one line per install with
// a download bar while bytes are flowing.
type ProgressModel struct {
	title    string
	rows     []Row
	rowIndex map[string]int
	spinner  spinner.Model
	bar      progress.Model
	done     bool
	err      error
}

// NewProgressModel creates a progress model with the given title.
func NewProgressModel(title string) ProgressModel {
	return ProgressModel{
		title:    title,
		rowIndex: make(map[string]int),
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth)),
	}
}

func rowKey(tool, version string) string {
	return tool + "@" + version
}

// AddRow pre-populates a pending row. Call this before the program starts.
func (m *ProgressModel) AddRow(tool, version string) {
	m.row(tool, version)
}

func (m *ProgressModel) row(tool, version string) *Row {
	key := rowKey(tool, version)
	idx, ok := m.rowIndex[key]
	if !ok {
		idx = len(m.rows)
		m.rowIndex[key] = idx
		m.rows = append(m.rows, Row{Tool: tool, Version: version})
	}
	return &m.rows[idx]
}

// Init satisfies the tea.Model interface.
func (m ProgressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update satisfies the tea.Model interface.
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case StageMsg:
		row := m.row(msg.Tool, msg.Version)
		row.Stage = msg.Stage
		row.Detail = msg.Detail
		return m, nil

	case BytesMsg:
		row := m.row(msg.Tool, msg.Version)
		row.Done = msg.Done
		row.Total = msg.Total
		return m, nil

	case WorkDoneMsg:
		m.done = true
		return m, tea.Quit

	case ErrorMsg:
		m.err = msg.Err
		m.done = true
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.done = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// View satisfies the tea.Model interface.
func (m ProgressModel) View() string {
	if m.done && m.err != nil {
		return fmt.Sprintf("Error: %v\n", m.err)
	}

	var b strings.Builder
	if m.title != "" {
		b.WriteString(HeaderStyle.Render(m.title))
		b.WriteByte('\n')
	}

	for _, row := range m.rows {
		stage := string(row.Stage)
		if stage == "" {
			stage = "pending"
		}
		b.WriteString(pad(row.Tool, toolWidth))
		b.WriteString("  ")
		b.WriteString(pad(row.Version, versionWidth))
		b.WriteString("  ")
		b.WriteString(StageStyle(row.Stage).Render(pad(stage, stageWidth)))
		if row.Stage == tools.StageDownloading && row.Total > 0 {
			b.WriteString("  ")
			b.WriteString(m.bar.ViewAs(fraction(row.Done, row.Total)))
		} else if row.Detail != "" {
			b.WriteString("  ")
			b.WriteString(DetailStyle.Render(TruncateWithEllipsis(row.Detail, detailWidth)))
		}
		b.WriteByte('\n')
	}

	if !m.done {
		finishedRows, total := m.progressCounts()
		fmt.Fprintf(&b, "\n%s Installing %d/%d...\n", m.spinner.View(), finishedRows, total)
	}
	return b.String()
}

// progressCounts returns (finished, total) rows.
func (m ProgressModel) progressCounts() (int, int) {
	count := 0
	for _, row := range m.rows {
		if finished(row.Stage) {
			count++
		}
	}
	return count, len(m.rows)
}

// Rows returns a copy of the tracked rows.
func (m ProgressModel) Rows() []Row {
	return append([]Row(nil), m.rows...)
}

// Done returns whether the model has finished (work done or error).
func (m ProgressModel) Done() bool {
	return m.done
}

// Err returns any fatal error that occurred.
func (m ProgressModel) Err() error {
	return m.err
}

func fraction(done, total int64) float64 {
	if total <= 0 {
		return 0
	}
	f := float64(done) / float64(total)
	if f > 1 {
		return 1
	}
	return f
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// NonEmptyOrDash returns "-" for empty/whitespace strings.
func NonEmptyOrDash(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	return value
}

// TruncateWithEllipsis truncates a string and adds "..." if it exceeds max length.
func TruncateWithEllipsis(value string, max int) string {
	if max <= 0 {
		return ""
	}
	value = strings.TrimSpace(value)
	if len(value) <= max {
		return value
	}
	if max <= 3 {
		return value[:max]
	}
	return value[:max-3] + "..."
}
