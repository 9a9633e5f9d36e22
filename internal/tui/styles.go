package tui

import (
	"github.com/charmbracelet/lipgloss"

	"typstlab/internal/tools"
)

var (
	// HeaderStyle styles the title line.
	HeaderStyle = lipgloss.NewStyle().Bold(true)

	// DetailStyle dims secondary text such as asset names.
	DetailStyle = lipgloss.NewStyle().Faint(true)

	stageStyles = map[tools.Stage]lipgloss.Style{
		// Terminal states
		tools.StageInstalled: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		tools.StageCached:    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),

		// Active states
		tools.StageMetadata:    lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		tools.StageDownloading: lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		tools.StageExtracting:  lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		tools.StageVerifying:   lipgloss.NewStyle().Foreground(lipgloss.Color("4")),

		// Slow paths
		tools.StageWaiting:  lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		tools.StageFallback: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),

		tools.StageFailed: lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	}

	pendingStyle = lipgloss.NewStyle().Faint(true)
)

// StageStyle returns the lipgloss style for the given stage.
func StageStyle(stage tools.Stage) lipgloss.Style {
	if stage == "" {
		return pendingStyle
	}
	if s, ok := stageStyles[stage]; ok {
		return s
	}
	return lipgloss.NewStyle()
}

// finished reports whether a row has reached a terminal stage.
func finished(stage tools.Stage) bool {
	switch stage {
	case tools.StageInstalled, tools.StageCached, tools.StageFailed:
		return true
	default:
		return false
	}
}
