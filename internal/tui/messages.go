package tui

import "typstlab/internal/tools"

// StageMsg moves an install row to a new stage.
type StageMsg struct {
	Tool    string
	Version string
	Stage   tools.Stage
	Detail  string
}

// BytesMsg reports download progress for an install row.
type BytesMsg struct {
	Tool    string
	Version string
	Done    int64
	Total   int64
}

// WorkDoneMsg signals that all background work has completed.
type WorkDoneMsg struct{}

// ErrorMsg signals a fatal error; the TUI should quit.
type ErrorMsg struct {
	Err error
}
