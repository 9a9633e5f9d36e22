package tui

import (
	"context"
	"errors"
	"io"

	tea "github.com/charmbracelet/bubbletea"
)

// RunWithWork creates a bubbletea program, launches workFn in a goroutine,
// and blocks until both have finished. Quitting the program early cancels
// the context passed to workFn.
func RunWithWork(ctx context.Context, out io.Writer, model ProgressModel, workFn func(ctx context.Context, send func(tea.Msg)) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(model, tea.WithOutput(out), tea.WithContext(ctx))

	workErr := make(chan error, 1)
	go func() {
		err := workFn(ctx, p.Send)
		if err != nil {
			p.Send(ErrorMsg{Err: err})
		} else {
			p.Send(WorkDoneMsg{})
		}
		workErr <- err
	}()

	_, runErr := p.Run()
	cancel()
	err := <-workErr
	if err != nil {
		return err
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return runErr
	}
	return nil
}
