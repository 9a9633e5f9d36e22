package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"typstlab/internal/tools"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Project string
	Verbose bool
	Format  string // "text" | "json" | "yaml"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

func (o *RootOptions) structured() bool {
	return o.Format != "text"
}

// exitError carries a child or check exit status through cobra without
// printing anything further.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the root cobra command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(reportError(os.Stderr, err))
	}
}

// reportError prints err for a human and returns the process exit code.
func reportError(w io.Writer, err error) int {
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	fmt.Fprintf(w, "error: %v\n", err)
	var notFound *tools.NotFoundError
	if errors.As(err, &notFound) {
		for _, hint := range tools.InstallHints(notFound.Tool, notFound.RequiredVersion) {
			fmt.Fprintf(w, "hint: %s\n", hint)
		}
	}
	return 1
}

// NewRootCommand creates the typstlab command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "typstlab",
		Short:         "Reproducible Typst toolchains for writing projects",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Project, "project", "", "Path to project directory")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")

	cmd.AddCommand(newInitCmd(opts))
	cmd.AddCommand(newTypstCmd(opts))
	cmd.AddCommand(newSyncCmd(opts))
	cmd.AddCommand(newDoctorCmd(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
