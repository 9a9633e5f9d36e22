package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"typstlab/internal/config"
	"typstlab/internal/logx"
	"typstlab/internal/paths"
	"typstlab/internal/tools"
	"typstlab/internal/tui"
)

// session is the per-invocation view of a project: its paths, config and
// log sink. Commands that may run outside a project get a session with
// inProject false and default config.
type session struct {
	opts      *RootOptions
	paths     paths.ProjectPaths
	cfg       config.Config
	logger    zerolog.Logger
	closer    io.Closer
	inProject bool
}

// openSession resolves the project and its config. With requireProject
// unset, a missing project yields a console-logging session instead of an
// error.
func openSession(cmd *cobra.Command, opts *RootOptions, requireProject bool) (*session, error) {
	pp, err := paths.Resolve(opts.Project)
	if err != nil {
		if !requireProject && errors.Is(err, paths.ErrProjectNotFound) {
			cfg := config.Default()
			return &session{
				opts:   opts,
				cfg:    cfg,
				logger: logx.Console(cmd.ErrOrStderr(), opts.Verbose),
			}, nil
		}
		return nil, err
	}

	cfg, err := config.Load(pp.ConfigFile)
	if err != nil {
		var unknown *config.UnknownKeysError
		if !errors.As(err, &unknown) {
			return nil, err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", pp.ConfigFile, err)
	}

	if err := pp.EnsureMetaDirs(); err != nil {
		return nil, err
	}
	logger, closer, err := logx.New(pp, logx.Options{Verbose: opts.Verbose, Console: cmd.ErrOrStderr()})
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("command", cmd.CommandPath()).Str("project", pp.Root).Msg("session opened")

	return &session{
		opts:      opts,
		paths:     pp,
		cfg:       cfg,
		logger:    logger,
		closer:    closer,
		inProject: true,
	}, nil
}

func (s *session) Close() {
	if s.closer != nil {
		_ = s.closer.Close()
	}
}

func (s *session) projectRoot() string {
	if !s.inProject {
		return ""
	}
	return s.paths.Root
}

// toolchain wires a resolver and installer over the managed cache with the
// project's install policy.
func (s *session) toolchain(reporter tools.Reporter) (*tools.Toolchain, error) {
	resolver, err := tools.NewResolver(s.logger)
	if err != nil {
		return nil, err
	}
	installer, err := tools.NewInstaller(s.logger)
	if err != nil {
		return nil, err
	}
	installer.LockTimeout = s.cfg.Install.LockTimeout
	installer.DownloadTimeout = s.cfg.Install.DownloadTimeout
	installer.Offline = s.cfg.Offline()
	installer.Reporter = reporter
	return &tools.Toolchain{Resolver: resolver, Installer: installer}, nil
}

// requests lists the tool requirements the project config pins.
func (s *session) requests(forceRefresh bool) []tools.Request {
	reqs := []tools.Request{{
		Tool:            "typst",
		RequiredVersion: s.cfg.Typst.Version,
		ProjectRoot:     s.projectRoot(),
		ForceRefresh:    forceRefresh,
	}}
	if s.cfg.Tools.UV.Required {
		reqs = append(reqs, tools.Request{
			Tool:            "uv",
			RequiredVersion: s.cfg.Tools.UV.Version,
			ProjectRoot:     s.projectRoot(),
			ForceRefresh:    forceRefresh,
		})
	}
	return reqs
}

type progressRow struct {
	tool    string
	version string
}

// withProgress runs work with a reporter suited to the output: the bubbletea
// view on an interactive terminal, stage lines on stderr otherwise, and
// nothing for structured output.
func withProgress(cmd *cobra.Command, opts *RootOptions, title string, rows []progressRow, work func(ctx context.Context, reporter tools.Reporter) error) error {
	ctx := cmd.Context()
	switch tui.DetectMode(cmd.OutOrStdout(), opts.structured()) {
	case tui.ModeTUI:
		model := tui.NewProgressModel(title)
		for _, r := range rows {
			model.AddRow(r.tool, r.version)
		}
		return tui.RunWithWork(ctx, cmd.OutOrStdout(), model, func(ctx context.Context, send func(tea.Msg)) error {
			return work(ctx, tui.NewTeaReporter(send))
		})
	case tui.ModePlain:
		return work(ctx, tui.NewLineReporter(cmd.ErrOrStderr()))
	default:
		return work(ctx, nil)
	}
}

// writeStructured renders v in the selected machine-readable format.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
}
