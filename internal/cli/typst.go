package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"typstlab/internal/tools"
	"typstlab/internal/tui"
)

func newTypstCmd(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "typst",
		Short: "Manage the project's Typst compiler",
	}
	cmd.AddCommand(newTypstLinkCmd(opts))
	cmd.AddCommand(newTypstInstallCmd(opts))
	cmd.AddCommand(newTypstVersionsCmd(opts))
	cmd.AddCommand(newTypstExecCmd(opts))
	return cmd
}

type linkResult struct {
	Resolution tools.Resolution `json:"resolution" yaml:"resolution"`
	Shim       string           `json:"shim" yaml:"shim"`
	Written    bool             `json:"written" yaml:"written"`
}

func newTypstLinkCmd(opts *RootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Resolve the pinned Typst and write the bin/typst shim",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, opts, true)
			if err != nil {
				return err
			}
			defer s.Close()

			req := s.requests(force)[0]
			var res tools.Resolution
			err = withProgress(cmd, opts, "Linking Typst", []progressRow{{tool: req.Tool, version: req.RequiredVersion}},
				func(ctx context.Context, reporter tools.Reporter) error {
					tc, err := s.toolchain(reporter)
					if err != nil {
						return err
					}
					res, err = tc.Ensure(ctx, req)
					return err
				})
			if err != nil {
				return err
			}

			def, _ := tools.Definition("typst")
			shim, written, err := tools.WriteShim(s.paths.Root, def, force)
			if err != nil {
				return err
			}
			s.logger.Info().Str("shim", shim).Bool("written", written).Str("resolved", res.Info.Path).Msg("typst linked")

			result := linkResult{Resolution: res, Shim: shim, Written: written}
			if opts.structured() {
				return writeStructured(cmd.OutOrStdout(), opts.Format, result)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "typst %s (%s) %s\n", res.Info.Version, res.Info.Source, res.Info.Path)
			rel, _ := filepath.Rel(s.paths.Root, shim)
			if written {
				fmt.Fprintf(out, "  linked %s\n", rel)
			} else {
				fmt.Fprintf(out, "  %s already present (use --force to rewrite)\n", rel)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Re-resolve ignoring recorded state and rewrite the shim")
	return cmd
}

func newTypstInstallCmd(opts *RootOptions) *cobra.Command {
	var fromCargo bool
	cmd := &cobra.Command{
		Use:   "install [version]",
		Short: "Install a Typst version into the managed cache",
		Long:  "Install a Typst version into the managed cache. Without an argument the project's pinned version is used.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, opts, len(args) == 0)
			if err != nil {
				return err
			}
			defer s.Close()

			version := s.cfg.Typst.Version
			if len(args) == 1 {
				version = args[0]
			}
			if err := tools.ValidateVersion(version); err != nil {
				return err
			}
			if s.cfg.Offline() {
				return fmt.Errorf("install typst %s: %w", version, tools.ErrNetworkDisabled)
			}

			var info tools.Info
			err = withProgress(cmd, opts, "Installing Typst", []progressRow{{tool: "typst", version: version}},
				func(ctx context.Context, reporter tools.Reporter) error {
					tc, err := s.toolchain(reporter)
					if err != nil {
						return err
					}
					info, err = tc.Installer.Install(ctx, tools.InstallRequest{
						Tool:            "typst",
						RequiredVersion: version,
						ProjectRoot:     s.projectRoot(),
						FromFallback:    fromCargo,
					})
					return err
				})
			if err != nil {
				return err
			}

			if opts.structured() {
				return writeStructured(cmd.OutOrStdout(), opts.Format, info)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "typst %s installed at %s\n", info.Version, info.Path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromCargo, "from-cargo", false, "Build with cargo install instead of downloading a release")
	return cmd
}

func newTypstVersionsCmd(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "versions",
		Short: "List installed Typst versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, opts, false)
			if err != nil {
				return err
			}
			defer s.Close()

			resolver, err := tools.NewResolver(s.logger)
			if err != nil {
				return err
			}
			versions, err := resolver.Versions(cmd.Context(), "typst", s.projectRoot())
			if err != nil {
				return err
			}

			if opts.structured() {
				if versions == nil {
					versions = []tools.InstalledVersion{}
				}
				return writeStructured(cmd.OutOrStdout(), opts.Format, versions)
			}
			writeVersions(cmd, versions, s.cfg.Typst.Version)
			return nil
		},
	}
}

func writeVersions(cmd *cobra.Command, versions []tools.InstalledVersion, pinned string) {
	out := cmd.OutOrStdout()
	if len(versions) == 0 {
		fmt.Fprintln(out, "No Typst versions installed.")
		return
	}
	current := lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true).Inline(true)
	for _, v := range versions {
		marker := " "
		if v.Current {
			marker = current.Render("*")
		}
		note := ""
		if v.Version == pinned {
			note = "  (pinned)"
		}
		fmt.Fprintf(out, "%s %-10s %-8s %s%s\n", marker, v.Version, v.Source, v.Path, note)
	}
}

func newTypstExecCmd(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec -- [typst args...]",
		Short: "Run the project's pinned Typst",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, opts, true)
			if err != nil {
				return err
			}
			defer s.Close()

			// stdout belongs to typst; install progress goes to stderr only.
			tc, err := s.toolchain(tui.NewLineReporter(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			res, err := tc.Ensure(cmd.Context(), s.requests(false)[0])
			if err != nil {
				return err
			}
			s.logger.Debug().Str("path", res.Info.Path).Strs("args", args).Msg("exec typst")

			code, err := tools.Passthrough(cmd.Context(), res.Info.Path, args, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return &exitError{code: 130}
				}
				return err
			}
			if code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}
	cmd.Flags().SetInterspersed(false)
	return cmd
}
