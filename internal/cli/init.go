package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"typstlab/internal/logx"
	"typstlab/internal/paths"
	"typstlab/internal/tools"
)

// DefaultTypstVersion is pinned by init when no --typst-version is given.
const DefaultTypstVersion = "0.13.1"

const configTemplate = `[project]
name = %q

[typst]
# Exact version; ranges are refused.
version = %q

# [tools.uv]
# required = true
# version = "0.5.4"

[network]
policy = "auto"        # auto | never

[install]
lock_timeout = "5m"
download_timeout = "10m"
`

func newInitCmd(opts *RootOptions) *cobra.Command {
	var typstVersion string
	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a typstlab project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, opts, args, typstVersion)
		},
	}
	cmd.Flags().StringVar(&typstVersion, "typst-version", DefaultTypstVersion, "Typst version to pin")
	return cmd
}

func resolveInitDir(projectFlag string, args []string) (string, error) {
	if projectFlag != "" {
		return filepath.Abs(projectFlag)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	if len(args) > 0 && args[0] != "." {
		if filepath.IsAbs(args[0]) {
			return args[0], nil
		}
		return filepath.Join(cwd, args[0]), nil
	}
	return cwd, nil
}

func runInit(cmd *cobra.Command, opts *RootOptions, args []string, typstVersion string) error {
	if err := tools.ValidateVersion(typstVersion); err != nil {
		return err
	}
	dir, err := resolveInitDir(opts.Project, args)
	if err != nil {
		return err
	}

	pp := paths.New(dir)
	if err := os.MkdirAll(pp.Root, 0o755); err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}
	if err := pp.EnsureMetaDirs(); err != nil {
		return err
	}

	logger, closer, err := logx.New(pp, logx.Options{Verbose: opts.Verbose, Console: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer closer.Close()
	logger.Info().Str("project", pp.Root).Msg("typstlab init")

	created := make([]string, 0, 2)
	if err := ensureConfig(pp, typstVersion, &created, logger); err != nil {
		return err
	}
	if err := ensureGitignore(pp, &created, logger); err != nil {
		return err
	}

	if len(created) == 0 {
		cmd.Printf("Project already initialized at %s\n", pp.Root)
		return nil
	}

	cmd.Printf("Initialized project at %s\n", pp.Root)
	for _, entry := range created {
		cmd.Printf("  created %s\n", entry)
	}
	return nil
}

func ensureConfig(pp paths.ProjectPaths, typstVersion string, created *[]string, logger zerolog.Logger) error {
	exists, err := paths.FileExists(pp.ConfigFile)
	if err != nil {
		return fmt.Errorf("check config: %w", err)
	}
	if exists {
		logger.Debug().Str("path", pp.ConfigFile).Msg("config exists")
		return nil
	}

	data := fmt.Sprintf(configTemplate, filepath.Base(pp.Root), typstVersion)
	if err := os.WriteFile(pp.ConfigFile, []byte(data), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	logger.Info().Str("path", pp.ConfigFile).Msg("created config")
	*created = append(*created, paths.ConfigFileName)
	return nil
}

// ensureGitignore keeps machine-local metadata out of version control.
func ensureGitignore(pp paths.ProjectPaths, created *[]string, logger zerolog.Logger) error {
	path := filepath.Join(pp.MetaDir, ".gitignore")
	exists, err := paths.FileExists(path)
	if err != nil {
		return fmt.Errorf("check gitignore: %w", err)
	}
	if exists {
		return nil
	}
	if err := os.WriteFile(path, []byte("*\n"), 0o644); err != nil {
		return fmt.Errorf("write gitignore: %w", err)
	}
	logger.Info().Str("path", path).Msg("created gitignore")
	*created = append(*created, filepath.Join(paths.MetaDirName, ".gitignore"))
	return nil
}
