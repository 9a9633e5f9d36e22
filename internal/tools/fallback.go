package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// installFromFallback builds the tool with `cargo install` into a scratch
// root inside staging and moves the produced executable to
// staging/{executable}.
func (in *Installer) installFromFallback(ctx context.Context, def ToolDefinition, version, staging string) error {
	if def.Fallback == nil {
		return fmt.Errorf("%w: %s has no secondary install channel", ErrFallbackUnavailable, def.Name)
	}
	cargo, err := in.lookPath(executableName("cargo"))
	if err != nil {
		return fmt.Errorf("%w: cargo not found on PATH", ErrFallbackUnavailable)
	}

	scratch := filepath.Join(staging, ".cargo-root")
	args := []string{"install", def.Fallback.Crate, "--version", "=" + version, "--locked", "--root", scratch}
	in.Logger.Info().Str("tool", def.Name).Str("version", version).Str("cargo", cargo).Msg("installing with cargo")

	res, err := in.runner().Run(ctx, cargo, args, RunOptions{})
	if err != nil {
		detail := strings.TrimSpace(string(res.Stderr))
		if detail != "" {
			return fmt.Errorf("cargo install %s@%s: %w: %s", def.Fallback.Crate, version, err, lastLines(detail, 5))
		}
		return fmt.Errorf("cargo install %s@%s: %w", def.Fallback.Crate, version, err)
	}

	built := filepath.Join(scratch, "bin", def.Executable)
	if !isExecutableFile(built) {
		return fmt.Errorf("cargo install produced no %s", def.Executable)
	}
	if err := os.Rename(built, filepath.Join(staging, def.Executable)); err != nil {
		return fmt.Errorf("stage cargo build: %w", err)
	}
	return os.RemoveAll(scratch)
}

func lastLines(text string, n int) string {
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
