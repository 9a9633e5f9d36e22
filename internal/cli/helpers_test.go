package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"typstlab/internal/paths"
)

// isolate points the managed cache and PATH at empty temp dirs.
func isolate(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binaries are shell scripts")
	}
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("PATH", t.TempDir())
	t.Setenv("TYPSTLAB_LOG_LEVEL", "")
}

// newProject writes a typstlab.toml pinning version with installs disabled.
func newProject(t *testing.T, version string) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cfg := fmt.Sprintf("[project]\nname = \"thesis\"\n\n[typst]\nversion = %q\n\n[network]\npolicy = \"never\"\n", version)
	if err = os.WriteFile(filepath.Join(root, paths.ConfigFileName), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

// seedManagedTypst places a fake typst into the managed cache. It reports
// version for --version, exits with the code given as "fail N", and
// otherwise echoes its arguments.
func seedManagedTypst(t *testing.T, version string) string {
	t.Helper()
	root, err := paths.ManagedCacheRoot()
	if err != nil {
		t.Fatal(err)
	}
	bin := filepath.Join(root, "typst", version, "typst")
	script := fmt.Sprintf(`#!/bin/sh
if [ "$1" = "--version" ]; then
  echo "typst %s (deadbeef)"
  exit 0
fi
if [ "$1" = "fail" ]; then
  exit "$2"
fi
echo "ran $*"
`, version)
	if err := os.MkdirAll(filepath.Dir(bin), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return bin
}

type cliResult struct {
	stdout string
	stderr string
	err    error
}

func runCLI(t *testing.T, args ...string) cliResult {
	t.Helper()
	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(bytes.NewReader(nil))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}
