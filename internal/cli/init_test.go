package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"typstlab/internal/config"
	"typstlab/internal/paths"
)

func TestResolveInitDir(t *testing.T) {
	t.Run("project flag takes precedence", func(t *testing.T) {
		dir, err := resolveInitDir("/custom/path", []string{"ignored"})
		if err != nil {
			t.Fatal(err)
		}
		if dir != "/custom/path" {
			t.Fatalf("got %s, want /custom/path", dir)
		}
	})

	t.Run("dot uses cwd", func(t *testing.T) {
		cwd, _ := os.Getwd()
		dir, err := resolveInitDir("", []string{"."})
		if err != nil {
			t.Fatal(err)
		}
		if dir != cwd {
			t.Fatalf("got %s, want %s", dir, cwd)
		}
	})

	t.Run("no args uses cwd", func(t *testing.T) {
		cwd, _ := os.Getwd()
		dir, err := resolveInitDir("", nil)
		if err != nil {
			t.Fatal(err)
		}
		if dir != cwd {
			t.Fatalf("got %s, want %s", dir, cwd)
		}
	})

	t.Run("named arg creates subdirectory", func(t *testing.T) {
		cwd, _ := os.Getwd()
		dir, err := resolveInitDir("", []string{"my-paper"})
		if err != nil {
			t.Fatal(err)
		}
		want := filepath.Join(cwd, "my-paper")
		if dir != want {
			t.Fatalf("got %s, want %s", dir, want)
		}
	})
}

func TestInitWritesLoadableConfig(t *testing.T) {
	isolate(t)
	dir := filepath.Join(t.TempDir(), "thesis")

	res := runCLI(t, "init", dir, "--typst-version", "0.12.0")
	if res.err != nil {
		t.Fatal(res.err)
	}
	if !strings.Contains(res.stdout, "created typstlab.toml") {
		t.Fatalf("unexpected output: %q", res.stdout)
	}

	cfg, err := config.Load(filepath.Join(dir, paths.ConfigFileName))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Project.Name != "thesis" || cfg.Typst.Version != "0.12.0" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if _, err := os.Stat(filepath.Join(dir, paths.MetaDirName, ".gitignore")); err != nil {
		t.Fatalf("gitignore missing: %v", err)
	}

	again := runCLI(t, "init", dir)
	if again.err != nil {
		t.Fatal(again.err)
	}
	if !strings.Contains(again.stdout, "already initialized") {
		t.Fatalf("unexpected output: %q", again.stdout)
	}
}

func TestInitRejectsRangeVersion(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	res := runCLI(t, "init", dir, "--typst-version", "0.13")
	if res.err == nil {
		t.Fatal("expected error for partial version")
	}
	if _, err := os.Stat(filepath.Join(dir, paths.ConfigFileName)); !os.IsNotExist(err) {
		t.Fatal("config must not be written")
	}
}
