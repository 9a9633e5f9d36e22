package cli

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"typstlab/internal/paths"
	"typstlab/internal/state"
	"typstlab/internal/tools"
)

func TestTypstLinkWritesShimAndState(t *testing.T) {
	isolate(t)
	root := newProject(t, "0.13.1")
	bin := seedManagedTypst(t, "0.13.1")

	res := runCLI(t, "--project", root, "typst", "link")
	if res.err != nil {
		t.Fatalf("link: %v\nstderr: %s", res.err, res.stderr)
	}
	if !strings.Contains(res.stdout, "typst 0.13.1 (managed) "+bin) {
		t.Fatalf("unexpected output: %q", res.stdout)
	}
	if !strings.Contains(res.stdout, "linked bin/typst") {
		t.Fatalf("shim not reported: %q", res.stdout)
	}

	info, err := os.Stat(filepath.Join(root, "bin", "typst"))
	if err != nil {
		t.Fatalf("shim missing: %v", err)
	}
	if info.Mode().Perm()&0o111 == 0 {
		t.Fatalf("shim not executable: %v", info.Mode())
	}

	ts, ok := state.Load(paths.StateFile(root)).Tool("typst")
	if !ok {
		t.Fatal("typst not recorded in state")
	}
	if ts.ResolvedPath != bin || ts.ResolvedSource != "managed" {
		t.Fatalf("unexpected state: %+v", ts)
	}

	again := runCLI(t, "--project", root, "typst", "link")
	if again.err != nil {
		t.Fatal(again.err)
	}
	if !strings.Contains(again.stdout, "already present") {
		t.Fatalf("expected existing shim to be kept: %q", again.stdout)
	}
}

func TestTypstLinkOfflineMissing(t *testing.T) {
	isolate(t)
	root := newProject(t, "0.13.1")

	res := runCLI(t, "--project", root, "typst", "link")
	if !errors.Is(res.err, tools.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", res.err)
	}
	if !errors.Is(res.err, tools.ErrNetworkDisabled) {
		t.Fatalf("expected ErrNetworkDisabled, got %v", res.err)
	}
	if _, err := os.Stat(filepath.Join(root, "bin", "typst")); !os.IsNotExist(err) {
		t.Fatalf("shim must not be written on failure: %v", err)
	}
}

func TestTypstLinkJSON(t *testing.T) {
	isolate(t)
	root := newProject(t, "0.13.1")
	seedManagedTypst(t, "0.13.1")

	res := runCLI(t, "--project", root, "--format", "json", "typst", "link")
	if res.err != nil {
		t.Fatal(res.err)
	}
	var got struct {
		Resolution struct {
			Kind string `json:"kind"`
			Info struct {
				Version string `json:"version"`
				Source  string `json:"source"`
			} `json:"info"`
		} `json:"resolution"`
		Written bool `json:"written"`
	}
	if err := json.Unmarshal([]byte(res.stdout), &got); err != nil {
		t.Fatalf("decode %q: %v", res.stdout, err)
	}
	if got.Resolution.Kind != "resolved" || got.Resolution.Info.Version != "0.13.1" || got.Resolution.Info.Source != "managed" || !got.Written {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestTypstInstallRefusesOffline(t *testing.T) {
	isolate(t)
	root := newProject(t, "0.13.1")

	res := runCLI(t, "--project", root, "typst", "install")
	if !errors.Is(res.err, tools.ErrNetworkDisabled) {
		t.Fatalf("expected ErrNetworkDisabled, got %v", res.err)
	}
}

func TestTypstInstallRejectsRange(t *testing.T) {
	isolate(t)
	res := runCLI(t, "typst", "install", "^0.13")
	if !errors.Is(res.err, tools.ErrInvalidVersion) {
		t.Fatalf("expected ErrInvalidVersion, got %v", res.err)
	}
}

func TestTypstVersionsJSON(t *testing.T) {
	isolate(t)
	root := newProject(t, "0.13.1")
	seedManagedTypst(t, "0.12.0")
	current := seedManagedTypst(t, "0.13.1")
	if res := runCLI(t, "--project", root, "typst", "link"); res.err != nil {
		t.Fatal(res.err)
	}

	res := runCLI(t, "--project", root, "--format", "json", "typst", "versions")
	if res.err != nil {
		t.Fatal(res.err)
	}
	var got []tools.InstalledVersion
	if err := json.Unmarshal([]byte(res.stdout), &got); err != nil {
		t.Fatalf("decode %q: %v", res.stdout, err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d versions, want 2: %+v", len(got), got)
	}
	if got[0].Version != "0.13.1" || !got[0].Current || got[0].Path != current {
		t.Fatalf("unexpected first entry: %+v", got[0])
	}
	if got[1].Version != "0.12.0" || got[1].Current {
		t.Fatalf("unexpected second entry: %+v", got[1])
	}
}

func TestTypstVersionsEmpty(t *testing.T) {
	isolate(t)
	t.Chdir(t.TempDir())

	res := runCLI(t, "typst", "versions")
	if res.err != nil {
		t.Fatal(res.err)
	}
	if res.stdout != "No Typst versions installed.\n" {
		t.Fatalf("got %q", res.stdout)
	}
}

func TestTypstExecPassesArgsAndExitCode(t *testing.T) {
	isolate(t)
	root := newProject(t, "0.13.1")
	seedManagedTypst(t, "0.13.1")

	res := runCLI(t, "--project", root, "typst", "exec", "--", "compile", "main.typ")
	if res.err != nil {
		t.Fatal(res.err)
	}
	if res.stdout != "ran compile main.typ\n" {
		t.Fatalf("got %q", res.stdout)
	}

	res = runCLI(t, "--project", root, "typst", "exec", "--", "fail", "4")
	var exit *exitError
	if !errors.As(res.err, &exit) || exit.code != 4 {
		t.Fatalf("expected exit status 4, got %v", res.err)
	}
}
