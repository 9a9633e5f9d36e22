package tools

import (
	"fmt"
	"runtime"
)

// InstallHints suggests how a user or agent can satisfy a NotFound result.
func InstallHints(tool, version string) []string {
	switch tool {
	case "typst":
		return []string{
			fmt.Sprintf("Install into the managed cache: typstlab typst install %s", version),
			fmt.Sprintf("or build from source: typstlab typst install %s --from-cargo", version),
		}
	case "uv":
		hints := []string{fmt.Sprintf("Install into the managed cache: typstlab sync (requires [tools.uv] version = %q)", version)}
		switch runtime.GOOS {
		case "darwin":
			hints = append(hints, "or via Homebrew: brew install uv")
		case "windows":
			hints = append(hints, "or via winget: winget install astral-sh.uv")
		default:
			hints = append(hints, "or via the standalone installer: curl -LsSf https://astral.sh/uv/install.sh | sh")
		}
		return hints
	default:
		return nil
	}
}
