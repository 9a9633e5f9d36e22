package tools

import (
	"runtime"
	"sort"
)

// Fallback describes the slow secondary install channel for a tool.
type Fallback struct {
	Crate string
}

// ToolDefinition contains metadata required to manage a tool.
type ToolDefinition struct {
	Name          string
	Executable    string
	VersionSwitch string
	// Repo is the GitHub owner/name publishing release archives.
	Repo      string
	TagPrefix string
	// LinuxLibc narrows Linux asset matching when a release ships several
	// libc flavours for the same architecture.
	LinuxLibc string
	Fallback  *Fallback
	// ShimArgs are the typstlab arguments a project bin shim re-enters with.
	ShimArgs []string
}

var toolDefinitions = map[string]ToolDefinition{
	"typst": {
		Name:          "typst",
		Executable:    executableName("typst"),
		VersionSwitch: "--version",
		Repo:          "typst/typst",
		TagPrefix:     "v",
		Fallback:      &Fallback{Crate: "typst-cli"},
		ShimArgs:      []string{"typst", "exec", "--"},
	},
	"uv": {
		Name:          "uv",
		Executable:    executableName("uv"),
		VersionSwitch: "--version",
		Repo:          "astral-sh/uv",
		LinuxLibc:     "gnu",
	},
}

func executableName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}

// KnownTools returns the list of managed tool names.
func KnownTools() []string {
	names := make([]string, 0, len(toolDefinitions))
	for name := range toolDefinitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definition returns the tool definition for the provided name.
func Definition(name string) (ToolDefinition, bool) {
	def, ok := toolDefinitions[name]
	return def, ok
}

// Tag returns the release tag for version.
func (d ToolDefinition) Tag(version string) string {
	return d.TagPrefix + version
}
