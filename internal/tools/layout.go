package tools

import (
	"os"
	"path/filepath"
)

// Layout maps (tool, version) pairs onto the managed cache directory tree:
//
//	{root}/{tool}/{version}/{executable}
//	{root}/{tool}/{version}.lock
//	{root}/{tool}/.downloads/
//	{root}/{tool}/releases.json
type Layout struct {
	Root string
}

func (l Layout) ToolDir(tool string) string {
	return filepath.Join(l.Root, tool)
}

func (l Layout) VersionDir(tool, version string) string {
	return filepath.Join(l.Root, tool, version)
}

func (l Layout) BinaryPath(def ToolDefinition, version string) string {
	return filepath.Join(l.VersionDir(def.Name, version), def.Executable)
}

// LockPath is the per-(tool, version) install lock, a sibling of the
// version directory it protects.
func (l Layout) LockPath(tool, version string) string {
	return filepath.Join(l.Root, tool, version+".lock")
}

func (l Layout) DownloadsDir(tool string) string {
	return filepath.Join(l.Root, tool, ".downloads")
}

func (l Layout) ReleaseCachePath(tool string) string {
	return filepath.Join(l.Root, tool, "releases.json")
}

// isExecutableFile reports whether path is an existing regular file.
func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
