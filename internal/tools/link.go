package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"typstlab/internal/pathguard"
)

// ShimPath returns the project-relative location of def's shim.
func ShimPath(def ToolDefinition) string {
	if runtime.GOOS == "windows" {
		return filepath.Join("bin", def.Name+".cmd")
	}
	return filepath.Join("bin", def.Name)
}

// shimScript re-enters typstlab so the project's pinned version is resolved
// on every invocation.
func shimScript(def ToolDefinition, goos string) string {
	args := strings.Join(def.ShimArgs, " ")
	if goos == "windows" {
		return fmt.Sprintf("@echo off\r\ntypstlab %s %%*\r\n", args)
	}
	return fmt.Sprintf("#!/bin/sh\nexec typstlab %s \"$@\"\n", args)
}

// WriteShim writes the bin shim for def under projectRoot. An existing shim
// is kept unless force is set. It reports whether the file was written.
func WriteShim(projectRoot string, def ToolDefinition, force bool) (string, bool, error) {
	if len(def.ShimArgs) == 0 {
		return "", false, fmt.Errorf("%s has no shim", def.Name)
	}
	target, err := pathguard.Validate(projectRoot, ShimPath(def))
	if err != nil {
		return "", false, err
	}
	if !force && isExecutableFile(target) {
		return target, false, nil
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, fmt.Errorf("create bin dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".shim-*")
	if err != nil {
		return "", false, fmt.Errorf("create shim: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(shimScript(def, runtime.GOOS)); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", false, fmt.Errorf("write shim: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", false, fmt.Errorf("close shim: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o755); err != nil {
		os.Remove(tmpPath)
		return "", false, fmt.Errorf("chmod shim: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return "", false, fmt.Errorf("place shim: %w", err)
	}
	return target, true, nil
}
