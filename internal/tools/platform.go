package tools

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// archiveSuffixes lists the release archive formats the installer unpacks.
var archiveSuffixes = []string{".tar.xz", ".tar.gz", ".tgz", ".zip"}

// Target returns the asset name fragment identifying goos/goarch releases
// of def, for example "x86_64-unknown-linux" or "aarch64-apple-darwin".
func Target(def ToolDefinition, goos, goarch string) (string, error) {
	var arch string
	switch goarch {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	default:
		return "", &AssetSelectionError{Reason: SelectionUnsupported, Target: goos + "/" + goarch}
	}

	switch goos {
	case "darwin":
		return arch + "-apple-darwin", nil
	case "linux":
		target := arch + "-unknown-linux"
		if def.LinuxLibc != "" {
			target += "-" + def.LinuxLibc
		}
		return target, nil
	case "windows":
		return arch + "-pc-windows", nil
	default:
		return "", &AssetSelectionError{Reason: SelectionUnsupported, Target: goos + "/" + goarch}
	}
}

// HostTarget is Target for the running platform.
func HostTarget(def ToolDefinition) (string, error) {
	return Target(def, runtime.GOOS, runtime.GOARCH)
}

// SelectAsset picks the single archive whose name contains target. Zero or
// several matches fail; there is no tie-breaking.
func SelectAsset(assets []Asset, target string) (Asset, error) {
	var matches []Asset
	for _, asset := range assets {
		if !strings.Contains(asset.Name, target) {
			continue
		}
		if archiveFormat(asset.Name) == "" {
			continue
		}
		matches = append(matches, asset)
	}

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return Asset{}, &AssetSelectionError{Reason: SelectionNone, Target: target}
	default:
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.Name
		}
		sort.Strings(names)
		return Asset{}, &AssetSelectionError{Reason: SelectionAmbiguous, Target: target, Candidates: names}
	}
}

func archiveFormat(name string) string {
	lower := strings.ToLower(name)
	for _, suffix := range archiveSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return suffix
		}
	}
	return ""
}

func describeAsset(a Asset) string {
	if a.Size > 0 {
		return fmt.Sprintf("%s (%d bytes)", a.Name, a.Size)
	}
	return a.Name
}
