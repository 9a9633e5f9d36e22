package tools

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sort"

	"github.com/Masterminds/semver/v3"

	"typstlab/internal/paths"
	"typstlab/internal/state"
)

// InstalledVersion is one entry of a version listing.
type InstalledVersion struct {
	Version string `json:"version" yaml:"version"`
	Path    string `json:"path" yaml:"path"`
	Source  Source `json:"source" yaml:"source"`
	Current bool   `json:"current" yaml:"current"`
}

// Versions lists managed installs of tool plus the system binary, newest
// first. The entry recorded in the project state is marked current.
func (r *Resolver) Versions(ctx context.Context, tool, projectRoot string) ([]InstalledVersion, error) {
	def, ok := Definition(tool)
	if !ok {
		return nil, ErrUnknownTool
	}

	var out []InstalledVersion
	seen := map[string]bool{}
	add := func(v InstalledVersion) {
		key := string(v.Source) + "|" + v.Version
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, v)
	}

	entries, err := os.ReadDir(r.layout().ToolDir(def.Name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		// Staging dirs, download scratch and stray directories are not versions.
		if _, err := semver.StrictNewVersion(entry.Name()); err != nil {
			continue
		}
		bin := r.layout().BinaryPath(def, entry.Name())
		if !isExecutableFile(bin) {
			continue
		}
		add(InstalledVersion{Version: entry.Name(), Path: bin, Source: SourceManaged})
	}

	if systemPath, err := r.lookPath(def.Executable); err == nil {
		if version, err := readVersion(ctx, r.runner(), def, systemPath); err == nil {
			add(InstalledVersion{Version: version, Path: systemPath, Source: SourceSystem})
		} else {
			r.Logger.Debug().Err(err).Str("path", systemPath).Msg("system version check failed")
		}
	}

	if projectRoot != "" {
		if ts, ok := state.Load(paths.StateFile(projectRoot)).Tool(def.Name); ok {
			for i := range out {
				if out[i].Path == ts.ResolvedPath && out[i].Version == ts.ResolvedVersion {
					out[i].Current = true
				}
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if c := compareVersions(out[i].Version, out[j].Version); c != 0 {
			return c > 0
		}
		return out[i].Source == SourceManaged && out[j].Source != SourceManaged
	})
	return out, nil
}
