package tools

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"typstlab/internal/paths"
	"typstlab/internal/state"
)

// Resolver finds an executable reporting exactly the required version.
// Sources are consulted in a fixed order: project state record, managed
// cache, system PATH.
type Resolver struct {
	// CacheRoot is the managed cache root; tool directories live below it.
	CacheRoot string
	Runner    Runner
	LookPath  func(string) (string, error)
	Now       func() time.Time
	Logger    zerolog.Logger
	// ReadOnly resolves without recording hits in the project state.
	ReadOnly bool
}

// NewResolver returns a resolver over the OS-convention managed cache.
func NewResolver(logger zerolog.Logger) (*Resolver, error) {
	root, err := paths.ManagedCacheRoot()
	if err != nil {
		return nil, err
	}
	return &Resolver{CacheRoot: root, Logger: logger}, nil
}

func (r *Resolver) layout() Layout { return Layout{Root: r.CacheRoot} }

func (r *Resolver) runner() Runner {
	if r.Runner == nil {
		return CmdRunner{}
	}
	return r.Runner
}

func (r *Resolver) lookPath(name string) (string, error) {
	if r.LookPath == nil {
		return exec.LookPath(name)
	}
	return r.LookPath(name)
}

func (r *Resolver) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}

// Resolve searches for req.RequiredVersion. A version that cannot be found
// is reported as a NotFound resolution, not an error; errors are reserved
// for invalid input.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Resolution, error) {
	def, ok := Definition(req.Tool)
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %s", ErrUnknownTool, req.Tool)
	}
	if err := ValidateVersion(req.RequiredVersion); err != nil {
		return Resolution{}, err
	}
	if r.CacheRoot == "" {
		return Resolution{}, fmt.Errorf("managed cache root not configured")
	}

	logger := r.Logger.With().Str("tool", def.Name).Str("required", req.RequiredVersion).Logger()

	if !req.ForceRefresh && req.ProjectRoot != "" {
		if res, ok := r.fromState(def, req, logger); ok {
			return res, nil
		}
	}

	var searched []string

	managed := r.layout().BinaryPath(def, req.RequiredVersion)
	searched = append(searched, "managed cache: "+managed)
	if isExecutableFile(managed) {
		info := Info{Tool: def.Name, Path: managed, Version: req.RequiredVersion, Source: SourceManaged, CheckedAt: r.now()}
		logger.Debug().Str("path", managed).Msg("resolved from managed cache")
		r.persist(ctx, req.ProjectRoot, info)
		return Resolution{Kind: Resolved, Info: info, RequiredVersion: req.RequiredVersion}, nil
	}

	systemPath, err := r.lookPath(def.Executable)
	switch {
	case err != nil:
		searched = append(searched, fmt.Sprintf("system PATH: %s not found", def.Executable))
	default:
		version, verr := readVersion(ctx, r.runner(), def, systemPath)
		switch {
		case verr != nil:
			searched = append(searched, fmt.Sprintf("system PATH: %s (version check failed: %v)", systemPath, verr))
		case version != req.RequiredVersion:
			searched = append(searched, fmt.Sprintf("system PATH: %s (reports %s)", systemPath, version))
		default:
			info := Info{Tool: def.Name, Path: systemPath, Version: version, Source: SourceSystem, CheckedAt: r.now()}
			logger.Debug().Str("path", systemPath).Msg("resolved from system PATH")
			r.persist(ctx, req.ProjectRoot, info)
			return Resolution{Kind: Resolved, Info: info, RequiredVersion: req.RequiredVersion}, nil
		}
	}

	logger.Debug().Strs("searched", searched).Msg("no matching executable")
	return Resolution{
		Kind:              NotFound,
		Info:              Info{Tool: def.Name},
		RequiredVersion:   req.RequiredVersion,
		SearchedLocations: searched,
	}, nil
}

// fromState is the lock-free fast path: a recorded resolution for exactly
// the required version whose path still exists is trusted without spawning
// the binary.
func (r *Resolver) fromState(def ToolDefinition, req Request, logger zerolog.Logger) (Resolution, bool) {
	rec, status, err := state.Inspect(paths.StateFile(req.ProjectRoot))
	if err != nil {
		logger.Debug().Err(err).Str("status", string(status)).Msg("state record discarded (recovered)")
		return Resolution{}, false
	}
	ts, ok := rec.Tool(def.Name)
	if !ok || ts.ResolvedVersion != req.RequiredVersion || !isExecutableFile(ts.ResolvedPath) {
		return Resolution{}, false
	}
	source := Source(ts.ResolvedSource)
	if source != SourceManaged && source != SourceSystem {
		source = SourceCache
	}
	return Resolution{
		Kind: Cached,
		Info: Info{
			Tool:      def.Name,
			Path:      ts.ResolvedPath,
			Version:   ts.ResolvedVersion,
			Source:    source,
			CheckedAt: ts.CheckedAt,
		},
		RequiredVersion: req.RequiredVersion,
	}, true
}

func (r *Resolver) persist(ctx context.Context, projectRoot string, info Info) {
	if r.ReadOnly {
		return
	}
	recordResolution(ctx, projectRoot, info, r.Logger)
}

// recordResolution stores info in the project state record. The record is
// disposable, so a failed write is logged rather than returned.
func recordResolution(ctx context.Context, projectRoot string, info Info, logger zerolog.Logger) {
	if projectRoot == "" {
		return
	}
	err := state.Update(ctx, paths.StateFile(projectRoot), func(rec *state.Record) error {
		rec.SetTool(info.Tool, state.ToolState{
			ResolvedPath:    info.Path,
			ResolvedVersion: info.Version,
			ResolvedSource:  string(info.Source),
			CheckedAt:       info.CheckedAt,
		})
		return nil
	})
	if err != nil {
		logger.Warn().Err(err).Str("tool", info.Tool).Msg("record resolution in state")
	}
}
