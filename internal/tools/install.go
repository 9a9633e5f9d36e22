package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"typstlab/internal/lock"
	"typstlab/internal/paths"
)

const (
	DefaultLockTimeout     = 5 * time.Minute
	DefaultDownloadTimeout = 10 * time.Minute
)

// InstallRequest names the tool version to place into the managed cache.
type InstallRequest struct {
	Tool            string
	RequiredVersion string
	ProjectRoot     string
	// FromFallback skips the release channel and builds with cargo.
	FromFallback bool
}

// Installer fetches, verifies and atomically places tool versions into the
// managed cache. Installs of the same (tool, version) serialize on a file
// lock; different versions proceed in parallel.
type Installer struct {
	CacheRoot       string
	Index           ReleaseIndex
	HTTPClient      *http.Client
	Runner          Runner
	LookPath        func(string) (string, error)
	LockTimeout     time.Duration
	DownloadTimeout time.Duration
	// Offline refuses any network access once an install is needed.
	Offline  bool
	Reporter Reporter
	Logger   zerolog.Logger
	Now      func() time.Time
	// GOOS and GOARCH override the host platform for asset selection.
	GOOS   string
	GOARCH string

	group   singleflight.Group
	mu      sync.Mutex
	flights map[string]*flight
}

// flight is the context shared by every caller waiting on one install key.
// It outlives any single caller and is cancelled when the last one leaves.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func (in *Installer) join(ctx context.Context, key string) context.Context {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.flights == nil {
		in.flights = make(map[string]*flight)
	}
	f, ok := in.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		in.flights[key] = f
	}
	f.waiters++
	return f.ctx
}

func (in *Installer) leave(key string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	f, ok := in.flights[key]
	if !ok {
		return
	}
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	delete(in.flights, key)
	// A call still unwinding on the cancelled context must not be joined.
	in.group.Forget(key)
}

// NewInstaller returns an installer over the OS-convention managed cache
// backed by the GitHub release index.
func NewInstaller(logger zerolog.Logger) (*Installer, error) {
	root, err := paths.ManagedCacheRoot()
	if err != nil {
		return nil, err
	}
	layout := Layout{Root: root}
	return &Installer{
		CacheRoot: root,
		Index:     &CachedIndex{Next: NewGitHubIndex(), Layout: layout},
		Logger:    logger,
	}, nil
}

func (in *Installer) layout() Layout { return Layout{Root: in.CacheRoot} }

func (in *Installer) runner() Runner {
	if in.Runner == nil {
		return CmdRunner{}
	}
	return in.Runner
}

func (in *Installer) lookPath(name string) (string, error) {
	if in.LookPath == nil {
		return exec.LookPath(name)
	}
	return in.LookPath(name)
}

func (in *Installer) reporter() Reporter {
	if in.Reporter == nil {
		return nopReporter{}
	}
	return in.Reporter
}

func (in *Installer) now() time.Time {
	if in.Now == nil {
		return time.Now().UTC()
	}
	return in.Now().UTC()
}

func (in *Installer) target(def ToolDefinition) (string, error) {
	goos, goarch := in.GOOS, in.GOARCH
	if goos == "" {
		goos = runtime.GOOS
	}
	if goarch == "" {
		goarch = runtime.GOARCH
	}
	return Target(def, goos, goarch)
}

// Install makes req.RequiredVersion available in the managed cache and
// returns its location. An already installed version returns immediately
// without taking a lock or writing anything. Concurrent callers on one
// Installer share a single install; cancelling ctx releases only this caller,
// and the install itself is abandoned once no caller is left waiting.
func (in *Installer) Install(ctx context.Context, req InstallRequest) (Info, error) {
	def, ok := Definition(req.Tool)
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrUnknownTool, req.Tool)
	}
	if err := ValidateVersion(req.RequiredVersion); err != nil {
		return Info{}, err
	}
	if in.CacheRoot == "" {
		return Info{}, fmt.Errorf("managed cache root not configured")
	}

	version := req.RequiredVersion
	binPath := in.layout().BinaryPath(def, version)
	if isExecutableFile(binPath) {
		in.reporter().Stage(def.Name, version, StageCached, binPath)
		return Info{Tool: def.Name, Path: binPath, Version: version, Source: SourceManaged, CheckedAt: in.now()}, nil
	}

	key := def.Name + "@" + version
	if req.FromFallback {
		key += "+fallback"
	}
	shared := in.join(ctx, key)
	defer in.leave(key)
	ch := in.group.DoChan(key, func() (any, error) {
		return in.installLocked(shared, def, version, req.FromFallback)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		err := fmt.Errorf("install %s %s: %w", def.Name, version, ctx.Err())
		in.reporter().Stage(def.Name, version, StageFailed, err.Error())
		return Info{}, err
	case res = <-ch:
	}
	if res.Err != nil {
		in.reporter().Stage(def.Name, version, StageFailed, res.Err.Error())
		return Info{}, res.Err
	}
	info := res.Val.(Info)
	recordResolution(ctx, req.ProjectRoot, info, in.Logger)
	return info, nil
}

func (in *Installer) installLocked(ctx context.Context, def ToolDefinition, version string, fromFallback bool) (Info, error) {
	layout := in.layout()
	binPath := layout.BinaryPath(def, version)
	attempt := uuid.NewString()
	logger := in.Logger.With().Str("tool", def.Name).Str("version", version).Str("attempt", attempt).Logger()

	timeout := in.LockTimeout
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	guard, err := lock.Acquire(ctx, layout.LockPath(def.Name, version), timeout,
		fmt.Sprintf("install %s %s", def.Name, version),
		lock.WithLogger(logger),
		lock.OnWait(func(_ string, waited time.Duration, holder *lock.Holder) {
			detail := fmt.Sprintf("waited %s", waited.Round(time.Second))
			if holder != nil {
				detail += fmt.Sprintf(" for pid %d", holder.PID)
			}
			in.reporter().Stage(def.Name, version, StageWaiting, detail)
		}),
	)
	if err != nil {
		return Info{}, err
	}
	defer guard.Release()

	// Another process may have finished while we waited.
	if isExecutableFile(binPath) {
		logger.Debug().Msg("installed by another process while waiting")
		in.reporter().Stage(def.Name, version, StageCached, binPath)
		return Info{Tool: def.Name, Path: binPath, Version: version, Source: SourceManaged, CheckedAt: in.now()}, nil
	}

	if in.Offline {
		return Info{}, fmt.Errorf("install %s %s: %w", def.Name, version, ErrNetworkDisabled)
	}

	toolDir := layout.ToolDir(def.Name)
	if err := os.MkdirAll(toolDir, 0o755); err != nil {
		return Info{}, fmt.Errorf("prepare cache dir: %w", err)
	}
	staging, err := os.MkdirTemp(toolDir, ".staging-"+version+"-")
	if err != nil {
		return Info{}, fmt.Errorf("create staging dir: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(staging)
		}
	}()

	var primaryErr error
	if fromFallback {
		primaryErr = errors.New("release channel skipped on request")
	} else {
		primaryErr = in.installFromRelease(ctx, def, version, staging, logger)
	}
	if primaryErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Info{}, errors.Join(primaryErr, ctxErr)
		}
		logger.Warn().Err(primaryErr).Msg("release install failed; trying fallback")
		in.reporter().Stage(def.Name, version, StageFallback, "")
		if err := in.installFromFallback(ctx, def, version, staging); err != nil {
			return Info{}, errors.Join(primaryErr, err)
		}
	}

	staged := filepath.Join(staging, def.Executable)
	in.reporter().Stage(def.Name, version, StageVerifying, "")
	if err := in.verify(ctx, def, version, staged); err != nil {
		return Info{}, err
	}

	versionDir := layout.VersionDir(def.Name, version)
	// Only an interrupted earlier placement can leave this behind; we hold
	// the lock, so nothing else is writing it.
	if err := os.RemoveAll(versionDir); err != nil {
		return Info{}, fmt.Errorf("clear stale cache dir: %w", err)
	}
	if err := os.Rename(staging, versionDir); err != nil {
		return Info{}, fmt.Errorf("commit cache dir: %w", err)
	}
	committed = true

	logger.Info().Str("path", binPath).Msg("installed")
	in.reporter().Stage(def.Name, version, StageInstalled, binPath)
	return Info{Tool: def.Name, Path: binPath, Version: version, Source: SourceManaged, CheckedAt: in.now()}, nil
}

// installFromRelease leaves the release executable at staging/{executable}.
func (in *Installer) installFromRelease(ctx context.Context, def ToolDefinition, version, staging string, logger zerolog.Logger) error {
	if in.Index == nil {
		return &MetadataError{Tool: def.Name, Version: version, Err: errors.New("no release index configured")}
	}

	in.reporter().Stage(def.Name, version, StageMetadata, def.Tag(version))
	release, err := in.Index.Release(ctx, def, version)
	if err != nil {
		return err
	}

	target, err := in.target(def)
	if err != nil {
		return err
	}
	asset, err := SelectAsset(release.Assets, target)
	if err != nil {
		return err
	}
	logger.Debug().Str("asset", describeAsset(asset)).Msg("selected release asset")

	downloadTimeout := in.DownloadTimeout
	if downloadTimeout <= 0 {
		downloadTimeout = DefaultDownloadTimeout
	}
	dctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	in.reporter().Stage(def.Name, version, StageDownloading, asset.Name)
	archive, err := downloadAsset(dctx, in.HTTPClient, asset, in.layout().DownloadsDir(def.Name), func(done, total int64) {
		in.reporter().Bytes(def.Name, version, done, total)
	})
	if err != nil {
		return err
	}
	defer os.Remove(archive)

	in.reporter().Stage(def.Name, version, StageExtracting, asset.Name)
	extractDir := filepath.Join(staging, ".extract")
	defer os.RemoveAll(extractDir)
	if err := extractArchive(archive, asset.Name, extractDir); err != nil {
		return err
	}
	found, err := findExecutable(extractDir, def.Executable)
	if err != nil {
		return &ExtractionError{Archive: asset.Name, Err: err}
	}
	if err := os.Rename(found, filepath.Join(staging, def.Executable)); err != nil {
		return &ExtractionError{Archive: asset.Name, Err: err}
	}
	return nil
}

// verify runs the staged binary and requires it to report exactly version.
func (in *Installer) verify(ctx context.Context, def ToolDefinition, version, path string) error {
	if !isExecutableFile(path) {
		return &VerificationError{Path: path, Err: errors.New("executable missing")}
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(path, 0o755); err != nil {
			return &VerificationError{Path: path, Err: err}
		}
	}
	actual, err := readVersion(ctx, in.runner(), def, path)
	if err != nil {
		return &VerificationError{Path: path, Err: err}
	}
	if actual != version {
		return &VerificationError{Path: path, Err: &VersionMismatchError{Path: path, Expected: version, Actual: actual}}
	}
	return nil
}
