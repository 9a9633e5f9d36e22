package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const (
	ConfigFileName = "typstlab.toml"
	MetaDirName    = ".typstlab"
	appName        = "typstlab"
)

// ErrProjectNotFound is returned when no typstlab.toml exists in the working
// directory or any of its parents.
var ErrProjectNotFound = errors.New("not inside a typstlab project (no " + ConfigFileName + " found)")

// ProjectPaths captures canonical locations for a typstlab project.
type ProjectPaths struct {
	Root       string
	ConfigFile string
	MetaDir    string
	StateFile  string
	SyncLock   string
	LogsDir    string
	BinDir     string
}

// Resolve determines the project root from the optional --project flag, or
// by walking up from the current working directory to the nearest
// typstlab.toml.
func Resolve(projectFlag string) (ProjectPaths, error) {
	if projectFlag != "" {
		root, err := filepath.Abs(projectFlag)
		if err != nil {
			return ProjectPaths{}, fmt.Errorf("resolve project root: %w", err)
		}
		return New(root), nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ProjectPaths{}, fmt.Errorf("resolve project root: %w", err)
	}
	root, err := FindRoot(cwd)
	if err != nil {
		return ProjectPaths{}, err
	}
	return New(root), nil
}

// FindRoot returns the nearest ancestor of start (inclusive) holding a
// typstlab.toml.
func FindRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		ok, err := FileExists(filepath.Join(dir, ConfigFileName))
		if err != nil {
			return "", err
		}
		if ok {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrProjectNotFound
		}
		dir = parent
	}
}

// New lays out project paths below root.
func New(root string) ProjectPaths {
	metaDir := filepath.Join(root, MetaDirName)
	return ProjectPaths{
		Root:       root,
		ConfigFile: filepath.Join(root, ConfigFileName),
		MetaDir:    metaDir,
		StateFile:  StateFile(root),
		SyncLock:   filepath.Join(metaDir, "sync.lock"),
		LogsDir:    filepath.Join(metaDir, "logs"),
		BinDir:     filepath.Join(root, "bin"),
	}
}

// StateFile is the per-project resolution record.
func StateFile(root string) string {
	return filepath.Join(root, MetaDirName, "state.json")
}

// EnsureMetaDirs creates the hidden .typstlab metadata hierarchy.
func (p ProjectPaths) EnsureMetaDirs() error {
	for _, dir := range []string{p.MetaDir, p.LogsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ManagedCacheRoot returns the machine-wide managed toolchain cache. The
// location follows the OS convention only; no environment variable
// redirects it.
func ManagedCacheRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("detect user home: %w", err)
	}
	return managedCacheRoot(runtime.GOOS, home), nil
}

func managedCacheRoot(goos, home string) string {
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "Caches", appName)
	case "windows":
		return filepath.Join(home, "AppData", "Local", appName)
	default:
		return filepath.Join(home, ".cache", appName)
	}
}

// FileExists reports whether a path exists and is a regular file.
func FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// DirExists reports whether a path exists and is a directory.
func DirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}
