package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"typstlab/internal/lock"
)

// LockTimeout bounds how long a writer waits for the state lock.
const LockTimeout = 30 * time.Second

// Status describes what Inspect found on disk.
type Status string

const (
	StatusMissing      Status = "missing"
	StatusCurrent      Status = "current"
	StatusUnrecognized Status = "unrecognized"
	StatusCorrupt      Status = "corrupt"
)

// CorruptError describes a state file that was discarded. It is never
// returned by Load; Inspect reports it for diagnostics.
type CorruptError struct {
	Path   string
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("state file %s discarded: %s", e.Path, e.Reason)
}

// document is one known on-disk layout, or the unrecognized variant.
type document interface {
	record() *Record
}

type documentV1 Record

func (d *documentV1) record() *Record {
	rec := (*Record)(d)
	rec.SchemaVersion = SchemaVersion
	if rec.Tools == nil {
		rec.Tools = map[string]ToolState{}
	}
	return rec
}

type unrecognized struct {
	version string
}

func (unrecognized) record() *Record { return Empty() }

func parse(data []byte) (document, error) {
	var header struct {
		SchemaVersion *string `json:"schema_version"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, err
	}
	if header.SchemaVersion == nil {
		return unrecognized{}, nil
	}
	switch *header.SchemaVersion {
	case "1.0":
		var doc documentV1
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		return &doc, nil
	default:
		return unrecognized{version: *header.SchemaVersion}, nil
	}
}

// LockPath returns the lock file guarding the record at path.
func LockPath(path string) string {
	return path + ".lock"
}

// Load reads the record at path. It never fails: a missing, corrupt, or
// unrecognized file yields an empty record.
func Load(path string) *Record {
	rec, _, _ := Inspect(path)
	return rec
}

// Inspect is Load plus a report of what was found. The error is a
// *CorruptError for discarded payloads and is informational only.
func Inspect(path string) (*Record, Status, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Empty(), StatusMissing, nil
		}
		return Empty(), StatusCorrupt, &CorruptError{Path: path, Reason: err.Error()}
	}
	doc, err := parse(data)
	if err != nil {
		return Empty(), StatusCorrupt, &CorruptError{Path: path, Reason: err.Error()}
	}
	if u, ok := doc.(unrecognized); ok {
		reason := "missing schema_version"
		if u.version != "" {
			reason = fmt.Sprintf("unrecognized schema_version %q", u.version)
		}
		return Empty(), StatusUnrecognized, &CorruptError{Path: path, Reason: reason}
	}
	return doc.record(), StatusCurrent, nil
}

// Save writes rec to path under the state lock.
func Save(ctx context.Context, rec *Record, path string) error {
	return lock.With(ctx, LockPath(path), LockTimeout, "save state", func() error {
		return write(rec, path)
	})
}

// Update loads, mutates, and writes the record under a single hold of the
// state lock. Sections owned by different callers must be changed this way
// to avoid lost updates.
func Update(ctx context.Context, path string, fn func(*Record) error) error {
	return lock.With(ctx, LockPath(path), LockTimeout, "update state", func() error {
		rec := Load(path)
		if err := fn(rec); err != nil {
			return err
		}
		return write(rec, path)
	})
}

// write must only be called with the state lock held.
func write(rec *Record, path string) error {
	if rec == nil {
		rec = Empty()
	}
	rec.SchemaVersion = SchemaVersion
	rec.Machine = CurrentMachine()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("prepare state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	committed = true
	syncDir(dir)
	return nil
}

func syncDir(dir string) {
	if runtime.GOOS == "windows" {
		return
	}
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
