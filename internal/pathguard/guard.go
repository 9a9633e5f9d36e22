package pathguard

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathEscape matches every containment failure.
var ErrPathEscape = errors.New("path escapes root")

// EscapeError names the rejected path and why it was rejected.
type EscapeError struct {
	Path   string
	Root   string
	Reason string
}

func (e *EscapeError) Error() string {
	if e.Root == "" {
		return fmt.Sprintf("unsafe path %q: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("path %q escapes %s: %s", e.Path, e.Root, e.Reason)
}

func (e *EscapeError) Is(target error) bool {
	return target == ErrPathEscape
}

// CheckRelative performs the syntactic check alone. It touches no filesystem
// state, so it also applies to paths that do not exist yet.
func CheckRelative(p string) error {
	if strings.TrimSpace(p) == "" {
		return &EscapeError{Path: p, Reason: "empty path"}
	}
	if strings.ContainsRune(p, 0) {
		return &EscapeError{Path: p, Reason: "contains NUL byte"}
	}
	for _, c := range Components(p) {
		switch c.Kind {
		case KindParent:
			return &EscapeError{Path: p, Reason: "contains parent directory component"}
		case KindRoot:
			return &EscapeError{Path: p, Reason: "rooted path"}
		case KindPrefix:
			return &EscapeError{Path: p, Reason: fmt.Sprintf("contains path prefix %q", c.Text)}
		}
	}
	return nil
}

// Validate returns the canonical location of requested inside root, or an
// *EscapeError. Symlinks along existing parts of the path are resolved before
// the containment check; a missing tail is re-appended unresolved.
func Validate(root, requested string) (string, error) {
	if err := CheckRelative(requested); err != nil {
		return "", err
	}

	canonRoot, err := Canonical(root)
	if err != nil {
		return "", fmt.Errorf("resolve root %s: %w", root, err)
	}

	parts := []string{canonRoot}
	for _, c := range Components(requested) {
		if c.Kind == KindNormal {
			parts = append(parts, c.Text)
		}
	}
	candidate := filepath.Join(parts...)

	resolved, err := resolveExisting(candidate)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", requested, err)
	}
	if !IsStrictDescendant(canonRoot, resolved) {
		return "", &EscapeError{Path: requested, Root: canonRoot, Reason: fmt.Sprintf("resolves to %s", resolved)}
	}
	return resolved, nil
}

// Canonical returns the absolute, symlink-free form of an existing path.
func Canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// maxLinkHops bounds how many dangling symlinks resolveExisting follows by
// hand, matching the usual kernel limit.
const maxLinkHops = 40

// resolveExisting canonicalizes the deepest existing ancestor of p. A
// dangling symlink is followed to where it points, so its target is judged
// like any other not-yet-created path.
func resolveExisting(p string) (string, error) {
	return resolveExistingHops(p, 0)
}

func resolveExistingHops(p string, hops int) (string, error) {
	var tail []string
	current := filepath.Clean(p)
	for {
		if info, err := os.Lstat(current); err == nil {
			resolved, err := filepath.EvalSymlinks(current)
			if err != nil {
				if info.Mode()&fs.ModeSymlink == 0 || !errors.Is(err, fs.ErrNotExist) {
					return "", err
				}
				if hops >= maxLinkHops {
					return "", fmt.Errorf("%s: too many levels of symbolic links", current)
				}
				target, rerr := os.Readlink(current)
				if rerr != nil {
					return "", rerr
				}
				if !filepath.IsAbs(target) {
					target = filepath.Join(filepath.Dir(current), target)
				}
				if resolved, err = resolveExistingHops(target, hops+1); err != nil {
					return "", err
				}
			}
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return resolved, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", fmt.Errorf("no existing ancestor for %s", p)
		}
		tail = append(tail, filepath.Base(current))
		current = parent
	}
}

// IsStrictDescendant reports whether child lies below root. Both paths must
// already be cleaned and absolute.
func IsStrictDescendant(root, child string) bool {
	rel, err := filepath.Rel(root, child)
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." || filepath.IsAbs(rel) {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Walk visits every entry below root in lexical order without descending into
// symlinked directories. fn receives the entry's path relative to root.
func Walk(root string, fn func(rel string, d fs.DirEntry) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		// WalkDir reports symlinks via Lstat and never descends into them.
		return fn(rel, d)
	})
}
