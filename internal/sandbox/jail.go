package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideJail is matched by every ViolationError.
var ErrOutsideJail = errors.New("path outside sandbox root")

// ViolationError reports a path that resolves outside the jail root.
type ViolationError struct {
	Path   string // Path as requested
	Reason string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("sandbox violation: %s: %s", e.Path, e.Reason)
}

func (e *ViolationError) Is(target error) bool { return target == ErrOutsideJail }

// Retryable is always false; a rejected path stays rejected.
func (e *ViolationError) Retryable() bool { return false }

// Jail confines file access to a single canonical directory. It is immutable
// after construction and safe for concurrent use.
type Jail struct {
	root string
}

// NewJail canonicalizes root. The directory must exist.
func NewJail(root string) (*Jail, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve sandbox root %q: %w", root, err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve sandbox root %q: %w", root, err)
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("stat sandbox root %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sandbox root %q is not a directory", root)
	}
	return &Jail{root: canonical}, nil
}

// Root returns the canonical root.
func (j *Jail) Root() string { return j.root }

// Verify resolves candidate to a canonical absolute path and returns it only
// if it lies at or under the root. Relative candidates are resolved against
// the root. Symlinks are followed, so a link inside the root that points
// outside is rejected. Paths that do not exist yet (write targets) are checked
// through their nearest existing ancestor.
func (j *Jail) Verify(candidate string) (string, error) {
	if candidate == "" {
		return "", &ViolationError{Path: candidate, Reason: "empty path"}
	}
	if strings.ContainsRune(candidate, 0) {
		return "", &ViolationError{Path: candidate, Reason: "path contains NUL byte"}
	}

	p := candidate
	if !filepath.IsAbs(p) {
		p = filepath.Join(j.root, p)
	}
	p = filepath.Clean(p)

	resolved, err := resolveExisting(p)
	if err != nil {
		return "", &ViolationError{Path: candidate, Reason: err.Error()}
	}
	if !j.contains(resolved) {
		return "", &ViolationError{Path: candidate, Reason: fmt.Sprintf("resolves to %s, outside %s", resolved, j.root)}
	}
	return resolved, nil
}

// resolveExisting follows symlinks on the longest existing prefix of p and
// reattaches the missing remainder.
func resolveExisting(p string) (string, error) {
	var missing []string
	cur := p
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		if _, lerr := os.Lstat(cur); lerr == nil {
			// The entry exists but its target does not: a dangling link
			// could be written through to anywhere.
			return "", fmt.Errorf("dangling symlink %s", cur)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", err
		}
		missing = append(missing, filepath.Base(cur))
		cur = parent
	}
}

func (j *Jail) contains(p string) bool {
	if p == j.root {
		return true
	}
	prefix := j.root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(p, prefix)
}
