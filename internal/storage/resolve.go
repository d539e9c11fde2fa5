// Package storage confines file access to the video storage root.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrInvalidPath means the request itself is malformed: empty, or
	// carrying a parent-directory segment.
	ErrInvalidPath = errors.New("invalid path")
	// ErrOutsideRoot means the path resolves outside the storage root.
	ErrOutsideRoot = errors.New("access denied")
)

// Resolve maps p to an absolute path under root. Relative paths are
// joined to root; absolute paths are accepted only when they already
// lie under root. Symlinks are followed when the target exists, so a
// link inside root pointing outside it is rejected too.
func Resolve(root, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if hasParentSegment(p) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	full := p
	if !filepath.IsAbs(full) {
		full = filepath.Join(absRoot, p)
	}
	full = filepath.Clean(full)
	if !within(absRoot, full) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, p)
	}

	if real, err := filepath.EvalSymlinks(full); err == nil {
		realRoot, rerr := filepath.EvalSymlinks(absRoot)
		if rerr != nil {
			realRoot = absRoot
		}
		if !within(realRoot, real) {
			return "", fmt.Errorf("%w: %q", ErrOutsideRoot, p)
		}
		return real, nil
	} else if !os.IsNotExist(err) {
		return "", err
	}
	return full, nil
}

func hasParentSegment(p string) bool {
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return true
		}
	}
	return false
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
