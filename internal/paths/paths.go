package paths

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidPath is returned when a path does not live inside the media root.
var ErrInvalidPath = errors.New("path is outside the media root")

// InvalidPathError describes a path that could not be turned into an index key.
type InvalidPathError struct {
	Root string
	Path string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("%s: %q is not inside %q", ErrInvalidPath, e.Path, e.Root)
}

// Unwrap lets errors.Is match ErrInvalidPath.
func (e *InvalidPathError) Unwrap() error {
	return ErrInvalidPath
}

// ToRelativeKey returns the index key of absolutePath relative to root.
// The root itself and anything that escapes it are rejected.
func ToRelativeKey(root, absolutePath string) (string, error) {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(absolutePath))
	if err != nil {
		return "", &InvalidPathError{Root: root, Path: absolutePath}
	}

	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &InvalidPathError{Root: root, Path: absolutePath}
	}

	return filepath.ToSlash(rel), nil
}

// ToAbsolute is the inverse of ToRelativeKey.
func ToAbsolute(root, relativePath string) string {
	return filepath.Join(root, filepath.FromSlash(relativePath))
}

// ToDerivedPath returns where the artifact for relativePath lives under derivedRoot.
// No existence check is made.
func ToDerivedPath(derivedRoot, relativePath string) string {
	return filepath.Join(derivedRoot, filepath.FromSlash(relativePath))
}

// ParentSegments returns the directory components of relativePath in order.
// Files directly under the root have none.
func ParentSegments(relativePath string) []string {
	dir := path.Dir(filepath.ToSlash(relativePath))
	if dir == "." || dir == "/" {
		return []string{}
	}

	segments := make([]string, 0, strings.Count(dir, "/")+1)
	for _, s := range strings.Split(dir, "/") {
		if s != "" && s != "." {
			segments = append(segments, s)
		}
	}
	return segments
}

// IsHidden reports whether any segment of relativePath starts with a dot.
func IsHidden(relativePath string) bool {
	for _, s := range strings.Split(filepath.ToSlash(relativePath), "/") {
		if strings.HasPrefix(s, ".") && s != "." && s != ".." {
			return true
		}
	}
	return false
}
