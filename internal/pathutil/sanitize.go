// Package pathutil provides path normalization and root prefixing for diskfs.
package pathutil

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPathTraversal is returned when a logical path resolves above its root.
var ErrPathTraversal = errors.New("path traversal detected")

// Normalize turns a caller supplied logical path into its canonical form:
// forward slashes, no leading or trailing separator, "." and ".." segments
// resolved. It rejects paths that would climb above the root and paths
// containing control characters.
func Normalize(path string) (string, error) {
	for _, char := range path {
		if char < 32 && char != '\t' {
			return "", fmt.Errorf("%w: control character in %q", ErrPathTraversal, path)
		}
	}

	path = strings.ReplaceAll(path, "\\", "/")

	parts := strings.Split(path, "/")
	resolved := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(resolved) == 0 {
				return "", fmt.Errorf("%w: %q", ErrPathTraversal, path)
			}
			resolved = resolved[:len(resolved)-1]
		default:
			resolved = append(resolved, part)
		}
	}

	return strings.Join(resolved, "/"), nil
}

// Join concatenates path segments with a single "/" and trims separators
// from both ends of the result.
func Join(segments ...string) string {
	trimmed := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, "/\\")
		if s != "" {
			trimmed = append(trimmed, s)
		}
	}
	return strings.Join(trimmed, "/")
}

// Dir returns the parent of a normalized logical path ("" for top level).
func Dir(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}
