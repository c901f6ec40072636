package pathutil

import (
	"path/filepath"
	"strings"
)

// Prefixer maps logical paths onto a backend's physical namespace.
type Prefixer struct {
	prefix    string
	separator string
}

// NewPrefixer builds a prefixer for root. An empty separator selects the
// host's native one.
func NewPrefixer(root, separator string) *Prefixer {
	if separator == "" {
		separator = string(filepath.Separator)
	}

	prefix := strings.TrimRight(root, "\\/")
	if prefix != "" || root == separator {
		prefix += separator
	}

	return &Prefixer{prefix: prefix, separator: separator}
}

// Prefix returns the configured prefix including its trailing separator.
func (p *Prefixer) Prefix() string { return p.prefix }

// Separator returns the separator used for physical paths.
func (p *Prefixer) Separator() string { return p.separator }

// PrefixPath returns prefix + path with separators normalized and
// surrounding separators removed from path.
func (p *Prefixer) PrefixPath(path string) string {
	return p.prefix + p.normalizeSeparators(strings.Trim(path, "\\/"))
}

// PrefixDirectoryPath is PrefixPath with a guaranteed trailing separator.
func (p *Prefixer) PrefixDirectoryPath(path string) string {
	prefixed := p.PrefixPath(path)
	if prefixed == "" || strings.HasSuffix(prefixed, p.separator) {
		return prefixed
	}
	return prefixed + p.separator
}

// StripPrefix removes the prefix from a physical path.
func (p *Prefixer) StripPrefix(path string) string {
	return strings.TrimPrefix(path, p.prefix)
}

// StripDirectoryPrefix removes the prefix and any trailing separator.
func (p *Prefixer) StripDirectoryPrefix(path string) string {
	return strings.TrimRight(p.StripPrefix(path), "\\/")
}

func (p *Prefixer) normalizeSeparators(path string) string {
	if p.separator != "/" {
		path = strings.ReplaceAll(path, "/", p.separator)
	}
	if p.separator != "\\" {
		path = strings.ReplaceAll(path, "\\", p.separator)
	}
	return path
}
