package metadata

import (
	"context"
	"time"
)

// Entry types reported by listings.
const (
	TypeFile      = "file"
	TypeDirectory = "dir"
)

// Attributes describes a single storage entry. Fields a backend cannot
// provide are left at their zero value.
type Attributes struct {
	Path         string    `json:"path"`
	Type         string    `json:"type"`
	Size         int64     `json:"size,omitempty"`
	LastModified time.Time `json:"last_modified,omitempty"`
	Visibility   string    `json:"visibility,omitempty"`
	MimeType     string    `json:"mime_type,omitempty"`
}

// NewFile returns file attributes for path.
func NewFile(path string, size int64, lastModified time.Time) *Attributes {
	return &Attributes{Path: path, Type: TypeFile, Size: size, LastModified: lastModified}
}

// NewDirectory returns directory attributes for path.
func NewDirectory(path string, lastModified time.Time) *Attributes {
	return &Attributes{Path: path, Type: TypeDirectory, LastModified: lastModified}
}

// IsFile reports whether the entry is a file.
func (a *Attributes) IsFile() bool { return a.Type == TypeFile }

// IsDir reports whether the entry is a directory.
func (a *Attributes) IsDir() bool { return a.Type == TypeDirectory }

// WithPath returns a copy of the attributes pointing at path.
func (a *Attributes) WithPath(path string) *Attributes {
	cp := *a
	cp.Path = path
	return &cp
}

// Store defines the key/value cache used to memoize adapter metadata.
// Entries expire after the TTL given to Set.
type Store interface {
	// Get retrieves cached attributes; ErrNotFound when absent or expired
	Get(ctx context.Context, key string) (*Attributes, error)

	// Set caches attributes under key for ttl
	Set(ctx context.Context, key string, attrs *Attributes, ttl time.Duration) error

	// Delete removes a single key
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every key starting with prefix
	DeletePrefix(ctx context.Context, prefix string) error

	// Close releases the store's resources
	Close() error
}
