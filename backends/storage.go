// Package backends defines the capability contract every storage backend
// implements, plus the helpers shared by the adapters.
// Implementations live in sub-packages: localfs, ftp, sftp, s3, oss, cos,
// qiniu, obs, gcs and webdav, with readonly, prefixed and cached guards.
package backends

import (
	"context"
	"io"
	"iter"
	"time"

	"github.com/ebogdum/diskfs/metadata"
)

// Adapter defines the operations a storage backend must support. Paths
// are normalized logical paths relative to the adapter's own root.
type Adapter interface {
	// FileExists reports whether a file exists at path
	FileExists(ctx context.Context, path string) (bool, error)

	// DirectoryExists reports whether a directory exists at path. Backends
	// without real directories derive it from the presence of children.
	DirectoryExists(ctx context.Context, path string) (bool, error)

	// Read returns the whole file content
	Read(ctx context.Context, path string) ([]byte, error)

	// ReadStream opens the file for sequential reading; the caller closes it
	ReadStream(ctx context.Context, path string) (io.ReadCloser, error)

	// Write creates or replaces the file with contents
	Write(ctx context.Context, path string, contents []byte, cfg Config) error

	// WriteStream creates or replaces the file with the reader's content
	WriteStream(ctx context.Context, path string, r io.Reader, cfg Config) error

	// Delete removes a file; a missing file is not an error
	Delete(ctx context.Context, path string) error

	// DeleteDirectory recursively removes a directory; a missing one is not an error
	DeleteDirectory(ctx context.Context, path string) error

	// CreateDirectory creates a directory and its parents
	CreateDirectory(ctx context.Context, path string, cfg Config) error

	// SetVisibility applies public/private visibility to path
	SetVisibility(ctx context.Context, path string, visibility Visibility) error

	// Visibility returns attributes carrying the entry's visibility
	Visibility(ctx context.Context, path string) (*metadata.Attributes, error)

	// MimeType returns attributes carrying the entry's mime type
	MimeType(ctx context.Context, path string) (*metadata.Attributes, error)

	// LastModified returns attributes carrying the modification time
	LastModified(ctx context.Context, path string) (*metadata.Attributes, error)

	// FileSize returns attributes carrying the file size
	FileSize(ctx context.Context, path string) (*metadata.Attributes, error)

	// ListContents lazily yields entries under path in no particular order
	ListContents(ctx context.Context, path string, deep bool) iter.Seq2[*metadata.Attributes, error]

	// Move renames src to dst
	Move(ctx context.Context, src, dst string, cfg Config) error

	// Copy duplicates src to dst
	Copy(ctx context.Context, src, dst string, cfg Config) error

	// Close releases backend connections
	Close() error
}

// URLGenerator is implemented by adapters that can build public URLs.
type URLGenerator interface {
	URL(path string) (string, error)
}

// TemporaryURLGenerator is implemented by adapters with native
// time-limited URLs.
type TemporaryURLGenerator interface {
	TemporaryURL(ctx context.Context, path string, expiresAt time.Time, cfg Config) (string, error)
}

// Presigner is implemented by S3-compatible adapters able to presign a
// GET request for an object.
type Presigner interface {
	Presign(ctx context.Context, path string, expiresAt time.Time, cfg Config) (string, error)
}

// Kind classifies adapters for URL synthesis.
type Kind string

const (
	KindLocal  Kind = "local"
	KindFTP    Kind = "ftp"
	KindSFTP   Kind = "sftp"
	KindObject Kind = "object"
)

// Kinded is implemented by adapters that report their Kind.
type Kinded interface {
	Kind() Kind
}

// Unwrapper is implemented by guards that decorate another adapter.
type Unwrapper interface {
	Unwrap() Adapter
}

// KindOf returns the kind of a, looking through guards. Adapters that do
// not report one are treated as object storage.
func KindOf(a Adapter) Kind {
	for a != nil {
		if k, ok := a.(Kinded); ok {
			return k.Kind()
		}
		u, ok := a.(Unwrapper)
		if !ok {
			break
		}
		a = u.Unwrap()
	}
	return KindObject
}

// Innermost returns the adapter at the bottom of a guard chain.
func Innermost(a Adapter) Adapter {
	for {
		u, ok := a.(Unwrapper)
		if !ok {
			return a
		}
		a = u.Unwrap()
	}
}

// Collect drains a listing into a slice, stopping at the first error.
func Collect(seq iter.Seq2[*metadata.Attributes, error]) ([]*metadata.Attributes, error) {
	var out []*metadata.Attributes
	for attrs, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, attrs)
	}
	return out, nil
}

// Fail returns a listing that yields only err.
func Fail(err error) iter.Seq2[*metadata.Attributes, error] {
	return func(yield func(*metadata.Attributes, error) bool) {
		yield(nil, err)
	}
}
