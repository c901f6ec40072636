// Package prefixed scopes an adapter to a sub-path of its namespace.
package prefixed

import (
	"context"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/internal/pathutil"
	"github.com/ebogdum/diskfs/metadata"
)

// Adapter prepends a fixed prefix to every path before delegating and
// strips it from listed paths, so callers never see it.
type Adapter struct {
	inner    backends.Adapter
	prefixer *pathutil.Prefixer
}

// New wraps inner so that path p resolves to prefix/p. The inner adapter
// always receives "/"-separated logical paths.
func New(inner backends.Adapter, prefix string) *Adapter {
	return &Adapter{inner: inner, prefixer: pathutil.NewPrefixer(strings.Trim(prefix, "/\\"), "/")}
}

// Unwrap returns the guarded adapter
func (a *Adapter) Unwrap() backends.Adapter { return a.inner }

// Prefix returns the logical prefix including its trailing slash.
func (a *Adapter) Prefix() string { return a.prefixer.Prefix() }

// p maps path below the prefix. Paths that climb out of it are rejected.
func (a *Adapter) p(op, path string) (string, error) {
	clean, err := pathutil.Normalize(path)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return a.prefixer.PrefixPath(clean), nil
}

// strip maps an inner error back onto the caller's path.
func (a *Adapter) strip(err error, path string) error {
	if e, ok := err.(*metadata.Error); ok && e.Path != path {
		cp := *e
		cp.Path = path
		return &cp
	}
	return err
}

func (a *Adapter) FileExists(ctx context.Context, path string) (bool, error) {
	full, err := a.p("fileExists", path)
	if err != nil {
		return false, err
	}
	ok, err := a.inner.FileExists(ctx, full)
	return ok, a.strip(err, path)
}

func (a *Adapter) DirectoryExists(ctx context.Context, path string) (bool, error) {
	full, err := a.p("directoryExists", path)
	if err != nil {
		return false, err
	}
	ok, err := a.inner.DirectoryExists(ctx, full)
	return ok, a.strip(err, path)
}

func (a *Adapter) Read(ctx context.Context, path string) ([]byte, error) {
	full, err := a.p("read", path)
	if err != nil {
		return nil, err
	}
	data, err := a.inner.Read(ctx, full)
	return data, a.strip(err, path)
}

func (a *Adapter) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	full, err := a.p("readStream", path)
	if err != nil {
		return nil, err
	}
	rc, err := a.inner.ReadStream(ctx, full)
	return rc, a.strip(err, path)
}

func (a *Adapter) Write(ctx context.Context, path string, contents []byte, cfg backends.Config) error {
	return a.call("write", path, func(full string) error {
		return a.inner.Write(ctx, full, contents, cfg)
	})
}

func (a *Adapter) WriteStream(ctx context.Context, path string, r io.Reader, cfg backends.Config) error {
	return a.call("writeStream", path, func(full string) error {
		return a.inner.WriteStream(ctx, full, r, cfg)
	})
}

func (a *Adapter) Delete(ctx context.Context, path string) error {
	return a.call("delete", path, func(full string) error {
		return a.inner.Delete(ctx, full)
	})
}

func (a *Adapter) DeleteDirectory(ctx context.Context, path string) error {
	return a.call("deleteDirectory", path, func(full string) error {
		return a.inner.DeleteDirectory(ctx, full)
	})
}

func (a *Adapter) CreateDirectory(ctx context.Context, path string, cfg backends.Config) error {
	return a.call("createDirectory", path, func(full string) error {
		return a.inner.CreateDirectory(ctx, full, cfg)
	})
}

func (a *Adapter) SetVisibility(ctx context.Context, path string, visibility backends.Visibility) error {
	return a.call("setVisibility", path, func(full string) error {
		return a.inner.SetVisibility(ctx, full, visibility)
	})
}

func (a *Adapter) call(op, path string, fn func(full string) error) error {
	full, err := a.p(op, path)
	if err != nil {
		return err
	}
	return a.strip(fn(full), path)
}

func (a *Adapter) Visibility(ctx context.Context, path string) (*metadata.Attributes, error) {
	return a.attrs(ctx, "visibility", path, a.inner.Visibility)
}

func (a *Adapter) MimeType(ctx context.Context, path string) (*metadata.Attributes, error) {
	return a.attrs(ctx, "mimeType", path, a.inner.MimeType)
}

func (a *Adapter) LastModified(ctx context.Context, path string) (*metadata.Attributes, error) {
	return a.attrs(ctx, "lastModified", path, a.inner.LastModified)
}

func (a *Adapter) FileSize(ctx context.Context, path string) (*metadata.Attributes, error) {
	return a.attrs(ctx, "fileSize", path, a.inner.FileSize)
}

func (a *Adapter) attrs(ctx context.Context, op, path string, fetch func(context.Context, string) (*metadata.Attributes, error)) (*metadata.Attributes, error) {
	full, err := a.p(op, path)
	if err != nil {
		return nil, err
	}
	attrs, err := fetch(ctx, full)
	if err != nil {
		return nil, a.strip(err, path)
	}
	return attrs.WithPath(path), nil
}

// ListContents lists the prefixed directory and strips the prefix from
// every yielded path.
func (a *Adapter) ListContents(ctx context.Context, path string, deep bool) iter.Seq2[*metadata.Attributes, error] {
	return func(yield func(*metadata.Attributes, error) bool) {
		full, err := a.p("listContents", path)
		if err != nil {
			yield(nil, err)
			return
		}
		for attrs, err := range a.inner.ListContents(ctx, full, deep) {
			if err != nil {
				yield(nil, a.strip(err, path))
				return
			}
			if !yield(attrs.WithPath(a.prefixer.StripDirectoryPrefix(attrs.Path)), nil) {
				return
			}
		}
	}
}

func (a *Adapter) Move(ctx context.Context, src, dst string, cfg backends.Config) error {
	return a.pair("move", src, dst, func(from, to string) error {
		return a.inner.Move(ctx, from, to, cfg)
	})
}

func (a *Adapter) Copy(ctx context.Context, src, dst string, cfg backends.Config) error {
	return a.pair("copy", src, dst, func(from, to string) error {
		return a.inner.Copy(ctx, from, to, cfg)
	})
}

func (a *Adapter) pair(op, src, dst string, fn func(from, to string) error) error {
	from, err := a.p(op, src)
	if err != nil {
		return err
	}
	to, err := a.p(op, dst)
	if err != nil {
		return err
	}
	return a.strip(fn(from, to), src)
}

func (a *Adapter) Close() error { return a.inner.Close() }
