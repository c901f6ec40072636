package core

import (
	"context"
	"strings"
	"time"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/internal/pathutil"
	"github.com/ebogdum/diskfs/metadata"
)

// TemporaryURLBuilder builds a time-limited URL for a disk whose adapter
// has no native support. Register one with BuildTemporaryURLsUsing.
type TemporaryURLBuilder func(ctx context.Context, path string, expiresAt time.Time, cfg backends.Config) (string, error)

// BuildTemporaryURLsUsing registers the fallback temporary URL builder.
func (d *Driver) BuildTemporaryURLsUsing(builder TemporaryURLBuilder) {
	if builder == nil {
		d.temporaryURLBuilder.Store(nil)
		return
	}
	d.temporaryURLBuilder.Store(&builder)
}

// urlPath is path as seen by the adapter, below root: the disk prefix
// joined with path.
func (d *Driver) urlPath(path string) string {
	if prefix := d.disk.Prefix(); prefix != "" {
		return pathutil.Join(prefix, path)
	}
	return path
}

// URL returns a URL for path. In order: the adapter's own URL builder,
// the guarded filesystem's, then for local, FTP and SFTP disks the
// configured url joined with path (or the bare path without one).
// Other disks fail with metadata.ErrUnsupported.
func (d *Driver) URL(path string) (string, error) {
	path, err := d.clean("url", path)
	if err != nil {
		return "", err
	}

	if g, ok := d.adapter.(backends.URLGenerator); ok {
		return g.URL(d.urlPath(path))
	}
	if g, ok := d.filesystem.(backends.URLGenerator); ok {
		return g.URL(path)
	}

	switch backends.KindOf(d.adapter) {
	case backends.KindFTP, backends.KindSFTP, backends.KindLocal:
		if base := d.disk.URL(); base != "" {
			return concatPathToURL(base, d.urlPath(path)), nil
		}
		return d.urlPath(path), nil
	}
	return "", metadata.Unsupported("url")
}

// TemporaryURL returns a URL for path that stops working at expiresAt. In
// order: the adapter's native support, the registered builder, then a
// presigned request for S3-compatible adapters, rebased onto the disk's
// temporary_url when one is configured.
func (d *Driver) TemporaryURL(ctx context.Context, path string, expiresAt time.Time, opts ...Option) (string, error) {
	cfg := backends.Config{}
	for _, opt := range opts {
		if opt != nil {
			opt.Apply(cfg)
		}
	}

	path, err := d.clean("temporaryUrl", path)
	if err != nil {
		return "", err
	}

	start := time.Now()
	url, err := d.temporaryURL(ctx, path, expiresAt, cfg)
	d.observe("temporaryUrl", start, err)
	return url, err
}

func (d *Driver) temporaryURL(ctx context.Context, path string, expiresAt time.Time, cfg backends.Config) (string, error) {
	if g, ok := d.adapter.(backends.TemporaryURLGenerator); ok {
		return g.TemporaryURL(ctx, d.urlPath(path), expiresAt, cfg)
	}
	if builder := d.temporaryURLBuilder.Load(); builder != nil {
		return (*builder)(ctx, path, expiresAt, cfg)
	}
	if p, ok := d.adapter.(backends.Presigner); ok {
		url, err := p.Presign(ctx, d.urlPath(path), expiresAt, cfg)
		if err != nil {
			return "", err
		}
		if base := d.disk.TemporaryURL(); base != "" {
			return backends.RewriteBase(url, base)
		}
		return url, nil
	}
	return "", metadata.Unsupported("temporaryUrl")
}

func concatPathToURL(url, path string) string {
	return strings.TrimRight(url, "/") + "/" + strings.TrimLeft(path, "/")
}
