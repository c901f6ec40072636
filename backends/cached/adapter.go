// Package cached memoizes adapter metadata in a metadata.Store.
package cached

import (
	"context"
	"errors"
	"io"
	"iter"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	coreLog "github.com/ebogdum/diskfs/core/log"
	"github.com/ebogdum/diskfs/metadata"
	"github.com/ebogdum/diskfs/metrics"
)

// Cached attribute kinds. Keys are <prefix><path>#<kind>.
const (
	kindFile       = "file"
	kindDirectory  = "dir"
	kindVisibility = "visibility"
	kindMimeType   = "mimetype"
	kindModified   = "modified"
	kindSize       = "size"
)

// Adapter serves existence checks and metadata lookups from the store,
// falling back to the wrapped adapter on a miss. Every mutation
// invalidates the entries of the paths it touches.
type Adapter struct {
	inner  backends.Adapter
	store  metadata.Store
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// New wraps inner. Entries live for ttl; a zero ttl never expires.
func New(inner backends.Adapter, store metadata.Store, prefix string, ttl time.Duration, logger *zap.Logger) *Adapter {
	return &Adapter{inner: inner, store: store, prefix: prefix, ttl: ttl, logger: logger}
}

// Unwrap returns the guarded adapter
func (a *Adapter) Unwrap() backends.Adapter { return a.inner }

func (a *Adapter) key(path, kind string) string {
	return a.prefix + strings.Trim(path, "/") + "#" + kind
}

func (a *Adapter) lookup(ctx context.Context, path, kind string, load func() (*metadata.Attributes, error)) (*metadata.Attributes, error) {
	key := a.key(path, kind)
	if attrs, err := a.store.Get(ctx, key); err == nil {
		metrics.CacheLookupsTotal.WithLabelValues(kind, "hit").Inc()
		return attrs, nil
	} else if !errors.Is(err, metadata.ErrNotFound) {
		a.logger.Warn("Metadata cache read failed", coreLog.Path("path", path), zap.String("kind", kind), zap.Error(err))
	}

	metrics.CacheLookupsTotal.WithLabelValues(kind, "miss").Inc()

	attrs, err := load()
	if err != nil {
		return nil, err
	}
	if err := a.store.Set(ctx, key, attrs, a.ttl); err != nil {
		a.logger.Warn("Metadata cache write failed", coreLog.Path("path", path), zap.String("kind", kind), zap.Error(err))
	}
	return attrs, nil
}

// exists caches positive answers only; a miss is asked again next time.
func (a *Adapter) exists(ctx context.Context, path, kind string, check func() (bool, error)) (bool, error) {
	if _, err := a.store.Get(ctx, a.key(path, kind)); err == nil {
		metrics.CacheLookupsTotal.WithLabelValues(kind, "hit").Inc()
		return true, nil
	}
	metrics.CacheLookupsTotal.WithLabelValues(kind, "miss").Inc()

	ok, err := check()
	if err != nil || !ok {
		return ok, err
	}
	marker := &metadata.Attributes{Path: path, Type: metadata.TypeFile}
	if kind == kindDirectory {
		marker.Type = metadata.TypeDirectory
	}
	if err := a.store.Set(ctx, a.key(path, kind), marker, a.ttl); err != nil {
		a.logger.Warn("Metadata cache write failed", coreLog.Path("path", path), zap.String("kind", kind), zap.Error(err))
	}
	return true, nil
}

// invalidate drops the entries of path, and with tree also everything
// below it.
func (a *Adapter) invalidate(ctx context.Context, path string, tree bool) {
	path = strings.Trim(path, "/")
	prefixes := []string{a.prefix + path + "#"}
	if tree {
		prefixes = append(prefixes, a.prefix+path+"/")
		if path == "" {
			prefixes = []string{a.prefix}
		}
	}
	for _, p := range prefixes {
		if err := a.store.DeletePrefix(ctx, p); err != nil {
			a.logger.Warn("Metadata cache invalidation failed", coreLog.Path("path", path), zap.Error(err))
		}
	}
}

func (a *Adapter) FileExists(ctx context.Context, path string) (bool, error) {
	return a.exists(ctx, path, kindFile, func() (bool, error) { return a.inner.FileExists(ctx, path) })
}

func (a *Adapter) DirectoryExists(ctx context.Context, path string) (bool, error) {
	return a.exists(ctx, path, kindDirectory, func() (bool, error) { return a.inner.DirectoryExists(ctx, path) })
}

func (a *Adapter) Read(ctx context.Context, path string) ([]byte, error) {
	return a.inner.Read(ctx, path)
}

func (a *Adapter) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	return a.inner.ReadStream(ctx, path)
}

func (a *Adapter) Write(ctx context.Context, path string, contents []byte, cfg backends.Config) error {
	defer a.invalidate(ctx, path, false)
	return a.inner.Write(ctx, path, contents, cfg)
}

func (a *Adapter) WriteStream(ctx context.Context, path string, r io.Reader, cfg backends.Config) error {
	defer a.invalidate(ctx, path, false)
	return a.inner.WriteStream(ctx, path, r, cfg)
}

func (a *Adapter) Delete(ctx context.Context, path string) error {
	defer a.invalidate(ctx, path, false)
	return a.inner.Delete(ctx, path)
}

func (a *Adapter) DeleteDirectory(ctx context.Context, path string) error {
	defer a.invalidate(ctx, path, true)
	return a.inner.DeleteDirectory(ctx, path)
}

func (a *Adapter) CreateDirectory(ctx context.Context, path string, cfg backends.Config) error {
	defer a.invalidate(ctx, path, false)
	return a.inner.CreateDirectory(ctx, path, cfg)
}

func (a *Adapter) SetVisibility(ctx context.Context, path string, visibility backends.Visibility) error {
	defer a.invalidate(ctx, path, false)
	return a.inner.SetVisibility(ctx, path, visibility)
}

func (a *Adapter) Visibility(ctx context.Context, path string) (*metadata.Attributes, error) {
	return a.lookup(ctx, path, kindVisibility, func() (*metadata.Attributes, error) { return a.inner.Visibility(ctx, path) })
}

func (a *Adapter) MimeType(ctx context.Context, path string) (*metadata.Attributes, error) {
	return a.lookup(ctx, path, kindMimeType, func() (*metadata.Attributes, error) { return a.inner.MimeType(ctx, path) })
}

func (a *Adapter) LastModified(ctx context.Context, path string) (*metadata.Attributes, error) {
	return a.lookup(ctx, path, kindModified, func() (*metadata.Attributes, error) { return a.inner.LastModified(ctx, path) })
}

func (a *Adapter) FileSize(ctx context.Context, path string) (*metadata.Attributes, error) {
	return a.lookup(ctx, path, kindSize, func() (*metadata.Attributes, error) { return a.inner.FileSize(ctx, path) })
}

// ListContents is never cached
func (a *Adapter) ListContents(ctx context.Context, path string, deep bool) iter.Seq2[*metadata.Attributes, error] {
	return a.inner.ListContents(ctx, path, deep)
}

func (a *Adapter) Move(ctx context.Context, src, dst string, cfg backends.Config) error {
	defer a.invalidate(ctx, dst, true)
	defer a.invalidate(ctx, src, true)
	return a.inner.Move(ctx, src, dst, cfg)
}

func (a *Adapter) Copy(ctx context.Context, src, dst string, cfg backends.Config) error {
	defer a.invalidate(ctx, dst, false)
	return a.inner.Copy(ctx, src, dst, cfg)
}

// Close closes the guarded adapter. The store is owned by the Manager.
func (a *Adapter) Close() error { return a.inner.Close() }
