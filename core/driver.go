// Package core binds a disk configuration to a storage adapter and
// exposes the uniform operation surface over it.
package core

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/backends/cached"
	"github.com/ebogdum/diskfs/backends/prefixed"
	"github.com/ebogdum/diskfs/backends/readonly"
	"github.com/ebogdum/diskfs/config"
	coreLog "github.com/ebogdum/diskfs/core/log"
	"github.com/ebogdum/diskfs/internal/pathutil"
	"github.com/ebogdum/diskfs/metadata"
	"github.com/ebogdum/diskfs/metrics"
)

// Driver is the operation surface of one disk. It owns the error policy:
// with throw disabled, adapter failures are logged and turned into a
// false or empty result with a nil error. Unsupported operations and
// configuration errors are always returned.
//
// A Driver is immutable after construction apart from the temporary URL
// builder, and is safe for concurrent use as far as its adapter is.
type Driver struct {
	disk       config.Disk
	adapter    backends.Adapter
	filesystem backends.Adapter
	prefixer   *pathutil.Prefixer
	throw      bool
	logger     *zap.Logger

	temporaryURLBuilder atomic.Pointer[TemporaryURLBuilder]
}

// NewDriver wraps adapter in the guards the disk asks for: read-only
// first, then path prefixing, then metadata caching when a store is
// given.
func NewDriver(disk config.Disk, adapter backends.Adapter, store metadata.Store, logger *zap.Logger) (*Driver, error) {
	if adapter == nil {
		return nil, metadata.Configuration("disk %q has no adapter", disk.Name())
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	prefixer := pathutil.NewPrefixer(disk.Root(), disk.Separator())
	if prefix := disk.Prefix(); prefix != "" {
		prefixer = pathutil.NewPrefixer(prefixer.PrefixPath(prefix), disk.Separator())
	}

	filesystem := adapter
	if disk.ReadOnly() {
		filesystem = readonly.New(filesystem)
	}
	if prefix := disk.Prefix(); prefix != "" {
		filesystem = prefixed.New(filesystem, prefix)
	}
	if cacheCfg, ok := disk.Cache(); ok && store != nil {
		filesystem = cached.New(filesystem, store, cacheCfg.Prefix, cacheCfg.Expire, logger)
	}

	return &Driver{
		disk:       disk,
		adapter:    adapter,
		filesystem: filesystem,
		prefixer:   prefixer,
		throw:      disk.Throw(),
		logger:     logger.With(zap.String("disk", disk.Name())),
	}, nil
}

// Path returns the physical location of path: root, then prefix, then path.
// It returns "" when path climbs above the root.
func (d *Driver) Path(path string) string {
	clean, err := pathutil.Normalize(path)
	if err != nil {
		return ""
	}
	return d.prefixer.PrefixPath(clean)
}

// Adapter returns the backend adapter without guards.
func (d *Driver) Adapter() backends.Adapter { return d.adapter }

// Filesystem returns the guarded adapter every operation goes through.
func (d *Driver) Filesystem() backends.Adapter { return d.filesystem }

// Config returns the disk configuration.
func (d *Driver) Config() config.Disk { return d.disk }

// Close releases the adapter's connections.
func (d *Driver) Close() error { return d.filesystem.Close() }

// clean normalizes a caller path. Paths above the root fail with
// pathutil.ErrPathTraversal whatever the error policy.
func (d *Driver) clean(op, path string) (string, error) {
	clean, err := pathutil.Normalize(path)
	if err != nil {
		d.logger.Warn("Rejected path outside disk root",
			zap.String("operation", op),
			coreLog.Path("path", path))
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return clean, nil
}

// fail applies the error policy to an adapter failure.
func (d *Driver) fail(op, path string, err error) error {
	if d.throw || metadata.IsFatal(err) {
		return err
	}

	metrics.SwallowedErrorsTotal.WithLabelValues(d.disk.Name(), op).Inc()
	d.logger.Warn("Storage operation failed",
		zap.String("operation", op),
		coreLog.Path("path", path),
		zap.Error(err))
	return nil
}

func (d *Driver) observe(op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.DriverOpsTotal.WithLabelValues(d.disk.Name(), op, status).Inc()
	metrics.DriverOpDuration.WithLabelValues(d.disk.Name(), op).Observe(time.Since(start).Seconds())
}

// soft runs fn on the normalized path under the error policy.
func soft[T any](d *Driver, op, path string, fn func(path string) (T, error)) (T, error) {
	var zero T
	clean, err := d.clean(op, path)
	if err != nil {
		return zero, err
	}

	start := time.Now()
	v, err := fn(clean)
	d.observe(op, start, err)
	if err != nil {
		return zero, d.fail(op, path, err)
	}
	return v, nil
}

// strict runs fn on the normalized path and always returns its error.
func strict[T any](d *Driver, op, path string, fn func(path string) (T, error)) (T, error) {
	clean, err := d.clean(op, path)
	if err != nil {
		var zero T
		return zero, err
	}

	start := time.Now()
	v, err := fn(clean)
	d.observe(op, start, err)
	return v, err
}

// done adapts an error-only adapter call to soft's signature.
func done(err error) (bool, error) {
	return err == nil, err
}

// options merges the disk's default visibilities under the call options.
func (d *Driver) options(opts []Option) backends.Config {
	cfg := backends.Config{}
	if v := d.disk.Visibility(); v != "" {
		cfg[backends.OptionVisibility] = v
	}
	if v := d.disk.DirectoryVisibility(); v != "" {
		cfg[backends.OptionDirectoryVisibility] = v
	}
	for _, opt := range opts {
		if opt != nil {
			opt.Apply(cfg)
		}
	}
	return cfg
}
