package core

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/backends/cos"
	"github.com/ebogdum/diskfs/backends/ftp"
	"github.com/ebogdum/diskfs/backends/gcs"
	"github.com/ebogdum/diskfs/backends/localfs"
	"github.com/ebogdum/diskfs/backends/obs"
	"github.com/ebogdum/diskfs/backends/oss"
	"github.com/ebogdum/diskfs/backends/qiniu"
	"github.com/ebogdum/diskfs/backends/s3"
	"github.com/ebogdum/diskfs/backends/sftp"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/locks"
	"github.com/ebogdum/diskfs/metadata"
)

// Factory constructs the adapter of a disk.
type Factory func(ctx context.Context, disk config.Disk, logger *zap.Logger) (backends.Adapter, error)

// builtinFactory returns the factory for a built-in disk type.
func (m *Manager) builtinFactory(diskType string) (Factory, bool) {
	switch diskType {
	case "local":
		return m.createLocalAdapter, true
	case "ftp":
		return func(ctx context.Context, disk config.Disk, logger *zap.Logger) (backends.Adapter, error) {
			return ftp.New(disk, logger)
		}, true
	case "sftp":
		return func(ctx context.Context, disk config.Disk, logger *zap.Logger) (backends.Adapter, error) {
			return sftp.New(disk, logger)
		}, true
	case "s3":
		return func(ctx context.Context, disk config.Disk, logger *zap.Logger) (backends.Adapter, error) {
			return s3.New(disk, logger)
		}, true
	case "oss", "aliyun":
		return func(ctx context.Context, disk config.Disk, logger *zap.Logger) (backends.Adapter, error) {
			return oss.New(disk, logger)
		}, true
	case "cos", "qcloud":
		return func(ctx context.Context, disk config.Disk, logger *zap.Logger) (backends.Adapter, error) {
			return cos.New(disk, logger)
		}, true
	case "qiniu":
		return func(ctx context.Context, disk config.Disk, logger *zap.Logger) (backends.Adapter, error) {
			return qiniu.New(disk, logger)
		}, true
	case "obs":
		return func(ctx context.Context, disk config.Disk, logger *zap.Logger) (backends.Adapter, error) {
			return obs.New(disk, logger)
		}, true
	case "gcs", "google":
		return func(ctx context.Context, disk config.Disk, logger *zap.Logger) (backends.Adapter, error) {
			return gcs.New(ctx, disk, logger)
		}, true
	}
	return nil, false
}

// createLocalAdapter builds the local adapter with the path lock the
// disk's lock option selects: true or "local" for in-process locks,
// "redis" for locks shared through the application's Redis.
func (m *Manager) createLocalAdapter(ctx context.Context, disk config.Disk, logger *zap.Logger) (backends.Adapter, error) {
	var locker locks.Manager
	switch mode := strings.ToLower(disk.String("lock", "")); mode {
	case "", "false", "0":
	case "true", "1", "local":
		locker = locks.NewLocalManager()
	case "redis":
		redisManager, err := locks.NewRedisManager(ctx, m.cfg.Redis, disk.Name(), disk.Duration("lock_ttl", 0), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis lock manager for disk %q: %w", disk.Name(), err)
		}
		locker = redisManager
	default:
		return nil, metadata.Configuration("disk %q: unknown lock mode %q", disk.Name(), mode)
	}

	adapter, err := localfs.New(disk, locker, logger)
	if err != nil {
		if locker != nil {
			locker.Close()
		}
		return nil, err
	}
	return adapter, nil
}
