package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/metadata"
	"github.com/ebogdum/diskfs/metadata/memory"
	"github.com/ebogdum/diskfs/metadata/redis"
	"github.com/ebogdum/diskfs/metrics"
)

// Manager resolves disk names to Drivers. Each disk is built once, on
// first use, and cached until Forget or Close.
type Manager struct {
	cfg      *config.AppConfig
	logger   *zap.Logger
	drivers  *xsync.Map[string, *Driver]
	creators *xsync.Map[string, Factory]

	mu     sync.Mutex // serializes driver creation and store setup
	stores map[string]metadata.Store
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithCacheStore makes disks whose cache store is name use store.
func WithCacheStore(name string, store metadata.Store) ManagerOption {
	return func(m *Manager) {
		m.stores[name] = store
	}
}

// WithFactory registers a factory as Extend does.
func WithFactory(typeOrName string, factory Factory) ManagerOption {
	return func(m *Manager) {
		m.creators.Store(typeOrName, factory)
	}
}

// NewManager creates a manager over the disks of cfg.
func NewManager(cfg *config.AppConfig, logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		cfg:      cfg,
		logger:   logger,
		drivers:  xsync.NewMap[string, *Driver](),
		creators: xsync.NewMap[string, Factory](),
		stores:   make(map[string]metadata.Store),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DefaultDisk returns the name of the default disk.
func (m *Manager) DefaultDisk() string {
	if m.cfg.Default != "" {
		return m.cfg.Default
	}
	return "local"
}

// DiskConfig returns the configuration of the named disk.
func (m *Manager) DiskConfig(name string) (config.Disk, error) {
	disk, ok := m.cfg.Disk(name)
	if !ok {
		return config.Disk{}, metadata.Configuration("disk [%s] not found", name)
	}
	return disk, nil
}

// Disk returns the Driver of the named disk; an empty name selects the
// default disk.
func (m *Manager) Disk(name string) (*Driver, error) {
	if name == "" {
		name = m.DefaultDisk()
	}
	if d, ok := m.drivers.Load(name); ok {
		return d, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.drivers.Load(name); ok {
		return d, nil
	}

	d, err := m.resolve(name)
	if err != nil {
		return nil, err
	}
	m.drivers.Store(name, d)
	metrics.ActiveDisks.Inc()
	return d, nil
}

// Cloud is an alias of Disk.
func (m *Manager) Cloud(name string) (*Driver, error) {
	return m.Disk(name)
}

// Default returns the Driver of the default disk.
func (m *Manager) Default() (*Driver, error) {
	return m.Disk("")
}

// Extend registers a factory for a disk name or a disk type. A factory
// registered for a name wins over one registered for the disk's type,
// which wins over the built-in type.
func (m *Manager) Extend(typeOrName string, factory Factory) {
	m.creators.Store(typeOrName, factory)
}

// Forget drops cached drivers so the next Disk call rebuilds them. The
// dropped drivers are not closed; callers may still hold them.
func (m *Manager) Forget(names ...string) {
	for _, name := range names {
		if _, ok := m.drivers.LoadAndDelete(name); ok {
			metrics.ActiveDisks.Dec()
		}
	}
}

// Close closes every cached driver and cache store.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	m.drivers.Range(func(name string, d *Driver) bool {
		if err := d.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close disk %s: %w", name, err))
		}
		m.drivers.Delete(name)
		metrics.ActiveDisks.Dec()
		return true
	})
	for name, store := range m.stores {
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s cache store: %w", name, err))
		}
		delete(m.stores, name)
	}
	return errors.Join(errs...)
}

// resolve builds the driver of name; caller holds mu.
func (m *Manager) resolve(name string) (*Driver, error) {
	disk, err := m.DiskConfig(name)
	if err != nil {
		return nil, err
	}

	factory, ok := m.creators.Load(name)
	if !ok {
		factory, ok = m.creators.Load(disk.Type())
	}
	if !ok {
		factory, ok = m.builtinFactory(disk.Type())
	}
	if !ok {
		return nil, metadata.Configuration("disk [%s] does not have a configured driver (type %q)", name, disk.Type())
	}

	logger := m.logger.With(zap.String("disk", name), zap.String("type", disk.Type()))
	adapter, err := factory(context.Background(), disk, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s adapter for disk %s: %w", disk.Type(), name, err)
	}

	var store metadata.Store
	if cacheCfg, ok := disk.Cache(); ok {
		store, err = m.store(cacheCfg.Store)
		if err != nil {
			adapter.Close()
			return nil, err
		}
	}

	d, err := NewDriver(disk, adapter, store, m.logger)
	if err != nil {
		adapter.Close()
		return nil, err
	}

	logger.Info("Disk initialized")
	return d, nil
}

// store returns the shared cache store by name; caller holds mu.
func (m *Manager) store(name string) (metadata.Store, error) {
	if s, ok := m.stores[name]; ok {
		return s, nil
	}

	var s metadata.Store
	switch name {
	case "memory":
		s = memory.NewStore(0)
	case "redis":
		rs, err := redis.NewRedisStore(m.cfg.Redis.Addr, m.cfg.Redis.Password, m.cfg.Redis.DB, "", m.logger)
		if err != nil {
			return nil, err
		}
		s = rs
	default:
		return nil, metadata.Configuration("unknown cache store %q", name)
	}

	m.stores[name] = s
	return s, nil
}
