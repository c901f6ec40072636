// Package diskfs is the process-wide entry point to the disks of an
// application: install a Manager once at startup with Init, then resolve
// disks by name anywhere with Disk.
//
//	diskfs.Init(&cfg, logger)
//	defer diskfs.Close()
//
//	d, err := diskfs.Disk("s3")
//	ok, err := d.Put(ctx, "reports/q1.csv", data, diskfs.Public)
package diskfs

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/core"
)

// Re-exported so callers rarely need the sub-packages.
type (
	Driver  = core.Driver
	Manager = core.Manager
	Factory = core.Factory
	Option  = core.Option
	Options = core.Options
	File    = core.File
)

// Visibilities.
const (
	Public  = backends.Public
	Private = backends.Private
)

// ErrNotInitialized is returned before Init or SetManager.
var ErrNotInitialized = errors.New("diskfs: manager not initialized")

var (
	mu      sync.RWMutex
	manager *core.Manager
)

// Init creates the process-wide Manager, replacing any previous one.
// The previous manager is not closed.
func Init(cfg *config.AppConfig, logger *zap.Logger, opts ...core.ManagerOption) *core.Manager {
	m := core.NewManager(cfg, logger, opts...)
	SetManager(m)
	return m
}

// SetManager installs m as the process-wide Manager.
func SetManager(m *core.Manager) {
	mu.Lock()
	defer mu.Unlock()
	manager = m
}

// Instance returns the process-wide Manager.
func Instance() (*core.Manager, error) {
	mu.RLock()
	defer mu.RUnlock()
	if manager == nil {
		return nil, ErrNotInitialized
	}
	return manager, nil
}

// Disk resolves a disk by name; "" selects the default disk.
func Disk(name string) (*core.Driver, error) {
	m, err := Instance()
	if err != nil {
		return nil, err
	}
	return m.Disk(name)
}

// Cloud is an alias of Disk.
func Cloud(name string) (*core.Driver, error) {
	return Disk(name)
}

// Default resolves the default disk.
func Default() (*core.Driver, error) {
	return Disk("")
}

// Extend registers a factory for a disk type or name.
func Extend(typeOrName string, factory core.Factory) error {
	m, err := Instance()
	if err != nil {
		return err
	}
	m.Extend(typeOrName, factory)
	return nil
}

// Close closes the process-wide Manager and uninstalls it.
func Close() error {
	mu.Lock()
	m := manager
	manager = nil
	mu.Unlock()

	if m == nil {
		return nil
	}
	return m.Close()
}
