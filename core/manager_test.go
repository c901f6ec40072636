package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/backends/localfs"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/internal/mocks"
	"github.com/ebogdum/diskfs/metadata"
)

func testConfig(t *testing.T) *config.AppConfig {
	cfg := config.DefaultAppConfig()
	cfg.Default = "files"
	cfg.Disks = map[string]map[string]any{
		"files":  {"type": "local", "root": t.TempDir()},
		"notype": {"root": t.TempDir()},
		"memory": {"type": "memory"},
		"bogus":  {"type": "tape"},
		"cached": {"type": "memory", "cache": "memory"},
		"badc":   {"type": "memory", "cache": "floppy"},
	}
	return &cfg
}

func memoryFactory(adapters *[]*mocks.MemoryAdapter) Factory {
	return func(ctx context.Context, disk config.Disk, logger *zap.Logger) (backends.Adapter, error) {
		a := mocks.NewMemoryAdapter()
		*adapters = append(*adapters, a)
		return a, nil
	}
}

func TestManagerResolvesAndCaches(t *testing.T) {
	m := NewManager(testConfig(t), zap.NewNop())
	defer m.Close()

	d1, err := m.Disk("files")
	require.NoError(t, err)
	d2, err := m.Disk("")
	require.NoError(t, err)
	d3, err := m.Cloud("files")
	require.NoError(t, err)
	assert.Same(t, d1, d2)
	assert.Same(t, d1, d3)
	assert.IsType(t, &localfs.Adapter{}, d1.Adapter())

	def, err := m.Default()
	require.NoError(t, err)
	assert.Same(t, d1, def)
}

func TestManagerMissingTypeDefaultsToLocal(t *testing.T) {
	m := NewManager(testConfig(t), zap.NewNop())
	defer m.Close()

	d, err := m.Disk("notype")
	require.NoError(t, err)
	assert.IsType(t, &localfs.Adapter{}, d.Adapter())
}

func TestManagerConfigurationErrors(t *testing.T) {
	m := NewManager(testConfig(t), zap.NewNop())
	defer m.Close()

	_, err := m.Disk("absent")
	assert.ErrorIs(t, err, metadata.ErrConfiguration)

	_, err = m.Disk("bogus")
	assert.ErrorIs(t, err, metadata.ErrConfiguration)

	_, err = m.DiskConfig("absent")
	assert.ErrorIs(t, err, metadata.ErrConfiguration)
}

func TestManagerExtendByTypeAndName(t *testing.T) {
	var byType, byName []*mocks.MemoryAdapter
	m := NewManager(testConfig(t), zap.NewNop())
	defer m.Close()

	m.Extend("memory", memoryFactory(&byType))
	m.Extend("cached", memoryFactory(&byName))

	_, err := m.Disk("memory")
	require.NoError(t, err)
	_, err = m.Disk("cached")
	require.NoError(t, err)

	assert.Len(t, byType, 1)
	assert.Len(t, byName, 1)
}

func TestManagerFactoryError(t *testing.T) {
	m := NewManager(testConfig(t), zap.NewNop(), WithFactory("memory", func(ctx context.Context, disk config.Disk, logger *zap.Logger) (backends.Adapter, error) {
		return nil, errors.New("no credentials")
	}))
	defer m.Close()

	_, err := m.Disk("memory")
	assert.ErrorContains(t, err, "no credentials")
}

func TestManagerConcurrentFirstUseBuildsOnce(t *testing.T) {
	var adapters []*mocks.MemoryAdapter
	m := NewManager(testConfig(t), zap.NewNop(), WithFactory("memory", memoryFactory(&adapters)))
	defer m.Close()

	var wg sync.WaitGroup
	drivers := make([]*Driver, 16)
	for i := range drivers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := m.Disk("memory")
			assert.NoError(t, err)
			drivers[i] = d
		}(i)
	}
	wg.Wait()

	assert.Len(t, adapters, 1)
	for _, d := range drivers {
		assert.Same(t, drivers[0], d)
	}
}

func TestManagerForgetAndClose(t *testing.T) {
	var adapters []*mocks.MemoryAdapter
	m := NewManager(testConfig(t), zap.NewNop(), WithFactory("memory", memoryFactory(&adapters)))

	first, err := m.Disk("memory")
	require.NoError(t, err)
	m.Forget("memory")
	second, err := m.Disk("memory")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Len(t, adapters, 2)

	require.NoError(t, m.Close())
	assert.False(t, adapters[0].Closed())
	assert.True(t, adapters[1].Closed())
}

func TestManagerCacheStores(t *testing.T) {
	var adapters []*mocks.MemoryAdapter
	m := NewManager(testConfig(t), zap.NewNop(), WithFactory("memory", memoryFactory(&adapters)))
	defer m.Close()

	d, err := m.Disk("cached")
	require.NoError(t, err)
	_, err = d.Put(context.Background(), "a.txt", "abc")
	require.NoError(t, err)
	for range 2 {
		_, err := d.Size(context.Background(), "a.txt")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, adapters[0].Calls("fileSize"))

	_, err = m.Disk("badc")
	assert.ErrorIs(t, err, metadata.ErrConfiguration)
	assert.True(t, adapters[1].Closed())
}
