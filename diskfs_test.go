package diskfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/internal/mocks"
)

func TestFacadeLifecycle(t *testing.T) {
	require.NoError(t, Close())

	_, err := Disk("")
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, Extend("x", nil), ErrNotInitialized)

	cfg := config.DefaultAppConfig()
	cfg.Default = "mem"
	cfg.Disks = map[string]map[string]any{"mem": {"type": "memory"}}
	Init(&cfg, zap.NewNop())
	t.Cleanup(func() { Close() })

	adapter := mocks.NewMemoryAdapter()
	require.NoError(t, Extend("memory", func(ctx context.Context, disk config.Disk, logger *zap.Logger) (backends.Adapter, error) {
		return adapter, nil
	}))

	d, err := Default()
	require.NoError(t, err)
	ok, err := d.Put(context.Background(), "a.txt", "hello", Public)
	require.NoError(t, err)
	assert.True(t, ok)

	same, err := Cloud("mem")
	require.NoError(t, err)
	assert.Same(t, d, same)

	require.NoError(t, Close())
	assert.True(t, adapter.Closed())
	_, err = Disk("mem")
	assert.ErrorIs(t, err, ErrNotInitialized)
}
