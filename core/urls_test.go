package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/internal/mocks"
	"github.com/ebogdum/diskfs/metadata"
)

func driverFor(t *testing.T, adapter backends.Adapter, raw map[string]any) *Driver {
	t.Helper()
	d, err := NewDriver(config.NewDisk("test", raw), adapter, nil, zap.NewNop())
	require.NoError(t, err)
	return d
}

func TestURLLocalFallbacks(t *testing.T) {
	local := &mocks.KindedAdapter{MemoryAdapter: mocks.NewMemoryAdapter(), AdapterKind: backends.KindLocal}

	url, err := driverFor(t, local, nil).URL("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", url)

	url, err = driverFor(t, local, map[string]any{"url": "http://cdn.test/storage/"}).URL("/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "http://cdn.test/storage/a.txt", url)

	url, err = driverFor(t, local, map[string]any{"url": "http://cdn.test", "prefix": "tenant"}).URL("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "http://cdn.test/tenant/a.txt", url)
}

func TestURLFTPKinds(t *testing.T) {
	for _, kind := range []backends.Kind{backends.KindFTP, backends.KindSFTP} {
		adapter := &mocks.KindedAdapter{MemoryAdapter: mocks.NewMemoryAdapter(), AdapterKind: kind}
		url, err := driverFor(t, adapter, map[string]any{"url": "ftp://files.test"}).URL("x/y.txt")
		require.NoError(t, err)
		assert.Equal(t, "ftp://files.test/x/y.txt", url)
	}
}

func TestURLPrefersAdapter(t *testing.T) {
	adapter := &mocks.URLAdapter{MemoryAdapter: mocks.NewMemoryAdapter(), Base: "https://bucket.test"}
	url, err := driverFor(t, adapter, map[string]any{"url": "http://ignored"}).URL("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "https://bucket.test/a.txt", url)
}

func TestURLUnsupported(t *testing.T) {
	_, err := driverFor(t, mocks.NewMemoryAdapter(), map[string]any{"url": "http://x"}).URL("a.txt")
	assert.ErrorIs(t, err, metadata.ErrUnsupported)

	_, err = driverFor(t, mocks.NewMemoryAdapter(), nil).TemporaryURL(context.Background(), "a.txt", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, metadata.ErrUnsupported)
}

func TestTemporaryURLChain(t *testing.T) {
	ctx := context.Background()
	expires := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)

	presign := &mocks.PresignAdapter{MemoryAdapter: mocks.NewMemoryAdapter(), Base: "https://s3.test/bucket"}
	url, err := driverFor(t, presign, nil).TemporaryURL(ctx, "a.txt", expires)
	require.NoError(t, err)
	assert.Equal(t, "https://s3.test/bucket/a.txt?X-Amz-Expires=20300102T030405Z", url)

	url, err = driverFor(t, presign, map[string]any{"temporary_url": "https://cdn.test"}).TemporaryURL(ctx, "a.txt", expires)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/bucket/a.txt?X-Amz-Expires=20300102T030405Z", url)

	d := driverFor(t, presign, nil)
	d.BuildTemporaryURLsUsing(func(ctx context.Context, path string, expiresAt time.Time, cfg backends.Config) (string, error) {
		return "custom://" + path, nil
	})
	url, err = d.TemporaryURL(ctx, "a.txt", expires)
	require.NoError(t, err)
	assert.Equal(t, "custom://a.txt", url)

	d.BuildTemporaryURLsUsing(nil)
	url, err = d.TemporaryURL(ctx, "a.txt", expires)
	require.NoError(t, err)
	assert.Contains(t, url, "https://s3.test/")
}
