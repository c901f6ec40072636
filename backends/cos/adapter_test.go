package cos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/metadata"
)

func testDisk(extra map[string]any) config.Disk {
	raw := map[string]any{
		"region":     "ap-guangzhou",
		"bucket":     "media",
		"app_id":     "1250000000",
		"secret_id":  "AKIDexample",
		"secret_key": "secret",
	}
	for k, v := range extra {
		raw[k] = v
	}
	return config.NewDisk("cos", raw)
}

func TestNew(t *testing.T) {
	_, err := New(config.NewDisk("cos", map[string]any{"bucket": "media"}), zap.NewNop())
	assert.ErrorIs(t, err, metadata.ErrConfiguration)

	a, err := New(testDisk(nil), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, backends.KindObject, a.Kind())
	assert.Equal(t, "media-1250000000.cos.ap-guangzhou.myqcloud.com", a.bucketHost)

	// an app id already on the bucket name is not appended twice
	b, err := New(testDisk(map[string]any{"bucket": "media-1250000000"}), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, a.bucketHost, b.bucketHost)
}

func TestURL(t *testing.T) {
	a, err := New(testDisk(map[string]any{"root": "public"}), zap.NewNop())
	require.NoError(t, err)
	u, err := a.URL("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "https://media-1250000000.cos.ap-guangzhou.myqcloud.com/public/a.txt", u)

	cdn, err := New(testDisk(map[string]any{"cdn": "https://cdn.example.com/"}), zap.NewNop())
	require.NoError(t, err)
	u, err = cdn.URL("dir/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/dir/a.txt", u)
}

func TestTemporaryURL(t *testing.T) {
	a, err := New(testDisk(nil), zap.NewNop())
	require.NoError(t, err)

	_, err = a.TemporaryURL(context.Background(), "a.txt", time.Now().Add(-time.Second), nil)
	assert.Error(t, err)

	u, err := a.TemporaryURL(context.Background(), "a.txt", time.Now().Add(time.Hour), nil)
	require.NoError(t, err)
	assert.Contains(t, u, "https://media-1250000000.cos.ap-guangzhou.myqcloud.com/a.txt?")
	assert.Contains(t, u, "q-signature=")
}

func TestACL(t *testing.T) {
	assert.Equal(t, "public-read", aclFor(backends.Public))
	assert.Equal(t, "private", aclFor(backends.Private))
}
