package qiniu

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/metadata"
)

func newTestAdapter(t *testing.T, extra map[string]any) *Adapter {
	t.Helper()
	raw := map[string]any{
		"access_key": "ak",
		"secret_key": "sk",
		"bucket":     "media",
		"domain":     "cdn.example.com",
	}
	for k, v := range extra {
		raw[k] = v
	}
	a, err := New(config.NewDisk("qiniu", raw), zap.NewNop())
	require.NoError(t, err)
	return a
}

func TestNewValidation(t *testing.T) {
	_, err := New(config.NewDisk("qiniu", map[string]any{"bucket": "media", "domain": "d"}), zap.NewNop())
	assert.ErrorIs(t, err, metadata.ErrConfiguration)

	_, err = New(config.NewDisk("qiniu", map[string]any{"accessKey": "ak", "secretKey": "sk"}), zap.NewNop())
	assert.ErrorIs(t, err, metadata.ErrConfiguration)

	a, err := New(config.NewDisk("qiniu", map[string]any{
		"accessKey": "ak",
		"secretKey": "sk",
		"bucket":    "media",
		"domain":    "https://cdn.example.com/",
	}), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com", a.domain)

	assert.Equal(t, "http://cdn.example.com", newTestAdapter(t, nil).domain)
}

func TestURLs(t *testing.T) {
	a := newTestAdapter(t, map[string]any{"root": "site"})
	assert.Equal(t, backends.KindObject, a.Kind())

	u, err := a.URL("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "http://cdn.example.com/site/a.txt", u)

	expires := time.Now().Add(time.Hour)
	u, err = a.TemporaryURL(context.Background(), "a.txt", expires, nil)
	require.NoError(t, err)
	assert.Contains(t, u, "http://cdn.example.com/site/a.txt?e="+strconv.FormatInt(expires.Unix(), 10))
	assert.Contains(t, u, "token=ak:")
}

func TestVisibilityUnsupported(t *testing.T) {
	a := newTestAdapter(t, nil)

	err := a.SetVisibility(context.Background(), "a.txt", backends.Public)
	assert.ErrorIs(t, err, ErrVisibilityUnsupported)
	assert.ErrorIs(t, err, metadata.ErrUnableToSetVisibility)

	_, err = a.Visibility(context.Background(), "a.txt")
	assert.ErrorIs(t, err, ErrVisibilityUnsupported)
}
