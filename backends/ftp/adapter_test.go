package ftp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/metadata"
)

func TestNew(t *testing.T) {
	_, err := New(config.NewDisk("ftp", map[string]any{"type": "ftp"}), zap.NewNop())
	assert.ErrorIs(t, err, metadata.ErrConfiguration)

	a, err := New(config.NewDisk("ftp", map[string]any{
		"host":    "ftp.example.com",
		"port":    2121,
		"root":    "/pub",
		"timeout": 5,
		"ssl":     true,
	}), zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, backends.KindFTP, a.Kind())
	assert.Equal(t, 2121, a.opts.Port)
	assert.Equal(t, "anonymous", a.opts.Username)
	assert.Equal(t, 5*time.Second, a.opts.Timeout)
	assert.True(t, a.opts.Passive)
	assert.True(t, a.opts.SSL)
	assert.Equal(t, "/pub/a/b.txt", a.location("a/b.txt"))
}

func TestVisibilityUnsupported(t *testing.T) {
	a, err := New(config.NewDisk("ftp", map[string]any{"host": "h"}), zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	err = a.SetVisibility(ctx, "a.txt", backends.Public)
	assert.ErrorIs(t, err, ErrVisibilityUnsupported)
	assert.ErrorIs(t, err, metadata.ErrUnableToSetVisibility)

	_, err = a.Visibility(ctx, "a.txt")
	assert.ErrorIs(t, err, metadata.ErrUnableToRetrieveMetadata)
}

func TestConnectionFailureIsTagged(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	a, err := New(config.NewDisk("ftp", map[string]any{"host": "127.0.0.1", "port": port, "timeout": 1}), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	_, err = a.FileExists(context.Background(), "a.txt")
	assert.ErrorIs(t, err, metadata.ErrUnableToCheckExistence)

	_, err = a.Read(context.Background(), "a.txt")
	assert.ErrorIs(t, err, metadata.ErrUnableToRead)
	assert.NotErrorIs(t, err, metadata.ErrNotFound)
}
