package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebogdum/diskfs/metadata"
)

func TestStore_SetGet(t *testing.T) {
	s := NewStore(0)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", metadata.NewFile("a.txt", 3, time.Time{}), time.Minute))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", got.Path)
	assert.Equal(t, int64(3), got.Size)

	// mutations of the returned copy do not leak into the cache
	got.Size = 99
	again, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(3), again.Size)
}

func TestStore_Expiry(t *testing.T) {
	s := NewStore(0)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", metadata.NewFile("a", 1, time.Time{}), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, err := s.Get(ctx, "a")
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}

func TestStore_DeletePrefix(t *testing.T) {
	s := NewStore(0)
	defer s.Close()
	ctx := context.Background()

	for _, k := range []string{"disk:a", "disk:b", "other:c"} {
		require.NoError(t, s.Set(ctx, k, metadata.NewFile(k, 0, time.Time{}), 0))
	}
	require.NoError(t, s.DeletePrefix(ctx, "disk:"))

	assert.Equal(t, 1, s.Len())
	_, err := s.Get(ctx, "other:c")
	assert.NoError(t, err)
}

func TestStore_EvictsAtCapacity(t *testing.T) {
	s := NewStore(2)
	defer s.Close()
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, s.Set(ctx, k, metadata.NewFile(k, 0, time.Time{}), 0))
	}
	assert.Equal(t, 2, s.Len())
	_, err := s.Get(ctx, "c")
	assert.NoError(t, err)
}
