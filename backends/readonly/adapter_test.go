package readonly

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/internal/mocks"
	"github.com/ebogdum/diskfs/metadata"
)

func TestReadOnlyRejectsWrites(t *testing.T) {
	ctx := context.Background()
	inner := mocks.NewMemoryAdapter()
	require.NoError(t, inner.Write(ctx, "a.txt", []byte("hello"), nil))

	ro := New(inner)

	cases := []struct {
		name string
		kind error
		call func() error
	}{
		{"write", metadata.ErrUnableToWrite, func() error { return ro.Write(ctx, "b.txt", []byte("x"), nil) }},
		{"writeStream", metadata.ErrUnableToWrite, func() error { return ro.WriteStream(ctx, "b.txt", strings.NewReader("x"), nil) }},
		{"delete", metadata.ErrUnableToDelete, func() error { return ro.Delete(ctx, "a.txt") }},
		{"deleteDirectory", metadata.ErrUnableToDeleteDirectory, func() error { return ro.DeleteDirectory(ctx, "dir") }},
		{"createDirectory", metadata.ErrUnableToCreateDirectory, func() error { return ro.CreateDirectory(ctx, "dir", nil) }},
		{"setVisibility", metadata.ErrUnableToSetVisibility, func() error { return ro.SetVisibility(ctx, "a.txt", backends.Public) }},
		{"move", metadata.ErrUnableToMove, func() error { return ro.Move(ctx, "a.txt", "c.txt", nil) }},
		{"copy", metadata.ErrUnableToCopy, func() error { return ro.Copy(ctx, "a.txt", "c.txt", nil) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.kind)
			assert.ErrorIs(t, err, metadata.ErrReadOnly)
		})
	}

	assert.Equal(t, []string{"a.txt"}, inner.Paths())
	assert.Zero(t, inner.Calls("delete"))
}

func TestReadOnlyPassesReadsThrough(t *testing.T) {
	ctx := context.Background()
	inner := mocks.NewMemoryAdapter()
	require.NoError(t, inner.Write(ctx, "docs/a.txt", []byte("hello"), nil))

	ro := New(inner)

	data, err := ro.Read(ctx, "docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	ok, err := ro.DirectoryExists(ctx, "docs")
	require.NoError(t, err)
	assert.True(t, ok)

	entries, err := backends.Collect(ro.ListContents(ctx, "docs", false))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	assert.Same(t, inner, ro.Unwrap())
	assert.Same(t, inner, backends.Innermost(ro))
}
