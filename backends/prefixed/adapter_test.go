package prefixed

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/internal/mocks"
	"github.com/ebogdum/diskfs/internal/pathutil"
	"github.com/ebogdum/diskfs/metadata"
)

func TestPrefixedScopesPaths(t *testing.T) {
	ctx := context.Background()
	inner := mocks.NewMemoryAdapter()
	p := New(inner, "/tenant/")

	require.NoError(t, p.Write(ctx, "docs/a.txt", []byte("hello"), nil))
	assert.Equal(t, []string{"tenant/docs/a.txt"}, inner.Paths())
	assert.Equal(t, "tenant/", p.Prefix())

	ok, err := p.FileExists(ctx, "docs/a.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	size, err := p.FileSize(ctx, "docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "docs/a.txt", size.Path)
	assert.EqualValues(t, 5, size.Size)

	require.NoError(t, p.Copy(ctx, "docs/a.txt", "docs/b.txt", nil))
	require.NoError(t, p.Move(ctx, "docs/b.txt", "c.txt", nil))
	assert.Equal(t, []string{"tenant/c.txt", "tenant/docs/a.txt"}, inner.Paths())
}

func TestPrefixedListingStripsPrefix(t *testing.T) {
	ctx := context.Background()
	inner := mocks.NewMemoryAdapter()
	require.NoError(t, inner.Write(ctx, "tenant/a.txt", nil, nil))
	require.NoError(t, inner.Write(ctx, "tenant/sub/b.txt", nil, nil))
	require.NoError(t, inner.Write(ctx, "other/c.txt", nil, nil))

	entries, err := backends.Collect(New(inner, "tenant").ListContents(ctx, "", true))
	require.NoError(t, err)

	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	sort.Strings(paths)
	assert.Equal(t, []string{"a.txt", "sub", "sub/b.txt"}, paths)
}

func TestPrefixedErrorsCarryCallerPath(t *testing.T) {
	_, err := New(mocks.NewMemoryAdapter(), "tenant").Read(context.Background(), "missing.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, metadata.ErrNotFound)

	var merr *metadata.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "missing.txt", merr.Path)
}

func TestPrefixedRejectsPathsOutsidePrefix(t *testing.T) {
	ctx := context.Background()
	inner := mocks.NewMemoryAdapter()
	require.NoError(t, inner.Write(ctx, "other-tenant/secret.txt", []byte("private"), nil))
	p := New(inner, "tenant")

	_, err := p.Read(ctx, "../other-tenant/secret.txt")
	assert.ErrorIs(t, err, pathutil.ErrPathTraversal)

	err = p.Write(ctx, "../other-tenant/secret.txt", []byte("overwritten"), nil)
	assert.ErrorIs(t, err, pathutil.ErrPathTraversal)

	err = p.Copy(ctx, "../other-tenant/secret.txt", "stolen.txt", nil)
	assert.ErrorIs(t, err, pathutil.ErrPathTraversal)

	_, err = backends.Collect(p.ListContents(ctx, "..", true))
	assert.ErrorIs(t, err, pathutil.ErrPathTraversal)

	data, err := inner.Read(ctx, "other-tenant/secret.txt")
	require.NoError(t, err)
	assert.Equal(t, "private", string(data))
	assert.Equal(t, []string{"other-tenant/secret.txt"}, inner.Paths())

	require.NoError(t, p.Write(ctx, "docs/../a.txt", []byte("x"), nil))
	ok, err := inner.FileExists(ctx, "tenant/a.txt")
	require.NoError(t, err)
	assert.True(t, ok)
}
