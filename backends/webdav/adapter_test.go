package webdav

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	xwebdav "golang.org/x/net/webdav"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/metadata"
)

func newTestAdapter(t *testing.T, root string) *Adapter {
	t.Helper()

	srv := httptest.NewServer(&xwebdav.Handler{
		FileSystem: xwebdav.NewMemFS(),
		LockSystem: xwebdav.NewMemLS(),
	})
	t.Cleanup(srv.Close)

	a, err := New(config.NewDisk("dav", map[string]any{"type": Type, "url": srv.URL, "root": root}), zap.NewNop())
	require.NoError(t, err)
	return a
}

func TestNewRequiresURL(t *testing.T) {
	_, err := New(config.NewDisk("dav", map[string]any{"type": Type}), zap.NewNop())
	assert.ErrorIs(t, err, metadata.ErrConfiguration)
}

func TestFactory(t *testing.T) {
	srv := httptest.NewServer(&xwebdav.Handler{FileSystem: xwebdav.NewMemFS(), LockSystem: xwebdav.NewMemLS()})
	defer srv.Close()

	a, err := Factory(context.Background(), config.NewDisk("dav", map[string]any{"url": srv.URL}), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, backends.KindObject, backends.KindOf(a))
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t, "")

	require.NoError(t, a.Write(ctx, "docs/readme.txt", []byte("hello dav"), nil))

	ok, err := a.FileExists(ctx, "docs/readme.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.DirectoryExists(ctx, "docs")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := a.Read(ctx, "docs/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello dav", string(data))

	size, err := a.FileSize(ctx, "docs/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(9), size.Size)

	mime, err := a.MimeType(ctx, "docs/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", mime.MimeType)

	_, err = a.Read(ctx, "docs/missing.txt")
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}

func TestVisibilityUnsupported(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t, "")
	require.NoError(t, a.Write(ctx, "a.txt", []byte("x"), nil))

	err := a.SetVisibility(ctx, "a.txt", backends.Public)
	assert.ErrorIs(t, err, metadata.ErrUnsupported)

	_, err = a.Visibility(ctx, "a.txt")
	assert.ErrorIs(t, err, metadata.ErrUnsupported)
}

func TestListingAndTreeOperations(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t, "site")

	require.NoError(t, a.Write(ctx, "index.html", []byte("<html></html>"), nil))
	require.NoError(t, a.Write(ctx, "css/site.css", []byte("body{}"), nil))
	require.NoError(t, a.CreateDirectory(ctx, "img/icons", nil))

	deep, err := backends.Collect(a.ListContents(ctx, "", true))
	require.NoError(t, err)
	var paths []string
	for _, e := range deep {
		paths = append(paths, e.Path)
	}
	assert.ElementsMatch(t, []string{"index.html", "css", "css/site.css", "img", "img/icons"}, paths)

	require.NoError(t, a.Copy(ctx, "css/site.css", "backup/site.css", nil))
	require.NoError(t, a.Move(ctx, "index.html", "pages/index.html", nil))

	ok, _ := a.FileExists(ctx, "index.html")
	assert.False(t, ok)
	ok, _ = a.FileExists(ctx, "backup/site.css")
	assert.True(t, ok)

	err = a.Move(ctx, "ghost.html", "x.html", nil)
	assert.ErrorIs(t, err, metadata.ErrNotFound)

	require.NoError(t, a.DeleteDirectory(ctx, "css"))
	ok, _ = a.DirectoryExists(ctx, "css")
	assert.False(t, ok)

	require.NoError(t, a.Delete(ctx, "pages/index.html"))
	require.NoError(t, a.Delete(ctx, "pages/index.html"))

	u, err := a.URL("pages/index.html")
	require.NoError(t, err)
	assert.Contains(t, u, "/site/pages/index.html")
}
