package localfs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/locks"
	"github.com/ebogdum/diskfs/metadata"
)

func newAdapter(t *testing.T, extra map[string]any) (*Adapter, string) {
	t.Helper()
	root := t.TempDir()
	raw := map[string]any{"type": "local", "root": root}
	for k, v := range extra {
		raw[k] = v
	}
	a, err := New(config.NewDisk("local", raw), nil, zap.NewNop())
	require.NoError(t, err)
	return a, root
}

func TestAdapter_WriteRead(t *testing.T) {
	a, root := newAdapter(t, nil)
	ctx := context.Background()

	require.NoError(t, a.Write(ctx, "a/b.txt", []byte("hello"), nil))

	data, err := a.Read(ctx, "a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = os.Stat(filepath.Join(root, "a", "b.txt"))
	assert.NoError(t, err)

	exists, err := a.FileExists(ctx, "a/b.txt")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = a.DirectoryExists(ctx, "a")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = a.FileExists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, exists, "a directory is not a file")
}

func TestAdapter_ReadMissing(t *testing.T) {
	a, _ := newAdapter(t, nil)

	_, err := a.Read(context.Background(), "nope.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, metadata.ErrUnableToRead)
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}

func TestAdapter_DeleteMissingIsNoop(t *testing.T) {
	a, _ := newAdapter(t, nil)
	ctx := context.Background()

	assert.NoError(t, a.Delete(ctx, "missing.txt"))
	assert.NoError(t, a.DeleteDirectory(ctx, "missing"))
}

func TestAdapter_DeleteDirectory(t *testing.T) {
	a, _ := newAdapter(t, nil)
	ctx := context.Background()

	require.NoError(t, a.Write(ctx, "d/x/y.txt", []byte("1"), nil))
	require.NoError(t, a.DeleteDirectory(ctx, "d"))

	exists, err := a.DirectoryExists(ctx, "d")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAdapter_Visibility(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not meaningful on windows")
	}
	a, _ := newAdapter(t, nil)
	ctx := context.Background()

	require.NoError(t, a.Write(ctx, "v.txt", []byte("x"), backends.Config{backends.OptionVisibility: "public"}))
	attrs, err := a.Visibility(ctx, "v.txt")
	require.NoError(t, err)
	assert.Equal(t, "public", attrs.Visibility)

	require.NoError(t, a.SetVisibility(ctx, "v.txt", backends.Private))
	attrs, err = a.Visibility(ctx, "v.txt")
	require.NoError(t, err)
	assert.Equal(t, "private", attrs.Visibility)
}

func TestAdapter_CustomPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not meaningful on windows")
	}
	a, root := newAdapter(t, map[string]any{
		"permissions": map[string]any{
			"file": map[string]any{"public": 0o640, "private": 0o600},
		},
	})
	ctx := context.Background()

	require.NoError(t, a.Write(ctx, "p.txt", []byte("x"), backends.Config{backends.OptionVisibility: "public"}))
	info, err := os.Stat(filepath.Join(root, "p.txt"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
}

func TestAdapter_ListContents(t *testing.T) {
	a, _ := newAdapter(t, nil)
	ctx := context.Background()

	for _, p := range []string{"top.txt", "dir/one.txt", "dir/sub/two.txt"} {
		require.NoError(t, a.Write(ctx, p, []byte(p), nil))
	}

	shallow, err := backends.Collect(a.ListContents(ctx, "", false))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"top.txt", "dir"}, paths(shallow))

	deep, err := backends.Collect(a.ListContents(ctx, "", true))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"top.txt", "dir", "dir/one.txt", "dir/sub", "dir/sub/two.txt"}, paths(deep))

	for _, entry := range deep {
		if entry.Path == "dir/sub" {
			assert.True(t, entry.IsDir())
		}
	}

	missing, err := backends.Collect(a.ListContents(ctx, "nowhere", true))
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestAdapter_Links(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	ctx := context.Background()

	a, root := newAdapter(t, nil)
	require.NoError(t, a.Write(ctx, "real.txt", []byte("x"), nil))
	require.NoError(t, os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "link.txt")))

	_, err := backends.Collect(a.ListContents(ctx, "", true))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSymbolicLink)

	skipping, root2 := newAdapter(t, map[string]any{"links": "skip"})
	require.NoError(t, skipping.Write(ctx, "real.txt", []byte("x"), nil))
	require.NoError(t, os.Symlink(filepath.Join(root2, "real.txt"), filepath.Join(root2, "link.txt")))

	entries, err := backends.Collect(skipping.ListContents(ctx, "", true))
	require.NoError(t, err)
	assert.Equal(t, []string{"real.txt"}, paths(entries))
}

func TestAdapter_MoveCopy(t *testing.T) {
	a, _ := newAdapter(t, nil)
	ctx := context.Background()

	require.NoError(t, a.Write(ctx, "src.txt", []byte("data"), nil))
	require.NoError(t, a.Copy(ctx, "src.txt", "copies/dst.txt", nil))
	require.NoError(t, a.Move(ctx, "src.txt", "moved/src.txt", nil))

	data, err := a.Read(ctx, "copies/dst.txt")
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	exists, err := a.FileExists(ctx, "src.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	err = a.Move(ctx, "src.txt", "again.txt", nil)
	assert.ErrorIs(t, err, metadata.ErrUnableToMove)
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}

func TestAdapter_CopyOntoItselfKeepsContent(t *testing.T) {
	a, root := newAdapter(t, nil)
	ctx := context.Background()

	require.NoError(t, a.Write(ctx, "same.txt", []byte("keep me"), nil))
	require.NoError(t, a.Copy(ctx, "same.txt", "same.txt", nil))

	data, err := a.Read(ctx, "same.txt")
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(data))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no staging file is left behind")
	assert.Equal(t, "same.txt", entries[0].Name())
}

func TestAdapter_FailedWriteKeepsPreviousContent(t *testing.T) {
	a, root := newAdapter(t, nil)
	ctx := context.Background()

	require.NoError(t, a.Write(ctx, "f.txt", []byte("original"), nil))

	err := a.WriteStream(ctx, "f.txt", iotest.ErrReader(errors.New("boom")), nil)
	assert.ErrorIs(t, err, metadata.ErrUnableToWrite)

	data, err := a.Read(ctx, "f.txt")
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAdapter_Metadata(t *testing.T) {
	a, _ := newAdapter(t, nil)
	ctx := context.Background()

	require.NoError(t, a.Write(ctx, "doc.txt", []byte("12345"), nil))
	require.NoError(t, a.Write(ctx, "blob", []byte("%PDF-1.4\n%âãÏÓ\n"), nil))

	size, err := a.FileSize(ctx, "doc.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 5, size.Size)

	mime, err := a.MimeType(ctx, "doc.txt")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", mime.MimeType)

	sniffed, err := a.MimeType(ctx, "blob")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", sniffed.MimeType)

	modified, err := a.LastModified(ctx, "doc.txt")
	require.NoError(t, err)
	assert.False(t, modified.LastModified.IsZero())

	_, err = a.FileSize(ctx, "missing")
	assert.ErrorIs(t, err, metadata.ErrUnableToRetrieveMetadata)
}

func TestAdapter_WriteWithLock(t *testing.T) {
	root := t.TempDir()
	a, err := New(config.NewDisk("local", map[string]any{"root": root}), locks.NewLocalManager(), zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, a.WriteStream(ctx, "locked.txt", strings.NewReader("one"), nil))
	require.NoError(t, a.WriteStream(ctx, "locked.txt", strings.NewReader("two"), nil))

	data, err := a.Read(ctx, "locked.txt")
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
	require.NoError(t, a.Close())
}

func TestNew_RequiresRoot(t *testing.T) {
	_, err := New(config.NewDisk("local", map[string]any{"type": "local"}), nil, zap.NewNop())
	assert.ErrorIs(t, err, metadata.ErrConfiguration)
}

func paths(entries []*metadata.Attributes) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Path)
	}
	return out
}
