package backends

import (
	"errors"
	"iter"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebogdum/diskfs/internal/pathutil"
	"github.com/ebogdum/diskfs/metadata"
)

func collectPaths(t *testing.T, seq iter.Seq2[*metadata.Attributes, error]) map[string]string {
	t.Helper()
	out := make(map[string]string)
	for attrs, err := range seq {
		require.NoError(t, err)
		out[attrs.Path] = attrs.Type
	}
	return out
}

func TestListObjectsDeep(t *testing.T) {
	prefixer := pathutil.NewPrefixer("base", "/")
	var tokens []string
	fetch := func(prefix, delimiter, token string) (ObjectPage, error) {
		assert.Equal(t, "base/docs/", prefix)
		assert.Empty(t, delimiter)
		tokens = append(tokens, token)
		if token == "" {
			return ObjectPage{
				Objects: []*metadata.Attributes{
					metadata.NewFile("base/docs/", 0, time.Time{}),
					metadata.NewFile("base/docs/a.txt", 3, time.Time{}),
					metadata.NewFile("base/docs/sub/", 0, time.Time{}),
				},
				Next: "page-2",
			}, nil
		}
		return ObjectPage{
			Objects: []*metadata.Attributes{
				metadata.NewFile("base/docs/sub/deep/b.txt", 5, time.Time{}),
			},
		}, nil
	}

	got := collectPaths(t, ListObjects(prefixer, "docs", true, fetch))
	assert.Equal(t, map[string]string{
		"docs/a.txt":          metadata.TypeFile,
		"docs/sub":            metadata.TypeDirectory,
		"docs/sub/deep":       metadata.TypeDirectory,
		"docs/sub/deep/b.txt": metadata.TypeFile,
	}, got)
	assert.Equal(t, []string{"", "page-2"}, tokens)
}

func TestListObjectsShallow(t *testing.T) {
	prefixer := pathutil.NewPrefixer("", "/")
	fetch := func(prefix, delimiter, token string) (ObjectPage, error) {
		assert.Equal(t, "docs/", prefix)
		assert.Equal(t, "/", delimiter)
		return ObjectPage{
			Objects:  []*metadata.Attributes{metadata.NewFile("docs/a.txt", 1, time.Time{})},
			Prefixes: []string{"docs/sub/"},
		}, nil
	}

	got := collectPaths(t, ListObjects(prefixer, "docs", false, fetch))
	assert.Equal(t, map[string]string{
		"docs/a.txt": metadata.TypeFile,
		"docs/sub":   metadata.TypeDirectory,
	}, got)
}

func TestListObjectsErrorsAndEarlyStop(t *testing.T) {
	prefixer := pathutil.NewPrefixer("", "/")
	boom := errors.New("boom")

	var seen error
	for _, err := range ListObjects(prefixer, "", true, func(string, string, string) (ObjectPage, error) {
		return ObjectPage{}, boom
	}) {
		seen = err
	}
	assert.ErrorIs(t, seen, metadata.ErrUnableToList)
	assert.ErrorIs(t, seen, boom)

	calls := 0
	fetch := func(string, string, string) (ObjectPage, error) {
		calls++
		return ObjectPage{
			Objects: []*metadata.Attributes{
				metadata.NewFile("a", 1, time.Time{}),
				metadata.NewFile("b", 1, time.Time{}),
			},
			Next: "more",
		}, nil
	}
	for range ListObjects(prefixer, "", false, fetch) {
		break
	}
	assert.Equal(t, 1, calls)
}

func TestObjectURLAndRewriteBase(t *testing.T) {
	assert.Equal(t, "https://cdn.example.com/a%20b/c%3F.txt", ObjectURL("https://cdn.example.com/", "a b/c?.txt"))

	got, err := RewriteBase("https://bucket.s3.amazonaws.com/key.txt?X-Sig=abc", "https://files.example.com/dl/")
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/key.txt?X-Sig=abc", got, "the signed path is kept as-is")

	got, err = RewriteBase("http://minio:9000/bucket/a%20b.txt?X-Amz-Signature=f00", "https://cdn.example.com:8443")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com:8443/bucket/a%20b.txt?X-Amz-Signature=f00", got)

	_, err = RewriteBase("https://bucket/key", "://bad")
	assert.Error(t, err)
}

func TestParseVisibility(t *testing.T) {
	v, ok := ParseVisibility(" PUBLIC ")
	assert.True(t, ok)
	assert.Equal(t, Public, v)

	_, ok = ParseVisibility("world-readable")
	assert.False(t, ok)
}

func TestConfigOptions(t *testing.T) {
	cfg := Config{OptionVisibility: "private", OptionMimeType: "text/x-a"}
	merged := cfg.Merge(Config{OptionVisibility: Public, OptionCacheControl: "max-age=60"})

	assert.Equal(t, Public, merged.Visibility(OptionVisibility, Private))
	assert.Equal(t, "max-age=60", merged.String(OptionCacheControl, ""))
	assert.Equal(t, "private", cfg.String(OptionVisibility, ""), "merge must not mutate the receiver")

	dst := Config{}
	Public.Apply(dst)
	Config{"timeout": "2s"}.Apply(dst)
	assert.Equal(t, Public, dst[OptionVisibility])
	assert.Equal(t, 2*time.Second, dst.Duration("timeout", 0))
	assert.Equal(t, 5*time.Second, Config{"timeout": 5}.Duration("timeout", 0))
	assert.Equal(t, time.Minute, Config{}.Duration("timeout", time.Minute))
}

func TestUnixVisibility(t *testing.T) {
	v := NewUnixVisibility("")
	assert.Equal(t, Private, v.Default)
	assert.Equal(t, os.FileMode(0o644), v.ForFile(Public))
	assert.Equal(t, os.FileMode(0o700), v.DefaultForDirectories())
	assert.Equal(t, Public, v.InverseForFile(0o644))
	assert.Equal(t, Private, v.InverseForFile(0o664))

	custom := UnixVisibilityFromMap(map[string]any{
		"file": map[string]any{"public": "0640"},
		"dir":  map[string]any{"private": 0o711},
	}, Public)
	assert.Equal(t, os.FileMode(0o640), custom.FilePublic)
	assert.Equal(t, os.FileMode(0o600), custom.FilePrivate)
	assert.Equal(t, os.FileMode(0o711), custom.DirectoryPrivate)
	assert.Equal(t, os.FileMode(0o755), custom.DefaultForDirectories())
	assert.Equal(t, Public, custom.InverseForDirectory(0o755))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/png", ContentType("logo.PNG", nil, nil))
	assert.Equal(t, "text/x-custom", ContentType("a.txt", nil, Config{OptionMimeType: "text/x-custom"}))
	assert.Equal(t, "application/pdf", ContentType("report", []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n"), nil))
	assert.Equal(t, "text/plain", DetectMimeType("notes", []byte("plain words")))
	assert.Equal(t, "", DetectMimeType("unknown", nil))
}
