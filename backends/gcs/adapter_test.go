package gcs

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/internal/pathutil"
	"github.com/ebogdum/diskfs/metadata"
)

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), config.NewDisk("gcs", map[string]any{}), zap.NewNop())
	assert.ErrorIs(t, err, metadata.ErrConfiguration)
}

func TestNewWithMissingKeyFile(t *testing.T) {
	_, err := New(context.Background(), config.NewDisk("gcs", map[string]any{
		"bucket":   "media",
		"key_file": filepath.Join(t.TempDir(), "missing.json"),
	}), zap.NewNop())
	assert.Error(t, err)
}

func TestURLWithoutClient(t *testing.T) {
	a := &Adapter{bucketName: "media", prefixer: pathutil.NewPrefixer("site", "/")}
	u, err := a.URL("a b.txt")
	assert.NoError(t, err)
	assert.Equal(t, "https://storage.googleapis.com/media/site/a%20b.txt", u)

	a.baseURL = "https://cdn.example.com"
	u, err = a.URL("a.txt")
	assert.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/site/a.txt", u)

	assert.Equal(t, backends.KindObject, a.Kind())
	assert.Equal(t, "publicRead", aclFor(backends.Public))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(fmt.Errorf("stat: %w", &googleapi.Error{Code: http.StatusNotFound})))
	assert.False(t, isNotFound(&googleapi.Error{Code: http.StatusForbidden}))
}
