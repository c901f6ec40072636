package core

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/internal/mocks"
	"github.com/ebogdum/diskfs/internal/pathutil"
	"github.com/ebogdum/diskfs/metadata"
)

func TestFallbackName(t *testing.T) {
	cases := map[string]string{
		"report.pdf":      "report.pdf",
		"résumé.txt":      "resume.txt",
		"100%-done.csv":   "100-done.csv",
		"文件.txt":          ".txt",
		"Ångström ñ.docx": "Angstrom n.docx",
	}
	for in, want := range cases {
		assert.Equal(t, want, FallbackName(in), in)
	}
}

func TestContentDisposition(t *testing.T) {
	assert.Equal(t, `attachment; filename="a.txt"`, ContentDisposition(DispositionAttachment, "a.txt"))
	assert.Equal(t,
		`inline; filename="resume.txt"; filename*=utf-8''r%C3%A9sum%C3%A9.txt`,
		ContentDisposition(DispositionInline, "résumé.txt"))
	assert.Equal(t, `attachment; filename="report\\"`, ContentDisposition(DispositionAttachment, `report\`))
	assert.Equal(t, `attachment; filename="say \"hi\".txt"`, ContentDisposition(DispositionAttachment, `say "hi".txt`))
	assert.Equal(t, `inline; filename="a\\\"b"`, ContentDisposition(DispositionInline, `a\"b`))
}

func TestDriverResponseReadsMetadataBeforeStreaming(t *testing.T) {
	ctx := context.Background()
	inner := &exclusiveStream{MemoryAdapter: mocks.NewMemoryAdapter()}
	d, err := NewDriver(config.NewDisk("test", nil), inner, nil, zap.NewNop())
	require.NoError(t, err)
	_, err = d.Put(ctx, "a.txt", "hello")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	require.NoError(t, d.Response(ctx, rec, "a.txt", "", nil, ""))
	assert.Equal(t, "hello", rec.Body.String())
	assert.Equal(t, "5", rec.Header().Get("Content-Length"))
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
}

func TestDriverResponseRejectsPathsAboveRoot(t *testing.T) {
	d, _ := newTestDriver(t, nil)

	rec := httptest.NewRecorder()
	err := d.Response(context.Background(), rec, "../etc/passwd", "", nil, "")
	assert.ErrorIs(t, err, pathutil.ErrPathTraversal)
	assert.Empty(t, rec.Header())
}

// exclusiveStream fails every call made while a stream is open, as an
// adapter with a single connection would.
type exclusiveStream struct {
	*mocks.MemoryAdapter
	open atomic.Bool
}

func (e *exclusiveStream) busy(path string) error {
	if e.open.Load() {
		return metadata.NewError(metadata.ErrUnableToRead, "busy", path, errors.New("stream open"))
	}
	return nil
}

func (e *exclusiveStream) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := e.busy(path); err != nil {
		return nil, err
	}
	rc, err := e.MemoryAdapter.ReadStream(ctx, path)
	if err != nil {
		return nil, err
	}
	e.open.Store(true)
	return &closeHook{ReadCloser: rc, onClose: func() { e.open.Store(false) }}, nil
}

func (e *exclusiveStream) FileExists(ctx context.Context, path string) (bool, error) {
	if err := e.busy(path); err != nil {
		return false, err
	}
	return e.MemoryAdapter.FileExists(ctx, path)
}

func (e *exclusiveStream) MimeType(ctx context.Context, path string) (*metadata.Attributes, error) {
	if err := e.busy(path); err != nil {
		return nil, err
	}
	return e.MemoryAdapter.MimeType(ctx, path)
}

func (e *exclusiveStream) FileSize(ctx context.Context, path string) (*metadata.Attributes, error) {
	if err := e.busy(path); err != nil {
		return nil, err
	}
	return e.MemoryAdapter.FileSize(ctx, path)
}

type closeHook struct {
	io.ReadCloser
	onClose func()
}

func (c *closeHook) Close() error {
	err := c.ReadCloser.Close()
	c.onClose()
	return err
}

func TestDriverDownload(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDriver(t, nil)
	_, err := d.Put(ctx, "docs/notes.txt", "hello")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	require.NoError(t, d.Download(ctx, rec, "docs/notes.txt", "", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Equal(t, "5", rec.Header().Get("Content-Length"))
	assert.Equal(t, `attachment; filename="notes.txt"`, rec.Header().Get("Content-Disposition"))
}

func TestDriverResponseKeepsCallerHeaders(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDriver(t, nil)
	_, err := d.Put(ctx, "a.bin", "abc")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	headers := http.Header{"Content-Type": []string{"application/x-custom"}}
	require.NoError(t, d.Response(ctx, rec, "a.bin", "b.bin", headers, DispositionInline))

	assert.Equal(t, "application/x-custom", rec.Header().Get("Content-Type"))
	assert.Equal(t, `inline; filename="b.bin"`, rec.Header().Get("Content-Disposition"))
}

func TestDriverResponseMissingFile(t *testing.T) {
	d, _ := newTestDriver(t, nil)

	rec := httptest.NewRecorder()
	err := d.Response(context.Background(), rec, "missing.txt", "", nil, "")
	assert.ErrorIs(t, err, metadata.ErrNotFound)
	assert.Empty(t, rec.Header().Get("Content-Type"))
}
