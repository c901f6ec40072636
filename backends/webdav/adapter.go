// Package webdav stores files on a WebDAV server. It is not one of the
// built-in disk types; the CLI registers it through Manager.Extend.
package webdav

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/studio-b12/gowebdav"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/config"
	coreLog "github.com/ebogdum/diskfs/core/log"
	"github.com/ebogdum/diskfs/internal/pathutil"
	"github.com/ebogdum/diskfs/metadata"
)

// Type is the disk type the adapter is registered under.
const Type = "webdav"

// Adapter implements backends.Adapter on top of gowebdav.
type Adapter struct {
	client   *gowebdav.Client
	baseURL  string
	prefixer *pathutil.Prefixer
	logger   *zap.Logger
}

// New connects to the server at url with optional basic credentials.
func New(disk config.Disk, logger *zap.Logger) (*Adapter, error) {
	required, err := disk.Require("url")
	if err != nil {
		return nil, metadata.Configuration("%v", err)
	}

	client := gowebdav.NewClient(required["url"], disk.String("username", ""), disk.String("password", ""))
	client.SetTimeout(disk.Duration("timeout", 30*time.Second))

	if err := client.Connect(); err != nil {
		if gowebdav.IsErrCode(err, http.StatusUnauthorized) {
			return nil, metadata.Configuration("webdav authentication failed for %s: %v", required["url"], err)
		}
		return nil, fmt.Errorf("failed to connect to webdav server at %s: %w", required["url"], err)
	}

	logger.Info("WebDAV disk connected", zap.String("disk", disk.Name()), zap.String("url", required["url"]))
	return &Adapter{
		client:   client,
		baseURL:  strings.TrimRight(required["url"], "/"),
		prefixer: pathutil.NewPrefixer(disk.Root(), "/"),
		logger:   logger,
	}, nil
}

// Factory adapts New to the Manager's extension signature.
func Factory(ctx context.Context, disk config.Disk, logger *zap.Logger) (backends.Adapter, error) {
	return New(disk, logger)
}

// Kind reports the adapter as object storage; URLs come from URL.
func (a *Adapter) Kind() backends.Kind { return backends.KindObject }

func (a *Adapter) key(path string) string { return "/" + a.prefixer.PrefixPath(path) }

// URL returns the resource URL on the server
func (a *Adapter) URL(path string) (string, error) {
	return backends.ObjectURL(a.baseURL, a.prefixer.PrefixPath(path)), nil
}

// FileExists stats the resource
func (a *Adapter) FileExists(ctx context.Context, path string) (bool, error) {
	info, err := a.client.Stat(a.key(path))
	if err != nil {
		if gowebdav.IsErrNotFound(err) {
			return false, nil
		}
		return false, metadata.NewError(metadata.ErrUnableToCheckExistence, "fileExists", path, err)
	}
	return !info.IsDir(), nil
}

// DirectoryExists stats the collection
func (a *Adapter) DirectoryExists(ctx context.Context, path string) (bool, error) {
	info, err := a.client.Stat(a.key(path))
	if err != nil {
		if gowebdav.IsErrNotFound(err) {
			return false, nil
		}
		return false, metadata.NewError(metadata.ErrUnableToCheckExistence, "directoryExists", path, err)
	}
	return info.IsDir(), nil
}

// Read downloads the resource
func (a *Adapter) Read(ctx context.Context, path string) ([]byte, error) {
	data, err := a.client.Read(a.key(path))
	if err != nil {
		return nil, a.readError(path, err)
	}
	return data, nil
}

// ReadStream opens the resource for streaming
func (a *Adapter) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	stream, err := a.client.ReadStream(a.key(path))
	if err != nil {
		return nil, a.readError(path, err)
	}
	return stream, nil
}

func (a *Adapter) readError(path string, err error) error {
	if gowebdav.IsErrNotFound(err) {
		return metadata.Missing(metadata.ErrUnableToRead, "read", path, err)
	}
	return metadata.NewError(metadata.ErrUnableToRead, "read", path, err)
}

// Write uploads contents, creating parent collections
func (a *Adapter) Write(ctx context.Context, path string, contents []byte, cfg backends.Config) error {
	return a.WriteStream(ctx, path, bytes.NewReader(contents), cfg)
}

// WriteStream uploads the reader's content
func (a *Adapter) WriteStream(ctx context.Context, path string, r io.Reader, cfg backends.Config) error {
	if err := a.client.WriteStream(a.key(path), r, 0o644); err != nil {
		return metadata.NewError(metadata.ErrUnableToWrite, "write", path, err)
	}
	return nil
}

// Delete removes a resource; missing resources are ignored
func (a *Adapter) Delete(ctx context.Context, path string) error {
	if err := a.client.Remove(a.key(path)); err != nil && !gowebdav.IsErrNotFound(err) {
		return metadata.NewError(metadata.ErrUnableToDelete, "delete", path, err)
	}
	return nil
}

// DeleteDirectory removes a collection recursively
func (a *Adapter) DeleteDirectory(ctx context.Context, path string) error {
	if err := a.client.RemoveAll(a.key(path) + "/"); err != nil && !gowebdav.IsErrNotFound(err) {
		return metadata.NewError(metadata.ErrUnableToDeleteDirectory, "deleteDirectory", path, err)
	}
	return nil
}

// CreateDirectory creates the collection and its parents
func (a *Adapter) CreateDirectory(ctx context.Context, path string, cfg backends.Config) error {
	if err := a.client.MkdirAll(a.key(path), 0o755); err != nil {
		return metadata.NewError(metadata.ErrUnableToCreateDirectory, "createDirectory", path, err)
	}
	return nil
}

// SetVisibility is not expressible over plain WebDAV
func (a *Adapter) SetVisibility(ctx context.Context, path string, visibility backends.Visibility) error {
	return metadata.NewError(metadata.ErrUnableToSetVisibility, "setVisibility", path, metadata.ErrUnsupported)
}

// Visibility is not expressible over plain WebDAV
func (a *Adapter) Visibility(ctx context.Context, path string) (*metadata.Attributes, error) {
	return nil, metadata.NewError(metadata.ErrUnableToRetrieveMetadata, "visibility", path, metadata.ErrUnsupported)
}

// MimeType returns the server's content type, sniffing when absent
func (a *Adapter) MimeType(ctx context.Context, path string) (*metadata.Attributes, error) {
	attrs, info, err := a.stat("mimeType", path)
	if err != nil {
		return nil, err
	}
	if f, ok := info.(*gowebdav.File); ok && f.ContentType() != "" {
		attrs.MimeType = strings.TrimSpace(strings.SplitN(f.ContentType(), ";", 2)[0])
	}
	if attrs.MimeType == "" {
		attrs.MimeType = backends.MimeTypeByExtension(path)
	}
	if attrs.MimeType == "" {
		return nil, metadata.NewError(metadata.ErrUnableToRetrieveMetadata, "mimeType", path, errors.New("unknown mime type"))
	}
	return attrs, nil
}

// LastModified returns the resource's modification time
func (a *Adapter) LastModified(ctx context.Context, path string) (*metadata.Attributes, error) {
	attrs, _, err := a.stat("lastModified", path)
	return attrs, err
}

// FileSize returns the resource's size
func (a *Adapter) FileSize(ctx context.Context, path string) (*metadata.Attributes, error) {
	attrs, info, err := a.stat("fileSize", path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, metadata.NewError(metadata.ErrUnableToRetrieveMetadata, "fileSize", path, errors.New("path is a directory"))
	}
	return attrs, nil
}

func (a *Adapter) stat(op, path string) (*metadata.Attributes, os.FileInfo, error) {
	info, err := a.client.Stat(a.key(path))
	if err != nil {
		if gowebdav.IsErrNotFound(err) {
			return nil, nil, metadata.Missing(metadata.ErrUnableToRetrieveMetadata, op, path, err)
		}
		return nil, nil, metadata.NewError(metadata.ErrUnableToRetrieveMetadata, op, path, err)
	}
	if info.IsDir() {
		return metadata.NewDirectory(path, info.ModTime()), info, nil
	}
	return metadata.NewFile(path, info.Size(), info.ModTime()), info, nil
}

// ListContents walks collections breadth first with PROPFIND depth 1
func (a *Adapter) ListContents(ctx context.Context, path string, deep bool) iter.Seq2[*metadata.Attributes, error] {
	return func(yield func(*metadata.Attributes, error) bool) {
		queue := []string{strings.Trim(path, "/")}
		for len(queue) > 0 {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			dir := queue[0]
			queue = queue[1:]

			infos, err := a.client.ReadDir(a.key(dir))
			if err != nil {
				if gowebdav.IsErrNotFound(err) {
					continue
				}
				yield(nil, metadata.NewError(metadata.ErrUnableToList, "listContents", dir, err))
				return
			}

			for _, info := range infos {
				child := pathutil.Join(dir, info.Name())
				var attrs *metadata.Attributes
				if info.IsDir() {
					attrs = metadata.NewDirectory(child, info.ModTime())
					if deep {
						queue = append(queue, child)
					}
				} else {
					attrs = metadata.NewFile(child, info.Size(), info.ModTime())
				}
				if !yield(attrs, nil) {
					return
				}
			}
		}
	}
}

// Move renames src to dst, overwriting dst
func (a *Adapter) Move(ctx context.Context, src, dst string, cfg backends.Config) error {
	if err := a.ensureParent(dst); err != nil {
		return metadata.NewError(metadata.ErrUnableToMove, "move", src, err)
	}
	if err := a.client.Rename(a.key(src), a.key(dst), true); err != nil {
		if gowebdav.IsErrNotFound(err) {
			return metadata.Missing(metadata.ErrUnableToMove, "move", src, err)
		}
		return metadata.NewError(metadata.ErrUnableToMove, "move", src, err)
	}
	return nil
}

// Copy duplicates src to dst server side, overwriting dst
func (a *Adapter) Copy(ctx context.Context, src, dst string, cfg backends.Config) error {
	if err := a.ensureParent(dst); err != nil {
		return metadata.NewError(metadata.ErrUnableToCopy, "copy", src, err)
	}
	if err := a.client.Copy(a.key(src), a.key(dst), true); err != nil {
		if gowebdav.IsErrNotFound(err) {
			return metadata.Missing(metadata.ErrUnableToCopy, "copy", src, err)
		}
		return metadata.NewError(metadata.ErrUnableToCopy, "copy", src, err)
	}
	return nil
}

func (a *Adapter) ensureParent(path string) error {
	parent := pathutil.Dir(path)
	if parent == "" {
		return nil
	}
	if err := a.client.MkdirAll(a.key(parent), 0o755); err != nil {
		a.logger.Debug("Failed to create webdav parent collection", coreLog.Path("path", parent), zap.Error(err))
		return err
	}
	return nil
}

// Close is a no-op; the HTTP client holds no long-lived connection state.
func (a *Adapter) Close() error { return nil }
