// Package qiniu stores files in a Qiniu Kodo bucket.
package qiniu

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/qiniu/go-sdk/v7/auth"
	"github.com/qiniu/go-sdk/v7/storage"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/internal/pathutil"
	"github.com/ebogdum/diskfs/metadata"
)

// ErrVisibilityUnsupported is the cause attached to visibility calls;
// Qiniu access control is per bucket.
var ErrVisibilityUnsupported = errors.New("qiniu: object visibility is not supported")

// downloadTTL bounds the private URLs used for reads.
const downloadTTL = time.Hour

// Adapter implements backends.Adapter for Qiniu.
type Adapter struct {
	mac      *auth.Credentials
	bucket   string
	domain   string
	baseURL  string
	uploader *storage.FormUploader
	manager  *storage.BucketManager
	http     *http.Client
	prefixer *pathutil.Prefixer
	logger   *zap.Logger
}

// New creates a Qiniu adapter from access_key, secret_key, bucket and domain.
func New(disk config.Disk, logger *zap.Logger) (*Adapter, error) {
	accessKey := disk.String("access_key", disk.String("accessKey", ""))
	secretKey := disk.String("secret_key", disk.String("secretKey", ""))
	if accessKey == "" || secretKey == "" {
		return nil, metadata.Configuration("disk %q: access_key and secret_key are required", disk.Name())
	}
	required, err := disk.Require("bucket", "domain")
	if err != nil {
		return nil, metadata.Configuration("%v", err)
	}

	domain := required["domain"]
	if !strings.Contains(domain, "://") {
		domain = "http://" + domain
	}

	mac := auth.New(accessKey, secretKey)
	cfg := &storage.Config{UseHTTPS: strings.HasPrefix(domain, "https://")}

	return &Adapter{
		mac:      mac,
		bucket:   required["bucket"],
		domain:   strings.TrimRight(domain, "/"),
		baseURL:  disk.URL(),
		uploader: storage.NewFormUploader(cfg),
		manager:  storage.NewBucketManager(mac, cfg),
		http:     &http.Client{Timeout: disk.Duration("timeout", 60*time.Second)},
		prefixer: pathutil.NewPrefixer(disk.Root(), "/"),
		logger:   logger,
	}, nil
}

// Kind reports the adapter as object storage.
func (a *Adapter) Kind() backends.Kind { return backends.KindObject }

func (a *Adapter) key(path string) string { return a.prefixer.PrefixPath(path) }

// URL returns the configured url joined with the key, or the public URL
// on the bucket domain.
func (a *Adapter) URL(path string) (string, error) {
	if a.baseURL != "" {
		return backends.ObjectURL(a.baseURL, a.key(path)), nil
	}
	return storage.MakePublicURL(a.domain, a.key(path)), nil
}

// TemporaryURL returns a private download URL valid until expiresAt.
func (a *Adapter) TemporaryURL(ctx context.Context, path string, expiresAt time.Time, cfg backends.Config) (string, error) {
	return storage.MakePrivateURL(a.mac, a.domain, a.key(path), expiresAt.Unix()), nil
}

// FileExists reports whether Stat finds the key
func (a *Adapter) FileExists(ctx context.Context, path string) (bool, error) {
	if _, err := a.manager.Stat(a.bucket, a.key(path)); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, metadata.NewError(metadata.ErrUnableToCheckExistence, "fileExists", path, err)
	}
	return true, nil
}

// DirectoryExists reports whether any key starts with path/
func (a *Adapter) DirectoryExists(ctx context.Context, path string) (bool, error) {
	entries, prefixes, _, _, err := a.manager.ListFiles(a.bucket, a.prefixer.PrefixDirectoryPath(path), "", "", 1)
	if err != nil {
		return false, metadata.NewError(metadata.ErrUnableToCheckExistence, "directoryExists", path, err)
	}
	return len(entries) > 0 || len(prefixes) > 0, nil
}

// Read downloads the whole object
func (a *Adapter) Read(ctx context.Context, path string) ([]byte, error) {
	body, err := a.ReadStream(ctx, path)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, metadata.NewError(metadata.ErrUnableToRead, "read", path, err)
	}
	return data, nil
}

// ReadStream downloads through a short lived private URL
func (a *Adapter) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	u := storage.MakePrivateURL(a.mac, a.domain, a.key(path), time.Now().Add(downloadTTL).Unix())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, metadata.NewError(metadata.ErrUnableToRead, "read", path, err)
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, metadata.NewError(metadata.ErrUnableToRead, "read", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, metadata.Missing(metadata.ErrUnableToRead, "read", path, nil)
		}
		return nil, metadata.NewError(metadata.ErrUnableToRead, "read", path, fmt.Errorf("download returned %s", resp.Status))
	}
	return resp.Body, nil
}

// Write uploads contents with an overwrite token
func (a *Adapter) Write(ctx context.Context, path string, contents []byte, cfg backends.Config) error {
	key := a.key(path)
	policy := storage.PutPolicy{Scope: a.bucket + ":" + key}
	extra := &storage.PutExtra{MimeType: backends.ContentType(path, contents, cfg)}

	var ret storage.PutRet
	if err := a.uploader.Put(ctx, &ret, policy.UploadToken(a.mac), key, bytes.NewReader(contents), int64(len(contents)), extra); err != nil {
		return metadata.NewError(metadata.ErrUnableToWrite, "write", path, err)
	}
	return nil
}

// WriteStream buffers the reader; form uploads need the size up front
func (a *Adapter) WriteStream(ctx context.Context, path string, r io.Reader, cfg backends.Config) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return metadata.NewError(metadata.ErrUnableToWrite, "write", path, err)
	}
	return a.Write(ctx, path, data, cfg)
}

// Delete removes the key. Missing keys are not an error.
func (a *Adapter) Delete(ctx context.Context, path string) error {
	if err := a.manager.Delete(a.bucket, a.key(path)); err != nil && !isNotFound(err) {
		return metadata.NewError(metadata.ErrUnableToDelete, "delete", path, err)
	}
	return nil
}

// DeleteDirectory deletes every key under path with batch operations
func (a *Adapter) DeleteDirectory(ctx context.Context, path string) error {
	prefix := a.prefixer.PrefixDirectoryPath(path)
	marker := ""
	for {
		entries, _, next, hasNext, err := a.manager.ListFiles(a.bucket, prefix, "", marker, 1000)
		if err != nil {
			return metadata.NewError(metadata.ErrUnableToDeleteDirectory, "deleteDirectory", path, err)
		}

		ops := make([]string, 0, len(entries))
		for _, entry := range entries {
			ops = append(ops, storage.URIDelete(a.bucket, entry.Key))
		}
		if len(ops) > 0 {
			if _, err := a.manager.Batch(ops); err != nil {
				return metadata.NewError(metadata.ErrUnableToDeleteDirectory, "deleteDirectory", path, err)
			}
		}

		if !hasNext {
			return nil
		}
		marker = next
	}
}

// CreateDirectory writes an empty "path/" marker
func (a *Adapter) CreateDirectory(ctx context.Context, path string, cfg backends.Config) error {
	key := a.prefixer.PrefixDirectoryPath(path)
	policy := storage.PutPolicy{Scope: a.bucket + ":" + key}
	var ret storage.PutRet
	if err := a.uploader.Put(ctx, &ret, policy.UploadToken(a.mac), key, bytes.NewReader(nil), 0, nil); err != nil {
		return metadata.NewError(metadata.ErrUnableToCreateDirectory, "createDirectory", path, err)
	}
	return nil
}

// SetVisibility is not supported per object
func (a *Adapter) SetVisibility(ctx context.Context, path string, visibility backends.Visibility) error {
	return metadata.NewError(metadata.ErrUnableToSetVisibility, "setVisibility", path, ErrVisibilityUnsupported)
}

// Visibility is not supported per object
func (a *Adapter) Visibility(ctx context.Context, path string) (*metadata.Attributes, error) {
	return nil, metadata.NewError(metadata.ErrUnableToRetrieveMetadata, "visibility", path, ErrVisibilityUnsupported)
}

// MimeType returns the stored mime type
func (a *Adapter) MimeType(ctx context.Context, path string) (*metadata.Attributes, error) {
	return a.attributes("mimeType", path)
}

// LastModified returns the upload time
func (a *Adapter) LastModified(ctx context.Context, path string) (*metadata.Attributes, error) {
	return a.attributes("lastModified", path)
}

// FileSize returns the stored size
func (a *Adapter) FileSize(ctx context.Context, path string) (*metadata.Attributes, error) {
	return a.attributes("fileSize", path)
}

// ListContents lists keys under path
func (a *Adapter) ListContents(ctx context.Context, path string, deep bool) iter.Seq2[*metadata.Attributes, error] {
	return backends.ListObjects(a.prefixer, path, deep, func(prefix, delimiter, marker string) (backends.ObjectPage, error) {
		entries, prefixes, next, hasNext, err := a.manager.ListFiles(a.bucket, prefix, delimiter, marker, 1000)
		if err != nil {
			return backends.ObjectPage{}, err
		}

		page := backends.ObjectPage{Prefixes: prefixes}
		for _, entry := range entries {
			attrs := metadata.NewFile(entry.Key, entry.Fsize, putTime(entry.PutTime))
			attrs.MimeType = entry.MimeType
			page.Objects = append(page.Objects, attrs)
		}
		if hasNext {
			page.Next = next
		}
		return page, nil
	})
}

// Move renames the key on the server
func (a *Adapter) Move(ctx context.Context, src, dst string, cfg backends.Config) error {
	if err := a.manager.Move(a.bucket, a.key(src), a.bucket, a.key(dst), true); err != nil {
		if isNotFound(err) {
			return metadata.Missing(metadata.ErrUnableToMove, "move", src, err)
		}
		return metadata.NewError(metadata.ErrUnableToMove, "move", src, err)
	}
	return nil
}

// Copy duplicates the key on the server
func (a *Adapter) Copy(ctx context.Context, src, dst string, cfg backends.Config) error {
	if err := a.manager.Copy(a.bucket, a.key(src), a.bucket, a.key(dst), true); err != nil {
		if isNotFound(err) {
			return metadata.Missing(metadata.ErrUnableToCopy, "copy", src, err)
		}
		return metadata.NewError(metadata.ErrUnableToCopy, "copy", src, err)
	}
	return nil
}

// Close releases idle download connections
func (a *Adapter) Close() error {
	a.http.CloseIdleConnections()
	return nil
}

func (a *Adapter) attributes(op, path string) (*metadata.Attributes, error) {
	info, err := a.manager.Stat(a.bucket, a.key(path))
	if err != nil {
		if isNotFound(err) {
			return nil, metadata.Missing(metadata.ErrUnableToRetrieveMetadata, op, path, err)
		}
		return nil, metadata.NewError(metadata.ErrUnableToRetrieveMetadata, op, path, err)
	}
	attrs := metadata.NewFile(path, info.Fsize, putTime(info.PutTime))
	attrs.MimeType = info.MimeType
	return attrs, nil
}

// putTime converts Qiniu's 100ns unit timestamps.
func putTime(v int64) time.Time {
	return time.Unix(0, v*100)
}

// isNotFound matches error 612 "no such file or directory".
func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such file or directory")
}
