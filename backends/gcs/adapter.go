// Package gcs stores files in a Google Cloud Storage bucket.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/internal/pathutil"
	"github.com/ebogdum/diskfs/metadata"
)

const publicBaseURL = "https://storage.googleapis.com"

// Adapter implements backends.Adapter for Google Cloud Storage.
type Adapter struct {
	client     *storage.Client
	bucket     *storage.BucketHandle
	bucketName string
	baseURL    string
	visibility backends.Visibility
	prefixer   *pathutil.Prefixer
	logger     *zap.Logger
}

// New creates a GCS adapter. Credentials come from key_file when set,
// otherwise from the application default credentials.
func New(ctx context.Context, disk config.Disk, logger *zap.Logger) (*Adapter, error) {
	required, err := disk.Require("bucket")
	if err != nil {
		return nil, metadata.Configuration("%v", err)
	}

	var opts []option.ClientOption
	if keyFile := disk.String("key_file", ""); keyFile != "" {
		opts = append(opts, option.WithCredentialsFile(keyFile))
	}
	if project := disk.String("project_id", ""); project != "" {
		opts = append(opts, option.WithQuotaProject(project))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	visibility, _ := backends.ParseVisibility(disk.Visibility())
	if visibility == "" {
		visibility = backends.Private
	}

	return &Adapter{
		client:     client,
		bucket:     client.Bucket(required["bucket"]),
		bucketName: required["bucket"],
		baseURL:    disk.URL(),
		visibility: visibility,
		prefixer:   pathutil.NewPrefixer(disk.Root(), "/"),
		logger:     logger,
	}, nil
}

// Kind reports the adapter as object storage.
func (a *Adapter) Kind() backends.Kind { return backends.KindObject }

func (a *Adapter) object(path string) *storage.ObjectHandle {
	return a.bucket.Object(a.prefixer.PrefixPath(path))
}

// URL returns the configured url or the storage.googleapis.com URL.
func (a *Adapter) URL(path string) (string, error) {
	key := a.prefixer.PrefixPath(path)
	if a.baseURL != "" {
		return backends.ObjectURL(a.baseURL, key), nil
	}
	return backends.ObjectURL(publicBaseURL+"/"+a.bucketName, key), nil
}

// TemporaryURL returns a V4 signed GET URL. Signing needs service
// account credentials.
func (a *Adapter) TemporaryURL(ctx context.Context, path string, expiresAt time.Time, cfg backends.Config) (string, error) {
	opts := &storage.SignedURLOptions{
		Method:  http.MethodGet,
		Expires: expiresAt,
		Scheme:  storage.SigningSchemeV4,
	}
	return a.bucket.SignedURL(a.prefixer.PrefixPath(path), opts)
}

// FileExists reports whether the object has attributes
func (a *Adapter) FileExists(ctx context.Context, path string) (bool, error) {
	if _, err := a.object(path).Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, metadata.NewError(metadata.ErrUnableToCheckExistence, "fileExists", path, err)
	}
	return true, nil
}

// DirectoryExists reports whether anything lives under path
func (a *Adapter) DirectoryExists(ctx context.Context, path string) (bool, error) {
	it := a.bucket.Objects(ctx, &storage.Query{Prefix: a.prefixer.PrefixDirectoryPath(path)})
	_, err := it.Next()
	if errors.Is(err, iterator.Done) {
		return false, nil
	}
	if err != nil {
		return false, metadata.NewError(metadata.ErrUnableToCheckExistence, "directoryExists", path, err)
	}
	return true, nil
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

// ReadStream opens the object for reading
func (a *Adapter) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	reader, err := a.object(path).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, metadata.Missing(metadata.ErrUnableToRead, "read", path, err)
		}
		return nil, metadata.NewError(metadata.ErrUnableToRead, "read", path, err)
	}
	return reader, nil
}

// Write uploads contents
func (a *Adapter) Write(ctx context.Context, path string, contents []byte, cfg backends.Config) error {
	return a.put(ctx, path, bytes.NewReader(contents), contents, cfg)
}

// WriteStream uploads the reader's content
func (a *Adapter) WriteStream(ctx context.Context, path string, r io.Reader, cfg backends.Config) error {
	return a.put(ctx, path, r, nil, cfg)
}

func (a *Adapter) put(ctx context.Context, path string, r io.Reader, contents []byte, cfg backends.Config) error {
	w := a.object(path).NewWriter(ctx)
	w.ContentType = backends.ContentType(path, contents, cfg)
	w.CacheControl = cfg.String(backends.OptionCacheControl, "")
	w.ContentDisposition = cfg.String(backends.OptionContentDisposition, "")
	w.PredefinedACL = aclFor(cfg.Visibility(backends.OptionVisibility, a.visibility))

	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return metadata.NewError(metadata.ErrUnableToWrite, "write", path, err)
	}
	if err := w.Close(); err != nil {
		return metadata.NewError(metadata.ErrUnableToWrite, "write", path, err)
	}
	return nil
}

// Delete removes the object. Missing objects are not an error.
func (a *Adapter) Delete(ctx context.Context, path string) error {
	if err := a.object(path).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return metadata.NewError(metadata.ErrUnableToDelete, "delete", path, err)
	}
	return nil
}

// DeleteDirectory deletes every object under path
func (a *Adapter) DeleteDirectory(ctx context.Context, path string) error {
	it := a.bucket.Objects(ctx, &storage.Query{Prefix: a.prefixer.PrefixDirectoryPath(path)})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return metadata.NewError(metadata.ErrUnableToDeleteDirectory, "deleteDirectory", path, err)
		}
		if err := a.bucket.Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return metadata.NewError(metadata.ErrUnableToDeleteDirectory, "deleteDirectory", path, err)
		}
	}
}

// CreateDirectory writes an empty "path/" marker
func (a *Adapter) CreateDirectory(ctx context.Context, path string, cfg backends.Config) error {
	w := a.bucket.Object(a.prefixer.PrefixDirectoryPath(path)).NewWriter(ctx)
	w.PredefinedACL = aclFor(cfg.Visibility(backends.OptionDirectoryVisibility, cfg.Visibility(backends.OptionVisibility, a.visibility)))
	if err := w.Close(); err != nil {
		return metadata.NewError(metadata.ErrUnableToCreateDirectory, "createDirectory", path, err)
	}
	return nil
}

// SetVisibility grants or revokes allUsers:READER
func (a *Adapter) SetVisibility(ctx context.Context, path string, visibility backends.Visibility) error {
	acl := a.object(path).ACL()
	var err error
	if visibility == backends.Public {
		err = acl.Set(ctx, storage.AllUsers, storage.RoleReader)
	} else {
		err = acl.Delete(ctx, storage.AllUsers)
		if isNotFound(err) {
			// No allUsers entry: already private, unless the object is missing.
			if _, attrsErr := a.object(path).Attrs(ctx); attrsErr == nil {
				err = nil
			}
		}
	}
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || isNotFound(err) {
			return metadata.Missing(metadata.ErrUnableToSetVisibility, "setVisibility", path, err)
		}
		return metadata.NewError(metadata.ErrUnableToSetVisibility, "setVisibility", path, err)
	}
	return nil
}

// Visibility reports public when allUsers holds READER
func (a *Adapter) Visibility(ctx context.Context, path string) (*metadata.Attributes, error) {
	rules, err := a.object(path).ACL().List(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || isNotFound(err) {
			return nil, metadata.Missing(metadata.ErrUnableToRetrieveMetadata, "visibility", path, err)
		}
		return nil, metadata.NewError(metadata.ErrUnableToRetrieveMetadata, "visibility", path, err)
	}

	attrs := &metadata.Attributes{Path: path, Type: metadata.TypeFile, Visibility: string(backends.Private)}
	for _, rule := range rules {
		if rule.Entity == storage.AllUsers && rule.Role == storage.RoleReader {
			attrs.Visibility = string(backends.Public)
			break
		}
	}
	return attrs, nil
}

// MimeType returns the stored content type
func (a *Adapter) MimeType(ctx context.Context, path string) (*metadata.Attributes, error) {
	return a.attributes(ctx, "mimeType", path)
}

// LastModified returns the object's update time
func (a *Adapter) LastModified(ctx context.Context, path string) (*metadata.Attributes, error) {
	return a.attributes(ctx, "lastModified", path)
}

// FileSize returns the object's size
func (a *Adapter) FileSize(ctx context.Context, path string) (*metadata.Attributes, error) {
	return a.attributes(ctx, "fileSize", path)
}

// ListContents lists objects under path one page at a time
func (a *Adapter) ListContents(ctx context.Context, path string, deep bool) iter.Seq2[*metadata.Attributes, error] {
	return backends.ListObjects(a.prefixer, path, deep, func(prefix, delimiter, token string) (backends.ObjectPage, error) {
		it := a.bucket.Objects(ctx, &storage.Query{Prefix: prefix, Delimiter: delimiter})
		var items []*storage.ObjectAttrs
		next, err := iterator.NewPager(it, 1000, token).NextPage(&items)
		if err != nil {
			return backends.ObjectPage{}, err
		}

		page := backends.ObjectPage{Next: next}
		for _, item := range items {
			if item.Prefix != "" {
				page.Prefixes = append(page.Prefixes, item.Prefix)
				continue
			}
			attrs := metadata.NewFile(item.Name, item.Size, item.Updated)
			attrs.MimeType = item.ContentType
			page.Objects = append(page.Objects, attrs)
		}
		return page, nil
	})
}

// Move copies then deletes
func (a *Adapter) Move(ctx context.Context, src, dst string, cfg backends.Config) error {
	if err := a.Copy(ctx, src, dst, cfg); err != nil {
		return metadata.NewError(metadata.ErrUnableToMove, "move", src, err)
	}
	if err := a.Delete(ctx, src); err != nil {
		return metadata.NewError(metadata.ErrUnableToMove, "move", src, err)
	}
	return nil
}

// Copy performs a server side rewrite
func (a *Adapter) Copy(ctx context.Context, src, dst string, cfg backends.Config) error {
	visibility := cfg.Visibility(backends.OptionVisibility, "")
	if visibility == "" {
		visibility = a.visibility
		if attrs, err := a.Visibility(ctx, src); err == nil {
			visibility = backends.Visibility(attrs.Visibility)
		}
	}

	copier := a.object(dst).CopierFrom(a.object(src))
	copier.PredefinedACL = aclFor(visibility)
	if _, err := copier.Run(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || isNotFound(err) {
			return metadata.Missing(metadata.ErrUnableToCopy, "copy", src, err)
		}
		return metadata.NewError(metadata.ErrUnableToCopy, "copy", src, err)
	}
	return nil
}

// Close closes the storage client
func (a *Adapter) Close() error {
	return a.client.Close()
}

func (a *Adapter) attributes(ctx context.Context, op, path string) (*metadata.Attributes, error) {
	info, err := a.object(path).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, metadata.Missing(metadata.ErrUnableToRetrieveMetadata, op, path, err)
		}
		return nil, metadata.NewError(metadata.ErrUnableToRetrieveMetadata, op, path, err)
	}
	attrs := metadata.NewFile(path, info.Size, info.Updated)
	attrs.MimeType = info.ContentType
	return attrs, nil
}

func aclFor(v backends.Visibility) string {
	if v == backends.Public {
		return "publicRead"
	}
	return "private"
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
