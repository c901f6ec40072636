// Package oss stores files in an Aliyun OSS bucket.
package oss

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/internal/pathutil"
	"github.com/ebogdum/diskfs/metadata"
)

// Adapter implements backends.Adapter for Aliyun OSS.
type Adapter struct {
	bucket     *oss.Bucket
	endpoint   string
	isCname    bool
	baseURL    string
	visibility backends.Visibility
	prefixer   *pathutil.Prefixer
	logger     *zap.Logger
}

// New creates an OSS adapter from access_id, access_key, bucket and endpoint.
func New(disk config.Disk, logger *zap.Logger) (*Adapter, error) {
	required, err := disk.Require("access_id", "access_key", "bucket", "endpoint")
	if err != nil {
		return nil, metadata.Configuration("%v", err)
	}

	isCname := disk.Bool("is_cname", false)
	clientOpts := []oss.ClientOption{oss.UseCname(isCname)}
	if token := disk.String("security_token", ""); token != "" {
		clientOpts = append(clientOpts, oss.SecurityToken(token))
	}

	client, err := oss.New(required["endpoint"], required["access_id"], required["access_key"], clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}
	bucket, err := client.Bucket(required["bucket"])
	if err != nil {
		return nil, fmt.Errorf("failed to open OSS bucket %s: %w", required["bucket"], err)
	}

	visibility, _ := backends.ParseVisibility(disk.Visibility())
	if visibility == "" {
		visibility = backends.Private
	}

	return &Adapter{
		bucket:     bucket,
		endpoint:   required["endpoint"],
		isCname:    isCname,
		baseURL:    disk.URL(),
		visibility: visibility,
		prefixer:   pathutil.NewPrefixer(disk.Root(), "/"),
		logger:     logger,
	}, nil
}

// Kind reports the adapter as object storage.
func (a *Adapter) Kind() backends.Kind { return backends.KindObject }

func (a *Adapter) key(path string) string { return a.prefixer.PrefixPath(path) }

// URL returns the configured base URL joined with the key, or the bucket
// domain derived from the endpoint.
func (a *Adapter) URL(path string) (string, error) {
	if a.baseURL != "" {
		return backends.ObjectURL(a.baseURL, a.key(path)), nil
	}

	scheme, host := "https", a.endpoint
	if i := strings.Index(host, "://"); i >= 0 {
		scheme, host = host[:i], host[i+3:]
	}
	if !a.isCname {
		host = a.bucket.BucketName + "." + host
	}
	return backends.ObjectURL(scheme+"://"+host, a.key(path)), nil
}

// TemporaryURL signs a GET URL valid until expiresAt.
func (a *Adapter) TemporaryURL(ctx context.Context, path string, expiresAt time.Time, cfg backends.Config) (string, error) {
	seconds := int64(time.Until(expiresAt).Seconds())
	if seconds <= 0 {
		return "", fmt.Errorf("expiry %s is in the past", expiresAt.Format(time.RFC3339))
	}

	var opts []oss.Option
	if v := cfg.String(backends.OptionContentDisposition, ""); v != "" {
		opts = append(opts, oss.ResponseContentDisposition(v))
	}
	return a.bucket.SignURL(a.key(path), oss.HTTPGet, seconds, opts...)
}

// FileExists reports whether the object exists
func (a *Adapter) FileExists(ctx context.Context, path string) (bool, error) {
	exists, err := a.bucket.IsObjectExist(a.key(path))
	if err != nil {
		return false, metadata.NewError(metadata.ErrUnableToCheckExistence, "fileExists", path, err)
	}
	return exists, nil
}

// DirectoryExists reports whether anything lives under path
func (a *Adapter) DirectoryExists(ctx context.Context, path string) (bool, error) {
	result, err := a.bucket.ListObjectsV2(oss.Prefix(a.prefixer.PrefixDirectoryPath(path)), oss.MaxKeys(1))
	if err != nil {
		return false, metadata.NewError(metadata.ErrUnableToCheckExistence, "directoryExists", path, err)
	}
	return len(result.Objects) > 0 || len(result.CommonPrefixes) > 0, nil
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
	body, err := a.bucket.GetObject(a.key(path), oss.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return nil, metadata.Missing(metadata.ErrUnableToRead, "read", path, err)
		}
		return nil, metadata.NewError(metadata.ErrUnableToRead, "read", path, err)
	}
	return body, nil
}

// Write uploads contents
func (a *Adapter) Write(ctx context.Context, path string, contents []byte, cfg backends.Config) error {
	opts := a.writeOptions(path, contents, cfg)
	if err := a.bucket.PutObject(a.key(path), bytes.NewReader(contents), append(opts, oss.WithContext(ctx))...); err != nil {
		return metadata.NewError(metadata.ErrUnableToWrite, "write", path, err)
	}
	return nil
}

// WriteStream uploads the reader's content
func (a *Adapter) WriteStream(ctx context.Context, path string, r io.Reader, cfg backends.Config) error {
	opts := a.writeOptions(path, nil, cfg)
	if err := a.bucket.PutObject(a.key(path), r, append(opts, oss.WithContext(ctx))...); err != nil {
		return metadata.NewError(metadata.ErrUnableToWrite, "write", path, err)
	}
	return nil
}

func (a *Adapter) writeOptions(path string, contents []byte, cfg backends.Config) []oss.Option {
	opts := []oss.Option{
		oss.ObjectACL(aclFor(cfg.Visibility(backends.OptionVisibility, a.visibility))),
		oss.ContentType(backends.ContentType(path, contents, cfg)),
	}
	if v := cfg.String(backends.OptionCacheControl, ""); v != "" {
		opts = append(opts, oss.CacheControl(v))
	}
	if v := cfg.String(backends.OptionContentDisposition, ""); v != "" {
		opts = append(opts, oss.ContentDisposition(v))
	}
	return opts
}

// Delete removes the object. Missing objects are not an error.
func (a *Adapter) Delete(ctx context.Context, path string) error {
	if err := a.bucket.DeleteObject(a.key(path)); err != nil && !isNotFound(err) {
		return metadata.NewError(metadata.ErrUnableToDelete, "delete", path, err)
	}
	return nil
}

// DeleteDirectory removes every object under path
func (a *Adapter) DeleteDirectory(ctx context.Context, path string) error {
	prefix := a.prefixer.PrefixDirectoryPath(path)
	token := ""
	for {
		opts := []oss.Option{oss.Prefix(prefix), oss.MaxKeys(1000)}
		if token != "" {
			opts = append(opts, oss.ContinuationToken(token))
		}
		result, err := a.bucket.ListObjectsV2(opts...)
		if err != nil {
			return metadata.NewError(metadata.ErrUnableToDeleteDirectory, "deleteDirectory", path, err)
		}

		keys := make([]string, 0, len(result.Objects))
		for _, object := range result.Objects {
			keys = append(keys, object.Key)
		}
		if len(keys) > 0 {
			if _, err := a.bucket.DeleteObjects(keys, oss.DeleteObjectsQuiet(true)); err != nil {
				return metadata.NewError(metadata.ErrUnableToDeleteDirectory, "deleteDirectory", path, err)
			}
		}

		if !result.IsTruncated {
			return nil
		}
		token = result.NextContinuationToken
	}
}

// CreateDirectory writes an empty "path/" marker
func (a *Adapter) CreateDirectory(ctx context.Context, path string, cfg backends.Config) error {
	v := cfg.Visibility(backends.OptionDirectoryVisibility, cfg.Visibility(backends.OptionVisibility, a.visibility))
	err := a.bucket.PutObject(a.prefixer.PrefixDirectoryPath(path), bytes.NewReader(nil), oss.ObjectACL(aclFor(v)))
	if err != nil {
		return metadata.NewError(metadata.ErrUnableToCreateDirectory, "createDirectory", path, err)
	}
	return nil
}

// SetVisibility sets the object ACL
func (a *Adapter) SetVisibility(ctx context.Context, path string, visibility backends.Visibility) error {
	if err := a.bucket.SetObjectACL(a.key(path), aclFor(visibility)); err != nil {
		if isNotFound(err) {
			return metadata.Missing(metadata.ErrUnableToSetVisibility, "setVisibility", path, err)
		}
		return metadata.NewError(metadata.ErrUnableToSetVisibility, "setVisibility", path, err)
	}
	return nil
}

// Visibility maps public-read and public-read-write ACLs to public
func (a *Adapter) Visibility(ctx context.Context, path string) (*metadata.Attributes, error) {
	result, err := a.bucket.GetObjectACL(a.key(path))
	if err != nil {
		return nil, a.metadataError("visibility", path, err)
	}

	attrs := &metadata.Attributes{Path: path, Type: metadata.TypeFile, Visibility: string(backends.Private)}
	switch oss.ACLType(result.ACL) {
	case oss.ACLPublicRead, oss.ACLPublicReadWrite:
		attrs.Visibility = string(backends.Public)
	}
	return attrs, nil
}

// MimeType returns the stored Content-Type
func (a *Adapter) MimeType(ctx context.Context, path string) (*metadata.Attributes, error) {
	return a.attributes("mimeType", path)
}

// LastModified returns the object's Last-Modified time
func (a *Adapter) LastModified(ctx context.Context, path string) (*metadata.Attributes, error) {
	return a.attributes("lastModified", path)
}

// FileSize returns the object's Content-Length
func (a *Adapter) FileSize(ctx context.Context, path string) (*metadata.Attributes, error) {
	return a.attributes("fileSize", path)
}

// ListContents lists objects under path
func (a *Adapter) ListContents(ctx context.Context, path string, deep bool) iter.Seq2[*metadata.Attributes, error] {
	return backends.ListObjects(a.prefixer, path, deep, func(prefix, delimiter, token string) (backends.ObjectPage, error) {
		opts := []oss.Option{oss.Prefix(prefix), oss.MaxKeys(1000)}
		if delimiter != "" {
			opts = append(opts, oss.Delimiter(delimiter))
		}
		if token != "" {
			opts = append(opts, oss.ContinuationToken(token))
		}

		result, err := a.bucket.ListObjectsV2(opts...)
		if err != nil {
			return backends.ObjectPage{}, err
		}

		page := backends.ObjectPage{Prefixes: result.CommonPrefixes}
		for _, object := range result.Objects {
			page.Objects = append(page.Objects, metadata.NewFile(object.Key, object.Size, object.LastModified))
		}
		if result.IsTruncated {
			page.Next = result.NextContinuationToken
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

// Copy performs a server side copy keeping the source ACL unless a
// visibility option is given
func (a *Adapter) Copy(ctx context.Context, src, dst string, cfg backends.Config) error {
	visibility := cfg.Visibility(backends.OptionVisibility, "")
	if visibility == "" {
		visibility = a.visibility
		if attrs, err := a.Visibility(ctx, src); err == nil {
			visibility = backends.Visibility(attrs.Visibility)
		}
	}

	if _, err := a.bucket.CopyObject(a.key(src), a.key(dst), oss.ObjectACL(aclFor(visibility))); err != nil {
		if isNotFound(err) {
			return metadata.Missing(metadata.ErrUnableToCopy, "copy", src, err)
		}
		return metadata.NewError(metadata.ErrUnableToCopy, "copy", src, err)
	}
	return nil
}

// Close releases nothing; the SDK uses a shared HTTP client.
func (a *Adapter) Close() error { return nil }

func (a *Adapter) attributes(op, path string) (*metadata.Attributes, error) {
	header, err := a.bucket.GetObjectDetailedMeta(a.key(path))
	if err != nil {
		return nil, a.metadataError(op, path, err)
	}

	size, _ := strconv.ParseInt(header.Get("Content-Length"), 10, 64)
	modified, _ := http.ParseTime(header.Get("Last-Modified"))
	attrs := metadata.NewFile(path, size, modified)
	attrs.MimeType = header.Get("Content-Type")
	return attrs, nil
}

func (a *Adapter) metadataError(op, path string, err error) error {
	if isNotFound(err) {
		return metadata.Missing(metadata.ErrUnableToRetrieveMetadata, op, path, err)
	}
	return metadata.NewError(metadata.ErrUnableToRetrieveMetadata, op, path, err)
}

func aclFor(v backends.Visibility) oss.ACLType {
	if v == backends.Public {
		return oss.ACLPublicRead
	}
	return oss.ACLPrivate
}

func isNotFound(err error) bool {
	var serviceErr oss.ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.StatusCode == http.StatusNotFound || serviceErr.Code == "NoSuchKey"
	}
	return false
}
