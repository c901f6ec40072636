// Package obs stores files in a Huawei Cloud OBS bucket.
package obs

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

	"github.com/huaweicloud/huaweicloud-sdk-go-obs/obs"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/internal/pathutil"
	"github.com/ebogdum/diskfs/metadata"
)

// Adapter implements backends.Adapter for Huawei OBS.
type Adapter struct {
	client       *obs.ObsClient
	bucket       string
	endpoint     string
	isCname      bool
	baseURL      string
	temporaryURL string
	visibility   backends.Visibility
	prefixer     *pathutil.Prefixer
	logger       *zap.Logger
}

// New creates an OBS adapter from key, secret, bucket and endpoint.
func New(disk config.Disk, logger *zap.Logger) (*Adapter, error) {
	required, err := disk.Require("key", "secret", "bucket", "endpoint")
	if err != nil {
		return nil, metadata.Configuration("%v", err)
	}

	isCname := disk.Bool("is_cname", false)
	var client *obs.ObsClient
	if token := disk.String("security_token", disk.String("token", "")); token != "" {
		client, err = obs.New(required["key"], required["secret"], required["endpoint"],
			obs.WithCustomDomainName(isCname), obs.WithSecurityToken(token))
	} else {
		client, err = obs.New(required["key"], required["secret"], required["endpoint"],
			obs.WithCustomDomainName(isCname))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create OBS client: %w", err)
	}

	visibility, _ := backends.ParseVisibility(disk.DirectoryVisibility())
	if visibility == "" {
		visibility, _ = backends.ParseVisibility(disk.Visibility())
	}
	if visibility == "" {
		visibility = backends.Public
	}

	return &Adapter{
		client:       client,
		bucket:       required["bucket"],
		endpoint:     required["endpoint"],
		isCname:      isCname,
		baseURL:      disk.URL(),
		temporaryURL: disk.TemporaryURL(),
		visibility:   visibility,
		prefixer:     pathutil.NewPrefixer(disk.Root(), "/"),
		logger:       logger,
	}, nil
}

// Kind reports the adapter as object storage.
func (a *Adapter) Kind() backends.Kind { return backends.KindObject }

func (a *Adapter) key(path string) string { return a.prefixer.PrefixPath(path) }

// URL returns the configured url joined with the key, or the bucket domain.
func (a *Adapter) URL(path string) (string, error) {
	if a.baseURL != "" {
		return backends.ObjectURL(a.baseURL, a.key(path)), nil
	}

	scheme, host := "https", a.endpoint
	if i := strings.Index(host, "://"); i >= 0 {
		scheme, host = host[:i], host[i+3:]
	}
	if !a.isCname {
		host = a.bucket + "." + host
	}
	return backends.ObjectURL(scheme+"://"+host, a.key(path)), nil
}

// TemporaryURL signs a GET URL, moved onto temporary_url when configured.
func (a *Adapter) TemporaryURL(ctx context.Context, path string, expiresAt time.Time, cfg backends.Config) (string, error) {
	seconds := int(time.Until(expiresAt).Seconds())
	if seconds <= 0 {
		return "", fmt.Errorf("expiry %s is in the past", expiresAt.Format(time.RFC3339))
	}

	output, err := a.client.CreateSignedUrl(&obs.CreateSignedUrlInput{
		Method:  obs.HttpMethodGet,
		Bucket:  a.bucket,
		Key:     a.key(path),
		Expires: seconds,
	})
	if err != nil {
		return "", err
	}
	if a.temporaryURL != "" {
		return backends.RewriteBase(output.SignedUrl, a.temporaryURL)
	}
	return output.SignedUrl, nil
}

// FileExists reports whether the object's metadata can be read
func (a *Adapter) FileExists(ctx context.Context, path string) (bool, error) {
	if _, err := a.head(path); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, metadata.NewError(metadata.ErrUnableToCheckExistence, "fileExists", path, err)
	}
	return true, nil
}

// DirectoryExists reports whether anything lives under path
func (a *Adapter) DirectoryExists(ctx context.Context, path string) (bool, error) {
	input := &obs.ListObjectsInput{}
	input.Bucket = a.bucket
	input.Prefix = a.prefixer.PrefixDirectoryPath(path)
	input.MaxKeys = 1

	output, err := a.client.ListObjects(input)
	if err != nil {
		return false, metadata.NewError(metadata.ErrUnableToCheckExistence, "directoryExists", path, err)
	}
	return len(output.Contents) > 0 || len(output.CommonPrefixes) > 0, nil
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
	input := &obs.GetObjectInput{}
	input.Bucket = a.bucket
	input.Key = a.key(path)

	output, err := a.client.GetObject(input)
	if err != nil {
		if isNotFound(err) {
			return nil, metadata.Missing(metadata.ErrUnableToRead, "read", path, err)
		}
		return nil, metadata.NewError(metadata.ErrUnableToRead, "read", path, err)
	}
	return output.Body, nil
}

// Write uploads contents
func (a *Adapter) Write(ctx context.Context, path string, contents []byte, cfg backends.Config) error {
	return a.put(path, bytes.NewReader(contents), contents, cfg)
}

// WriteStream uploads the reader's content
func (a *Adapter) WriteStream(ctx context.Context, path string, r io.Reader, cfg backends.Config) error {
	return a.put(path, r, nil, cfg)
}

func (a *Adapter) put(path string, r io.Reader, contents []byte, cfg backends.Config) error {
	input := &obs.PutObjectInput{}
	input.Bucket = a.bucket
	input.Key = a.key(path)
	input.ACL = aclFor(cfg.Visibility(backends.OptionVisibility, a.visibility))
	input.ContentType = backends.ContentType(path, contents, cfg)
	input.CacheControl = cfg.String(backends.OptionCacheControl, "")
	input.ContentDisposition = cfg.String(backends.OptionContentDisposition, "")
	input.Body = r

	if _, err := a.client.PutObject(input); err != nil {
		return metadata.NewError(metadata.ErrUnableToWrite, "write", path, err)
	}
	return nil
}

// Delete removes the object. Missing objects are not an error.
func (a *Adapter) Delete(ctx context.Context, path string) error {
	input := &obs.DeleteObjectInput{}
	input.Bucket = a.bucket
	input.Key = a.key(path)
	if _, err := a.client.DeleteObject(input); err != nil && !isNotFound(err) {
		return metadata.NewError(metadata.ErrUnableToDelete, "delete", path, err)
	}
	return nil
}

// DeleteDirectory removes every object under path
func (a *Adapter) DeleteDirectory(ctx context.Context, path string) error {
	input := &obs.ListObjectsInput{}
	input.Bucket = a.bucket
	input.Prefix = a.prefixer.PrefixDirectoryPath(path)
	input.MaxKeys = 1000

	for {
		output, err := a.client.ListObjects(input)
		if err != nil {
			return metadata.NewError(metadata.ErrUnableToDeleteDirectory, "deleteDirectory", path, err)
		}

		objects := make([]obs.ObjectToDelete, 0, len(output.Contents))
		for _, content := range output.Contents {
			objects = append(objects, obs.ObjectToDelete{Key: content.Key})
		}
		if len(objects) > 0 {
			_, err := a.client.DeleteObjects(&obs.DeleteObjectsInput{Bucket: a.bucket, Quiet: true, Objects: objects})
			if err != nil {
				return metadata.NewError(metadata.ErrUnableToDeleteDirectory, "deleteDirectory", path, err)
			}
		}

		if !output.IsTruncated {
			return nil
		}
		input.Marker = output.NextMarker
	}
}

// CreateDirectory writes an empty "path/" marker
func (a *Adapter) CreateDirectory(ctx context.Context, path string, cfg backends.Config) error {
	input := &obs.PutObjectInput{}
	input.Bucket = a.bucket
	input.Key = a.prefixer.PrefixDirectoryPath(path)
	input.ACL = aclFor(cfg.Visibility(backends.OptionDirectoryVisibility, cfg.Visibility(backends.OptionVisibility, a.visibility)))
	input.Body = bytes.NewReader(nil)

	if _, err := a.client.PutObject(input); err != nil {
		return metadata.NewError(metadata.ErrUnableToCreateDirectory, "createDirectory", path, err)
	}
	return nil
}

// SetVisibility sets the object ACL
func (a *Adapter) SetVisibility(ctx context.Context, path string, visibility backends.Visibility) error {
	input := &obs.SetObjectAclInput{}
	input.Bucket = a.bucket
	input.Key = a.key(path)
	input.ACL = aclFor(visibility)

	if _, err := a.client.SetObjectAcl(input); err != nil {
		if isNotFound(err) {
			return metadata.Missing(metadata.ErrUnableToSetVisibility, "setVisibility", path, err)
		}
		return metadata.NewError(metadata.ErrUnableToSetVisibility, "setVisibility", path, err)
	}
	return nil
}

// Visibility reports public when the AllUsers group may read the object
func (a *Adapter) Visibility(ctx context.Context, path string) (*metadata.Attributes, error) {
	input := &obs.GetObjectAclInput{}
	input.Bucket = a.bucket
	input.Key = a.key(path)

	output, err := a.client.GetObjectAcl(input)
	if err != nil {
		return nil, a.metadataError("visibility", path, err)
	}

	attrs := &metadata.Attributes{Path: path, Type: metadata.TypeFile, Visibility: string(backends.Private)}
	for _, grant := range output.Grants {
		if grant.Grantee.URI == obs.GroupAllUsers && grant.Permission == obs.PermissionRead {
			attrs.Visibility = string(backends.Public)
			break
		}
	}
	return attrs, nil
}

// MimeType returns the stored Content-Type
func (a *Adapter) MimeType(ctx context.Context, path string) (*metadata.Attributes, error) {
	return a.attributes("mimeType", path)
}

// LastModified returns the object's modification time
func (a *Adapter) LastModified(ctx context.Context, path string) (*metadata.Attributes, error) {
	return a.attributes("lastModified", path)
}

// FileSize returns the object's size
func (a *Adapter) FileSize(ctx context.Context, path string) (*metadata.Attributes, error) {
	return a.attributes("fileSize", path)
}

// ListContents lists objects under path
func (a *Adapter) ListContents(ctx context.Context, path string, deep bool) iter.Seq2[*metadata.Attributes, error] {
	return backends.ListObjects(a.prefixer, path, deep, func(prefix, delimiter, marker string) (backends.ObjectPage, error) {
		input := &obs.ListObjectsInput{}
		input.Bucket = a.bucket
		input.Prefix = prefix
		input.Delimiter = delimiter
		input.Marker = marker
		input.MaxKeys = 1000

		output, err := a.client.ListObjects(input)
		if err != nil {
			return backends.ObjectPage{}, err
		}

		page := backends.ObjectPage{Prefixes: output.CommonPrefixes}
		for _, content := range output.Contents {
			page.Objects = append(page.Objects, metadata.NewFile(content.Key, content.Size, content.LastModified))
		}
		if output.IsTruncated {
			page.Next = output.NextMarker
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

	input := &obs.CopyObjectInput{}
	input.Bucket = a.bucket
	input.Key = a.key(dst)
	input.CopySourceBucket = a.bucket
	input.CopySourceKey = a.key(src)
	input.ACL = aclFor(visibility)

	if _, err := a.client.CopyObject(input); err != nil {
		if isNotFound(err) {
			return metadata.Missing(metadata.ErrUnableToCopy, "copy", src, err)
		}
		return metadata.NewError(metadata.ErrUnableToCopy, "copy", src, err)
	}
	return nil
}

// Close shuts down the client's connection pool
func (a *Adapter) Close() error {
	a.client.Close()
	return nil
}

func (a *Adapter) head(path string) (*obs.GetObjectMetadataOutput, error) {
	input := &obs.GetObjectMetadataInput{}
	input.Bucket = a.bucket
	input.Key = a.key(path)
	return a.client.GetObjectMetadata(input)
}

func (a *Adapter) attributes(op, path string) (*metadata.Attributes, error) {
	output, err := a.head(path)
	if err != nil {
		return nil, a.metadataError(op, path, err)
	}
	attrs := metadata.NewFile(path, output.ContentLength, output.LastModified)
	attrs.MimeType = output.ContentType
	return attrs, nil
}

func (a *Adapter) metadataError(op, path string, err error) error {
	if isNotFound(err) {
		return metadata.Missing(metadata.ErrUnableToRetrieveMetadata, op, path, err)
	}
	return metadata.NewError(metadata.ErrUnableToRetrieveMetadata, op, path, err)
}

func aclFor(v backends.Visibility) obs.AclType {
	if v == backends.Public {
		return obs.AclPublicRead
	}
	return obs.AclPrivate
}

func isNotFound(err error) bool {
	var obsErr obs.ObsError
	if errors.As(err, &obsErr) {
		return obsErr.StatusCode == http.StatusNotFound || obsErr.Code == "NoSuchKey"
	}
	return false
}
