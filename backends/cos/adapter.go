// Package cos stores files in a Tencent Cloud COS bucket.
package cos

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tencentyun/cos-go-sdk-v5"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/internal/pathutil"
	"github.com/ebogdum/diskfs/metadata"
)

const allUsersURI = "http://cam.qcloud.com/groups/global/AllUsers"

// Adapter implements backends.Adapter for Tencent COS.
type Adapter struct {
	client      *cos.Client
	http        *http.Client
	bucketHost  string
	scheme      string
	cdn         string
	readFromCDN bool
	secretID    string
	secretKey   string
	visibility  backends.Visibility
	prefixer    *pathutil.Prefixer
	logger      *zap.Logger
}

// New creates a COS adapter from region, bucket, app_id and credentials.
func New(disk config.Disk, logger *zap.Logger) (*Adapter, error) {
	required, err := disk.Require("region", "bucket", "secret_id", "secret_key")
	if err != nil {
		return nil, metadata.Configuration("%v", err)
	}

	bucket := required["bucket"]
	if appID := disk.String("app_id", ""); appID != "" && !strings.HasSuffix(bucket, "-"+appID) {
		bucket += "-" + appID
	}

	scheme := disk.String("scheme", "https")
	host := fmt.Sprintf("%s.cos.%s.myqcloud.com", bucket, required["region"])
	bucketURL, err := url.Parse(scheme + "://" + host)
	if err != nil {
		return nil, metadata.Configuration("disk %q: invalid bucket url: %v", disk.Name(), err)
	}

	dialer := &net.Dialer{Timeout: disk.Duration("connect_timeout", 60*time.Second)}
	httpClient := &http.Client{
		Timeout: disk.Duration("timeout", 60*time.Second),
		Transport: &cos.AuthorizationTransport{
			SecretID:  required["secret_id"],
			SecretKey: required["secret_key"],
			Transport: &http.Transport{DialContext: dialer.DialContext},
		},
	}

	visibility, _ := backends.ParseVisibility(disk.Visibility())
	if visibility == "" {
		visibility = backends.Private
	}

	return &Adapter{
		client:      cos.NewClient(&cos.BaseURL{BucketURL: bucketURL}, httpClient),
		http:        &http.Client{Timeout: httpClient.Timeout},
		bucketHost:  host,
		scheme:      scheme,
		cdn:         disk.String("cdn", ""),
		readFromCDN: disk.Bool("read_from_cdn", false),
		secretID:    required["secret_id"],
		secretKey:   required["secret_key"],
		visibility:  visibility,
		prefixer:    pathutil.NewPrefixer(disk.Root(), "/"),
		logger:      logger,
	}, nil
}

// Kind reports the adapter as object storage.
func (a *Adapter) Kind() backends.Kind { return backends.KindObject }

func (a *Adapter) key(path string) string { return a.prefixer.PrefixPath(path) }

// URL returns the CDN URL when configured, otherwise the bucket domain.
func (a *Adapter) URL(path string) (string, error) {
	if a.cdn != "" {
		return backends.ObjectURL(a.cdn, a.key(path)), nil
	}
	return backends.ObjectURL(a.scheme+"://"+a.bucketHost, a.key(path)), nil
}

// TemporaryURL returns a presigned GET URL valid until expiresAt.
func (a *Adapter) TemporaryURL(ctx context.Context, path string, expiresAt time.Time, cfg backends.Config) (string, error) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return "", fmt.Errorf("expiry %s is in the past", expiresAt.Format(time.RFC3339))
	}
	u, err := a.client.Object.GetPresignedURL(ctx, http.MethodGet, a.key(path), a.secretID, a.secretKey, ttl, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// FileExists reports whether the object exists
func (a *Adapter) FileExists(ctx context.Context, path string) (bool, error) {
	exists, err := a.client.Object.IsExist(ctx, a.key(path))
	if err != nil {
		return false, metadata.NewError(metadata.ErrUnableToCheckExistence, "fileExists", path, err)
	}
	return exists, nil
}

// DirectoryExists reports whether anything lives under path
func (a *Adapter) DirectoryExists(ctx context.Context, path string) (bool, error) {
	result, _, err := a.client.Bucket.Get(ctx, &cos.BucketGetOptions{
		Prefix:  a.prefixer.PrefixDirectoryPath(path),
		MaxKeys: 1,
	})
	if err != nil {
		return false, metadata.NewError(metadata.ErrUnableToCheckExistence, "directoryExists", path, err)
	}
	return len(result.Contents) > 0 || len(result.CommonPrefixes) > 0, nil
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

// ReadStream opens the object, through the CDN when read_from_cdn is set
func (a *Adapter) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	if a.readFromCDN && a.cdn != "" {
		return a.readFromURL(ctx, path)
	}

	resp, err := a.client.Object.Get(ctx, a.key(path), nil)
	if err != nil {
		if cos.IsNotFoundError(err) {
			return nil, metadata.Missing(metadata.ErrUnableToRead, "read", path, err)
		}
		return nil, metadata.NewError(metadata.ErrUnableToRead, "read", path, err)
	}
	return resp.Body, nil
}

func (a *Adapter) readFromURL(ctx context.Context, path string) (io.ReadCloser, error) {
	u, _ := a.URL(path)
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
		return nil, metadata.NewError(metadata.ErrUnableToRead, "read", path, fmt.Errorf("cdn returned %s", resp.Status))
	}
	return resp.Body, nil
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
	opt := &cos.ObjectPutOptions{
		ACLHeaderOptions: &cos.ACLHeaderOptions{
			XCosACL: aclFor(cfg.Visibility(backends.OptionVisibility, a.visibility)),
		},
		ObjectPutHeaderOptions: &cos.ObjectPutHeaderOptions{
			ContentType:        backends.ContentType(path, contents, cfg),
			CacheControl:       cfg.String(backends.OptionCacheControl, ""),
			ContentDisposition: cfg.String(backends.OptionContentDisposition, ""),
		},
	}
	if _, err := a.client.Object.Put(ctx, a.key(path), r, opt); err != nil {
		return metadata.NewError(metadata.ErrUnableToWrite, "write", path, err)
	}
	return nil
}

// Delete removes the object. Missing objects are not an error.
func (a *Adapter) Delete(ctx context.Context, path string) error {
	if _, err := a.client.Object.Delete(ctx, a.key(path)); err != nil && !cos.IsNotFoundError(err) {
		return metadata.NewError(metadata.ErrUnableToDelete, "delete", path, err)
	}
	return nil
}

// DeleteDirectory removes every object under path
func (a *Adapter) DeleteDirectory(ctx context.Context, path string) error {
	prefix := a.prefixer.PrefixDirectoryPath(path)
	marker := ""
	for {
		result, _, err := a.client.Bucket.Get(ctx, &cos.BucketGetOptions{Prefix: prefix, Marker: marker, MaxKeys: 1000})
		if err != nil {
			return metadata.NewError(metadata.ErrUnableToDeleteDirectory, "deleteDirectory", path, err)
		}

		objects := make([]cos.Object, 0, len(result.Contents))
		for _, object := range result.Contents {
			objects = append(objects, cos.Object{Key: object.Key})
		}
		if len(objects) > 0 {
			if _, _, err := a.client.Object.DeleteMulti(ctx, &cos.ObjectDeleteMultiOptions{Quiet: true, Objects: objects}); err != nil {
				return metadata.NewError(metadata.ErrUnableToDeleteDirectory, "deleteDirectory", path, err)
			}
		}

		if !result.IsTruncated {
			return nil
		}
		marker = result.NextMarker
	}
}

// CreateDirectory writes an empty "path/" marker
func (a *Adapter) CreateDirectory(ctx context.Context, path string, cfg backends.Config) error {
	v := cfg.Visibility(backends.OptionDirectoryVisibility, cfg.Visibility(backends.OptionVisibility, a.visibility))
	opt := &cos.ObjectPutOptions{ACLHeaderOptions: &cos.ACLHeaderOptions{XCosACL: aclFor(v)}}
	if _, err := a.client.Object.Put(ctx, a.prefixer.PrefixDirectoryPath(path), bytes.NewReader(nil), opt); err != nil {
		return metadata.NewError(metadata.ErrUnableToCreateDirectory, "createDirectory", path, err)
	}
	return nil
}

// SetVisibility sets the object ACL
func (a *Adapter) SetVisibility(ctx context.Context, path string, visibility backends.Visibility) error {
	_, err := a.client.Object.PutACL(ctx, a.key(path), &cos.ObjectPutACLOptions{
		Header: &cos.ACLHeaderOptions{XCosACL: aclFor(visibility)},
	})
	if err != nil {
		if cos.IsNotFoundError(err) {
			return metadata.Missing(metadata.ErrUnableToSetVisibility, "setVisibility", path, err)
		}
		return metadata.NewError(metadata.ErrUnableToSetVisibility, "setVisibility", path, err)
	}
	return nil
}

// Visibility reports public when AllUsers holds a READ grant
func (a *Adapter) Visibility(ctx context.Context, path string) (*metadata.Attributes, error) {
	result, _, err := a.client.Object.GetACL(ctx, a.key(path))
	if err != nil {
		return nil, metadata.NewError(metadata.ErrUnableToRetrieveMetadata, "visibility", path, err)
	}

	attrs := &metadata.Attributes{Path: path, Type: metadata.TypeFile, Visibility: string(backends.Private)}
	for _, grant := range result.AccessControlList {
		if grant.Grantee != nil && grant.Grantee.URI == allUsersURI && grant.Permission == "READ" {
			attrs.Visibility = string(backends.Public)
			break
		}
	}
	return attrs, nil
}

// MimeType returns the stored Content-Type
func (a *Adapter) MimeType(ctx context.Context, path string) (*metadata.Attributes, error) {
	return a.attributes(ctx, "mimeType", path)
}

// LastModified returns the object's Last-Modified time
func (a *Adapter) LastModified(ctx context.Context, path string) (*metadata.Attributes, error) {
	return a.attributes(ctx, "lastModified", path)
}

// FileSize returns the object's Content-Length
func (a *Adapter) FileSize(ctx context.Context, path string) (*metadata.Attributes, error) {
	return a.attributes(ctx, "fileSize", path)
}

// ListContents lists objects under path
func (a *Adapter) ListContents(ctx context.Context, path string, deep bool) iter.Seq2[*metadata.Attributes, error] {
	return backends.ListObjects(a.prefixer, path, deep, func(prefix, delimiter, marker string) (backends.ObjectPage, error) {
		result, _, err := a.client.Bucket.Get(ctx, &cos.BucketGetOptions{
			Prefix:    prefix,
			Delimiter: delimiter,
			Marker:    marker,
			MaxKeys:   1000,
		})
		if err != nil {
			return backends.ObjectPage{}, err
		}

		page := backends.ObjectPage{Prefixes: result.CommonPrefixes}
		for _, object := range result.Contents {
			modified, _ := time.Parse(time.RFC3339, object.LastModified)
			page.Objects = append(page.Objects, metadata.NewFile(object.Key, object.Size, modified))
		}
		if result.IsTruncated {
			page.Next = result.NextMarker
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

// Copy performs a server side copy
func (a *Adapter) Copy(ctx context.Context, src, dst string, cfg backends.Config) error {
	source := backends.ObjectURL(a.bucketHost, a.key(src))
	opt := &cos.ObjectCopyOptions{}
	if v, ok := backends.ParseVisibility(cfg.String(backends.OptionVisibility, "")); ok {
		opt.ACLHeaderOptions = &cos.ACLHeaderOptions{XCosACL: aclFor(v)}
	}
	if _, _, err := a.client.Object.Copy(ctx, a.key(dst), source, opt); err != nil {
		if cos.IsNotFoundError(err) {
			return metadata.Missing(metadata.ErrUnableToCopy, "copy", src, err)
		}
		return metadata.NewError(metadata.ErrUnableToCopy, "copy", src, err)
	}
	return nil
}

// Close releases idle HTTP connections
func (a *Adapter) Close() error {
	a.http.CloseIdleConnections()
	return nil
}

func (a *Adapter) attributes(ctx context.Context, op, path string) (*metadata.Attributes, error) {
	resp, err := a.client.Object.Head(ctx, a.key(path), nil)
	if err != nil {
		if cos.IsNotFoundError(err) {
			return nil, metadata.Missing(metadata.ErrUnableToRetrieveMetadata, op, path, err)
		}
		return nil, metadata.NewError(metadata.ErrUnableToRetrieveMetadata, op, path, err)
	}

	size, _ := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	modified, _ := http.ParseTime(resp.Header.Get("Last-Modified"))
	attrs := metadata.NewFile(path, size, modified)
	attrs.MimeType = resp.Header.Get("Content-Type")
	return attrs, nil
}

func aclFor(v backends.Visibility) string {
	if v == backends.Public {
		return "public-read"
	}
	return "private"
}
