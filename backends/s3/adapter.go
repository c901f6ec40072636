// Package s3 stores files in an S3 compatible bucket (AWS, MinIO, Ceph).
package s3

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/internal/pathutil"
	"github.com/ebogdum/diskfs/metadata"
)

const allUsersURI = "http://acs.amazonaws.com/groups/global/AllUsers"

// Options configures an Adapter built around an existing client.
type Options struct {
	Bucket               string
	Root                 string
	Region               string
	Endpoint             string
	PathStyle            bool
	URL                  string // public base URL, overrides the bucket endpoint
	ServerSideEncryption string
	KMSKeyID             string
	Visibility           backends.Visibility
}

// Adapter implements backends.Adapter for S3 compatible object storage
type Adapter struct {
	client   s3iface.S3API
	opts     Options
	prefixer *pathutil.Prefixer
	logger   *zap.Logger
}

// New creates an S3 adapter from disk settings.
func New(disk config.Disk, logger *zap.Logger) (*Adapter, error) {
	bucket := disk.String("bucket", disk.String("bucket_name", ""))
	if bucket == "" {
		return nil, metadata.Configuration("disk %q: S3 bucket name is required", disk.Name())
	}

	opts := Options{
		Bucket:               bucket,
		Root:                 disk.Root(),
		Region:               disk.String("region", "us-east-1"),
		Endpoint:             disk.String("endpoint", ""),
		PathStyle:            disk.Bool("use_path_style_endpoint", false),
		URL:                  disk.URL(),
		ServerSideEncryption: disk.String("server_side_encryption", ""),
		KMSKeyID:             disk.String("kms_key_id", ""),
	}
	opts.Visibility, _ = backends.ParseVisibility(disk.Visibility())

	awsConfig := &aws.Config{
		Region:     aws.String(opts.Region),
		DisableSSL: aws.Bool(disk.Bool("disable_ssl", false)),
	}
	if key := disk.String("key", ""); key != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(key, disk.String("secret", ""), disk.String("token", ""))
	}

	// Custom endpoints cover MinIO and other S3 compatible services.
	if opts.Endpoint != "" {
		awsConfig.Endpoint = aws.String(opts.Endpoint)
		awsConfig.S3DisableContentMD5Validation = aws.Bool(true)
	}
	awsConfig.S3ForcePathStyle = aws.Bool(opts.PathStyle)

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return NewWithClient(s3.New(sess), opts, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client s3iface.S3API, opts Options, logger *zap.Logger) *Adapter {
	if opts.Visibility == "" {
		opts.Visibility = backends.Private
	}
	return &Adapter{
		client:   client,
		opts:     opts,
		prefixer: pathutil.NewPrefixer(opts.Root, "/"),
		logger:   logger,
	}
}

// Kind reports the adapter as object storage.
func (a *Adapter) Kind() backends.Kind { return backends.KindObject }

// Close releases nothing; the SDK client holds no long lived connections.
func (a *Adapter) Close() error {
	return nil
}

// URL returns the public URL of path: the configured base URL when set,
// otherwise the bucket endpoint.
func (a *Adapter) URL(path string) (string, error) {
	key := a.key(path)
	if a.opts.URL != "" {
		return backends.ObjectURL(a.opts.URL, key), nil
	}

	if a.opts.Endpoint != "" {
		endpoint := strings.TrimRight(a.opts.Endpoint, "/")
		if !strings.Contains(endpoint, "://") {
			endpoint = "https://" + endpoint
		}
		if a.opts.PathStyle {
			return backends.ObjectURL(endpoint+"/"+a.opts.Bucket, key), nil
		}
		u, err := url.Parse(endpoint)
		if err != nil {
			return "", fmt.Errorf("invalid endpoint %q: %w", a.opts.Endpoint, err)
		}
		u.Host = a.opts.Bucket + "." + u.Host
		return backends.ObjectURL(u.String(), key), nil
	}

	return backends.ObjectURL(fmt.Sprintf("https://%s.s3.%s.amazonaws.com", a.opts.Bucket, a.opts.Region), key), nil
}

// Presign returns a presigned GET URL valid until expiresAt. The
// content_disposition and mimetype options become response overrides.
func (a *Adapter) Presign(ctx context.Context, path string, expiresAt time.Time, cfg backends.Config) (string, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(a.opts.Bucket),
		Key:    aws.String(a.key(path)),
	}
	if v := cfg.String(backends.OptionContentDisposition, ""); v != "" {
		input.ResponseContentDisposition = aws.String(v)
	}
	if v := cfg.String(backends.OptionMimeType, ""); v != "" {
		input.ResponseContentType = aws.String(v)
	}

	req, _ := a.client.GetObjectRequest(input)
	req.SetContext(ctx)

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return "", fmt.Errorf("expiry %s is in the past", expiresAt.Format(time.RFC3339))
	}
	return req.Presign(ttl)
}

// key converts a logical path to an object key
func (a *Adapter) key(path string) string {
	return a.prefixer.PrefixPath(path)
}

// directoryKey converts a logical directory path to a key prefix
func (a *Adapter) directoryKey(path string) string {
	return a.prefixer.PrefixDirectoryPath(path)
}

func (a *Adapter) aclFor(v backends.Visibility) *string {
	if v == backends.Public {
		return aws.String(s3.ObjectCannedACLPublicRead)
	}
	return aws.String(s3.ObjectCannedACLPrivate)
}

func visibilityFromGrants(grants []*s3.Grant) backends.Visibility {
	for _, grant := range grants {
		if grant.Grantee == nil || grant.Grantee.URI == nil || grant.Permission == nil {
			continue
		}
		if *grant.Grantee.URI == allUsersURI && *grant.Permission == s3.PermissionRead {
			return backends.Public
		}
	}
	return backends.Private
}

// isS3NotFound checks if an error indicates the object was not found
func isS3NotFound(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	var awsErr awserr.Error
	if errors.As(err, &awsErr) {
		switch awsErr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
