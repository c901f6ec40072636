package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/core/log"
	"github.com/ebogdum/diskfs/metadata"
)

// FileExists reports whether an object exists at path
func (a *Adapter) FileExists(ctx context.Context, path string) (bool, error) {
	_, err := a.head(ctx, path)
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, metadata.NewError(metadata.ErrUnableToCheckExistence, "fileExists", path, err)
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
	key := a.key(path)

	result, err := a.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, metadata.Missing(metadata.ErrUnableToRead, "read", path, err)
		}
		return nil, metadata.NewError(metadata.ErrUnableToRead, "read", path, err)
	}

	a.logger.Debug("Object opened from S3",
		zap.String("bucket", a.opts.Bucket),
		log.Path("key", key))

	return result.Body, nil
}

// Write uploads contents as a single object
func (a *Adapter) Write(ctx context.Context, path string, contents []byte, cfg backends.Config) error {
	key := a.key(path)

	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.opts.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(contents),
		ACL:         a.aclFor(cfg.Visibility(backends.OptionVisibility, a.opts.Visibility)),
		ContentType: aws.String(backends.ContentType(path, contents, cfg)),
	}

	if a.opts.ServerSideEncryption != "" {
		input.ServerSideEncryption = aws.String(a.opts.ServerSideEncryption)
		if a.opts.ServerSideEncryption == s3.ServerSideEncryptionAwsKms && a.opts.KMSKeyID != "" {
			input.SSEKMSKeyId = aws.String(a.opts.KMSKeyID)
		}
	}
	if v := cfg.String(backends.OptionCacheControl, ""); v != "" {
		input.CacheControl = aws.String(v)
	}
	if v := cfg.String(backends.OptionContentDisposition, ""); v != "" {
		input.ContentDisposition = aws.String(v)
	}

	if _, err := a.client.PutObjectWithContext(ctx, input); err != nil {
		return metadata.NewError(metadata.ErrUnableToWrite, "write", path, err)
	}

	a.logger.Debug("Object written to S3",
		zap.String("bucket", a.opts.Bucket),
		log.Path("key", key),
		zap.Int("size", len(contents)))

	return nil
}

// WriteStream buffers the reader and uploads it
func (a *Adapter) WriteStream(ctx context.Context, path string, r io.Reader, cfg backends.Config) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return metadata.NewError(metadata.ErrUnableToWrite, "write", path, fmt.Errorf("failed to read data: %w", err))
	}
	return a.Write(ctx, path, data, cfg)
}

// Delete removes an object. S3 treats a missing key as success.
func (a *Adapter) Delete(ctx context.Context, path string) error {
	_, err := a.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.opts.Bucket),
		Key:    aws.String(a.key(path)),
	})
	if err != nil && !isS3NotFound(err) {
		return metadata.NewError(metadata.ErrUnableToDelete, "delete", path, err)
	}
	return nil
}

// SetVisibility applies a canned ACL
func (a *Adapter) SetVisibility(ctx context.Context, path string, visibility backends.Visibility) error {
	_, err := a.client.PutObjectAclWithContext(ctx, &s3.PutObjectAclInput{
		Bucket: aws.String(a.opts.Bucket),
		Key:    aws.String(a.key(path)),
		ACL:    a.aclFor(visibility),
	})
	if err != nil {
		if isS3NotFound(err) {
			return metadata.Missing(metadata.ErrUnableToSetVisibility, "setVisibility", path, err)
		}
		return metadata.NewError(metadata.ErrUnableToSetVisibility, "setVisibility", path, err)
	}
	return nil
}

// Visibility reads the object ACL; a READ grant for AllUsers means public
func (a *Adapter) Visibility(ctx context.Context, path string) (*metadata.Attributes, error) {
	result, err := a.client.GetObjectAclWithContext(ctx, &s3.GetObjectAclInput{
		Bucket: aws.String(a.opts.Bucket),
		Key:    aws.String(a.key(path)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, metadata.Missing(metadata.ErrUnableToRetrieveMetadata, "visibility", path, err)
		}
		return nil, metadata.NewError(metadata.ErrUnableToRetrieveMetadata, "visibility", path, err)
	}

	attrs := &metadata.Attributes{Path: path, Type: metadata.TypeFile}
	attrs.Visibility = string(visibilityFromGrants(result.Grants))
	return attrs, nil
}

// MimeType returns the stored Content-Type
func (a *Adapter) MimeType(ctx context.Context, path string) (*metadata.Attributes, error) {
	return a.attributes(ctx, "mimeType", path)
}

// LastModified returns the object's modification time
func (a *Adapter) LastModified(ctx context.Context, path string) (*metadata.Attributes, error) {
	return a.attributes(ctx, "lastModified", path)
}

// FileSize returns the object's content length
func (a *Adapter) FileSize(ctx context.Context, path string) (*metadata.Attributes, error) {
	return a.attributes(ctx, "fileSize", path)
}

// Move copies src to dst then deletes src
func (a *Adapter) Move(ctx context.Context, src, dst string, cfg backends.Config) error {
	if err := a.Copy(ctx, src, dst, cfg); err != nil {
		return metadata.NewError(metadata.ErrUnableToMove, "move", src, err)
	}
	if err := a.Delete(ctx, src); err != nil {
		return metadata.NewError(metadata.ErrUnableToMove, "move", src, err)
	}
	return nil
}

// Copy performs a server side copy. Without a visibility option the
// source's visibility is kept.
func (a *Adapter) Copy(ctx context.Context, src, dst string, cfg backends.Config) error {
	visibility := cfg.Visibility(backends.OptionVisibility, "")
	if visibility == "" {
		visibility = backends.Private
		if attrs, err := a.Visibility(ctx, src); err == nil {
			visibility = backends.Visibility(attrs.Visibility)
		}
	}

	_, err := a.client.CopyObjectWithContext(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(a.opts.Bucket),
		Key:        aws.String(a.key(dst)),
		CopySource: aws.String(backends.ObjectURL(a.opts.Bucket, a.key(src))),
		ACL:        a.aclFor(visibility),
	})
	if err != nil {
		if isS3NotFound(err) {
			return metadata.Missing(metadata.ErrUnableToCopy, "copy", src, err)
		}
		return metadata.NewError(metadata.ErrUnableToCopy, "copy", src, err)
	}
	return nil
}

func (a *Adapter) head(ctx context.Context, path string) (*s3.HeadObjectOutput, error) {
	return a.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.opts.Bucket),
		Key:    aws.String(a.key(path)),
	})
}

func (a *Adapter) attributes(ctx context.Context, op, path string) (*metadata.Attributes, error) {
	result, err := a.head(ctx, path)
	if err != nil {
		if isS3NotFound(err) {
			return nil, metadata.Missing(metadata.ErrUnableToRetrieveMetadata, op, path, err)
		}
		return nil, metadata.NewError(metadata.ErrUnableToRetrieveMetadata, op, path, err)
	}

	attrs := metadata.NewFile(path, aws.Int64Value(result.ContentLength), aws.TimeValue(result.LastModified))
	attrs.MimeType = aws.StringValue(result.ContentType)
	return attrs, nil
}
