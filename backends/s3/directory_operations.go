package s3

import (
	"bytes"
	"context"
	"iter"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/backends"
	"github.com/ebogdum/diskfs/core/log"
	"github.com/ebogdum/diskfs/metadata"
)

// deleteBatchSize is the DeleteObjects limit per request.
const deleteBatchSize = 1000

// DirectoryExists reports whether any object lives under path
func (a *Adapter) DirectoryExists(ctx context.Context, path string) (bool, error) {
	result, err := a.client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(a.opts.Bucket),
		Prefix:    aws.String(a.directoryKey(path)),
		Delimiter: aws.String("/"),
		MaxKeys:   aws.Int64(1),
	})
	if err != nil {
		return false, metadata.NewError(metadata.ErrUnableToCheckExistence, "directoryExists", path, err)
	}
	return len(result.Contents) > 0 || len(result.CommonPrefixes) > 0, nil
}

// ListContents lists objects under path. Shallow listings use the "/"
// delimiter; deep listings synthesize the intermediate directories.
func (a *Adapter) ListContents(ctx context.Context, path string, deep bool) iter.Seq2[*metadata.Attributes, error] {
	return backends.ListObjects(a.prefixer, path, deep, func(prefix, delimiter, token string) (backends.ObjectPage, error) {
		input := &s3.ListObjectsV2Input{
			Bucket: aws.String(a.opts.Bucket),
			Prefix: aws.String(prefix),
		}
		if delimiter != "" {
			input.Delimiter = aws.String(delimiter)
		}
		if token != "" {
			input.ContinuationToken = aws.String(token)
		}

		result, err := a.client.ListObjectsV2WithContext(ctx, input)
		if err != nil {
			return backends.ObjectPage{}, err
		}

		var page backends.ObjectPage
		for _, commonPrefix := range result.CommonPrefixes {
			page.Prefixes = append(page.Prefixes, aws.StringValue(commonPrefix.Prefix))
		}
		for _, object := range result.Contents {
			page.Objects = append(page.Objects, metadata.NewFile(aws.StringValue(object.Key), aws.Int64Value(object.Size), aws.TimeValue(object.LastModified)))
		}
		if aws.BoolValue(result.IsTruncated) {
			page.Next = aws.StringValue(result.NextContinuationToken)
		}
		return page, nil
	})
}

// CreateDirectory writes an empty marker object ending in "/"
func (a *Adapter) CreateDirectory(ctx context.Context, path string, cfg backends.Config) error {
	key := a.directoryKey(path)
	visibility := cfg.Visibility(backends.OptionDirectoryVisibility, cfg.Visibility(backends.OptionVisibility, a.opts.Visibility))

	_, err := a.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.opts.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(nil),
		ACL:    a.aclFor(visibility),
	})
	if err != nil {
		return metadata.NewError(metadata.ErrUnableToCreateDirectory, "createDirectory", path, err)
	}

	a.logger.Debug("Directory marker created in S3",
		zap.String("bucket", a.opts.Bucket),
		log.Path("key", key))

	return nil
}

// DeleteDirectory deletes every object under path in batches
func (a *Adapter) DeleteDirectory(ctx context.Context, path string) error {
	prefix := a.directoryKey(path)
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(a.opts.Bucket),
		Prefix: aws.String(prefix),
	}

	var batch []*s3.ObjectIdentifier
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		_, err := a.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(a.opts.Bucket),
			Delete: &s3.Delete{Objects: batch, Quiet: aws.Bool(true)},
		})
		batch = batch[:0]
		return err
	}

	for {
		result, err := a.client.ListObjectsV2WithContext(ctx, input)
		if err != nil {
			return metadata.NewError(metadata.ErrUnableToDeleteDirectory, "deleteDirectory", path, err)
		}
		for _, object := range result.Contents {
			batch = append(batch, &s3.ObjectIdentifier{Key: object.Key})
			if len(batch) == deleteBatchSize {
				if err := flush(); err != nil {
					return metadata.NewError(metadata.ErrUnableToDeleteDirectory, "deleteDirectory", path, err)
				}
			}
		}
		if !aws.BoolValue(result.IsTruncated) || result.NextContinuationToken == nil {
			break
		}
		input.ContinuationToken = result.NextContinuationToken
	}

	if err := flush(); err != nil {
		return metadata.NewError(metadata.ErrUnableToDeleteDirectory, "deleteDirectory", path, err)
	}
	return nil
}
