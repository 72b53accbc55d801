// Package s3 implements the blob store boundary on top of an S3 bucket.
package s3

import (
	"context"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/pkg/errors"

	"github.com/debindex-dev/debindex/files"
	"github.com/debindex-dev/debindex/utils"
)

// Store keeps blobs as objects below a key prefix in one bucket
type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewStore creates an S3-backed blob store from config. Empty credentials
// fall back to the ambient AWS credential chain.
func NewStore(ctx context.Context, cfg utils.S3Config) (*Store, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "unable to configure S3 client")
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (storage *Store) objectKey(key string) string {
	return path.Join(storage.prefix, key)
}

// Put uploads the blob under key with the given content type hint
func (storage *Store) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := storage.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(storage.bucket),
		Key:         aws.String(storage.objectKey(key)),
		Body:        r,
		ContentType: aws.String(contentType),
	})
	return errors.Wrapf(err, "unable to upload %s", key)
}

// Get opens the blob under key for reading
func (storage *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	output, err := storage.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(storage.bucket),
		Key:    aws.String(storage.objectKey(key)),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to fetch %s", key)
	}
	return output.Body, nil
}

// Delete removes the blob under key; a missing object is not an error
func (storage *Store) Delete(ctx context.Context, key string) error {
	_, err := storage.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(storage.bucket),
		Key:    aws.String(storage.objectKey(key)),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
			return nil
		}
		return errors.Wrapf(err, "unable to delete %s", key)
	}
	return nil
}

// Check interface
var (
	_ files.Store = &Store{}
)
