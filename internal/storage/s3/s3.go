// Package s3 provides an S3-compatible object store backend with metrics.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/manishnupt/mynx-file-hive/internal/logging"
	"github.com/manishnupt/mynx-file-hive/internal/metrics"
	"github.com/manishnupt/mynx-file-hive/internal/storage"
)

const backendType = "s3"

// Config holds S3 connection settings.
type Config struct {
	Endpoint     string `mapstructure:"endpoint"`
	Bucket       string `mapstructure:"bucket"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	Region       string `mapstructure:"region"`
	UseSSL       bool   `mapstructure:"use_ssl"`
	MaxRetries   int    `mapstructure:"max_retries"`
	CreateBucket bool   `mapstructure:"create_bucket"`
}

// Backend implements storage.ObjectStore on S3 or MinIO.
type Backend struct {
	client *s3.Client
	bucket string
}

var _ storage.ObjectStore = (*Backend)(nil)

// New creates an S3 backend. With an empty Endpoint the default AWS
// endpoint resolution applies; otherwise path-style addressing is used.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithRetryer(func() aws.Retryer {
			return retry.NewStandard(func(o *retry.StandardOptions) {
				o.MaxAttempts = maxRetries
			})
		}),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := endpointURL(cfg.Endpoint, cfg.UseSSL)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	b := &Backend{client: client, bucket: cfg.Bucket}
	if cfg.CreateBucket {
		if err := b.ensureBucket(ctx); err != nil {
			logging.Error("bucket check failed", zap.String("bucket", cfg.Bucket), zap.Error(err))
		}
	}
	return b, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *s3.Client, bucket string) *Backend {
	return &Backend{client: client, bucket: bucket}
}

func endpointURL(endpoint string, useSSL bool) string {
	if endpoint == "" || strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

func (b *Backend) ensureBucket(ctx context.Context) error {
	start := time.Now()
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)})
	if err == nil {
		return nil
	}
	_, err = b.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(b.bucket)})
	metrics.RecordStoreOperation(backendType, "create_bucket", time.Since(start), err == nil)
	if err != nil {
		return fmt.Errorf("bucket %s does not exist and cannot be created: %w", b.bucket, err)
	}
	logging.Info("created S3 bucket", zap.String("bucket", b.bucket))
	return nil
}

// Put uploads body to key.
func (b *Backend) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	start := time.Now()

	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	_, err := b.client.PutObject(ctx, input)
	metrics.RecordStoreOperation(backendType, "put_object", time.Since(start), err == nil)
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}

	logging.Debug("S3 put object", zap.String("key", key), zap.Int64("size", size))
	return nil
}

// Get opens the object at key.
func (b *Backend) Get(ctx context.Context, key string) (*storage.Object, error) {
	start := time.Now()

	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	metrics.RecordStoreOperation(backendType, "get_object", time.Since(start), err == nil)
	if err != nil {
		return nil, mapError("get object "+key, err)
	}

	return &storage.Object{
		Body: out.Body,
		Info: storage.ObjectInfo{
			Key:          key,
			Size:         aws.ToInt64(out.ContentLength),
			LastModified: aws.ToTime(out.LastModified),
			ContentType:  aws.ToString(out.ContentType),
		},
	}, nil
}

// Delete removes key. S3 treats deletes of missing keys as success.
func (b *Backend) Delete(ctx context.Context, key string) error {
	start := time.Now()

	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	metrics.RecordStoreOperation(backendType, "delete_object", time.Since(start), err == nil)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("delete object %s: %w", key, err)
	}

	logging.Debug("S3 delete object", zap.String("key", key))
	return nil
}

// Copy performs a server-side copy within the bucket.
func (b *Backend) Copy(ctx context.Context, srcKey, dstKey string) error {
	start := time.Now()

	_, err := b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(b.bucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(copySource(b.bucket, srcKey)),
	})
	metrics.RecordStoreOperation(backendType, "copy_object", time.Since(start), err == nil)
	if err != nil {
		return mapError(fmt.Sprintf("copy %s -> %s", srcKey, dstKey), err)
	}

	logging.Debug("S3 copy object", zap.String("src", srcKey), zap.String("dst", dstKey))
	return nil
}

// List pages through ListObjectsV2 until the listing is complete.
func (b *Backend) List(ctx context.Context, prefix, delimiter string) (*storage.Listing, error) {
	start := time.Now()

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	}
	if delimiter != "" {
		input.Delimiter = aws.String(delimiter)
	}

	out := &storage.Listing{}
	paginator := s3.NewListObjectsV2Paginator(b.client, input)
	pages := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			metrics.RecordStoreOperation(backendType, "list_objects", time.Since(start), false)
			return nil, fmt.Errorf("list objects %q (page %d): %w", prefix, pages+1, err)
		}
		pages++

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			out.Objects = append(out.Objects, storage.ObjectRecord{
				Key:            key,
				Size:           aws.ToInt64(obj.Size),
				LastModified:   aws.ToTime(obj.LastModified),
				IsFolderMarker: storage.IsFolderMarkerKey(key),
			})
		}
		for _, cp := range page.CommonPrefixes {
			out.CommonPrefixes = append(out.CommonPrefixes, aws.ToString(cp.Prefix))
		}
	}

	metrics.RecordStoreOperation(backendType, "list_objects", time.Since(start), true)
	logging.Debug("S3 list objects",
		zap.String("prefix", prefix),
		zap.Int("pages", pages),
		zap.Int("objects", len(out.Objects)),
		zap.Int("prefixes", len(out.CommonPrefixes)))
	return out, nil
}

// Head returns object metadata.
func (b *Backend) Head(ctx context.Context, key string) (*storage.ObjectInfo, error) {
	start := time.Now()

	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	metrics.RecordStoreOperation(backendType, "head_object", time.Since(start), err == nil)
	if err != nil {
		return nil, mapError("head object "+key, err)
	}

	return &storage.ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
		ContentType:  aws.ToString(out.ContentType),
	}, nil
}

// Type returns "s3".
func (b *Backend) Type() string { return backendType }

// Close is a no-op for S3 backends.
func (b *Backend) Close() error { return nil }

// copySource escapes each key segment; CopySource must be URL-encoded.
func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return bucket + "/" + strings.Join(segments, "/")
}

func mapError(op string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
