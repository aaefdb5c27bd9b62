// AWS S3 backend.
//
// Proxies all operations to an upstream S3 bucket via the AWS SDK for Go v2.
// Also serves S3-compatible services (MinIO, RustFS, SeaweedFS, LocalStack)
// when configured with a custom endpoint and path-style addressing, though
// the dedicated minio adapter is usually a better fit for those.
//
// Credentials are resolved via static keys when configured, otherwise the
// standard AWS credential chain (env vars, ~/.aws/credentials, IAM role).
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	cacheerr "github.com/nxcache/nxcache/internal/errors"
)

// S3API defines the subset of the AWS S3 client interface that the backend
// uses. It embeds manager.UploadAPIClient so the same mock can feed the
// multipart uploader in tests.
type S3API interface {
	manager.UploadAPIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Options carries the resolved settings for one S3 backend.
type S3Options struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// EndpointURL points at an S3-compatible service; empty means AWS.
	EndpointURL string
	// ForcePathStyle is required by most S3-compatible services.
	ForcePathStyle bool
	// Timeout bounds each operation. Zero disables the bound.
	Timeout time.Duration
}

// S3Backend implements Backend against an S3 bucket.
type S3Backend struct {
	bucket   string
	timeout  time.Duration
	client   S3API
	uploader *manager.Uploader
}

// NewS3Backend builds the AWS SDK client from the given options and returns
// a ready S3Backend. It does not contact the bucket; connectivity is checked
// separately by Ping during the startup probe.
func NewS3Backend(ctx context.Context, opts S3Options) (*S3Backend, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}

	// Static credentials when provided, default chain otherwise.
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if opts.EndpointURL != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.EndpointURL)
		})
	}
	if opts.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(cfg, s3Opts...)

	slog.Info("S3 backend initialized", "bucket", opts.Bucket, "region", opts.Region, "endpoint", opts.EndpointURL)
	return newS3Backend(opts.Bucket, opts.Timeout, client), nil
}

// NewS3BackendWithClient creates an S3Backend with a pre-configured client.
// Primarily used for testing with mocks.
func NewS3BackendWithClient(bucket string, timeout time.Duration, client S3API) *S3Backend {
	return newS3Backend(bucket, timeout, client)
}

func newS3Backend(bucket string, timeout time.Duration, client S3API) *S3Backend {
	return &S3Backend{
		bucket:   bucket,
		timeout:  timeout,
		client:   client,
		uploader: manager.NewUploader(client),
	}
}

// Exists checks the key with a HeadObject call.
func (b *S3Backend) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := opContext(ctx, b.timeout)
	defer cancel()

	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isAWSNotFound(err) {
			return false, nil
		}
		slog.Error("S3 HeadObject failed", "bucket", b.bucket, "key", key, "error", err)
		return false, fmt.Errorf("%w: checking object in S3: %w", cacheerr.ErrBackendUnavailable, err)
	}
	return true, nil
}

// Put streams the reader to the key. With a known size it issues a single
// PutObject; otherwise it hands the reader to the multipart uploader, which
// reads part-sized chunks and never holds the whole payload.
func (b *S3Backend) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	ctx, cancel := opContext(ctx, b.timeout)
	defer cancel()

	var err error
	if size >= 0 {
		_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(b.bucket),
			Key:           aws.String(key),
			Body:          r,
			ContentLength: aws.Int64(size),
		})
	} else {
		_, err = b.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(key),
			Body:   r,
		})
	}
	if err != nil {
		slog.Error("S3 upload failed", "bucket", b.bucket, "key", key, "error", err)
		return fmt.Errorf("%w: uploading to S3: %w", cacheerr.ErrBackendUnavailable, err)
	}
	return nil
}

// Get returns the object body as a stream. The operation timeout keeps
// bounding the transfer until the stream is closed.
func (b *S3Backend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx, cancel := opContext(ctx, b.timeout)

	resp, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		cancel()
		if isAWSNotFound(err) {
			return nil, fmt.Errorf("%w: %s", cacheerr.ErrNotFound, key)
		}
		slog.Error("S3 GetObject failed", "bucket", b.bucket, "key", key, "error", err)
		return nil, fmt.Errorf("%w: getting object from S3: %w", cacheerr.ErrBackendUnavailable, err)
	}
	return &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}, nil
}

// Ping lists at most one key to verify credentials and bucket access.
func (b *S3Backend) Ping(ctx context.Context) error {
	ctx, cancel := opContext(ctx, b.timeout)
	defer cancel()

	_, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(b.bucket),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return fmt.Errorf("%w: bucket %q unreachable: %w", cacheerr.ErrBackendUnavailable, b.bucket, err)
	}
	return nil
}

// isAWSNotFound checks if an AWS error is a 404/NoSuchKey/NotFound error.
func isAWSNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404 {
		return true
	}
	return false
}

// Ensure S3Backend implements Backend at compile time.
var _ Backend = (*S3Backend)(nil)
