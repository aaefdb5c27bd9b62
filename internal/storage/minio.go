// S3-compatible backend built on minio-go.
//
// Preferred adapter for MinIO, RustFS, SeaweedFS, Garage, LocalStack and
// other S3-compatible services: minio-go streams unknown-length uploads
// through its own multipart path (size -1) without any local buffering.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	miniocred "github.com/minio/minio-go/v7/pkg/credentials"

	cacheerr "github.com/nxcache/nxcache/internal/errors"
)

// MinioOptions carries the resolved settings for one S3-compatible backend.
type MinioOptions struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// EndpointURL is the service URL, scheme included. Required.
	EndpointURL string
	// Timeout bounds each operation. Zero disables the bound.
	Timeout time.Duration
}

// MinioBackend implements Backend against an S3-compatible service.
type MinioBackend struct {
	bucket  string
	timeout time.Duration
	client  *minio.Client
}

// NewMinioBackend builds a minio client for the configured endpoint.
// Static credentials are used when provided; otherwise the AWS-style
// environment/file/IAM chain applies.
func NewMinioBackend(opts MinioOptions) (*MinioBackend, error) {
	u, err := url.Parse(opts.EndpointURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid endpoint URL %q", opts.EndpointURL)
	}

	var creds *miniocred.Credentials
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		creds = miniocred.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken)
	} else {
		creds = miniocred.NewChainCredentials([]miniocred.Provider{
			&miniocred.EnvAWS{},
			&miniocred.FileAWSCredentials{},
			&miniocred.IAM{},
		})
	}

	client, err := minio.New(u.Host, &minio.Options{
		Creds:        creds,
		Secure:       u.Scheme == "https",
		Region:       opts.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}

	slog.Info("S3-compatible backend initialized", "bucket", opts.Bucket, "endpoint", u.Host)
	return &MinioBackend{
		bucket:  opts.Bucket,
		timeout: opts.Timeout,
		client:  client,
	}, nil
}

// Exists checks the key with a StatObject call.
func (b *MinioBackend) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := opContext(ctx, b.timeout)
	defer cancel()

	_, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isMinioNotFound(err) {
			return false, nil
		}
		slog.Error("StatObject failed", "bucket", b.bucket, "key", key, "error", err)
		return false, fmt.Errorf("%w: checking object: %w", cacheerr.ErrBackendUnavailable, err)
	}
	return true, nil
}

// Put streams the reader to the key. minio-go switches to multipart upload
// on its own when size is SizeUnknown (-1), reading part-sized chunks.
func (b *MinioBackend) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	ctx, cancel := opContext(ctx, b.timeout)
	defer cancel()

	_, err := b.client.PutObject(ctx, b.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		slog.Error("PutObject failed", "bucket", b.bucket, "key", key, "error", err)
		return fmt.Errorf("%w: uploading object: %w", cacheerr.ErrBackendUnavailable, err)
	}
	return nil
}

// Get returns the object body as a stream. minio's GetObject is lazy, so a
// StatObject runs first to surface NotFound at call time rather than on the
// first read.
func (b *MinioBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx, cancel := opContext(ctx, b.timeout)

	_, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		cancel()
		if isMinioNotFound(err) {
			return nil, fmt.Errorf("%w: %s", cacheerr.ErrNotFound, key)
		}
		slog.Error("StatObject failed", "bucket", b.bucket, "key", key, "error", err)
		return nil, fmt.Errorf("%w: checking object: %w", cacheerr.ErrBackendUnavailable, err)
	}

	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		cancel()
		slog.Error("GetObject failed", "bucket", b.bucket, "key", key, "error", err)
		return nil, fmt.Errorf("%w: getting object: %w", cacheerr.ErrBackendUnavailable, err)
	}
	return &cancelReadCloser{ReadCloser: obj, cancel: cancel}, nil
}

// Ping verifies the configured bucket exists and is reachable.
func (b *MinioBackend) Ping(ctx context.Context) error {
	ctx, cancel := opContext(ctx, b.timeout)
	defer cancel()

	ok, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("%w: bucket %q unreachable: %w", cacheerr.ErrBackendUnavailable, b.bucket, err)
	}
	if !ok {
		return fmt.Errorf("%w: bucket %q does not exist", cacheerr.ErrBackendUnavailable, b.bucket)
	}
	return nil
}

// isMinioNotFound checks if a minio error is a 404/NoSuchKey error.
func isMinioNotFound(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.StatusCode == 404 {
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "does not exist")
}

// Ensure MinioBackend implements Backend at compile time.
var _ Backend = (*MinioBackend)(nil)
