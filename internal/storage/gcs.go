// Google Cloud Storage backend.
//
// Credentials are resolved via Application Default Credentials
// (GOOGLE_APPLICATION_CREDENTIALS, gcloud auth, metadata server).
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	cacheerr "github.com/nxcache/nxcache/internal/errors"
)

// GCSOptions carries the resolved settings for one GCS backend.
type GCSOptions struct {
	Bucket string
	// Project is informational; the bucket handle does not need it.
	Project string
	// Timeout bounds each operation. Zero disables the bound.
	Timeout time.Duration
}

// GCSBackend implements Backend against a GCS bucket.
type GCSBackend struct {
	bucket  string
	timeout time.Duration
	client  *gcs.Client
}

// NewGCSBackend creates the GCS client with Application Default Credentials.
func NewGCSBackend(ctx context.Context, opts GCSOptions) (*GCSBackend, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}

	slog.Info("GCS backend initialized", "bucket", opts.Bucket, "project", opts.Project)
	return &GCSBackend{
		bucket:  opts.Bucket,
		timeout: opts.Timeout,
		client:  client,
	}, nil
}

// Exists checks the key via object attributes.
func (b *GCSBackend) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := opContext(ctx, b.timeout)
	defer cancel()

	_, err := b.client.Bucket(b.bucket).Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return false, nil
		}
		slog.Error("GCS Attrs failed", "bucket", b.bucket, "key", key, "error", err)
		return false, fmt.Errorf("%w: checking object in GCS: %w", cacheerr.ErrBackendUnavailable, err)
	}
	return true, nil
}

// Put streams the reader into a GCS object writer. The writer uploads in
// chunks as data arrives; the payload is never collected in memory. The
// size hint is unused, GCS resumable uploads handle unknown lengths.
func (b *GCSBackend) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	ctx, cancel := opContext(ctx, b.timeout)
	defer cancel()

	w := b.client.Bucket(b.bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		slog.Error("GCS upload failed", "bucket", b.bucket, "key", key, "error", err)
		return fmt.Errorf("%w: uploading to GCS: %w", cacheerr.ErrBackendUnavailable, err)
	}
	if err := w.Close(); err != nil {
		slog.Error("GCS upload finalize failed", "bucket", b.bucket, "key", key, "error", err)
		return fmt.Errorf("%w: finalizing GCS upload: %w", cacheerr.ErrBackendUnavailable, err)
	}
	return nil
}

// Get returns the object body as a stream.
func (b *GCSBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx, cancel := opContext(ctx, b.timeout)

	r, err := b.client.Bucket(b.bucket).Object(key).NewReader(ctx)
	if err != nil {
		cancel()
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", cacheerr.ErrNotFound, key)
		}
		slog.Error("GCS NewReader failed", "bucket", b.bucket, "key", key, "error", err)
		return nil, fmt.Errorf("%w: getting object from GCS: %w", cacheerr.ErrBackendUnavailable, err)
	}
	return &cancelReadCloser{ReadCloser: r, cancel: cancel}, nil
}

// Ping lists at most one object to verify bucket access.
func (b *GCSBackend) Ping(ctx context.Context) error {
	ctx, cancel := opContext(ctx, b.timeout)
	defer cancel()

	it := b.client.Bucket(b.bucket).Objects(ctx, &gcs.Query{Prefix: ""})
	if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return fmt.Errorf("%w: bucket %q unreachable: %w", cacheerr.ErrBackendUnavailable, b.bucket, err)
	}
	return nil
}

// Ensure GCSBackend implements Backend at compile time.
var _ Backend = (*GCSBackend)(nil)
