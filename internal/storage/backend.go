// Package storage defines the interface and implementations for nxcache's
// artifact storage layer.
//
// Every adapter maps its vendor-specific failures onto the three internal
// error kinds (NotFound, AlreadyExists, BackendUnavailable) so that nothing
// above this package ever sees an SDK error type.
package storage

import (
	"context"
	"io"
	"time"
)

// SizeUnknown is passed as the size hint when the payload length is not
// known up front (e.g. chunked transfer encoding). Adapters must then take
// a chunked or multipart upload path instead of a single PUT.
const SizeUnknown int64 = -1

// Backend is the uniform blob-store interface. Implementations provide the
// underlying storage mechanism (AWS S3, S3-compatible services, GCS, Azure
// Blob, in-memory). All methods must be safe for concurrent use.
//
// Backends do not enforce write-once semantics themselves; object stores
// overwrite on PUT. The write-once contract lives in the router.
type Backend interface {
	// Exists reports whether an object is stored at key. A missing object
	// is (false, nil); any other failure is ErrBackendUnavailable.
	Exists(ctx context.Context, key string) (bool, error)

	// Put streams the reader's content to key. The size hint, when not
	// SizeUnknown, allows a single-request upload. Implementations must not
	// buffer the whole payload in memory.
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// Get returns a single-pass stream of the object at key. The caller is
	// responsible for closing it. A missing object yields ErrNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Ping verifies connectivity to the configured bucket with a cheap
	// existence or list probe.
	Ping(ctx context.Context) error
}

// opContext derives a context bounded by the per-backend operation timeout.
// A zero timeout means no bound beyond the parent context.
func opContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// cancelReadCloser ties a download stream to its operation context: closing
// the stream releases the context, and the timeout keeps bounding the
// transfer while it is open.
type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
