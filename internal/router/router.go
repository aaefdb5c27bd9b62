// Package router maps tenant-scoped cache operations onto the tenant's
// storage backend, applying the namespace prefix and the write-once rule.
package router

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	cacheerr "github.com/nxcache/nxcache/internal/errors"
	"github.com/nxcache/nxcache/internal/metrics"
	"github.com/nxcache/nxcache/internal/storage"
	"github.com/nxcache/nxcache/internal/tenant"
)

// Router dispatches cache operations to the calling tenant's backend.
// Stateless and safe for concurrent use.
type Router struct {
	registry *tenant.Registry
}

// New creates a Router over the given registry.
func New(registry *tenant.Registry) *Router {
	return &Router{registry: registry}
}

// StorageKey computes the backend object key for a tenant prefix and hash.
// The prefix arrives normalized ("" or "/segment..."); the leading slash is
// dropped so keys never start with "/", which several S3-compatible
// services treat as a distinct, surprising path segment. The root prefix
// "/" strips down to nothing and behaves like no prefix at all.
func StorageKey(prefix, hash string) string {
	p := strings.TrimPrefix(prefix, "/")
	if p == "" {
		return hash
	}
	return p + "/" + hash
}

// backend resolves the tenant's adapter. The registry validated the
// reference at startup, so a miss here is a programming error.
func (rt *Router) backend(t *tenant.Tenant) (storage.Backend, error) {
	b := rt.registry.Backend(t.Backend)
	if b == nil {
		return nil, fmt.Errorf("%w: no backend %q for tenant %q", cacheerr.ErrBackendUnavailable, t.Backend, t.Name)
	}
	return b, nil
}

// Exists reports whether the artifact is stored in the tenant's namespace.
func (rt *Router) Exists(ctx context.Context, t *tenant.Tenant, hash string) (bool, error) {
	b, err := rt.backend(t)
	if err != nil {
		return false, err
	}

	key := StorageKey(t.Prefix, hash)
	ok, err := b.Exists(ctx, key)
	observeBackendOp(t.Backend, "exists", err)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Put streams the artifact into the tenant's namespace. The key must be
// unoccupied: an existing artifact is never overwritten.
//
// The existence check and the upload are two separate backend calls, so two
// concurrent PUTs for the same hash can both pass the check and the later
// upload wins. Artifacts are content-addressed, making the two payloads
// identical in practice; object stores offer no cross-provider conditional
// write to close the window.
func (rt *Router) Put(ctx context.Context, t *tenant.Tenant, hash string, r io.Reader, size int64) error {
	b, err := rt.backend(t)
	if err != nil {
		return err
	}

	key := StorageKey(t.Prefix, hash)
	exists, err := b.Exists(ctx, key)
	observeBackendOp(t.Backend, "exists", err)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", cacheerr.ErrAlreadyExists, key)
	}

	err = b.Put(ctx, key, r, size)
	observeBackendOp(t.Backend, "put", err)
	if err != nil {
		return err
	}

	slog.Debug("artifact stored", "tenant", t.Name, "backend", t.Backend, "key", key)
	return nil
}

// Get returns the artifact body as a stream. The caller owns the returned
// ReadCloser.
func (rt *Router) Get(ctx context.Context, t *tenant.Tenant, hash string) (io.ReadCloser, error) {
	b, err := rt.backend(t)
	if err != nil {
		return nil, err
	}

	key := StorageKey(t.Prefix, hash)
	rc, err := b.Get(ctx, key)
	observeBackendOp(t.Backend, "get", err)
	if err != nil {
		return nil, err
	}
	return rc, nil
}

// observeBackendOp records one backend call outcome.
func observeBackendOp(backend, operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.BackendOperationsTotal.WithLabelValues(backend, operation, status).Inc()
}
