// Package handlers implements the HTTP endpoints of the cache protocol.
package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nxcache/nxcache/internal/auth"
	cacheerr "github.com/nxcache/nxcache/internal/errors"
	"github.com/nxcache/nxcache/internal/metrics"
	"github.com/nxcache/nxcache/internal/router"
	"github.com/nxcache/nxcache/internal/storage"
)

// CacheHandler serves the artifact endpoints. All storage access goes
// through the router, which scopes every key to the calling tenant.
type CacheHandler struct {
	router *router.Router
}

// NewCacheHandler creates a CacheHandler.
func NewCacheHandler(rt *router.Router) *CacheHandler {
	return &CacheHandler{router: rt}
}

// PutArtifact handles PUT /v1/cache/{hash}. The body streams straight
// through to the backend; nothing is spooled locally. A key that is already
// occupied is never overwritten.
func (h *CacheHandler) PutArtifact(w http.ResponseWriter, r *http.Request) {
	t := auth.TenantFromContext(r.Context())
	hash := chi.URLParam(r, "hash")

	if !ValidHash(hash) {
		slog.Warn("rejecting invalid hash", "tenant", t.Name)
		writeError(w, cacheerr.ErrBadRequest)
		return
	}

	// net/http reports -1 when no Content-Length was sent (chunked bodies);
	// that maps onto the adapters' unknown-size streaming path.
	size := r.ContentLength
	if size < 0 {
		size = storage.SizeUnknown
	}

	if err := h.router.Put(r.Context(), t, hash, r.Body, size); err != nil {
		if errors.Is(err, cacheerr.ErrAlreadyExists) {
			slog.Debug("upload conflict", "tenant", t.Name, "hash", hash)
			metrics.CacheOperationsTotal.WithLabelValues("put", "conflict").Inc()
			writeError(w, cacheerr.ErrAlreadyExists)
			return
		}
		slog.Error("upload failed", "tenant", t.Name, "hash", hash, "error", err)
		metrics.CacheOperationsTotal.WithLabelValues("put", "error").Inc()
		writeError(w, cacheerr.ErrBackendUnavailable)
		return
	}

	slog.Info("artifact uploaded", "tenant", t.Name, "hash", hash, "size", r.ContentLength)
	metrics.CacheOperationsTotal.WithLabelValues("put", "success").Inc()
	w.WriteHeader(http.StatusOK)
}

// GetArtifact handles GET /v1/cache/{hash}. The backend stream is copied
// directly to the response; nothing is spooled locally.
func (h *CacheHandler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	t := auth.TenantFromContext(r.Context())
	hash := chi.URLParam(r, "hash")

	if !ValidHash(hash) {
		slog.Warn("rejecting invalid hash", "tenant", t.Name)
		writeError(w, cacheerr.ErrBadRequest)
		return
	}

	body, err := h.router.Get(r.Context(), t, hash)
	if err != nil {
		if errors.Is(err, cacheerr.ErrNotFound) {
			slog.Debug("cache miss", "tenant", t.Name, "hash", hash)
			metrics.CacheOperationsTotal.WithLabelValues("get", "miss").Inc()
			writeError(w, cacheerr.ErrNotFound)
			return
		}
		slog.Error("download failed", "tenant", t.Name, "hash", hash, "error", err)
		metrics.CacheOperationsTotal.WithLabelValues("get", "error").Inc()
		writeError(w, cacheerr.ErrBackendUnavailable)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		// The status line is already on the wire; all that remains is to
		// stop and let the client see the truncated body.
		slog.Error("streaming response failed", "tenant", t.Name, "hash", hash, "error", err)
		return
	}

	slog.Debug("cache hit", "tenant", t.Name, "hash", hash)
	metrics.CacheOperationsTotal.WithLabelValues("get", "hit").Inc()
}

// writeError writes a CacheError as a plain-text response with its fixed
// canonical body.
func writeError(w http.ResponseWriter, e *cacheerr.CacheError) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(e.HTTPStatus)
	_, _ = w.Write([]byte(e.Message))
}
