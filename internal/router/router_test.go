package router

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/nxcache/nxcache/internal/config"
	cacheerr "github.com/nxcache/nxcache/internal/errors"
	"github.com/nxcache/nxcache/internal/storage"
	"github.com/nxcache/nxcache/internal/tenant"
)

func TestStorageKey(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		hash   string
		want   string
	}{
		{"no prefix", "", "abc123", "abc123"},
		{"root prefix", "/", "abc123", "abc123"},
		{"single segment", "/ci", "abc123", "ci/abc123"},
		{"nested segments", "/team1/subteam", "abc123", "team1/subteam/abc123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StorageKey(tt.prefix, tt.hash)
			if got != tt.want {
				t.Errorf("StorageKey(%q, %q) = %q, want %q", tt.prefix, tt.hash, got, tt.want)
			}
		})
	}
}

func newTestRouter(t *testing.T) (*Router, *storage.MemoryBackend, *tenant.Tenant, *tenant.Tenant) {
	t.Helper()

	backend := storage.NewMemoryBackend()
	registry, err := tenant.NewRegistry(
		[]config.TenantConfig{
			{Name: "team-a", Backend: "primary", Prefix: "/team-a", Token: "token-a"},
			{Name: "team-b", Backend: "primary", Prefix: "/team-b", Token: "token-b"},
		},
		map[string]storage.Backend{"primary": backend},
	)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	return New(registry), backend, registry.Lookup("token-a"), registry.Lookup("token-b")
}

func TestPutGetRoundTrip(t *testing.T) {
	rt, _, tenantA, _ := newTestRouter(t)
	ctx := context.Background()

	content := "artifact payload"
	err := rt.Put(ctx, tenantA, "abc123", strings.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	body, err := rt.Get(ctx, tenantA, "abc123")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != content {
		t.Errorf("data = %q, want %q", string(data), content)
	}
}

func TestPutRefusesOverwrite(t *testing.T) {
	rt, _, tenantA, _ := newTestRouter(t)
	ctx := context.Background()

	if err := rt.Put(ctx, tenantA, "abc123", strings.NewReader("Hello"), 5); err != nil {
		t.Fatalf("first Put failed: %v", err)
	}

	err := rt.Put(ctx, tenantA, "abc123", strings.NewReader("Goodbye"), 7)
	if !errors.Is(err, cacheerr.ErrAlreadyExists) {
		t.Fatalf("second Put = %v, want ErrAlreadyExists", err)
	}

	// The original payload must be untouched.
	body, err := rt.Get(ctx, tenantA, "abc123")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer body.Close()
	data, _ := io.ReadAll(body)
	if string(data) != "Hello" {
		t.Errorf("stored data = %q, want the original %q", string(data), "Hello")
	}
}

func TestNamespaceIsolation(t *testing.T) {
	rt, backend, tenantA, tenantB := newTestRouter(t)
	ctx := context.Background()

	if err := rt.Put(ctx, tenantA, "abc123", strings.NewReader("A's data"), 8); err != nil {
		t.Fatalf("Put for team-a failed: %v", err)
	}

	// Same hash, different tenant: a miss, and the write succeeds.
	if _, err := rt.Get(ctx, tenantB, "abc123"); !errors.Is(err, cacheerr.ErrNotFound) {
		t.Fatalf("Get for team-b = %v, want ErrNotFound", err)
	}
	if err := rt.Put(ctx, tenantB, "abc123", strings.NewReader("B's data"), 8); err != nil {
		t.Fatalf("Put for team-b failed: %v", err)
	}

	// Both live side by side under distinct keys.
	if backend.Len() != 2 {
		t.Errorf("stored objects = %d, want 2", backend.Len())
	}

	body, err := rt.Get(ctx, tenantA, "abc123")
	if err != nil {
		t.Fatalf("Get for team-a failed: %v", err)
	}
	defer body.Close()
	data, _ := io.ReadAll(body)
	if string(data) != "A's data" {
		t.Errorf("team-a data = %q, want %q", string(data), "A's data")
	}
}

func TestExists(t *testing.T) {
	rt, _, tenantA, tenantB := newTestRouter(t)
	ctx := context.Background()

	ok, err := rt.Exists(ctx, tenantA, "abc123")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if ok {
		t.Error("Exists should be false before Put")
	}

	if err := rt.Put(ctx, tenantA, "abc123", bytes.NewReader([]byte("x")), 1); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	ok, err = rt.Exists(ctx, tenantA, "abc123")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !ok {
		t.Error("Exists should be true after Put")
	}

	// Invisible from the other namespace.
	ok, err = rt.Exists(ctx, tenantB, "abc123")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if ok {
		t.Error("Exists should be false for the other tenant")
	}
}

func TestRootPrefixSharesRootNamespace(t *testing.T) {
	// The canonical root prefix "/" strips to nothing, so a tenant carrying
	// it addresses the same keys as a tenant with no prefix at all.
	backend := storage.NewMemoryBackend()
	registry, err := tenant.NewRegistry(
		[]config.TenantConfig{
			{Name: "root", Backend: "primary", Prefix: "/", Token: "token-root"},
			{Name: "bare", Backend: "primary", Prefix: "", Token: "token-bare"},
		},
		map[string]storage.Backend{"primary": backend},
	)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	rt := New(registry)
	ctx := context.Background()

	if err := rt.Put(ctx, registry.Lookup("token-root"), "abc123", strings.NewReader("root data"), 9); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	body, err := rt.Get(ctx, registry.Lookup("token-bare"), "abc123")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer body.Close()
	data, _ := io.ReadAll(body)
	if string(data) != "root data" {
		t.Errorf("data = %q, want %q", string(data), "root data")
	}

	// One object, stored under the bare hash.
	if backend.Len() != 1 {
		t.Errorf("stored objects = %d, want 1", backend.Len())
	}
	if ok, _ := backend.Exists(ctx, "abc123"); !ok {
		t.Error("object should be stored under the bare hash key")
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	rt, _, tenantA, _ := newTestRouter(t)

	_, err := rt.Get(context.Background(), tenantA, "nope")
	if !errors.Is(err, cacheerr.ErrNotFound) {
		t.Fatalf("Get = %v, want ErrNotFound", err)
	}
}

func TestUnknownSizeUpload(t *testing.T) {
	rt, _, tenantA, _ := newTestRouter(t)
	ctx := context.Background()

	content := strings.Repeat("chunk", 100)
	err := rt.Put(ctx, tenantA, "streamed", strings.NewReader(content), storage.SizeUnknown)
	if err != nil {
		t.Fatalf("Put with unknown size failed: %v", err)
	}

	body, err := rt.Get(ctx, tenantA, "streamed")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer body.Close()
	data, _ := io.ReadAll(body)
	if string(data) != content {
		t.Errorf("data length = %d, want %d", len(data), len(content))
	}
}
