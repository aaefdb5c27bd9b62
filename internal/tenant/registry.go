// Package tenant defines the authorization principals and the process-wide
// registry resolving bearer tokens to them.
package tenant

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sort"

	"github.com/nxcache/nxcache/internal/config"
	"github.com/nxcache/nxcache/internal/storage"
)

// Tenant is an authorization principal: a bearer token bound to a storage
// backend and a key prefix.
type Tenant struct {
	// Name is the unique, human-readable tenant name.
	Name string
	// Backend is the logical name of the storage backend this tenant uses.
	Backend string
	// Prefix is the canonicalized key prefix ("" or "/..." without a
	// trailing slash).
	Prefix string
	// Token is the bearer secret.
	Token string
}

// Registry is the immutable token → tenant and backend-name → adapter map.
// Built once at startup before the listener binds, shared by reference
// across all requests, never mutated afterward. No locks are needed.
type Registry struct {
	tenants  []Tenant
	backends map[string]storage.Backend
}

// NewRegistry builds a Registry from the resolved tenant configuration and
// the live adapters, keyed by backend logical name. Every tenant must
// reference a present adapter.
func NewRegistry(tenants []config.TenantConfig, backends map[string]storage.Backend) (*Registry, error) {
	r := &Registry{
		tenants:  make([]Tenant, 0, len(tenants)),
		backends: backends,
	}
	for _, t := range tenants {
		if _, ok := backends[t.Backend]; !ok {
			return nil, fmt.Errorf("tenant %q references missing backend %q", t.Name, t.Backend)
		}
		r.tenants = append(r.tenants, Tenant{
			Name:    t.Name,
			Backend: t.Backend,
			Prefix:  t.Prefix,
			Token:   t.Token,
		})
	}
	return r, nil
}

// Lookup resolves a candidate bearer token to its tenant, or nil. The
// candidate is compared against every configured token with a
// constant-time byte equality; the walk never stops early, so the time
// spent does not depend on which token (if any) matched.
func (r *Registry) Lookup(candidate string) *Tenant {
	cb := []byte(candidate)
	var match *Tenant
	for i := range r.tenants {
		if subtle.ConstantTimeCompare(cb, []byte(r.tenants[i].Token)) == 1 && match == nil {
			match = &r.tenants[i]
		}
	}
	return match
}

// Backend returns the live adapter for a backend logical name, or nil.
func (r *Registry) Backend(name string) storage.Backend {
	return r.backends[name]
}

// TenantNames returns the configured tenant names, sorted. Used for
// startup logs.
func (r *Registry) TenantNames() []string {
	names := make([]string, 0, len(r.tenants))
	for _, t := range r.tenants {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names
}

// BackendNames returns the configured backend names, sorted.
func (r *Registry) BackendNames() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PingAll probes every backend and returns the first failure. Called once
// during startup as a fail-fast connectivity gate.
func (r *Registry) PingAll(ctx context.Context) error {
	for _, name := range r.BackendNames() {
		if err := r.backends[name].Ping(ctx); err != nil {
			return fmt.Errorf("backend %q: %w", name, err)
		}
	}
	return nil
}
