package auth

import (
	"context"

	"github.com/nxcache/nxcache/internal/tenant"
)

// contextKey is a private type for context values set by this package.
type contextKey int

const tenantKey contextKey = iota

// contextWithTenant returns a child context carrying the authenticated tenant.
func contextWithTenant(ctx context.Context, t *tenant.Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, t)
}

// TenantFromContext returns the authenticated tenant set by Middleware, or
// nil when the request did not pass through it.
func TenantFromContext(ctx context.Context) *tenant.Tenant {
	t, _ := ctx.Value(tenantKey).(*tenant.Tenant)
	return t
}
