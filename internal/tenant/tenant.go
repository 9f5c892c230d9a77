// Package tenant binds a tenant identity to each request for the duration of
// processing. The identity travels on the context.Context, never a package
// global, and every persisted or logged record downstream is tagged with it.
package tenant

import (
	"context"
	"errors"
	"regexp"

	"github.com/clearfab/gateway/internal/faults"
)

// Default is the tenant applied when no other source resolves.
const Default = "default"

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)

// Context identifies the tenant (and optionally business unit) on whose
// behalf a request is processed.
type Context struct {
	TenantID     string `json:"tenant_id"`
	BusinessUnit string `json:"business_unit,omitempty"`
}

// ValidID performs the syntactic check on a tenant identifier.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

type contextKey string

const tenantCtxKey contextKey = "tenant_context"

// WithTenant installs the tenant context for the rest of the request chain.
func WithTenant(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, tenantCtxKey, tc)
}

// FromContext extracts the tenant context installed at ingress.
func FromContext(ctx context.Context) (Context, error) {
	tc, ok := ctx.Value(tenantCtxKey).(Context)
	if !ok || tc.TenantID == "" {
		return Context{}, errors.New("tenant context missing")
	}
	return tc, nil
}

// IDFromContext returns just the tenant id, or "" when unbound.
func IDFromContext(ctx context.Context) string {
	tc, err := FromContext(ctx)
	if err != nil {
		return ""
	}
	return tc.TenantID
}

// MustID returns the tenant id or a TenantInvalid fault; used by components
// that must never run without an ambient tenant.
func MustID(ctx context.Context) (string, error) {
	tc, err := FromContext(ctx)
	if err != nil {
		return "", faults.Wrap(faults.TenantInvalid, "no tenant bound to request", err)
	}
	return tc.TenantID, nil
}
