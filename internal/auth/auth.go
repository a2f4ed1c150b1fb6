// Package auth implements the Authenticator (C5): classifying an inbound
// bearer token into a tenant, the admin principal, or unauthenticated, and
// carrying the resolved tenant through the request context.
package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/meridianlabs/toolbridge/internal/apierr"
	"github.com/meridianlabs/toolbridge/internal/tenant"
)

// Principal is the result of a successful authentication.
type Principal struct {
	Tenant  *tenant.Tenant
	IsAdmin bool
}

// Authenticator classifies Authorization headers against the configured
// tenants and admin token.
type Authenticator struct {
	tenants    *tenant.Registry
	adminToken string
}

// New builds an Authenticator over the given Tenant Registry and admin token.
func New(tenants *tenant.Registry, adminToken string) *Authenticator {
	return &Authenticator{tenants: tenants, adminToken: adminToken}
}

// Authenticate classifies the Authorization header of r. A missing or
// malformed header yields ErrUnauthenticated; a well-formed but unrecognized
// token yields ErrForbidden.
func (a *Authenticator) Authenticate(r *http.Request) (Principal, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return Principal{}, apierr.ErrUnauthenticated
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" {
		return Principal{}, apierr.ErrUnauthenticated
	}

	if a.adminToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(a.adminToken)) == 1 {
		return Principal{IsAdmin: true}, nil
	}

	if t := a.tenants.ByToken(token); t != nil {
		return Principal{Tenant: t}, nil
	}

	return Principal{}, apierr.ErrForbidden
}

// TenantFromHash resolves a 16-hex tenant-hash to a Tenant, used by the
// unauthenticated description routes.
func (a *Authenticator) TenantFromHash(hash string) (*tenant.Tenant, bool) {
	t := a.tenants.ByHash(hash)
	return t, t != nil
}

type contextKey struct{ name string }

var tenantContextKey = contextKey{"tenant"}

// WithTenant attaches t to ctx for downstream handlers.
func WithTenant(ctx context.Context, t *tenant.Tenant) context.Context {
	return context.WithValue(ctx, tenantContextKey, t)
}

// TenantFromContext retrieves a tenant attached by WithTenant.
func TenantFromContext(ctx context.Context) (*tenant.Tenant, bool) {
	t, ok := ctx.Value(tenantContextKey).(*tenant.Tenant)
	return t, ok && t != nil
}

// RequireTenant is HTTP middleware enforcing tenant authentication on
// API routes (§7: TenantUnknown/Forbidden maps to 403 here, not 404).
func RequireTenant(authr *Authenticator, onError func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := authr.Authenticate(r)
			if err != nil {
				onError(w, r, err)
				return
			}
			if p.Tenant == nil {
				onError(w, r, apierr.ErrTenantUnknownAPI)
				return
			}
			ctx := WithTenant(r.Context(), p.Tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
