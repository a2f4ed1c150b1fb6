// Package tenant holds the Tenant Registry: isolated API namespaces with
// independent credentials and ACLs over the shared worker pool.
package tenant

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Tenant is one configured API namespace.
type Tenant struct {
	Name                string
	Description         string
	BearerToken         string
	AllowedClientTokens map[string]struct{}
}

// Admits reports whether workerToken is admitted into this tenant.
func (t Tenant) Admits(workerToken string) bool {
	_, ok := t.AllowedClientTokens[workerToken]
	return ok
}

// TokenHash returns the first 16 hex characters of SHA-256(bearer token),
// used as a public-safe URL segment for description routes.
func TokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])[:16]
}

// Registry indexes configured tenants by bearer token, by hash, and by the
// worker tokens admitted into each. It is built once at startup and never
// mutated, so reads take no lock.
type Registry struct {
	byToken map[string]*Tenant
	byHash  map[string]*Tenant
	ordered []*Tenant

	// admitting maps a worker token to the set of tenants that admit it.
	admitting map[string][]*Tenant
}

// Error reports a fatal configuration problem detected while building a Registry.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "tenant config error: " + e.Reason }

// New validates and builds a Registry from the given tenants and the admin
// token. It returns a *Error when tenants are empty, any two tokens among
// {tenant bearer tokens, admin token} collide, or a tenant's hash collides
// with another tenant's hash.
func New(tenants []Tenant, adminToken string) (*Registry, error) {
	if len(tenants) == 0 {
		return nil, &Error{Reason: "at least one tenant must be configured"}
	}

	seenTokens := make(map[string]string, len(tenants)+1)
	if adminToken != "" {
		seenTokens[adminToken] = "admin"
	}

	r := &Registry{
		byToken:   make(map[string]*Tenant, len(tenants)),
		byHash:    make(map[string]*Tenant, len(tenants)),
		admitting: make(map[string][]*Tenant),
	}

	for i := range tenants {
		t := tenants[i]
		if t.Name == "" {
			return nil, &Error{Reason: "tenant name must not be empty"}
		}
		if owner, dup := seenTokens[t.BearerToken]; dup {
			return nil, &Error{Reason: fmt.Sprintf("bearer token collides between %q and tenant %q", owner, t.Name)}
		}
		seenTokens[t.BearerToken] = t.Name

		hash := TokenHash(t.BearerToken)
		if other, dup := r.byHash[hash]; dup {
			return nil, &Error{Reason: fmt.Sprintf("token hash collision between tenants %q and %q", other.Name, t.Name)}
		}

		tp := &t
		r.byToken[t.BearerToken] = tp
		r.byHash[hash] = tp
		r.ordered = append(r.ordered, tp)

		for workerToken := range t.AllowedClientTokens {
			r.admitting[workerToken] = append(r.admitting[workerToken], tp)
		}
	}

	return r, nil
}

// ByToken returns the tenant whose bearer token equals t, or nil. A plain
// map lookup: tenant bearer tokens are long-lived API credentials compared
// against an attacker-controlled header on every request, so the dominant
// concern is O(1) lookup, not per-tenant timing-attack resistance (that
// matters for the single admin token compared in internal/auth).
func (r *Registry) ByToken(t string) *Tenant {
	return r.byToken[t]
}

// ByHash returns the tenant whose token-hash equals h, or nil.
func (r *Registry) ByHash(h string) *Tenant {
	return r.byHash[h]
}

// AdmittingWorker returns every tenant that admits workerToken.
func (r *Registry) AdmittingWorker(workerToken string) []*Tenant {
	return r.admitting[workerToken]
}

// List returns tenants in the stable order they were configured.
func (r *Registry) List() []*Tenant {
	out := make([]*Tenant, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// WorkerAuthToken returns the bearer token used to authenticate session
// upgrades. Per spec §9 open question 1, this is the first configured
// tenant's bearer token (workers are effectively globally authenticated).
func (r *Registry) WorkerAuthToken() string {
	if len(r.ordered) == 0 {
		return ""
	}
	return r.ordered[0].BearerToken
}
