// Package admin implements the Admin Facet (C8): the admin cookie login
// flow, the dashboard data aggregation, and the recent-log SSE stream.
package admin

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/meridianlabs/toolbridge/internal/tenant"
	"github.com/meridianlabs/toolbridge/internal/workerreg"
)

const cookieName = "bridge_admin"

// Facet aggregates the state the admin dashboard needs: the tenant roster,
// the worker registry, process start time, and the recent-log broadcaster.
type Facet struct {
	adminToken string
	tenants    *tenant.Registry
	workers    *workerreg.Registry
	startedAt  time.Time
	logs       *LogBroker
}

// New constructs a Facet. adminToken must already be resolved (configured or
// randomly generated at startup); Facet never generates one itself.
func New(adminToken string, tenants *tenant.Registry, workers *workerreg.Registry) *Facet {
	return &Facet{
		adminToken: adminToken,
		tenants:    tenants,
		workers:    workers,
		startedAt:  time.Now(),
		logs:       NewLogBroker(),
	}
}

// Logs exposes the broker so the process logger can be wired to publish
// into it.
func (f *Facet) Logs() *LogBroker { return f.logs }

// cookieValue derives the admin session cookie value: SHA-256(admin token)
// truncated to 16 hex characters, per spec §4.8.
func cookieValue(adminToken string) string {
	sum := sha256.Sum256([]byte(adminToken))
	return hex.EncodeToString(sum[:])[:16]
}

// Login handles POST /login: a form-encoded adminToken compared in constant
// time against the configured admin token. On success it sets the admin
// session cookie and redirects to /admin.
func (f *Facet) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	submitted := r.FormValue("adminToken")
	if subtle.ConstantTimeCompare([]byte(submitted), []byte(f.adminToken)) != 1 {
		http.Error(w, "invalid admin token", http.StatusUnauthorized)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    cookieValue(f.adminToken),
		Path:     "/",
		MaxAge:   24 * 60 * 60,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
	http.Redirect(w, r, "/admin", http.StatusFound)
}

// Logout clears the admin session cookie and redirects to /login.
func (f *Facet) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
	http.Redirect(w, r, "/login", http.StatusFound)
}

// RequireAdmin is middleware re-deriving the expected cookie value from the
// configured admin token and comparing it to the request's cookie. onFail is
// invoked (without calling the wrapped handler) when the cookie is missing
// or wrong, so HTML and JSON/SSE routes can react differently.
func (f *Facet) RequireAdmin(onFail func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	expected := cookieValue(f.adminToken)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := r.Cookie(cookieName)
			if err != nil || subtle.ConstantTimeCompare([]byte(c.Value), []byte(expected)) != 1 {
				onFail(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WorkerSummary is one worker's row in a tenant card.
type WorkerSummary struct {
	IDPrefix  string
	Connected bool
	ToolCount int
}

// TenantCard is one tenant's section of the dashboard.
type TenantCard struct {
	Name            string
	TenantHash      string
	Workers         []WorkerSummary
	DescriptionJSON string
	DescriptionYAML string
}

// Dashboard is the full aggregate the dashboard template and the stats
// endpoint both render from.
type Dashboard struct {
	TenantCount          int
	ConnectedWorkerCount int
	DistinctToolCount    int
	Uptime               time.Duration
	Tenants              []TenantCard
}

// Snapshot aggregates current tenant/worker state into a Dashboard.
func (f *Facet) Snapshot() Dashboard {
	workers := f.workers.Snapshot()
	tenants := f.tenants.List()

	d := Dashboard{
		TenantCount: len(tenants),
		Uptime:      time.Since(f.startedAt),
	}

	distinctTools := make(map[string]struct{})
	for _, rec := range workers {
		if rec.State != workerreg.Connected {
			continue
		}
		d.ConnectedWorkerCount++
		for _, tool := range rec.Tools {
			distinctTools[tool.Name] = struct{}{}
		}
	}
	d.DistinctToolCount = len(distinctTools)

	for _, t := range tenants {
		card := TenantCard{
			Name:            t.Name,
			TenantHash:      tenant.TokenHash(t.BearerToken),
			DescriptionJSON: "/openapi/" + tenant.TokenHash(t.BearerToken) + "/json",
			DescriptionYAML: "/openapi/" + tenant.TokenHash(t.BearerToken) + "/yaml",
		}
		for _, rec := range workers {
			if !t.Admits(rec.WorkerToken) {
				continue
			}
			prefix := rec.WorkerID
			if len(prefix) > 8 {
				prefix = prefix[:8]
			}
			card.Workers = append(card.Workers, WorkerSummary{
				IDPrefix:  prefix,
				Connected: rec.State == workerreg.Connected,
				ToolCount: len(rec.Tools),
			})
		}
		d.Tenants = append(d.Tenants, card)
	}

	return d
}
