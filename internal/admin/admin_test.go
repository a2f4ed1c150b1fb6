package admin_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/meridianlabs/toolbridge/internal/admin"
	"github.com/meridianlabs/toolbridge/internal/tenant"
	"github.com/meridianlabs/toolbridge/internal/wire"
	"github.com/meridianlabs/toolbridge/internal/workerreg"
)

const adminToken = "01234567890123456789012345678901"

func newFacet(t *testing.T) *admin.Facet {
	t.Helper()
	tenants, err := tenant.New([]tenant.Tenant{
		{Name: "acme", BearerToken: "acme-token", AllowedClientTokens: map[string]struct{}{"w-token": {}}},
	}, adminToken)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	workers := workerreg.New()
	workers.Upsert(workerreg.IDFromToken("w-token"), "w-token", []wire.ToolSchema{{Name: "echo"}}, "sess1")
	return admin.New(adminToken, tenants, workers)
}

func TestLogin_WrongToken(t *testing.T) {
	f := newFacet(t)
	form := url.Values{"adminToken": {"wrong"}}
	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	f.Login(rec, r)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestLogin_CorrectToken_SetsCookieAndRedirects(t *testing.T) {
	f := newFacet(t)
	form := url.Values{"adminToken": {adminToken}}
	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	f.Login(rec, r)
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	if !cookies[0].HttpOnly || cookies[0].SameSite != http.SameSiteStrictMode {
		t.Fatalf("expected HttpOnly+SameSiteStrict cookie, got %+v", cookies[0])
	}
}

func TestRequireAdmin_RejectsMissingCookie(t *testing.T) {
	f := newFacet(t)
	failed := false
	mw := f.RequireAdmin(func(w http.ResponseWriter, r *http.Request) {
		failed = true
		w.WriteHeader(http.StatusUnauthorized)
	})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run without a valid cookie")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))
	if !failed {
		t.Fatal("expected onFail to run")
	}
}

func TestRequireAdmin_AcceptsValidCookieFromLogin(t *testing.T) {
	f := newFacet(t)

	form := url.Values{"adminToken": {adminToken}}
	loginReq := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	loginReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	loginRec := httptest.NewRecorder()
	f.Login(loginRec, loginReq)
	cookie := loginRec.Result().Cookies()[0]

	ran := false
	mw := f.RequireAdmin(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("onFail should not run for a valid cookie")
	})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ran = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(cookie)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if !ran {
		t.Fatal("expected handler to run with a valid cookie")
	}
}

func TestSnapshot_AggregatesTenantsAndWorkers(t *testing.T) {
	f := newFacet(t)
	d := f.Snapshot()

	if d.TenantCount != 1 {
		t.Fatalf("expected 1 tenant, got %d", d.TenantCount)
	}
	if d.ConnectedWorkerCount != 1 {
		t.Fatalf("expected 1 connected worker, got %d", d.ConnectedWorkerCount)
	}
	if d.DistinctToolCount != 1 {
		t.Fatalf("expected 1 distinct tool, got %d", d.DistinctToolCount)
	}
	if len(d.Tenants) != 1 || len(d.Tenants[0].Workers) != 1 {
		t.Fatalf("expected one tenant card with one worker, got %+v", d.Tenants)
	}
}

func TestLogBroker_PublishReachesSubscriber(t *testing.T) {
	b := admin.NewLogBroker()
	srv := httptest.NewServer(http.HandlerFunc(b.ServeSSE))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	// Give the subscriber loop a moment to register before publishing.
	time.Sleep(20 * time.Millisecond)
	b.Publish("hello")

	buf := make([]byte, 256)
	n, err := resp.Body.Read(buf)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if !strings.Contains(string(buf[:n]), "hello") {
		t.Fatalf("expected published line in SSE stream, got %q", string(buf[:n]))
	}
}
