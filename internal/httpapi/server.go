// Package httpapi implements the HTTP Surface (C6): tool invocation, the
// unauthenticated description routes, the admin login/dashboard flow, and
// CORS for browser-based callers.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/meridianlabs/toolbridge/internal/admin"
	"github.com/meridianlabs/toolbridge/internal/auth"
	"github.com/meridianlabs/toolbridge/internal/router"
	"github.com/meridianlabs/toolbridge/internal/tenant"
	"github.com/meridianlabs/toolbridge/internal/workerreg"
)

// Server wires the Tenant Registry, Worker Registry, Router, Authenticator,
// and Admin Facet into one chi.Mux. It holds no process-wide singletons:
// every dependency is passed in by handle at construction.
type Server struct {
	mux *chi.Mux

	tenants   *tenant.Registry
	workers   *workerreg.Registry
	invoker   *router.Router
	authr     *auth.Authenticator
	facet     *admin.Facet
	logger    *slog.Logger
	baseTitle string
	publicURL string
}

// SessionUpgrader is implemented by *session.Manager; declared here to
// avoid an import cycle between httpapi and session.
type SessionUpgrader interface {
	http.Handler
}

// New builds the HTTP Surface. sessionUpgrader handles the worker session
// upgrade endpoint (spec §4.3 requires bearer-gated upgrades but leaves the
// path unspecified; this module mounts it at /api/workers/session).
func New(
	tenants *tenant.Registry,
	workers *workerreg.Registry,
	invoker *router.Router,
	authr *auth.Authenticator,
	facet *admin.Facet,
	sessionUpgrader SessionUpgrader,
	logger *slog.Logger,
	baseTitle string,
	publicURL string,
) *Server {
	s := &Server{
		tenants:   tenants,
		workers:   workers,
		invoker:   invoker,
		authr:     authr,
		facet:     facet,
		logger:    logger,
		baseTitle: baseTitle,
		publicURL: publicURL,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.slogLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api/tools/{name}", func(r chi.Router) {
		r.Use(auth.RequireTenant(authr, s.writeAuthError))
		r.Post("/", s.handleToolCall)
	})

	r.Get("/openapi/{hash}/json", s.handleDescriptionJSON)
	r.Get("/openapi/{hash}/yaml", s.handleDescriptionYAML)

	r.Get("/login", s.handleLoginForm)
	r.Post("/login", facet.Login)
	r.Get("/logout", facet.Logout)

	r.Group(func(r chi.Router) {
		r.Use(facet.RequireAdmin(redirectToLogin))
		r.Get("/admin", s.handleDashboard)
		r.Get("/api/admin/stats", s.handleStats)
		r.Get("/logs/events", facet.Logs().ServeSSE)
	})

	if sessionUpgrader != nil {
		r.Handle("/api/workers/session", sessionUpgrader)
	}

	s.mux = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.mux }

func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/login", http.StatusFound)
}

// cors implements the fixed CORS policy of spec §6: any origin, GET/POST/
// OPTIONS, Authorization and Content-Type headers, immediate 200 on preflight.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// slogLogger replaces chi's default stdlib-log middleware.Logger with one
// writing structured request summaries through the configured slog logger.
func (s *Server) slogLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
