// Package bridge wires the Tenant Registry, Worker Registry, Session Layer,
// Invocation Router, Authenticator, Admin Facet, and HTTP Surface into one
// running process. It holds no process-wide singletons: cmd/server builds
// exactly one Bridge per process and everything else is reached through it.
package bridge

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridianlabs/toolbridge/internal/admin"
	"github.com/meridianlabs/toolbridge/internal/apierr"
	"github.com/meridianlabs/toolbridge/internal/auth"
	"github.com/meridianlabs/toolbridge/internal/config"
	"github.com/meridianlabs/toolbridge/internal/httpapi"
	"github.com/meridianlabs/toolbridge/internal/router"
	"github.com/meridianlabs/toolbridge/internal/session"
	"github.com/meridianlabs/toolbridge/internal/tenant"
	"github.com/meridianlabs/toolbridge/internal/workerreg"
)

// ShutdownGrace is how long Shutdown waits, after failing pending
// invocations, for in-flight handlers to write their responses (less if its
// ctx ends first), mirroring the teacher's gRPC GracefulStop-with-timeout
// pattern.
const ShutdownGrace = 2 * time.Second

// Bridge is the fully wired set of C1-C8 components for one process.
type Bridge struct {
	Tenants *tenant.Registry
	Workers *workerreg.Registry
	Router  *router.Router
	Manager *session.Manager
	Authr   *auth.Authenticator
	Facet   *admin.Facet
	HTTP    *httpapi.Server

	logger *slog.Logger
}

// auditEvents adapts session connect/disconnect notifications into
// structured log lines; the admin facet reads current state straight off the
// Worker Registry, so it needs no separate event feed.
type auditEvents struct {
	logger *slog.Logger
}

func (a auditEvents) OnConnect(workerID, sessionID string) {
	a.logger.Info("worker connected", "worker_id", workerID, "session_id", sessionID)
}

func (a auditEvents) OnDisconnect(workerID, sessionID string) {
	a.logger.Info("worker disconnected", "worker_id", workerID, "session_id", sessionID)
}

// New builds a Bridge from a validated configuration root. If no admin
// token is configured, one is generated and logged, per spec §6
// ("optional — if absent, a random one is generated and logged").
func New(cfg *config.Root, logger *slog.Logger) (*Bridge, error) {
	if cfg.Server.Admin.AdminToken == "" {
		token, err := generateAdminToken()
		if err != nil {
			return nil, fmt.Errorf("generating admin token: %w", err)
		}
		cfg.Server.Admin.AdminToken = token
		logger.Info("no admin token configured, generated one", "admin_token", token)
	}

	tenants, err := tenant.New(cfg.Tenants(), cfg.Server.Admin.AdminToken)
	if err != nil {
		return nil, err
	}

	workers := workerreg.New()

	// The Manager needs the Router to fail pending invocations on disconnect;
	// the Router needs the Manager as a SessionLookup. Break the cycle with a
	// post-construction wire-up, same as internal/session's own tests do.
	mgr := session.NewManager(workers, nil, tenants.WorkerAuthToken(), logger)
	r := router.New(workers, mgr)
	mgr.SetRouter(r)
	mgr.SetEventHandler(auditEvents{logger: logger})

	authr := auth.New(tenants, cfg.Server.Admin.AdminToken)
	facet := admin.New(cfg.Server.Admin.AdminToken, tenants, workers)

	httpServer := httpapi.New(tenants, workers, r, authr, facet, mgr, logger, "Toolbridge", cfg.Server.HTTP.PublicURL)

	return &Bridge{
		Tenants: tenants,
		Workers: workers,
		Router:  r,
		Manager: mgr,
		Authr:   authr,
		Facet:   facet,
		HTTP:    httpServer,
		logger:  logger,
	}, nil
}

// generateAdminToken returns a 64-character hex token from a 32-byte
// crypto/rand read, comfortably clearing config.Validate's 32-character
// minimum for the admin token.
func generateAdminToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// LogHandler wraps base so every emitted record is also mirrored into the
// admin facet's recent-log broker, letting /logs/events tail the same stream
// operators see on stderr.
func (b *Bridge) LogHandler(base slog.Handler) slog.Handler {
	return admin.NewBroadcastHandler(base, b.Facet.Logs())
}

// Shutdown closes every open worker session and fails every pending
// invocation, per the shutdown sequence the teacher's coordinator follows for
// its gRPC server: cancel first, then bound the wait. It does not stop the
// HTTP listener; cmd/server shuts the http.Server down before calling it.
func (b *Bridge) Shutdown(ctx context.Context) {
	b.Manager.Shutdown()
	b.Router.FailAll(apierr.ErrServerShutdown)

	select {
	case <-ctx.Done():
	case <-time.After(ShutdownGrace):
	}
}
