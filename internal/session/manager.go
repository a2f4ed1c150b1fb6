package session

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/meridianlabs/toolbridge/internal/apierr"
	"github.com/meridianlabs/toolbridge/internal/router"
	"github.com/meridianlabs/toolbridge/internal/workerreg"
)

const (
	// HandshakeWindow bounds how long a session may stay Opened awaiting register.
	HandshakeWindow = 10 * time.Second
	// PingInterval is how often the server pings an Active session.
	PingInterval = 30 * time.Second
	// PongWait is how long the server waits for activity after a ping before closing.
	PongWait = 5 * time.Second
)

// EventHandler is notified of worker connect/disconnect transitions, used
// for audit logging.
type EventHandler interface {
	OnConnect(workerID, sessionID string)
	OnDisconnect(workerID, sessionID string)
}

// noopEvents discards all events; used when the caller doesn't care.
type noopEvents struct{}

func (noopEvents) OnConnect(string, string)    {}
func (noopEvents) OnDisconnect(string, string) {}

// Manager is the Session Layer: it accepts worker upgrades, demultiplexes
// messages, keeps sessions alive, and claims worker-ids on registration.
type Manager struct {
	workers   *workerreg.Registry
	router    *router.Router
	authToken string
	logger    *slog.Logger
	events    EventHandler
	upgrader  websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session Manager. authToken is the single
// worker-authentication token every register frame must present (spec §9
// open question 1: the first tenant's bearer token in the current design).
func NewManager(workers *workerreg.Registry, r *router.Router, authToken string, logger *slog.Logger) *Manager {
	return &Manager{
		workers:   workers,
		router:    r,
		authToken: authToken,
		logger:    logger,
		events:    noopEvents{},
		sessions:  make(map[string]*Session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// SetEventHandler installs the connect/disconnect event sink.
func (m *Manager) SetEventHandler(h EventHandler) {
	if h == nil {
		h = noopEvents{}
	}
	m.events = h
}

// SetRouter wires the Invocation Router after construction, breaking the
// Manager/Router constructor cycle (the Router needs the Manager as a
// SessionLookup; the Manager needs the Router to fail pending invocations
// on disconnect or claim-replacement).
func (m *Manager) SetRouter(r *router.Router) {
	m.router = r
}

// Lookup implements router.SessionLookup.
func (m *Manager) Lookup(sessionID string) (router.Sender, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// ActiveCount returns the number of currently Active sessions.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.State() == StateActive {
			n++
		}
	}
	return n
}

// ServeHTTP upgrades a worker connection and runs its session loop until
// close. The upgrade is rejected with 401 when no bearer is presented, per
// spec §4.3.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("session upgrade failed", "error", err)
		return
	}

	sess := newSession(uuid.NewString(), conn, m.logger)
	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	m.logger.Info("session opened", "session_id", sess.ID)
	m.runSession(sess)
}

// Shutdown closes every open session with a normal-close frame, as required
// by spec §5's shutdown sequence.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()

	for _, s := range all {
		s.sendError("SERVER_SHUTDOWN", "server shutting down", "")
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutdown"),
			time.Now().Add(time.Second))
		m.closeSession(s, apierr.ErrServerShutdown)
	}
}

// closeSession performs the full bookkeeping for an ordinary session close:
// mark the worker disconnected (guarded by session-id), fail pending
// invocations routed through it, emit a disconnect event, then close the
// transport. Guarded so a session that has already been superseded by a
// claim-win doesn't re-fire disconnect bookkeeping for the new session.
func (m *Manager) closeSession(s *Session, reason *apierr.Error) {
	workerID := s.WorkerID()
	if workerID != "" && m.workers.MarkDisconnected(workerID, s.ID) {
		m.router.FailSession(s.ID, reason)
		m.events.OnDisconnect(workerID, s.ID)
		m.logger.Info("worker disconnected", "worker_id", workerID, "session_id", s.ID, "reason", reason.Code)
	}

	s.Close()

	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.mu.Unlock()
}
