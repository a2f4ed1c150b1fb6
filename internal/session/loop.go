package session

import (
	"time"

	"github.com/meridianlabs/toolbridge/internal/apierr"
	"github.com/meridianlabs/toolbridge/internal/wire"
	"github.com/meridianlabs/toolbridge/internal/workerreg"
)

// runSession drives one session from Opened through Closed: a handshake
// timer, the keep-alive loop once Active, and the read loop that
// demultiplexes inbound frames. It returns once the underlying connection
// is closed.
func (m *Manager) runSession(s *Session) {
	handshakeTimer := time.AfterFunc(HandshakeWindow, func() {
		if s.State() == StateOpened {
			s.sendError("HANDSHAKE_TIMEOUT", "no register frame received in time", "")
			m.closeSession(s, apierr.ErrInvalidPayload)
		}
	})
	defer handshakeTimer.Stop()

	keepAliveDone := make(chan struct{})
	go m.keepAlive(s, keepAliveDone)
	defer close(keepAliveDone)

	for {
		var frame wire.Frame
		if err := s.conn.ReadJSON(&frame); err != nil {
			m.closeSession(s, apierr.ErrWorkerDisconnected)
			return
		}
		s.touch()

		switch s.State() {
		case StateOpened:
			m.handleOpened(s, handshakeTimer, frame)
		case StateActive:
			m.handleActive(s, frame)
		case StateClosed:
			return
		}
	}
}

// handleOpened accepts only a register frame; anything else is rejected
// per spec §4.3 ("until then no other message types are accepted").
func (m *Manager) handleOpened(s *Session, handshakeTimer *time.Timer, frame wire.Frame) {
	if frame.Type != wire.TypeRegister || frame.Register == nil {
		s.sendError("INVALID_PAYLOAD", "first frame must be register", "")
		m.closeSession(s, apierr.ErrInvalidPayload)
		return
	}

	reg := frame.Register
	if reg.WorkerToken != m.authToken {
		s.sendError("INVALID_REGISTER", "worker token not recognized", "")
		m.closeSession(s, apierr.ErrInvalidPayload)
		return
	}
	if reg.WorkerID != workerreg.IDFromToken(reg.WorkerToken) {
		s.sendError("INVALID_REGISTER", "worker_id does not match sha256(worker_token)", "")
		m.closeSession(s, apierr.ErrInvalidPayload)
		return
	}

	m.claim(s, reg)
	handshakeTimer.Stop()
	s.setWorkerID(reg.WorkerID)
	s.state.Store(int32(StateActive))
	m.events.OnConnect(reg.WorkerID, s.ID)
	m.logger.Info("worker registered", "worker_id", reg.WorkerID, "session_id", s.ID, "tools", len(reg.Tools))
}

// claim implements the claim-wins replacement semantics of spec §4.3: if
// the worker-id is already connected under a different session, that
// session is closed (with its pending invocations failed WorkerReplaced)
// before the new registration is committed to the Worker Registry.
func (m *Manager) claim(s *Session, reg *wire.RegisterPayload) {
	if rec, ok := m.workers.Get(reg.WorkerID); ok && rec.State == workerreg.Connected && rec.SessionID != s.ID {
		m.mu.Lock()
		old, exists := m.sessions[rec.SessionID]
		m.mu.Unlock()

		if exists {
			old.sendError("REPLACED", "worker registered a new session", "")
			m.router.FailSession(old.ID, apierr.ErrWorkerReplaced)
			old.Close()
			m.mu.Lock()
			delete(m.sessions, old.ID)
			m.mu.Unlock()
			m.logger.Info("worker session replaced", "worker_id", reg.WorkerID, "old_session_id", old.ID, "new_session_id", s.ID)
		}
	}

	m.workers.Upsert(reg.WorkerID, reg.WorkerToken, reg.Tools, s.ID)
}

// handleActive demultiplexes frames once a session is registered.
func (m *Manager) handleActive(s *Session, frame wire.Frame) {
	switch frame.Type {
	case wire.TypeToolResponse:
		if frame.ToolResponse == nil {
			s.sendError("INVALID_PAYLOAD", "tool_response missing payload", "")
			return
		}
		resp := frame.ToolResponse
		if !m.router.Complete(resp.RequestID, resp.Result, resp.Error) {
			m.logger.Warn("discarding tool_response for unknown or resolved request",
				"request_id", resp.RequestID, "session_id", s.ID)
		}

	case wire.TypePing:
		ts := int64(0)
		if frame.Ping != nil {
			ts = frame.Ping.Timestamp
		}
		_ = s.Send(wire.Frame{Type: wire.TypePong, Pong: &wire.PongPayload{Timestamp: ts}})

	case wire.TypePong:
		// s.touch() already ran for every inbound frame; nothing else to do.

	case wire.TypeUnregister:
		workerID := s.WorkerID()
		m.logger.Info("worker unregistered", "worker_id", workerID, "session_id", s.ID)
		m.closeSession(s, apierr.ErrWorkerDisconnected)

	case wire.TypeRegister:
		s.sendError("INVALID_PAYLOAD", "session already registered", "")

	case wire.TypeError:
		if frame.Error != nil {
			m.logger.Warn("worker reported error", "session_id", s.ID, "code", frame.Error.Code, "message", frame.Error.Message)
		}

	default:
		s.sendError("UNKNOWN_TYPE", "unrecognized message type", "")
	}
}

// keepAlive sends a ping every PingInterval and closes the session if no
// activity is observed within PongWait afterward, per spec §4.3.
func (m *Manager) keepAlive(s *Session, done <-chan struct{}) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			sentAt := time.Now()
			if err := s.Send(wire.Frame{Type: wire.TypePing, Ping: &wire.PingPayload{Timestamp: sentAt.UnixMilli()}}); err != nil {
				m.closeSession(s, apierr.ErrWorkerDisconnected)
				return
			}

			time.Sleep(PongWait)
			if s.State() == StateClosed {
				return
			}
			if s.idleSince() >= PongWait {
				m.logger.Warn("session missed keep-alive pong, closing", "session_id", s.ID)
				m.closeSession(s, apierr.ErrWorkerDisconnected)
				return
			}
		}
	}
}
