// Package session implements the Session Layer (C3): accepting worker
// websocket upgrades, demultiplexing JSON-framed messages, keeping
// sessions alive, and emitting connect/disconnect events.
package session

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meridianlabs/toolbridge/internal/wire"
)

// State is a session's position in the per-session state machine described
// in spec §4.3: Opened -> (register ok) -> Active -> (close|error) -> Closed.
type State int32

const (
	// StateOpened is the state immediately after upgrade, before a valid register frame.
	StateOpened State = iota
	// StateActive is the state after a successful register.
	StateActive
	// StateClosed is the terminal state.
	StateClosed
)

// Session is one duplex JSON-framed channel between the server and a
// worker. Created on each upgrade, destroyed on close.
type Session struct {
	ID string

	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	state        atomic.Int32
	workerIDMu   sync.RWMutex
	workerID     string
	lastActivity atomic.Int64 // unix nanoseconds

	closeOnce sync.Once
	closed    chan struct{}
}

func newSession(id string, conn *websocket.Conn, logger *slog.Logger) *Session {
	s := &Session{
		ID:     id,
		conn:   conn,
		logger: logger,
		closed: make(chan struct{}),
	}
	s.state.Store(int32(StateOpened))
	s.touch()
	return s
}

// Send writes one frame to the session, serializing writers per spec §5
// ("Session writers hold the per-session write mutex for each frame").
func (s *Session) Send(frame wire.Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(frame)
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// WorkerID returns the worker-id associated with this session after a
// successful register, or "" before that.
func (s *Session) WorkerID() string {
	s.workerIDMu.RLock()
	defer s.workerIDMu.RUnlock()
	return s.workerID
}

func (s *Session) setWorkerID(id string) {
	s.workerIDMu.Lock()
	s.workerID = id
	s.workerIDMu.Unlock()
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *Session) idleSince() time.Duration {
	return time.Since(time.Unix(0, s.lastActivity.Load()))
}

// sendError writes an error frame, best-effort (the connection may already
// be going away).
func (s *Session) sendError(code, message, requestID string) {
	_ = s.Send(wire.Frame{
		Type: wire.TypeError,
		Error: &wire.ErrorPayload{
			Code:      code,
			Message:   message,
			RequestID: requestID,
		},
	})
}

// Close closes the underlying connection exactly once. It does not itself
// touch the Worker Registry or Pending Invocations — callers (the read
// loop, the keep-alive loop, or a claim-win eviction) are responsible for
// that bookkeeping before or after calling Close, per what triggered it.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		close(s.closed)
		_ = s.conn.Close()
	})
}

func decodeFrame(data []byte) (wire.Frame, error) {
	var f wire.Frame
	err := json.Unmarshal(data, &f)
	return f, err
}
