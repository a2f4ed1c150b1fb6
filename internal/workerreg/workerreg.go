// Package workerreg holds the Worker Registry: live worker records keyed by
// worker-id, mutated only through a single-writer lane.
package workerreg

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/meridianlabs/toolbridge/internal/wire"
)

// State is a Worker Record's connection state.
type State string

const (
	// Connected means the worker has an active session and is dispatchable.
	Connected State = "connected"
	// Disconnected means the worker has no active session.
	Disconnected State = "disconnected"
)

// Record is one worker's registry entry. Records are created on first
// successful registration and never destroyed: a worker that disconnects
// keeps its record (marked Disconnected) so its history persists for the
// life of the process, per spec §3.
type Record struct {
	WorkerID    string
	WorkerToken string
	Tools       []wire.ToolSchema
	State       State
	SessionID   string // populated only while Connected
	LastSeen    time.Time
	// RegisteredAt is the first time this worker-id was ever registered,
	// used by the router's earliest-registered tie-break (spec §4.4 step 4)
	// and the description generator's first-come-wins dedup (spec §4.7).
	RegisteredAt time.Time
}

// IDFromToken derives a worker-id deterministically from a worker token:
// SHA-256 hex of the token bytes (spec §3).
func IDFromToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Registry holds every worker record ever seen, mutated under a single lock
// (the single-writer lane spec §4.2 calls for). Snapshot returns an
// immutable copy usable by readers without further locking.
type Registry struct {
	mu      sync.Mutex
	records map[string]*Record
}

// New creates an empty Worker Registry.
func New() *Registry {
	return &Registry{records: make(map[string]*Record)}
}

// Upsert transitions workerID's record to Connected, atomically replacing
// its tool list and updating last-seen and session-id. If the worker-id has
// never been seen, a new record is created with RegisteredAt set to now.
func (r *Registry) Upsert(workerID, workerToken string, tools []wire.ToolSchema, sessionID string) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	rec, ok := r.records[workerID]
	if !ok {
		rec = &Record{WorkerID: workerID, RegisteredAt: now}
		r.records[workerID] = rec
	}

	rec.WorkerToken = workerToken
	rec.Tools = tools
	rec.State = Connected
	rec.SessionID = sessionID
	rec.LastSeen = now

	// Return a copy so callers cannot mutate registry state without the lock.
	copyRec := *rec
	return &copyRec
}

// MarkDisconnected transitions workerID's record to Disconnected, but only
// if its current session-id equals sessionID. This guards against a stale
// close (from a session that has already been replaced) clobbering the
// newer session's connected state. Returns true if the transition happened.
func (r *Registry) MarkDisconnected(workerID, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[workerID]
	if !ok || rec.SessionID != sessionID {
		return false
	}

	rec.State = Disconnected
	rec.SessionID = ""
	rec.LastSeen = time.Now()
	return true
}

// Get returns a copy of workerID's record, or false if never seen.
func (r *Registry) Get(workerID string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[workerID]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Snapshot returns an immutable copy of every worker record, usable by the
// description generator and router without holding the registry lock.
func (r *Registry) Snapshot() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	return out
}
