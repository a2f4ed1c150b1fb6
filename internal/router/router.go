// Package router implements the Invocation Router (C4): it maps a
// (tenant, tool name) pair to a connected, admitted worker, forwards the
// call over that worker's session, and awaits a correlated reply with a
// deadline.
package router

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meridianlabs/toolbridge/internal/apierr"
	"github.com/meridianlabs/toolbridge/internal/tenant"
	"github.com/meridianlabs/toolbridge/internal/wire"
	"github.com/meridianlabs/toolbridge/internal/workerreg"
)

// DefaultDeadline is the invocation timeout used when the caller specifies none.
const DefaultDeadline = 30 * time.Second

// Sender forwards a single wire frame over a session's duplex channel.
// Implemented by *session.Session; defined here to avoid an import cycle.
type Sender interface {
	Send(frame wire.Frame) error
}

// SessionLookup resolves a session-id to its Sender. Implemented by
// *session.Manager.
type SessionLookup interface {
	Lookup(sessionID string) (Sender, bool)
}

// pending is one in-flight tool invocation awaiting a tool_response.
type pending struct {
	workerID  string
	sessionID string
	done      chan outcome
}

type outcome struct {
	result json.RawMessage
	err    error
}

// Router owns the Pending Invocation table exclusively; it holds only a
// non-owning reference (via SessionLookup) to the session used for
// transmission.
type Router struct {
	workers  *workerreg.Registry
	sessions SessionLookup

	mu      sync.Mutex
	pending map[string]*pending
}

// New creates a Router over the given Worker Registry and session lookup.
func New(workers *workerreg.Registry, sessions SessionLookup) *Router {
	return &Router{
		workers:  workers,
		sessions: sessions,
		pending:  make(map[string]*pending),
	}
}

// Invoke dispatches toolName with args in the context of tenant t, blocking
// until a reply arrives, the deadline elapses, or ctx is cancelled. deadline
// of zero uses DefaultDeadline.
func (r *Router) Invoke(ctx context.Context, t *tenant.Tenant, toolName string, args map[string]interface{}, deadline time.Duration) (json.RawMessage, error) {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}

	worker, ok := r.selectWorker(t, toolName)
	if !ok {
		return nil, apierr.Wrap(apierr.ErrToolNotFound, "tool %s not found", toolName)
	}

	sender, ok := r.sessions.Lookup(worker.SessionID)
	if !ok {
		return nil, apierr.Wrap(apierr.ErrWorkerDisconnected, "worker %s has no active session", worker.WorkerID)
	}

	requestID := uuid.NewString()
	p := &pending{workerID: worker.WorkerID, sessionID: worker.SessionID, done: make(chan outcome, 1)}

	r.mu.Lock()
	r.pending[requestID] = p
	r.mu.Unlock()

	frame := wire.Frame{
		Type: wire.TypeToolRequest,
		ToolRequest: &wire.ToolRequestPayload{
			RequestID: requestID,
			ToolName:  toolName,
			Args:      args,
		},
	}

	if err := sender.Send(frame); err != nil {
		r.remove(requestID)
		return nil, apierr.Wrap(apierr.ErrWorkerDisconnected, "failed to send to worker %s: %v", worker.WorkerID, err)
	}

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case o := <-p.done:
		if o.err != nil {
			return nil, o.err
		}
		return o.result, nil

	case <-timer.C:
		r.remove(requestID)
		return nil, apierr.Wrap(apierr.ErrTimeout, "tool %s timed out after %s", toolName, deadline)

	case <-ctx.Done():
		r.remove(requestID)
		return nil, apierr.Wrap(apierr.ErrClientCancelled, "client cancelled invocation of %s", toolName)
	}
}

// selectWorker implements spec §4.4 steps 1-4: collect connected, admitted,
// tool-offering candidates, then break ties by self-tenant affinity or
// earliest registration.
func (r *Router) selectWorker(t *tenant.Tenant, toolName string) (workerreg.Record, bool) {
	var candidates []workerreg.Record
	for _, rec := range r.workers.Snapshot() {
		if rec.State != workerreg.Connected {
			continue
		}
		if !t.Admits(rec.WorkerToken) {
			continue
		}
		if !hasTool(rec.Tools, toolName) {
			continue
		}
		candidates = append(candidates, rec)
	}

	if len(candidates) == 0 {
		return workerreg.Record{}, false
	}
	if len(candidates) == 1 {
		return candidates[0], true
	}

	affinityID := workerreg.IDFromToken(t.BearerToken)
	for _, c := range candidates {
		if c.WorkerID == affinityID {
			return c, true
		}
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.RegisteredAt.Before(best.RegisteredAt) {
			best = c
		}
	}
	return best, true
}

func hasTool(tools []wire.ToolSchema, name string) bool {
	for _, tool := range tools {
		if tool.Name == name {
			return true
		}
	}
	return false
}

// Complete fulfills a pending invocation with a worker's tool_response.
// Unknown or already-resolved request-ids (a late reply after timeout, or a
// duplicate) are silently ignored other than by the caller's own logging.
func (r *Router) Complete(requestID string, result json.RawMessage, errMsg string) bool {
	r.mu.Lock()
	p, ok := r.pending[requestID]
	if ok {
		delete(r.pending, requestID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	var err error
	if errMsg != "" {
		err = apierr.Wrap(apierr.ErrToolExecutionError, "%s", errMsg)
	}
	p.done <- outcome{result: result, err: err}
	return true
}

// FailSession fails every pending invocation routed through sessionID with
// the given taxonomy error (WorkerDisconnected on ordinary close,
// WorkerReplaced on claim-win eviction), as required by spec §4.3 and §4.5.
func (r *Router) FailSession(sessionID string, reason *apierr.Error) int {
	r.mu.Lock()
	var toFail []*pending
	for id, p := range r.pending {
		if p.sessionID == sessionID {
			toFail = append(toFail, p)
			delete(r.pending, id)
		}
	}
	r.mu.Unlock()

	for _, p := range toFail {
		p.done <- outcome{err: reason}
	}
	return len(toFail)
}

// FailAll fails every pending invocation with reason, used on server shutdown.
func (r *Router) FailAll(reason *apierr.Error) int {
	r.mu.Lock()
	all := make([]*pending, 0, len(r.pending))
	for id, p := range r.pending {
		all = append(all, p)
		delete(r.pending, id)
	}
	r.mu.Unlock()

	for _, p := range all {
		p.done <- outcome{err: reason}
	}
	return len(all)
}

func (r *Router) remove(requestID string) {
	r.mu.Lock()
	delete(r.pending, requestID)
	r.mu.Unlock()
}
