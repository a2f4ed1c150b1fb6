package router

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridianlabs/toolbridge/internal/apierr"
	"github.com/meridianlabs/toolbridge/internal/tenant"
	"github.com/meridianlabs/toolbridge/internal/wire"
	"github.com/meridianlabs/toolbridge/internal/workerreg"
)

// recordingSender captures every frame sent to it and optionally replies
// asynchronously through a router, simulating a worker's session.
type recordingSender struct {
	frames []wire.Frame
	sendFn func(wire.Frame) error
}

func (s *recordingSender) Send(f wire.Frame) error {
	s.frames = append(s.frames, f)
	if s.sendFn != nil {
		return s.sendFn(f)
	}
	return nil
}

type fakeLookup struct {
	byID map[string]Sender
}

func (f *fakeLookup) Lookup(sessionID string) (Sender, bool) {
	s, ok := f.byID[sessionID]
	return s, ok
}

func newTenant(bearer string, workerTokens ...string) *tenant.Tenant {
	admitted := make(map[string]struct{}, len(workerTokens))
	for _, w := range workerTokens {
		admitted[w] = struct{}{}
	}
	return &tenant.Tenant{Name: "t", BearerToken: bearer, AllowedClientTokens: admitted}
}

func TestInvoke_ToolNotFound(t *testing.T) {
	workers := workerreg.New()
	lookup := &fakeLookup{byID: map[string]Sender{}}
	r := New(workers, lookup)

	tn := newTenant("tenant-token")
	_, err := r.Invoke(context.Background(), tn, "echo", nil, time.Second)
	require.ErrorIs(t, err, apierr.ErrToolNotFound)
}

func TestInvoke_SuccessRoundTrip(t *testing.T) {
	workers := workerreg.New()
	workers.Upsert("w1", "w-token", []wire.ToolSchema{{Name: "echo"}}, "sess1")

	sender := &recordingSender{}
	lookup := &fakeLookup{byID: map[string]Sender{"sess1": sender}}
	r := New(workers, lookup)
	tn := newTenant("tenant-token", "w-token")

	sender.sendFn = func(f wire.Frame) error {
		go r.Complete(f.ToolRequest.RequestID, json.RawMessage(`{"ok":true}`), "")
		return nil
	}

	result, err := r.Invoke(context.Background(), tn, "echo", map[string]interface{}{"msg": "hi"}, time.Second)
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(result))
}

func TestInvoke_ToolExecutionError(t *testing.T) {
	workers := workerreg.New()
	workers.Upsert("w1", "w-token", []wire.ToolSchema{{Name: "echo"}}, "sess1")

	sender := &recordingSender{}
	lookup := &fakeLookup{byID: map[string]Sender{"sess1": sender}}
	r := New(workers, lookup)
	tn := newTenant("tenant-token", "w-token")

	sender.sendFn = func(f wire.Frame) error {
		go r.Complete(f.ToolRequest.RequestID, nil, "bad input")
		return nil
	}

	_, err := r.Invoke(context.Background(), tn, "echo", nil, time.Second)
	require.ErrorIs(t, err, apierr.ErrToolExecutionError)
}

func TestInvoke_Timeout(t *testing.T) {
	workers := workerreg.New()
	workers.Upsert("w1", "w-token", []wire.ToolSchema{{Name: "echo"}}, "sess1")

	sender := &recordingSender{} // never replies
	lookup := &fakeLookup{byID: map[string]Sender{"sess1": sender}}
	r := New(workers, lookup)
	tn := newTenant("tenant-token", "w-token")

	_, err := r.Invoke(context.Background(), tn, "echo", nil, 10*time.Millisecond)
	require.ErrorIs(t, err, apierr.ErrTimeout)

	// A late reply after timeout must not panic or block (no remaining reader).
	require.Len(t, sender.frames, 1)
	r.Complete(sender.frames[0].ToolRequest.RequestID, json.RawMessage(`{}`), "")
}

func TestInvoke_ClientCancelled(t *testing.T) {
	workers := workerreg.New()
	workers.Upsert("w1", "w-token", []wire.ToolSchema{{Name: "echo"}}, "sess1")

	sender := &recordingSender{}
	lookup := &fakeLookup{byID: map[string]Sender{"sess1": sender}}
	r := New(workers, lookup)
	tn := newTenant("tenant-token", "w-token")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Invoke(ctx, tn, "echo", nil, time.Second)
	require.ErrorIs(t, err, apierr.ErrClientCancelled)
}

func TestInvoke_WorkerDisconnectedNoSession(t *testing.T) {
	workers := workerreg.New()
	workers.Upsert("w1", "w-token", []wire.ToolSchema{{Name: "echo"}}, "sess1")

	lookup := &fakeLookup{byID: map[string]Sender{}} // session vanished
	r := New(workers, lookup)
	tn := newTenant("tenant-token", "w-token")

	_, err := r.Invoke(context.Background(), tn, "echo", nil, time.Second)
	require.ErrorIs(t, err, apierr.ErrWorkerDisconnected)
}

func TestSelectWorker_SelfTenantAffinity(t *testing.T) {
	workers := workerreg.New()
	tenantToken := "tenant-token"
	affinityID := workerreg.IDFromToken(tenantToken)

	workers.Upsert("w-other", "w-token-1", []wire.ToolSchema{{Name: "echo"}}, "sess-other")
	workers.Upsert(affinityID, "w-token-2", []wire.ToolSchema{{Name: "echo"}}, "sess-self")

	lookup := &fakeLookup{byID: map[string]Sender{
		"sess-other": &recordingSender{},
		"sess-self":  &recordingSender{sendFn: func(f wire.Frame) error { return nil }},
	}}
	r := New(workers, lookup)
	tn := newTenant(tenantToken, "w-token-1", "w-token-2")

	rec, ok := r.selectWorker(tn, "echo")
	require.True(t, ok)
	require.Equal(t, affinityID, rec.WorkerID)
}

func TestSelectWorker_EarliestRegisteredWins(t *testing.T) {
	workers := workerreg.New()
	workers.Upsert("w1", "w-token-1", []wire.ToolSchema{{Name: "echo"}}, "sess1")
	time.Sleep(2 * time.Millisecond)
	workers.Upsert("w2", "w-token-2", []wire.ToolSchema{{Name: "echo"}}, "sess2")

	lookup := &fakeLookup{}
	r := New(workers, lookup)
	tn := newTenant("tenant-token", "w-token-1", "w-token-2")

	rec, ok := r.selectWorker(tn, "echo")
	require.True(t, ok)
	require.Equal(t, "w1", rec.WorkerID)
}

func TestFailSession_OnlyFailsMatchingSession(t *testing.T) {
	workers := workerreg.New()
	workers.Upsert("w1", "w-token", []wire.ToolSchema{{Name: "echo"}}, "sess1")

	sender := &recordingSender{}
	lookup := &fakeLookup{byID: map[string]Sender{"sess1": sender}}
	r := New(workers, lookup)
	tn := newTenant("tenant-token", "w-token")

	errCh := make(chan error, 1)
	go func() {
		_, err := r.Invoke(context.Background(), tn, "echo", nil, time.Second)
		errCh <- err
	}()

	// Wait for the request to be registered before failing the session.
	require.Eventually(t, func() bool {
		return len(sender.frames) > 0
	}, time.Second, time.Millisecond)

	n := r.FailSession("sess1", apierr.ErrWorkerDisconnected)
	require.Equal(t, 1, n)

	err := <-errCh
	require.ErrorIs(t, err, apierr.ErrWorkerDisconnected)
}
