package admin

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LogBroker fans recent log lines out to every subscribed admin SSE
// connection, the way the teacher's SSE session manager fans tool-result
// notifications out to connected dashboards.
type LogBroker struct {
	mu          sync.RWMutex
	subscribers map[string]chan string
}

// NewLogBroker creates an empty broker.
func NewLogBroker() *LogBroker {
	return &LogBroker{subscribers: make(map[string]chan string)}
}

// subscribe registers a new subscriber and returns its channel and a cancel
// function that must be called when the caller stops reading.
func (b *LogBroker) subscribe() (<-chan string, func()) {
	id := uuid.NewString()
	ch := make(chan string, 64)

	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
		close(ch)
	}
	return ch, cancel
}

// Publish broadcasts line to every current subscriber. A subscriber whose
// buffer is full is skipped rather than blocking the publisher.
func (b *LogBroker) Publish(line string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- line:
		default:
		}
	}
}

// ServeSSE handles GET /logs/events: a text/event-stream of the log lines
// published after the client subscribes, one `data:` frame per line, until
// the client disconnects. Lines published earlier are not replayed.
func (b *LogBroker) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, cancel := b.subscribe()
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", line)
			flusher.Flush()
		}
	}
}

// BroadcastHandler wraps an slog.Handler, publishing every formatted record
// into the broker in addition to delegating to the underlying handler. It
// lets /logs/events tail the same log stream operators see on stderr.
type BroadcastHandler struct {
	next   slog.Handler
	broker *LogBroker
}

// NewBroadcastHandler wraps next so every handled record is also published
// to broker.
func NewBroadcastHandler(next slog.Handler, broker *LogBroker) *BroadcastHandler {
	return &BroadcastHandler{next: next, broker: broker}
}

func (h *BroadcastHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *BroadcastHandler) Handle(ctx context.Context, r slog.Record) error {
	var line strings.Builder
	line.WriteString(r.Time.Format(time.RFC3339))
	line.WriteString(" ")
	line.WriteString(r.Level.String())
	line.WriteString(" ")
	line.WriteString(r.Message)
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&line, " %s=%v", a.Key, a.Value)
		return true
	})
	h.broker.Publish(line.String())

	return h.next.Handle(ctx, r)
}

func (h *BroadcastHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &BroadcastHandler{next: h.next.WithAttrs(attrs), broker: h.broker}
}

func (h *BroadcastHandler) WithGroup(name string) slog.Handler {
	return &BroadcastHandler{next: h.next.WithGroup(name), broker: h.broker}
}
