package relay

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/unfoldingWord/bt-servant-web-client/internal/engine"
)

// DefaultStaleAfter is how long an entry may live without a terminal event
// before the sweeper reclaims it. It must exceed the engine chat timeout
// with margin.
const DefaultStaleAfter = 5 * time.Minute

// eventBuffer is the per-request channel capacity. Progress events beyond a
// stalled reader's buffer are dropped rather than blocking the webhook.
const eventBuffer = 64

type entry struct {
	events    chan StreamEvent
	userID    string
	createdAt time.Time
	closed    bool
}

// Registry tracks in-flight streaming chat requests. Progress callbacks from
// the engine arrive on an unrelated connection from the one holding the SSE
// stream, so the registry is the process-wide rendezvous point between the
// two: the stream producer registers a channel under a request ID, and the
// webhook handler pushes events onto it by ID.
//
// Push and terminal methods returning false (entry absent or already closed)
// is a normal condition, not an error: the request may have finished or the
// client may have disconnected. Callers must treat it as benign so the
// engine's progress loop is never blocked.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry

	// OnSweep, when set before Run starts, is invoked with the number of
	// entries reclaimed by each non-empty sweep.
	OnSweep func(count int)
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// NewRequestID generates a correlation token for a chat submission. The
// timestamp makes IDs debuggable; the random suffix makes them practically
// unguessable so callbacks cannot be spoofed across tenants.
func NewRequestID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), hex.EncodeToString(b))
}

// Register creates an entry for requestID and returns the channel the stream
// producer reads events from. A colliding ID silently replaces (and closes)
// the previous entry; callers guarantee uniqueness via NewRequestID.
func (r *Registry) Register(requestID, userID string) <-chan StreamEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.entries[requestID]; ok {
		r.closeLocked(requestID, old)
	}

	e := &entry{
		events:    make(chan StreamEvent, eventBuffer),
		userID:    userID,
		createdAt: time.Now(),
	}
	r.entries[requestID] = e
	return e.events
}

// UserID returns the owning user of an in-flight request.
func (r *Registry) UserID(requestID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[requestID]
	if !ok {
		return "", false
	}
	return e.userID, true
}

// Len returns the number of in-flight entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// PushStatus delivers a status label to an open stream.
func (r *Registry) PushStatus(requestID, message string) bool {
	return r.push(requestID, StatusEvent(message))
}

// PushProgress delivers an incremental text fragment from an engine progress
// callback to the matching open stream.
func (r *Registry) PushProgress(requestID string, cb engine.ProgressCallback) bool {
	return r.push(requestID, ProgressEvent(cb.Text, cb.MessageKey))
}

func (r *Registry) push(requestID string, ev StreamEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[requestID]
	if !ok || e.closed {
		return false
	}

	select {
	case e.events <- ev:
		return true
	default:
		// Reader stalled with a full buffer; drop the fragment rather than
		// block the webhook handler.
		slog.Warn("dropping stream event, buffer full", "request_id", requestID, "type", ev.Type)
		return false
	}
}

// Complete writes the terminal complete event, closes the stream, and
// removes the entry. Returns false if the entry is already gone.
func (r *Registry) Complete(requestID string, resp *engine.ChatResponse) bool {
	return r.terminate(requestID, CompleteEvent(resp))
}

// Fail writes the terminal error event, closes the stream, and removes the
// entry. Returns false if the entry is already gone.
func (r *Registry) Fail(requestID, message string) bool {
	return r.terminate(requestID, ErrorEvent(message))
}

func (r *Registry) terminate(requestID string, ev StreamEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[requestID]
	if !ok || e.closed {
		return false
	}

	select {
	case e.events <- ev:
	default:
		// Reader stalled with a full buffer. The registry is the only
		// sender, so draining one buffered event guarantees room for the
		// terminal write; a progress fragment is expendable, the terminal
		// event is not.
		slog.Warn("stream buffer full, dropping one event for terminal write", "request_id", requestID, "type", ev.Type)
		select {
		case <-e.events:
		default:
		}
		select {
		case e.events <- ev:
		default:
		}
	}
	r.closeLocked(requestID, e)
	return true
}

// Remove closes and discards an entry without a terminal event, e.g. when
// the client disconnects mid-stream. Idempotent; no-op if absent.
func (r *Registry) Remove(requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[requestID]; ok {
		r.closeLocked(requestID, e)
	}
}

func (r *Registry) closeLocked(requestID string, e *entry) {
	if !e.closed {
		e.closed = true
		close(e.events)
	}
	delete(r.entries, requestID)
}

// SweepStale closes and removes entries older than maxAge. Entries are
// snapshotted before removal so the sweep tolerates concurrent changes.
// Returns the number of entries reclaimed.
func (r *Registry) SweepStale(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var stale []string
	for id, e := range r.entries {
		if now.Sub(e.createdAt) >= maxAge {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		if e, ok := r.entries[id]; ok {
			slog.Warn("sweeping stale stream entry", "request_id", id, "age", now.Sub(e.createdAt))
			r.closeLocked(id, e)
		}
	}
	return len(stale)
}

// Run sweeps stale entries on a fixed interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.SweepStale(maxAge); n > 0 && r.OnSweep != nil {
				r.OnSweep(n)
			}
		}
	}
}
