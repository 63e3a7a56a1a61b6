package relay

import (
	"regexp"
	"testing"
	"time"

	"github.com/unfoldingWord/bt-servant-web-client/internal/engine"
)

func TestNewRequestID_Format(t *testing.T) {
	pattern := regexp.MustCompile(`^\d{13}-[0-9a-f]{16}$`)
	id := NewRequestID()
	if !pattern.MatchString(id) {
		t.Errorf("unexpected request ID format: %s", id)
	}
}

func TestNewRequestID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewRequestID()
		if seen[id] {
			t.Fatalf("duplicate request ID: %s", id)
		}
		seen[id] = true
	}
}

func TestRegistry_Isolation(t *testing.T) {
	r := NewRegistry()
	ch1 := r.Register("req-1", "user-a")
	ch2 := r.Register("req-2", "user-b")

	if !r.PushProgress("req-1", engine.ProgressCallback{Text: "frag", MessageKey: "k1"}) {
		t.Fatal("expected push to req-1 to succeed")
	}

	select {
	case ev := <-ch1:
		if ev.Type != EventProgress || ev.Text != "frag" {
			t.Errorf("unexpected event on req-1: %+v", ev)
		}
	default:
		t.Error("expected event on req-1 channel")
	}

	select {
	case ev := <-ch2:
		t.Errorf("req-2 channel should be empty, got %+v", ev)
	default:
	}
}

func TestRegistry_CompleteIsTerminal(t *testing.T) {
	r := NewRegistry()
	ch := r.Register("req-1", "user-a")

	resp := &engine.ChatResponse{Responses: []string{"Hello!"}}
	if !r.Complete("req-1", resp) {
		t.Fatal("expected Complete to succeed")
	}

	ev, ok := <-ch
	if !ok {
		t.Fatal("expected terminal event before close")
	}
	if ev.Type != EventComplete || ev.Response == nil || ev.Response.Responses[0] != "Hello!" {
		t.Errorf("unexpected terminal event: %+v", ev)
	}

	// Channel must be closed immediately after the terminal event.
	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after terminal event")
	}

	// Entry is gone: further writes are benign no-ops.
	if r.PushProgress("req-1", engine.ProgressCallback{Text: "late"}) {
		t.Error("push after terminal should report miss")
	}
	if r.Complete("req-1", resp) {
		t.Error("second Complete should report miss")
	}
	if _, ok := r.UserID("req-1"); ok {
		t.Error("entry should be absent after terminal event")
	}
}

func TestRegistry_FailIsTerminal(t *testing.T) {
	r := NewRegistry()
	ch := r.Register("req-1", "user-a")

	if !r.Fail("req-1", "engine unavailable") {
		t.Fatal("expected Fail to succeed")
	}

	ev := <-ch
	if ev.Type != EventError || ev.Error != "engine unavailable" {
		t.Errorf("unexpected terminal event: %+v", ev)
	}
	if _, ok := <-ch; ok {
		t.Error("expected channel closed after error event")
	}
}

func TestRegistry_PushUnknownRequest(t *testing.T) {
	r := NewRegistry()
	if r.PushProgress("missing", engine.ProgressCallback{Text: "x"}) {
		t.Error("push to unknown request should report miss")
	}
	if r.PushStatus("missing", "thinking") {
		t.Error("status push to unknown request should report miss")
	}
}

func TestRegistry_RemoveIdempotent(t *testing.T) {
	r := NewRegistry()
	ch := r.Register("req-1", "user-a")

	r.Remove("req-1")
	r.Remove("req-1")
	r.Remove("never-existed")

	if _, ok := <-ch; ok {
		t.Error("expected channel closed after Remove")
	}
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d entries", r.Len())
	}
}

func TestRegistry_RegisterCollisionReplaces(t *testing.T) {
	r := NewRegistry()
	old := r.Register("req-1", "user-a")
	fresh := r.Register("req-1", "user-b")

	if _, ok := <-old; ok {
		t.Error("expected old channel closed on collision")
	}

	if !r.PushStatus("req-1", "thinking") {
		t.Fatal("expected push to replacement entry to succeed")
	}
	ev := <-fresh
	if ev.Type != EventStatus || ev.Message != "thinking" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if userID, _ := r.UserID("req-1"); userID != "user-b" {
		t.Errorf("expected replacement owner user-b, got %s", userID)
	}
}

func TestRegistry_SweepStale(t *testing.T) {
	r := NewRegistry()
	ch := r.Register("req-old", "user-a")

	time.Sleep(10 * time.Millisecond)
	removed := r.SweepStale(5 * time.Millisecond)
	if removed != 1 {
		t.Fatalf("expected 1 entry swept, got %d", removed)
	}

	if _, ok := <-ch; ok {
		t.Error("expected swept channel to be closed")
	}
	if _, ok := r.UserID("req-old"); ok {
		t.Error("swept entry should be absent")
	}
}

func TestRegistry_SweepKeepsFresh(t *testing.T) {
	r := NewRegistry()
	r.Register("req-fresh", "user-a")

	if removed := r.SweepStale(time.Minute); removed != 0 {
		t.Fatalf("fresh entry should survive sweep, %d removed", removed)
	}
	if _, ok := r.UserID("req-fresh"); !ok {
		t.Error("fresh entry should still be present")
	}
}

func TestRegistry_BufferFullDropsProgress(t *testing.T) {
	r := NewRegistry()
	r.Register("req-1", "user-a")

	for i := 0; i < eventBuffer; i++ {
		if !r.PushStatus("req-1", "filling") {
			t.Fatalf("push %d should fit in buffer", i)
		}
	}
	if r.PushStatus("req-1", "overflow") {
		t.Error("push past buffer capacity should be dropped")
	}
}

func TestRegistry_TerminalEventSurvivesFullBuffer(t *testing.T) {
	r := NewRegistry()
	ch := r.Register("req-1", "user-a")

	for i := 0; i < eventBuffer; i++ {
		if !r.PushStatus("req-1", "filling") {
			t.Fatalf("push %d should fit in buffer", i)
		}
	}

	resp := &engine.ChatResponse{Responses: []string{"Hello!"}}
	if !r.Complete("req-1", resp) {
		t.Fatal("expected Complete to succeed")
	}

	// A buffered event is sacrificed so a stalled reader still observes
	// exactly one terminal event as the last delivery.
	var events []StreamEvent
	for ev := range ch {
		events = append(events, ev)
	}
	if len(events) != eventBuffer {
		t.Fatalf("expected %d events, got %d", eventBuffer, len(events))
	}
	last := events[len(events)-1]
	if last.Type != EventComplete || last.Response == nil || last.Response.Responses[0] != "Hello!" {
		t.Errorf("last event must be the terminal complete, got %+v", last)
	}
	for _, ev := range events[:len(events)-1] {
		if ev.Terminal() {
			t.Errorf("unexpected extra terminal event: %+v", ev)
		}
	}
}
