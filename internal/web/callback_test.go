package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/unfoldingWord/bt-servant-web-client/internal/config"
	"github.com/unfoldingWord/bt-servant-web-client/internal/engine"
	"github.com/unfoldingWord/bt-servant-web-client/internal/relay"
)

func newCallbackHandler() (*Handler, *relay.Registry) {
	cfg := config.DefaultConfig()
	cfg.Engine.APIKey = "engine-secret"
	registry := relay.NewRegistry()
	h := NewHandler(registry, nil, func() *config.Config { return cfg }, nil)
	return h, registry
}

func postCallback(h *Handler, token, requestID, body string) *httptest.ResponseRecorder {
	target := "/api/progress-callback"
	if requestID != "" {
		target += "?requestId=" + requestID
	}
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("X-Engine-Token", token)
	}
	rec := httptest.NewRecorder()
	rec.Header().Set("X-Request-ID", "test-req")
	h.ProgressCallback(rec, req)
	return rec
}

func TestProgressCallback_MissingToken(t *testing.T) {
	h, _ := newCallbackHandler()
	rec := postCallback(h, "", "req-1", `{}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestProgressCallback_WrongToken(t *testing.T) {
	h, _ := newCallbackHandler()
	rec := postCallback(h, "wrong-secret", "req-1", `{}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestProgressCallback_MissingRequestID(t *testing.T) {
	h, _ := newCallbackHandler()
	rec := postCallback(h, "engine-secret", "", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestProgressCallback_Delivered(t *testing.T) {
	h, registry := newCallbackHandler()
	ch := registry.Register("req-1", "user-1")

	body := `{"user_id":"user-1","message_key":"k1","text":"searching sources","timestamp":1700000000}`
	rec := postCallback(h, "engine-secret", "req-1", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]bool
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if !resp["ok"] {
		t.Error("expected ok:true response")
	}

	select {
	case ev := <-ch:
		if ev.Type != relay.EventProgress || ev.Text != "searching sources" || ev.MessageKey != "k1" {
			t.Errorf("unexpected event: %+v", ev)
		}
	default:
		t.Error("expected progress event on channel")
	}
}

func TestProgressCallback_UnmatchedStill200(t *testing.T) {
	h, _ := newCallbackHandler()

	body := `{"user_id":"user-1","message_key":"k1","text":"late","timestamp":1700000000}`
	rec := postCallback(h, "engine-secret", "never-registered", body)

	// Registry miss is benign: the engine must never be blocked.
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 on unmatched callback, got %d", rec.Code)
	}
}

func TestProgressCallback_MalformedBodyStill200(t *testing.T) {
	h, registry := newCallbackHandler()
	registry.Register("req-1", "user-1")

	rec := postCallback(h, "engine-secret", "req-1", `{not json`)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 on malformed body, got %d", rec.Code)
	}
}

func TestProgressCallback_AfterTerminal(t *testing.T) {
	h, registry := newCallbackHandler()
	ch := registry.Register("req-1", "user-1")
	registry.Complete("req-1", &engine.ChatResponse{Responses: []string{"done"}})
	drain(ch)

	body := `{"user_id":"user-1","message_key":"k1","text":"late","timestamp":1700000000}`
	rec := postCallback(h, "engine-secret", "req-1", body)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 after terminal event, got %d", rec.Code)
	}
}

func drain(ch <-chan relay.StreamEvent) {
	for range ch {
	}
}
