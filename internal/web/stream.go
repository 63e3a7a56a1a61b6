package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/unfoldingWord/bt-servant-web-client/internal/auth"
	"github.com/unfoldingWord/bt-servant-web-client/internal/engine"
	"github.com/unfoldingWord/bt-servant-web-client/internal/httputil"
	"github.com/unfoldingWord/bt-servant-web-client/internal/relay"
)

// ChatStream handles POST /api/chat/stream: the stream producer. It
// registers the request in the relay registry, launches the engine call
// concurrently, and forwards events from the registry channel to the client
// as SSE until the terminal event or a client disconnect.
func (h *Handler) ChatStream(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	var chatReq ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&chatReq); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	if problem := chatReq.validate(); problem != "" {
		httputil.WriteBadRequestError(w, reqID, problem)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteInternalError(w, reqID, "Streaming not supported")
		return
	}

	requestID := relay.NewRequestID()
	events := h.registry.Register(requestID, sess.UserID)

	slog.Info("stream started",
		"http_request_id", reqID,
		"request_id", requestID,
		"user_id", sess.UserID,
		"message_type", chatReq.MessageType,
	)
	// Recorded when the stream ends, once the outcome is known.
	outcome := "200"
	if h.metrics != nil {
		h.metrics.StreamsInFlight.Inc()
		defer func() {
			h.metrics.RecordRequest("chat_stream", outcome)
			h.metrics.StreamsInFlight.Dec()
		}()
	}

	// Initial phase label so the client has something to show before the
	// first progress callback lands. Pushed before the engine call starts
	// so it is always the first event on the stream.
	h.registry.PushStatus(requestID, "thinking")

	go h.runEngineCall(requestID, sess.UserID, chatReq)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Request-ID", reqID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case ev, open := <-events:
			if !open {
				// Terminal event already written, or entry swept/removed.
				return
			}
			record, err := relay.EncodeSSE(ev)
			if err != nil {
				slog.Error("failed to encode stream event", "request_id", requestID, "error", err)
				continue
			}
			if _, err := w.Write(record); err != nil {
				h.registry.Remove(requestID)
				return
			}
			flusher.Flush()
			if ev.Type == relay.EventError {
				outcome = "503"
			}
			if h.metrics != nil {
				h.metrics.RecordStreamEvent(ev.Type)
			}
		case <-r.Context().Done():
			// Client went away. Drop the stream-side bookkeeping now; the
			// engine call keeps running server-side and its eventual
			// terminal write becomes a benign no-op.
			slog.Info("client disconnected mid-stream", "request_id", requestID, "user_id", sess.UserID)
			h.registry.Remove(requestID)
			return
		}
	}
}

// runEngineCall performs the long-running engine chat call and terminates
// the stream with complete or error. Runs detached from the HTTP request
// context: a client disconnect must not cancel the call mid-flight.
func (h *Handler) runEngineCall(requestID, userID string, chatReq ChatRequest) {
	cfg := h.cfg()
	start := time.Now()

	resp, err := h.engine.Chat(context.Background(), engine.ChatRequest{
		UserID:                  userID,
		Message:                 chatReq.Message,
		MessageType:             engine.MessageType(chatReq.MessageType),
		AudioBase64:             chatReq.AudioBase64,
		AudioFormat:             chatReq.AudioFormat,
		ProgressCallbackURL:     h.callbackURL(requestID),
		ProgressThrottleSeconds: cfg.Engine.ProgressThrottleSeconds,
	})
	durationMs := float64(time.Since(start).Milliseconds())

	if err != nil {
		slog.Error("engine chat call failed", "request_id", requestID, "user_id", userID, "error", err)
		if h.metrics != nil {
			h.metrics.RecordEngineCall("chat_stream", "error", durationMs)
		}
		h.registry.Fail(requestID, engineFailureMessage)
		return
	}

	slog.Info("engine chat call completed",
		"request_id", requestID,
		"user_id", userID,
		"responses", len(resp.Responses),
		"duration_ms", int64(durationMs),
	)
	if h.metrics != nil {
		h.metrics.RecordEngineCall("chat_stream", "ok", durationMs)
	}
	h.registry.Complete(requestID, resp)
}

// callbackURL builds the externally reachable progress webhook URL for a
// request. Empty when no public base URL is configured, which disables
// progress callbacks entirely.
func (h *Handler) callbackURL(requestID string) string {
	base := h.cfg().Engine.PublicBaseURL
	if base == "" {
		return ""
	}
	return fmt.Sprintf("%s/api/progress-callback?requestId=%s",
		strings.TrimSuffix(base, "/"), url.QueryEscape(requestID))
}
