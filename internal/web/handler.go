package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/unfoldingWord/bt-servant-web-client/internal/auth"
	"github.com/unfoldingWord/bt-servant-web-client/internal/config"
	"github.com/unfoldingWord/bt-servant-web-client/internal/engine"
	"github.com/unfoldingWord/bt-servant-web-client/internal/httputil"
	"github.com/unfoldingWord/bt-servant-web-client/internal/relay"
	"github.com/unfoldingWord/bt-servant-web-client/internal/telemetry"
)

// engineFailureMessage is shown to users when the engine call fails. Raw
// upstream error bodies are logged but never forwarded to the browser.
const engineFailureMessage = "The assistant is temporarily unavailable. Please try again."

// Handler holds dependencies for the web client HTTP handlers.
type Handler struct {
	registry *relay.Registry
	engine   *engine.Client
	cfg      func() *config.Config
	metrics  *telemetry.Metrics
}

func NewHandler(registry *relay.Registry, engineClient *engine.Client, cfg func() *config.Config, metrics *telemetry.Metrics) *Handler {
	return &Handler{
		registry: registry,
		engine:   engineClient,
		cfg:      cfg,
		metrics:  metrics,
	}
}

// ChatRequest is the browser-facing chat submission payload.
type ChatRequest struct {
	Message     string `json:"message"`
	MessageType string `json:"message_type"`
	AudioBase64 string `json:"audio_base64,omitempty"`
	AudioFormat string `json:"audio_format,omitempty"`
}

// validate normalizes defaults and checks the payload. Returns a
// human-readable problem description, or empty when valid.
func (req *ChatRequest) validate() string {
	if req.MessageType == "" {
		req.MessageType = string(engine.MessageTypeText)
	}
	switch engine.MessageType(req.MessageType) {
	case engine.MessageTypeText:
		if req.Message == "" {
			return "message is required"
		}
	case engine.MessageTypeAudio:
		if req.AudioBase64 == "" {
			return "audio_base64 is required for audio messages"
		}
	default:
		return "message_type must be \"text\" or \"audio\""
	}
	return ""
}

// Chat handles POST /api/chat: a plain request/response chat proxy without
// streaming, kept for clients that cannot consume SSE.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
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

	start := time.Now()
	resp, err := h.engine.Chat(r.Context(), engine.ChatRequest{
		UserID:      sess.UserID,
		Message:     chatReq.Message,
		MessageType: engine.MessageType(chatReq.MessageType),
		AudioBase64: chatReq.AudioBase64,
		AudioFormat: chatReq.AudioFormat,
	})
	durationMs := float64(time.Since(start).Milliseconds())

	if err != nil {
		slog.Error("engine chat call failed", "request_id", reqID, "user_id", sess.UserID, "error", err)
		if h.metrics != nil {
			h.metrics.RecordEngineCall("chat", "error", durationMs)
			h.metrics.RecordRequest("chat", "503")
		}
		httputil.WriteServiceUnavailableError(w, reqID, engineFailureMessage)
		return
	}

	slog.Info("chat completed",
		"request_id", reqID,
		"user_id", sess.UserID,
		"responses", len(resp.Responses),
		"response_language", resp.ResponseLanguage,
		"duration_ms", int64(durationMs),
	)
	if h.metrics != nil {
		h.metrics.RecordEngineCall("chat", "ok", durationMs)
		h.metrics.RecordRequest("chat", "200")
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// History handles GET /api/chat/history: prior conversation turns for the
// authenticated user, proxied from the engine.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	history, err := h.engine.ChatHistory(r.Context(), sess.UserID, limit, offset)
	if err != nil {
		slog.Error("engine history call failed", "request_id", reqID, "user_id", sess.UserID, "error", err)
		if h.metrics != nil {
			h.metrics.RecordRequest("history", "503")
		}
		httputil.WriteServiceUnavailableError(w, reqID, "Chat history is temporarily unavailable")
		return
	}

	if h.metrics != nil {
		h.metrics.RecordRequest("history", "200")
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(history)
}

// PreferencesUpdateRequest is the browser-facing preferences payload. Only
// the response language is user-settable through this surface.
type PreferencesUpdateRequest struct {
	ResponseLanguage string `json:"response_language"`
}

// GetPreferences handles GET /api/preferences.
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	prefs, err := h.engine.Preferences(r.Context(), sess.UserID)
	if err != nil {
		slog.Error("engine preferences call failed", "request_id", reqID, "user_id", sess.UserID, "error", err)
		httputil.WriteServiceUnavailableError(w, reqID, "Preferences are temporarily unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(prefs)
}

// UpdatePreferences handles PUT /api/preferences.
func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	var update PreferencesUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}

	saved, err := h.engine.UpdatePreferences(r.Context(), sess.UserID, engine.UserPreferences{
		ResponseLanguage: update.ResponseLanguage,
	})
	if err != nil {
		slog.Error("engine preferences update failed", "request_id", reqID, "user_id", sess.UserID, "error", err)
		httputil.WriteServiceUnavailableError(w, reqID, "Preferences are temporarily unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(saved)
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
