package web

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/unfoldingWord/bt-servant-web-client/internal/engine"
	"github.com/unfoldingWord/bt-servant-web-client/internal/httputil"
)

// ProgressCallback handles POST /api/progress-callback?requestId=...: the
// webhook the engine invokes with incremental progress while processing a
// chat request.
//
// Deliberate asymmetry: once the credential and requestId checks pass, this
// endpoint ALWAYS responds 200 — including when no matching stream exists or
// the body cannot be parsed. The request may have legitimately finished or
// been abandoned, and the engine's progress loop must never be blocked or
// retried into a failure loop by a UI-side detail. This is fire-and-forget
// by design, not swallowed errors.
func (h *Handler) ProgressCallback(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	token := r.Header.Get("X-Engine-Token")
	if token == "" || token != h.cfg().Engine.APIKey {
		httputil.WriteAuthError(w, reqID, "Unauthorized")
		return
	}

	requestID := r.URL.Query().Get("requestId")
	if requestID == "" {
		httputil.WriteBadRequestError(w, reqID, "Missing requestId")
		return
	}

	var cb engine.ProgressCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		slog.Error("progress callback body parse failed", "request_id", shortID(requestID), "error", err)
		writeOK(w)
		return
	}

	if h.registry.PushProgress(requestID, cb) {
		if h.metrics != nil {
			h.metrics.RecordProgressCallback("delivered")
		}
	} else {
		slog.Warn("progress callback for unknown or closed request", "request_id", shortID(requestID))
		if h.metrics != nil {
			h.metrics.RecordProgressCallback("unmatched")
		}
	}

	writeOK(w)
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

// shortID truncates a request ID for logs.
func shortID(requestID string) string {
	if len(requestID) > 8 {
		return requestID[:8] + "..."
	}
	return requestID
}
