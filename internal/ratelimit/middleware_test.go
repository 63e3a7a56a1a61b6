package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/unfoldingWord/bt-servant-web-client/internal/auth"
)

func testSession() *auth.Session {
	return &auth.Session{
		ID:        "sess-1",
		UserID:    "user-1",
		Email:     "user@example.com",
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestMiddleware_AllowsRequest(t *testing.T) {
	limiter := NewLimiter(nil)
	mw := Middleware(limiter, 100, nil)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", nil)
	req = req.WithContext(auth.ContextWithSession(req.Context(), testSession()))
	rec := httptest.NewRecorder()
	rec.Header().Set("X-Request-ID", "req-1")

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	// Check rate limit headers
	if h := rec.Header().Get(headerRateLimitRequests); h != "100" {
		t.Errorf("expected X-RateLimit-Limit-Requests=100, got %s", h)
	}
	if h := rec.Header().Get(headerRateLimitRemainingRequests); h == "" {
		t.Error("expected X-RateLimit-Remaining-Requests header")
	}
	if h := rec.Header().Get(headerRateLimitReset); h == "" {
		t.Error("expected X-RateLimit-Reset-Requests header")
	}
}

func TestMiddleware_DefaultLimit(t *testing.T) {
	limiter := NewLimiter(nil)
	mw := Middleware(limiter, 0, nil)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", nil)
	req = req.WithContext(auth.ContextWithSession(req.Context(), testSession()))
	rec := httptest.NewRecorder()
	rec.Header().Set("X-Request-ID", "req-2")

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if h := rec.Header().Get(headerRateLimitRequests); h != "30" {
		t.Errorf("expected default limit 30, got %s", h)
	}
}

func TestMiddleware_NoSession_PassThrough(t *testing.T) {
	limiter := NewLimiter(nil)
	mw := Middleware(limiter, 100, nil)

	called := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if !called {
		t.Error("expected handler to be called when no session in context")
	}
}
