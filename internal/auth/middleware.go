package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/unfoldingWord/bt-servant-web-client/internal/httputil"
)

// Middleware returns a chi middleware that authenticates requests via a
// Bearer session token.
func Middleware(store SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			// Extract Bearer token
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httputil.WriteAuthError(w, reqID, "Missing Authorization header. Use: Authorization: Bearer <session-token>")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == authHeader {
				httputil.WriteAuthError(w, reqID, "Invalid Authorization format. Use: Authorization: Bearer <session-token>")
				return
			}
			if token == "" {
				httputil.WriteAuthError(w, reqID, "Empty session token")
				return
			}

			// Hash and lookup
			tokenHash := HashToken(token)
			sess, err := store.Lookup(r.Context(), tokenHash)
			if err != nil {
				slog.Error("session lookup failed", "error", err, "token_prefix", TokenPrefix(token))
				httputil.WriteInternalError(w, reqID, "Internal error during authentication")
				return
			}
			if sess == nil {
				slog.Warn("auth failed: session not found or expired", "token_prefix", TokenPrefix(token))
				httputil.WriteAuthError(w, reqID, "Invalid or expired session")
				return
			}

			ctx := ContextWithSession(r.Context(), sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
