package ratelimit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/unfoldingWord/bt-servant-web-client/internal/auth"
	"github.com/unfoldingWord/bt-servant-web-client/internal/httputil"
	"github.com/unfoldingWord/bt-servant-web-client/internal/telemetry"
)

const (
	defaultRequestsPerMinute = 30

	headerRateLimitRequests          = "X-RateLimit-Limit-Requests"
	headerRateLimitRemainingRequests = "X-RateLimit-Remaining-Requests"
	headerRateLimitReset             = "X-RateLimit-Reset-Requests"
	headerRetryAfter                 = "Retry-After"
)

// Middleware returns chi middleware that enforces a per-user request limit
// on chat endpoints. AI calls are expensive; a runaway client script must
// not be able to hammer the engine through an authenticated session.
func Middleware(limiter *Limiter, requestsPerMinute int, metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	if requestsPerMinute <= 0 {
		requestsPerMinute = defaultRequestsPerMinute
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			sess, ok := auth.SessionFromContext(r.Context())
			if !ok {
				// No session — let request pass (auth middleware will catch it)
				next.ServeHTTP(w, r)
				return
			}

			key := fmt.Sprintf("user:%s", sess.UserID)
			result, _ := limiter.Check(r.Context(), key, int64(requestsPerMinute), time.Minute)

			// Always set rate limit headers
			w.Header().Set(headerRateLimitRequests, strconv.Itoa(requestsPerMinute))
			w.Header().Set(headerRateLimitRemainingRequests, strconv.FormatInt(result.Remaining, 10))
			w.Header().Set(headerRateLimitReset, result.ResetAt.Format(time.RFC3339))

			if !result.Allowed {
				slog.Warn("rate limit exceeded",
					"request_id", reqID,
					"user_id", sess.UserID,
					"limit", requestsPerMinute,
				)
				if metrics != nil {
					metrics.RecordRateLimitHit("requests")
				}
				w.Header().Set(headerRetryAfter, strconv.Itoa(int(result.RetryAfter.Seconds())))
				httputil.WriteRateLimitError(w, reqID,
					fmt.Sprintf("Rate limit exceeded: %d requests per minute. Retry after %s", requestsPerMinute, result.ResetAt.Format(time.RFC3339)))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
