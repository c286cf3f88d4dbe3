package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/agenttrail/agenttrail/internal/httputil"
	"github.com/agenttrail/agenttrail/internal/metrics"
	"github.com/agenttrail/agenttrail/internal/ratelimit"
)

// Admission gates API routes through the sliding-window limiter. A
// rejection is a structured 429 with a Retry-After hint. Limiter errors
// fail open: degraded admission control beats a dead query API.
func Admission(limiter ratelimit.Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				next.ServeHTTP(w, r)
				return
			}

			client := clientIdentity(r)
			decision, err := limiter.Allow(r.Context(), client)
			if err != nil {
				logger.Error("admission check failed", slog.String("error", err.Error()))
				next.ServeHTTP(w, r)
				return
			}

			if !decision.Allowed {
				metrics.AdmissionRejections.WithLabelValues(client).Inc()
				retryAfter := int(decision.RetryAfter.Seconds())
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
				httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
					"error":               "rate limit exceeded",
					"retry_after_seconds": retryAfter,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIdentity resolves the client key for admission control: the first
// X-Forwarded-For hop when present, else the connection's remote IP.
func clientIdentity(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.Index(fwd, ","); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
