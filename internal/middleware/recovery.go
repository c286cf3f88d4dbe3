package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/agenttrail/agenttrail/internal/httputil"
)

// Recovery catches any otherwise-unhandled panic at the API boundary and
// returns a structured error body. One bad request must never take the
// serving process down.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						slog.Any("panic", rec),
						slog.String("path", r.URL.Path),
						slog.String("stack", string(debug.Stack())),
					)
					httputil.WriteError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
