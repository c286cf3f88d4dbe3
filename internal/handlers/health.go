package handlers

import (
	"net/http"

	"github.com/agenttrail/agenttrail/internal/httputil"
	"github.com/agenttrail/agenttrail/internal/storage"
)

// Healthz reports process liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz reports readiness: the process is up and the active storage
// backend answers its connection test.
func Readyz(manager *storage.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := manager.Current().TestConnection(r.Context())
		if !result.Success {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"reason": result.Message,
			})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
