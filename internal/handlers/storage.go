package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/agenttrail/agenttrail/internal/config"
	"github.com/agenttrail/agenttrail/internal/httputil"
	"github.com/agenttrail/agenttrail/internal/logging"
	"github.com/agenttrail/agenttrail/internal/storage"
)

// redacted replaces secret values in API responses.
const redacted = "***"

// Storage serves the backend administration API.
type Storage struct {
	manager *storage.Manager
	cfg     *config.Config
	logger  *logging.Logger
}

// NewStorage builds the storage admin handler set.
func NewStorage(manager *storage.Manager, cfg *config.Config, logger *logging.Logger) *Storage {
	if logger == nil {
		logger = logging.Default()
	}
	return &Storage{manager: manager, cfg: cfg, logger: logger}
}

// Test handles POST /api/storage/test: probes a candidate configuration
// without activating it.
func (h *Storage) Test(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.decodeConfig(w, r)
	if !ok {
		return
	}
	result := h.manager.Test(r.Context(), cfg)
	httputil.WriteJSON(w, http.StatusOK, result)
}

// Configure handles POST /api/storage/configure: activates the
// configuration if its connection test passes.
func (h *Storage) Configure(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.decodeConfig(w, r)
	if !ok {
		return
	}
	result := h.manager.Configure(r.Context(), cfg)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadRequest
	}
	httputil.WriteJSON(w, status, result)
}

// Current handles GET /api/storage/current. Secrets are redacted, never
// echoed.
func (h *Storage) Current(w http.ResponseWriter, r *http.Request) {
	cfg := h.manager.CurrentConfig()
	if cfg.SecretAccessKey != "" {
		cfg.SecretAccessKey = redacted
	}
	if cfg.AccountKey != "" {
		cfg.AccountKey = redacted
	}
	if cfg.ConnectionString != "" {
		cfg.ConnectionString = redacted
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"config":   cfg,
		"backends": h.manager.Backends(),
	})
}

// Reset handles POST /api/storage/reset: reverts to the local default.
func (h *Storage) Reset(w http.ResponseWriter, r *http.Request) {
	result := h.manager.Reset()
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Storage) decodeConfig(w http.ResponseWriter, r *http.Request) (storage.Config, bool) {
	var cfg storage.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return cfg, false
	}
	if !cfg.Type.Valid() {
		httputil.WriteError(w, http.StatusBadRequest, "unknown storage type: "+string(cfg.Type))
		return cfg, false
	}
	// A local backend is a filesystem path and rides the same allowlist
	// as directory browsing: rejected here, before any adapter is built.
	if cfg.Type == storage.KindLocal && cfg.Path != "" && !h.cfg.PathAllowed(cfg.Path) {
		h.logger.WarnContext(r.Context(), "storage path not allowed", slog.String("path", cfg.Path))
		httputil.WriteError(w, http.StatusForbidden, "path not allowed")
		return cfg, false
	}
	return cfg, true
}
