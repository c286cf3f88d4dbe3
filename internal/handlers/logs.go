// Package handlers exposes the query and administration API over HTTP.
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/agenttrail/agenttrail/internal/config"
	"github.com/agenttrail/agenttrail/internal/httputil"
	"github.com/agenttrail/agenttrail/internal/logging"
	"github.com/agenttrail/agenttrail/internal/query"
	"github.com/agenttrail/agenttrail/internal/service"
)

// Logs serves the read-side API.
type Logs struct {
	svc    *service.Service
	cfg    *config.Config
	logger *logging.Logger
}

// NewLogs builds the log query handler set.
func NewLogs(svc *service.Service, cfg *config.Config, logger *logging.Logger) *Logs {
	if logger == nil {
		logger = logging.Default()
	}
	return &Logs{svc: svc, cfg: cfg, logger: logger}
}

// Files handles GET /api/logs/files.
func (h *Logs) Files(w http.ResponseWriter, r *http.Request) {
	dir, ok := h.dirParam(w, r)
	if !ok {
		return
	}
	files, err := h.svc.ListFiles(r.Context(), dir)
	if err != nil {
		h.serverError(w, r, "listing files", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"files": files,
		"total": len(files),
	})
}

// Data handles GET /api/logs/data.
func (h *Logs) Data(w http.ResponseWriter, r *http.Request) {
	req, ok := h.dataRequest(w, r)
	if !ok {
		return
	}
	page, err := h.svc.Data(r.Context(), req)
	if err != nil {
		if errors.Is(err, query.ErrInvalidPattern) {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.serverError(w, r, "querying data", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

// Search handles GET /api/logs/search.
func (h *Logs) Search(w http.ResponseWriter, r *http.Request) {
	req, ok := h.dataRequest(w, r)
	if !ok {
		return
	}
	result, err := h.svc.Search(r.Context(), req)
	if err != nil {
		if errors.Is(err, query.ErrInvalidPattern) {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.serverError(w, r, "searching", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// Stats handles GET /api/logs/stats.
func (h *Logs) Stats(w http.ResponseWriter, r *http.Request) {
	dir, ok := h.dirParam(w, r)
	if !ok {
		return
	}
	stats, err := h.svc.Stats(r.Context(), dir)
	if err != nil {
		h.serverError(w, r, "computing stats", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// Sessions handles GET /api/logs/sessions.
func (h *Logs) Sessions(w http.ResponseWriter, r *http.Request) {
	dir, ok := h.dirParam(w, r)
	if !ok {
		return
	}
	result, err := h.svc.Sessions(r.Context(), dir)
	if err != nil {
		h.serverError(w, r, "grouping sessions", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// Metrics handles GET /api/logs/metrics (the aggregation bundle, not
// Prometheus metrics).
func (h *Logs) Metrics(w http.ResponseWriter, r *http.Request) {
	dir, ok := h.dirParam(w, r)
	if !ok {
		return
	}
	bundle, err := h.svc.Metrics(r.Context(), dir)
	if err != nil {
		h.serverError(w, r, "aggregating", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, bundle)
}

// Export handles GET /api/logs/export.
func (h *Logs) Export(w http.ResponseWriter, r *http.Request) {
	dir, ok := h.dirParam(w, r)
	if !ok {
		return
	}
	req := service.ExportRequest{
		Dir:     dir,
		Files:   splitParam(r.URL.Query().Get("files")),
		Filters: parseFilters(r),
		Format:  r.URL.Query().Get("format"),
	}

	result, err := h.svc.Export(r.Context(), req)
	if err != nil {
		if errors.Is(err, query.ErrInvalidPattern) {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		if strings.Contains(err.Error(), "unsupported format") {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.serverError(w, r, "exporting", err)
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Body); err != nil {
		h.logger.WarnContext(r.Context(), "writing export body", slog.String("error", err.Error()))
	}
}

// Browse handles GET /api/directories/browse. Paths outside the
// allowlist are rejected before any filesystem access.
func (h *Logs) Browse(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = h.cfg.Log.Dir
	}

	if !h.cfg.PathAllowed(path) {
		httputil.WriteError(w, http.StatusForbidden, "path not allowed")
		return
	}

	listing, err := browseDirectory(path)
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listing)
}

func (h *Logs) serverError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.ErrorContext(r.Context(), op, slog.String("error", err.Error()))
	httputil.WriteError(w, http.StatusInternalServerError, op+" failed")
}

// dirParam extracts the optional dir override. Directories outside the
// allowlist are rejected before anything touches the filesystem.
func (h *Logs) dirParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	dir := r.URL.Query().Get("dir")
	if dir != "" && !h.cfg.PathAllowed(dir) {
		httputil.WriteError(w, http.StatusForbidden, "path not allowed")
		return "", false
	}
	return dir, true
}

// dataRequest extracts the shared dir/query/filter/pagination parameter
// set, rejecting disallowed dir overrides.
func (h *Logs) dataRequest(w http.ResponseWriter, r *http.Request) (service.DataRequest, bool) {
	dir, ok := h.dirParam(w, r)
	if !ok {
		return service.DataRequest{}, false
	}
	q := r.URL.Query()
	return service.DataRequest{
		Dir:       dir,
		Files:     splitParam(q.Get("files")),
		Filters:   parseFilters(r),
		Page:      intParam(q.Get("page"), 1),
		PageSize:  intParam(q.Get("page_size"), 0),
		Ascending: q.Get("sort") == "asc",
	}, true
}

func parseFilters(r *http.Request) query.Filters {
	q := r.URL.Query()
	text := q.Get("q")
	if text == "" {
		text = q.Get("query")
	}
	return query.Filters{
		Category:    q.Get("category"),
		User:        q.Get("user"),
		Session:     q.Get("session"),
		DateFrom:    q.Get("date_from"),
		DateTo:      q.Get("date_to"),
		Query:       text,
		Regex:       boolParam(q.Get("regex")),
		FileExt:     q.Get("file_ext"),
		CommandName: q.Get("command_name"),
	}
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func boolParam(raw string) bool {
	return raw == "true" || raw == "1"
}
