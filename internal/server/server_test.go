package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenttrail/agenttrail/internal/cache"
	"github.com/agenttrail/agenttrail/internal/config"
	"github.com/agenttrail/agenttrail/internal/ratelimit"
	"github.com/agenttrail/agenttrail/internal/service"
	"github.com/agenttrail/agenttrail/internal/storage"
)

func seedLogs(t *testing.T, dir string) {
	t.Helper()
	lines := []string{
		`{"event_id":"e1","timestamp":"2026-03-14T09:00:00.000000Z","action":"pre_user_prompt","category":"prompt","trajectory_id":"traj-1","system":{"username":"dev"},"data":{"user_prompt":"hello"}}`,
		`{"event_id":"e2","timestamp":"2026-03-14T10:00:00.000000Z","action":"pre_run_command","category":"command","system":{"username":"dev"},"data":{"command_line":"make build","command_name":"make"}}`,
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "all_events.jsonl"),
		[]byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func newTestHandler(t *testing.T, dir string, limiter ratelimit.Limiter) http.Handler {
	t.Helper()
	cfg := &config.Config{
		Log:        config.LogConfig{Dir: dir},
		Server:     config.ServerConfig{Port: 5173},
		Pagination: config.PaginationConfig{DefaultPageSize: 100, MaxPageSize: 1000},
		CORS:       config.CORSConfig{AllowedOrigins: []string{"*"}},
		Storage:    config.StorageConfig{AllowedPaths: []string{dir}},
	}

	resultCache := cache.New(time.Minute, 32)
	var svc *service.Service
	manager := storage.NewManager(dir, func() {
		if svc != nil {
			svc.InvalidateCache()
		}
	}, nil)
	svc = service.New(cfg, manager, resultCache, nil)

	if limiter == nil {
		limiter = ratelimit.NoOpLimiter{}
	}
	srv := New(cfg, svc, manager, limiter, nil)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return srv.Handler()
}

func doJSON(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestHealthEndpoints(t *testing.T) {
	dir := t.TempDir()
	seedLogs(t, dir)
	h := newTestHandler(t, dir, nil)

	rec, body := doJSON(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, body = doJSON(t, h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", body["status"])
}

func TestFilesEndpoint(t *testing.T) {
	dir := t.TempDir()
	seedLogs(t, dir)
	h := newTestHandler(t, dir, nil)

	rec, body := doJSON(t, h, http.MethodGet, "/api/logs/files", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["total"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"), "every response carries a request id")
}

func TestDataEndpoint(t *testing.T) {
	dir := t.TempDir()
	seedLogs(t, dir)
	h := newTestHandler(t, dir, nil)

	rec, body := doJSON(t, h, http.MethodGet, "/api/logs/data?category=command", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["total"])

	entries := body["entries"].([]any)
	entry := entries[0].(map[string]any)
	assert.Equal(t, "command", entry["category"])
	assert.Equal(t, "all_events.jsonl", entry["source_file"])
}

func TestDataEndpointInvalidRegex(t *testing.T) {
	dir := t.TempDir()
	seedLogs(t, dir)
	h := newTestHandler(t, dir, nil)

	rec, body := doJSON(t, h, http.MethodGet, "/api/logs/data?q=%5Bunclosed&regex=true", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "invalid regex")
}

func TestSearchEndpoint(t *testing.T) {
	dir := t.TempDir()
	seedLogs(t, dir)
	h := newTestHandler(t, dir, nil)

	rec, body := doJSON(t, h, http.MethodGet, "/api/logs/search?q=make+build", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["total"])

	applied := body["filters_applied"].(map[string]any)
	assert.Equal(t, "make build", applied["query"])
}

func TestMetricsEndpoint(t *testing.T) {
	dir := t.TempDir()
	seedLogs(t, dir)
	h := newTestHandler(t, dir, nil)

	rec, body := doJSON(t, h, http.MethodGet, "/api/logs/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["total_events"])
	assert.Contains(t, body, "events_by_hour")
	assert.Contains(t, body, "top_commands")
}

func TestExportEndpoint(t *testing.T) {
	dir := t.TempDir()
	seedLogs(t, dir)
	h := newTestHandler(t, dir, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/logs/export?format=csv", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
}

func TestAdmissionControl(t *testing.T) {
	dir := t.TempDir()
	seedLogs(t, dir)
	h := newTestHandler(t, dir, ratelimit.NewMemoryLimiter(2, time.Minute))

	for i := 0; i < 2; i++ {
		rec, _ := doJSON(t, h, http.MethodGet, "/api/logs/files", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec, body := doJSON(t, h, http.MethodGet, "/api/logs/files", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.EqualValues(t, 60, body["retry_after_seconds"])

	// Health endpoints are exempt from admission control.
	recHealth, _ := doJSON(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, recHealth.Code)
}

func TestStorageCurrentRedactsSecrets(t *testing.T) {
	dir := t.TempDir()
	seedLogs(t, dir)
	h := newTestHandler(t, dir, nil)

	rec, body := doJSON(t, h, http.MethodGet, "/api/storage/current", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	cfg := body["config"].(map[string]any)
	assert.Equal(t, "local", cfg["type"])
	assert.Equal(t, dir, cfg["path"])

	backends := body["backends"].(map[string]any)
	assert.Equal(t, true, backends["s3"])
}

func TestStorageConfigureRoundTrip(t *testing.T) {
	dir := t.TempDir()
	seedLogs(t, dir)
	h := newTestHandler(t, dir, nil)

	other := filepath.Join(dir, "archive")
	require.NoError(t, os.Mkdir(other, 0o755))
	rec, body := doJSON(t, h, http.MethodPost, "/api/storage/configure",
		`{"type":"local","path":"`+other+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])

	rec, body = doJSON(t, h, http.MethodGet, "/api/storage/current", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cfg := body["config"].(map[string]any)
	assert.Equal(t, other, cfg["path"])

	rec, body = doJSON(t, h, http.MethodPost, "/api/storage/reset", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
}

func TestStorageConfigureHonorsAllowlist(t *testing.T) {
	dir := t.TempDir()
	seedLogs(t, dir)
	h := newTestHandler(t, dir, nil)

	// A directory outside the allowlist must not become the active
	// backend, and its contents must stay unreachable.
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.jsonl"),
		[]byte(`{"category":"prompt"}`+"\n"), 0o644))

	payload := `{"type":"local","path":"` + outside + `"}`

	rec, body := doJSON(t, h, http.MethodPost, "/api/storage/configure", payload)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "path not allowed", body["error"])

	rec, body = doJSON(t, h, http.MethodPost, "/api/storage/test", payload)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "path not allowed", body["error"])

	rec, body = doJSON(t, h, http.MethodGet, "/api/storage/current", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cfg := body["config"].(map[string]any)
	assert.Equal(t, dir, cfg["path"], "active backend unchanged")

	rec, body = doJSON(t, h, http.MethodGet, "/api/logs/files", "")
	require.Equal(t, http.StatusOK, rec.Code)
	for _, f := range body["files"].([]any) {
		assert.NotEqual(t, "secret.jsonl", f.(map[string]any)["name"])
	}
}

func TestStorageConfigureRejectsBadBackend(t *testing.T) {
	dir := t.TempDir()
	h := newTestHandler(t, dir, nil)

	rec, body := doJSON(t, h, http.MethodPost, "/api/storage/configure", `{"type":"ftp"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "unknown storage type")
}

func TestBrowseAllowlist(t *testing.T) {
	dir := t.TempDir()
	seedLogs(t, dir)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive"), 0o755))
	h := newTestHandler(t, dir, nil)

	rec, body := doJSON(t, h, http.MethodGet, "/api/directories/browse?path="+dir, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dir, body["path"])

	logFiles := body["log_files"].([]any)
	assert.Contains(t, logFiles, "all_events.jsonl")

	rec, body = doJSON(t, h, http.MethodGet, "/api/directories/browse?path=/etc", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "path not allowed", body["error"])
}

func TestDirParameter(t *testing.T) {
	dir := t.TempDir()
	seedLogs(t, dir)
	h := newTestHandler(t, dir, nil)

	archive := filepath.Join(dir, "archive")
	require.NoError(t, os.Mkdir(archive, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(archive, "all_events.jsonl"),
		[]byte(`{"event_id":"e9","timestamp":"2026-02-01T09:00:00.000000Z","action":"pre_user_prompt","category":"prompt"}`+"\n"), 0o644))

	// An allowlisted dir override reads that directory instead of the
	// configured backend.
	rec, body := doJSON(t, h, http.MethodGet, "/api/logs/files?dir="+archive, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["total"])

	rec, body = doJSON(t, h, http.MethodGet, "/api/logs/stats?dir="+archive, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["total_prompts"])

	for _, target := range []string{
		"/api/logs/files?dir=/etc",
		"/api/logs/data?dir=/etc",
		"/api/logs/stats?dir=/etc",
		"/api/logs/sessions?dir=/etc",
		"/api/logs/metrics?dir=/etc",
		"/api/logs/export?dir=/etc",
	} {
		rec, body = doJSON(t, h, http.MethodGet, target, "")
		assert.Equal(t, http.StatusForbidden, rec.Code, target)
		assert.Equal(t, "path not allowed", body["error"], target)
	}
}

func TestCORSPreflights(t *testing.T) {
	dir := t.TempDir()
	h := newTestHandler(t, dir, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/logs/files", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://dashboard.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
