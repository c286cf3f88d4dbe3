package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenttrail/agenttrail/internal/cache"
	"github.com/agenttrail/agenttrail/internal/config"
	"github.com/agenttrail/agenttrail/internal/query"
	"github.com/agenttrail/agenttrail/internal/storage"
)

func testEntry(category, action, timestamp, trajectory string, data map[string]any) string {
	entry := map[string]any{
		"event_id":  "e-" + timestamp,
		"timestamp": timestamp,
		"action":    action,
		"category":  category,
		"phase":     "pre",
		"system":    map[string]any{"username": "dev", "hostname": "box"},
		"data":      data,
	}
	if trajectory != "" {
		entry["trajectory_id"] = trajectory
	}
	b, _ := json.Marshal(entry)
	return string(b)
}

func seedMaster(t *testing.T, dir string) {
	t.Helper()
	lines := []string{
		testEntry("prompt", "pre_user_prompt", "2026-03-14T09:00:00.000000Z", "traj-1",
			map[string]any{"user_prompt": "refactor the parser"}),
		testEntry("command", "pre_run_command", "2026-03-14T10:00:00.000000Z", "traj-1",
			map[string]any{"command_line": "go test ./...", "command_name": "go"}),
		testEntry("file_write", "post_write_code", "2026-03-14T11:00:00.000000Z", "traj-2",
			map[string]any{
				"file_path": "/srv/app/main.go", "edit_count": 1,
				"total_lines_added": 3, "total_lines_removed": 1,
			}),
		"this line is not json",
		testEntry("prompt", "pre_user_prompt", "2026-03-14T12:00:00.000000Z", "",
			map[string]any{"user_prompt": "now add tests"}),
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "all_events.jsonl"),
		[]byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func newTestService(t *testing.T, dir string) (*Service, *storage.Manager) {
	t.Helper()
	cfg := &config.Config{
		Log:        config.LogConfig{Dir: dir},
		Pagination: config.PaginationConfig{DefaultPageSize: 100, MaxPageSize: 1000},
	}
	c := cache.New(time.Minute, 32)

	var svc *Service
	manager := storage.NewManager(dir, func() {
		if svc != nil {
			svc.InvalidateCache()
		}
	}, nil)
	svc = New(cfg, manager, c, nil)
	return svc, manager
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	seedMaster(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "summary.log"), []byte("text\n"), 0o644))

	svc, _ := newTestService(t, dir)

	files, err := svc.ListFiles(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, files, 2)

	byName := map[string]FileSummary{}
	for _, f := range files {
		byName[f.Name] = f
	}
	assert.Equal(t, 4, byName["all_events.jsonl"].Entries, "the malformed line is not an entry")
	assert.Equal(t, -1, byName["summary.log"].Entries, "plain logs have no entry count")
}

func TestDataSortedAndTagged(t *testing.T) {
	dir := t.TempDir()
	seedMaster(t, dir)
	svc, _ := newTestService(t, dir)

	page, err := svc.Data(context.Background(), DataRequest{})
	require.NoError(t, err)

	assert.Equal(t, 4, page.Total)
	assert.Equal(t, "2026-03-14T12:00:00.000000Z", page.Entries[0].Timestamp(), "newest first")
	assert.Equal(t, "all_events.jsonl", page.Entries[0]["source_file"])
}

func TestDataFiltered(t *testing.T) {
	dir := t.TempDir()
	seedMaster(t, dir)
	svc, _ := newTestService(t, dir)

	page, err := svc.Data(context.Background(), DataRequest{
		Filters: query.Filters{Category: "prompt"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	page, err = svc.Data(context.Background(), DataRequest{
		Filters: query.Filters{Session: "traj-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
}

func TestDataPagination(t *testing.T) {
	dir := t.TempDir()
	seedMaster(t, dir)
	svc, _ := newTestService(t, dir)

	page, err := svc.Data(context.Background(), DataRequest{Page: 2, PageSize: 3})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Entries, 1)
}

func TestSearchEchoesFilters(t *testing.T) {
	dir := t.TempDir()
	seedMaster(t, dir)
	svc, _ := newTestService(t, dir)

	result, err := svc.Search(context.Background(), DataRequest{
		Filters: query.Filters{Category: "command", Query: "go test"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, "command", result.FiltersApplied["category"])
	assert.Equal(t, "go test", result.FiltersApplied["query"])
	assert.NotContains(t, result.FiltersApplied, "user")
}

func TestLegacyStreamFallback(t *testing.T) {
	dir := t.TempDir()
	line := testEntry("prompt", "pre_user_prompt", "2026-03-14T09:00:00.000000Z", "", nil)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "consolidated.jsonl"),
		[]byte(line+"\n"), 0o644))

	svc, _ := newTestService(t, dir)

	page, err := svc.Data(context.Background(), DataRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, "consolidated.jsonl", page.Entries[0]["source_file"])
}

func TestStats(t *testing.T) {
	dir := t.TempDir()
	seedMaster(t, dir)
	svc, _ := newTestService(t, dir)

	stats, err := svc.Stats(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalFiles)
	assert.Equal(t, 4, stats.TotalEntries)
	assert.NotZero(t, stats.TotalSize)

	assert.Equal(t, map[string]int{"prompt": 2, "command": 1, "file_write": 1}, stats.Categories)
	assert.Equal(t, 2, stats.TotalPrompts)
	assert.Equal(t, 1, stats.TotalCommands)
	assert.Equal(t, 1, stats.TotalFileWrites)
	assert.Equal(t, 1, stats.TotalCodeBlocks, "accumulated from edit_count")
	assert.Zero(t, stats.TotalFileReads)
	assert.Zero(t, stats.TotalMCPCalls)
	assert.Equal(t, []string{"dev"}, stats.Users)
	assert.Equal(t, 1, stats.UniqueUsers)
	assert.Equal(t, []string{"traj-1", "traj-2"}, stats.Sessions)
	assert.Equal(t, 2, stats.UniqueSessions)
	assert.Equal(t, "2026-03-14T09:00:00.000000Z", stats.DateRange.Start)
	assert.Equal(t, "2026-03-14T12:00:00.000000Z", stats.DateRange.End)
}

func TestSessions(t *testing.T) {
	dir := t.TempDir()
	seedMaster(t, dir)
	svc, _ := newTestService(t, dir)

	result, err := svc.Sessions(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, 3, result.TotalSessions)

	byID := map[string]Session{}
	for _, s := range result.Sessions {
		byID[s.SessionID] = s
	}

	traj1 := byID["traj-1"]
	assert.Equal(t, 2, traj1.EventCount)
	assert.Equal(t, "2026-03-14T09:00:00.000000Z", traj1.StartTime)
	assert.Equal(t, "2026-03-14T10:00:00.000000Z", traj1.EndTime)
	assert.Equal(t, map[string]int{"prompt": 1, "command": 1}, traj1.Categories)
	assert.Equal(t, []string{"dev"}, traj1.Users)

	assert.Contains(t, byID, "no_session")
	assert.Equal(t, 1, byID["no_session"].EventCount)

	// Sessions run newest start first.
	assert.Equal(t, "no_session", result.Sessions[0].SessionID)
}

func TestMetrics(t *testing.T) {
	dir := t.TempDir()
	seedMaster(t, dir)
	svc, _ := newTestService(t, dir)

	bundle, err := svc.Metrics(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 4, bundle.TotalEvents)
	assert.Equal(t, 2, bundle.Categories["prompt"])
	assert.Equal(t, 3, bundle.TotalLinesAdded)
	assert.Equal(t, 2, bundle.NetLinesDelta)
	assert.Equal(t, 2, bundle.UniqueSessions)
}

func TestExportJSON(t *testing.T) {
	dir := t.TempDir()
	seedMaster(t, dir)
	svc, _ := newTestService(t, dir)

	result, err := svc.Export(context.Background(), ExportRequest{Format: "json"})
	require.NoError(t, err)
	assert.Equal(t, "application/json", result.ContentType)
	assert.True(t, strings.HasSuffix(result.Filename, ".json"))

	var records []map[string]any
	require.NoError(t, json.Unmarshal(result.Body, &records))
	assert.Len(t, records, 4)
}

func TestExportCSV(t *testing.T) {
	dir := t.TempDir()
	seedMaster(t, dir)
	svc, _ := newTestService(t, dir)

	result, err := svc.Export(context.Background(), ExportRequest{
		Format:  "csv",
		Filters: query.Filters{Category: "command"},
	})
	require.NoError(t, err)
	assert.Equal(t, "text/csv", result.ContentType)

	lines := strings.Split(strings.TrimSpace(string(result.Body)), "\n")
	require.Len(t, lines, 2, "header plus one filtered row")
	assert.Contains(t, lines[0], "timestamp,category,action")
	assert.Contains(t, lines[1], "go test ./...")
}

func TestExportUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	seedMaster(t, dir)
	svc, _ := newTestService(t, dir)

	_, err := svc.Export(context.Background(), ExportRequest{Format: "xml"})
	assert.ErrorContains(t, err, "unsupported format")
}

func TestCacheInvalidatedOnBackendSwap(t *testing.T) {
	dir := t.TempDir()
	seedMaster(t, dir)
	svc, manager := newTestService(t, dir)

	page, err := svc.Data(context.Background(), DataRequest{})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)

	// Swap to a directory with a different master stream. Without
	// invalidation the old page would be served from cache.
	otherDir := t.TempDir()
	line := testEntry("prompt", "pre_user_prompt", "2026-03-20T09:00:00.000000Z", "", nil)
	require.NoError(t, os.WriteFile(filepath.Join(otherDir, "all_events.jsonl"),
		[]byte(line+"\n"), 0o644))

	result := manager.Configure(context.Background(), storage.Config{
		Type: storage.KindLocal,
		Path: otherDir,
	})
	require.True(t, result.Success)

	page, err = svc.Data(context.Background(), DataRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestDirOverride(t *testing.T) {
	dir := t.TempDir()
	seedMaster(t, dir)
	svc, _ := newTestService(t, dir)

	other := t.TempDir()
	line := testEntry("command", "pre_run_command", "2026-03-21T09:00:00.000000Z", "",
		map[string]any{"command_line": "ls"})
	require.NoError(t, os.WriteFile(filepath.Join(other, "all_events.jsonl"),
		[]byte(line+"\n"), 0o644))

	// The override reads its own directory without reconfiguring the
	// backend, and the two result sets cache independently.
	page, err := svc.Data(context.Background(), DataRequest{Dir: other})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, err = svc.Data(context.Background(), DataRequest{})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)

	files, err := svc.ListFiles(context.Background(), other)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, 1, files[0].Entries)

	stats, err := svc.Stats(context.Background(), other)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalCommands)
}

func TestDataRequestCacheKey(t *testing.T) {
	a := DataRequest{Filters: query.Filters{Category: "prompt"}, Page: 1}
	b := DataRequest{Filters: query.Filters{Category: "command"}, Page: 1}
	c := DataRequest{Dir: "/var/other", Filters: query.Filters{Category: "prompt"}, Page: 1}
	assert.NotEqual(t, a.cacheKey("data"), b.cacheKey("data"))
	assert.NotEqual(t, a.cacheKey("data"), c.cacheKey("data"))
	assert.Equal(t, a.cacheKey("data"), a.cacheKey("data"))

	for i := 0; i < 2; i++ {
		key := DataRequest{Page: i}.cacheKey("data")
		assert.True(t, strings.HasPrefix(key, "data|"), fmt.Sprintf("key %q", key))
	}
}
