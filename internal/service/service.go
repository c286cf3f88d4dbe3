// Package service implements the query operations behind the HTTP API:
// file listings, filtered entry pages, full-text search, session grouping,
// aggregation, and export. Expensive results go through the shared cache,
// and concurrent identical aggregations collapse via singleflight.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/agenttrail/agenttrail/internal/aggregate"
	"github.com/agenttrail/agenttrail/internal/cache"
	"github.com/agenttrail/agenttrail/internal/config"
	"github.com/agenttrail/agenttrail/internal/metrics"
	"github.com/agenttrail/agenttrail/internal/query"
	"github.com/agenttrail/agenttrail/internal/storage"
)

// masterStream and its pre-rename predecessor. When a request names no
// files the service reads whichever of the two exists.
const (
	masterStream = "all_events.jsonl"
	legacyStream = "consolidated.jsonl"
)

// Service executes queries against whatever storage backend is active.
type Service struct {
	cfg     *config.Config
	manager *storage.Manager
	cache   *cache.Cache
	logger  *slog.Logger
	sf      singleflight.Group
}

// New builds a Service. The caller wires cache invalidation to the
// manager's onSwap hook so a backend change never serves stale results.
func New(cfg *config.Config, manager *storage.Manager, c *cache.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cfg: cfg, manager: manager, cache: c, logger: logger}
}

// InvalidateCache drops every cached result. Wired as the storage
// manager's onSwap hook.
func (s *Service) InvalidateCache() {
	n := s.cache.Invalidate("")
	s.logger.Info("query cache invalidated", slog.Int("entries", n))
}

// adapterFor resolves the backend for one request. A non-empty dir
// override reads that local directory directly, leaving the configured
// backend untouched. Callers validate the override against the path
// allowlist before it gets here.
func (s *Service) adapterFor(dir string) storage.Adapter {
	if dir == "" {
		return s.manager.Current()
	}
	return storage.NewLocal(dir)
}

// FileSummary is one log stream in the listing, with its entry count for
// JSONL streams (plain .log files report -1, meaning not applicable).
type FileSummary struct {
	storage.FileInfo
	Entries int `json:"entries"`
}

// ListFiles returns every log stream the backend exposes, newest first,
// with per-stream entry counts.
func (s *Service) ListFiles(ctx context.Context, dir string) ([]FileSummary, error) {
	key := "files|dir=" + dir
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]FileSummary), nil
	}

	timer := time.Now()
	defer func() {
		metrics.QueryDuration.WithLabelValues("files").Observe(time.Since(timer).Seconds())
	}()

	adapter := s.adapterFor(dir)
	infos, err := adapter.ListFiles(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	summaries := make([]FileSummary, 0, len(infos))
	for _, info := range infos {
		summary := FileSummary{FileInfo: info, Entries: -1}
		if strings.HasSuffix(info.Name, ".jsonl") {
			text, err := adapter.ReadFile(ctx, info.Path)
			if err != nil {
				s.logger.Warn("counting entries",
					slog.String("file", info.Name), slog.String("error", err.Error()))
			} else {
				records, _ := query.ParseJSONL(text)
				summary.Entries = len(records)
			}
		}
		summaries = append(summaries, summary)
	}

	s.cache.Set(key, summaries)
	return summaries, nil
}

// DataRequest selects, filters, and paginates entries. Dir, when set,
// reads that local directory instead of the configured backend.
type DataRequest struct {
	Dir       string
	Files     []string
	Filters   query.Filters
	Page      int
	PageSize  int
	Ascending bool
}

func (r DataRequest) cacheKey(op string) string {
	return fmt.Sprintf("%s|dir=%s|files=%s|cat=%s|user=%s|sess=%s|from=%s|to=%s|q=%s|re=%t|ext=%s|cmd=%s|p=%d|ps=%d|asc=%t",
		op, r.Dir, strings.Join(r.Files, ","),
		r.Filters.Category, r.Filters.User, r.Filters.Session,
		r.Filters.DateFrom, r.Filters.DateTo,
		r.Filters.Query, r.Filters.Regex, r.Filters.FileExt, r.Filters.CommandName,
		r.Page, r.PageSize, r.Ascending)
}

// Data loads the requested streams, applies filters, sorts, and returns
// one page.
func (s *Service) Data(ctx context.Context, req DataRequest) (*query.Page, error) {
	key := req.cacheKey("data")
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*query.Page), nil
	}

	timer := time.Now()
	defer func() {
		metrics.QueryDuration.WithLabelValues("data").Observe(time.Since(timer).Seconds())
	}()

	records, err := s.loadRecords(ctx, req.Dir, req.Files)
	if err != nil {
		return nil, err
	}

	filtered, err := req.Filters.Apply(records)
	if err != nil {
		return nil, err
	}

	if req.Ascending {
		query.SortAscending(filtered)
	} else {
		query.SortDescending(filtered)
	}

	page := query.Paginate(filtered, req.Page, req.PageSize,
		s.cfg.Pagination.DefaultPageSize, s.cfg.Pagination.MaxPageSize)

	s.cache.Set(key, &page)
	return &page, nil
}

// SearchResult is a page plus an echo of the filters that produced it.
type SearchResult struct {
	query.Page
	FiltersApplied map[string]any `json:"filters_applied"`
}

// Search is Data with the applied filter set echoed back, so clients can
// render what their result set was constrained by.
func (s *Service) Search(ctx context.Context, req DataRequest) (*SearchResult, error) {
	page, err := s.Data(ctx, req)
	if err != nil {
		return nil, err
	}

	applied := map[string]any{}
	f := req.Filters
	if f.Category != "" {
		applied["category"] = f.Category
	}
	if f.User != "" {
		applied["user"] = f.User
	}
	if f.Session != "" {
		applied["session"] = f.Session
	}
	if f.DateFrom != "" {
		applied["date_from"] = f.DateFrom
	}
	if f.DateTo != "" {
		applied["date_to"] = f.DateTo
	}
	if f.Query != "" {
		applied["query"] = f.Query
		applied["regex"] = f.Regex
	}
	if f.FileExt != "" {
		applied["file_ext"] = f.FileExt
	}
	if f.CommandName != "" {
		applied["command_name"] = f.CommandName
	}

	return &SearchResult{Page: *page, FiltersApplied: applied}, nil
}

// FileStats is the per-stream block of the stats response.
type FileStats struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Modified string `json:"modified"`
	Entries  int    `json:"entries"`
}

// Stats summarizes every stream plus event-level totals over the master
// stream. The flat total_* counters mirror the shape older dashboards
// consume; total_code_blocks accumulates per-write edit counts.
type Stats struct {
	Files           []FileStats         `json:"files"`
	TotalFiles      int                 `json:"total_files"`
	TotalSize       int64               `json:"total_size"`
	TotalEntries    int                 `json:"total_entries"`
	Categories      map[string]int      `json:"categories"`
	TotalPrompts    int                 `json:"total_prompts"`
	TotalFileReads  int                 `json:"total_file_reads"`
	TotalFileWrites int                 `json:"total_file_writes"`
	TotalCommands   int                 `json:"total_commands"`
	TotalMCPCalls   int                 `json:"total_mcp_calls"`
	TotalCodeBlocks int                 `json:"total_code_blocks"`
	Users           []string            `json:"users"`
	UniqueUsers     int                 `json:"unique_users"`
	Sessions        []string            `json:"sessions"`
	UniqueSessions  int                 `json:"unique_sessions"`
	DateRange       aggregate.DateRange `json:"date_range"`
}

// Stats builds per-file and total statistics.
func (s *Service) Stats(ctx context.Context, dir string) (*Stats, error) {
	key := "stats|dir=" + dir
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*Stats), nil
	}

	timer := time.Now()
	defer func() {
		metrics.QueryDuration.WithLabelValues("stats").Observe(time.Since(timer).Seconds())
	}()

	summaries, err := s.ListFiles(ctx, dir)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Files:      []FileStats{},
		Categories: map[string]int{},
		Users:      []string{},
		Sessions:   []string{},
	}
	for _, summary := range summaries {
		entries := summary.Entries
		if entries < 0 {
			entries = 0
		}
		stats.Files = append(stats.Files, FileStats{
			Name:     summary.Name,
			Size:     summary.Size,
			Modified: summary.Modified,
			Entries:  entries,
		})
		stats.TotalFiles++
		stats.TotalSize += summary.Size
		stats.TotalEntries += entries
	}

	records, err := s.loadRecords(ctx, dir, nil)
	if err != nil {
		return nil, err
	}

	userSet := map[string]struct{}{}
	sessionSet := map[string]struct{}{}
	minTS, maxTS := "", ""
	for _, rec := range records {
		category := rec.String("category")
		if category == "" {
			category = "unknown"
		}
		stats.Categories[category]++

		switch category {
		case "prompt":
			stats.TotalPrompts++
		case "file_read":
			stats.TotalFileReads++
		case "file_write":
			stats.TotalFileWrites++
			stats.TotalCodeBlocks += recordEditCount(rec)
		case "command":
			stats.TotalCommands++
		case "mcp":
			stats.TotalMCPCalls++
		}

		if user := rec.String("user"); user != "" {
			userSet[user] = struct{}{}
		}
		if session := rec.String("trajectory_id"); session != "" {
			sessionSet[session] = struct{}{}
		}
		if ts := rec.Timestamp(); ts != "" {
			if minTS == "" || ts < minTS {
				minTS = ts
			}
			if ts > maxTS {
				maxTS = ts
			}
		}
	}
	stats.Users = sortedSet(userSet)
	stats.Sessions = sortedSet(sessionSet)
	stats.UniqueUsers = len(stats.Users)
	stats.UniqueSessions = len(stats.Sessions)
	stats.DateRange = aggregate.DateRange{Start: minTS, End: maxTS}

	s.cache.Set(key, stats)
	return stats, nil
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func recordEditCount(rec query.Record) int {
	data := rec.Data()
	if data == nil {
		return 0
	}
	switch v := data["edit_count"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// Metrics computes the aggregation bundle over the master stream.
// Concurrent identical requests share one computation.
func (s *Service) Metrics(ctx context.Context, dir string) (*aggregate.Bundle, error) {
	key := "metrics|dir=" + dir
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*aggregate.Bundle), nil
	}

	result, err, _ := s.sf.Do(key, func() (any, error) {
		timer := time.Now()
		defer func() {
			metrics.QueryDuration.WithLabelValues("metrics").Observe(time.Since(timer).Seconds())
		}()

		records, err := s.loadRecords(ctx, dir, nil)
		if err != nil {
			return nil, err
		}
		bundle := aggregate.Compute(records, aggregate.Options{})
		s.cache.Set(key, bundle)
		return bundle, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*aggregate.Bundle), nil
}

// loadRecords reads and parses the requested streams. With no files
// given it falls back to the master stream, then the legacy name. A
// stream that fails to read is logged and skipped; every surviving
// record is tagged with its source file.
func (s *Service) loadRecords(ctx context.Context, dir string, files []string) ([]query.Record, error) {
	adapter := s.adapterFor(dir)

	paths, err := s.resolveStreams(ctx, adapter, files)
	if err != nil {
		return nil, err
	}

	all := []query.Record{}
	for name, path := range paths {
		text, err := adapter.ReadFile(ctx, path)
		if err != nil {
			s.logger.Warn("reading log stream",
				slog.String("file", name), slog.String("error", err.Error()))
			continue
		}
		records, dropped := query.ParseJSONL(text)
		if dropped > 0 {
			s.logger.Warn("dropped malformed lines",
				slog.String("file", name), slog.Int("lines", dropped))
		}
		for _, rec := range records {
			rec["source_file"] = name
		}
		all = append(all, records...)
	}
	return all, nil
}

// resolveStreams maps requested stream names to backend paths via one
// listing. Requested names with no backing file are skipped. With no
// names requested, the master stream wins over the legacy one.
func (s *Service) resolveStreams(ctx context.Context, adapter storage.Adapter, files []string) (map[string]string, error) {
	infos, err := adapter.ListFiles(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	byName := make(map[string]string, len(infos))
	for _, info := range infos {
		byName[info.Name] = info.Path
	}

	paths := map[string]string{}
	if len(files) == 0 {
		if path, ok := byName[masterStream]; ok {
			paths[masterStream] = path
		} else if path, ok := byName[legacyStream]; ok {
			paths[legacyStream] = path
		}
		return paths, nil
	}

	for _, name := range files {
		if path, ok := byName[name]; ok {
			paths[name] = path
		} else {
			s.logger.Warn("requested stream not found", slog.String("file", name))
		}
	}
	return paths, nil
}
