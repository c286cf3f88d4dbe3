// Package aggregate computes the metrics bundle over normalized records in
// a single pass. Empty input yields all-zero, fully-populated output so
// the response shape is stable for clients.
package aggregate

import (
	"sort"
	"time"

	"github.com/agenttrail/agenttrail/internal/query"
)

// Options bounds the rankings and pins the clock for the rolling series.
type Options struct {
	TopFiles    int
	TopCommands int
	TopTools    int
	Now         time.Time
}

func (o Options) withDefaults() Options {
	if o.TopFiles <= 0 {
		o.TopFiles = 10
	}
	if o.TopCommands <= 0 {
		o.TopCommands = 8
	}
	if o.TopTools <= 0 {
		o.TopTools = 8
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	return o
}

// RankEntry is one row of a top-N ranking.
type RankEntry struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// DayActivity is one day of the rolling series.
type DayActivity struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// DateRange is the overall min/max timestamp across all records.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Bundle is the full aggregation result.
type Bundle struct {
	TotalEvents        int            `json:"total_events"`
	Categories         map[string]int `json:"categories"`
	EventsByHour       []int          `json:"events_by_hour"`
	EventsByDayOfWeek  []int          `json:"events_by_day_of_week"`
	DailyActivity      []DayActivity  `json:"daily_activity"`
	TopFiles           []RankEntry    `json:"top_files"`
	TopCommands        []RankEntry    `json:"top_commands"`
	TopTools           []RankEntry    `json:"top_tools"`
	TotalLinesAdded    int            `json:"total_lines_added"`
	TotalLinesRemoved  int            `json:"total_lines_removed"`
	NetLinesDelta      int            `json:"net_lines_delta"`
	UniqueSessions     int            `json:"unique_sessions"`
	UniqueFiles        int            `json:"unique_files"`
	DateRange          DateRange      `json:"date_range"`
	UnparsedTimestamps int            `json:"unparsed_timestamps"`
}

// Compute runs one full pass over records and builds the bundle.
// Records with unparsable timestamps are skipped for histogram purposes
// but still counted in totals.
func Compute(records []query.Record, opts Options) *Bundle {
	opts = opts.withDefaults()

	b := &Bundle{
		Categories:        map[string]int{},
		EventsByHour:      make([]int, 24),
		EventsByDayOfWeek: make([]int, 7),
		TopFiles:          []RankEntry{},
		TopCommands:       []RankEntry{},
		TopTools:          []RankEntry{},
	}

	files := newCounter()
	commands := newCounter()
	tools := newCounter()
	sessions := map[string]struct{}{}
	touchedFiles := map[string]struct{}{}

	today := opts.Now
	daily := make([]DayActivity, 7)
	dailyIndex := map[string]int{}
	for i := 0; i < 7; i++ {
		day := today.AddDate(0, 0, i-6).Format("2006-01-02")
		daily[i] = DayActivity{Date: day}
		dailyIndex[day] = i
	}

	minTS, maxTS := "", ""

	for _, rec := range records {
		b.TotalEvents++

		category := rec.String("category")
		if category == "" {
			category = "unknown"
		}
		b.Categories[category]++

		ts := rec.Timestamp()
		if ts != "" {
			if minTS == "" || ts < minTS {
				minTS = ts
			}
			if ts > maxTS {
				maxTS = ts
			}
		}

		if t, ok := parseTimestamp(ts); ok {
			b.EventsByHour[t.Hour()]++
			b.EventsByDayOfWeek[mondayIndex(t.Weekday())]++
			if i, ok := dailyIndex[t.Format("2006-01-02")]; ok {
				daily[i].Count++
			}
		} else {
			b.UnparsedTimestamps++
		}

		data := rec.Data()

		if path, ok := data["file_path"].(string); ok && path != "" {
			files.add(path)
			touchedFiles[path] = struct{}{}
		}
		if cmd, ok := data["command_name"].(string); ok && cmd != "" {
			commands.add(cmd)
		}
		if tool, ok := data["mcp_full_tool"].(string); ok && tool != "" {
			tools.add(tool)
		}

		if category == "file_write" {
			b.TotalLinesAdded += intField(data, "total_lines_added")
			b.TotalLinesRemoved += intField(data, "total_lines_removed")
		}

		if session := rec.String("trajectory_id"); session != "" {
			sessions[session] = struct{}{}
		}
	}

	b.DailyActivity = daily
	b.TopFiles = files.top(opts.TopFiles)
	b.TopCommands = commands.top(opts.TopCommands)
	b.TopTools = tools.top(opts.TopTools)
	b.NetLinesDelta = b.TotalLinesAdded - b.TotalLinesRemoved
	b.UniqueSessions = len(sessions)
	b.UniqueFiles = len(touchedFiles)
	b.DateRange = DateRange{Start: minTS, End: maxTS}

	return b
}

// counter tracks frequencies plus first-seen order for stable tie-breaks.
type counter struct {
	counts    map[string]int
	firstSeen map[string]int
	next      int
}

func newCounter() *counter {
	return &counter{counts: map[string]int{}, firstSeen: map[string]int{}}
}

func (c *counter) add(key string) {
	if _, ok := c.counts[key]; !ok {
		c.firstSeen[key] = c.next
		c.next++
	}
	c.counts[key]++
}

// top returns the n most frequent keys, descending by count, ties broken
// by first-seen order.
func (c *counter) top(n int) []RankEntry {
	entries := make([]RankEntry, 0, len(c.counts))
	for key, count := range c.counts {
		entries = append(entries, RankEntry{Name: key, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return c.firstSeen[entries[i].Name] < c.firstSeen[entries[j].Name]
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

func mondayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func parseTimestamp(ts string) (time.Time, bool) {
	if ts == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func intField(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
