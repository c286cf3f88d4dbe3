// Package writer implements the buffered fan-out sink for canonical log
// entries. One entry fans out to up to five append-only JSONL streams plus
// an unbuffered human-readable summary. Buffers are per destination behind
// a single mutex; physical appends serialize across processes through an
// advisory file lock scoped to the append call.
package writer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/agenttrail/agenttrail/internal/metrics"
	"github.com/agenttrail/agenttrail/internal/models"
)

// FailurePolicy decides what happens to a buffer whose flush failed.
type FailurePolicy string

const (
	// PolicyDrop discards the buffer after a failed flush: at-most-once
	// delivery, the error goes to the side error log.
	PolicyDrop FailurePolicy = "drop"
	// PolicyRetry keeps the buffer for the next flush trigger.
	PolicyRetry FailurePolicy = "retry"
)

const (
	// MasterStream receives every entry.
	MasterStream = "all_events.jsonl"
	// CodeChangeStream receives file_write entries with at least one edit.
	CodeChangeStream = "code_changes.jsonl"
	// SummaryLog is the unbuffered human-readable companion stream.
	SummaryLog = "summary.log"
	// ErrorLog is the side channel for ingestion and flush errors.
	ErrorLog = "errors.log"

	sessionDir = "sessions"

	DefaultBufferSize    = 10
	DefaultFlushInterval = 5 * time.Second
)

// Config controls buffering and durability behavior.
type Config struct {
	Dir           string
	BufferSize    int
	FlushInterval time.Duration
	FailurePolicy FailurePolicy
}

// Writer batches canonical entries per destination and appends them under
// file locking. Safe for concurrent use.
type Writer struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	buffers map[string][]string // absolute destination path -> pending lines

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates the log root if needed and starts the periodic flush loop.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("writer: log dir is required")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = PolicyDrop
	}
	if cfg.FailurePolicy != PolicyDrop && cfg.FailurePolicy != PolicyRetry {
		return nil, fmt.Errorf("writer: unknown failure policy %q", cfg.FailurePolicy)
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("writer: create log dir: %w", err)
	}

	w := &Writer{
		cfg:     cfg,
		logger:  logger,
		buffers: make(map[string][]string),
		done:    make(chan struct{}),
	}

	w.wg.Add(1)
	go w.flushLoop()

	return w, nil
}

// Write fans one entry out to its derived streams. The JSONL streams are
// buffered; the summary stream is appended immediately so manual review
// never waits on the batching window.
func (w *Writer) Write(entry *models.LogEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("writer: encode entry: %w", err)
	}
	line := string(raw) + "\n"

	w.mu.Lock()
	w.buffer(filepath.Join(w.cfg.Dir, MasterStream), line)
	w.buffer(filepath.Join(w.cfg.Dir, entry.Category+".jsonl"), line)
	w.buffer(filepath.Join(w.cfg.Dir, entry.Action+".jsonl"), line)

	if entry.TrajectoryID != "" {
		safe := SanitizeStreamID(entry.TrajectoryID)
		w.buffer(filepath.Join(w.cfg.Dir, sessionDir, safe+".jsonl"), line)
	}

	if entry.Category == "file_write" && editCount(entry.Data) > 0 {
		w.buffer(filepath.Join(w.cfg.Dir, CodeChangeStream), line)
	}
	w.mu.Unlock()

	w.writeSummary(entry)
	metrics.EventsIngested.WithLabelValues(entry.Category).Inc()
	return nil
}

// buffer appends a line to a destination buffer and auto-flushes at the
// configured threshold. Caller holds w.mu.
func (w *Writer) buffer(dest, line string) {
	w.buffers[dest] = append(w.buffers[dest], line)
	if len(w.buffers[dest]) >= w.cfg.BufferSize {
		w.flushDest(dest)
	}
}

// FlushAll drains every destination buffer.
func (w *Writer) FlushAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for dest := range w.buffers {
		w.flushDest(dest)
	}
}

// Close cancels the periodic flush loop and performs a final full drain.
// No buffered line is lost on a clean shutdown.
func (w *Writer) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
		w.FlushAll()
	})
	return nil
}

func (w *Writer) flushLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.FlushAll()
		case <-w.done:
			return
		}
	}
}

// flushDest writes one destination's buffer as a single concatenated
// append. Caller holds w.mu. On failure the buffer is dropped or retained
// per the configured policy; either way the error goes to the side log.
func (w *Writer) flushDest(dest string) {
	lines := w.buffers[dest]
	if len(lines) == 0 {
		return
	}

	if err := w.appendLocked(dest, []byte(strings.Join(lines, ""))); err != nil {
		metrics.FlushFailures.Inc()
		w.reportError(fmt.Sprintf("flush %s: %v", dest, err))
		if w.cfg.FailurePolicy == PolicyRetry {
			return
		}
		metrics.LinesDropped.Add(float64(len(lines)))
		delete(w.buffers, dest)
		return
	}

	metrics.LinesFlushed.Add(float64(len(lines)))
	delete(w.buffers, dest)
}

// appendLocked opens dest in append mode and writes data under an
// exclusive advisory lock. The lock covers only this write call, not the
// buffering window; independent writer processes serialize here.
func (w *Writer) appendLocked(dest string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	lock := flock.New(dest)
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	f, err := os.OpenFile(dest, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// reportError appends to the side error log, best effort.
func (w *Writer) reportError(msg string) {
	w.logger.Error("writer flush failed", slog.String("error", msg))
	line := fmt.Sprintf("[%s] %s\n", time.Now().UTC().Format(time.RFC3339), msg)
	path := filepath.Join(w.cfg.Dir, ErrorLog)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	f.WriteString(line)
}

// SanitizeStreamID strips everything but alphanumerics, '-' and '_' from a
// trajectory id so it is safe to use as a file name.
func SanitizeStreamID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func editCount(data map[string]any) int {
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
