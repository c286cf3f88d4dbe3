// Package query streams records out of JSONL log files, normalizes legacy
// schema variants, filters, sorts, and paginates. Sorting compares the
// ISO-8601 timestamp strings directly, which matches chronological order
// only while every producer emits the same fixed-width format; readers of
// foreign files inherit that risk.
package query

import (
	"encoding/json"
	"strings"

	"github.com/agenttrail/agenttrail/internal/metrics"
)

// Record is one parsed log entry. Kept untyped so legacy and current
// schema variants flow through the same pipeline.
type Record map[string]any

// maxLineSize bounds a single JSONL line. Entries carry up to several
// independently truncated 100k-char fields, so lines can run to megabytes;
// anything bigger counts as malformed and is skipped like any other bad
// line, it never aborts the scan.
const maxLineSize = 16 * 1024 * 1024

// ParseJSONL parses newline-delimited JSON from text. Blank and malformed
// lines (including over-long ones) are dropped individually, never fatal;
// the number of dropped lines is returned and counted for observability.
// A truncated trailing fragment from a concurrent flush parses as
// malformed and is skipped the same way.
func ParseJSONL(text string) ([]Record, int) {
	records := []Record{}
	parseErrors := 0

	for len(text) > 0 {
		var line string
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			line, text = text[:i], text[i+1:]
		} else {
			line, text = text, ""
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) > maxLineSize {
			parseErrors++
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			parseErrors++
			continue
		}
		records = append(records, Normalize(rec))
	}

	if parseErrors > 0 {
		metrics.ParseErrors.Add(float64(parseErrors))
	}
	return records, parseErrors
}

// Normalize reconciles legacy and current record shapes in place: promotes
// the old top-level "type" field to "category", and lifts system identity
// and selected data fields to the top level for filtering convenience.
func Normalize(rec Record) Record {
	if _, ok := rec["category"]; !ok {
		if t, ok := rec["type"]; ok {
			rec["category"] = t
		} else {
			rec["category"] = "unknown"
		}
	}

	if system, ok := rec["system"].(map[string]any); ok {
		if username, ok := system["username"]; ok {
			rec["user"] = username
		}
		if hostname, ok := system["hostname"]; ok {
			rec["hostname"] = hostname
		}
	}

	if data, ok := rec["data"].(map[string]any); ok {
		if prompt, ok := data["user_prompt"]; ok {
			rec["content"] = prompt
		}
		if filePath, ok := data["file_path"]; ok {
			rec["file_path"] = filePath
		}
		if commandLine, ok := data["command_line"]; ok {
			rec["command_line"] = commandLine
		}
		if toolName, ok := data["mcp_tool_name"]; ok {
			rec["mcp_tool_name"] = toolName
		}
	}

	return rec
}

// Timestamp returns the record's timestamp string, empty when absent.
func (r Record) Timestamp() string {
	if s, ok := r["timestamp"].(string); ok {
		return s
	}
	return ""
}

// String returns a top-level string field, empty when absent or mistyped.
func (r Record) String(key string) string {
	if s, ok := r[key].(string); ok {
		return s
	}
	return ""
}

// Data returns the typed data payload, nil when absent.
func (r Record) Data() map[string]any {
	if d, ok := r["data"].(map[string]any); ok {
		return d
	}
	return nil
}
