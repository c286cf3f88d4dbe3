package writer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/agenttrail/agenttrail/internal/models"
)

const summaryRule = 80

// writeSummary appends a human-readable block to summary.log, synchronously
// and unbuffered. Failures here are swallowed: the summary stream is a
// convenience, not part of the durability contract.
func (w *Writer) writeSummary(entry *models.LogEntry) {
	block := FormatSummary(entry)
	path := filepath.Join(w.cfg.Dir, SummaryLog)

	lock := flock.New(path)
	if err := lock.Lock(); err != nil {
		return
	}
	defer lock.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	f.WriteString(block)
}

// FormatSummary renders one entry as a labeled block delimited by an
// 80-character rule. The labels carry enough to reconstruct the category,
// action, timestamp, user, session, and type-specific fields.
func FormatSummary(entry *models.LogEntry) string {
	lines := []string{
		"",
		strings.Repeat("=", summaryRule),
		fmt.Sprintf("[%s] %s", entry.Timestamp, entry.Action),
		fmt.Sprintf("User: %s@%s", entry.System.Username, entry.System.Hostname),
	}

	if entry.TrajectoryID != "" {
		lines = append(lines, "Trajectory: "+entry.TrajectoryID)
	}

	data := entry.Data

	switch entry.Category {
	case "prompt":
		prompt := dataString(data, "user_prompt")
		if r := []rune(prompt); len(r) > 500 {
			prompt = string(r[:500])
		}
		lines = append(lines, fmt.Sprintf("Prompt (%d chars):", dataInt(data, "prompt_length")), prompt)
		if b, _ := data["prompt_truncated"].(bool); b {
			lines = append(lines, "... [truncated]")
		}
	case "file_read":
		lines = append(lines, "File: "+orUnknown(dataString(data, "file_path")))
	case "file_write":
		lines = append(lines, "File: "+orUnknown(dataString(data, "file_path")))
		lines = append(lines, fmt.Sprintf("Edits: %d, Lines: +%d/-%d",
			dataInt(data, "edit_count"),
			dataInt(data, "total_lines_added"),
			dataInt(data, "total_lines_removed")))
	case "command":
		lines = append(lines, "Command: "+orUnknown(dataString(data, "command_line")))
		lines = append(lines, "CWD: "+orUnknown(dataString(data, "cwd")))
	case "mcp":
		lines = append(lines, "MCP Tool: "+orUnknown(dataString(data, "mcp_full_tool")))
		args, _ := json.Marshal(data["mcp_tool_arguments"])
		argStr := string(args)
		if r := []rune(argStr); len(r) > 200 {
			argStr = string(r[:200])
		}
		lines = append(lines, "Arguments: "+argStr)
	}

	return strings.Join(lines, "\n") + "\n"
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func dataString(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	if s, ok := data[key].(string); ok {
		return s
	}
	return ""
}

func dataInt(data map[string]any, key string) int {
	if data == nil {
		return 0
	}
	switch v := data[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
