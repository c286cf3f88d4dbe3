// Package normalizer maps raw agent hook payloads onto canonical log
// entries. Every action in the static table gets an action-specific derived
// payload; unknown actions still produce a well-formed entry with empty
// data. Normalization never fails on missing fields.
package normalizer

import (
	"fmt"
	"os"
	"os/user"
	"runtime"
	"strings"
	"time"

	"github.com/agenttrail/agenttrail/internal/models"
)

// TimestampLayout is the fixed-width RFC 3339 form every producer-side
// timestamp uses. Fixed width keeps lexicographic ordering chronological,
// which the query engine relies on.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// DefaultMaxContentLength caps every independently truncated text field.
const DefaultMaxContentLength = 100000

// Normalizer turns raw events into canonical log entries.
type Normalizer struct {
	maxContentLength int
	now              func() time.Time
	system           models.SystemInfo
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithMaxContentLength overrides the text truncation cap.
func WithMaxContentLength(n int) Option {
	return func(nz *Normalizer) {
		if n > 0 {
			nz.maxContentLength = n
		}
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(nz *Normalizer) { nz.now = now }
}

// New builds a Normalizer with the host system snapshot captured once.
func New(opts ...Option) *Normalizer {
	nz := &Normalizer{
		maxContentLength: DefaultMaxContentLength,
		now:              time.Now,
		system:           collectSystemInfo(),
	}
	for _, opt := range opts {
		opt(nz)
	}
	return nz
}

// Normalize maps a raw event to its canonical log entry.
func (nz *Normalizer) Normalize(raw *models.RawEvent) *models.LogEntry {
	if raw == nil {
		raw = &models.RawEvent{}
	}

	action := raw.AgentActionName
	if action == "" {
		action = "unknown"
	}

	timestamp := raw.Timestamp
	if timestamp == "" {
		timestamp = nz.now().UTC().Format(TimestampLayout)
	}

	category := CategoryFor(action)
	phase := PhaseFor(action)
	isPost := phase == PhasePost

	data := nz.deriveData(action, raw.ToolInfo, isPost)

	contentHash := ContentHash(data)

	toolInfo := raw.ToolInfo
	if toolInfo == nil {
		toolInfo = map[string]any{}
	}

	return &models.LogEntry{
		EventID:      EventID(action, timestamp, contentHash),
		TrajectoryID: raw.TrajectoryID,
		ExecutionID:  raw.ExecutionID,
		Timestamp:    timestamp,
		LoggedAt:     nz.now().UTC().Format(TimestampLayout),
		Action:       action,
		Category:     category,
		Phase:        phase,
		System:       nz.system,
		Data:         data,
		RawToolInfo:  toolInfo,
	}
}

func (nz *Normalizer) deriveData(action string, toolInfo map[string]any, isPost bool) map[string]any {
	switch action {
	case "pre_user_prompt":
		return nz.derivePrompt(toolInfo)
	case "pre_read_code", "post_read_code":
		return deriveRead(toolInfo, isPost)
	case "pre_write_code", "post_write_code":
		return nz.deriveWrite(toolInfo, isPost)
	case "pre_run_command", "post_run_command":
		return deriveCommand(toolInfo, isPost)
	case "pre_mcp_tool_use", "post_mcp_tool_use":
		return nz.deriveMCPTool(toolInfo, isPost)
	default:
		return map[string]any{}
	}
}

func (nz *Normalizer) derivePrompt(toolInfo map[string]any) map[string]any {
	prompt := stringField(toolInfo, "user_prompt")
	truncated, wasTruncated := Truncate(prompt, nz.maxContentLength)

	return map[string]any{
		"user_prompt":       truncated,
		"prompt_truncated":  wasTruncated,
		"prompt_length":     len([]rune(prompt)),
		"prompt_word_count": len(strings.Fields(prompt)),
		"prompt_line_count": strings.Count(prompt, "\n") + 1,
		"prompt_hash":       ContentHash(prompt),
	}
}

func deriveRead(toolInfo map[string]any, isPost bool) map[string]any {
	data := fileMetadata(stringField(toolInfo, "file_path"))
	data["operation"] = "read"
	data["completed"] = isPost
	return data
}

func (nz *Normalizer) deriveWrite(toolInfo map[string]any, isPost bool) map[string]any {
	data := fileMetadata(stringField(toolInfo, "file_path"))
	data["operation"] = "write"
	data["completed"] = isPost
	for k, v := range ProcessEdits(sliceField(toolInfo, "edits"), nz.maxContentLength) {
		data[k] = v
	}
	return data
}

func deriveCommand(toolInfo map[string]any, isPost bool) map[string]any {
	commandLine := stringField(toolInfo, "command_line")
	parts := strings.Fields(commandLine)

	commandName := ""
	args := []string{}
	if len(parts) > 0 {
		commandName = parts[0]
		args = parts[1:]
	}

	return map[string]any{
		"command_line":   commandLine,
		"command_name":   commandName,
		"command_args":   args,
		"cwd":            stringField(toolInfo, "cwd"),
		"operation":      "command",
		"completed":      isPost,
		"command_length": len([]rune(commandLine)),
		"command_hash":   ContentHash(commandLine),
	}
}

func (nz *Normalizer) deriveMCPTool(toolInfo map[string]any, isPost bool) map[string]any {
	serverName := stringField(toolInfo, "mcp_server_name")
	toolName := stringField(toolInfo, "mcp_tool_name")

	var toolArgs any = map[string]any{}
	if args := mapField(toolInfo, "mcp_tool_arguments"); args != nil {
		toolArgs = args
	}

	fullTool := toolName
	if serverName != "" && toolName != "" {
		fullTool = serverName + "." + toolName
	}

	data := map[string]any{
		"mcp_server_name":    serverName,
		"mcp_tool_name":      toolName,
		"mcp_tool_arguments": toolArgs,
		"mcp_full_tool":      fullTool,
		"operation":          "mcp",
		"completed":          isPost,
		"arguments_hash":     ContentHash(toolArgs),
	}

	// Tool results only exist after completion.
	if isPost {
		if rawResult, ok := toolInfo["mcp_result"]; ok {
			result := fmt.Sprintf("%v", rawResult)
			if s, isString := rawResult.(string); isString {
				result = s
			}
			truncated, wasTruncated := Truncate(result, nz.maxContentLength)
			data["mcp_result"] = truncated
			data["mcp_result_truncated"] = wasTruncated
			data["mcp_result_length"] = len([]rune(result))
		}
	}

	return data
}

func collectSystemInfo() models.SystemInfo {
	username := ""
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	hostname, _ := os.Hostname()

	return models.SystemInfo{
		Username:        username,
		Hostname:        hostname,
		Platform:        runtime.GOOS,
		PlatformVersion: platformVersion(),
		RuntimeVersion:  runtime.Version(),
		Machine:         runtime.GOARCH,
	}
}

func platformVersion() string {
	// Kernel release where the OS exposes it; empty elsewhere.
	b, err := os.ReadFile("/proc/sys/kernel/osrelease")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
