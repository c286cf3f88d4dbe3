package models

// RawEvent is the payload the agent hook delivers on stdin, one invocation
// per event. All fields are optional; missing values are normalized to
// zero values downstream.
type RawEvent struct {
	AgentActionName string         `json:"agent_action_name"`
	TrajectoryID    string         `json:"trajectory_id"`
	ExecutionID     string         `json:"execution_id"`
	Timestamp       string         `json:"timestamp"`
	ToolInfo        map[string]any `json:"tool_info"`
}

// SystemInfo is the host snapshot captured at normalization time.
type SystemInfo struct {
	Username        string `json:"username"`
	Hostname        string `json:"hostname"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platform_version"`
	RuntimeVersion  string `json:"runtime_version"`
	Machine         string `json:"machine"`
}

// LogEntry is the canonical record produced by the normalizer. It is
// immutable once created and is appended verbatim to every derived stream.
type LogEntry struct {
	EventID      string         `json:"event_id"`
	TrajectoryID string         `json:"trajectory_id,omitempty"`
	ExecutionID  string         `json:"execution_id,omitempty"`
	Timestamp    string         `json:"timestamp"`
	LoggedAt     string         `json:"logged_at"`
	Action       string         `json:"action"`
	Category     string         `json:"category"`
	Phase        string         `json:"phase"`
	System       SystemInfo     `json:"system"`
	Data         map[string]any `json:"data"`
	RawToolInfo  map[string]any `json:"raw_tool_info"`
}
