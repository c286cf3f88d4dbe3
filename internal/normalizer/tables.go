package normalizer

// The action table is fixed: every hook action the agent can emit maps to
// exactly one category and one phase. Unknown actions normalize to
// "unknown"/"unknown" and still produce a well-formed entry.

const (
	CategoryPrompt    = "prompt"
	CategoryFileRead  = "file_read"
	CategoryFileWrite = "file_write"
	CategoryCommand   = "command"
	CategoryMCP       = "mcp"
	CategoryUnknown   = "unknown"

	PhasePre     = "pre"
	PhasePost    = "post"
	PhaseUnknown = "unknown"
)

var eventCategories = map[string]string{
	"pre_user_prompt":   CategoryPrompt,
	"pre_read_code":     CategoryFileRead,
	"post_read_code":    CategoryFileRead,
	"pre_write_code":    CategoryFileWrite,
	"post_write_code":   CategoryFileWrite,
	"pre_run_command":   CategoryCommand,
	"post_run_command":  CategoryCommand,
	"pre_mcp_tool_use":  CategoryMCP,
	"post_mcp_tool_use": CategoryMCP,
}

var eventPhases = map[string]string{
	"pre_user_prompt":   PhasePre,
	"pre_read_code":     PhasePre,
	"post_read_code":    PhasePost,
	"pre_write_code":    PhasePre,
	"post_write_code":   PhasePost,
	"pre_run_command":   PhasePre,
	"post_run_command":  PhasePost,
	"pre_mcp_tool_use":  PhasePre,
	"post_mcp_tool_use": PhasePost,
}

// CategoryFor returns the category for an action name.
func CategoryFor(action string) string {
	if c, ok := eventCategories[action]; ok {
		return c
	}
	return CategoryUnknown
}

// PhaseFor returns the lifecycle phase for an action name.
func PhaseFor(action string) string {
	if p, ok := eventPhases[action]; ok {
		return p
	}
	return PhaseUnknown
}

// KnownActions returns every action in the static table.
func KnownActions() []string {
	actions := make([]string, 0, len(eventCategories))
	for a := range eventCategories {
		actions = append(actions, a)
	}
	return actions
}
