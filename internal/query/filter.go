package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidPattern marks a client-supplied regex that failed to compile.
// Handlers must report it as a client error, distinct from "no matches".
var ErrInvalidPattern = errors.New("invalid regex pattern")

// Filters is the conjunctive filter set applied to records. Empty fields
// are not applied; no filters means every record passes.
type Filters struct {
	Category    string
	User        string
	Session     string
	DateFrom    string
	DateTo      string
	Query       string
	Regex       bool
	FileExt     string
	CommandName string
}

// Apply filters records, preserving order. Filters are evaluated in fixed
// order with short-circuit: category, user, session, timestamp lower
// bound, timestamp upper bound, file extension, command name, free text.
// Text matching is case-insensitive in both substring and regex mode.
func (f Filters) Apply(records []Record) ([]Record, error) {
	var re *regexp.Regexp
	if f.Query != "" && f.Regex {
		compiled, err := regexp.Compile("(?i)" + f.Query)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
		re = compiled
	}

	needle := strings.ToLower(f.Query)

	results := []Record{}
	for _, rec := range records {
		if f.Category != "" && rec.String("category") != f.Category {
			continue
		}
		if f.User != "" && rec.String("user") != f.User {
			continue
		}
		if f.Session != "" && rec.String("trajectory_id") != f.Session {
			continue
		}

		ts := rec.Timestamp()
		if f.DateFrom != "" && ts < f.DateFrom {
			continue
		}
		if f.DateTo != "" && ts > f.DateTo {
			continue
		}

		if f.FileExt != "" {
			if ext, _ := rec.Data()["file_extension"].(string); ext != f.FileExt {
				continue
			}
		}
		if f.CommandName != "" {
			if cmd, _ := rec.Data()["command_name"].(string); cmd != f.CommandName {
				continue
			}
		}

		if f.Query != "" {
			haystack := searchableText(rec)
			if re != nil {
				if !re.MatchString(haystack) {
					continue
				}
			} else if !strings.Contains(strings.ToLower(haystack), needle) {
				continue
			}
		}

		results = append(results, rec)
	}

	return results, nil
}

// searchableText assembles the defined searchable surface of a record:
// the lifted content field, whitelisted data fields, every edit's old and
// new text, and the serialized raw payload.
func searchableText(rec Record) string {
	var parts []string

	if content, ok := rec["content"].(string); ok {
		parts = append(parts, content)
	}

	data := rec.Data()
	for _, key := range []string{"user_prompt", "file_path", "command_line", "mcp_tool_name", "mcp_server_name"} {
		if v, ok := data[key].(string); ok {
			parts = append(parts, v)
		}
	}

	if edits, ok := data["edits"].([]any); ok {
		for _, raw := range edits {
			if edit, ok := raw.(map[string]any); ok {
				if s, ok := edit["old_string"].(string); ok {
					parts = append(parts, s)
				}
				if s, ok := edit["new_string"].(string); ok {
					parts = append(parts, s)
				}
			}
		}
	}

	if rawInfo, ok := rec["raw_tool_info"]; ok {
		if b, err := json.Marshal(rawInfo); err == nil {
			parts = append(parts, string(b))
		}
	}

	return strings.Join(parts, " ")
}
