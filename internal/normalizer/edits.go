package normalizer

// ProcessEdits derives per-edit statistics and aggregate line totals from a
// raw edit list. Each edit is an untyped map with optional old_string and
// new_string fields; anything else in the slice is treated as an empty edit.
func ProcessEdits(edits []any, maxContentLength int) map[string]any {
	if len(edits) == 0 {
		return map[string]any{
			"edits":               []any{},
			"edit_count":          0,
			"total_lines_removed": 0,
			"total_lines_added":   0,
			"net_lines_delta":     0,
		}
	}

	processed := make([]any, 0, len(edits))
	totalRemoved := 0
	totalAdded := 0

	for _, raw := range edits {
		edit, _ := raw.(map[string]any)
		oldString := stringField(edit, "old_string")
		newString := stringField(edit, "new_string")

		oldLines := lineCount(oldString)
		newLines := lineCount(newString)

		oldTruncated, oldWasTruncated := Truncate(oldString, maxContentLength)
		newTruncated, newWasTruncated := Truncate(newString, maxContentLength)

		processed = append(processed, map[string]any{
			"old_string":           oldTruncated,
			"new_string":           newTruncated,
			"old_string_truncated": oldWasTruncated,
			"new_string_truncated": newWasTruncated,
			"old_length":           len([]rune(oldString)),
			"new_length":           len([]rune(newString)),
			"old_lines":            oldLines,
			"new_lines":            newLines,
			"lines_delta":          newLines - oldLines,
			"char_delta":           len([]rune(newString)) - len([]rune(oldString)),
		})

		totalRemoved += oldLines
		totalAdded += newLines
	}

	return map[string]any{
		"edits":               processed,
		"edit_count":          len(processed),
		"total_lines_removed": totalRemoved,
		"total_lines_added":   totalAdded,
		"net_lines_delta":     totalAdded - totalRemoved,
	}
}
