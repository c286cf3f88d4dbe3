package normalizer

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

const (
	contentHashLen = 12
	eventIDLen     = 16
)

// Truncate caps s at max characters (runes, not bytes) and reports whether
// anything was cut. Idempotent: truncating an already-truncated string is a
// no-op.
func Truncate(s string, max int) (string, bool) {
	if max <= 0 {
		return s, false
	}
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max]), true
	}
	return s, false
}

// ContentHash returns a short deterministic digest of any JSON-encodable
// value. Map keys are sorted by the encoder, so identical content always
// hashes identically regardless of insertion order. The digest is a dedup
// aid, not a uniqueness guarantee.
func ContentHash(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		b = []byte(fmt.Sprintf("%v", v))
	}
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])[:contentHashLen]
}

// EventID derives the fixed-length entry identifier from the action name,
// the producer timestamp, and the derived-payload hash.
func EventID(action, timestamp, contentHash string) string {
	sum := sha256.Sum256([]byte(action + "_" + timestamp + "_" + contentHash))
	return hex.EncodeToString(sum[:])[:eventIDLen]
}

// lineCount counts lines the way the wire format defines them: newline
// count plus one for any non-empty string, zero for empty.
func lineCount(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}

// fileMetadata extracts path-derived attributes for read/write events.
func fileMetadata(path string) map[string]any {
	name := filepath.Base(path)
	if path == "" {
		name = ""
	}
	ext := filepath.Ext(name)

	var extension any
	if ext != "" {
		extension = strings.TrimPrefix(ext, ".")
	}

	dir := filepath.Dir(path)
	if path == "" {
		dir = ""
	}

	return map[string]any{
		"file_path":      path,
		"file_name":      name,
		"file_extension": extension,
		"directory":      dir,
		"is_hidden":      strings.HasPrefix(name, "."),
	}
}

// stringField reads a string out of an untyped payload map, defaulting to
// empty on absence or type mismatch.
func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// sliceField reads a []any out of an untyped payload map.
func sliceField(m map[string]any, key string) []any {
	if m == nil {
		return nil
	}
	if s, ok := m[key].([]any); ok {
		return s
	}
	return nil
}

// mapField reads a nested map out of an untyped payload map.
func mapField(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	return nil
}
