// Package normalize canonicalizes raw JSONL event records into a stable,
// diffable form: object keys alphabetized, volatile fields (timestamps,
// pids, ids) replaced with placeholders, and path/URL fragments rewritten
// against the normalization context. The transform is pure and idempotent:
// applying it twice yields bit-identical output.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Context carries the per-test values the normalizer needs to recognize and
// replace environment-specific fragments inside string values.
type Context struct {
	ProjectRoot    string
	Cwd            string
	EphemeralPort  string
	EphemeralRunID string
}

var (
	ansiCSIPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)
	uuidPattern    = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	runIDPattern   = regexp.MustCompile(`run-[0-9a-fA-F-]{36}`)
	localPortURL   = regexp.MustCompile(`http://127\.0\.0\.1:\d+/v1`)
)

// timestampKeys are string/numeric fields replaced with a fixed placeholder
// regardless of their original value.
var timestampKeys = map[string]bool{
	"timestamp":   true,
	"started_at":  true,
	"finished_at": true,
	"created_at":  true,
	"createdAt":   true,
	"ts":          true,
}

// idKeys map a field name (in either snake_case or camelCase spelling) to its
// placeholder token.
var idKeys = map[string]string{
	"cwd":          "<CWD>",
	"host":         "<HOST>",
	"session_id":   "<SESSION_ID>",
	"sessionId":    "<SESSION_ID>",
	"run_id":       "<RUN_ID>",
	"runId":        "<RUN_ID>",
	"artifact_id":  "<ARTIFACT_ID>",
	"artifactId":   "<ARTIFACT_ID>",
	"trace_id":     "<TRACE_ID>",
	"traceId":      "<TRACE_ID>",
	"span_id":      "<SPAN_ID>",
	"spanId":       "<SPAN_ID>",
}

// Normalize parses raw as UTF-8 JSONL and returns one canonicalized JSON
// value per non-empty line. A malformed line fails the whole call with a
// line-qualified error.
func Normalize(raw string, ctx Context) ([]any, error) {
	lines := strings.Split(raw, "\n")
	var out []any

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		var value any
		if err := json.Unmarshal([]byte(trimmed), &value); err != nil {
			return nil, fmt.Errorf("line %d: invalid JSON: %w", i+1, err)
		}

		out = append(out, normalizeValue(value, ctx, ""))
	}

	return out, nil
}

// normalizeValue recursively normalizes a decoded JSON value. key is the
// object key this value was found under, empty for array elements and the
// document root.
func normalizeValue(value any, ctx Context, key string) any {
	switch v := value.(type) {
	case map[string]any:
		return normalizeObject(v, ctx)
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = normalizeValue(elem, ctx, "")
		}
		return out
	case string:
		return normalizeString(v, ctx)
	case float64:
		if timestampKeys[key] || key == "pid" {
			return float64(0)
		}
		return v
	default:
		return v
	}
}

// normalizeObject normalizes every field of an object and returns it as an
// *OrderedObject whose Keys are sorted; its MarshalJSON writes the fields in
// that order, and callers that walk it directly can iterate Keys.
func normalizeObject(obj map[string]any, ctx Context) *OrderedObject {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := &OrderedObject{Keys: keys, Values: make(map[string]any, len(obj))}
	for _, k := range keys {
		raw := obj[k]

		if timestampKeys[k] {
			if _, ok := raw.(string); ok {
				result.Values[k] = "<TIMESTAMP>"
				continue
			}
			if _, ok := raw.(float64); ok {
				result.Values[k] = float64(0)
				continue
			}
		}
		if k == "pid" {
			if _, ok := raw.(float64); ok {
				result.Values[k] = float64(0)
				continue
			}
		}
		if placeholder, ok := idKeys[k]; ok {
			if _, ok := raw.(string); ok {
				result.Values[k] = placeholder
				continue
			}
		}

		result.Values[k] = normalizeValue(raw, ctx, k)
	}
	return result
}

// normalizeString applies the string-content rewrite rules: strip ANSI CSI
// sequences, replace workspace/project roots with placeholders, and rewrite
// UUIDs, run-ids, and loopback URLs.
func normalizeString(s string, ctx Context) string {
	s = ansiCSIPattern.ReplaceAllString(s, "")

	if ctx.Cwd != "" {
		s = strings.ReplaceAll(s, ctx.Cwd, "<WORKSPACE_ROOT>")
		s = strings.ReplaceAll(s, toBackslash(ctx.Cwd), "<WORKSPACE_ROOT>")
	}
	if ctx.ProjectRoot != "" {
		s = strings.ReplaceAll(s, ctx.ProjectRoot, "<PROJECT_ROOT>")
		s = strings.ReplaceAll(s, toBackslash(ctx.ProjectRoot), "<PROJECT_ROOT>")
	}

	s = runIDPattern.ReplaceAllString(s, "<RUN_ID>")
	s = uuidPattern.ReplaceAllString(s, "<UUID>")
	s = localPortURL.ReplaceAllStringFunc(s, func(match string) string {
		return "http://127.0.0.1:<PORT>/v1"
	})

	return s
}

func toBackslash(path string) string {
	return strings.ReplaceAll(path, "/", `\`)
}

// OrderedObject is a JSON object whose keys have already been alphabetized.
// MarshalJSON preserves that order so serialized output is byte-stable.
type OrderedObject struct {
	Keys   []string
	Values map[string]any
}

func (o *OrderedObject) MarshalJSON() ([]byte, error) {
	// Placeholders such as <TIMESTAMP> are written literally, without HTML
	// escaping of the angle brackets.
	encode := func(v any) ([]byte, error) {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
		return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range o.Keys {
		if i > 0 {
			b.WriteByte(',')
		}
		keyJSON, err := encode(k)
		if err != nil {
			return nil, err
		}
		b.Write(keyJSON)
		b.WriteByte(':')
		valJSON, err := encode(o.Values[k])
		if err != nil {
			return nil, err
		}
		b.Write(valJSON)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}
