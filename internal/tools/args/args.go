// Package args extracts typed values from untyped JSON tool arguments.
//
// Extraction is permissive: a missing or mistyped field yields the supplied
// default. Rejecting bad arguments is the schema validator's job.
package args

import (
	"encoding/json"
	"math"
)

// String returns m[key] if it is a string, else def.
func String(m map[string]any, key, def string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return def
}

// Bool returns m[key] if it is a bool, else def.
func Bool(m map[string]any, key string, def bool) bool {
	if b, ok := m[key].(bool); ok {
		return b
	}
	return def
}

// Int accepts JSON numbers in any of the shapes decoders produce.
// Fractions are truncated toward zero.
func Int(m map[string]any, key string, def int) int {
	switch v := m[key].(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return def
		}
		return int(v)
	case float32:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
		if f, err := v.Float64(); err == nil {
			return int(f)
		}
	}
	return def
}

// Strings returns the string elements of m[key]. Non-string elements are
// skipped. A missing key, or a list with no strings, yields def.
func Strings(m map[string]any, key string, def []string) []string {
	var out []string
	switch v := m[key].(type) {
	case []string:
		out = append(out, v...)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
