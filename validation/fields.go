package validation

import (
	"math"
	"strings"
)

// Raw is an undecoded JSON object as produced by encoding/json into map[string]any.
type Raw = map[string]any

// present reports whether key exists and holds a truthy value, mirroring how the
// web form treats empty strings, zero numbers and nulls as missing.
func present(raw Raw, key string) bool {
	v, ok := raw[key]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case string:
		return t != ""
	case float64:
		return t != 0
	case bool:
		return t
	}
	return true
}

func stringField(raw Raw, key string) (string, bool) {
	s, ok := raw[key].(string)
	return s, ok
}

func objectField(raw Raw, key string) (Raw, bool) {
	m, ok := raw[key].(map[string]any)
	return m, ok
}

// integerField accepts JSON numbers without a fractional part.
func integerField(raw Raw, key string) (int, bool) {
	switch n := raw[key].(type) {
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

func stringSlice(v any) ([]string, bool) {
	switch items := v.(type) {
	case []string:
		return items, true
	case []any:
		out := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func trimmed(raw Raw, key string) string {
	s, _ := stringField(raw, key)
	return strings.TrimSpace(s)
}
