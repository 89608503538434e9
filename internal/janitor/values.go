package janitor

import (
	"strconv"
	"strings"
)

// Store rows are duck-typed: fields may be absent, wrong-typed or
// legacy-shaped. Every accessor validates and falls back to a zero
// value instead of propagating a type error.

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func strField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func hasField(m map[string]any, key string) bool {
	if m == nil {
		return false
	}
	_, ok := m[key]
	return ok
}

// toMillis coerces a timestamp field to epoch milliseconds; anything
// unparsable is 0.
func toMillis(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}

// tsField returns the first present, parsable timestamp among keys.
func tsField(m map[string]any, keys ...string) int64 {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if ts := toMillis(v); ts != 0 {
				return ts
			}
		}
	}
	return 0
}

// bestTimestamp returns the maximum non-negative value.
func bestTimestamp(vals ...int64) int64 {
	var best int64
	for _, v := range vals {
		if v > best {
			best = v
		}
	}
	return best
}

func trimID(s string) string { return strings.TrimSpace(s) }

func minutesToMillis(minutes int) int64 {
	if minutes < 1 {
		minutes = 1
	}
	return int64(minutes) * 60 * 1000
}
