package source

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SplitPath turns "Descriptions.ProductName" into its segments.
func SplitPath(path string) []string {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	parts := strings.Split(path, ".")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Lookup walks path through nested maps. Each segment matches an exact key,
// then the attribute form "-key", then any key with the same local name
// ("ns0:PriceList" matches "PriceList" and vice versa). Absence is reported
// through ok, never as a panic.
func Lookup(v any, path ...string) (any, bool) {
	curr := v
	for _, seg := range path {
		m, ok := asMap(curr)
		if !ok {
			return nil, false
		}
		next, found := child(m, seg)
		if !found {
			return nil, false
		}
		curr = next
	}
	if curr == nil {
		return nil, false
	}
	return curr, true
}

// Text resolves path to a trimmed scalar string. Elements that carry
// attributes keep their character data under "#text".
func Text(v any, path ...string) (string, bool) {
	val, ok := Lookup(v, path...)
	if !ok {
		return "", false
	}
	return scalar(val)
}

// List resolves path to a slice. A single object becomes a one-element list.
func List(v any, path ...string) []any {
	val, ok := Lookup(v, path...)
	if !ok {
		return nil
	}
	switch t := val.(type) {
	case []any:
		return t
	case []map[string]any:
		out := make([]any, 0, len(t))
		for _, m := range t {
			out = append(out, m)
		}
		return out
	default:
		return []any{t}
	}
}

// FirstText returns the first candidate path that resolves to a non-empty string.
func FirstText(v any, paths []string) (string, bool) {
	for _, p := range paths {
		if s, ok := Text(v, SplitPath(p)...); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case RawRecord:
		return t, true
	default:
		return nil, false
	}
}

func child(m map[string]any, seg string) (any, bool) {
	if v, ok := m[seg]; ok {
		return v, true
	}
	if v, ok := m["-"+seg]; ok {
		return v, true
	}
	local := localName(seg)
	for k, v := range m {
		if localName(strings.TrimPrefix(k, "-")) == local {
			return v, true
		}
	}
	return nil, false
}

func localName(key string) string {
	if idx := strings.LastIndex(key, ":"); idx >= 0 {
		return key[idx+1:]
	}
	return key
}

func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case map[string]any:
		if text, ok := t["#text"]; ok {
			return scalar(text)
		}
		return "", false
	case RawRecord:
		return scalar(map[string]any(t))
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return "", false
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int, int64, bool:
		return fmt.Sprint(t), true
	default:
		return "", false
	}
}
