package providers

// Marker-based tree search over schemaless upstream documents.
//
// The unofficial YouTube Music endpoint returns deeply nested JSON whose
// shape varies across API revisions. Rather than bind to one layout, the
// adapter searches the decoded document for known structural markers and
// accepts the first match; an unknown shape yields "not found", which
// pagination treats as safe termination.

import "sort"

// nav walks doc along path. Each step is either a string (map key) or an
// int (slice index). Returns ok=false as soon as a step cannot be taken.
func nav(doc any, path ...any) (any, bool) {
	current := doc
	for _, step := range path {
		switch key := step.(type) {
		case string:
			m, ok := current.(map[string]any)
			if !ok {
				return nil, false
			}
			current, ok = m[key]
			if !ok {
				return nil, false
			}
		case int:
			list, ok := current.([]any)
			if !ok || key < 0 || key >= len(list) {
				return nil, false
			}
			current = list[key]
		default:
			return nil, false
		}
	}
	return current, true
}

// navString is nav constrained to a string leaf.
func navString(doc any, path ...any) (string, bool) {
	value, ok := nav(doc, path...)
	if !ok {
		return "", false
	}
	s, ok := value.(string)
	return s, ok
}

// navList is nav constrained to a slice leaf.
func navList(doc any, path ...any) ([]any, bool) {
	value, ok := nav(doc, path...)
	if !ok {
		return nil, false
	}
	list, ok := value.([]any)
	return list, ok
}

// findFirst searches doc depth-first for the first occurrence of key and
// returns its value. Map children are visited in sorted key order so the
// traversal is deterministic for a given document.
func findFirst(doc any, key string) (any, bool) {
	switch node := doc.(type) {
	case map[string]any:
		if value, ok := node[key]; ok {
			return value, true
		}
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if found, ok := findFirst(node[k], key); ok {
				return found, true
			}
		}
	case []any:
		for _, child := range node {
			if found, ok := findFirst(child, key); ok {
				return found, true
			}
		}
	}
	return nil, false
}

// findFirstMap is findFirst constrained to a map value.
func findFirstMap(doc any, key string) (map[string]any, bool) {
	value, ok := findFirst(doc, key)
	if !ok {
		return nil, false
	}
	m, ok := value.(map[string]any)
	return m, ok
}
