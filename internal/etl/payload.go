package etl

import (
	"encoding/json"
	"fmt"
	"time"
)

// Payload accessors for canonical JSON trees. Upstream payloads are loosely
// typed: numbers arrive as json.Number, wrapper objects vary between API
// versions, and image entries may be plain strings or {"imageUrl": ...}
// dicts. Everything here tolerates absence and returns nil instead.

// AsMap narrows a payload node to an object.
func AsMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// AsSlice narrows a payload node to a list.
func AsSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

// PickString returns the first present, non-empty string among the keys.
func PickString(m map[string]any, keys ...string) *string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && s != "" {
			return &s
		}
	}
	return nil
}

// PickInt64 returns the first key holding an integral number.
func PickInt64(m map[string]any, keys ...string) *int64 {
	for _, key := range keys {
		if n, ok := numberAt(m, key); ok {
			if i, err := n.Int64(); err == nil {
				return &i
			}
			// Upstream sometimes sends integral values as "1.0".
			if f, err := n.Float64(); err == nil && f == float64(int64(f)) {
				i := int64(f)
				return &i
			}
		}
	}
	return nil
}

// PickFloat64 returns the first key holding a number.
func PickFloat64(m map[string]any, keys ...string) *float64 {
	for _, key := range keys {
		if n, ok := numberAt(m, key); ok {
			if f, err := n.Float64(); err == nil {
				return &f
			}
		}
	}
	return nil
}

func numberAt(m map[string]any, key string) (json.Number, bool) {
	switch v := m[key].(type) {
	case json.Number:
		return v, true
	case string:
		if v != "" {
			return json.Number(v), true
		}
	}
	return "", false
}

// StringList flattens a list whose entries are strings or single-field dicts
// keyed by dictKey, e.g. smallImageUrls entries of {"imageUrl": "..."}.
func StringList(v any, dictKey string) []string {
	items, ok := AsSlice(v)
	if !ok {
		return nil
	}

	var out []string
	for _, item := range items {
		switch e := item.(type) {
		case string:
			out = append(out, e)
		case map[string]any:
			if s, ok := e[dictKey].(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

// Int64List flattens a list of numbers or digit strings, dropping anything
// non-integral.
func Int64List(v any) []int64 {
	items, ok := AsSlice(v)
	if !ok {
		return nil
	}

	var out []int64
	for _, item := range items {
		var n json.Number
		switch e := item.(type) {
		case json.Number:
			n = e
		case string:
			if e == "" {
				continue
			}
			n = json.Number(e)
		default:
			continue
		}
		if i, err := n.Int64(); err == nil {
			out = append(out, i)
		}
	}
	return out
}

// ItemsList returns the payload's item array. formatVersion=2 responses use
// a lowercase items key; older payloads capitalize it.
func ItemsList(m map[string]any) []any {
	if items, ok := AsSlice(m["items"]); ok {
		return items
	}
	items, _ := AsSlice(m["Items"])
	return items
}

// UnwrapSingleKey peels one level of single-field wrapper objects, e.g. the
// genre tree's {"child": {...}} entries. Anything else passes through.
func UnwrapSingleKey(v any) any {
	m, ok := AsMap(v)
	if !ok || len(m) != 1 {
		return v
	}
	for _, inner := range m {
		return inner
	}
	return v
}

// rakutenTimeLayouts covers the timestamp forms the commerce API emits.
var rakutenTimeLayouts = []string{
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseRakutenTime parses an upstream timestamp and normalizes it to UTC.
func ParseRakutenTime(s string) (time.Time, error) {
	for _, layout := range rakutenTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
