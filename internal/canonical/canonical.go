// Package canonical derives a stable, content-addressable form of upstream
// API payloads. Two fetches of the same semantic content always produce the
// same canonical tree and therefore the same content hash, regardless of key
// order, whitespace, line-ending style, or volatile envelope fields.
package canonical

import (
	"encoding/json"
	"sort"
	"strings"
)

// volatileKeys are envelope fields that change between fetches without the
// content itself changing. They are dropped from every mapping level.
var volatileKeys = map[string]struct{}{
	"fetched_at":       {},
	"requested_at":     {},
	"request_id":       {},
	"response_headers": {},
	"http_status":      {},
	"api_version":      {},
}

// sortArrayKeys lists, per entity, the array fields whose element order is
// not semantically meaningful upstream and must be sorted for stability.
var sortArrayKeys = map[string]map[string]struct{}{
	"item": {
		"smallImageUrls":  {},
		"mediumImageUrls": {},
		"tagIds":          {},
	},
	"ranking": {},
	"genre":   {},
	"tag":     {},
}

// Canonicalize returns the canonical form of a decoded JSON payload for the
// given entity. The input is a tree of map[string]any, []any, string,
// json.Number, float64, bool, and nil; the output has the same shape with
// volatile keys elided, strings trimmed (empty becomes nil), CR/CRLF unified
// to LF, and designated arrays sorted. The operation is idempotent.
func Canonicalize(entity string, raw any) any {
	sortKeys := sortArrayKeys[strings.ToLower(entity)]
	return canonicalizeValue(raw, sortKeys, "")
}

func canonicalizeValue(value any, sortKeys map[string]struct{}, parentKey string) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, child := range v {
			if _, volatile := volatileKeys[key]; volatile {
				continue
			}
			out[key] = canonicalizeValue(child, sortKeys, key)
		}
		return out

	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = canonicalizeValue(child, sortKeys, parentKey)
		}
		if _, sorted := sortKeys[parentKey]; sorted {
			sort.SliceStable(out, func(i, j int) bool {
				return elementSortKey(out[i]) < elementSortKey(out[j])
			})
		}
		return out

	case string:
		trimmed := strings.TrimSpace(normalizeNewlines(v))
		if trimmed == "" {
			return nil
		}
		return trimmed

	default:
		return value
	}
}

// normalizeNewlines unifies CRLF and lone CR to LF.
func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// elementSortKey produces the ordering key for sorted-array elements.
// Composite elements compare by their canonical serialization, scalars by
// their literal text.
func elementSortKey(value any) string {
	switch v := value.(type) {
	case map[string]any, []any:
		b, err := Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return "null"
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Decode parses raw JSON into the value tree Canonicalize operates on.
// Numbers are kept as json.Number so their upstream textual form survives
// serialization, keeping hashes stable across round trips.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
