package duplex

import (
	"encoding/json"
	"strings"
)

// DefaultRedactKeys are masked in every logged payload. Matching is on the
// whole key, case-insensitively.
var DefaultRedactKeys = []string{"token", "authorization", "auth", "secret", "card", "pan"}

// DefaultMaxLogPayload caps logged previews.
const DefaultMaxLogPayload = 2000

const redacted = "[REDACTED]"

func keySet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[strings.ToLower(k)] = struct{}{}
	}
	return set
}

// Redact returns a deep copy of v with every map entry whose key is in keys
// replaced by "[REDACTED]". With no keys, DefaultRedactKeys apply. v is
// expected to be a decoded JSON value.
func Redact(v any, keys ...string) any {
	if len(keys) == 0 {
		keys = DefaultRedactKeys
	}
	return redactDeep(v, keySet(keys))
}

func redactDeep(v any, keys map[string]struct{}) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if _, hit := keys[strings.ToLower(k)]; hit {
				out[k] = redacted
				continue
			}
			out[k] = redactDeep(val, keys)
		}
		return out
	case Event:
		return redactDeep(map[string]any(t), keys)
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = redactDeep(val, keys)
		}
		return out
	default:
		return v
	}
}

// truncate cuts s to at most limit bytes, marking the cut.
func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	// Don't split a multi-byte rune.
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// preview renders a redacted, length-capped form of a decoded JSON value.
func preview(v any, keys map[string]struct{}, limit int) string {
	b, err := json.Marshal(redactDeep(v, keys))
	if err != nil {
		return "<unencodable>"
	}
	return truncate(string(b), limit)
}
