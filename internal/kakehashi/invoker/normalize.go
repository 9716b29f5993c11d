package invoker

import (
	"encoding/json"
	"fmt"
)

// Normalize converts a raw tools/call result into plain text for the chat
// API's tool-result content. A wrapping content or data field is unwrapped,
// text-bearing objects collapse to their text, containers are flattened
// element-wise, and anything unrecognized degrades to a debug string.
func Normalize(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}

	if m, ok := v.(map[string]any); ok {
		if c, ok := m["content"]; ok {
			v = c
		} else if d, ok := m["data"]; ok {
			v = d
		}
	}

	plain := flatten(v)
	if s, ok := plain.(string); ok {
		return s
	}
	out, err := json.Marshal(plain)
	if err != nil {
		return fmt.Sprintf("%v", plain)
	}
	return string(out)
}

func flatten(v any) any {
	switch t := v.(type) {
	case nil, bool, float64, string:
		return t
	case map[string]any:
		if s, ok := t["text"].(string); ok {
			return s
		}
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = flatten(e)
		}
		return out
	case []any:
		if len(t) == 1 {
			return flatten(t[0])
		}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = flatten(e)
		}
		return out
	default:
		return fmt.Sprintf("%v", t)
	}
}
