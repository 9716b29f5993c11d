package invoker

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/bdobrica/Kakehashi/common/spec/manifest"
)

// matchesShape reports whether v already has the expected shape. Values come
// either from json.Unmarshal (float64, []any) or from a previous cache
// substitution ([]int).
func matchesShape(v any, shape manifest.ArgShape) bool {
	switch shape {
	case manifest.ShapeInteger:
		return isIntegral(v)
	case manifest.ShapeIntArray:
		switch arr := v.(type) {
		case []int:
			return true
		case []any:
			for _, e := range arr {
				if !isIntegral(e) {
					return false
				}
			}
			return true
		}
	}
	return false
}

func isIntegral(v any) bool {
	switch n := v.(type) {
	case int, int64:
		return true
	case float64:
		return n == math.Trunc(n)
	case json.Number:
		_, err := n.Int64()
		return err == nil
	}
	return false
}

// decodeLiteral parses a textual literal into the expected shape. JSON is
// tried first; for integer arrays a lenient form is also accepted: an
// optionally bracketed or parenthesized comma-separated list, which covers
// the tuple-ish strings some models emit ("(3, 5, 1)", "3,5,1").
func decodeLiteral(s string, shape manifest.ArgShape) (any, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}

	switch shape {
	case manifest.ShapeInteger:
		if n, err := strconv.Atoi(s); err == nil {
			return n, true
		}
		return nil, false

	case manifest.ShapeIntArray:
		var arr []any
		if err := json.Unmarshal([]byte(s), &arr); err == nil {
			if matchesShape(arr, manifest.ShapeIntArray) {
				return arr, true
			}
			return nil, false
		}

		trimmed := s
		bracketed := false
		for _, pair := range [][2]string{{"[", "]"}, {"(", ")"}} {
			if strings.HasPrefix(trimmed, pair[0]) && strings.HasSuffix(trimmed, pair[1]) {
				trimmed = strings.TrimSuffix(strings.TrimPrefix(trimmed, pair[0]), pair[1])
				bracketed = true
				break
			}
		}
		// a bare scalar is not a list; demand list syntax of some kind
		if !bracketed && !strings.Contains(trimmed, ",") {
			return nil, false
		}

		parts := strings.Split(trimmed, ",")
		out := make([]int, 0, len(parts))
		for _, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return nil, false
			}
			out = append(out, n)
		}
		return out, true
	}
	return nil, false
}

// toIntSlice converts the decodeLiteral/json forms of an integer array into
// []int.
func toIntSlice(v any) ([]int, bool) {
	switch arr := v.(type) {
	case []int:
		return arr, true
	case []any:
		out := make([]int, 0, len(arr))
		for _, e := range arr {
			switch n := e.(type) {
			case int:
				out = append(out, n)
			case float64:
				if n != math.Trunc(n) {
					return nil, false
				}
				out = append(out, int(n))
			default:
				return nil, false
			}
		}
		return out, true
	}
	return nil, false
}
