package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// listShape names the tools/list response shapes seen in the wild.
type listShape int

const (
	listShapeUnknown listShape = iota
	listShapeBareArray           // [ {tool}, ... ]
	listShapeToolsObject         // { "tools": [...] }
	listShapeCursorPage          // { "cursor": ..., "tools": [...] }
)

// normalizeToolList turns any accepted tools/list response shape into one
// flat tool slice. Shapes outside the three recognized variants are an
// explicit protocol error rather than a best-effort guess.
func normalizeToolList(raw json.RawMessage) ([]Tool, error) {
	switch sniffListShape(raw) {
	case listShapeBareArray:
		var tools []Tool
		if err := json.Unmarshal(raw, &tools); err != nil {
			return nil, &ProtocolError{Msg: fmt.Sprintf("malformed tools/list array: %v", err)}
		}
		return tools, nil

	case listShapeToolsObject, listShapeCursorPage:
		var page struct {
			Tools []Tool `json:"tools"`
		}
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, &ProtocolError{Msg: fmt.Sprintf("malformed tools/list object: %v", err)}
		}
		return page.Tools, nil

	default:
		return nil, &ProtocolError{Msg: fmt.Sprintf("unrecognized tools/list shape: %s", clip(raw, 120))}
	}
}

// sniffListShape classifies a tools/list result without decoding tool
// entries.
func sniffListShape(raw json.RawMessage) listShape {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return listShapeUnknown
	}
	if trimmed[0] == '[' {
		return listShapeBareArray
	}
	if trimmed[0] != '{' {
		return listShapeUnknown
	}
	var probe struct {
		Tools  *json.RawMessage `json:"tools"`
		Cursor *json.RawMessage `json:"cursor"`
	}
	if err := json.Unmarshal(trimmed, &probe); err != nil || probe.Tools == nil {
		return listShapeUnknown
	}
	if probe.Cursor != nil {
		return listShapeCursorPage
	}
	return listShapeToolsObject
}

func clip(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
