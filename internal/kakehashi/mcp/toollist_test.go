package mcp

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

const toolPair = `[{"name":"roll_dice","description":"Roll dice"},{"name":"sum_dice"}]`

func TestNormalizeToolList_ThreeShapesAgree(t *testing.T) {
	shapes := map[string]string{
		"bare array":   toolPair,
		"tools object": `{"tools":` + toolPair + `}`,
		"cursor page":  `{"cursor":"abc","tools":` + toolPair + `}`,
	}

	var want []Tool
	if err := json.Unmarshal([]byte(toolPair), &want); err != nil {
		t.Fatal(err)
	}

	for name, raw := range shapes {
		t.Run(name, func(t *testing.T) {
			tools, err := normalizeToolList(json.RawMessage(raw))
			if err != nil {
				t.Fatalf("normalizeToolList: %v", err)
			}
			if !reflect.DeepEqual(tools, want) {
				t.Errorf("tools = %+v, want %+v", tools, want)
			}
		})
	}
}

func TestNormalizeToolList_UnrecognizedShape(t *testing.T) {
	for _, raw := range []string{`{"items":[]}`, `"nope"`, `42`, `{}`} {
		_, err := normalizeToolList(json.RawMessage(raw))
		var perr *ProtocolError
		if !errors.As(err, &perr) {
			t.Errorf("normalizeToolList(%s): expected ProtocolError, got %v", raw, err)
		}
	}
}

func TestNormalizeToolList_EmptyToolsObject(t *testing.T) {
	tools, err := normalizeToolList(json.RawMessage(`{"tools":[]}`))
	if err != nil {
		t.Fatalf("normalizeToolList: %v", err)
	}
	if len(tools) != 0 {
		t.Errorf("tools = %+v", tools)
	}
}
