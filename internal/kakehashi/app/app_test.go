package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	spec "github.com/bdobrica/Kakehashi/common/spec/manifest"
	"github.com/bdobrica/Kakehashi/internal/kakehashi/llm"
	"github.com/bdobrica/Kakehashi/internal/kakehashi/mcp"
)

// scriptedProvider plays back a fixed sequence of completions.
type scriptedProvider struct {
	responses []llm.CompletionResponse
	requests  []llm.CompletionRequest
}

func (p *scriptedProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.requests = append(p.requests, req)
	if len(p.responses) == 0 {
		return nil, fmt.Errorf("script exhausted after %d calls", len(p.requests))
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return &resp, nil
}

func toolCallsResponse(calls ...llm.ToolCall) llm.CompletionResponse {
	return llm.CompletionResponse{
		Message:      llm.Message{Role: llm.RoleAssistant, ToolCalls: calls},
		FinishReason: "tool_calls",
	}
}

func textResponse(text string) llm.CompletionResponse {
	return llm.CompletionResponse{
		Message:      llm.Message{Role: llm.RoleAssistant, Content: text},
		FinishReason: "stop",
	}
}

// diceServer answers the handshake and a small fixed tool set.
type diceServer struct {
	failDial bool
	calls    []string // "tool:argsJSON" in dispatch order
}

func (c *diceServer) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	switch method {
	case "initialize":
		return json.RawMessage(`{"protocolVersion":"2024-11-05","serverInfo":{"name":"dice","version":"1"},"capabilities":{}}`), nil
	case "tools/list":
		return json.RawMessage(`{"tools":[
			{"name":"roll_dice","description":"Roll N dice","inputSchema":{"type":"object","properties":{"n":{"type":"integer"}}}},
			{"name":"sum_dice","description":"Sum a list of rolls","inputSchema":{"type":"object","properties":{"rolls":{"type":"array","items":{"type":"integer"}}},"required":["rolls"]}}
		]}`), nil
	case "tools/call":
		p := params.(mcp.CallToolParams)
		args, _ := json.Marshal(p.Arguments)
		c.calls = append(c.calls, p.Name+":"+string(args))
		switch p.Name {
		case "roll_dice":
			return json.RawMessage(`{"content":[{"type":"text","text":"[3, 5, 1]"}]}`), nil
		case "sum_dice":
			return json.RawMessage(`{"content":[{"type":"text","text":"9"}]}`), nil
		}
	}
	return nil, fmt.Errorf("unexpected method %s", method)
}

func (c *diceServer) Notify(ctx context.Context, method string, params any) error { return nil }
func (c *diceServer) Close() error                                                { return nil }

func diceManifest(servers ...string) *spec.Config {
	cfg := &spec.Config{
		APIVersion: spec.SpecVersion,
		Metadata:   spec.Metadata{Name: "dicehost"},
		Repairs: []spec.RepairRule{
			{Tool: "sum_dice", Param: "rolls", Shape: spec.ShapeIntArray, Cache: "rolls"},
		},
		Cacheables: []spec.CacheRule{
			{Tool: "roll_dice", Category: "rolls"},
		},
	}
	for _, name := range servers {
		cfg.Servers = append(cfg.Servers, spec.ServerSpec{
			Name: name,
			Spec: fmt.Sprintf("http://%s.local:9000/mcp", name),
		})
	}
	return cfg
}

func startApp(t *testing.T, cfg *spec.Config, prov llm.Provider, conns map[string]mcp.Conn) *App {
	t.Helper()
	dial := func(ctx context.Context, ep spec.Endpoint) (mcp.Conn, error) {
		c, ok := conns[ep.Name]
		if !ok {
			return nil, fmt.Errorf("no route to %s", ep.Name)
		}
		if ds, ok := c.(*diceServer); ok && ds.failDial {
			return nil, fmt.Errorf("connection refused")
		}
		return c, nil
	}
	a := newForTest(cfg, prov, dial)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func TestAskDiceScenario(t *testing.T) {
	srv := &diceServer{}
	prov := &scriptedProvider{responses: []llm.CompletionResponse{
		toolCallsResponse(
			llm.ToolCall{ID: "call_roll", Type: "function", Function: llm.FunctionCall{
				Name: "server1_roll_dice", Arguments: `{"n":3}`,
			}},
			llm.ToolCall{ID: "call_sum", Type: "function", Function: llm.FunctionCall{
				// the model garbles rolls; the cached roll result must be substituted
				Name: "server1_sum_dice", Arguments: `{"rolls":"the ones you just rolled"}`,
			}},
		),
		textResponse("You rolled 3, 5 and 1, which sum to 9."),
	}}

	a := startApp(t, diceManifest("dice"), prov, map[string]mcp.Conn{"dice": srv})

	reply, err := a.Ask(context.Background(), "Roll 3 dice and sum them.")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !strings.Contains(reply, "sum to 9") {
		t.Errorf("reply = %q", reply)
	}

	// calls dispatched in the order requested, with repaired arguments
	if len(srv.calls) != 2 {
		t.Fatalf("dispatched calls = %v", srv.calls)
	}
	if !strings.HasPrefix(srv.calls[0], "roll_dice:") {
		t.Errorf("first call = %q", srv.calls[0])
	}
	if srv.calls[1] != `sum_dice:{"rolls":[3,5,1]}` {
		t.Errorf("second call = %q", srv.calls[1])
	}

	// transcript: system, user, assistant(tool_calls), 2 tool results, assistant
	tr := a.state.Transcript()
	if len(tr) != 6 {
		t.Fatalf("transcript length = %d: %+v", len(tr), tr)
	}
	if tr[0].Role != llm.RoleSystem || tr[1].Role != llm.RoleUser {
		t.Errorf("transcript head roles = %s, %s", tr[0].Role, tr[1].Role)
	}
	if tr[3].Role != llm.RoleTool || tr[3].Content != "[3, 5, 1]" {
		t.Errorf("roll result entry = %+v", tr[3])
	}
	if tr[4].Role != llm.RoleTool || tr[4].Content != "9" {
		t.Errorf("sum result entry = %+v", tr[4])
	}

	// the second request carried both tool results back to the model
	second := prov.requests[1]
	if len(second.Messages) != 5 {
		t.Errorf("second request messages = %d, want 5", len(second.Messages))
	}
	if len(second.Tools) != 2 {
		t.Errorf("second request tools = %d, want 2", len(second.Tools))
	}
}

func TestAskToolCallsWithStopFinishReason(t *testing.T) {
	srv := &diceServer{}
	// Ollama-style reply: finish_reason "stop" but tool calls attached. The
	// calls must still run.
	first := toolCallsResponse(llm.ToolCall{
		ID: "call_roll", Type: "function", Function: llm.FunctionCall{
			Name: "server1_roll_dice", Arguments: `{"n":3}`,
		},
	})
	first.FinishReason = "stop"
	prov := &scriptedProvider{responses: []llm.CompletionResponse{
		first,
		textResponse("You rolled 3, 5 and 1."),
	}}

	a := startApp(t, diceManifest("dice"), prov, map[string]mcp.Conn{"dice": srv})

	reply, err := a.Ask(context.Background(), "Roll 3 dice.")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if len(srv.calls) != 1 || !strings.HasPrefix(srv.calls[0], "roll_dice:") {
		t.Fatalf("dispatched calls = %v, want one roll_dice", srv.calls)
	}
	if !strings.Contains(reply, "rolled 3, 5 and 1") {
		t.Errorf("reply = %q", reply)
	}
}

func TestStartPartialFleet(t *testing.T) {
	conns := map[string]mcp.Conn{
		"alpha": &diceServer{},
		"beta":  &diceServer{failDial: true},
		"gamma": &diceServer{},
	}
	prov := &scriptedProvider{responses: []llm.CompletionResponse{textResponse("hello")}}

	a := startApp(t, diceManifest("alpha", "beta", "gamma"), prov, conns)

	// tools from servers 1 and 3 only, still namespaced by manifest position
	defs := a.cat.Definitions()
	if len(defs) != 4 {
		t.Fatalf("definitions = %d, want 4", len(defs))
	}
	names := make(map[string]bool)
	for _, d := range defs {
		names[d.Function.Name] = true
	}
	for _, want := range []string{"server1_roll_dice", "server3_roll_dice"} {
		if !names[want] {
			t.Errorf("missing %s in %v", want, names)
		}
	}
	if names["server2_roll_dice"] {
		t.Error("failed server leaked into the catalog")
	}

	if _, err := a.Ask(context.Background(), "hi"); err != nil {
		t.Errorf("Ask on partial fleet: %v", err)
	}
}

func TestStartAllDown(t *testing.T) {
	prov := &scriptedProvider{}
	dial := func(ctx context.Context, ep spec.Endpoint) (mcp.Conn, error) {
		return nil, fmt.Errorf("connection refused")
	}
	a := newForTest(diceManifest("dice"), prov, dial)
	if err := a.Start(context.Background()); err == nil {
		t.Fatal("Start must fail when no server is reachable")
	}
}

func TestAskRoundCapExceeded(t *testing.T) {
	srv := &diceServer{}
	// the model asks for tools forever
	var loop []llm.CompletionResponse
	for i := 0; i < 20; i++ {
		loop = append(loop, toolCallsResponse(llm.ToolCall{
			ID: fmt.Sprintf("call_%d", i), Type: "function",
			Function: llm.FunctionCall{Name: "server1_roll_dice", Arguments: `{"n":1}`},
		}))
	}
	prov := &scriptedProvider{responses: loop}

	cfg := diceManifest("dice")
	cfg.Limits.MaxToolRounds = 3

	a := startApp(t, cfg, prov, map[string]mcp.Conn{"dice": srv})
	_, err := a.Ask(context.Background(), "roll forever")
	if err == nil || !strings.Contains(err.Error(), "tool call rounds") {
		t.Errorf("err = %v, want round cap", err)
	}
	if len(prov.requests) != 3 {
		t.Errorf("LLM called %d times, want 3", len(prov.requests))
	}
}

func TestResetClearsConversation(t *testing.T) {
	srv := &diceServer{}
	prov := &scriptedProvider{responses: []llm.CompletionResponse{
		textResponse("first answer"),
		textResponse("second answer"),
	}}
	a := startApp(t, diceManifest("dice"), prov, map[string]mcp.Conn{"dice": srv})

	if _, err := a.Ask(context.Background(), "one"); err != nil {
		t.Fatal(err)
	}
	oldID := a.state.ID()
	a.Reset()

	if a.state.ID() == oldID {
		t.Error("reset kept the session id")
	}
	if _, err := a.Ask(context.Background(), "two"); err != nil {
		t.Fatal(err)
	}
	tr := a.state.Transcript()
	// fresh transcript: system, user, assistant
	if len(tr) != 3 {
		t.Errorf("transcript after reset = %d entries", len(tr))
	}
	if strings.Contains(tr[1].Content, "one") {
		t.Error("old turn leaked past reset")
	}
}
