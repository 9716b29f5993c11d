package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/bdobrica/Kakehashi/common/version"
)

// protocolVersion is the MCP protocol revision sent in the handshake.
const protocolVersion = "2024-11-05"

// Conn is one correlated JSON-RPC connection to a tool server. Calls block
// until the matching response arrives or the transport fails; one call is
// outstanding at a time. Notify is fire-and-forget: it never joins the
// request/response correlation and callers treat its error as best-effort.
type Conn interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
	Notify(ctx context.Context, method string, params any) error
	Close() error
}

// Initialize runs the MCP handshake on a fresh connection: the initialize
// call followed by the best-effort initialized notification. Failure to
// deliver the notification is swallowed; failure of the call is not.
func Initialize(ctx context.Context, conn Conn, hostName string) (*InitializeResult, error) {
	raw, err := conn.Call(ctx, "initialize", InitializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    ClientCaps{},
		ClientInfo:      ClientInfo{Name: hostName, Version: version.Version},
	})
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	var result InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &ProtocolError{Msg: fmt.Sprintf("malformed initialize result: %v", err)}
	}

	if err := conn.Notify(ctx, "notifications/initialized", struct{}{}); err != nil {
		slog.Debug("mcp: initialized notification not delivered", "err", err)
	}
	return &result, nil
}

// ListTools fetches and normalizes the server's tool list. The empty params
// object is sent explicitly; some servers reject absent params.
func ListTools(ctx context.Context, conn Conn) ([]Tool, error) {
	raw, err := conn.Call(ctx, "tools/list", struct{}{})
	if err != nil {
		return nil, err
	}
	return normalizeToolList(raw)
}

// CallTool invokes a named tool and returns the raw result value for the
// caller to normalize.
func CallTool(ctx context.Context, conn Conn, name string, args map[string]any) (json.RawMessage, error) {
	return conn.Call(ctx, "tools/call", CallToolParams{Name: name, Arguments: args})
}
