// Package mcp implements the JSON-RPC 2.0 protocol layer used to talk to
// tool servers, across two transport bindings: a child-process pipe speaking
// newline-delimited JSON-RPC, and an HTTP endpoint whose reply is either a
// plain JSON document or a Server-Sent-Events stream.
package mcp

import "encoding/json"

// --- JSON-RPC 2.0 wire types ---

// Request is an outbound JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Notification is an outbound JSON-RPC 2.0 notification. It carries no id
// and no response is ever expected or correlated.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response is an inbound JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RemoteError    `json:"error,omitempty"`
}

// --- MCP method types ---

// InitializeParams is sent by the host as the first call on a connection.
type InitializeParams struct {
	ProtocolVersion string     `json:"protocolVersion"`
	Capabilities    ClientCaps `json:"capabilities"`
	ClientInfo      ClientInfo `json:"clientInfo"`
}

// ClientCaps describes host-side capabilities.
type ClientCaps struct{}

// ClientInfo describes the connecting host.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the server's response to initialize.
type InitializeResult struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ServerInfo      ServerInfo `json:"serverInfo"`
	Capabilities    ServerCaps `json:"capabilities"`
}

// ServerInfo holds the tool server's name and version.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerCaps describes server-side capabilities.
type ServerCaps struct {
	Tools *struct{} `json:"tools,omitempty"`
}

// Tool describes a single callable tool. InputSchema is the sole authority
// for the tool's argument shape.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"inputSchema,omitempty"`
}

// CallToolParams is sent to invoke a tool.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}
