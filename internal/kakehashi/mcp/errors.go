package mcp

import (
	"encoding/json"
	"fmt"
)

// TransportError means a call could not complete at all: the connection
// failed, the peer went away, or the HTTP round trip broke. For pipe
// transports Stderr carries the peer's captured diagnostic output.
type TransportError struct {
	Endpoint string
	Err      error
	Stderr   string
}

func (e *TransportError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("transport %s: %v; server stderr:\n%s", e.Endpoint, e.Err, e.Stderr)
	}
	return fmt.Sprintf("transport %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError means the peer answered, but not with anything usable: a
// malformed response, an unexpected content type, or a stream that carried
// no result.
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string { return "protocol: " + e.Msg }

// RemoteError is the error object of a JSON-RPC response: the server
// completed the exchange and reported a failure itself.
type RemoteError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}
