package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// DefaultHTTPTimeout bounds one HTTP tool call end to end.
const DefaultHTTPTimeout = 20 * time.Second

// acceptHeader declares both decode paths; the server's content-type picks
// one.
const acceptHeader = "application/json, text/event-stream"

// HTTPConn posts each JSON-RPC call to a single endpoint URL. The reply is
// either one JSON document or an SSE stream carrying the response among
// progress events. There is no shared connection state beyond the id counter,
// but calls are still issued one at a time by the host.
type HTTPConn struct {
	url        string
	httpClient *http.Client
	nextID     atomic.Int64
}

// DialHTTP returns a connection for the endpoint URL. A zero timeout selects
// DefaultHTTPTimeout. No request is sent until the first Call.
func DialHTTP(url string, timeout time.Duration) *HTTPConn {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &HTTPConn{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Call posts one request and decodes the single reply.
func (c *HTTPConn) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	body, err := c.post(ctx, Request{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, err
	}
	defer body.Close()

	resp, err := c.decode(body)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

// Notify posts one notification and discards whatever comes back. The error
// is advisory and callers never escalate it.
func (c *HTTPConn) Notify(ctx context.Context, method string, params any) error {
	body, err := c.post(ctx, Notification{JSONRPC: "2.0", Method: method, Params: params})
	if err != nil {
		return err
	}
	io.Copy(io.Discard, body)
	return body.Close()
}

// Close is a no-op; HTTP connections hold no transport state.
func (c *HTTPConn) Close() error { return nil }

// post sends one envelope and returns the response body with its
// content-type stashed on the wrapper.
func (c *HTTPConn) post(ctx context.Context, envelope any) (*httpBody, error) {
	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return nil, &TransportError{Endpoint: c.url, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", acceptHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: c.url, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &TransportError{
			Endpoint: c.url,
			Err:      fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
		}
	}
	return &httpBody{ReadCloser: resp.Body, contentType: resp.Header.Get("Content-Type")}, nil
}

// decode picks the decode path from the content-type: event streams go
// through the frame decoder with last-result-wins selection, everything else
// is attempted as plain JSON.
func (c *HTTPConn) decode(body *httpBody) (*Response, error) {
	ctype := strings.ToLower(body.contentType)
	if strings.Contains(ctype, "text/event-stream") {
		return selectResponse(decodeEventStream(body))
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &TransportError{Endpoint: c.url, Err: fmt.Errorf("read response: %w", err)}
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &ProtocolError{Msg: fmt.Sprintf("unexpected content-type %q: %v", body.contentType, err)}
	}
	return &resp, nil
}

type httpBody struct {
	io.ReadCloser
	contentType string
}
