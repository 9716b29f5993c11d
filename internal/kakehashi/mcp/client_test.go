package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

// scriptedConn answers Call by method name and records notifications.
type scriptedConn struct {
	results   map[string]string
	callErr   error
	notifyErr error
	notified  []string
}

func (s *scriptedConn) Call(_ context.Context, method string, _ any) (json.RawMessage, error) {
	if s.callErr != nil {
		return nil, s.callErr
	}
	raw, ok := s.results[method]
	if !ok {
		return nil, &RemoteError{Code: -32601, Message: "method not found"}
	}
	return json.RawMessage(raw), nil
}

func (s *scriptedConn) Notify(_ context.Context, method string, _ any) error {
	s.notified = append(s.notified, method)
	return s.notifyErr
}

func (s *scriptedConn) Close() error { return nil }

func TestInitialize_HandshakeAndNotification(t *testing.T) {
	conn := &scriptedConn{results: map[string]string{
		"initialize": `{"protocolVersion":"2024-11-05","serverInfo":{"name":"dice","version":"1"}}`,
	}}

	result, err := Initialize(context.Background(), conn, "kakehashi")
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if result.ServerInfo.Name != "dice" {
		t.Errorf("serverInfo = %+v", result.ServerInfo)
	}
	if len(conn.notified) != 1 || conn.notified[0] != "notifications/initialized" {
		t.Errorf("notified = %v", conn.notified)
	}
}

func TestInitialize_NotificationFailureNeverEscalates(t *testing.T) {
	conn := &scriptedConn{
		results:   map[string]string{"initialize": `{"protocolVersion":"2024-11-05"}`},
		notifyErr: errors.New("pipe closed"),
	}
	if _, err := Initialize(context.Background(), conn, "kakehashi"); err != nil {
		t.Fatalf("notification failure escaped: %v", err)
	}
}

func TestInitialize_CallFailurePropagates(t *testing.T) {
	conn := &scriptedConn{callErr: &TransportError{Endpoint: "dice", Err: errors.New("refused")}}
	if _, err := Initialize(context.Background(), conn, "kakehashi"); err == nil {
		t.Fatal("expected error")
	}
	if len(conn.notified) != 0 {
		t.Errorf("notification sent despite failed handshake: %v", conn.notified)
	}
}

func TestListTools_Normalizes(t *testing.T) {
	conn := &scriptedConn{results: map[string]string{
		"tools/list": `{"cursor":null,"tools":[{"name":"search"}]}`,
	}}
	tools, err := ListTools(context.Background(), conn)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "search" {
		t.Errorf("tools = %+v", tools)
	}
}
