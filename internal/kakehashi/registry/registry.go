// Package registry connects to every configured MCP server concurrently and
// records, per endpoint, either a live connection with its discovered tools
// or the error that prevented discovery. A failed endpoint never blocks the
// others; the host starts with whatever subset came up.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bdobrica/Kakehashi/common/spec/manifest"
	"github.com/bdobrica/Kakehashi/internal/kakehashi/mcp"
)

// DiscoveryError wraps a connect or handshake failure for one endpoint.
type DiscoveryError struct {
	Endpoint string
	Err      error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery failed for %s: %v", e.Endpoint, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// Dialer opens a connection for one endpoint. It exists as a seam so tests
// can inject in-memory connections; production code uses Dial.
type Dialer func(ctx context.Context, ep manifest.Endpoint) (mcp.Conn, error)

// Entry is the discovery outcome for one endpoint. Exactly one of Conn or
// Err is set. Position is the 1-based index of the endpoint in manifest
// order; it is stable across reconnects and is what tool namespacing uses.
type Entry struct {
	Position int
	Endpoint manifest.Endpoint
	Conn     mcp.Conn
	Tools    []mcp.Tool
	Err      *DiscoveryError
}

// Registry holds the connected servers in manifest order.
type Registry struct {
	entries []*Entry
}

// Dial is the production Dialer: pipe endpoints spawn a subprocess, http
// endpoints get a pooled client.
func Dial(httpTimeout time.Duration) Dialer {
	return func(ctx context.Context, ep manifest.Endpoint) (mcp.Conn, error) {
		switch ep.Transport {
		case manifest.TransportPipe:
			return mcp.DialPipe(ctx, ep.Name, ep.Address, ep.Args, ep.Env)
		case manifest.TransportHTTP:
			return mcp.DialHTTP(ep.Address, httpTimeout), nil
		default:
			return nil, fmt.Errorf("unknown transport %q", ep.Transport)
		}
	}
}

// Connect dials every endpoint concurrently, runs the MCP handshake and
// tools/list on each, and returns a registry with one entry per endpoint in
// the order given. Connect itself never fails: per-endpoint errors land in
// the corresponding Entry.Err and are logged.
func Connect(ctx context.Context, hostName string, endpoints []manifest.Endpoint, dial Dialer) *Registry {
	entries := make([]*Entry, len(endpoints))

	var wg sync.WaitGroup
	for i, ep := range endpoints {
		entries[i] = &Entry{Position: i + 1, Endpoint: ep}

		wg.Add(1)
		go func(e *Entry) {
			defer wg.Done()
			if err := discover(ctx, hostName, e, dial); err != nil {
				e.Err = &DiscoveryError{Endpoint: e.Endpoint.Name, Err: err}
				slog.Warn("server discovery failed",
					"server", e.Endpoint.Name,
					"transport", e.Endpoint.Transport,
					"err", err)
			}
		}(entries[i])
	}
	wg.Wait()

	return &Registry{entries: entries}
}

func discover(ctx context.Context, hostName string, e *Entry, dial Dialer) error {
	conn, err := dial(ctx, e.Endpoint)
	if err != nil {
		return err
	}

	srv, err := mcp.Initialize(ctx, conn, hostName)
	if err != nil {
		conn.Close()
		return err
	}

	tools, err := mcp.ListTools(ctx, conn)
	if err != nil {
		conn.Close()
		return err
	}

	e.Conn = conn
	e.Tools = tools
	slog.Info("server connected",
		"server", e.Endpoint.Name,
		"remote", srv.ServerInfo.Name,
		"tools", len(tools))
	return nil
}

// Entries returns all entries in manifest order, failed ones included.
func (r *Registry) Entries() []*Entry {
	return r.entries
}

// Live returns the entries that connected successfully, in manifest order.
func (r *Registry) Live() []*Entry {
	var out []*Entry
	for _, e := range r.entries {
		if e.Err == nil {
			out = append(out, e)
		}
	}
	return out
}

// At returns the entry at a 1-based position, or nil when out of range.
func (r *Registry) At(position int) *Entry {
	if position < 1 || position > len(r.entries) {
		return nil
	}
	return r.entries[position-1]
}

// Close shuts down every live connection. Errors are logged, not returned;
// close happens on the way out and nothing can act on them.
func (r *Registry) Close() {
	for _, e := range r.entries {
		if e.Conn == nil {
			continue
		}
		if err := e.Conn.Close(); err != nil {
			slog.Debug("close failed", "server", e.Endpoint.Name, "err", err)
		}
	}
}
