package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// stderrTailSize bounds how much of the peer's diagnostic stream is kept for
// error reporting.
const stderrTailSize = 4 * 1024

// PipeConn talks to a tool server child process over stdin/stdout using
// newline-delimited JSON-RPC 2.0. Correlation ids are assigned monotonically
// per connection and never reused; each id resolves exactly one pending call,
// either with the matching response or with a transport failure when the
// peer's output ends.
type PipeConn struct {
	name    string
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	writeMu sync.Mutex
	nextID  atomic.Int64

	pendMu  sync.Mutex
	pending map[int64]*pendingCall

	stderr   *tailBuffer
	readDone chan struct{}
}

// pendingCall is one outstanding request awaiting its response.
type pendingCall struct {
	ch      chan *Response
	created time.Time
}

// DialPipe starts the tool server process and wires its pipes. extraEnv
// entries (KEY=VAL) are appended to the host environment. The returned conn
// is ready for the Initialize handshake.
func DialPipe(ctx context.Context, name, command string, args []string, extraEnv map[string]string) (*PipeConn, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Env = os.Environ()
	for k, v := range extraEnv {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &TransportError{Endpoint: name, Err: fmt.Errorf("stdin pipe: %w", err)}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, &TransportError{Endpoint: name, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderrTail := &tailBuffer{max: stderrTailSize}
	cmd.Stderr = stderrTail

	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, &TransportError{Endpoint: name, Err: fmt.Errorf("start process: %w", err)}
	}

	c := newPipeConn(name, stdin, stdout, stderrTail)
	c.cmd = cmd
	return c, nil
}

// newPipeConn builds a PipeConn over arbitrary pipes and starts the reader.
// Split out from DialPipe so tests can drive the correlator without a child
// process.
func newPipeConn(name string, stdin io.WriteCloser, stdout io.Reader, stderr *tailBuffer) *PipeConn {
	c := &PipeConn{
		name:     name,
		stdin:    stdin,
		pending:  make(map[int64]*pendingCall),
		stderr:   stderr,
		readDone: make(chan struct{}),
	}
	go c.readLoop(stdout)
	return c
}

// Call writes one request line and blocks until the reader matches the
// response id or the transport fails.
func (c *PipeConn) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	data, err := json.Marshal(Request{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	pc := &pendingCall{ch: make(chan *Response, 1), created: time.Now()}
	c.pendMu.Lock()
	c.pending[id] = pc
	c.pendMu.Unlock()

	if err := c.writeLine(data); err != nil {
		c.pendMu.Lock()
		delete(c.pending, id)
		c.pendMu.Unlock()
		return nil, &TransportError{Endpoint: c.name, Err: fmt.Errorf("write request: %w", err), Stderr: c.stderrTail()}
	}

	select {
	case <-ctx.Done():
		c.pendMu.Lock()
		delete(c.pending, id)
		c.pendMu.Unlock()
		return nil, ctx.Err()
	case resp := <-pc.ch:
		if resp == nil {
			return nil, &TransportError{Endpoint: c.name, Err: fmt.Errorf("server output ended before response"), Stderr: c.stderrTail()}
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}

// Notify writes one notification line. No response is expected; the error is
// advisory and callers never escalate it.
func (c *PipeConn) Notify(_ context.Context, method string, params any) error {
	data, err := json.Marshal(Notification{JSONRPC: "2.0", Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return c.writeLine(data)
}

// Close shuts the server down by closing its stdin and reaping the process.
// The reader must drain stdout to EOF first: Wait closes the stdout pipe, and
// os/exec forbids reading from it concurrently.
func (c *PipeConn) Close() error {
	c.stdin.Close()
	if c.cmd != nil {
		<-c.readDone
		return c.cmd.Wait()
	}
	return nil
}

func (c *PipeConn) writeLine(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := fmt.Fprintf(c.stdin, "%s\n", data)
	return err
}

func (c *PipeConn) stderrTail() string {
	if c.stderr == nil {
		return ""
	}
	return c.stderr.String()
}

// readLoop scans the peer's stdout line by line, discarding anything that is
// not a parseable response for an outstanding id. At EOF every pending call
// is failed so no caller blocks forever.
func (c *PipeConn) readLoop(r io.Reader) {
	defer close(c.readDone)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1<<20), 1<<20) // 1MB per line
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			slog.Debug("mcp: discarding non-JSON server output", "server", c.name)
			continue
		}
		c.pendMu.Lock()
		pc, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.pendMu.Unlock()
		if !ok {
			slog.Debug("mcp: discarding response with unknown id", "server", c.name, "id", resp.ID)
			continue
		}
		pc.ch <- &resp
	}

	// EOF (or read error): fail every outstanding call.
	c.pendMu.Lock()
	for id, pc := range c.pending {
		delete(c.pending, id)
		pc.ch <- nil
	}
	c.pendMu.Unlock()
}

// tailBuffer keeps the last max bytes written to it. It captures the peer's
// stderr so transport failures can carry the server's own diagnostics.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
