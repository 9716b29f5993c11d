package mcp

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// decodeEventStream extracts the JSON payloads carried in an SSE body.
// Lines with a "data:" prefix accumulate into a buffer; a blank line closes
// the buffer into one event; a trailing unflushed buffer at end-of-input is
// also emitted — some servers never terminate the final frame. Each event's
// accumulated text is parsed as JSON independently: a malformed event is
// dropped without affecting its neighbours. Output preserves source order.
func decodeEventStream(r io.Reader) []json.RawMessage {
	var (
		events []json.RawMessage
		buf    []string
	)
	flush := func() {
		if len(buf) == 0 {
			return
		}
		payload := strings.TrimSpace(strings.Join(buf, "\n"))
		buf = buf[:0]
		if payload == "" || !json.Valid([]byte(payload)) {
			return
		}
		events = append(events, json.RawMessage(payload))
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data:"):
			buf = append(buf, strings.TrimSpace(line[len("data:"):]))
		case strings.TrimSpace(line) == "":
			flush()
		}
	}
	flush()
	return events
}

// selectResponse picks the authoritative response out of a decoded event
// stream: the last event carrying a result or error key wins. Streams often
// interleave progress events ({"status":"pending"}) before the final answer.
func selectResponse(events []json.RawMessage) (*Response, error) {
	for i := len(events) - 1; i >= 0; i-- {
		var probe struct {
			Result *json.RawMessage `json:"result"`
			Error  *RemoteError     `json:"error"`
		}
		if err := json.Unmarshal(events[i], &probe); err != nil {
			continue // scalar or array event, cannot carry a response
		}
		if probe.Result == nil && probe.Error == nil {
			continue
		}
		var rsp Response
		if err := json.Unmarshal(events[i], &rsp); err != nil {
			continue
		}
		return &rsp, nil
	}
	return nil, &ProtocolError{Msg: "no result in event stream"}
}
