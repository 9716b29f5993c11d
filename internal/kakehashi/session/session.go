// Package session holds the per-conversation state for the host: the chat
// transcript sent to the model and the cache of last-known-good argument
// values used to repair malformed tool calls.
package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/bdobrica/Kakehashi/internal/kakehashi/llm"
)

// State is the mutable conversation state. It is safe for concurrent use,
// though the host drives it from a single goroutine per conversation.
type State struct {
	mu sync.Mutex

	id         string
	transcript []llm.Message
	lastGood   map[string][]int
}

// New creates an empty conversation with a fresh session id.
func New() *State {
	return &State{
		id:       uuid.NewString(),
		lastGood: make(map[string][]int),
	}
}

// ID returns the current session identifier. Reset assigns a new one.
func (s *State) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Append adds messages to the transcript in order.
func (s *State) Append(msgs ...llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, msgs...)
}

// Transcript returns a copy of the accumulated messages.
func (s *State) Transcript() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Message, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// RememberInts stores vals as the last-known-good value for a cache category.
// A nil or empty slice is ignored so a later repair never substitutes
// an empty value.
func (s *State) RememberInts(category string, vals []int) {
	if len(vals) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]int, len(vals))
	copy(cp, vals)
	s.lastGood[category] = cp
}

// RecallInts returns the last-known-good value for a cache category,
// or ok=false when nothing has been remembered yet.
func (s *State) RecallInts(category string) (vals []int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.lastGood[category]
	if !ok {
		return nil, false
	}
	cp := make([]int, len(v))
	copy(cp, v)
	return cp, true
}

// Reset clears the transcript and the repair cache and assigns a new
// session id. Server connections are unaffected.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = uuid.NewString()
	s.transcript = nil
	s.lastGood = make(map[string][]int)
}
