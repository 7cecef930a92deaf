package research

import (
	"sync"
	"time"
)

// Role identifies a transcript speaker.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript entry.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is a point-in-time copy of session state, safe to serialize while
// the session keeps moving.
type Snapshot struct {
	IsRunning       bool      `json:"is_running"`
	Messages        []Message `json:"messages"`
	WaitingForInput bool      `json:"waiting_for_input"`
	Error           string    `json:"error"`
	ResultFile      string    `json:"result_file"`
}

// Session holds the state of the single live research session. All methods
// are safe for concurrent use.
type Session struct {
	mu              sync.RWMutex
	running         bool
	waitingForInput bool
	messages        []Message
	err             string
	resultFile      string
}

// NewSession returns an idle session.
func NewSession() *Session {
	return &Session{}
}

// TryBegin atomically resets all state and marks the session running. It
// returns false when a session is already live, leaving state untouched.
func (s *Session) TryBegin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	s.waitingForInput = false
	s.messages = nil
	s.err = ""
	s.resultFile = ""
	return true
}

// End marks the session finished. A finished session awaits no input.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.waitingForInput = false
}

// Append adds a transcript entry stamped with the current time.
func (s *Session) Append(role Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, Message{Role: role, Content: content, Timestamp: time.Now()})
}

// SetWaiting flags whether the orchestrator is blocked on human input.
func (s *Session) SetWaiting(waiting bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waitingForInput = waiting
}

// SetError records the session's failure. Only the first error sticks.
func (s *Session) SetError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == "" {
		s.err = msg
	}
}

// SetResultFile records the name of the written report.
func (s *Session) SetResultFile(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resultFile = name
}

// IsRunning reports whether a session is live.
func (s *Session) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// WaitingForInput reports whether the orchestrator is blocked on a reply.
func (s *Session) WaitingForInput() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.waitingForInput
}

// Snapshot returns a deep copy of the current state. Messages is never nil so
// the serialized form always carries an array.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := make([]Message, len(s.messages))
	copy(msgs, s.messages)
	return Snapshot{
		IsRunning:       s.running,
		Messages:        msgs,
		WaitingForInput: s.waitingForInput,
		Error:           s.err,
		ResultFile:      s.resultFile,
	}
}
