package runner

import (
	"sync"
	"time"

	"github.com/striderhq/strider/pkg/protocol"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusFinal     Status = "final"
	StatusCancelled Status = "cancelled"
	StatusError     Status = "error"
)

// StepRecord is the append-only log entry for one reasoning step. Never
// mutated after append, so a persisted copy replays deterministically.
type StepRecord struct {
	Index        int
	Reasoning    string
	Intents      []*protocol.ToolCall
	Observations []protocol.Observation
	StartedAt    time.Time
	CompletedAt  time.Time
}

// ConversationState is the working state of one in-flight run. Owned by a
// single runner goroutine; the accessors exist for callers snapshotting
// state after the run ends.
type ConversationState struct {
	mu sync.RWMutex

	sessionID string
	messages  []*protocol.Message
	steps     []StepRecord
	status    Status
}

// NewConversationState seeds a running state from the caller's history.
func NewConversationState(sessionID string, history []*protocol.Message) *ConversationState {
	messages := make([]*protocol.Message, len(history))
	copy(messages, history)
	return &ConversationState{
		sessionID: sessionID,
		messages:  messages,
		status:    StatusRunning,
	}
}

// SessionID returns the run's session ID.
func (s *ConversationState) SessionID() string {
	return s.sessionID
}

// AppendMessage adds a transcript message.
func (s *ConversationState) AppendMessage(msg *protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// Messages returns a copy of the transcript.
func (s *ConversationState) Messages() []*protocol.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*protocol.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// AppendStep appends a completed step record.
func (s *ConversationState) AppendStep(record StepRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, record)
}

// Steps returns a copy of the step log.
func (s *ConversationState) Steps() []StepRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StepRecord, len(s.steps))
	copy(out, s.steps)
	return out
}

// SetStatus transitions the run status.
func (s *ConversationState) SetStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// Status returns the current run status.
func (s *ConversationState) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}
