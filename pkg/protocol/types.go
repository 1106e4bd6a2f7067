// Package protocol defines the shared wire types exchanged between the step
// controller, the output-parsing strategies, and the tool executor.
package protocol

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single entry in a conversation transcript.
type Message struct {
	Role       Role        `json:"role"`
	Content    string      `json:"content"`
	ToolCalls  []*ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
	Name       string      `json:"name,omitempty"`
}

// ToolCall is a tool invocation intent produced by a strategy and consumed
// exactly once by the executor.
type ToolCall struct {
	// ID is assigned when the intent is created; tool result messages
	// reference it.
	ID string `json:"id"`

	// Name is the registered tool name.
	Name string `json:"name"`

	// Arguments is the decoded argument map.
	Arguments map[string]interface{} `json:"arguments,omitempty"`

	// RawSpan is the span of raw model output the intent was parsed from.
	// Kept for transcript fidelity and debugging; never re-parsed.
	RawSpan string `json:"raw_span,omitempty"`
}

// NewToolCall creates an intent with a generated ID.
func NewToolCall(name string, args map[string]interface{}, rawSpan string) *ToolCall {
	return &ToolCall{
		ID:        uuid.NewString(),
		Name:      name,
		Arguments: args,
		RawSpan:   rawSpan,
	}
}

// Observation is the resolved outcome of one tool call, as fed back to the
// model. Failures of the observation class (timeouts, exhausted retries, open
// breakers) are carried here as text with Success=false; they are not errors.
type Observation struct {
	// ToolCall is the originating intent.
	ToolCall *ToolCall `json:"tool_call"`

	// Content is the textual observation appended to the transcript.
	Content string `json:"content"`

	// Success reports whether the underlying tool ultimately succeeded.
	Success bool `json:"success"`

	// Retries is the number of retry attempts performed (0 = first attempt
	// succeeded or the call never ran).
	Retries int `json:"retries"`

	// ShortCircuited is true when an open circuit breaker answered the call
	// without invoking the tool.
	ShortCircuited bool `json:"short_circuited,omitempty"`

	// Latency is the wall-clock time from dispatch to resolution.
	Latency time.Duration `json:"latency"`
}
