package runner

import (
	"time"

	"github.com/striderhq/strider/pkg/protocol"
)

// EventType is the vocabulary of the run event stream.
type EventType string

const (
	// EventStatus reports a state transition.
	EventStatus EventType = "status"

	// EventReasoning carries incremental model thinking text.
	EventReasoning EventType = "reasoning"

	// EventToolCall reports a tool attempt being dispatched.
	EventToolCall EventType = "tool_call"

	// EventToolResult reports a tool attempt resolving.
	EventToolResult EventType = "tool_result"

	// EventContent carries incremental answer text.
	EventContent EventType = "content"

	// EventFinalAnswer carries the complete final answer.
	EventFinalAnswer EventType = "final_answer"

	// EventError reports a fatal failure with a stable code in Data["code"].
	EventError EventType = "error"

	// EventComplete is the last event of every run.
	EventComplete EventType = "complete"
)

// Event is one entry in a run's ordered event stream.
type Event struct {
	Type      EventType              `json:"type"`
	SessionID string                 `json:"session_id"`
	Step      int                    `json:"step"`
	Content   string                 `json:"content,omitempty"`
	ToolCall  *protocol.ToolCall     `json:"tool_call,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Stable error codes attached to EventError.
const (
	CodeUnknownTool      = "unknown_tool"
	CodeSchemaValidation = "schema_validation"
	CodeProviderError    = "provider_error"
	CodeCancelled        = "cancelled"
	CodeInternal         = "internal"
)
