// Package llms defines the language model provider abstraction and the
// OpenAI-compatible HTTP implementation used by the step controller.
package llms

import (
	"context"
	"fmt"

	"github.com/striderhq/strider/pkg/protocol"
)

// ToolDefinition describes a callable tool advertised to the model in
// provider-native function-calling format.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// StreamChunk is one increment of a streaming response.
type StreamChunk struct {
	// Text is the content delta, empty for tool call chunks.
	Text string

	// ToolCall is set when the chunk completes a tool call.
	ToolCall *protocol.ToolCall
}

// Response is a complete, non-streaming model turn.
type Response struct {
	Text       string
	ToolCalls  []*protocol.ToolCall
	TokensUsed int

	// FinishReason is the provider's stop reason ("stop", "tool_calls",
	// "length", ...).
	FinishReason string
}

// Provider generates model turns from a conversation transcript.
type Provider interface {
	// Name returns the configured provider instance name.
	Name() string

	// Generate produces one complete turn. Tool definitions are advertised
	// only when the active strategy relies on native function calling.
	Generate(ctx context.Context, messages []*protocol.Message, tools []ToolDefinition) (*Response, error)

	// GenerateStreaming produces one turn as a channel of chunks. The channel
	// is closed when the turn completes or ctx is cancelled.
	GenerateStreaming(ctx context.Context, messages []*protocol.Message, tools []ToolDefinition) (<-chan StreamChunk, error)
}

// ProviderError wraps failures from a model provider with enough context to
// log which provider and operation failed.
type ProviderError struct {
	Provider  string
	Operation string
	Message   string
	Err       error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm provider %s: %s failed: %s: %v", e.Provider, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("llm provider %s: %s failed: %s", e.Provider, e.Operation, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a ProviderError.
func NewProviderError(provider, operation, message string, err error) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
