// Package strategies converts raw model output into tool call intents or a
// final answer. Three interchangeable conventions are provided: structured
// JSON payloads, free-text Action/Action Input reasoning, and channel-tagged
// output. The step controller selects one by name at run start and never
// branches on the variant.
package strategies

import (
	"github.com/striderhq/strider/pkg/protocol"
	"github.com/striderhq/strider/pkg/tools"
)

// FinalAnswer signals that the model finished the task.
type FinalAnswer struct {
	Content string
}

// ParseResult is the interpreted form of one model turn: either intents to
// execute or a final answer, never both.
type ParseResult struct {
	// Reasoning is the free-form thinking text surrounding the payload.
	Reasoning string

	// ToolCalls are the intents parsed from this turn, in payload order.
	ToolCalls []*protocol.ToolCall

	// Final is set when the turn is a final answer.
	Final *FinalAnswer
}

// Strategy is one parsing convention.
type Strategy interface {
	// Name returns the configuration name of the variant.
	Name() string

	// FormatToolPrompt renders the tool list and calling convention as
	// system prompt text.
	FormatToolPrompt(specs []tools.ToolSpec) string

	// Parse interprets accumulated raw output. Malformed payloads return
	// ParseError; unknown tool names and schema violations return the
	// fatal tool errors.
	Parse(raw string) (*ParseResult, error)

	// FormatObservation renders a resolved tool call as transcript text.
	FormatObservation(obs protocol.Observation) string

	// NativeToolCalls reports whether the variant also accepts tool calls
	// from the provider's native function-calling channel.
	NativeToolCalls() bool
}
