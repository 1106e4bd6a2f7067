package strategies

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/striderhq/strider/pkg/protocol"
	"github.com/striderhq/strider/pkg/tools"
)

const (
	analysisMarker = "<|analysis|>"
	finalMarker    = "<|final|>"
)

// ChannelStrategy parses output split into an analysis channel and a final
// channel. Tool call payloads are honored only inside the analysis channel;
// the final channel's content is the answer. Output carrying neither marker
// is a ParseError.
type ChannelStrategy struct {
	structured *StructuredStrategy
}

// NewChannelStrategy creates the channel variant, reusing the structured
// payload convention for tool calls inside the analysis channel.
func NewChannelStrategy(specs []tools.ToolSpec) *ChannelStrategy {
	return &ChannelStrategy{structured: NewStructuredStrategy(specs)}
}

func (s *ChannelStrategy) Name() string {
	return "channels"
}

func (s *ChannelStrategy) NativeToolCalls() bool {
	return false
}

func (s *ChannelStrategy) FormatToolPrompt(specs []tools.ToolSpec) string {
	var sb strings.Builder
	sb.WriteString("You have access to the following tools:\n\n")
	for _, spec := range specs {
		schema, _ := json.Marshal(spec.Parameters)
		fmt.Fprintf(&sb, "- %s: %s\n  Parameters: %s\n", spec.Name, spec.Description, schema)
	}
	sb.WriteString("\nStructure every response into channels:\n")
	fmt.Fprintf(&sb, "%s your reasoning; to call tools include a JSON payload "+
		"{\"tool_calls\": [{\"name\": \"<tool>\", \"arguments\": {}}]}\n", analysisMarker)
	fmt.Fprintf(&sb, "%s the answer for the user, once you have it\n", finalMarker)
	return sb.String()
}

func (s *ChannelStrategy) Parse(raw string) (*ParseResult, error) {
	analysis, hasAnalysis := channelContent(raw, analysisMarker)
	final, hasFinal := channelContent(raw, finalMarker)

	if !hasAnalysis && !hasFinal {
		return nil, NewParseError(s.Name(), "output carries no channel markers", raw)
	}

	// The final channel terminates the run regardless of analysis content.
	if hasFinal && strings.TrimSpace(final) != "" {
		return &ParseResult{
			Reasoning: strings.TrimSpace(analysis),
			Final:     &FinalAnswer{Content: strings.TrimSpace(final)},
		}, nil
	}

	inner, err := s.structured.Parse(analysis)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			return nil, NewParseError(s.Name(), pe.Message, raw)
		}
		return nil, err
	}
	if inner.Final != nil {
		// Analysis prose without tool calls and without a final channel is
		// not an answer; the model has not addressed the user.
		return nil, NewParseError(s.Name(), "analysis channel has no tool calls and no final channel", raw)
	}
	return &ParseResult{
		Reasoning: inner.Reasoning,
		ToolCalls: inner.ToolCalls,
	}, nil
}

func (s *ChannelStrategy) FormatObservation(obs protocol.Observation) string {
	return s.structured.FormatObservation(obs)
}

// channelContent extracts the text between marker and the next marker (or
// end of output).
func channelContent(raw, marker string) (string, bool) {
	start := strings.Index(raw, marker)
	if start < 0 {
		return "", false
	}
	content := raw[start+len(marker):]
	for _, next := range []string{analysisMarker, finalMarker} {
		if idx := strings.Index(content, next); idx >= 0 {
			content = content[:idx]
		}
	}
	return content, true
}
