package strategies

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/striderhq/strider/pkg/protocol"
	"github.com/striderhq/strider/pkg/tools"
)

// StructuredStrategy expects tool calls as a JSON payload, optionally inside
// a ```json fence. Payload shapes accepted:
//
//	{"tool_calls": [{"name": "search", "arguments": {...}}, ...]}
//	{"tool": "search", "arguments": {...}}
//
// Output with no payload is a final answer. A payload that fails to decode
// is a ParseError; unknown tool names and schema violations are fatal.
type StructuredStrategy struct {
	specs map[string]tools.ToolSpec
}

// NewStructuredStrategy creates the variant validating against specs.
func NewStructuredStrategy(specs []tools.ToolSpec) *StructuredStrategy {
	byName := make(map[string]tools.ToolSpec, len(specs))
	for _, spec := range specs {
		byName[spec.Name] = spec
	}
	return &StructuredStrategy{specs: byName}
}

func (s *StructuredStrategy) Name() string {
	return "structured"
}

func (s *StructuredStrategy) NativeToolCalls() bool {
	return true
}

func (s *StructuredStrategy) FormatToolPrompt(specs []tools.ToolSpec) string {
	var sb strings.Builder
	sb.WriteString("You have access to the following tools:\n\n")
	for _, spec := range specs {
		schema, _ := json.Marshal(spec.Parameters)
		fmt.Fprintf(&sb, "- %s: %s\n  Parameters: %s\n", spec.Name, spec.Description, schema)
	}
	sb.WriteString("\nTo call tools, respond with a single JSON payload:\n")
	sb.WriteString("```json\n{\"tool_calls\": [{\"name\": \"<tool>\", \"arguments\": {}}]}\n```\n")
	sb.WriteString("When you have the answer, respond with plain text and no JSON payload.\n")
	return sb.String()
}

type structuredPayload struct {
	ToolCalls []struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	} `json:"tool_calls"`
	Tool      string                 `json:"tool"`
	Arguments map[string]interface{} `json:"arguments"`
}

func (s *StructuredStrategy) Parse(raw string) (*ParseResult, error) {
	payload, span, found := extractJSONPayload(raw)
	if !found {
		return &ParseResult{Final: &FinalAnswer{Content: strings.TrimSpace(raw)}}, nil
	}

	var decoded structuredPayload
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return nil, NewParseError(s.Name(), "malformed tool call payload: "+err.Error(), raw)
	}

	type rawCall struct {
		name string
		args map[string]interface{}
	}
	var calls []rawCall
	for _, tc := range decoded.ToolCalls {
		calls = append(calls, rawCall{name: tc.Name, args: tc.Arguments})
	}
	if len(calls) == 0 && decoded.Tool != "" {
		calls = append(calls, rawCall{name: decoded.Tool, args: decoded.Arguments})
	}
	if len(calls) == 0 {
		return nil, NewParseError(s.Name(), "payload contains no tool calls", raw)
	}

	result := &ParseResult{Reasoning: strings.TrimSpace(strings.Replace(raw, span, "", 1))}
	for _, call := range calls {
		spec, ok := s.specs[call.name]
		if !ok {
			return nil, &tools.UnknownToolError{Name: call.name, Known: s.knownNames()}
		}
		if err := tools.ValidateArgs(spec, call.args); err != nil {
			return nil, err
		}
		result.ToolCalls = append(result.ToolCalls, protocol.NewToolCall(call.name, call.args, span))
	}
	return result, nil
}

func (s *StructuredStrategy) FormatObservation(obs protocol.Observation) string {
	if obs.Success {
		return obs.Content
	}
	return "Error: " + obs.Content
}

func (s *StructuredStrategy) knownNames() []string {
	names := make([]string, 0, len(s.specs))
	for name := range s.specs {
		names = append(names, name)
	}
	return names
}

// extractJSONPayload pulls the first JSON object out of raw, preferring a
// ```json fence, falling back to a brace-balanced scan. Returns the payload,
// the raw span it occupied, and whether anything was found.
func extractJSONPayload(raw string) (payload, span string, found bool) {
	if start := strings.Index(raw, "```json"); start >= 0 {
		rest := raw[start+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end]), raw[start : start+len("```json")+end+3], true
		}
	}

	start := strings.Index(raw, "{")
	if start < 0 {
		return "", "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				candidate := raw[start : i+1]
				// Only treat objects that look like tool payloads as
				// payloads; prose with stray braces stays prose.
				if strings.Contains(candidate, `"tool_calls"`) || strings.Contains(candidate, `"tool"`) {
					return candidate, candidate, true
				}
				return "", "", false
			}
		}
	}
	// Unterminated object that announces tool calls is a malformed payload,
	// not prose.
	if strings.Contains(raw[start:], `"tool_calls"`) || strings.Contains(raw[start:], `"tool"`) {
		return raw[start:], raw[start:], true
	}
	return "", "", false
}
