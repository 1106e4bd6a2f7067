package strategies

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/striderhq/strider/pkg/protocol"
	"github.com/striderhq/strider/pkg/tools"
)

// ReactStrategy parses free-text reasoning using Action / Action Input
// delimiters, tolerating surrounding commentary. Output with no action
// pattern is treated as a final answer; this variant never fails on
// unparseable prose.
type ReactStrategy struct{}

// NewReactStrategy creates the free-text variant.
func NewReactStrategy() *ReactStrategy {
	return &ReactStrategy{}
}

func (s *ReactStrategy) Name() string {
	return "react"
}

func (s *ReactStrategy) NativeToolCalls() bool {
	return false
}

var (
	actionRe      = regexp.MustCompile(`(?m)^\s*Action:\s*(\S+)\s*$`)
	actionInputRe = regexp.MustCompile(`(?ms)^\s*Action Input:\s*(.+?)(?:^\s*(?:Action|Thought|Observation|Final Answer):|\z)`)
	finalRe       = regexp.MustCompile(`(?ms)^\s*Final Answer:\s*(.+)\z`)
)

func (s *ReactStrategy) FormatToolPrompt(specs []tools.ToolSpec) string {
	var sb strings.Builder
	sb.WriteString("You have access to the following tools:\n\n")
	for _, spec := range specs {
		schema, _ := json.Marshal(spec.Parameters)
		fmt.Fprintf(&sb, "- %s: %s\n  Parameters: %s\n", spec.Name, spec.Description, schema)
	}
	sb.WriteString("\nUse this format:\n\n")
	sb.WriteString("Thought: what you are thinking about doing next\n")
	sb.WriteString("Action: the tool name\n")
	sb.WriteString("Action Input: the tool arguments as a JSON object\n")
	sb.WriteString("Observation: the tool result (provided to you)\n")
	sb.WriteString("... (Thought/Action/Action Input/Observation repeats)\n")
	sb.WriteString("Final Answer: your answer to the user\n")
	return sb.String()
}

func (s *ReactStrategy) Parse(raw string) (*ParseResult, error) {
	// A final answer marker before the first action wins.
	finalLoc := finalRe.FindStringSubmatchIndex(raw)
	actionLoc := actionRe.FindStringIndex(raw)

	if finalLoc != nil && (actionLoc == nil || finalLoc[0] < actionLoc[0]) {
		return &ParseResult{
			Reasoning: strings.TrimSpace(raw[:finalLoc[0]]),
			Final:     &FinalAnswer{Content: strings.TrimSpace(raw[finalLoc[2]:finalLoc[3]])},
		}, nil
	}

	if actionLoc == nil {
		return &ParseResult{Final: &FinalAnswer{Content: strings.TrimSpace(raw)}}, nil
	}

	name := actionRe.FindStringSubmatch(raw[actionLoc[0]:])[1]
	reasoning := strings.TrimSpace(raw[:actionLoc[0]])

	args := map[string]interface{}{}
	span := raw[actionLoc[0]:]
	if inputMatch := actionInputRe.FindStringSubmatch(raw[actionLoc[1]:]); inputMatch != nil {
		input := strings.TrimSpace(inputMatch[1])
		input = strings.Trim(input, "`")
		input = strings.TrimPrefix(input, "json")
		input = strings.TrimSpace(input)
		if strings.HasPrefix(input, "{") {
			if err := json.Unmarshal([]byte(input), &args); err != nil {
				// Tolerant path: carry the malformed input through as a
				// single argument instead of failing the turn.
				args = map[string]interface{}{"input": input}
			}
		} else if input != "" {
			args = map[string]interface{}{"input": input}
		}
	}

	return &ParseResult{
		Reasoning: reasoning,
		ToolCalls: []*protocol.ToolCall{protocol.NewToolCall(name, args, strings.TrimSpace(span))},
	}, nil
}

func (s *ReactStrategy) FormatObservation(obs protocol.Observation) string {
	return "Observation: " + obs.Content
}
