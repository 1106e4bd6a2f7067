package strategies

import (
	"errors"
	"fmt"
)

const rawSnippetLen = 120

// ParseError reports a payload the strategy recognized but could not decode.
// Soft: the controller falls back to treating the turn as prose rather than
// aborting the run.
type ParseError struct {
	Strategy string
	Message  string
	Raw      string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("strategy %s: %s (output: %q)", e.Strategy, e.Message, snippet(e.Raw))
}

// NewParseError creates a ParseError keeping a bounded snippet of the raw
// output for logs.
func NewParseError(strategy, message, raw string) *ParseError {
	return &ParseError{Strategy: strategy, Message: message, Raw: raw}
}

// IsParseError reports whether err is a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

func snippet(raw string) string {
	if len(raw) <= rawSnippetLen {
		return raw
	}
	return raw[:rawSnippetLen] + "..."
}
