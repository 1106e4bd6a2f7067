package tools

import (
	"errors"
	"fmt"
)

// UnknownToolError reports an intent naming a tool that is not registered.
// It is fatal: the model was advertised a tool list and stepped outside it,
// so feeding an observation back would only compound the confusion.
type UnknownToolError struct {
	Name  string
	Known []string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q (registered: %v)", e.Name, e.Known)
}

// SchemaValidationError reports arguments that do not satisfy the tool's
// parameter schema. Fatal for the run.
type SchemaValidationError struct {
	Tool    string
	Field   string
	Message string
}

func (e *SchemaValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("tool %s: invalid arguments: field %q: %s", e.Tool, e.Field, e.Message)
	}
	return fmt.Sprintf("tool %s: invalid arguments: %s", e.Tool, e.Message)
}

// IsFatal reports whether err aborts the run rather than becoming an
// observation.
func IsFatal(err error) bool {
	var unknown *UnknownToolError
	var schema *SchemaValidationError
	return errors.As(err, &unknown) || errors.As(err, &schema)
}
