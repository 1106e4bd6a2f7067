// Package tools defines the tool abstraction the executor dispatches to,
// the tool registry, and the built-in retrieval tool.
package tools

import (
	"context"
	"time"
)

// ToolSpec describes a tool to the model and to the executor.
type ToolSpec struct {
	// Name is the unique registered name.
	Name string

	// Description tells the model when to use the tool.
	Description string

	// Parameters is the JSON schema of the argument object.
	Parameters map[string]interface{}

	// Timeout bounds a single attempt. Zero means the executor default.
	Timeout time.Duration

	// MaxRetries is the retry budget after the first attempt. Negative
	// means the executor default; zero disables retries.
	MaxRetries int
}

// ToolResult is the outcome of one successful tool execution.
type ToolResult struct {
	// Content is the textual result fed back to the model.
	Content string

	// Metadata carries structured side-channel data for event consumers.
	Metadata map[string]interface{}
}

// Tool is an executable capability.
type Tool interface {
	// Spec returns the tool's static description.
	Spec() ToolSpec

	// Execute runs the tool. Transient failures should be reported via
	// error so the executor can classify and retry them.
	Execute(ctx context.Context, args map[string]interface{}) (*ToolResult, error)
}
