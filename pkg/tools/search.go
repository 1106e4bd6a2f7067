package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/striderhq/strider/pkg/fusion"
)

// searchArgs is the argument shape of the search tool.
type searchArgs struct {
	Query     string   `json:"query" jsonschema:"required,description=What to search for"`
	SessionID string   `json:"session_id" jsonschema:"description=Restrict results to one session"`
	SourceIDs []string `json:"source_ids" jsonschema:"description=Restrict results to these sources"`
	Limit     int      `json:"limit" jsonschema:"description=Maximum number of results"`
}

// SearchTool exposes hybrid retrieval to the model.
type SearchTool struct {
	engine *fusion.Engine
	spec   ToolSpec
}

// NewSearchTool wraps a fusion engine as a registered tool.
func NewSearchTool(engine *fusion.Engine) (*SearchTool, error) {
	if engine == nil {
		return nil, fmt.Errorf("tools: search tool requires a fusion engine")
	}
	schema, err := GenerateSchema[searchArgs]()
	if err != nil {
		return nil, err
	}
	return &SearchTool{
		engine: engine,
		spec: ToolSpec{
			Name:        "search",
			Description: "Search indexed documents for passages relevant to a query. Returns ranked text snippets with their chunk ids.",
			Parameters:  schema,
			Timeout:     15 * time.Second,
			MaxRetries:  1,
		},
	}, nil
}

func (t *SearchTool) Spec() ToolSpec {
	return t.spec
}

// Execute runs a scoped hybrid search and formats the hits as numbered
// snippets.
func (t *SearchTool) Execute(ctx context.Context, args map[string]interface{}) (*ToolResult, error) {
	var parsed searchArgs
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &parsed,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return nil, fmt.Errorf("search: building decoder: %w", err)
	}
	if err := decoder.Decode(args); err != nil {
		return nil, &SchemaValidationError{Tool: t.spec.Name, Message: err.Error()}
	}
	if strings.TrimSpace(parsed.Query) == "" {
		return nil, &SchemaValidationError{Tool: t.spec.Name, Field: "query", Message: "query cannot be empty"}
	}

	results, err := t.engine.Search(ctx, parsed.Query, fusion.Scope{
		SessionID: parsed.SessionID,
		SourceIDs: parsed.SourceIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if parsed.Limit > 0 && len(results) > parsed.Limit {
		results = results[:parsed.Limit]
	}

	if len(results) == 0 {
		return &ToolResult{Content: "No results found."}, nil
	}

	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "[%d] (chunk %s, score %.4f)\n%s\n\n", i+1, r.ChunkID, r.FusedScore, strings.TrimSpace(r.Content))
	}
	return &ToolResult{
		Content: strings.TrimSpace(sb.String()),
		Metadata: map[string]interface{}{
			"result_count": len(results),
		},
	}, nil
}
