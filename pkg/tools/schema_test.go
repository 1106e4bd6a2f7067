package tools

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleArgs struct {
	Query string `json:"query" jsonschema:"required,description=What to search for"`
	Limit int    `json:"limit" jsonschema:"description=Maximum results"`
	Exact bool   `json:"exact"`
}

func TestGenerateSchema(t *testing.T) {
	schema, err := GenerateSchema[sampleArgs]()
	require.NoError(t, err)

	assert.Equal(t, "object", schema["type"])
	assert.NotContains(t, schema, "$schema")
	assert.NotContains(t, schema, "$id")

	properties, ok := schema["properties"].(map[string]interface{})
	require.True(t, ok)
	query, ok := properties["query"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "string", query["type"])
	assert.Equal(t, "What to search for", query["description"])

	required, ok := schema["required"].([]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{"query"}, required)
}

func sampleSpec(t *testing.T) ToolSpec {
	t.Helper()
	return ToolSpec{Name: "sample", Parameters: MustGenerateSchema[sampleArgs]()}
}

func TestValidateArgsRequiredField(t *testing.T) {
	spec := sampleSpec(t)

	err := ValidateArgs(spec, map[string]interface{}{"limit": 3})
	var schemaErr *SchemaValidationError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, "query", schemaErr.Field)

	assert.NoError(t, ValidateArgs(spec, map[string]interface{}{"query": "hello"}))
}

func TestValidateArgsTypeChecks(t *testing.T) {
	spec := sampleSpec(t)

	err := ValidateArgs(spec, map[string]interface{}{"query": 42})
	var schemaErr *SchemaValidationError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, "query", schemaErr.Field)

	err = ValidateArgs(spec, map[string]interface{}{"query": "q", "exact": "yes"})
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, "exact", schemaErr.Field)

	// JSON numbers arrive as float64; whole values satisfy integer
	assert.NoError(t, ValidateArgs(spec, map[string]interface{}{"query": "q", "limit": float64(5)}))
	err = ValidateArgs(spec, map[string]interface{}{"query": "q", "limit": 5.5})
	assert.True(t, errors.As(err, &schemaErr))
}

func TestValidateArgsUnknownKeysPass(t *testing.T) {
	spec := sampleSpec(t)
	assert.NoError(t, ValidateArgs(spec, map[string]interface{}{"query": "q", "extra": true}))
}

func TestValidateArgsNilSchema(t *testing.T) {
	assert.NoError(t, ValidateArgs(ToolSpec{Name: "bare"}, map[string]interface{}{"anything": 1}))
}
