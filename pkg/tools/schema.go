package tools

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// GenerateSchema reflects a JSON schema map from an argument struct type.
// Required fields are declared with the `jsonschema:"required"` tag.
func GenerateSchema[T any]() (map[string]interface{}, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}

	var zero T
	schema := reflector.Reflect(&zero)

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("tools: marshaling schema: %w", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("tools: decoding schema: %w", err)
	}
	// The model-facing parameter block only needs the object shape.
	delete(out, "$schema")
	delete(out, "$id")
	return out, nil
}

// MustGenerateSchema is GenerateSchema for static tool definitions, where a
// failure is a programming error.
func MustGenerateSchema[T any]() map[string]interface{} {
	schema, err := GenerateSchema[T]()
	if err != nil {
		panic(err)
	}
	return schema
}

// ValidateArgs checks an argument map against a tool's parameter schema:
// required fields must be present and declared property types must match.
// Unknown keys pass through; tools decode with mapstructure and reject what
// they cannot use.
func ValidateArgs(spec ToolSpec, args map[string]interface{}) error {
	if spec.Parameters == nil {
		return nil
	}

	if required, ok := spec.Parameters["required"].([]interface{}); ok {
		for _, field := range required {
			name, ok := field.(string)
			if !ok {
				continue
			}
			if _, present := args[name]; !present {
				return &SchemaValidationError{Tool: spec.Name, Field: name, Message: "required field missing"}
			}
		}
	}

	properties, ok := spec.Parameters["properties"].(map[string]interface{})
	if !ok {
		return nil
	}
	for name, value := range args {
		prop, ok := properties[name].(map[string]interface{})
		if !ok {
			continue
		}
		declared, ok := prop["type"].(string)
		if !ok || value == nil {
			continue
		}
		if !typeMatches(declared, value) {
			return &SchemaValidationError{
				Tool:    spec.Name,
				Field:   name,
				Message: fmt.Sprintf("expected %s, got %T", declared, value),
			}
		}
	}
	return nil
}

func typeMatches(declared string, value interface{}) bool {
	switch declared {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case "integer":
		switch v := value.(type) {
		case int, int64:
			return true
		case float64:
			// JSON decoding yields float64 for all numbers.
			return v == float64(int64(v))
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	default:
		return true
	}
}
