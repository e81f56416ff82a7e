package tools

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaFor derives a JSON Schema parameter map from a Go struct, so tool
// authors declare parameters as typed structs instead of hand-written maps.
func SchemaFor(v any) (map[string]any, error) {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(v)

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}

	// Tool parameter schemas carry no document-level metadata.
	delete(out, "$schema")
	delete(out, "$id")
	return out, nil
}

// MustSchemaFor is SchemaFor for static tool definitions; it panics on
// reflection failure, which can only come from a malformed struct.
func MustSchemaFor(v any) map[string]any {
	schema, err := SchemaFor(v)
	if err != nil {
		panic(err)
	}
	return schema
}
