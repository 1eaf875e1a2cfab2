package llm

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// SchemaOf reflects a JSON schema for v's type with all definitions inlined.
// Hosts that support structured output constrain the response with it.
func SchemaOf(v any) (json.RawMessage, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	schema := reflector.Reflect(v)
	// the $schema header confuses some local grammar compilers
	schema.Version = ""

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// SchemaFor is SchemaOf for a type parameter.
func SchemaFor[T any]() (json.RawMessage, error) {
	var value T
	return SchemaOf(value)
}
