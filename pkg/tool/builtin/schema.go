// Package builtin provides the concrete file and shell tools a deployment
// registers into a tool.Registry: file_read, file_edit, and bash, grounded
// on kodelet's pkg/tools implementations of the same names.
package builtin

import "github.com/invopop/jsonschema"

// generateSchema reflects T's jsonschema struct tags into a JSON Schema
// document, the way kodelet's pkg/tools.GenerateSchema[T] does for every
// concrete tool's input type.
func generateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

func mustSchemaJSON[T any]() []byte {
	schema := generateSchema[T]()
	b, err := schema.MarshalJSON()
	if err != nil {
		panic(err)
	}
	return b
}
