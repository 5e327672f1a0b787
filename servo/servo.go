// Package servo serializes typed-record dictionaries to and from the Avro
// "schemaless" binary encoding. Every BLOCK message carries its schema
// inline, so readers never need an out-of-band registry and messages
// persisted by earlier versions remain readable.
package servo

import (
	"fmt"

	"github.com/hamba/avro/v2"
)

// ParseSchema parses an Avro schema from its JSON form.
func ParseSchema(raw string) (avro.Schema, error) {
	schema, err := avro.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("servo: parse schema: %w", err)
	}
	return schema, nil
}

// MustParseSchema is like ParseSchema but panics on error. Intended for
// fixed, package-level schemas.
func MustParseSchema(raw string) avro.Schema {
	return avro.MustParse(raw)
}

// Serialize encodes a record dictionary under the given schema.
func Serialize(data map[string]any, schema avro.Schema) ([]byte, error) {
	out, err := avro.Marshal(schema, data)
	if err != nil {
		return nil, fmt.Errorf("servo: serialize: %w", err)
	}
	return out, nil
}

// Deserialize decodes schemaless Avro bytes under the given schema.
func Deserialize(data []byte, schema avro.Schema) (map[string]any, error) {
	var out map[string]any
	if err := avro.Unmarshal(schema, data, &out); err != nil {
		return nil, fmt.Errorf("servo: deserialize: %w", err)
	}
	return out, nil
}
