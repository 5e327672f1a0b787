// Package datatype describes the typed records exchanged between workflow
// tasks. A Schema declares an ordered list of fields, each carrying an atomic
// type, an array, or a nested record; from it the package derives both the
// canonical dictionary form of an instance and the self-describing Avro
// schema transported on every BLOCK message.
package datatype

import (
	"encoding/json"
	"fmt"
)

// DefaultNamespace is used when a schema does not declare its own namespace.
const DefaultNamespace = "drama.datatype"

// Kind enumerates the atomic field types.
type Kind string

const (
	KindString  Kind = "string"
	KindInt     Kind = "int"
	KindLong    Kind = "long"
	KindFloat   Kind = "float"
	KindBoolean Kind = "boolean"
	KindArray   Kind = "array"
	KindRecord  Kind = "record"
)

// Type is the tagged union of a field type: an atomic kind, an array of
// items, or a nested record schema.
type Type struct {
	Kind   Kind
	Items  *Type   // set when Kind == KindArray
	Record *Schema // set when Kind == KindRecord
}

// String returns the string type.
func String() Type { return Type{Kind: KindString} }

// Int returns the int type.
func Int() Type { return Type{Kind: KindInt} }

// Long returns the long type.
func Long() Type { return Type{Kind: KindLong} }

// Float returns the float type.
func Float() Type { return Type{Kind: KindFloat} }

// Boolean returns the boolean type.
func Boolean() Type { return Type{Kind: KindBoolean} }

// Array returns an array type with the given item type.
func Array(items Type) Type { return Type{Kind: KindArray, Items: &items} }

// Nested returns a record type nesting another schema.
func Nested(schema *Schema) Type { return Type{Kind: KindRecord, Record: schema} }

// Field is one declared field of a record schema.
type Field struct {
	Name       string
	Type       Type
	Default    any
	HasDefault bool
}

// FieldOption configures a field declaration.
type FieldOption func(*Field)

// WithDefault declares a default value for the field.
func WithDefault(v any) FieldOption {
	return func(f *Field) {
		f.Default = v
		f.HasDefault = true
	}
}

// NewField declares a field of the given type.
func NewField(name string, t Type, opts ...FieldOption) Field {
	f := Field{Name: name, Type: t}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// Schema is a named record of ordered fields.
type Schema struct {
	name      string
	namespace string
	fields    []Field

	// override, when set, wins over the derived wire schema.
	override map[string]any
}

// SchemaOption configures a schema declaration.
type SchemaOption func(*Schema)

// WithNamespace overrides the schema namespace.
func WithNamespace(ns string) SchemaOption {
	return func(s *Schema) { s.namespace = ns }
}

// WithName overrides the record name.
func WithName(name string) SchemaOption {
	return func(s *Schema) { s.name = name }
}

// WithSchema installs an explicit wire schema, bypassing derivation.
func WithSchema(schema map[string]any) SchemaOption {
	return func(s *Schema) { s.override = schema }
}

// New builds a record schema from ordered field declarations. Declaring a
// field without a default after one with a default is rejected, mirroring
// positional construction rules.
func New(name string, fields []Field, opts ...SchemaOption) (*Schema, error) {
	if name == "" {
		return nil, fmt.Errorf("datatype: schema name is required")
	}

	s := &Schema{
		name:      name,
		namespace: DefaultNamespace,
		fields:    fields,
	}
	for _, opt := range opts {
		opt(s)
	}

	seen := make(map[string]struct{}, len(fields))
	defaulted := false
	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("datatype: schema %s declares an unnamed field", name)
		}
		if _, dup := seen[f.Name]; dup {
			return nil, fmt.Errorf("datatype: schema %s declares field %s twice", name, f.Name)
		}
		seen[f.Name] = struct{}{}

		if f.HasDefault {
			defaulted = true
		} else if defaulted {
			return nil, fmt.Errorf("datatype: schema %s: non-default field %s follows a field with a default", name, f.Name)
		}
	}

	return s, nil
}

// MustSchema is like New but panics on error. Intended for package-level
// schema declarations.
func MustSchema(name string, fields []Field, opts ...SchemaOption) *Schema {
	s, err := New(name, fields, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the record name.
func (s *Schema) Name() string { return s.name }

// Namespace returns the record namespace.
func (s *Schema) Namespace() string { return s.namespace }

// Fields returns the ordered field declarations.
func (s *Schema) Fields() []Field { return s.fields }

// Avro returns the self-describing wire schema as a generic map. Arrays of
// atomic items collapse to their type string; arrays of records and nested
// records recurse.
func (s *Schema) Avro() map[string]any {
	if s.override != nil {
		return s.override
	}

	fields := make([]any, 0, len(s.fields))
	for _, f := range s.fields {
		fields = append(fields, map[string]any{
			"name": f.Name,
			"type": f.Type.avro(),
		})
	}

	return map[string]any{
		"namespace": s.namespace,
		"name":      s.name,
		"type":      "record",
		"fields":    fields,
	}
}

func (t Type) avro() any {
	switch t.Kind {
	case KindArray:
		return map[string]any{"type": "array", "items": t.Items.avro()}
	case KindRecord:
		return t.Record.Avro()
	default:
		return string(t.Kind)
	}
}

// avroField mirrors one field entry with a stable JSON key order.
type avroField struct {
	Name string          `json:"name"`
	Type json.RawMessage `json:"type"`
}

type avroRecord struct {
	Namespace string      `json:"namespace,omitempty"`
	Name      string      `json:"name"`
	Type      string      `json:"type"`
	Fields    []avroField `json:"fields"`
}

// AvroJSON renders the wire schema as canonical, field-ordered JSON. This is
// the string stored in the `schem` slot of a BLOCK envelope.
func (s *Schema) AvroJSON() (string, error) {
	if s.override != nil {
		raw, err := json.Marshal(s.override)
		if err != nil {
			return "", fmt.Errorf("datatype: marshal schema override: %w", err)
		}
		return string(raw), nil
	}

	raw, err := s.marshalOrdered()
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (s *Schema) marshalOrdered() (json.RawMessage, error) {
	fields := make([]avroField, 0, len(s.fields))
	for _, f := range s.fields {
		ft, err := f.Type.marshalOrdered()
		if err != nil {
			return nil, err
		}
		fields = append(fields, avroField{Name: f.Name, Type: ft})
	}

	raw, err := json.Marshal(avroRecord{
		Namespace: s.namespace,
		Name:      s.name,
		Type:      "record",
		Fields:    fields,
	})
	if err != nil {
		return nil, fmt.Errorf("datatype: marshal schema %s: %w", s.name, err)
	}
	return raw, nil
}

func (t Type) marshalOrdered() (json.RawMessage, error) {
	switch t.Kind {
	case KindArray:
		items, err := t.Items.marshalOrdered()
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]json.RawMessage{
			"type":  json.RawMessage(`"array"`),
			"items": items,
		})
	case KindRecord:
		return t.Record.marshalOrdered()
	default:
		return json.Marshal(string(t.Kind))
	}
}

// Record binds a schema to field values. Values not set fall back to the
// field defaults when the dictionary form is computed.
type Record struct {
	schema *Schema
	values map[string]any
}

// Record creates an instance of the schema with the given values. Unknown
// value keys are rejected.
func (s *Schema) Record(values map[string]any) (*Record, error) {
	known := make(map[string]struct{}, len(s.fields))
	for _, f := range s.fields {
		known[f.Name] = struct{}{}
	}
	for k := range values {
		if _, ok := known[k]; !ok {
			return nil, fmt.Errorf("datatype: schema %s has no field %s", s.name, k)
		}
	}

	copied := make(map[string]any, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &Record{schema: s, values: copied}, nil
}

// MustRecord is like Record but panics on error.
func (s *Schema) MustRecord(values map[string]any) *Record {
	r, err := s.Record(values)
	if err != nil {
		panic(err)
	}
	return r
}

// Schema returns the record's schema.
func (r *Record) Schema() *Schema { return r.schema }

// Key returns the record name used as the output key of a producing task.
func (r *Record) Key() string { return r.schema.name }

// Dict returns the canonical dictionary form of the record: every declared
// field present, defaults applied, in schema order underneath.
func (r *Record) Dict() (map[string]any, error) {
	out := make(map[string]any, len(r.schema.fields))
	for _, f := range r.schema.fields {
		if v, ok := r.values[f.Name]; ok {
			out[f.Name] = v
			continue
		}
		if !f.HasDefault {
			return nil, fmt.Errorf("datatype: schema %s: field %s has no value and no default", r.schema.name, f.Name)
		}
		out[f.Name] = f.Default
	}
	return out, nil
}
