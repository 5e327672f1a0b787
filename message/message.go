// Package message defines the envelope exchanged on the per-workflow topic.
//
// Two kinds of messages travel on a topic: BLOCKs, carrying a serialized
// typed record together with its inline schema, and SIGNALs, carrying an
// end-of-stream or interruption tag. Both are wrapped in a fixed Avro
// envelope so consumers can decode them without prior knowledge of the
// producing component.
package message

import (
	"fmt"

	"github.com/hamba/avro/v2"

	"github.com/dramaproject/drama/servo"
)

// Type discriminates the two envelope kinds.
type Type string

const (
	TypeBlock  Type = "BLOCK"
	TypeSignal Type = "SIGNAL"
)

// Signal tags carried in the data slot of a SIGNAL message.
type Signal string

const (
	// SignalStop marks the end of a producing task's stream.
	SignalStop Signal = "POISSON_PILL"
	// SignalInterruption cascade-fails every task polling the topic.
	SignalInterruption Signal = "INTERRUPTION"
)

// ServoAvro names the only supported record serializer.
const ServoAvro = "AVRO"

// Undefined fills envelope slots that a message kind does not use.
const Undefined = "undefined"

// EnvelopeSchemaJSON is the fixed wire schema of the envelope. It never
// changes; record payloads evolve through the inline `schem` slot instead.
const EnvelopeSchemaJSON = `{
	"type": "record",
	"name": "message",
	"namespace": "drama.process",
	"fields": [
		{"name": "type", "type": "string"},
		{"name": "key", "type": "string", "default": "undefined"},
		{"name": "data", "type": "bytes"},
		{"name": "servo", "type": "string", "default": "undefined"},
		{"name": "schem", "type": "string", "default": "undefined"}
	]
}`

var envelopeSchema = avro.MustParse(EnvelopeSchemaJSON)

// Message is the decoded envelope.
type Message struct {
	Type  Type
	Key   string
	Data  []byte
	Servo string
	Schem string
}

// NewBlock wraps a serialized record and its inline schema in a BLOCK
// envelope. The key identifies the producing task and record name as
// "<task>.<record>".
func NewBlock(key string, data []byte, schemaJSON string) Message {
	return Message{
		Type:  TypeBlock,
		Key:   key,
		Data:  data,
		Servo: ServoAvro,
		Schem: schemaJSON,
	}
}

// NewSignal wraps a signal tag in a SIGNAL envelope.
func NewSignal(signal Signal) Message {
	return Message{
		Type:  TypeSignal,
		Key:   Undefined,
		Data:  []byte(signal),
		Servo: Undefined,
		Schem: Undefined,
	}
}

// Signal interprets the data slot as a signal tag.
func (m Message) Signal() Signal { return Signal(m.Data) }

// Encode serializes the envelope under the fixed envelope schema.
func (m Message) Encode() ([]byte, error) {
	key := m.Key
	if key == "" {
		key = Undefined
	}
	srv := m.Servo
	if srv == "" {
		srv = Undefined
	}
	schem := m.Schem
	if schem == "" {
		schem = Undefined
	}

	data := m.Data
	if data == nil {
		data = []byte{}
	}

	return servo.Serialize(map[string]any{
		"type":  string(m.Type),
		"key":   key,
		"data":  data,
		"servo": srv,
		"schem": schem,
	}, envelopeSchema)
}

// Decode deserializes an envelope.
func Decode(raw []byte) (Message, error) {
	fields, err := servo.Deserialize(raw, envelopeSchema)
	if err != nil {
		return Message{}, fmt.Errorf("message: decode envelope: %w", err)
	}

	msg := Message{
		Type:  Type(asString(fields["type"])),
		Key:   asString(fields["key"]),
		Servo: asString(fields["servo"]),
		Schem: asString(fields["schem"]),
	}
	if data, ok := fields["data"].([]byte); ok {
		msg.Data = data
	}

	switch msg.Type {
	case TypeBlock, TypeSignal:
		return msg, nil
	default:
		return Message{}, fmt.Errorf("message: unrecognized message type %q", msg.Type)
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
