package servo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const weatherSchema = `{
	"type": "record",
	"name": "Weather",
	"namespace": "test",
	"fields": [
		{"name": "station", "type": "string"},
		{"name": "time", "type": "long"},
		{"name": "temp", "type": "int"}
	]
}`

func TestSerialize_KnownVector(t *testing.T) {
	schema := MustParseSchema(weatherSchema)

	got, err := Serialize(map[string]any{
		"station": "012650-99999",
		"time":    int64(1433275478),
		"temp":    111,
	}, schema)
	require.NoError(t, err)

	want := []byte("\x18012650-99999\xac\xb1\xf0\xd6\x0a\xde\x01")
	assert.Equal(t, want, got)
}

func TestDeserialize_KnownVector(t *testing.T) {
	schema := MustParseSchema(weatherSchema)

	got, err := Deserialize([]byte("\x18012650-99999\xac\xb1\xf0\xd6\x0a\xde\x01"), schema)
	require.NoError(t, err)

	assert.Equal(t, "012650-99999", got["station"])
	assert.EqualValues(t, 1433275478, got["time"])
	assert.EqualValues(t, 111, got["temp"])
}

func TestRoundTrip(t *testing.T) {
	schema := MustParseSchema(`{
		"type": "record",
		"name": "Point",
		"namespace": "test",
		"fields": [
			{"name": "x", "type": "int"},
			{"name": "y", "type": "int"},
			{"name": "label", "type": "string"},
			{"name": "active", "type": "boolean"},
			{"name": "tags", "type": {"type": "array", "items": "string"}}
		]
	}`)

	in := map[string]any{
		"x":      1,
		"y":      2,
		"label":  "origin",
		"active": true,
		"tags":   []any{"a", "b"},
	}

	raw, err := Serialize(in, schema)
	require.NoError(t, err)

	out, err := Deserialize(raw, schema)
	require.NoError(t, err)

	assert.EqualValues(t, 1, out["x"])
	assert.EqualValues(t, 2, out["y"])
	assert.Equal(t, "origin", out["label"])
	assert.Equal(t, true, out["active"])
	assert.Equal(t, []any{"a", "b"}, out["tags"])
}

func TestParseSchema_Invalid(t *testing.T) {
	_, err := ParseSchema(`{"type": "nope"}`)
	assert.Error(t, err)
}
