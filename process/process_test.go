package process

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dramaproject/drama/bus"
	"github.com/dramaproject/drama/datatype"
	"github.com/dramaproject/drama/message"
	"github.com/dramaproject/drama/model"
	"github.com/dramaproject/drama/servo"
	"github.com/dramaproject/drama/storage"
)

var pointSchema = datatype.MustSchema("Point", []datatype.Field{
	datatype.NewField("x", datatype.Int()),
	datatype.NewField("y", datatype.Int()),
})

func newTestProcess(t *testing.T, b bus.Bus, inputs map[string]string) *Process {
	t.Helper()

	dataDir := t.TempDir()
	store := storage.NewLocal(dataDir, "anonymous", "wf1", "T1")

	pcs, err := New(Options{
		Name:    "T1",
		Module:  "drama.catalog.PointReader",
		Parent:  "wf1",
		Inputs:  inputs,
		Storage: store,
		Bus:     b,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		DataDir: dataDir,
	})
	require.NoError(t, err)
	return pcs
}

// publishBlock puts a serialized record on the workflow topic the way a
// producing task would.
func publishBlock(t *testing.T, b bus.Bus, topic, producer, key string, schema *datatype.Schema, values map[string]any) {
	t.Helper()
	ctx := context.Background()

	dict, err := schema.MustRecord(values).Dict()
	require.NoError(t, err)

	schemaJSON, err := schema.AvroJSON()
	require.NoError(t, err)

	avroSchema, err := servo.ParseSchema(schemaJSON)
	require.NoError(t, err)

	data, err := servo.Serialize(dict, avroSchema)
	require.NoError(t, err)

	raw, err := message.NewBlock(key, data, schemaJSON).Encode()
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, topic, producer, raw))
}

func publishSignal(t *testing.T, b bus.Bus, topic, producer string, signal message.Signal) {
	t.Helper()

	raw, err := message.NewSignal(signal).Encode()
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), topic, producer, raw))
}

func TestGetFromUpstream(t *testing.T) {
	ctx := context.Background()
	b := bus.NewMemory()

	publishBlock(t, b, "wf1", "T0", "T0.Point", pointSchema, map[string]any{"x": 1, "y": 2})
	publishSignal(t, b, "wf1", "T0", message.SignalStop)

	pcs := newTestProcess(t, b, map[string]string{"point": "T0.Point"})

	got, err := pcs.GetFromUpstream(ctx)
	require.NoError(t, err)

	require.Len(t, got["point"], 1)
	payload := got["point"][0].(map[string]any)
	assert.EqualValues(t, 1, payload["x"])
	assert.EqualValues(t, 2, payload["y"])
}

func TestGetFromUpstream_MissingInputs(t *testing.T) {
	ctx := context.Background()
	b := bus.NewMemory()

	publishSignal(t, b, "wf1", "T0", message.SignalStop)

	pcs := newTestProcess(t, b, map[string]string{"point": "T0.Point"})

	_, err := pcs.GetFromUpstream(ctx)
	var missing *MissingInputsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"T0.Point"}, missing.Missing)
}

func TestGetFromUpstream_Interruption(t *testing.T) {
	ctx := context.Background()
	b := bus.NewMemory()

	// Control signals addressed to every task are keyed by the workflow id.
	publishSignal(t, b, "wf1", "wf1", message.SignalInterruption)

	pcs := newTestProcess(t, b, map[string]string{"point": "T0.Point"})

	_, err := pcs.GetFromUpstream(ctx)
	assert.ErrorIs(t, err, ErrUpstreamInterrupted)
}

func TestGetFromUpstream_DiscardsUndeclaredKeys(t *testing.T) {
	ctx := context.Background()
	b := bus.NewMemory()

	publishBlock(t, b, "wf1", "T0", "T0.Noise", pointSchema, map[string]any{"x": 9, "y": 9})
	publishBlock(t, b, "wf1", "T0", "T0.Point", pointSchema, map[string]any{"x": 1, "y": 2})
	publishSignal(t, b, "wf1", "T0", message.SignalStop)

	pcs := newTestProcess(t, b, map[string]string{"point": "T0.Point"})

	got, err := pcs.GetFromUpstream(ctx)
	require.NoError(t, err)
	assert.Len(t, got["point"], 1)
}

func TestGetFromUpstream_IgnoresUnrelatedProducers(t *testing.T) {
	ctx := context.Background()
	b := bus.NewMemory()

	// A task this process does not consume also streams on the topic.
	publishBlock(t, b, "wf1", "TX", "TX.Point", pointSchema, map[string]any{"x": 5, "y": 5})
	publishSignal(t, b, "wf1", "TX", message.SignalStop)
	publishBlock(t, b, "wf1", "T0", "T0.Point", pointSchema, map[string]any{"x": 1, "y": 2})
	publishSignal(t, b, "wf1", "T0", message.SignalStop)

	pcs := newTestProcess(t, b, map[string]string{"point": "T0.Point"})

	got, err := pcs.GetFromUpstream(ctx)
	require.NoError(t, err)
	require.Len(t, got["point"], 1)
	payload := got["point"][0].(map[string]any)
	assert.EqualValues(t, 1, payload["x"])
}

func TestGetFromUpstream_MultipleUpstreams(t *testing.T) {
	ctx := context.Background()
	b := bus.NewMemory()

	publishBlock(t, b, "wf1", "T0", "T0.Point", pointSchema, map[string]any{"x": 1, "y": 1})
	publishSignal(t, b, "wf1", "T0", message.SignalStop)
	publishBlock(t, b, "wf1", "TB", "TB.Point", pointSchema, map[string]any{"x": 2, "y": 2})
	publishSignal(t, b, "wf1", "TB", message.SignalStop)

	pcs := newTestProcess(t, b, map[string]string{
		"left":  "T0.Point",
		"right": "TB.Point",
	})

	got, err := pcs.GetFromUpstream(ctx)
	require.NoError(t, err)
	assert.Len(t, got["left"], 1)
	assert.Len(t, got["right"], 1)
}

func TestPollFromUpstream_NoInputs(t *testing.T) {
	pcs := newTestProcess(t, bus.NewMemory(), nil)

	_, err := pcs.PollFromUpstream(context.Background(), true)
	assert.ErrorIs(t, err, ErrNoInputs)
}

func TestToDownstream(t *testing.T) {
	ctx := context.Background()
	b := bus.NewMemory()
	pcs := newTestProcess(t, b, nil)

	record := pointSchema.MustRecord(map[string]any{"x": 3, "y": 4})
	sent, err := pcs.ToDownstream(ctx, record)
	require.NoError(t, err)
	assert.Equal(t, "T1.Point", sent.Key)

	reader, err := b.Subscribe(ctx, "wf1")
	require.NoError(t, err)
	defer reader.Close()

	raw, err := reader.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "T1", raw.Key)

	msg, err := message.Decode(raw.Value)
	require.NoError(t, err)
	assert.Equal(t, message.TypeBlock, msg.Type)
	assert.Equal(t, "T1.Point", msg.Key)
	assert.Equal(t, message.ServoAvro, msg.Servo)

	schema, err := servo.ParseSchema(msg.Schem)
	require.NoError(t, err)
	payload, err := servo.Deserialize(msg.Data, schema)
	require.NoError(t, err)
	assert.EqualValues(t, 3, payload["x"])
	assert.EqualValues(t, 4, payload["y"])
}

func TestClose_UploadsLogAndSignals(t *testing.T) {
	ctx := context.Background()
	b := bus.NewMemory()
	pcs := newTestProcess(t, b, nil)

	pcs.Info("doing work")

	remoteLog, err := pcs.Close(ctx, false, false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(pcs.Storage.LocalDir(), LogFileName), remoteLog.Resource)

	content, err := os.ReadFile(remoteLog.Resource)
	require.NoError(t, err)
	assert.Contains(t, string(content), "[INFO]")
	assert.Contains(t, string(content), "doing work")

	reader, err := b.Subscribe(ctx, "wf1")
	require.NoError(t, err)
	defer reader.Close()

	raw, err := reader.Next(ctx)
	require.NoError(t, err)
	msg, err := message.Decode(raw.Value)
	require.NoError(t, err)
	assert.Equal(t, message.TypeSignal, msg.Type)
	assert.Equal(t, message.SignalStop, msg.Signal())
}

func TestClose_ForcedInterruptionRemovesLocalDir(t *testing.T) {
	ctx := context.Background()
	b := bus.NewMemory()
	pcs := newTestProcess(t, b, nil)

	require.NoError(t, os.WriteFile(filepath.Join(pcs.Storage.LocalDir(), "scratch.bin"), []byte("x"), 0o644))

	_, err := pcs.Close(ctx, true, true)
	require.NoError(t, err)

	// The log survives as log.txt.old; everything else is gone.
	assert.FileExists(t, filepath.Join(pcs.Storage.LocalDir(), LogFileName+".old"))
	assert.NoFileExists(t, filepath.Join(pcs.Storage.LocalDir(), "scratch.bin"))

	reader, err := b.Subscribe(ctx, "wf1")
	require.NoError(t, err)
	defer reader.Close()

	raw, err := reader.Next(ctx)
	require.NoError(t, err)
	msg, err := message.Decode(raw.Value)
	require.NoError(t, err)
	assert.Equal(t, message.SignalInterruption, msg.Signal())
}

func TestPollTopic(t *testing.T) {
	ctx := context.Background()
	b := bus.NewMemory()
	pcs := newTestProcess(t, b, nil)

	require.NoError(t, b.Publish(ctx, "wf1-T1", "", []byte("42")))

	value, err := pcs.PollTopic(ctx, "wf1-T1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("42"), value)
}

func TestPollTopic_Timeout(t *testing.T) {
	pcs := newTestProcess(t, bus.NewMemory(), nil)

	_, err := pcs.PollTopic(context.Background(), "wf1-T1", 30*time.Millisecond)
	assert.Error(t, err)
}

func TestSecret(t *testing.T) {
	pcs := newTestProcess(t, bus.NewMemory(), nil)
	pcs.Secrets = append(pcs.Secrets, model.UnsealedSecret{Token: "TOKEN", Secret: "value"})

	got, ok := pcs.Secret("TOKEN")
	assert.True(t, ok)
	assert.Equal(t, "value", got)

	_, ok = pcs.Secret("MISSING")
	assert.False(t, ok)
}
