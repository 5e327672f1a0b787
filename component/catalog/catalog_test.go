package catalog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dramaproject/drama/bus"
	"github.com/dramaproject/drama/component"
	"github.com/dramaproject/drama/message"
	"github.com/dramaproject/drama/process"
	"github.com/dramaproject/drama/storage"
)

func newCatalogProcess(t *testing.T, b bus.Bus, name string, params map[string]any, inputs map[string]string) *process.Process {
	t.Helper()

	dataDir := t.TempDir()
	pcs, err := process.New(process.Options{
		Name:    name,
		Module:  "test",
		Parent:  "wf1",
		Params:  params,
		Inputs:  inputs,
		Storage: storage.NewLocal(dataDir, "anonymous", "wf1", name),
		Bus:     b,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		DataDir: dataDir,
	})
	require.NoError(t, err)
	return pcs
}

func TestRegister(t *testing.T) {
	registry := component.NewRegistry()
	Register(registry)

	for _, module := range []string{
		ModuleImportFile,
		ModuleImportTSV,
		ModuleReadTSV,
		ModulePointPublisher,
		ModulePointReader,
		ModuleStreamingPointReader,
		ModuleDynamicParameter,
		ModuleRevokeExecution,
	} {
		_, err := registry.Lookup(module)
		assert.NoError(t, err, module)
	}
}

func TestPointPublisherToReader(t *testing.T) {
	ctx := context.Background()
	b := bus.NewMemory()

	publisher := newCatalogProcess(t, b, "Publisher", map[string]any{"x": 5, "y": 17}, nil)
	_, err := pointPublisher(ctx, publisher)
	require.NoError(t, err)

	// The reader only stops after the publisher's end-of-stream signal.
	_, err = publisher.Close(ctx, false, false)
	require.NoError(t, err)

	reader := newCatalogProcess(t, b, "Reader", nil, map[string]string{"Points": "Publisher.Point"})
	result, err := pointReader(ctx, reader)
	require.NoError(t, err)
	assert.Equal(t, "read 10 points", result.Message)
}

func TestStreamingPointReader(t *testing.T) {
	ctx := context.Background()
	b := bus.NewMemory()

	publisher := newCatalogProcess(t, b, "Publisher", map[string]any{"x": 1, "y": 2}, nil)
	_, err := pointPublisher(ctx, publisher)
	require.NoError(t, err)
	_, err = publisher.Close(ctx, false, false)
	require.NoError(t, err)

	reader := newCatalogProcess(t, b, "Reader", nil, map[string]string{"Points": "Publisher.Point"})
	result, err := streamingPointReader(ctx, reader)
	require.NoError(t, err)
	assert.Equal(t, "streamed 10 points", result.Message)
}

func TestPointPublisher_MissingParams(t *testing.T) {
	pcs := newCatalogProcess(t, bus.NewMemory(), "Publisher", map[string]any{"x": 5}, nil)

	_, err := pointPublisher(context.Background(), pcs)
	assert.Error(t, err)
}

func TestRevokeExecution(t *testing.T) {
	ctx := context.Background()
	b := bus.NewMemory()

	revoker := newCatalogProcess(t, b, "RevokeExecution", nil, nil)
	_, err := revokeExecution(ctx, revoker)
	require.NoError(t, err)

	reader, err := b.Subscribe(ctx, "wf1")
	require.NoError(t, err)
	defer reader.Close()

	record, err := reader.Next(ctx)
	require.NoError(t, err)
	// The interruption is keyed by the workflow id so every task sees it.
	assert.Equal(t, "wf1", record.Key)

	msg, err := message.Decode(record.Value)
	require.NoError(t, err)
	assert.Equal(t, message.SignalInterruption, msg.Signal())
}

func TestDynamicParameter(t *testing.T) {
	ctx := context.Background()
	b := bus.NewMemory()

	require.NoError(t, b.Publish(ctx, "wf1-Param", "", []byte("chosen-value")))

	pcs := newCatalogProcess(t, b, "Param", nil, nil)
	result, err := dynamicParameter(ctx, pcs)
	require.NoError(t, err)
	assert.Equal(t, "chosen-value", result.Message)
}

func TestDecomment(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "in.tsv")
	outPath := filepath.Join(dir, "out.tsv")

	input := "a\tb\tc\n# full comment line\n1\t2\t3 # trailing comment\n\n4\t5\t6\n"
	require.NoError(t, os.WriteFile(inPath, []byte(input), 0o644))

	require.NoError(t, decomment(inPath, outPath, "\t", "#"))

	out, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "a\tb\tc\n1\t2\t3\n4\t5\t6\n", string(out))
}
