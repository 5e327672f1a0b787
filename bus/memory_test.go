package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_PublishSubscribe(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()

	require.NoError(t, b.Publish(ctx, "wf1", "T0", []byte("first")))
	require.NoError(t, b.Publish(ctx, "wf1", "T0", []byte("second")))
	require.NoError(t, b.Publish(ctx, "wf1", "T1", []byte("third")))

	reader, err := b.Subscribe(ctx, "wf1")
	require.NoError(t, err)
	defer reader.Close()

	var keys []string
	var values []string
	for range 3 {
		record, err := reader.Next(ctx)
		require.NoError(t, err)
		keys = append(keys, record.Key)
		values = append(values, string(record.Value))
	}

	// Records keyed by the same producer arrive in production order.
	assert.Equal(t, []string{"T0", "T0", "T1"}, keys)
	assert.Equal(t, []string{"first", "second", "third"}, values)
}

func TestMemory_LateReaderSeesEarliest(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()

	require.NoError(t, b.Publish(ctx, "wf1", "T0", []byte("early")))

	reader, err := b.Subscribe(ctx, "wf1")
	require.NoError(t, err)
	defer reader.Close()

	record, err := reader.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "early", string(record.Value))
}

func TestMemory_NextBlocksUntilPublish(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()

	reader, err := b.Subscribe(ctx, "wf1")
	require.NoError(t, err)
	defer reader.Close()

	got := make(chan Record, 1)
	go func() {
		record, err := reader.Next(ctx)
		if err == nil {
			got <- record
		}
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, b.Publish(ctx, "wf1", "T0", []byte("late")))

	select {
	case record := <-got:
		assert.Equal(t, "late", string(record.Value))
	case <-time.After(time.Second):
		t.Fatal("reader did not observe the published record")
	}
}

func TestMemory_NextHonorsContext(t *testing.T) {
	b := NewMemory()

	reader, err := b.Subscribe(context.Background(), "wf1")
	require.NoError(t, err)
	defer reader.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = reader.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemory_TopicsAreIsolated(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()

	require.NoError(t, b.Publish(ctx, "wf1", "T0", []byte("one")))
	require.NoError(t, b.Publish(ctx, "wf2", "T0", []byte("two")))

	reader, err := b.Subscribe(ctx, "wf2")
	require.NoError(t, err)
	defer reader.Close()

	record, err := reader.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "two", string(record.Value))
}
