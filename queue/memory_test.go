package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dramaproject/drama/model"
)

func TestNewJob_AssignsMessageID(t *testing.T) {
	job := NewJob(model.Task{Name: "First", Module: "m"}, "wf1", "")

	assert.NotEmpty(t, job.MessageID)
	assert.Equal(t, DefaultQueueName, job.QueueName)
	assert.Equal(t, "wf1", job.WorkflowID)
}

func TestMemory_ConsumeInvokesSuccessCallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewMemory()
	job := NewJob(model.Task{Name: "First", Module: "m"}, "wf1", "")

	_, err := q.Enqueue(ctx, job)
	require.NoError(t, err)

	done := make(chan string, 1)
	go func() {
		_ = q.Consume(ctx, DefaultOptions(), func(ctx context.Context, j Job) (string, error) {
			return `{"message":"ok"}`, nil
		}, Callbacks{
			OnSuccess: func(ctx context.Context, j Job, result string) {
				done <- result
			},
			OnFailure: func(ctx context.Context, j Job, err error) {
				t.Errorf("unexpected failure: %v", err)
			},
		})
	}()

	select {
	case result := <-done:
		assert.JSONEq(t, `{"message":"ok"}`, result)
	case <-time.After(time.Second):
		t.Fatal("success callback never fired")
	}
}

func TestMemory_ConsumeInvokesFailureCallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewMemory()
	job := NewJob(model.Task{Name: "First", Module: "m"}, "wf1", "")

	_, err := q.Enqueue(ctx, job)
	require.NoError(t, err)

	failed := make(chan error, 1)
	go func() {
		_ = q.Consume(ctx, DefaultOptions(), func(ctx context.Context, j Job) (string, error) {
			return "", errors.New("component exploded")
		}, Callbacks{
			OnFailure: func(ctx context.Context, j Job, err error) {
				failed <- err
			},
		})
	}()

	select {
	case err := <-failed:
		assert.ErrorContains(t, err, "component exploded")
	case <-time.After(time.Second):
		t.Fatal("failure callback never fired")
	}
}

func TestMemory_DeferredSkipsCallbacks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewMemory()
	job := NewJob(model.Task{Name: "First", Module: "m"}, "wf1", "")

	_, err := q.Enqueue(ctx, job)
	require.NoError(t, err)

	handled := make(chan struct{}, 1)
	go func() {
		_ = q.Consume(ctx, DefaultOptions(), func(ctx context.Context, j Job) (string, error) {
			handled <- struct{}{}
			return "", ErrDeferred
		}, Callbacks{
			OnSuccess: func(ctx context.Context, j Job, result string) {
				t.Error("success callback fired for deferred job")
			},
			OnFailure: func(ctx context.Context, j Job, err error) {
				t.Errorf("failure callback fired for deferred job: %v", err)
			},
		})
	}()

	select {
	case <-handled:
	case <-time.After(time.Second):
		t.Fatal("handler never ran")
	}
	// Give the callbacks a beat to (wrongly) fire before the test ends.
	time.Sleep(20 * time.Millisecond)
}

func TestMemory_ConsumeRequiresFailureCallback(t *testing.T) {
	q := NewMemory()

	err := q.Consume(context.Background(), DefaultOptions(), nil, Callbacks{})
	assert.ErrorIs(t, err, ErrMissingFailureCallback)
}

func TestMemory_QueueNamesAreIsolated(t *testing.T) {
	ctx := context.Background()
	q := NewMemory()

	gpu := NewJob(model.Task{Name: "First", Module: "m"}, "wf1", "gpu")
	_, err := q.Enqueue(ctx, gpu)
	require.NoError(t, err)

	assert.Equal(t, 1, q.Len("gpu"))
	assert.Equal(t, 0, q.Len(DefaultQueueName))
}
