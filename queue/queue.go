// Package queue enqueues task jobs for the worker pool and drives their
// execution through success and failure callbacks. Delivery is at least
// once: components should be idempotent or rely on content-addressed
// artifacts.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dramaproject/drama/model"
)

// DefaultQueueName is used when a task does not name its queue.
const DefaultQueueName = "default"

// Common queue errors.
var (
	// ErrMissingFailureCallback rejects consumers registered without a
	// failure callback.
	ErrMissingFailureCallback = errors.New("queue: failure callback is mandatory")

	// ErrDeferred is returned by handlers that re-enqueued the job instead
	// of executing it. The delivery is acknowledged and no callback fires.
	ErrDeferred = errors.New("queue: job deferred")
)

// Job is one task execution request.
type Job struct {
	// MessageID is assigned at enqueue time and doubles as the task id.
	MessageID  string     `json:"message_id"`
	Task       model.Task `json:"task"`
	WorkflowID string     `json:"workflow_id"`
	QueueName  string     `json:"queue_name"`
}

// NewJob builds a job for a task of a workflow, assigning its message id.
func NewJob(task model.Task, workflowID, queueName string) Job {
	if queueName == "" {
		queueName = DefaultQueueName
	}
	return Job{
		MessageID:  uuid.NewString(),
		Task:       task,
		WorkflowID: workflowID,
		QueueName:  queueName,
	}
}

// Handler executes one job and returns its JSON-encoded result.
type Handler func(ctx context.Context, job Job) (string, error)

// Callbacks observe job completion. The failure callback is mandatory; it
// persists the FAILED state. The success callback persists DONE.
type Callbacks struct {
	OnSuccess func(ctx context.Context, job Job, result string)
	OnFailure func(ctx context.Context, job Job, err error)
}

// Options bound job execution. They mirror the DEFAULT_ACTOR_OPTS setting.
type Options struct {
	QueueName string
	// MaxRetries is the number of redeliveries after a failed attempt.
	MaxRetries int
	// TimeLimit bounds one execution attempt.
	TimeLimit time.Duration
}

// DefaultOptions returns the queue defaults.
func DefaultOptions() Options {
	return Options{
		QueueName:  DefaultQueueName,
		MaxRetries: 0,
		TimeLimit:  7 * time.Hour,
	}
}

// Queue enqueues and consumes jobs.
type Queue interface {
	// Enqueue submits a job and returns its message id. Re-enqueueing a job
	// keeps its id.
	Enqueue(ctx context.Context, job Job) (string, error)

	// Consume processes jobs from the named queue until the context is
	// done, invoking the handler and then exactly one callback per final
	// delivery.
	Consume(ctx context.Context, opts Options, handler Handler, cb Callbacks) error
}
