package queue

import (
	"context"
	"errors"
	"sync"
)

// Memory implements Queue on buffered in-process channels. It backs tests
// and single-process development runs; retries are not simulated, every
// delivery is final.
type Memory struct {
	mu     sync.Mutex
	queues map[string]chan Job
}

// NewMemory creates an empty in-memory queue.
func NewMemory() *Memory {
	return &Memory{queues: make(map[string]chan Job)}
}

func (q *Memory) channel(name string) chan Job {
	if name == "" {
		name = DefaultQueueName
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	ch, ok := q.queues[name]
	if !ok {
		ch = make(chan Job, 1024)
		q.queues[name] = ch
	}
	return ch
}

// Enqueue submits a job onto its queue channel.
func (q *Memory) Enqueue(ctx context.Context, job Job) (string, error) {
	if job.MessageID == "" {
		return "", errors.New("queue: job has no message id")
	}

	select {
	case q.channel(job.QueueName) <- job:
		return job.MessageID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Consume processes jobs from the named queue until the context is done.
func (q *Memory) Consume(ctx context.Context, opts Options, handler Handler, cb Callbacks) error {
	if cb.OnFailure == nil {
		return ErrMissingFailureCallback
	}

	ch := q.channel(opts.QueueName)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job := <-ch:
			q.dispatch(ctx, job, opts, handler, cb)
		}
	}
}

func (q *Memory) dispatch(ctx context.Context, job Job, opts Options, handler Handler, cb Callbacks) {
	runCtx := ctx
	if opts.TimeLimit > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.TimeLimit)
		defer cancel()
	}

	result, err := handler(runCtx, job)
	switch {
	case errors.Is(err, ErrDeferred):
	case err != nil:
		cb.OnFailure(ctx, job, err)
	default:
		if cb.OnSuccess != nil {
			cb.OnSuccess(ctx, job, result)
		}
	}
}

// Len reports the number of queued jobs; used by tests.
func (q *Memory) Len(queueName string) int {
	return len(q.channel(queueName))
}
