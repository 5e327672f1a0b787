package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	jobStream     = "DRAMA_JOBS"
	jobSubjects   = "drama.jobs.>"
	jobSubjectFmt = "drama.jobs.%s"

	fetchInterval = 250 * time.Millisecond
)

// NATS implements Queue on a JetStream work-queue stream with one subject
// per queue name and a durable consumer per queue.
type NATS struct {
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewNATS wraps a NATS connection in a job queue, creating the job stream
// if missing.
func NewNATS(ctx context.Context, nc *nats.Conn, logger *slog.Logger) (*NATS, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("queue: jetstream: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      jobStream,
		Subjects:  []string{jobSubjects},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("queue: ensure job stream: %w", err)
	}

	return &NATS{js: js, logger: logger}, nil
}

// Enqueue submits a job onto its queue subject.
func (q *NATS) Enqueue(ctx context.Context, job Job) (string, error) {
	if job.MessageID == "" {
		return "", fmt.Errorf("queue: job has no message id")
	}
	if job.QueueName == "" {
		job.QueueName = DefaultQueueName
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("queue: marshal job %s: %w", job.MessageID, err)
	}

	subject := fmt.Sprintf(jobSubjectFmt, job.QueueName)
	if _, err := q.js.Publish(ctx, subject, payload); err != nil {
		return "", fmt.Errorf("queue: enqueue %s: %w", job.MessageID, err)
	}

	return job.MessageID, nil
}

// Consume processes jobs from the named queue until the context is done.
func (q *NATS) Consume(ctx context.Context, opts Options, handler Handler, cb Callbacks) error {
	if cb.OnFailure == nil {
		return ErrMissingFailureCallback
	}
	if opts.QueueName == "" {
		opts.QueueName = DefaultQueueName
	}

	stream, err := q.js.Stream(ctx, jobStream)
	if err != nil {
		return fmt.Errorf("queue: job stream: %w", err)
	}

	maxDeliver := opts.MaxRetries + 1
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       "drama-worker-" + opts.QueueName,
		FilterSubject: fmt.Sprintf(jobSubjectFmt, opts.QueueName),
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       opts.TimeLimit + time.Minute,
		MaxDeliver:    maxDeliver,
	})
	if err != nil {
		return fmt.Errorf("queue: consumer for %s: %w", opts.QueueName, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := consumer.Next(jetstream.FetchMaxWait(fetchInterval))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, jetstream.ErrNoMessages) {
				continue
			}
			return fmt.Errorf("queue: next job on %s: %w", opts.QueueName, err)
		}

		q.dispatch(ctx, msg, opts, maxDeliver, handler, cb)
	}
}

func (q *NATS) dispatch(ctx context.Context, msg jetstream.Msg, opts Options, maxDeliver int, handler Handler, cb Callbacks) {
	var job Job
	if err := json.Unmarshal(msg.Data(), &job); err != nil {
		q.logger.Error("Discarding undecodable job", "error", err)
		_ = msg.Term()
		return
	}

	runCtx := ctx
	if opts.TimeLimit > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.TimeLimit)
		defer cancel()
	}

	result, err := handler(runCtx, job)
	if errors.Is(err, ErrDeferred) {
		_ = msg.Ack()
		return
	}
	if err == nil {
		_ = msg.Ack()
		if cb.OnSuccess != nil {
			cb.OnSuccess(ctx, job, result)
		}
		return
	}

	delivered := 1
	if meta, metaErr := msg.Metadata(); metaErr == nil {
		delivered = int(meta.NumDelivered)
	}

	if delivered >= maxDeliver {
		_ = msg.Term()
		cb.OnFailure(ctx, job, err)
		return
	}

	q.logger.Warn("Job failed, redelivering",
		"message_id", job.MessageID, "attempt", delivered, "error", err)
	_ = msg.Nak()
}
