// Package worker drives workflow execution: the scheduler validates,
// orders and enqueues tasks; the actor runs one task end to end; the
// aggregator derives the workflow status after every task transition.
package worker

import (
	"log/slog"

	"github.com/dramaproject/drama/bus"
	"github.com/dramaproject/drama/component"
	"github.com/dramaproject/drama/config"
	"github.com/dramaproject/drama/metrics"
	"github.com/dramaproject/drama/queue"
	"github.com/dramaproject/drama/state"
	"github.com/dramaproject/drama/storage"
)

// Runtime carries the process-wide dependencies, constructed once at
// startup and threaded through scheduler and actor.
type Runtime struct {
	Store    state.Store
	Bus      bus.Bus
	Queue    queue.Queue
	Registry *component.Registry
	Storage  storage.Factory
	Logger   *slog.Logger
	Metrics  *metrics.Metrics

	// SecretsKey is the base64 private key unsealing task secrets.
	SecretsKey string

	// DataDir is the process-wide scratch root.
	DataDir string

	// ActorOpts bound job execution on the queue.
	ActorOpts config.ActorOpts
}

// QueueOptions derives the queue consumer options for a queue name.
func (rt *Runtime) QueueOptions(queueName string) queue.Options {
	if queueName == "" {
		queueName = rt.ActorOpts.QueueName
	}
	if queueName == "" {
		queueName = queue.DefaultQueueName
	}
	return queue.Options{
		QueueName:  queueName,
		MaxRetries: rt.ActorOpts.MaxRetries,
		TimeLimit:  rt.ActorOpts.TimeLimit(),
	}
}
