package catalog

import (
	"context"
	"time"

	"github.com/dramaproject/drama/message"
	"github.com/dramaproject/drama/model"
	"github.com/dramaproject/drama/process"
)

// dynamicParameterTimeout bounds the wait for an interactive value.
const dynamicParameterTimeout = 600 * time.Second

// dynamicParameter waits for a value published on the task's own topic
// ("<workflow>-<task>", fed by the API) and streams it downstream.
func dynamicParameter(ctx context.Context, pcs *process.Process) (*model.TaskResult, error) {
	topic := pcs.Parent + "-" + pcs.Name

	value, err := pcs.PollTopic(ctx, topic, dynamicParameterTimeout)
	if err != nil {
		return nil, err
	}

	record := DynamicParameterValue.MustRecord(map[string]any{"value": string(value)})
	if _, err := pcs.ToDownstream(ctx, record); err != nil {
		return nil, err
	}

	return &model.TaskResult{Message: string(value)}, nil
}

// revokeExecution broadcasts a global interruption signal on the workflow
// topic, keyed by the workflow id so every polling task observes it.
func revokeExecution(ctx context.Context, pcs *process.Process) (*model.TaskResult, error) {
	if err := pcs.PublishSignal(ctx, message.SignalInterruption, pcs.Parent); err != nil {
		return nil, err
	}
	return nil, nil
}
