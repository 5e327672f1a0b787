package worker

import (
	"context"
	"time"

	"github.com/dramaproject/drama/model"
	"github.com/dramaproject/drama/state"
)

// AggregateStatus derives the workflow status from its tasks' statuses and
// the revocation flag. Revocation dominates; otherwise the rows are
// evaluated in order.
func AggregateStatus(isRevoked bool, statuses []model.TaskStatus) model.WorkflowStatus {
	has := func(want model.TaskStatus) bool {
		for _, s := range statuses {
			if s == want {
				return true
			}
		}
		return false
	}
	all := func(want model.TaskStatus) bool {
		for _, s := range statuses {
			if s != want {
				return false
			}
		}
		return true
	}

	switch {
	case isRevoked:
		return model.WorkflowStatusRevoked
	case all(model.TaskStatusDone):
		return model.WorkflowStatusDone
	case has(model.TaskStatusFailed):
		return model.WorkflowStatusFailed
	case all(model.TaskStatusPending):
		return model.WorkflowStatusPending
	case has(model.TaskStatusPending) && !has(model.TaskStatusFailed):
		return model.WorkflowStatusPending
	case has(model.TaskStatusRunning) && !has(model.TaskStatusFailed):
		return model.WorkflowStatusRunning
	default:
		return model.WorkflowStatusUnknown
	}
}

// SetWorkflowRunState recomputes and persists the workflow status from its
// current task rows. It runs after every task state transition; updates are
// last-writer-wins and converge once the final task settles.
func (rt *Runtime) SetWorkflowRunState(ctx context.Context, workflowID string) error {
	workflow, err := rt.Store.Workflows().FindOne(ctx, workflowID)
	if err != nil {
		return err
	}

	tasks, err := rt.Store.Tasks().Find(ctx, state.Filter{"parent": workflowID})
	if err != nil {
		return err
	}

	statuses := make([]model.TaskStatus, 0, len(tasks))
	for _, task := range tasks {
		statuses = append(statuses, task.Status)
	}

	status := AggregateStatus(workflow.IsRevoked, statuses)

	_, err = rt.Store.Workflows().CreateOrUpdateFromID(ctx, workflowID, state.Fields{
		"status":     status,
		"updated_at": time.Now(),
	})
	return err
}
