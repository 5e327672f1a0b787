package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dramaproject/drama/model"
	"github.com/dramaproject/drama/process"
	"github.com/dramaproject/drama/queue"
	"github.com/dramaproject/drama/state"
)

// requeueBackoff spaces out redeliveries of a task whose upstreams are
// still pending.
const requeueBackoff = 100 * time.Millisecond

// Actor executes one task job end to end.
type Actor struct {
	rt *Runtime
}

// NewActor creates an actor over the runtime.
func NewActor(rt *Runtime) *Actor {
	return &Actor{rt: rt}
}

// Handle runs a job: it unseals secrets, gates on upstream task states,
// builds the process context, resolves and invokes the component, and
// returns the JSON-encoded task result. Errors are rethrown so the queue
// invokes the failure callback.
func (a *Actor) Handle(ctx context.Context, job queue.Job) (string, error) {
	taskID := job.MessageID
	task := job.Task
	workflowID := job.WorkflowID

	logger := a.rt.Logger.With("task_id", taskID, "task", task.Name, "workflow", workflowID)
	logger.Info("Processing task")

	secrets := make([]model.UnsealedSecret, 0, len(task.Secrets))
	for _, sealed := range task.Secrets {
		unsealed, err := sealed.Unseal(a.rt.SecretsKey)
		if err != nil {
			return "", fmt.Errorf("unseal secret %s for task %s: %w", sealed.Token, taskID, err)
		}
		secrets = append(secrets, unsealed)
	}

	deferred, err := a.gateOnUpstream(ctx, job, logger)
	if err != nil {
		return "", err
	}
	if deferred {
		return "", queue.ErrDeferred
	}

	opts := task.EffectiveOptions()
	author := model.Metadata(task.Meta).Author()

	// The bucket is the workflow author; each task gets its own
	// "<workflow>/<task>" folder inside it.
	store, err := a.rt.Storage(author, workflowID, task.Name)
	if err != nil {
		return "", fmt.Errorf("storage for task %s: %w", taskID, err)
	}

	pcs, err := process.New(process.Options{
		Name:    task.Name,
		Module:  task.Module,
		Parent:  workflowID,
		Params:  task.Params,
		Inputs:  task.Inputs,
		Secrets: secrets,
		Storage: store,
		Bus:     a.rt.Bus,
		Logger:  logger,
		DataDir: a.rt.DataDir,
	})
	if err != nil {
		return "", err
	}

	pcs.Debug(fmt.Sprintf("Running task %s with name %s", taskID, task.Name))
	pcs.Debug(fmt.Sprintf("Resolving component %s", task.Module))

	comp, err := a.rt.Registry.Lookup(task.Module)
	if err != nil {
		pcs.Error(err.Error())
		_, _ = pcs.Close(ctx, opts.OnFailForceInterruption, false)
		return "", fmt.Errorf("module %s from task %s is not available: %w", task.Module, taskID, err)
	}

	if err := a.setRunning(ctx, taskID, workflowID); err != nil {
		return "", err
	}

	if a.rt.Metrics != nil {
		a.rt.Metrics.RunningTasks.Inc()
		defer a.rt.Metrics.RunningTasks.Dec()
	}

	result, err := comp.Execute(ctx, pcs)
	if err != nil {
		pcs.Error(err.Error())

		removeLocalDir := opts.OnFailRemoveLocalDir
		var missing *process.MissingInputsError
		if errors.Is(err, process.ErrUpstreamInterrupted) || errors.As(err, &missing) {
			// Upstream already stopped the stream; the scratch dir may hold
			// artifacts worth keeping for the post-mortem.
			removeLocalDir = false
		}

		_, _ = pcs.Close(ctx, opts.OnFailForceInterruption, removeLocalDir)
		return "", err
	}

	if result == nil {
		result = &model.TaskResult{}
	}

	remoteLog, err := pcs.Close(ctx, false, false)
	if err != nil {
		return "", err
	}
	pcs.Info(fmt.Sprintf("Task %s successfully executed", taskID))

	result.Log = &remoteLog

	encoded, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encode result of task %s: %w", taskID, err)
	}

	return string(encoded), nil
}

// gateOnUpstream defers the job while any upstream task of the same
// workflow is still pending, re-enqueueing the same message so its id is
// preserved.
func (a *Actor) gateOnUpstream(ctx context.Context, job queue.Job, logger *slog.Logger) (bool, error) {
	upstream := job.Task.UpstreamTasks()
	if len(upstream) == 0 {
		return false, nil
	}

	records, err := a.rt.Store.Tasks().Find(ctx, state.Filter{"parent": job.WorkflowID})
	if err != nil {
		return false, err
	}
	if len(records) == 0 {
		return false, fmt.Errorf("tasks for workflow %s not found", job.WorkflowID)
	}

	byName := make(map[string]model.TaskRecord, len(records))
	for _, record := range records {
		byName[record.Name] = record
	}

	for _, name := range upstream {
		record, ok := byName[name]
		if !ok || record.Status != model.TaskStatusPending {
			continue
		}

		logger.Debug("Upstream task still pending, re-enqueueing", "upstream", name)
		time.Sleep(requeueBackoff)

		if _, err := a.rt.Queue.Enqueue(ctx, job); err != nil {
			return false, fmt.Errorf("re-enqueue task %s: %w", job.MessageID, err)
		}
		return true, nil
	}

	return false, nil
}

func (a *Actor) setRunning(ctx context.Context, taskID, workflowID string) error {
	_, err := a.rt.Store.Tasks().CreateOrUpdateFromID(ctx, taskID, state.Fields{
		"status":     model.TaskStatusRunning,
		"updated_at": time.Now(),
	})
	if err != nil {
		return err
	}
	return a.rt.SetWorkflowRunState(ctx, workflowID)
}

// Callbacks builds the queue callbacks persisting terminal task states and
// re-aggregating the workflow status.
func (rt *Runtime) Callbacks() queue.Callbacks {
	return queue.Callbacks{
		OnSuccess: func(ctx context.Context, job queue.Job, encoded string) {
			var result model.TaskResult
			if err := json.Unmarshal([]byte(encoded), &result); err != nil {
				rt.Logger.Error("Discarding undecodable task result", "task_id", job.MessageID, "error", err)
			}

			_, err := rt.Store.Tasks().CreateOrUpdateFromID(ctx, job.MessageID, state.Fields{
				"status":     model.TaskStatusDone,
				"result":     &result,
				"updated_at": time.Now(),
			})
			if err != nil {
				rt.Logger.Error("Could not persist task success", "task_id", job.MessageID, "error", err)
				return
			}

			if rt.Metrics != nil {
				rt.Metrics.TasksCompleted.WithLabelValues(string(model.TaskStatusDone)).Inc()
			}
			if err := rt.SetWorkflowRunState(ctx, job.WorkflowID); err != nil {
				rt.Logger.Error("Could not aggregate workflow state", "workflow", job.WorkflowID, "error", err)
			}
		},

		OnFailure: func(ctx context.Context, job queue.Job, jobErr error) {
			result := &model.TaskResult{Message: jobErr.Error()}

			_, err := rt.Store.Tasks().CreateOrUpdateFromID(ctx, job.MessageID, state.Fields{
				"status":     model.TaskStatusFailed,
				"result":     result,
				"updated_at": time.Now(),
			})
			if err != nil {
				rt.Logger.Error("Could not persist task failure", "task_id", job.MessageID, "error", err)
				return
			}

			if rt.Metrics != nil {
				rt.Metrics.TasksCompleted.WithLabelValues(string(model.TaskStatusFailed)).Inc()
			}
			if err := rt.SetWorkflowRunState(ctx, job.WorkflowID); err != nil {
				rt.Logger.Error("Could not aggregate workflow state", "workflow", job.WorkflowID, "error", err)
			}
		},
	}
}
