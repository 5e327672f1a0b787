package worker

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/dramaproject/drama/component/catalog"
	"github.com/dramaproject/drama/model"
	"github.com/dramaproject/drama/queue"
	"github.com/dramaproject/drama/state"
)

// Scheduler validates workflows, persists them and enqueues their tasks in
// topological order.
type Scheduler struct {
	rt *Runtime
}

// NewScheduler creates a scheduler over the runtime.
func NewScheduler(rt *Runtime) *Scheduler {
	return &Scheduler{rt: rt}
}

// Run accepts a workflow: it validates it, persists it as PENDING, merges
// the workflow metadata into every task and enqueues the tasks in
// topological order. The persisted workflow is returned.
func (s *Scheduler) Run(ctx context.Context, workflow model.Workflow) (*model.WorkflowRecord, error) {
	if workflow.ID == "" {
		workflow.ID = model.NewWorkflowID()
	}

	if err := workflow.Validate(); err != nil {
		return nil, err
	}

	sorted := SortedTasks(workflow)
	if len(sorted) != len(workflow.Tasks) {
		return nil, &model.ValidationError{
			Field:   "tasks",
			Message: "workflow graph has a cycle",
		}
	}

	meta := workflow.Meta.WithAuthor()

	record, err := s.rt.Store.Workflows().CreateOrUpdateFromID(ctx, workflow.ID, state.Fields{
		"labels":     workflow.Labels,
		"secrets":    workflow.Secrets,
		"metadata":   meta,
		"status":     model.WorkflowStatusPending,
		"created_at": time.Now(),
	})
	if err != nil {
		return nil, err
	}

	tasks := make(map[string]model.Task, len(workflow.Tasks))
	for _, task := range workflow.Tasks {
		merged := make(map[string]any, len(task.Meta)+len(meta))
		for k, v := range task.Meta {
			merged[k] = v
		}
		for k, v := range meta {
			merged[k] = v
		}
		task.Meta = merged
		tasks[task.Name] = task
	}

	for _, name := range sorted {
		if _, err := s.Enqueue(ctx, tasks[name], workflow.ID); err != nil {
			return nil, err
		}
	}

	s.rt.Logger.Info("Workflow accepted", "workflow", workflow.ID, "tasks", len(sorted))
	if s.rt.Metrics != nil {
		s.rt.Metrics.WorkflowsSubmitted.Inc()
	}

	return record, nil
}

// Enqueue submits one task onto the job queue and persists its PENDING row
// under the message id the queue assigned.
func (s *Scheduler) Enqueue(ctx context.Context, task model.Task, workflowID string) (*model.TaskRecord, error) {
	opts := task.EffectiveOptions()

	queueName := opts.QueueName
	if queueName == "" {
		queueName = s.rt.ActorOpts.QueueName
	}

	job := queue.NewJob(task, workflowID, queueName)
	messageID, err := s.rt.Queue.Enqueue(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("enqueue task %s: %w", task.Name, err)
	}

	record, err := s.rt.Store.Tasks().CreateOrUpdateFromID(ctx, messageID, state.Fields{
		"name":       task.Name,
		"parent":     workflowID,
		"module":     task.Module,
		"params":     task.Params,
		"inputs":     task.Inputs,
		"labels":     task.Labels,
		"options":    opts,
		"metadata":   task.Meta,
		"status":     model.TaskStatusPending,
		"created_at": time.Now(),
	})
	if err != nil {
		return nil, err
	}

	if s.rt.Metrics != nil {
		s.rt.Metrics.TasksEnqueued.Inc()
	}

	return record, nil
}

// Revoke cancels a workflow: is_revoked is raised (never lowered again) and
// a built-in task broadcasting the interruption signal is enqueued.
func (s *Scheduler) Revoke(ctx context.Context, workflowID string) (*model.WorkflowRecord, error) {
	s.rt.Logger.Debug("Revoking workflow", "workflow", workflowID)

	record, err := s.rt.Store.Workflows().CreateOrUpdateFromID(ctx, workflowID, state.Fields{
		"is_revoked": true,
		"updated_at": time.Now(),
	})
	if err != nil {
		return nil, err
	}

	revoke := model.Task{
		Name:   "RevokeExecution",
		Module: catalog.ModuleRevokeExecution,
	}
	if _, err := s.Enqueue(ctx, revoke, workflowID); err != nil {
		return nil, err
	}

	if s.rt.Metrics != nil {
		s.rt.Metrics.WorkflowsRevoked.Inc()
	}

	return record, nil
}

// Status returns the persisted workflow with its task rows populated.
func (s *Scheduler) Status(ctx context.Context, workflowID string) (*model.WorkflowRecord, error) {
	record, err := s.rt.Store.Workflows().FindOne(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	tasks, err := s.rt.Store.Tasks().Find(ctx, state.Filter{"parent": workflowID})
	if err != nil {
		return nil, err
	}

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].Name < tasks[j].Name
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	record.Tasks = tasks

	return record, nil
}

// SortedTasks computes the task execution order. Sources are the tasks with
// no inputs; the iterative sort explores each source's descendants depth
// first, keeping an ancestor stack and flushing it into the order whenever
// the current node is not a child of the stack top. The result respects
// every dependency and groups the branches of a source together.
func SortedTasks(workflow model.Workflow) []string {
	graph := make(map[string][]string)
	var sources []string

	for _, task := range workflow.Tasks {
		if len(task.Inputs) == 0 {
			sources = append(sources, task.Name)
			continue
		}
		for _, local := range sortedKeys(task.Inputs) {
			upstream, _, ok := model.SplitInputRef(task.Inputs[local])
			if !ok {
				continue
			}
			graph[upstream] = append(graph[upstream], task.Name)
		}
	}

	seen := make(map[string]bool)
	var stack, order []string

	q := slices.Clone(sources)
	for len(q) > 0 {
		v := q[len(q)-1]
		q = q[:len(q)-1]

		if seen[v] {
			continue
		}
		seen[v] = true
		q = append(q, graph[v]...)

		for len(stack) > 0 && !slices.Contains(graph[stack[len(stack)-1]], v) {
			order = append(order, stack[len(stack)-1])
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, v)
	}

	slices.Reverse(order)
	return append(stack, order...)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
