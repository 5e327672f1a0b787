// Package model defines the workflow and task documents persisted by the
// orchestrator, together with their validation rules and status machines.
package model

import (
	"strings"
	"time"

	"github.com/dramaproject/drama/storage"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusUnknown TaskStatus = "UNKNOWN"
	TaskStatusPending TaskStatus = "PENDING"
	TaskStatusRunning TaskStatus = "RUNNING"
	TaskStatusFailed  TaskStatus = "FAILED"
	TaskStatusDone    TaskStatus = "DONE"
)

// IsTerminal reports whether a task can no longer change state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusDone || s == TaskStatusFailed
}

// TaskOpts carries per-task execution options.
type TaskOpts struct {
	// OnFailForceInterruption broadcasts an INTERRUPTION signal when the
	// task fails, cascade-failing downstream tasks.
	OnFailForceInterruption bool `json:"on_fail_force_interruption" bson:"on_fail_force_interruption" yaml:"on_fail_force_interruption"`

	// OnFailRemoveLocalDir removes the task's scratch directory when the
	// task fails. The task log is always preserved remotely.
	OnFailRemoveLocalDir bool `json:"on_fail_remove_local_dir" bson:"on_fail_remove_local_dir" yaml:"on_fail_remove_local_dir"`

	// QueueName overrides the job queue the task is enqueued on.
	QueueName string `json:"queue_name,omitempty" bson:"queue_name,omitempty" yaml:"queue_name,omitempty"`
}

// DefaultTaskOpts returns the option defaults applied to tasks that do not
// override them.
func DefaultTaskOpts() TaskOpts {
	return TaskOpts{
		OnFailForceInterruption: true,
		OnFailRemoveLocalDir:    true,
	}
}

// TaskResult is what a component hands back on completion.
type TaskResult struct {
	Message any `json:"message,omitempty" bson:"message,omitempty"`

	// Files lists produced artifacts.
	Files []storage.Resource `json:"files,omitempty" bson:"files,omitempty"`

	// FileGroups lists named groups of produced artifacts.
	FileGroups []map[string]storage.Resource `json:"file_groups,omitempty" bson:"file_groups,omitempty"`

	// Log locates the uploaded task log.
	Log *storage.Resource `json:"log,omitempty" bson:"log,omitempty"`
}

// Task is one node of a workflow: a component invocation with params and
// inputs.
type Task struct {
	Name    string            `json:"name" bson:"name" yaml:"name"`
	Module  string            `json:"module" bson:"module" yaml:"module"`
	Params  map[string]any    `json:"params,omitempty" bson:"params,omitempty" yaml:"params,omitempty"`
	Inputs  map[string]string `json:"inputs,omitempty" bson:"inputs,omitempty" yaml:"inputs,omitempty"`
	Labels  []string          `json:"labels,omitempty" bson:"labels,omitempty" yaml:"labels,omitempty"`
	Secrets []TaskSecret      `json:"secrets,omitempty" bson:"secrets,omitempty" yaml:"secrets,omitempty"`
	Options *TaskOpts         `json:"options,omitempty" bson:"options,omitempty" yaml:"options,omitempty"`
	Meta    map[string]any    `json:"metadata,omitempty" bson:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// EffectiveOptions returns the task options with defaults applied.
func (t Task) EffectiveOptions() TaskOpts {
	if t.Options == nil {
		return DefaultTaskOpts()
	}
	return *t.Options
}

// UpstreamTasks returns the distinct task names referenced by the task's
// inputs. Inputs is a map, so the order of the names is not defined.
func (t Task) UpstreamTasks() []string {
	seen := make(map[string]struct{}, len(t.Inputs))
	var names []string
	for _, ref := range t.Inputs {
		name, _, ok := SplitInputRef(ref)
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// Validate checks the task-local invariants: the name contains no spaces or
// dots, and every input value forms a "<task>.<output>" identifier.
func (t Task) Validate() error {
	if t.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if strings.Contains(t.Name, " ") {
		return &ValidationError{Field: "name", Message: "name must not contain spaces"}
	}
	if strings.Contains(t.Name, ".") {
		return &ValidationError{Field: "name", Message: "name must not contain dots"}
	}
	if t.Module == "" {
		return &ValidationError{Field: "module", Message: "module is required"}
	}
	for local, ref := range t.Inputs {
		if _, _, ok := SplitInputRef(ref); !ok {
			return &ValidationError{
				Field:   "inputs." + local,
				Message: "input values must form a valid identifier (<task>.<output>)",
			}
		}
	}
	return nil
}

// SplitInputRef splits an input reference "<task>.<output>" into its parts.
func SplitInputRef(ref string) (task, output string, ok bool) {
	task, output, found := strings.Cut(ref, ".")
	if !found || task == "" || output == "" {
		return "", "", false
	}
	return task, output, true
}

// TaskRecord is the task document persisted in the state store. The id is
// assigned by the job queue at enqueue time.
type TaskRecord struct {
	ID        string         `json:"id" bson:"id"`
	Name      string         `json:"name" bson:"name"`
	Module    string         `json:"module" bson:"module"`
	Parent    string         `json:"parent" bson:"parent"`
	Params    map[string]any `json:"params,omitempty" bson:"params,omitempty"`
	Inputs    map[string]string `json:"inputs,omitempty" bson:"inputs,omitempty"`
	Labels    []string       `json:"labels,omitempty" bson:"labels,omitempty"`
	Options   TaskOpts       `json:"options" bson:"options"`
	Meta      map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
	Result    *TaskResult    `json:"result,omitempty" bson:"result,omitempty"`
	Status    TaskStatus     `json:"status" bson:"status"`
	CreatedAt time.Time      `json:"created_at,omitempty" bson:"created_at,omitempty"`
	UpdatedAt time.Time      `json:"updated_at,omitempty" bson:"updated_at,omitempty"`
}
