package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WorkflowStatus is the aggregated lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusUnknown WorkflowStatus = "UNKNOWN"
	WorkflowStatusRevoked WorkflowStatus = "REVOKED"
	WorkflowStatusPending WorkflowStatus = "PENDING"
	WorkflowStatusRunning WorkflowStatus = "RUNNING"
	WorkflowStatusFailed  WorkflowStatus = "FAILED"
	WorkflowStatusDone    WorkflowStatus = "DONE"
)

// AnonymousAuthor is assumed when a workflow does not name its author.
const AnonymousAuthor = "anonymous"

// Metadata is the free-form workflow metadata map. The author field is
// always present.
type Metadata map[string]any

// Author returns the workflow author, defaulting to anonymous.
func (m Metadata) Author() string {
	if author, ok := m["author"].(string); ok && author != "" {
		return author
	}
	return AnonymousAuthor
}

// WithAuthor returns a copy of the metadata with the author field filled in.
func (m Metadata) WithAuthor() Metadata {
	out := make(Metadata, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out["author"] = m.Author()
	return out
}

// Workflow is a DAG of tasks executed as one logical job.
type Workflow struct {
	ID      string   `json:"id,omitempty" bson:"id" yaml:"id,omitempty"`
	Tasks   []Task   `json:"tasks" bson:"tasks" yaml:"tasks"`
	Secrets []string `json:"secrets,omitempty" bson:"secrets,omitempty" yaml:"secrets,omitempty"`
	Labels  []string `json:"labels,omitempty" bson:"labels,omitempty" yaml:"labels,omitempty"`
	Meta    Metadata `json:"metadata,omitempty" bson:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// NewWorkflowID generates a workflow identifier.
func NewWorkflowID() string {
	id := uuid.New()
	return fmt.Sprintf("%x", id[:])
}

// Validate checks the workflow invariants: every task validates, task names
// are unique, and every input reference names another task of the same
// workflow.
func (w Workflow) Validate() error {
	names := make(map[string]struct{}, len(w.Tasks))
	for _, task := range w.Tasks {
		if err := task.Validate(); err != nil {
			return fmt.Errorf("task %s: %w", task.Name, err)
		}
		if _, dup := names[task.Name]; dup {
			return &ValidationError{Field: "tasks", Message: fmt.Sprintf("duplicated task name %s", task.Name)}
		}
		names[task.Name] = struct{}{}
	}

	for _, task := range w.Tasks {
		for local, ref := range task.Inputs {
			upstream, _, _ := SplitInputRef(ref)
			if upstream == task.Name {
				return &ValidationError{
					Field:   fmt.Sprintf("tasks.%s.inputs.%s", task.Name, local),
					Message: "task cannot consume its own output",
				}
			}
			if _, ok := names[upstream]; !ok {
				return &ValidationError{
					Field:   fmt.Sprintf("tasks.%s.inputs.%s", task.Name, local),
					Message: fmt.Sprintf("input references unknown task %s", upstream),
				}
			}
		}
	}

	return nil
}

// WorkflowRecord is the workflow document persisted in the state store.
type WorkflowRecord struct {
	ID        string         `json:"id" bson:"id"`
	Tasks     []TaskRecord   `json:"tasks,omitempty" bson:"tasks,omitempty"`
	Secrets   []string       `json:"secrets,omitempty" bson:"secrets,omitempty"`
	Labels    []string       `json:"labels,omitempty" bson:"labels,omitempty"`
	Meta      Metadata       `json:"metadata,omitempty" bson:"metadata,omitempty"`
	Status    WorkflowStatus `json:"status" bson:"status"`
	IsRevoked bool           `json:"is_revoked" bson:"is_revoked"`
	CreatedAt time.Time      `json:"created_at,omitempty" bson:"created_at,omitempty"`
	UpdatedAt time.Time      `json:"updated_at,omitempty" bson:"updated_at,omitempty"`
}
