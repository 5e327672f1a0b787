// Package state persists workflow and task documents. The production
// implementation rides MongoDB; an in-memory implementation with the same
// upsert semantics backs the tests and single-process runs.
//
// All updates are last-writer-wins by field. The workflow-status aggregation
// layered on top is advisory and converges after the last task transition.
package state

import (
	"context"
	"errors"

	"github.com/dramaproject/drama/model"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("state: document not found")

// Fields is a partial document update: the named fields are set, every
// other field is left unchanged. Keys use the persisted (bson) names.
type Fields map[string]any

// Filter matches documents whose fields equal every entry.
type Filter map[string]any

// TaskStore provides CRUD over the task collection.
type TaskStore interface {
	// Find returns the tasks matching the filter.
	Find(ctx context.Context, filter Filter) ([]model.TaskRecord, error)

	// FindOne returns the task with the given id, or ErrNotFound.
	FindOne(ctx context.Context, id string) (*model.TaskRecord, error)

	// CreateOrUpdateFromID upserts the task with the given id, setting the
	// provided fields, and returns the resulting document.
	CreateOrUpdateFromID(ctx context.Context, id string, fields Fields) (*model.TaskRecord, error)
}

// WorkflowStore provides CRUD over the workflow collection.
type WorkflowStore interface {
	// FindOne returns the workflow with the given id, or ErrNotFound.
	FindOne(ctx context.Context, id string) (*model.WorkflowRecord, error)

	// CreateOrUpdateFromID upserts the workflow with the given id, setting
	// the provided fields, and returns the resulting document.
	CreateOrUpdateFromID(ctx context.Context, id string, fields Fields) (*model.WorkflowRecord, error)
}

// Store bundles the two collections.
type Store interface {
	Tasks() TaskStore
	Workflows() WorkflowStore
	Close(ctx context.Context) error
}
