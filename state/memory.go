package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dramaproject/drama/model"
)

// MemoryStore keeps documents in process memory with the same field-level
// upsert semantics as the Mongo store. It backs tests and single-process
// development runs.
type MemoryStore struct {
	mu        sync.RWMutex
	tasks     map[string]*model.TaskRecord
	workflows map[string]*model.WorkflowRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:     make(map[string]*model.TaskRecord),
		workflows: make(map[string]*model.WorkflowRecord),
	}
}

// Tasks returns the task collection.
func (s *MemoryStore) Tasks() TaskStore { return &memoryTasks{store: s} }

// Workflows returns the workflow collection.
func (s *MemoryStore) Workflows() WorkflowStore { return &memoryWorkflows{store: s} }

// Close is a no-op.
func (s *MemoryStore) Close(ctx context.Context) error { return nil }

type memoryTasks struct {
	store *MemoryStore
}

func (t *memoryTasks) Find(ctx context.Context, filter Filter) ([]model.TaskRecord, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	var out []model.TaskRecord
	for _, task := range t.store.tasks {
		if taskMatches(task, filter) {
			out = append(out, *task)
		}
	}
	return out, nil
}

func (t *memoryTasks) FindOne(ctx context.Context, id string) (*model.TaskRecord, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	task, ok := t.store.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *task
	return &copied, nil
}

func (t *memoryTasks) CreateOrUpdateFromID(ctx context.Context, id string, fields Fields) (*model.TaskRecord, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	task, ok := t.store.tasks[id]
	if !ok {
		task = &model.TaskRecord{ID: id, Status: model.TaskStatusUnknown}
		t.store.tasks[id] = task
	}

	for key, value := range fields {
		if err := setTaskField(task, key, value); err != nil {
			return nil, err
		}
	}

	copied := *task
	return &copied, nil
}

func taskMatches(task *model.TaskRecord, filter Filter) bool {
	for key, want := range filter {
		switch key {
		case "id":
			if task.ID != want {
				return false
			}
		case "parent":
			if task.Parent != want {
				return false
			}
		case "name":
			if task.Name != want {
				return false
			}
		case "status":
			if string(task.Status) != fmt.Sprint(want) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func setTaskField(task *model.TaskRecord, key string, value any) error {
	switch key {
	case "name":
		task.Name = value.(string)
	case "module":
		task.Module = value.(string)
	case "parent":
		task.Parent = value.(string)
	case "params":
		task.Params, _ = value.(map[string]any)
	case "inputs":
		task.Inputs, _ = value.(map[string]string)
	case "labels":
		task.Labels, _ = value.([]string)
	case "options":
		task.Options = value.(model.TaskOpts)
	case "metadata":
		switch v := value.(type) {
		case model.Metadata:
			task.Meta = v
		case map[string]any:
			task.Meta = v
		}
	case "result":
		switch v := value.(type) {
		case *model.TaskResult:
			task.Result = v
		case model.TaskResult:
			task.Result = &v
		}
	case "status":
		switch v := value.(type) {
		case model.TaskStatus:
			task.Status = v
		case string:
			task.Status = model.TaskStatus(v)
		}
	case "created_at":
		task.CreatedAt = value.(time.Time)
	case "updated_at":
		task.UpdatedAt = value.(time.Time)
	default:
		return fmt.Errorf("state: unknown task field %s", key)
	}
	return nil
}

type memoryWorkflows struct {
	store *MemoryStore
}

func (w *memoryWorkflows) FindOne(ctx context.Context, id string) (*model.WorkflowRecord, error) {
	w.store.mu.RLock()
	defer w.store.mu.RUnlock()

	workflow, ok := w.store.workflows[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *workflow
	return &copied, nil
}

func (w *memoryWorkflows) CreateOrUpdateFromID(ctx context.Context, id string, fields Fields) (*model.WorkflowRecord, error) {
	w.store.mu.Lock()
	defer w.store.mu.Unlock()

	workflow, ok := w.store.workflows[id]
	if !ok {
		workflow = &model.WorkflowRecord{ID: id, Status: model.WorkflowStatusUnknown}
		w.store.workflows[id] = workflow
	}

	for key, value := range fields {
		if err := setWorkflowField(workflow, key, value); err != nil {
			return nil, err
		}
	}

	copied := *workflow
	return &copied, nil
}

func setWorkflowField(workflow *model.WorkflowRecord, key string, value any) error {
	switch key {
	case "labels":
		workflow.Labels, _ = value.([]string)
	case "secrets":
		workflow.Secrets, _ = value.([]string)
	case "metadata":
		switch v := value.(type) {
		case model.Metadata:
			workflow.Meta = v
		case map[string]any:
			workflow.Meta = v
		}
	case "status":
		switch v := value.(type) {
		case model.WorkflowStatus:
			workflow.Status = v
		case string:
			workflow.Status = model.WorkflowStatus(v)
		}
	case "is_revoked":
		workflow.IsRevoked = value.(bool)
	case "created_at":
		workflow.CreatedAt = value.(time.Time)
	case "updated_at":
		workflow.UpdatedAt = value.(time.Time)
	default:
		return fmt.Errorf("state: unknown workflow field %s", key)
	}
	return nil
}
