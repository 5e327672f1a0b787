// Package component defines the pluggable computations executed as workflow
// tasks. Components register themselves in a Registry built at worker
// startup; a task's module field is the registry key.
package component

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dramaproject/drama/datatype"
	"github.com/dramaproject/drama/model"
	"github.com/dramaproject/drama/process"
)

// ErrNotRegistered is returned when a task names a module the worker does
// not know. It plays the role of an import failure: the task fails and may
// cascade an interruption downstream.
var ErrNotRegistered = errors.New("component: module is not registered")

// Execute runs the component against its process context. Parameters are
// read from the context's Params map. A nil result is treated as an empty
// one.
type Execute func(ctx context.Context, pcs *process.Process) (*model.TaskResult, error)

// Param documents one component parameter.
type Param struct {
	Name        string
	Description string
	Required    bool
}

// Component is a registry entry: metadata plus the execute function.
type Component struct {
	// Name is the module key tasks refer to.
	Name        string
	Description string

	// Inputs maps local input names to the record schema they expect.
	Inputs map[string]*datatype.Schema

	// Outputs lists the record schemas the component may send downstream.
	Outputs []*datatype.Schema

	Params []Param

	Execute Execute
}

// Registry resolves module keys to components.
type Registry struct {
	mu         sync.RWMutex
	components map[string]Component
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{components: make(map[string]Component)}
}

// Register adds a component. Re-registering a module key is an error.
func (r *Registry) Register(c Component) error {
	if c.Name == "" {
		return fmt.Errorf("component: component has no name")
	}
	if c.Execute == nil {
		return fmt.Errorf("component: %s has no execute function", c.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.components[c.Name]; dup {
		return fmt.Errorf("component: %s is already registered", c.Name)
	}
	r.components[c.Name] = c
	return nil
}

// MustRegister is like Register but panics on error. Intended for catalog
// setup at startup.
func (r *Registry) MustRegister(c Component) {
	if err := r.Register(c); err != nil {
		panic(err)
	}
}

// Lookup resolves a module key.
func (r *Registry) Lookup(module string) (Component, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.components[module]
	if !ok {
		return Component{}, fmt.Errorf("%w: %s", ErrNotRegistered, module)
	}
	return c, nil
}

// Names lists the registered module keys, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.components))
	for name := range r.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
