package container

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor builds a service from its resolved arguments
type Constructor func(args []any) (any, error)

// Registry maps class and static factory identifiers to constructors and
// holds instances provided by the host.
type Registry struct {
	mu         sync.RWMutex
	classes    map[string]Constructor
	functions  map[string]Constructor
	primitives map[string]any
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		classes:    make(map[string]Constructor),
		functions:  make(map[string]Constructor),
		primitives: make(map[string]any),
	}
}

// RegisterClass binds a class identifier to its constructor
func (r *Registry) RegisterClass(class string, ctor Constructor) error {
	return r.register(r.classes, "class", class, ctor)
}

// RegisterFunction binds a static factory identifier to a constructor
func (r *Registry) RegisterFunction(function string, ctor Constructor) error {
	return r.register(r.functions, "function", function, ctor)
}

func (r *Registry) register(m map[string]Constructor, kind, id string, ctor Constructor) error {
	if id == "" || ctor == nil {
		return fmt.Errorf("%w: %s needs an identifier and a constructor", ErrInvalidDefinition, kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := m[id]; ok {
		return fmt.Errorf("%w: %s %q already registered", ErrDuplicateService, kind, id)
	}
	m[id] = ctor
	return nil
}

// Provide registers a ready-made instance under a service name
func (r *Registry) Provide(name string, instance any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.primitives[name] = instance
}

// Primitives returns the names of provided instances, sorted
func (r *Registry) Primitives() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.primitives))
	for name := range r.primitives {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) class(id string) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classes[id]
	return c, ok
}

func (r *Registry) function(id string) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.functions[id]
	return c, ok
}

func (r *Registry) primitive(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.primitives[name]
	return v, ok
}
