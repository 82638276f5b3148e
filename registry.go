package flowdag

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor creates an unplaced node of one concrete type.
type Constructor func() (Node, error)

// Registry maps node type tags to constructors. It replaces compile-time
// factory binding: descriptors and declarative loaders resolve node types
// through it at build time.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register binds typeName to ctor. Registering the same tag twice fails.
func (r *Registry) Register(typeName string, ctor Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ctors[typeName]; exists {
		return fmt.Errorf("node type %q already registered", typeName)
	}
	r.ctors[typeName] = ctor
	return nil
}

// New constructs a node of the given type.
func (r *Registry) New(typeName string) (Node, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, typeName)
	}
	return ctor()
}

// Types returns the registered type tags in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.ctors))
	for t := range r.ctors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// DefaultRegistry is the process-wide registry concrete node packages
// register into from their init functions.
var DefaultRegistry = NewRegistry()

// Register binds typeName to ctor in DefaultRegistry, panicking on a
// duplicate tag. Intended for init-time registration.
func Register(typeName string, ctor Constructor) {
	if err := DefaultRegistry.Register(typeName, ctor); err != nil {
		panic("flowdag: " + err.Error())
	}
}
