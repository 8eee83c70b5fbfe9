// internal/browser/dispatch/registry.go
package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Operation is one atom: it receives decoded live arguments and returns an
// encodable value or an error, ideally an *errcode.Error.
type Operation func(ctx context.Context, call *Call) (any, error)

// Registry maps command names to operations. It is built explicitly and
// handed to a Dispatcher; there is no process-wide table.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]Operation
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]Operation)}
}

// Register adds an operation. Names are unique.
func (r *Registry) Register(name string, op Operation) error {
	if name == "" {
		return fmt.Errorf("dispatch: empty command name")
	}
	if op == nil {
		return fmt.Errorf("dispatch: nil operation for %s", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ops[name]; exists {
		return fmt.Errorf("dispatch: command %s already registered", name)
	}
	r.ops[name] = op
	return nil
}

// MustRegister is Register for static setup code.
func (r *Registry) MustRegister(name string, op Operation) {
	if err := r.Register(name, op); err != nil {
		panic(err)
	}
}

// Lookup returns the operation registered under name.
func (r *Registry) Lookup(name string) (Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[name]
	return op, ok
}

// Names lists the registered commands in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for n := range r.ops {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
