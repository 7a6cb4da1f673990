// Package procedure maps RPC method names to handler functions.
//
// Handlers are plain business logic: they see the params mapping and nothing
// of the RPC layer (no retry state, no dedup table). The server dispatcher
// calls Invoke and turns its errors into ERROR responses.
package procedure

import (
	"fmt"
	"sync"
)

// Handler executes one procedure. Params hold JSON-decoded values, so
// numbers arrive as float64. The returned value must be JSON-serializable.
type Handler func(params map[string]any) (any, error)

// NotFoundError reports a method name with no registered handler.
type NotFoundError struct {
	Method string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unknown method: %s", e.Method)
}

// InvocationError reports a handler that failed or panicked.
type InvocationError struct {
	Method string
	Reason string
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("execution error in %s: %s", e.Method, e.Reason)
}

// Registry holds the name → handler mapping. Registration happens at
// startup; Invoke is safe for concurrent use from any number of connections.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds or replaces the handler for a method name.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Methods returns the registered method names, for logging and discovery.
func (r *Registry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// Invoke runs the handler registered under name.
// An unknown name yields *NotFoundError; a handler error or panic yields
// *InvocationError. The panic recovery keeps a misbehaving handler from
// taking down the dispatcher loop.
func (r *Registry) Invoke(name string, params map[string]any) (result any, err error) {
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()

	if !ok {
		return nil, &NotFoundError{Method: name}
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = &InvocationError{Method: name, Reason: fmt.Sprintf("panic: %v", rec)}
		}
	}()

	result, err = h(params)
	if err != nil {
		if _, isInvocation := err.(*InvocationError); !isInvocation {
			err = &InvocationError{Method: name, Reason: err.Error()}
		}
		return nil, err
	}
	return result, nil
}
