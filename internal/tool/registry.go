package tool

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// EventNameParam is injected into every dispatched parameter map so a
// handler can tell which event invoked it.
const EventNameParam = "_event_name"

// Handler is the uniform invocation contract for tools. A handler that
// wants to do work asynchronously simply blocks here until its result is
// ready; callers never need a second call path. Results carry at minimum a
// "status" field ("sent", "error", "ok", ...).
type Handler func(ctx context.Context, params map[string]any) (map[string]any, error)

// Registry maps tool names to handlers. It decouples the scheduler from
// concrete side effects: mail, chat messages, anything callable.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Handler)}
}

// Register adds or replaces a handler under name.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = h
}

// Call invokes the named tool. Unknown names return a *NotFoundError that
// lists what is registered, mirroring what a caller would want in a log
// line.
func (r *Registry) Call(ctx context.Context, name string, params map[string]any) (map[string]any, error) {
	r.mu.RLock()
	h, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{Name: name, Available: r.List()}
	}
	return h(ctx, params)
}

// List returns the registered tool names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NotFoundError is returned by Call for unregistered tool names.
type NotFoundError struct {
	Name      string
	Available []string
}

func (e *NotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("tool %q not found (no tools registered)", e.Name)
	}
	return fmt.Sprintf("tool %q not found, available: %s", e.Name, strings.Join(e.Available, ", "))
}
