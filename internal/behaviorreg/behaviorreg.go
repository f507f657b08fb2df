// Package behaviorreg is a process-wide map of behavior name -> constructor,
// the hook a remote-spawn transport would use to materialize a Process on
// the local host in response to a remote request. This package implements
// only the map; no transport is built — remote spawning itself is out of
// scope here.
package behaviorreg

import (
	"errors"
	"fmt"
	"sync"

	"github.com/loykin/noex/internal/process"
)

var ErrNotRegistered = errors.New("behaviorreg: not registered")

// Constructor builds a Behavior from an arbitrary config value.
type Constructor func(config any) (process.Behavior, error)

// Registry is a mutex-guarded name -> Constructor map.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register adds or replaces the constructor for name.
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[name] = ctor
}

// Unregister removes name, idempotently.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ctors, name)
}

// Lookup builds a Behavior from the constructor registered under name.
func (r *Registry) Lookup(name string, config any) (process.Behavior, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	return ctor(config)
}

// Names returns every currently-registered behavior name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.ctors))
	for n := range r.ctors {
		out = append(out, n)
	}
	return out
}
