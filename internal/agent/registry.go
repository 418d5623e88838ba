package agent

import (
	"slices"
	"sync"
)

type registration struct {
	build Constructor
	deps  Deps
}

// Registry maps agent ids to constructors. It is filled at startup and only
// read afterwards.
type Registry struct {
	mu        sync.RWMutex
	entries   map[string]registration
	defaultID string
}

// NewRegistry returns an empty registry that falls back to defaultID.
func NewRegistry(defaultID string) *Registry {
	return &Registry{
		entries:   make(map[string]registration),
		defaultID: defaultID,
	}
}

// Register binds id to a constructor and the dependencies it is built with.
// Registering the same id again replaces the previous entry.
func (r *Registry) Register(id string, build Constructor, deps Deps) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = registration{build: build, deps: deps}
}

// Resolve builds the agent registered under id, or the default agent when id
// is unknown. It returns nil only if the default agent was never registered.
func (r *Registry) Resolve(id string) Agent {
	r.mu.RLock()
	entry, ok := r.entries[id]
	if !ok {
		entry, ok = r.entries[r.defaultID]
	}
	r.mu.RUnlock()

	if !ok {
		return nil
	}
	return entry.build(entry.deps)
}

// Has reports whether id is registered explicitly.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[id]
	return ok
}

// DefaultID returns the fallback agent id.
func (r *Registry) DefaultID() string {
	return r.defaultID
}

// IDs lists the registered ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids
}
