package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps provider ids to adapters. The CLI registers the built-in
// adapters at startup; tests register fakes.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter. Registering the same id twice is an error so a
// misconfigured build fails loudly instead of silently shadowing a provider.
func (r *Registry) Register(a Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := a.ID()
	if _, exists := r.adapters[id]; exists {
		return fmt.Errorf("provider %q already registered", id)
	}
	r.adapters[id] = a
	return nil
}

// Get returns the adapter for id, or nil.
func (r *Registry) Get(id string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[id]
}

// All returns every registered adapter, ordered by id for stable output.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]Adapter, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.adapters[id])
	}
	return out
}

// Select returns the adapters for the given ids, or all adapters when ids is
// empty. Unknown ids are an error.
func (r *Registry) Select(ids []string) ([]Adapter, error) {
	if len(ids) == 0 {
		return r.All(), nil
	}

	out := make([]Adapter, 0, len(ids))
	for _, id := range ids {
		a := r.Get(id)
		if a == nil {
			return nil, fmt.Errorf("unknown provider %q", id)
		}
		out = append(out, a)
	}
	return out, nil
}
