// Package registry provides tag-keyed lookup tables for pluggable executors.
package registry

import (
	"sort"
	"sync"
)

// Registry maps a namespaced tag (e.g. "Op.Add") to an executor of type E.
// Registering an existing tag replaces the previous executor.
type Registry[E any] struct {
	mu    sync.RWMutex
	items map[string]E
}

// New creates an empty registry
func New[E any]() *Registry[E] {
	return &Registry[E]{items: make(map[string]E)}
}

// Register stores executor under tag, overwriting any previous entry.
func (r *Registry[E]) Register(tag string, executor E) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[tag] = executor
}

// RegisterIfAbsent stores executor only when tag is unregistered and
// reports whether it did.
func (r *Registry[E]) RegisterIfAbsent(tag string, executor E) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[tag]; exists {
		return false
	}
	r.items[tag] = executor
	return true
}

// Get returns the executor for tag, or false when none is registered.
func (r *Registry[E]) Get(tag string) (E, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.items[tag]
	return e, ok
}

// Has reports whether tag is registered.
func (r *Registry[E]) Has(tag string) bool {
	_, ok := r.Get(tag)
	return ok
}

// List returns a sorted snapshot of the registered tags.
func (r *Registry[E]) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.items))
	for tag := range r.items {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Len returns the number of registered tags.
func (r *Registry[E]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
