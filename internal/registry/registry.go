// Package registry holds the name-keyed node maps shared by the report
// builders. Every mutation is atomic, so workers may populate the same tree
// concurrently without coordinating with each other.
package registry

import (
	"fmt"
	"sort"
	"sync"
)

type Registry[V any] struct {
	mu    sync.RWMutex
	items map[string]V
	newFn func(key string) V
}

// New returns an empty registry that builds missing nodes with newFn.
func New[V any](newFn func(key string) V) *Registry[V] {
	return &Registry[V]{
		items: make(map[string]V),
		newFn: newFn,
	}
}

// NewRefs returns a registry that only references nodes owned by another
// registry. Nodes are attached with Put; creating calls panic.
func NewRefs[V any]() *Registry[V] {
	return &Registry[V]{items: make(map[string]V)}
}

func (r *Registry[V]) GetOrCreate(key string) V {
	v, _ := r.LoadOrCreate(key)
	return v
}

// LoadOrCreate returns the node stored under key, creating it when absent.
// The boolean reports whether this call created the node.
func (r *Registry[V]) LoadOrCreate(key string) (V, bool) {
	r.mu.RLock()
	v, ok := r.items[key]
	r.mu.RUnlock()
	if ok {
		return v, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// another writer may have won between the two locks
	if v, ok := r.items[key]; ok {
		return v, false
	}
	v = r.create(key)
	r.items[key] = v
	return v, true
}

func (r *Registry[V]) create(key string) V {
	if r.newFn == nil {
		panic(fmt.Sprintf("registry: cannot create %q in a reference registry, attach it with Put", key))
	}
	return r.newFn(key)
}

func (r *Registry[V]) Get(key string) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[key]
	return v, ok
}

// Update runs fn on the node stored under key, creating it first if needed.
// fn runs with the write lock held and must not call back into r.
func (r *Registry[V]) Update(key string, fn func(V)) V {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.items[key]
	if !ok {
		v = r.create(key)
		r.items[key] = v
	}
	fn(v)
	return v
}

// Put stores v under key, replacing any previous node. It is meant for
// attaching nodes owned elsewhere, such as child edges in a graph.
func (r *Registry[V]) Put(key string, v V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[key] = v
}

func (r *Registry[V]) Delete(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[key]; !ok {
		return false
	}
	delete(r.items, key)
	return true
}

func (r *Registry[V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

func (r *Registry[V]) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedKeys()
}

// Each calls fn for every node in key order while holding the read lock.
// Nodes may be inspected safely against concurrent Update calls, but fn must
// not mutate r.
func (r *Registry[V]) Each(fn func(key string, v V)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range r.sortedKeys() {
		fn(k, r.items[k])
	}
}

func (r *Registry[V]) sortedKeys() []string {
	keys := make([]string, 0, len(r.items))
	for k := range r.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
