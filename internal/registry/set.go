package registry

import (
	"sort"
	"sync"
)

// Set is a concurrency-safe set of names. Insertion order is not kept;
// Sorted gives the canonical order used for rendering.
type Set struct {
	mu    sync.RWMutex
	items map[string]struct{}
}

func NewSet(names ...string) *Set {
	s := &Set{items: make(map[string]struct{}, len(names))}
	for _, n := range names {
		s.items[n] = struct{}{}
	}
	return s
}

// Add inserts name and reports whether it was not already present.
func (s *Set) Add(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[name]; ok {
		return false
	}
	s.items[name] = struct{}{}
	return true
}

func (s *Set) Contains(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[name]
	return ok
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Sorted returns the members in ascending order. The result is never nil.
func (s *Set) Sorted() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.items))
	for n := range s.items {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
