package keyed

import (
	"sort"
	"sync"
)

// Store holds mutable per-key records. Work on one key is serialized by that
// key's own mutex; the map lock is only held for lookup and insertion.
type Store[V any] struct {
	mu      sync.RWMutex
	entries map[string]*entry[V]
	newFn   func(key string) *V
}

type entry[V any] struct {
	mu    sync.Mutex
	value *V
}

// NewStore constructs a store. newFn creates the record lazily on first access.
func NewStore[V any](newFn func(key string) *V) *Store[V] {
	if newFn == nil {
		newFn = func(string) *V { return new(V) }
	}
	return &Store[V]{
		entries: make(map[string]*entry[V]),
		newFn:   newFn,
	}
}

// Do runs fn with exclusive access to the record for key.
func (s *Store[V]) Do(key string, fn func(v *V)) {
	e := s.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.value)
}

// Peek runs fn with exclusive access to an existing record. It reports false
// without creating the record when key is unknown.
func (s *Store[V]) Peek(key string, fn func(v *V)) bool {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.value)
	return true
}

// Range visits every record in key order, locking each one in turn.
func (s *Store[V]) Range(fn func(key string, v *V)) {
	for _, key := range s.Keys() {
		s.Peek(key, func(v *V) { fn(key, v) })
	}
}

// Keys returns the sorted key set.
func (s *Store[V]) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Len returns the number of records.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store[V]) entry(key string) *entry[V] {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		return e
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[key]; ok {
		return e
	}
	e = &entry[V]{value: s.newFn(key)}
	s.entries[key] = e
	return e
}
