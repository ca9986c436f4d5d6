// Package kv provides a generic thread-safe key-value store.
package kv

import "sync"

// Store is a thread-safe generic key-value store. Batch operations take the
// lock once so readers never observe a partially applied batch.
type Store[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]V
}

// New creates a new key-value store.
func New[K comparable, V any]() *Store[K, V] {
	return &Store[K, V]{
		data: make(map[K]V),
	}
}

// Get retrieves a value by key.
func (s *Store[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.data[key]
	return val, ok
}

// GetBatch retrieves several keys under a single read lock. Missing keys are
// omitted from the result.
func (s *Store[K, V]) GetBatch(keys ...K) map[K]V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[K]V, len(keys))
	for _, k := range keys {
		if v, ok := s.data[k]; ok {
			out[k] = v
		}
	}
	return out
}

// Set stores a value by key.
func (s *Store[K, V]) Set(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// SetBatch stores multiple key-value pairs at once.
func (s *Store[K, V]) SetBatch(items map[K]V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range items {
		s.data[k] = v
	}
}

// Replace swaps the whole content of the store for items.
func (s *Store[K, V]) Replace(items map[K]V) {
	data := make(map[K]V, len(items))
	for k, v := range items {
		data[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
}

// Delete removes a key from the store.
func (s *Store[K, V]) Delete(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// Len returns the number of items in the store.
func (s *Store[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Keys returns all keys in the store.
func (s *Store[K, V]) Keys() []K {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]K, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}
