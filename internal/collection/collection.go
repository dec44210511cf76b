// Package collection provides small insertion-ordered generic containers
// used as building blocks by the event hub.
//
// The containers are not safe for concurrent use; owners serialize access.
package collection

// Set is an insertion-ordered set.
type Set[T comparable] struct {
	items []T
	index map[T]struct{}
}

// NewSet returns an empty Set.
func NewSet[T comparable]() *Set[T] {
	return &Set[T]{index: make(map[T]struct{})}
}

// Add inserts v and reports whether it was not already present.
// Re-adding an existing value keeps its original position.
func (s *Set[T]) Add(v T) bool {
	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = struct{}{}
	s.items = append(s.items, v)
	return true
}

// Has reports whether v is in the set.
func (s *Set[T]) Has(v T) bool {
	_, ok := s.index[v]
	return ok
}

// Delete removes v and reports whether it was present.
func (s *Set[T]) Delete(v T) bool {
	if _, ok := s.index[v]; !ok {
		return false
	}
	delete(s.index, v)
	for i, item := range s.items {
		if item == v {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of values in the set.
func (s *Set[T]) Len() int {
	return len(s.items)
}

// Values returns a snapshot of the values in insertion order.
func (s *Set[T]) Values() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// Clear removes every value.
func (s *Set[T]) Clear() {
	s.items = nil
	s.index = make(map[T]struct{})
}

// Map is a thin typed wrapper over a built-in map that remembers key
// insertion order.
type Map[K comparable, V any] struct {
	keys   []K
	values map[K]V
}

// NewMap returns an empty Map.
func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{values: make(map[K]V)}
}

// Has reports whether key is present.
func (m *Map[K, V]) Has(key K) bool {
	_, ok := m.values[key]
	return ok
}

// Get returns the value stored under key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Set stores value under key and reports whether the key was new.
func (m *Map[K, V]) Set(key K, value V) bool {
	_, exists := m.values[key]
	if !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
	return !exists
}

// Delete removes key and returns the value it held.
func (m *Map[K, V]) Delete(key K) (V, bool) {
	v, ok := m.values[key]
	if !ok {
		return v, false
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
	return v, true
}

// Len returns the number of keys.
func (m *Map[K, V]) Len() int {
	return len(m.keys)
}

// Keys returns a snapshot of the keys in insertion order.
func (m *Map[K, V]) Keys() []K {
	out := make([]K, len(m.keys))
	copy(out, m.keys)
	return out
}

// Clear removes every entry.
func (m *Map[K, V]) Clear() {
	m.keys = nil
	m.values = make(map[K]V)
}
