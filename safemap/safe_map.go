// Package safemap provides a type-safe concurrent map. It is built on a
// plain map guarded by an RWMutex, which keeps Len O(1)-cheap relative to
// sync.Map and lets Range iterate over a consistent snapshot.
package safemap

import "sync"

// Map is a concurrent map safe for use by multiple goroutines. Keys must be
// comparable; values may be any type. The zero value is not usable; create
// instances with New.
type Map[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

// New returns an empty Map ready for concurrent use.
func New[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{items: make(map[K]V)}
}

// Store sets the value for key k, overwriting any existing value.
func (m *Map[K, V]) Store(k K, v V) {
	m.mu.Lock()
	m.items[k] = v
	m.mu.Unlock()
}

// Load returns the value for key k and whether it was present. Absent keys
// return the zero value of V and false.
func (m *Map[K, V]) Load(k K) (V, bool) {
	m.mu.RLock()
	v, ok := m.items[k]
	m.mu.RUnlock()
	return v, ok
}

// Delete removes the entry for key k and returns the removed value, if any.
// Deleting an absent key is a no-op.
func (m *Map[K, V]) Delete(k K) (V, bool) {
	m.mu.Lock()
	v, ok := m.items[k]
	if ok {
		delete(m.items, k)
	}
	m.mu.Unlock()
	return v, ok
}

// Has reports whether key k is present.
func (m *Map[K, V]) Has(k K) bool {
	_, ok := m.Load(k)
	return ok
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int {
	m.mu.RLock()
	n := len(m.items)
	m.mu.RUnlock()
	return n
}

// Range calls f for each entry of a snapshot taken when Range is invoked.
// Returning false from f stops the iteration. Because f runs outside the
// lock, it may freely Store or Delete on the same map.
func (m *Map[K, V]) Range(f func(k K, v V) bool) {
	m.mu.RLock()
	snapshot := make(map[K]V, len(m.items))
	for k, v := range m.items {
		snapshot[k] = v
	}
	m.mu.RUnlock()

	for k, v := range snapshot {
		if !f(k, v) {
			return
		}
	}
}

// Values returns a snapshot slice of all values. Order is unspecified.
func (m *Map[K, V]) Values() []V {
	m.mu.RLock()
	out := make([]V, 0, len(m.items))
	for _, v := range m.items {
		out = append(out, v)
	}
	m.mu.RUnlock()
	return out
}

// Clear removes all entries.
func (m *Map[K, V]) Clear() {
	m.mu.Lock()
	m.items = make(map[K]V)
	m.mu.Unlock()
}
