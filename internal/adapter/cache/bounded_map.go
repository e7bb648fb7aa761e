package cache

import (
	"fmt"

	"fx-rate-cache/internal/domain/model"
)

// BoundedMap is a map that refuses to grow past a fixed number of keys.
// It is not safe for concurrent use; owners guard it with their own lock.
type BoundedMap[K comparable, V any] struct {
	items    map[K]V
	capacity int
}

func NewBoundedMap[K comparable, V any](capacity int) *BoundedMap[K, V] {
	if capacity < 0 {
		capacity = 0
	}
	return &BoundedMap[K, V]{
		items:    make(map[K]V, min(capacity, 4096)),
		capacity: capacity,
	}
}

// Insert stores v under k. Updating an existing key never fails; adding a
// new key to a full map returns model.ErrCapacityExceeded.
func (m *BoundedMap[K, V]) Insert(k K, v V) error {
	if _, exists := m.items[k]; !exists && len(m.items) >= m.capacity {
		return fmt.Errorf("%w: map holds %d of %d keys", model.ErrCapacityExceeded, len(m.items), m.capacity)
	}
	m.items[k] = v
	return nil
}

func (m *BoundedMap[K, V]) Get(k K) (V, bool) {
	v, ok := m.items[k]
	return v, ok
}

func (m *BoundedMap[K, V]) Len() int {
	return len(m.items)
}

func (m *BoundedMap[K, V]) Cap() int {
	return m.capacity
}

// Range calls fn for every entry in unspecified order until fn returns false.
func (m *BoundedMap[K, V]) Range(fn func(k K, v V) bool) {
	for k, v := range m.items {
		if !fn(k, v) {
			return
		}
	}
}

func (m *BoundedMap[K, V]) Clear() {
	clear(m.items)
}
