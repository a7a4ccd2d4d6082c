// Package memory implements the three-layer taint-propagating memory
// hierarchy (Resource/Artifact/Insight) and the bounded LRU store that
// backs each layer.
package memory

import (
	"container/list"
	"sync"

	"github.com/google/uuid"
)

// DefaultCapacity is the default bound on a store's entry count.
const DefaultCapacity = 10000

// HasID is implemented by every value a BoundedStore can hold.
type HasID interface {
	ID() uuid.UUID
}

// Erasable is implemented by values that hold sensitive payloads which
// must be overwritten, not merely dropped, once evicted or removed. Go
// has no destructors, so BoundedStore calls Erase explicitly at every
// point the teacher's Rust reference relied on ZeroizeOnDrop.
type Erasable interface {
	Erase()
}

// BoundedStore is a capacity-bounded, LRU-evicting store keyed by UUID.
// It uses a container/list.List alongside the map so that promoting an
// entry to most-recently-used is O(1) — an improvement on a
// HashMap+VecDeque design, which needs an O(n) scan to relocate an entry
// inside the deque on every access.
type BoundedStore[T HasID] struct {
	mu       sync.Mutex
	capacity int
	items    map[uuid.UUID]*list.Element
	order    *list.List // front = most recently used
}

type entry[T HasID] struct {
	id    uuid.UUID
	value T
}

// NewBoundedStore constructs a store with the given capacity. A capacity
// of zero or less falls back to DefaultCapacity.
func NewBoundedStore[T HasID](capacity int) *BoundedStore[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &BoundedStore[T]{
		capacity: capacity,
		items:    make(map[uuid.UUID]*list.Element),
		order:    list.New(),
	}
}

// Put inserts or replaces a value, promoting it to most-recently-used,
// evicting the least-recently-used entry if the store is now over
// capacity. The evicted value is erased if it implements Erasable.
func (s *BoundedStore[T]) Put(value T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := value.ID()
	if el, ok := s.items[id]; ok {
		el.Value.(*entry[T]).value = value
		s.order.MoveToFront(el)
		return
	}

	el := s.order.PushFront(&entry[T]{id: id, value: value})
	s.items[id] = el

	if s.order.Len() > s.capacity {
		s.evictOldestLocked()
	}
}

// Get returns a value by id, promoting it to most-recently-used.
func (s *BoundedStore[T]) Get(id uuid.UUID) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[id]
	if !ok {
		var zero T
		return zero, false
	}
	s.order.MoveToFront(el)
	return el.Value.(*entry[T]).value, true
}

// Peek returns a value by id without affecting recency order.
func (s *BoundedStore[T]) Peek(id uuid.UUID) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[id]
	if !ok {
		var zero T
		return zero, false
	}
	return el.Value.(*entry[T]).value, true
}

// Remove deletes a value by id, erasing it if it implements Erasable.
// Reports whether an entry was present.
func (s *BoundedStore[T]) Remove(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[id]
	if !ok {
		return false
	}
	s.removeElementLocked(el)
	return true
}

// All returns a snapshot of every stored value, most-recently-used first.
func (s *BoundedStore[T]) All() []T {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]T, 0, s.order.Len())
	for el := s.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*entry[T]).value)
	}
	return out
}

// Len returns the current entry count.
func (s *BoundedStore[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// Clear erases and removes every entry.
func (s *BoundedStore[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for el := s.order.Front(); el != nil; el = el.Next() {
		eraseValue(el.Value.(*entry[T]).value)
	}
	s.items = make(map[uuid.UUID]*list.Element)
	s.order.Init()
}

func (s *BoundedStore[T]) evictOldestLocked() {
	oldest := s.order.Back()
	if oldest == nil {
		return
	}
	s.removeElementLocked(oldest)
}

func (s *BoundedStore[T]) removeElementLocked(el *list.Element) {
	e := el.Value.(*entry[T])
	eraseValue(e.value)
	delete(s.items, e.id)
	s.order.Remove(el)
}

func eraseValue[T any](v T) {
	if erasable, ok := any(v).(Erasable); ok {
		erasable.Erase()
	}
}
