package ring

import (
	"sync"
)

// Buffer is a generic thread-safe bounded buffer. Pushing past capacity
// drops the oldest items, which keeps a long tracking session's breadcrumb
// list within a fixed memory budget.
type Buffer[T any] struct {
	mu    sync.Mutex
	items []T
	cap   int
}

// New creates an empty buffer with the given capacity. Capacity <= 0 means
// unbounded.
func New[T any](capacity int) *Buffer[T] {
	return &Buffer[T]{
		items: make([]T, 0),
		cap:   capacity,
	}
}

// Push appends items, evicting the oldest entries when over capacity.
func (b *Buffer[T]) Push(items ...T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, items...)
	if b.cap > 0 && len(b.items) > b.cap {
		overflow := len(b.items) - b.cap
		b.items = append(b.items[:0], b.items[overflow:]...)
	}
}

// Last returns the most recent item. ok is false if the buffer is empty.
func (b *Buffer[T]) Last() (item T, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return item, false
	}
	return b.items[len(b.items)-1], true
}

// ReplaceLast swaps the most recent item. No-op on an empty buffer.
func (b *Buffer[T]) ReplaceLast(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return
	}
	b.items[len(b.items)-1] = item
}

// Len returns the number of buffered items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Snapshot returns a copy of the buffered items in insertion order.
func (b *Buffer[T]) Snapshot() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]T, len(b.items))
	copy(out, b.items)
	return out
}

// Clear removes all items.
func (b *Buffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = b.items[:0]
}

// Load replaces the contents with the given items, applying the capacity
// bound. Used when resuming a session after an app restart.
func (b *Buffer[T]) Load(items []T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cap > 0 && len(items) > b.cap {
		items = items[len(items)-b.cap:]
	}
	b.items = append(b.items[:0], items...)
}
